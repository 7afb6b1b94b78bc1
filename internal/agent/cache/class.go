package cache

import (
	"net/http"
	"path"
	"strings"
	"time"
)

// GenerationTag suffixes every cache name of this agent version.
const GenerationTag = "v1.0.0"

const day = 24 * time.Hour

// Class is a logical resource class.
type Class struct {
	// Key is the stable short name used in reports.
	Key        string
	Prefix     string
	MaxEntries int
	MaxAge     time.Duration
}

// Name returns the versioned cache name.
func (c Class) Name() string {
	return c.Prefix + "-" + GenerationTag
}

var (
	ClassShell      = Class{Key: "appShell", Prefix: "app-shell", MaxEntries: 10, MaxAge: 7 * day}
	ClassStatic     = Class{Key: "static", Prefix: "static-resources", MaxEntries: 100, MaxAge: 30 * day}
	ClassImages     = Class{Key: "images", Prefix: "image-cache", MaxEntries: 200, MaxAge: 30 * day}
	ClassFonts      = Class{Key: "fonts", Prefix: "font-cache", MaxEntries: 50, MaxAge: 365 * day}
	ClassAPI        = Class{Key: "api", Prefix: "api-cache", MaxEntries: 500, MaxAge: day}
	ClassThumbnails = Class{Key: "tmdb", Prefix: "tmdb-image-cache", MaxEntries: 300, MaxAge: 7 * day}
	ClassPages      = Class{Key: "pages", Prefix: "pages-cache", MaxEntries: 50, MaxAge: 7 * day}
)

// Classes returns every class in a fixed order.
func Classes() []Class {
	return []Class{ClassShell, ClassStatic, ClassImages, ClassFonts, ClassAPI, ClassThumbnails, ClassPages}
}

// ClassByName finds the class owning a versioned cache name.
func ClassByName(name string) (Class, bool) {
	for _, c := range Classes() {
		if c.Name() == name {
			return c, true
		}
	}
	return Class{}, false
}

// Whitelist returns the cache names this agent version keeps.
func Whitelist() []string {
	classes := Classes()
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = c.Name()
	}
	return out
}

// Classifier maps requests to resource classes.
type Classifier struct {
	APIPrefix       string
	ThumbnailPrefix string
	ThumbnailHosts  []string
}

// DefaultClassifier treats /api/v1/ as API and /tmdb/ plus image.tmdb.org
// as remote thumbnails.
func DefaultClassifier() Classifier {
	return Classifier{
		APIPrefix:       "/api/v1/",
		ThumbnailPrefix: "/tmdb/",
		ThumbnailHosts:  []string{"image.tmdb.org"},
	}
}

var extClasses = map[string]Class{
	".png": ClassImages, ".jpg": ClassImages, ".jpeg": ClassImages, ".gif": ClassImages,
	".webp": ClassImages, ".avif": ClassImages, ".svg": ClassImages, ".ico": ClassImages,
	".woff": ClassFonts, ".woff2": ClassFonts, ".ttf": ClassFonts, ".otf": ClassFonts, ".eot": ClassFonts,
	".js": ClassStatic, ".mjs": ClassStatic, ".css": ClassStatic,
}

// Classify returns the class a GET request is cached under.
func (c Classifier) Classify(r *http.Request) (Class, bool) {
	p := r.URL.Path

	for _, h := range c.ThumbnailHosts {
		if r.URL.Host == h {
			return ClassThumbnails, true
		}
	}
	if c.ThumbnailPrefix != "" && strings.HasPrefix(p, c.ThumbnailPrefix) {
		return ClassThumbnails, true
	}
	if c.APIPrefix != "" && strings.HasPrefix(p, c.APIPrefix) {
		return ClassAPI, true
	}
	if cls, ok := extClasses[strings.ToLower(path.Ext(p))]; ok {
		return cls, true
	}
	switch p {
	case "", "/", "/index.html", "/manifest.webmanifest":
		return ClassShell, true
	}
	if IsNavigation(r) {
		return ClassPages, true
	}
	return Class{}, false
}

// IsNavigation reports whether r is a top-level page load.
func IsNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

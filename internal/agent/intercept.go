package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/yndnr/shellkeep-go/internal/agent/cache"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// CacheHeader marks responses served from the offline cache.
const CacheHeader = "X-Shellkeep-Cache"

// MaxBufferedBody caps request bodies kept for replay and responses kept
// for caching.
const MaxBufferedBody = 10 << 20

// QueuedMessage is the human-readable note on a deferred write.
const QueuedMessage = "request queued offline; it will be sent when the connection returns"

// StatusClientClosedRequest is logged and written when the page gives up
// on a request before the upstream answers.
const StatusClientClosedRequest = 499

// Hop-by-hop headers are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeHTTP intercepts a request bound for the application origin.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case isEventStream(r):
		a.stream.ServeHTTP(w, r)
	case a.isAPI(r) && r.Method == http.MethodGet:
		a.serveAPIRead(w, r)
	case a.isAPI(r) && domain.IsMutatingMethod(r.Method):
		a.serveAPIWrite(w, r)
	case r.Method == http.MethodGet:
		a.serveClassified(w, r)
	default:
		a.passThrough(w, r, nil)
	}
}

func (a *Agent) isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, a.classifier.APIPrefix)
}

func isEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// serveAPIRead is network first with the api cache as fallback.
func (a *Agent) serveAPIRead(w http.ResponseWriter, r *http.Request) {
	resp, err := a.forward(r, nil)
	if err != nil {
		if clientGone(r) {
			a.abandoned(w, r, err)
			return
		}
		a.broadcastOffline()
		if a.serveFromCache(w, r, cache.ClassAPI) {
			return
		}
		writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable.WithCause(err))
		return
	}
	defer resp.Body.Close()
	a.relay(w, r, resp, &cache.ClassAPI)
}

// serveAPIWrite forwards a mutation and queues it when the upstream
// cannot be reached.
func (a *Agent) serveAPIWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBufferedBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrBadRequest.WithCause(err))
		return
	}
	if len(body) > MaxBufferedBody {
		writeError(w, http.StatusRequestEntityTooLarge, domain.ErrBadRequest.WithDetails("request body too large"))
		return
	}

	resp, err := a.forward(r, body)
	if err == nil {
		defer resp.Body.Close()
		a.relay(w, r, resp, nil)
		return
	}
	if clientGone(r) {
		// The upstream may already have applied the write; queueing it
		// would replay it a second time.
		a.abandoned(w, r, err)
		return
	}

	item, qerr := a.queue.Enqueue(r.Context(), r.Method, r.URL.RequestURI(), string(body))
	if qerr != nil {
		a.logger.ErrorContext(r.Context(), "could not queue request", "method", r.Method, "url", r.URL.RequestURI(), "error", qerr)
		writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable.WithCause(err))
		return
	}
	if a.metrics != nil {
		a.metrics.IncQueued()
	}
	if n, lerr := a.queue.Len(r.Context()); lerr == nil {
		a.setQueueDepth(n)
	}

	a.events.Broadcast(domain.Event{Type: domain.EventRequestQueued, Data: map[string]string{
		"syncId": item.ID,
		"url":    item.URL,
		"method": item.Method,
	}})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"queued":  true,
		"message": QueuedMessage,
	})
}

// serveClassified is network first with class caching for GETs outside
// the API prefix.
func (a *Agent) serveClassified(w http.ResponseWriter, r *http.Request) {
	class, ok := a.classifier.Classify(r)
	if !ok {
		a.passThrough(w, r, nil)
		return
	}

	resp, err := a.forward(r, nil)
	if err != nil {
		if clientGone(r) {
			a.abandoned(w, r, err)
			return
		}
		if a.serveFromCache(w, r, class) {
			return
		}
		if cache.IsNavigation(r) && a.serveShellFallback(w, r) {
			return
		}
		writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable.WithCause(err))
		return
	}
	defer resp.Body.Close()
	a.relay(w, r, resp, &class)
}

func (a *Agent) passThrough(w http.ResponseWriter, r *http.Request, body []byte) {
	if body == nil && r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, MaxBufferedBody+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.ErrBadRequest.WithCause(err))
			return
		}
	}
	resp, err := a.forward(r, body)
	if err != nil {
		writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable.WithCause(err))
		return
	}
	defer resp.Body.Close()
	a.relay(w, r, resp, nil)
}

// forward sends r upstream. Only transport failures are errors; any HTTP
// response marks the upstream online.
func (a *Agent) forward(r *http.Request, body []byte) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, a.upstreamURL(r.URL.Path, r.URL.RawQuery), rd)
	if err != nil {
		return nil, err
	}
	copyHeader(out.Header, r.Header)
	out.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := a.client.Do(out)
	if err != nil {
		if clientGone(r) {
			// Cancelled or timed out by the page; that says nothing about
			// the upstream.
			return nil, err
		}
		a.markOffline(err)
		return nil, err
	}
	a.markOnline()
	return resp, nil
}

// clientGone reports whether the page cancelled r or let it time out.
func clientGone(r *http.Request) bool {
	return r.Context().Err() != nil
}

func (a *Agent) abandoned(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.DebugContext(r.Context(), "client abandoned request",
		"method", r.Method,
		"url", r.URL.RequestURI(),
		"cause", context.Cause(r.Context()),
		"error", err)
	w.WriteHeader(StatusClientClosedRequest)
}

// relay copies resp to w. When class is set and the status is 200, the
// body is also stored in the class cache.
func (a *Agent) relay(w http.ResponseWriter, r *http.Request, resp *http.Response, class *cache.Class) {
	var body io.Reader = resp.Body
	if class != nil && resp.StatusCode == http.StatusOK {
		buf, err := io.ReadAll(io.LimitReader(resp.Body, MaxBufferedBody+1))
		switch {
		case err != nil:
			a.logger.WarnContext(r.Context(), "read upstream body", "url", r.URL.Path, "error", err)
		case len(buf) <= MaxBufferedBody:
			a.store(r, *class, resp, buf)
		}
		body = io.MultiReader(bytes.NewReader(buf), resp.Body)
	}

	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, body); err != nil {
		a.logger.DebugContext(r.Context(), "relay interrupted", "url", r.URL.Path, "error", err)
	}
}

func (a *Agent) store(r *http.Request, class cache.Class, resp *http.Response, body []byte) {
	ctx := context.WithoutCancel(r.Context())
	c, err := a.cache.Open(ctx, class.Name())
	if err == nil {
		header := resp.Header.Clone()
		for _, h := range hopHeaders {
			header.Del(h)
		}
		err = c.Put(ctx, r, resp.StatusCode, header, body)
	}
	if err != nil {
		a.logger.WarnContext(ctx, "cache store failed", "cache", class.Name(), "url", r.URL.Path, "error", err)
	}
}

func (a *Agent) serveFromCache(w http.ResponseWriter, r *http.Request, class cache.Class) bool {
	c, err := a.cache.Open(r.Context(), class.Name())
	if err != nil {
		return false
	}
	entry, err := c.Match(r.Context(), r)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordCacheLookup(class.Key, "miss")
		}
		return false
	}
	if a.metrics != nil {
		a.metrics.RecordCacheLookup(class.Key, "hit")
	}
	writeEntry(w, entry)
	return true
}

// serveShellFallback answers an offline navigation with the cached shell.
func (a *Agent) serveShellFallback(w http.ResponseWriter, r *http.Request) bool {
	root := r.Clone(r.Context())
	root.URL = &url.URL{Path: "/"}
	return a.serveFromCache(w, root, cache.ClassShell)
}

func (a *Agent) newStreamProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(a.upstream)
			pr.SetXForwarded()
		},
		Transport:     a.client.Transport,
		FlushInterval: -1,
		ModifyResponse: func(*http.Response) error {
			a.markOnline()
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if r.Context().Err() == nil {
				a.markOffline(err)
			}
			writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable.WithCause(err))
		},
	}
}

func writeEntry(w http.ResponseWriter, e *cache.Entry) {
	copyHeader(w.Header(), e.Header)
	w.Header().Set(CacheHeader, "hit")
	w.WriteHeader(e.Status)
	w.Write(e.Body)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, domain.Fail(err))
}

package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

var errOverridesNoBytes = errors.New("confloader: overrides are read as a map, not bytes")

// overrides is the koanf provider for values given on the command line.
// Keys are dotted config paths such as "server.http.addr". Empty strings
// are dropped so an unset flag never masks the file or the environment.
type overrides map[string]any

func (o overrides) ReadBytes() ([]byte, error) {
	return nil, errOverridesNoBytes
}

func (o overrides) Read() (map[string]any, error) {
	set := make(map[string]any, len(o))
	for k, v := range o {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		set[k] = v
	}
	return maps.Unflatten(set, "."), nil
}

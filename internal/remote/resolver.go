// Package remote talks to the submission API and the flat JSON data tree.
package remote

import (
	"fmt"
	"strings"

	"github.com/wearesierraleone/frontend/internal/config"
)

// EndpointResolver decides where writes and reads go for one deployment.
type EndpointResolver interface {
	// APIBase is the base URL of the submission API. ok is false when the
	// deployment has none, which makes the device permanently offline for
	// sync purposes.
	APIBase() (base string, ok bool)
	// DataURL is the absolute URL of a document under /data.
	DataURL(path string) string
	Mode() string
}

// NewResolver picks the resolver for mode.
//
//	local       dev server on one origin serves both /data and the API
//	static-demo read-only data files, no API
//	hosted-api  deployed API plus data files, possibly on another host
func NewResolver(mode, apiBase, dataBase string) (EndpointResolver, error) {
	apiBase = strings.TrimRight(apiBase, "/")
	dataBase = strings.TrimRight(dataBase, "/")
	if dataBase == "" {
		dataBase = apiBase
	}

	switch mode {
	case config.ModeLocal:
		return sameOrigin{base: apiBase, data: dataBase, mode: mode}, nil
	case config.ModeHostedAPI:
		if apiBase == "" {
			return nil, fmt.Errorf("%s mode needs an API base URL", mode)
		}
		return sameOrigin{base: apiBase, data: dataBase, mode: mode}, nil
	case config.ModeStaticDemo:
		return staticDemo{data: dataBase}, nil
	}
	return nil, fmt.Errorf("unknown deployment mode %q", mode)
}

type sameOrigin struct {
	base, data, mode string
}

func (r sameOrigin) APIBase() (string, bool) { return r.base, r.base != "" }
func (r sameOrigin) DataURL(path string) string {
	return dataURL(r.data, path)
}
func (r sameOrigin) Mode() string { return r.mode }

type staticDemo struct {
	data string
}

func (staticDemo) APIBase() (string, bool) { return "", false }
func (r staticDemo) DataURL(path string) string {
	return dataURL(r.data, path)
}
func (staticDemo) Mode() string { return config.ModeStaticDemo }

func dataURL(base, path string) string {
	return base + "/data/" + strings.TrimLeft(path, "/")
}

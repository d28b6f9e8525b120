// Package fetch retrieves the runtime archive from a local path, an
// http(s) URL or an sftp URL, and unpacks it.
package fetch

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Kind is the transport a source is fetched with.
type Kind string

const (
	KindPath Kind = "path"
	KindHTTP Kind = "http"
	KindSFTP Kind = "sftp"
)

// Source is a parsed archive location.
type Source struct {
	Kind Kind

	// Path is the local path for KindPath.
	Path string

	// URL is set for KindHTTP and KindSFTP.
	URL *url.URL
}

// ParseSource accepts an absolute or relative path, a file:// URL, an
// http(s):// URL or an sftp:// URL.
func ParseSource(raw string) (Source, error) {
	if raw == "" {
		return Source{}, fmt.Errorf("empty source")
	}

	if !strings.Contains(raw, "://") {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return Source{}, fmt.Errorf("failed to resolve %s: %w", raw, err)
		}
		return Source{Kind: KindPath, Path: abs}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, fmt.Errorf("invalid source %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return Source{}, fmt.Errorf("file URL %q has no path", raw)
		}
		return Source{Kind: KindPath, Path: u.Path}, nil
	case "http", "https":
		if u.Host == "" {
			return Source{}, fmt.Errorf("URL %q has no host", raw)
		}
		return Source{Kind: KindHTTP, URL: u}, nil
	case "sftp":
		if u.Host == "" || u.Path == "" {
			return Source{}, fmt.Errorf("sftp URL %q needs a host and a path", raw)
		}
		return Source{Kind: KindSFTP, URL: u}, nil
	default:
		return Source{}, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

// String renders the source without any password.
func (s Source) String() string {
	if s.Kind == KindPath {
		return s.Path
	}
	if s.URL == nil {
		return ""
	}
	return s.URL.Redacted()
}

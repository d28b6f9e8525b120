package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/transports/ssh"
)

// Options tune how sources are fetched.
type Options struct {
	// SSLCertFile is a PEM bundle trusted in addition to the system roots
	// for https sources.
	SSLCertFile string

	// HTTPClient overrides the client built from SSLCertFile.
	HTTPClient *http.Client

	// SSHConfig adjusts the SSH configuration derived from an sftp URL.
	SSHConfig func(*ssh.Config)
}

// Fetch copies the content of src into dst and returns the byte count.
func Fetch(ctx context.Context, src Source, dst io.Writer, opts Options) (int64, error) {
	start := time.Now()

	var (
		n   int64
		err error
	)
	switch src.Kind {
	case KindPath:
		n, err = fetchPath(src.Path, dst)
	case KindHTTP:
		n, err = fetchHTTP(ctx, src, dst, opts)
	case KindSFTP:
		n, err = fetchSFTP(ctx, src, dst, opts)
	default:
		return 0, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
	if err != nil {
		return n, fmt.Errorf("failed to fetch %s: %w", src, err)
	}

	log.Debug().
		Str("source", src.String()).
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Msg("Fetched archive")
	return n, nil
}

func fetchPath(path string, dst io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

func fetchHTTP(ctx context.Context, src Source, dst io.Writer, opts Options) (int64, error) {
	client := opts.HTTPClient
	if client == nil {
		var err error
		client, err = newHTTPClient(opts.SSLCertFile)
		if err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "froyo-installer")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.Copy(dst, resp.Body)
}

// newHTTPClient trusts the system roots plus the certificates in
// sslCertFile, and honors proxy environment variables.
func newHTTPClient(sslCertFile string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	if sslCertFile != "" {
		pem, err := os.ReadFile(sslCertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate bundle %s: %w", sslCertFile, err)
		}

		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", sslCertFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	return &http.Client{Transport: transport}, nil
}

func fetchSFTP(ctx context.Context, src Source, dst io.Writer, opts Options) (int64, error) {
	config, err := ssh.ConfigFromURL(src.URL)
	if err != nil {
		return 0, err
	}
	if opts.SSHConfig != nil {
		opts.SSHConfig(config)
	}

	client, err := ssh.Dial(ctx, config)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	return client.Download(ctx, src.URL.Path, dst)
}

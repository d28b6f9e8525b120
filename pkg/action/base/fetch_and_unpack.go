package base

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/pkg/action"
	"github.com/openfroyo/installer/pkg/fetch"
)

// FetchAndUnpack downloads the Nix archive and unpacks it into Dest.
type FetchAndUnpack struct {
	URL         string `json:"url"`
	Dest        string `json:"dest"`
	SSLCertFile string `json:"ssl_cert_file,omitempty"`
}

// PlanFetchAndUnpack plans fetching url into dest. The url must parse as a
// supported source.
func PlanFetchAndUnpack(url, dest, sslCertFile string) (*action.Stateful[*FetchAndUnpack], error) {
	if _, err := fetch.ParseSource(url); err != nil {
		return nil, action.Wrap(TagFetchAndUnpack, err)
	}
	return action.NewUncompleted(&FetchAndUnpack{URL: url, Dest: dest, SSLCertFile: sslCertFile}), nil
}

// Tag implements action.Action.
func (a *FetchAndUnpack) Tag() action.Tag { return TagFetchAndUnpack }

// Synopsis implements action.Action.
func (a *FetchAndUnpack) Synopsis() string {
	src, err := fetch.ParseSource(a.URL)
	if err != nil {
		return fmt.Sprintf("Fetch Nix to `%s`", a.Dest)
	}
	return fmt.Sprintf("Fetch `%s` to `%s`", src, a.Dest)
}

// ExecuteDescription implements action.Action.
func (a *FetchAndUnpack) ExecuteDescription() []action.Description {
	return action.Describe(a.Synopsis())
}

// RevertDescription is empty: the unpacked tree is removed with the
// scratch directory.
func (a *FetchAndUnpack) RevertDescription() []action.Description {
	return nil
}

// Execute removes a stale Dest left by a previous attempt, downloads the
// archive to a temporary file and unpacks it.
func (a *FetchAndUnpack) Execute(ctx context.Context) error {
	src, err := fetch.ParseSource(a.URL)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(a.Dest); err != nil {
		return fmt.Errorf("failed to remove %s: %w", a.Dest, err)
	}

	tmp, err := os.CreateTemp("", "froyo-nix-*.tar")
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	start := time.Now()
	n, err := fetch.Fetch(ctx, src, tmp, fetch.Options{SSLCertFile: a.SSLCertFile})
	if err != nil {
		return err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", tmp.Name(), err)
	}

	if err := fetch.Unpack(ctx, tmp, a.Dest); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", src, err)
	}

	log.Debug().
		Str("source", src.String()).
		Str("dest", a.Dest).
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Msg("Unpacked Nix archive")
	return nil
}

// Revert implements action.Action.
func (a *FetchAndUnpack) Revert(ctx context.Context) error {
	return nil
}

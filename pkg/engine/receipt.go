package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// DefaultReceiptPath is where plans are persisted unless configured
// otherwise.
const DefaultReceiptPath = "/nix/receipt.json"

// WriteReceipt persists plan at path. The plan is written to a temporary
// file in the same directory, synced, then renamed over path, so path always
// holds either the previous or the new complete receipt.
func WriteReceipt(plan *InstallPlan, path string) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return NewError(ErrorKindReceipt, "failed to serialize receipt", err).WithPath(path)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewError(ErrorKindReceipt, "failed to create receipt directory", err).WithPath(dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return NewError(ErrorKindReceipt, "failed to create temporary receipt", err).WithPath(path)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return NewError(ErrorKindReceipt, "failed to write receipt", err).WithPath(tmpPath)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return NewError(ErrorKindReceipt, "failed to set receipt permissions", err).WithPath(tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		return NewError(ErrorKindReceipt, "failed to sync receipt", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return NewError(ErrorKindReceipt, "failed to close receipt", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return NewError(ErrorKindReceipt, "failed to move receipt into place", err).WithPath(path)
	}

	success = true
	log.Debug().Str("path", path).Msg("Wrote receipt")
	return nil
}

// LoadReceipt reads the plan persisted at path. The returned plan writes
// further checkpoints back to path.
func LoadReceipt(path string, opts ...Option) (*InstallPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(ErrorKindReceipt, "failed to read receipt", err).WithPath(path)
	}

	plan := &InstallPlan{}
	if err := json.Unmarshal(data, plan); err != nil {
		return nil, NewError(ErrorKindReceipt, "failed to parse receipt", err).WithPath(path)
	}

	plan.receiptPath = path
	plan.Configure(opts...)
	return plan, nil
}

// ReceiptExists reports whether a receipt is present at path.
func ReceiptExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, NewError(ErrorKindReceipt, "failed to stat receipt", err).WithPath(path)
}

// RemoveReceipt deletes the receipt at path; a missing receipt is not an
// error.
func RemoveReceipt(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewError(ErrorKindReceipt, "failed to remove receipt", err).WithPath(path)
	}
	return nil
}

// writeReceipt checkpoints the plan at its configured path.
func (p *InstallPlan) writeReceipt() error {
	return WriteReceipt(p, p.receiptPath)
}

// writeReceiptBestEffort checkpoints the plan on a failure path. A write
// failure is logged and swallowed so the original failure propagates.
func (p *InstallPlan) writeReceiptBestEffort(reason string) {
	if err := p.writeReceipt(); err != nil {
		log.Error().
			Err(err).
			Str("path", p.receiptPath).
			Msg(fmt.Sprintf("Failed to write receipt after %s", reason))
	}
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/installer/pkg/action"
)

func TestReceiptRoundTrip(t *testing.T) {
	steps := newSteps(&journal{}, &stepAction{Name: "1"}, &stepAction{Name: "2"})
	steps[0] = action.Erase(action.NewCompleted(steps[0].Inner().(*stepAction)))
	plan := newTestPlan(t, &fakePlanner{actions: steps, Configured: map[string]any{"name": "x"}})

	if err := WriteReceipt(plan, plan.ReceiptPath()); err != nil {
		t.Fatalf("WriteReceipt() error = %v", err)
	}

	data, err := os.ReadFile(plan.ReceiptPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Error("receipt does not end with a newline")
	}
	if !strings.Contains(string(data), `"planner": "test"`) || !strings.Contains(string(data), `"action_name": "test_step"`) {
		t.Errorf("receipt lacks tags:\n%s", data)
	}

	loaded, err := LoadReceipt(plan.ReceiptPath())
	if err != nil {
		t.Fatalf("LoadReceipt() error = %v", err)
	}
	if loaded.Version != plan.Version || loaded.Planner.Tag() != "test" {
		t.Errorf("loaded plan = %+v", loaded)
	}
	if loaded.ReceiptPath() != plan.ReceiptPath() {
		t.Errorf("ReceiptPath() = %s, want %s", loaded.ReceiptPath(), plan.ReceiptPath())
	}
	if got := states(loaded); got[0] != action.Completed || got[1] != action.Uncompleted {
		t.Errorf("states = %v", got)
	}
	if loaded.Actions[1].Inner().(*stepAction).Name != "2" {
		t.Error("action fields not restored")
	}
	if _, ok := loaded.selfTester.(*fakePlanner); !ok {
		t.Error("planner self tester not picked up after load")
	}
}

func TestWriteReceiptLeavesNoTempFiles(t *testing.T) {
	plan := newTestPlan(t, &fakePlanner{})
	for i := 0; i < 3; i++ {
		if err := WriteReceipt(plan, plan.ReceiptPath()); err != nil {
			t.Fatalf("WriteReceipt() error = %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(plan.ReceiptPath()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only the receipt", names)
	}
}

func TestWriteReceiptError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	plan := newTestPlan(t, &fakePlanner{})
	err := WriteReceipt(plan, filepath.Join(blocker, "receipt.json"))

	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Kind != ErrorKindReceipt {
		t.Fatalf("WriteReceipt() error = %v, want receipt-kind *Error", err)
	}
}

func TestLoadReceiptErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{"},
		{"unknown planner", `{"version":"0.1.0","actions":[],"planner":{"planner":"macos"}}`},
		{"unknown action", `{"version":"0.1.0","actions":[{"action":{"action_name":"nope"},"state":"Completed"}],"planner":{"planner":"test"}}`},
		{"missing version", `{"actions":[],"planner":{"planner":"test"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadReceipt(path)
			var engineErr *Error
			if !errors.As(err, &engineErr) || engineErr.Kind != ErrorKindReceipt {
				t.Errorf("LoadReceipt() error = %v, want receipt-kind *Error", err)
			}
		})
	}

	if _, err := LoadReceipt(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadReceipt() on a missing file should fail")
	}
}

func TestReceiptExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.json")

	exists, err := ReceiptExists(path)
	if err != nil || exists {
		t.Fatalf("ReceiptExists() = %v, %v; want false, nil", exists, err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if exists, _ := ReceiptExists(path); !exists {
		t.Error("ReceiptExists() = false after write")
	}
	if err := RemoveReceipt(path); err != nil {
		t.Fatalf("RemoveReceipt() error = %v", err)
	}
	if err := RemoveReceipt(path); err != nil {
		t.Errorf("RemoveReceipt() on missing file error = %v", err)
	}
}

func TestInstallRejectsIncompatibleReceipt(t *testing.T) {
	plan := newTestPlan(t, &fakePlanner{actions: newSteps(&journal{}, &stepAction{Name: "1"})})
	plan.Version = "9999999999.0.0"

	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatal(err)
	}
	var reloaded InstallPlan
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatal(err)
	}
	reloaded.Configure(WithReceiptPath(plan.ReceiptPath()))

	err = reloaded.Uninstall(context.Background(), nil)
	if !IsIncompatibleVersion(err) {
		t.Fatalf("Uninstall() error = %v, want incompatible version", err)
	}
	if !errors.Is(err, &Error{Kind: ErrorKindIncompatibleVersion}) {
		t.Error("incompatible version error does not match its kind")
	}
}

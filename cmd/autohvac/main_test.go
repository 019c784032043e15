package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/climate"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSampleThenRun(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "plan.pdf")
	if _, err := execute(t, "sample", pdfPath); err != nil {
		t.Fatalf("sample: %v", err)
	}

	outPath := filepath.Join(dir, "load.json")
	if _, err := execute(t, "run", pdfPath, "--zip", "97701", "-o", outPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc pipeline.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Blueprint == nil || len(doc.Blueprint.Rooms) == 0 {
		t.Fatal("result has no rooms")
	}
	if doc.Load == nil || doc.Load.Heating <= 0 || doc.Load.Cooling <= 0 {
		t.Errorf("load = %+v", doc.Load)
	}
}

func TestRunRejectsBadZIP(t *testing.T) {
	pdfPath := filepath.Join(t.TempDir(), "plan.pdf")
	if _, err := execute(t, "sample", pdfPath); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "run", pdfPath, "--zip", "12")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(out, "needs_input") {
		t.Errorf("stderr lacks the structured error: %s", out)
	}
}

func TestClimateCommand(t *testing.T) {
	out, err := execute(t, "climate", "97701")
	if err != nil {
		t.Fatal(err)
	}
	var rec climate.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if rec.ZIP != "97701" || rec.HeatingDesignF >= rec.CoolingDesignF {
		t.Errorf("record = %+v", rec)
	}
}

func TestStopOnDrain(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx := stopOnDrain(parent, context.Background(), 20*time.Millisecond)

	cancelParent()
	select {
	case <-ctx.Done():
		t.Fatal("ended before the grace period")
	case <-time.After(5 * time.Millisecond):
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("did not end after the grace period")
	}
}

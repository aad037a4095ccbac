package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1broseidon/occlude/internal/geometry"
	"github.com/1broseidon/occlude/internal/occlusion"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect([]string{"0", "10", "100", "40"})
	if err != nil {
		t.Fatalf("parseRect: %v", err)
	}
	want := geometry.Rect{Left: 0, Top: 10, Right: 100, Bottom: 40}
	if r != want {
		t.Fatalf("parseRect = %v, want %v", r, want)
	}

	for _, args := range [][]string{
		{"1", "2", "3"},
		{"a", "0", "1", "1"},
		{"10", "0", "5", "5"},
	} {
		if _, err := parseRect(args); err == nil {
			t.Errorf("parseRect(%v) expected error", args)
		}
	}
}

func TestFeedBatches(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":10,"reports":[{"key":"a","rect":{"left":0,"top":0,"right":5,"bottom":5},"visible":true}]}`,
		``,
		`{"timestamp":20,"reports":[{"key":"a","visible":false}]}`,
	}, "\n")

	var got []occlusion.Batch
	n, err := feedBatches(strings.NewReader(input), func(b occlusion.Batch) error {
		got = append(got, b)
		return nil
	})
	if err != nil {
		t.Fatalf("feedBatches: %v", err)
	}
	if n != 2 || len(got) != 2 {
		t.Fatalf("sent %d batches (%d recorded), want 2", n, len(got))
	}
	if got[0].Timestamp != 10 || got[1].Timestamp != 20 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Reports[0].Rect == nil || got[1].Reports[0].Rect != nil {
		t.Fatalf("rect presence not preserved: %+v", got)
	}
}

func TestFeedBatchesStopsOnError(t *testing.T) {
	input := "{\"timestamp\":1}\nnot json\n{\"timestamp\":3}\n"
	n, err := feedBatches(strings.NewReader(input), func(occlusion.Batch) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v, want line 2 error", err)
	}
	if n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}

	sendErr := errors.New("broken pipe")
	_, err = feedBatches(strings.NewReader("{\"timestamp\":1}\n"), func(occlusion.Batch) error { return sendErr })
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}
}

func TestRunConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("aggregator:\n  padding: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("aggregator:\n  padding: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if rc := runConfig([]string{"validate", "--path", good}); rc != 0 {
		t.Fatalf("validate good rc=%d, want 0", rc)
	}
	if rc := runConfig([]string{"validate", "--path", bad}); rc != 1 {
		t.Fatalf("validate bad rc=%d, want 1", rc)
	}
	if rc := runConfig([]string{"frobnicate"}); rc != 2 {
		t.Fatalf("unknown subcommand rc=%d, want 2", rc)
	}
}

func TestRunConfigInit(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "occlude", name)

			if rc := runConfig([]string{"init", "--path", path}); rc != 0 {
				t.Fatalf("init rc=%d, want 0", rc)
			}
			if rc := runConfig([]string{"validate", "--path", path}); rc != 0 {
				t.Fatalf("validate written file rc=%d, want 0", rc)
			}
			if rc := runConfig([]string{"init", "--path", path}); rc != 1 {
				t.Fatalf("init over existing file rc=%d, want 1", rc)
			}
			if rc := runConfig([]string{"init", "--path", path, "--force"}); rc != 0 {
				t.Fatalf("init --force rc=%d, want 0", rc)
			}
		})
	}
}

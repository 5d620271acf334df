package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// testFile creates a DataFile in a temp dir and waits for the load.
func testFile(t *testing.T, defaultValue testDoc) *DataFile[testDoc] {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doc.json")
	d, err := New(path, defaultValue)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	waitLoaded(t, d)
	return d
}

func waitLoaded(t *testing.T, d *DataFile[testDoc]) {
	t.Helper()

	loaded := make(chan struct{})
	d.OnLoaded(func() { close(loaded) })
	select {
	case <-loaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for load")
	}
}

func TestMissingFileUsesDefault(t *testing.T) {
	d := testFile(t, testDoc{Name: "fallback", Count: 7})

	contents, ok := d.Contents()
	if !ok {
		t.Fatal("expected load to complete")
	}
	if contents.Name != "fallback" || contents.Count != 7 {
		t.Errorf("unexpected default contents: %+v", contents)
	}
}

func TestWriteBeforeLoadFails(t *testing.T) {
	// Point the load at a large-ish missing dir structure so New returns
	// before the worker flips loaded. Even if the load wins the race, the
	// error path is exercised by the closed-store write below.
	path := filepath.Join(t.TempDir(), "doc.json")
	d, err := New(path, testDoc{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer d.Close()

	if err := d.Write(testDoc{Name: "x"}); err != nil && err != ErrNotLoaded {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWritePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	d, err := New(path, testDoc{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	waitLoaded(t, d)

	if err := d.Write(testDoc{Name: "kept", Count: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh store over the same path sees the written value.
	d2, err := New(path, testDoc{})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer d2.Close()
	waitLoaded(t, d2)

	contents, _ := d2.Contents()
	if contents.Name != "kept" || contents.Count != 3 {
		t.Errorf("unexpected reloaded contents: %+v", contents)
	}
}

func TestCoalescingKeepsLatest(t *testing.T) {
	d := testFile(t, testDoc{})

	for i := 1; i <= 50; i++ {
		if err := d.Write(testDoc{Name: "burst", Count: i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// The cache and the file both hold the final value.
	contents, _ := d.Contents()
	if contents.Count != 50 {
		t.Errorf("expected cached count 50, got %d", contents.Count)
	}

	data, err := os.ReadFile(d.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var onDisk testDoc
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if onDisk.Count != 50 {
		t.Errorf("expected persisted count 50, got %d", onDisk.Count)
	}
}

func TestNoTempFileLeftBehind(t *testing.T) {
	d := testFile(t, testDoc{})

	if err := d.Write(testDoc{Name: "atomic"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if _, err := os.Stat(d.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be renamed away, stat err: %v", err)
	}

	// The canonical file is a complete, parseable document.
	data, err := os.ReadFile(d.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc testDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Errorf("canonical file is not valid JSON: %v", err)
	}
}

func TestCorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := New(path, testDoc{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer d.Close()
	waitLoaded(t, d)

	if d.Err() == nil {
		t.Error("expected fatal error for corrupt file")
	}
	if _, ok := d.Contents(); ok {
		t.Error("expected Contents ok=false after fatal load error")
	}
	if err := d.Write(testDoc{}); err == nil {
		t.Error("expected write to fail after fatal error")
	}
}

package pool

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const (
	testMaxArchiveSize = 10 << 20
	testMaxEntries     = 1220
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "configs")
	issuedDir := filepath.Join(base, "issued")
	for _, d := range []string{dir, issuedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	return New(dir, issuedDir, testMaxArchiveSize, testMaxEntries)
}

func seedFile(t *testing.T, p *Pool, name, payload string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(p.dir, name), []byte(payload), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, payload := range files {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err = entry.Write([]byte(payload)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestAvailableIsLexicographicAndFiltersNonConf(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "b.conf", "b")
	seedFile(t, p, "a.conf", "a")
	seedFile(t, p, "notes.txt", "x")

	names, err := p.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(names) != 2 || names[0] != "a.conf" || names[1] != "b.conf" {
		t.Fatalf("unexpected listing: %v", names)
	}
}

func TestTakeNextReturnsFirstAndRemoves(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "a.conf", "payload-a")
	seedFile(t, p, "b.conf", "payload-b")

	cred, err := p.TakeNext()
	if err != nil {
		t.Fatalf("take next: %v", err)
	}
	if cred.Filename != "a.conf" || string(cred.Payload) != "payload-a" {
		t.Fatalf("unexpected credential: %s %q", cred.Filename, cred.Payload)
	}

	names, err := p.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(names) != 1 || names[0] != "b.conf" {
		t.Fatalf("expected only b.conf left, got %v", names)
	}
}

func TestTakeNextExhausted(t *testing.T) {
	p := newTestPool(t)

	if _, err := p.TakeNext(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestConcurrentTakeNextNeverDuplicates(t *testing.T) {
	p := newTestPool(t)
	const size = 8
	for i := 0; i < size; i++ {
		seedFile(t, p, fmt.Sprintf("key-%02d.conf", i), "payload")
	}

	const workers = size + 5
	results := make(chan string, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			cred, err := p.TakeNext()
			if err != nil {
				if !errors.Is(err, ErrExhausted) {
					t.Errorf("take next: %v", err)
				}
				return
			}
			results <- cred.Filename
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for name := range results {
		if seen[name] {
			t.Fatalf("credential %s issued twice", name)
		}
		seen[name] = true
	}
	if len(seen) != size {
		t.Fatalf("expected %d unique credentials issued, got %d", size, len(seen))
	}
}

func TestRestoreReturnsCredentialToPool(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "a.conf", "payload")

	cred, err := p.TakeNext()
	if err != nil {
		t.Fatalf("take next: %v", err)
	}
	if err = p.Restore(cred.Filename); err != nil {
		t.Fatalf("restore: %v", err)
	}

	names, err := p.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(names) != 1 || names[0] != "a.conf" {
		t.Fatalf("expected a.conf back in pool, got %v", names)
	}
}

func TestFinishDiscardsStagedCopy(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "a.conf", "payload")

	cred, err := p.TakeNext()
	if err != nil {
		t.Fatalf("take next: %v", err)
	}
	if err = p.Finish(cred.Filename); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err = os.Stat(filepath.Join(p.issuedDir, "a.conf")); !os.IsNotExist(err) {
		t.Fatalf("expected staged copy removed, stat err=%v", err)
	}
}

func TestReconcileResolvesStagedLeftovers(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "recorded.conf", "x")
	seedFile(t, p, "lost.conf", "y")
	// Simulate a crash after both were taken but only one was recorded.
	if _, err := p.TakeNext(); err != nil {
		t.Fatalf("take next: %v", err)
	}
	if _, err := p.TakeNext(); err != nil {
		t.Fatalf("take next: %v", err)
	}

	returned, discarded, err := p.Reconcile(func(name string) bool {
		return name == "recorded.conf"
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if returned != 1 || discarded != 1 {
		t.Fatalf("expected returned=1 discarded=1, got %d/%d", returned, discarded)
	}

	names, err := p.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(names) != 1 || names[0] != "lost.conf" {
		t.Fatalf("expected lost.conf returned to pool, got %v", names)
	}
}

func TestIngestArchiveCountsAddedAndReplaced(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "one.conf", "old")

	data := buildZip(t, map[string]string{
		"one.conf":   "new",
		"two.conf":   "2",
		"three.conf": "3",
	})

	added, replaced, err := p.IngestArchive(data)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if added != 2 || replaced != 1 {
		t.Fatalf("expected added=2 replaced=1, got %d/%d", added, replaced)
	}

	payload, err := os.ReadFile(filepath.Join(p.dir, "one.conf"))
	if err != nil {
		t.Fatalf("read replaced file: %v", err)
	}
	if string(payload) != "new" {
		t.Fatalf("expected replacement payload, got %q", payload)
	}
}

func TestIngestArchiveIdempotenceUnderReplacement(t *testing.T) {
	p := newTestPool(t)
	data := buildZip(t, map[string]string{
		"a.conf": "a",
		"b.conf": "b",
	})

	added, replaced, err := p.IngestArchive(data)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if added != 2 || replaced != 0 {
		t.Fatalf("first ingest: expected added=2 replaced=0, got %d/%d", added, replaced)
	}

	added, replaced, err = p.IngestArchive(data)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if added != 0 || replaced != 2 {
		t.Fatalf("second ingest: expected added=0 replaced=2, got %d/%d", added, replaced)
	}
}

func TestIngestArchiveSkipsPlatformMetadata(t *testing.T) {
	p := newTestPool(t)
	data := buildZip(t, map[string]string{
		"real.conf":           "payload",
		"__MACOSX/junk.conf":  "junk",
		"nested/._ghost.conf": "junk",
		"readme.md":           "junk",
	})

	added, replaced, err := p.IngestArchive(data)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if added != 1 || replaced != 0 {
		t.Fatalf("expected only real.conf ingested, got added=%d replaced=%d", added, replaced)
	}
}

func TestIngestArchiveRejectsMalformedData(t *testing.T) {
	p := newTestPool(t)

	if _, _, err := p.IngestArchive([]byte("not a zip")); !errors.Is(err, ErrBadArchive) {
		t.Fatalf("expected ErrBadArchive, got %v", err)
	}
}

func TestIngestArchiveRejectsOversizedArchive(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "configs")
	issued := filepath.Join(base, "issued")
	os.MkdirAll(dir, 0o755)
	os.MkdirAll(issued, 0o755)
	p := New(dir, issued, 16, testMaxEntries)

	data := buildZip(t, map[string]string{"a.conf": "payload"})
	if _, _, err := p.IngestArchive(data); !errors.Is(err, ErrArchiveTooLarge) {
		t.Fatalf("expected ErrArchiveTooLarge, got %v", err)
	}
}

func TestIngestArchiveEntryCapLeavesPoolUnchanged(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "configs")
	issued := filepath.Join(base, "issued")
	os.MkdirAll(dir, 0o755)
	os.MkdirAll(issued, 0o755)
	p := New(dir, issued, testMaxArchiveSize, 2)

	data := buildZip(t, map[string]string{
		"a.conf": "a",
		"b.conf": "b",
		"c.conf": "c",
	})
	if _, _, err := p.IngestArchive(data); !errors.Is(err, ErrTooManyEntries) {
		t.Fatalf("expected ErrTooManyEntries, got %v", err)
	}

	names, err := p.Available()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected pool unchanged after rejected ingest, got %v", names)
	}
}

func TestReingestAfterIssueAddsAsNew(t *testing.T) {
	p := newTestPool(t)
	seedFile(t, p, "a.conf", "v1")

	cred, err := p.TakeNext()
	if err != nil {
		t.Fatalf("take next: %v", err)
	}
	if err = p.Finish(cred.Filename); err != nil {
		t.Fatalf("finish: %v", err)
	}

	added, replaced, err := p.IngestArchive(buildZip(t, map[string]string{"a.conf": "v2"}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if added != 1 || replaced != 0 {
		t.Fatalf("expected issued filename re-added as new, got added=%d replaced=%d", added, replaced)
	}
}

package urlutil_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/lukemcguire/linkguardian/urlutil"
)

func newDiskSet(t *testing.T) *urlutil.VisitedSet {
	t.Helper()
	vs, err := urlutil.NewVisitedSet(1000)
	if err != nil {
		t.Fatalf("NewVisitedSet() error: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := vs.Close(); closeErr != nil {
			t.Errorf("Close() error: %v", closeErr)
		}
	})
	return vs
}

// TestVisitedSetBasicOperations verifies that Visit marks keys as visited.
func TestVisitedSetBasicOperations(t *testing.T) {
	vs := newDiskSet(t)
	key := "https://example.com/page"

	if vs.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for a new set", vs.Len())
	}

	vs.Visit(key)

	if vs.VisitIfNew(key) {
		t.Error("VisitIfNew() returned true after Visit()")
	}
	if vs.Len() != 1 {
		t.Errorf("Len() = %d, want 1", vs.Len())
	}
}

// TestVisitedSetVisitIfNew verifies VisitIfNew returns true only for the first visit.
func TestVisitedSetVisitIfNew(t *testing.T) {
	vs := urlutil.NewMemoryVisitedSet(0)
	key := "https://example.com/page"

	if !vs.VisitIfNew(key) {
		t.Error("VisitIfNew() returned false for first visit")
	}
	if vs.VisitIfNew(key) {
		t.Error("VisitIfNew() returned true for duplicate visit")
	}
}

// TestVisitedSetConcurrent has many goroutines race to claim the same key.
func TestVisitedSetConcurrent(t *testing.T) {
	vs := newDiskSet(t)

	const numGoroutines = 100
	results := make(chan bool, numGoroutines)

	for range numGoroutines {
		go func() {
			results <- vs.VisitIfNew("https://example.com/concurrent")
		}()
	}

	trueCount := 0
	for range numGoroutines {
		if <-results {
			trueCount++
		}
	}

	if trueCount != 1 {
		t.Errorf("expected exactly 1 successful VisitIfNew, got %d", trueCount)
	}
}

// TestVisitedSetNoFalsePositives adds more keys than the filter estimate and
// checks that unseen keys are never reported as visited.
func TestVisitedSetNoFalsePositives(t *testing.T) {
	vs := newDiskSet(t)

	for i := range 5000 {
		key := fmt.Sprintf("https://example.com/page/%d", i)
		if !vs.VisitIfNew(key) {
			t.Fatalf("VisitIfNew() returned false for unique key %d", i)
		}
	}

	for i := 5000; i < 10000; i++ {
		key := fmt.Sprintf("https://example.com/page/%d", i)
		if !vs.VisitIfNew(key) {
			t.Fatalf("VisitIfNew() reported unseen key %q as visited", key)
		}
	}

	if vs.Len() != 10000 {
		t.Errorf("Len() = %d, want 10000", vs.Len())
	}
	if err := vs.LastError(); err != nil {
		t.Errorf("LastError() = %v, want nil", err)
	}
}

// TestVisitedSetCloseRemovesTempFile verifies Close cleans up and is idempotent.
func TestVisitedSetCloseRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	vs, err := urlutil.NewVisitedSet(100)
	if err != nil {
		t.Fatalf("NewVisitedSet() error: %v", err)
	}
	vs.Visit("https://example.com/")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 backing file, found %d", len(entries))
	}

	if closeErr := vs.Close(); closeErr != nil {
		t.Errorf("Close() error: %v", closeErr)
	}
	if closeErr := vs.Close(); closeErr != nil {
		t.Errorf("second Close() error: %v", closeErr)
	}

	entries, err = os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Close() left %d file(s) behind", len(entries))
	}
}

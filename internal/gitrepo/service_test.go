package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var avery = Author{Name: "Avery Stone", Email: "avery@example.com"}

func TestDocumentRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first := []byte(`{"sections":[{"blocks":[{"inlines":[{"text":"Draft"}]}]}]}`)
	c1, err := svc.CommitVersion("doc-1", first, avery, "v1 edited")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	if len(c1.Hash) != 40 {
		t.Fatalf("expected full commit hash, got %q", c1.Hash)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second := []byte(`{"sections":[{"blocks":[{"inlines":[{"text":"Final"}]}]}]}`)
	c2, err := svc.CommitVersion("doc-1", second, avery, "v2 edited")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}

	got, err := svc.ReadPayload("doc-1", c1.Hash)
	if err != nil {
		t.Fatalf("ReadPayload() error = %v", err)
	}
	if string(got) != string(first) {
		t.Fatalf("v1 payload mismatch: %s", got)
	}
	got, err = svc.ReadPayload("doc-1", c2.Hash[:7])
	if err != nil {
		t.Fatalf("ReadPayload(short) error = %v", err)
	}
	if string(got) != string(second) {
		t.Fatalf("v2 payload mismatch: %s", got)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Hash != c2.Hash || history[0].Author != "Avery Stone" {
		t.Fatalf("unexpected head entry: %+v", history[0])
	}
}

func TestIdenticalPayloadStillCommits(t *testing.T) {
	svc := New(t.TempDir())
	payload := []byte(`{"sections":[]}`)

	c1, err := svc.CommitVersion("doc-1", payload, avery, "v1 edited")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	c2, err := svc.CommitVersion("doc-1", payload, avery, "v2 signed")
	if err != nil {
		t.Fatalf("CommitVersion() error = %v", err)
	}
	if c1.Hash == c2.Hash {
		t.Fatal("expected distinct commits for identical payloads")
	}
	if err := svc.TagVersion("doc-1", c2.Hash, "v2-signed", "signed by Avery"); err != nil {
		t.Fatalf("TagVersion() error = %v", err)
	}
	if err := svc.TagVersion("doc-1", c2.Hash, "v2-signed", "again"); err != nil {
		t.Fatalf("TagVersion() repeat error = %v", err)
	}
}

func TestMissingRepository(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.ReadPayload("nope", "abc1234"); !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
	if _, err := svc.History("nope", 1); !errors.Is(err, ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
}

func TestConcurrentCommitVersion(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"sections":[{"blocks":[{"inlines":[{"text":"writer-%02d"}]}]}]}`, idx))
			if _, err := svc.CommitVersion("doc-1", payload, avery, fmt.Sprintf("commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitVersion() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits in history, got %d", writers, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := authorEmail(Author{Name: "Jane Q-Doe"}); got != "Jane.Q.Doe@users.certifai.local" {
		t.Fatalf("authorEmail() = %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"certifai/api/internal/auth"
	"certifai/api/internal/authpw"
	"certifai/api/internal/gitrepo"
	"certifai/api/internal/store"
)

func TestMapError(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
		code   string
	}{
		{err: domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), status: http.StatusTeapot, code: "TEAPOT"},
		{err: fmt.Errorf("get document: %w", sql.ErrNoRows), status: http.StatusNotFound, code: "NOT_FOUND"},
		{err: auth.ErrExpiredToken, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{err: auth.ErrFingerprintMismatch, status: http.StatusUnauthorized, code: "DEVICE_MISMATCH"},
		{err: fmt.Errorf("create user: %w", store.ErrDuplicateEmail), status: http.StatusConflict, code: "EMAIL_EXISTS"},
		{err: authpw.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{err: store.ErrDocumentArchived, status: http.StatusConflict, code: "DOCUMENT_ARCHIVED"},
		{err: store.ErrVersionConflict, status: http.StatusConflict, code: "VERSION_CONFLICT"},
		{err: store.ErrAlreadyAnchored, status: http.StatusConflict, code: "ALREADY_ANCHORED"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, code: "SERVER_ERROR"},
	} {
		status, code, _, _ := mapError(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("mapError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestNewFallsBackToStoreForSessions(t *testing.T) {
	fs := newFakeStore()
	svc := New(testConfig(), Dependencies{Store: fs}, nil)

	if svc.sessions != fs {
		t.Fatalf("expected store to back sessions when none is configured")
	}
}

func TestCreateDocumentGitFailureStoresNothing(t *testing.T) {
	fs := newFakeStore()
	user := fs.addUser("usr_1", "avery@example.com", "Avery")
	git := &fakeGit{commitFn: func(string, []byte, gitrepo.Author, string) (gitrepo.CommitInfo, error) {
		return gitrepo.CommitInfo{}, errors.New("disk full")
	}}
	svc := newTestService(fs, Dependencies{Git: git})
	session, err := svc.CreateSession(context.Background(), user, "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	_, err = svc.CreateDocument(context.Background(), session, CreateDocumentInput{Title: "Doomed"})
	if err == nil {
		t.Fatalf("expected error when the payload cannot be committed")
	}
	if len(fs.documents) != 0 {
		t.Fatalf("expected no document stored, got %d", len(fs.documents))
	}
}

func TestAppendVersionRecordsCommitHash(t *testing.T) {
	fs := newFakeStore()
	user := fs.addUser("usr_1", "avery@example.com", "Avery")
	var author gitrepo.Author
	git := &fakeGit{commitFn: func(_ string, _ []byte, a gitrepo.Author, message string) (gitrepo.CommitInfo, error) {
		author = a
		if message != "edited: version 1" {
			t.Errorf("unexpected commit message %q", message)
		}
		return gitrepo.CommitInfo{Hash: "0123456789abcdef0123456789abcdef01234567"}, nil
	}}
	svc := newTestService(fs, Dependencies{Git: git})
	session, err := svc.CreateSession(context.Background(), user, "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	payload, err := svc.CreateDocument(context.Background(), session, CreateDocumentInput{Title: "Kept"})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	version, _ := payload["version"].(map[string]any)
	if version["commitHash"] != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("expected commit hash on version, got %v", version["commitHash"])
	}
	if author.Name != "Avery" || author.Email != "avery@example.com" {
		t.Fatalf("unexpected commit author %+v", author)
	}
}

func TestAnchorFailureKeepsCause(t *testing.T) {
	fs := newFakeStore()
	user := fs.addUser("usr_1", "avery@example.com", "Avery")
	errRPC := errors.New("rpc unavailable")
	chain := &fakeAnchor{anchorFn: func(context.Context, string) (string, error) { return "", errRPC }}
	svc := newTestService(fs, Dependencies{Anchor: chain})
	session, err := svc.CreateSession(context.Background(), user, "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	payload, err := svc.CreateDocument(context.Background(), session, CreateDocumentInput{Title: "Anchored"})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	id, _ := payload["id"].(string)

	_, err = svc.AnchorVersion(context.Background(), session, id, 1)
	if !errors.Is(err, errRPC) {
		t.Fatalf("expected anchor error to wrap the rpc failure, got %v", err)
	}
	status, code, _, details := mapError(err)
	if status != http.StatusBadGateway || code != "ANCHOR_FAILED" {
		t.Fatalf("mapError() = %d %s, want 502 ANCHOR_FAILED", status, code)
	}
	if reason, _ := details.(map[string]any)["reason"].(string); reason != "rpc unavailable" {
		t.Fatalf("expected reason in details, got %v", details)
	}
}

package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"certifai/api/internal/config"
	"certifai/api/internal/draft"
	"certifai/api/internal/email"
	"certifai/api/internal/export"
	"certifai/api/internal/gitrepo"
	"certifai/api/internal/search"
	"certifai/api/internal/store"
)

// fakeStore keeps users, documents and versions in memory with the same
// error contract as the PostgreSQL store.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	documents map[string]store.Document
	versions  map[string][]store.Version
	editors   map[string][]store.Editor
	refresh   map[string]string
	revoked   map[string]bool

	pingFn          func(context.Context) error
	appendVersionFn func(context.Context, store.AppendVersionInput) (store.Version, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		documents: make(map[string]store.Document),
		versions:  make(map[string][]store.Version),
		editors:   make(map[string][]store.Editor),
		refresh:   make(map[string]string),
		revoked:   make(map[string]bool),
	}
}

func (f *fakeStore) addUser(id, emailAddress, fullName string) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := store.User{ID: id, Email: emailAddress, FullName: fullName, PasswordHash: "hash", CreatedAt: time.Now()}
	f.users[id] = user
	return user
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, emailAddress string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == emailAddress {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateDocument(ctx context.Context, doc store.Document, first store.AppendVersionInput) (store.Version, error) {
	f.mu.Lock()
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Editors == nil {
		doc.Editors = []string{}
	}
	if owner, ok := f.users[doc.CreatedBy]; ok {
		doc.CreatorName = owner.FullName
	}
	f.documents[doc.ID] = doc
	f.mu.Unlock()

	first.DocumentID = doc.ID
	first.ExpectedVersion = 0
	version, err := f.AppendVersion(ctx, first)
	if err != nil {
		f.mu.Lock()
		delete(f.documents, doc.ID)
		delete(f.versions, doc.ID)
		f.mu.Unlock()
		return store.Version{}, err
	}
	return version, nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return f.withEditors(doc), nil
}

func (f *fakeStore) withEditors(doc store.Document) store.Document {
	ids := make([]string, 0, len(f.editors[doc.ID]))
	for _, editor := range f.editors[doc.ID] {
		ids = append(ids, editor.UserID)
	}
	doc.Editors = ids
	return doc
}

func (f *fakeStore) ListDocumentsForUser(_ context.Context, userID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	documents := make([]store.Document, 0)
	for _, doc := range f.documents {
		doc = f.withEditors(doc)
		if doc.CreatedBy == userID || doc.HasEditor(userID) || doc.Visibility == store.VisibilityPublic || doc.Visibility == store.VisibilityOrg {
			documents = append(documents, doc)
		}
	}
	sort.Slice(documents, func(i, j int) bool { return documents[i].ID < documents[j].ID })
	return documents, nil
}

func (f *fakeStore) UpdateDocumentTitle(_ context.Context, documentID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Title = title
	f.documents[documentID] = doc
	return nil
}

func (f *fakeStore) UpdateDocumentVisibility(_ context.Context, documentID, visibility string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Visibility = visibility
	f.documents[documentID] = doc
	return nil
}

func (f *fakeStore) AddEditor(_ context.Context, documentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, editor := range f.editors[documentID] {
		if editor.UserID == userID {
			return nil
		}
	}
	user := f.users[userID]
	f.editors[documentID] = append(f.editors[documentID], store.Editor{UserID: userID, Email: user.Email, FullName: user.FullName, AddedAt: time.Now()})
	return nil
}

func (f *fakeStore) RemoveEditor(_ context.Context, documentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	editors := f.editors[documentID]
	for i, editor := range editors {
		if editor.UserID == userID {
			f.editors[documentID] = append(editors[:i:i], editors[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) ListEditors(_ context.Context, documentID string) ([]store.Editor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Editor{}, f.editors[documentID]...), nil
}

func (f *fakeStore) AppendVersion(ctx context.Context, in store.AppendVersionInput) (store.Version, error) {
	if f.appendVersionFn != nil {
		return f.appendVersionFn(ctx, in)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[in.DocumentID]
	if !ok {
		return store.Version{}, sql.ErrNoRows
	}
	if doc.Status == store.StatusArchived {
		return store.Version{}, store.ErrDocumentArchived
	}
	if doc.CurrentVersion != in.ExpectedVersion {
		return store.Version{}, store.ErrVersionConflict
	}
	version := store.Version{
		DocumentID:    in.DocumentID,
		Version:       doc.CurrentVersion + 1,
		Action:        in.Action,
		Payload:       in.Payload,
		ContentHash:   in.ContentHash,
		CommitHash:    in.CommitHash,
		SignatureName: in.SignatureName,
		AuthorID:      in.AuthorID,
		AuthorName:    f.users[in.AuthorID].FullName,
		CreatedAt:     time.Now(),
	}
	f.versions[in.DocumentID] = append(f.versions[in.DocumentID], version)
	doc.CurrentVersion = version.Version
	if in.NewStatus != "" {
		doc.Status = in.NewStatus
	}
	doc.UpdatedAt = version.CreatedAt
	f.documents[in.DocumentID] = doc
	return version, nil
}

func (f *fakeStore) ListVersions(_ context.Context, documentID string) ([]store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := make([]store.Version, 0, len(f.versions[documentID]))
	for _, version := range f.versions[documentID] {
		version.Payload = ""
		versions = append(versions, version)
	}
	return versions, nil
}

func (f *fakeStore) GetVersion(_ context.Context, documentID string, number int) (store.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.versions[documentID]
	if number < 1 || number > len(versions) {
		return store.Version{}, sql.ErrNoRows
	}
	return versions[number-1], nil
}

func (f *fakeStore) AttachVersionTx(_ context.Context, documentID string, number int, txHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.versions[documentID]
	if number < 1 || number > len(versions) {
		return sql.ErrNoRows
	}
	if versions[number-1].TxHash != "" {
		return store.ErrAlreadyAnchored
	}
	versions[number-1].TxHash = txHash
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[userID], nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

type fakeGit struct {
	mu       sync.Mutex
	payloads map[string][]byte
	tags     []string
	commitFn func(string, []byte, gitrepo.Author, string) (gitrepo.CommitInfo, error)
}

func (f *fakeGit) CommitVersion(documentID string, payload []byte, author gitrepo.Author, message string) (gitrepo.CommitInfo, error) {
	if f.commitFn != nil {
		return f.commitFn(documentID, payload, author, message)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]byte)
	}
	hash := fmt.Sprintf("%040x", len(f.payloads)+1)
	f.payloads[hash] = append([]byte{}, payload...)
	return gitrepo.CommitInfo{Hash: hash, Message: message, Author: author.Name, CreatedAt: time.Now()}, nil
}

func (f *fakeGit) ReadPayload(_ string, hash string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.payloads[hash]
	if !ok {
		return nil, gitrepo.ErrRepoNotFound
	}
	return payload, nil
}

func (f *fakeGit) TagVersion(_ string, _ string, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, name)
	return nil
}

type fakeBlob struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeBlob) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.DocumentRecord
	query   search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	return search.Response{Results: []search.Result{{ID: "doc_1", Title: "Match"}}, Total: 1, Query: q.Text, Backend: "fake"}
}

func (f *fakeSearch) IndexDocument(doc search.DocumentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, doc)
}

type fakeAnchor struct {
	anchorFn func(context.Context, string) (string, error)
	readFn   func(context.Context, string) (string, error)
}

func (f *fakeAnchor) Anchor(ctx context.Context, hash string) (string, error) {
	return f.anchorFn(ctx, hash)
}

func (f *fakeAnchor) ReadAnchor(ctx context.Context, txHash string) (string, error) {
	return f.readFn(ctx, txHash)
}

type fakeDrafts struct {
	generateFn func(context.Context, draft.Request) (draft.Result, error)
}

func (f *fakeDrafts) Generate(ctx context.Context, req draft.Request) (draft.Result, error) {
	return f.generateFn(ctx, req)
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return f.exportFn(ctx, req)
}

type fakeAccounts struct {
	registerFn     func(context.Context, string, string, string) (store.User, error)
	loginFn        func(context.Context, string, string) (store.User, error)
	requestResetFn func(context.Context, string) (string, error)
	resetFn        func(context.Context, string, string) error
}

func (f *fakeAccounts) Register(ctx context.Context, emailAddress, password, fullName string) (store.User, error) {
	return f.registerFn(ctx, emailAddress, password, fullName)
}

func (f *fakeAccounts) Login(ctx context.Context, emailAddress, password string) (store.User, error) {
	return f.loginFn(ctx, emailAddress, password)
}

func (f *fakeAccounts) RequestPasswordReset(ctx context.Context, emailAddress string) (string, error) {
	return f.requestResetFn(ctx, emailAddress)
}

func (f *fakeAccounts) ResetPassword(ctx context.Context, token, newPassword string) error {
	return f.resetFn(ctx, token, newPassword)
}

type fakeMailer struct {
	configured bool
	signed     []email.DocumentSignedData
	recipients []string
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendDocumentSignedEmail(to string, data email.DocumentSignedData) error {
	f.recipients = append(f.recipients, to)
	f.signed = append(f.signed, data)
	return nil
}

func (f *fakeMailer) DocumentURL(documentID string) string {
	return "http://app.test/documents/" + documentID
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService(fs *fakeStore, deps Dependencies) *Service {
	deps.Store = fs
	if deps.Git == nil {
		deps.Git = &fakeGit{}
	}
	return New(testConfig(), deps, nil)
}

func newTestServer(svc *Service) http.Handler {
	return NewHTTPServer(svc, "*", nil).Handler()
}

func mustToken(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), user, "")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session.Token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	payload := decodeResponse(t, rr)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
}

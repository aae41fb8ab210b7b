package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"certifai/api/internal/access"
	"certifai/api/internal/anchor"
	"certifai/api/internal/blob"
	"certifai/api/internal/email"
	"certifai/api/internal/gitrepo"
	"certifai/api/internal/search"
	"certifai/api/internal/sfdt"
	"certifai/api/internal/store"
	"certifai/api/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxTitleLength = 200
	previewLength  = 200
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes = 10 << 20
)

type CreateDocumentInput struct {
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	Visibility string          `json:"visibility"`
}

type UploadInput struct {
	Title    string
	Filename string
	Data     []byte
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", map[string]any{"field": "title"})
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("title must be at most %d characters", maxTitleLength), map[string]any{"field": "title"})
	}
	return title, nil
}

func normalizeVisibility(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return store.VisibilityPrivate, nil
	}
	if !access.ValidVisibility(value) {
		return "", domainError(http.StatusBadRequest, "INVALID_VISIBILITY", "visibility must be private, org or public", map[string]any{"visibility": value})
	}
	return value, nil
}

// normalizePayload returns the SFDT payload to store. An absent payload is
// replaced with an empty document.
func normalizePayload(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte(sfdt.EmptyDocument), nil
	}
	if err := sfdt.Validate(trimmed); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_CONTENT", "content must be an SFDT document", nil)
	}
	return trimmed, nil
}

// loadDocument fetches a document and checks that userID may perform action
// on it.
func (s *Service) loadDocument(ctx context.Context, documentID, userID string, action access.Action) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, domainError(http.StatusNotFound, "DOCUMENT_NOT_FOUND", "Document not found", map[string]any{"documentId": documentID})
		}
		return store.Document{}, err
	}
	if !access.Allowed(doc, userID, action) {
		return store.Document{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": string(action)})
	}
	return doc, nil
}

type appendRequest struct {
	action        string
	payload       []byte
	signatureName string
	newStatus     string
}

// appendVersion records a new version of doc: git commit first, then the
// database row, then the best-effort object archive and search index.
func (s *Service) appendVersion(ctx context.Context, doc store.Document, author Session, req appendRequest) (store.Version, error) {
	if doc.IsArchived() {
		return store.Version{}, store.ErrDocumentArchived
	}

	in, text, err := s.prepareVersion(doc, author, req)
	if err != nil {
		return store.Version{}, err
	}
	version, err := s.store.AppendVersion(ctx, in)
	if err != nil {
		return store.Version{}, err
	}
	s.versionAppended(ctx, &doc, author, req, &version, text)
	return version, nil
}

// prepareVersion commits the payload to the document repository and builds
// the row for version doc.CurrentVersion+1.
func (s *Service) prepareVersion(doc store.Document, author Session, req appendRequest) (store.AppendVersionInput, string, error) {
	next := doc.CurrentVersion + 1
	text := sfdt.ExtractTextFromJSON(req.payload)

	var commitHash string
	if s.git != nil {
		commit, err := s.git.CommitVersion(doc.ID, req.payload, gitrepo.Author{Name: author.UserName, Email: author.Email}, fmt.Sprintf("%s: version %d", req.action, next))
		if err != nil {
			return store.AppendVersionInput{}, "", fmt.Errorf("commit version: %w", err)
		}
		commitHash = commit.Hash
	}

	return store.AppendVersionInput{
		DocumentID:      doc.ID,
		ExpectedVersion: doc.CurrentVersion,
		Action:          req.action,
		Payload:         string(req.payload),
		ContentHash:     anchor.Hash(req.payload),
		CommitHash:      commitHash,
		SignatureName:   req.signatureName,
		AuthorID:        author.UserID,
		NewStatus:       req.newStatus,
		SearchText:      text,
	}, text, nil
}

func (s *Service) versionAppended(ctx context.Context, doc *store.Document, author Session, req appendRequest, version *store.Version, text string) {
	version.AuthorName = author.UserName

	s.archivePayload(ctx, doc.ID, version.Version, req.payload)

	doc.CurrentVersion = version.Version
	doc.UpdatedAt = version.CreatedAt
	if req.newStatus != "" {
		doc.Status = req.newStatus
	}
	s.indexDocument(*doc, text)

	s.logger.Info("version appended",
		zap.String("document_id", doc.ID),
		zap.Int("version", version.Version),
		zap.String("action", req.action),
	)
}

func (s *Service) archivePayload(ctx context.Context, documentID string, version int, payload []byte) {
	if s.blob == nil {
		return
	}
	if err := s.blob.Put(ctx, blob.VersionKey(documentID, version), payload, "application/json"); err != nil {
		s.logger.Warn("archive version payload failed", zap.String("document_id", documentID), zap.Int("version", version), zap.Error(err))
	}
}

func (s *Service) indexDocument(doc store.Document, text string) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:         doc.ID,
		Title:      doc.Title,
		Text:       text,
		CreatedBy:  doc.CreatedBy,
		Editors:    doc.Editors,
		Status:     doc.Status,
		Visibility: doc.Visibility,
		UpdatedAt:  doc.UpdatedAt.Unix(),
	})
}

// reindexMetadata refreshes the search record after a metadata-only change.
func (s *Service) reindexMetadata(ctx context.Context, documentID string) {
	if s.search == nil {
		return
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		s.logger.Warn("reindex lookup failed", zap.String("document_id", documentID), zap.Error(err))
		return
	}
	text := ""
	if doc.CurrentVersion > 0 {
		if current, err := s.store.GetVersion(ctx, doc.ID, doc.CurrentVersion); err == nil {
			text = sfdt.ExtractTextFromString(current.Payload)
		}
	}
	s.indexDocument(doc, text)
}

func (s *Service) createDocument(ctx context.Context, owner Session, title, visibility string, payload []byte, action string) (store.Document, store.Version, error) {
	doc := store.Document{
		ID:          util.NewID("doc"),
		Title:       title,
		CreatedBy:   owner.UserID,
		CreatorName: owner.UserName,
		Status:      store.StatusDraft,
		Visibility:  visibility,
		Editors:     []string{},
	}
	req := appendRequest{action: action, payload: payload}
	in, text, err := s.prepareVersion(doc, owner, req)
	if err != nil {
		return store.Document{}, store.Version{}, err
	}
	version, err := s.store.CreateDocument(ctx, doc, in)
	if err != nil {
		return store.Document{}, store.Version{}, err
	}
	doc.CreatedAt = version.CreatedAt
	s.versionAppended(ctx, &doc, owner, req, &version, text)
	return doc, version, nil
}

func (s *Service) CreateDocument(ctx context.Context, owner Session, input CreateDocumentInput) (map[string]any, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	visibility, err := normalizeVisibility(input.Visibility)
	if err != nil {
		return nil, err
	}
	payload, err := normalizePayload(input.Content)
	if err != nil {
		return nil, err
	}

	doc, version, err := s.createDocument(ctx, owner, title, visibility, payload, store.ActionEdited)
	if err != nil {
		return nil, err
	}
	return documentDetailPayload(doc, version, []store.Editor{}, access.RoleOwner), nil
}

// UploadDocument creates a document from an uploaded .sfdt or .json file. The
// raw upload is archived alongside the version payloads.
func (s *Service) UploadDocument(ctx context.Context, owner Session, input UploadInput) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(input.Filename))
	if ext != ".sfdt" && ext != ".json" {
		return nil, domainError(http.StatusBadRequest, "UNSUPPORTED_FILE", "only .sfdt and .json files can be uploaded", map[string]any{"filename": input.Filename})
	}
	if len(bytes.TrimSpace(input.Data)) == 0 {
		return nil, domainError(http.StatusBadRequest, "INVALID_CONTENT", "uploaded file is empty", nil)
	}
	payload, err := normalizePayload(input.Data)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(input.Filename), filepath.Ext(input.Filename))
	}
	if title, err = normalizeTitle(title); err != nil {
		return nil, err
	}

	doc, version, err := s.createDocument(ctx, owner, title, store.VisibilityPrivate, payload, store.ActionUploaded)
	if err != nil {
		return nil, err
	}
	if s.blob != nil {
		if err := s.blob.Put(ctx, blob.UploadKey(doc.ID, input.Filename), input.Data, "application/octet-stream"); err != nil {
			s.logger.Warn("archive upload failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return documentDetailPayload(doc, version, []store.Editor{}, access.RoleOwner), nil
}

func (s *Service) ListDocuments(ctx context.Context, viewer Session) ([]map[string]any, error) {
	documents, err := s.store.ListDocumentsForUser(ctx, viewer.UserID)
	if err != nil {
		return nil, err
	}

	previews := make([]string, len(documents))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, doc := range documents {
		if doc.CurrentVersion == 0 {
			continue
		}
		group.Go(func() error {
			current, err := s.store.GetVersion(groupCtx, doc.ID, doc.CurrentVersion)
			if err != nil {
				return fmt.Errorf("load preview for %s: %w", doc.ID, err)
			}
			previews[i] = sfdt.Preview(sfdt.ExtractTextFromString(current.Payload), previewLength)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(documents))
	for i, doc := range documents {
		item := documentSummaryPayload(doc, access.RoleFor(doc, viewer.UserID))
		item["preview"] = previews[i]
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) GetDocument(ctx context.Context, viewer Session, documentID string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	var current store.Version
	if doc.CurrentVersion > 0 {
		if current, err = s.store.GetVersion(ctx, doc.ID, doc.CurrentVersion); err != nil {
			return nil, err
		}
	}
	editors, err := s.store.ListEditors(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return documentDetailPayload(doc, current, editors, access.RoleFor(doc, viewer.UserID)), nil
}

// SaveContent appends an edited version. Editing a signed document returns it
// to draft.
func (s *Service) SaveContent(ctx context.Context, editor Session, documentID string, content json.RawMessage) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, editor.UserID, access.ActionEdit)
	if err != nil {
		return nil, err
	}
	if doc.IsArchived() {
		return nil, store.ErrDocumentArchived
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", map[string]any{"field": "content"})
	}
	payload, err := normalizePayload(content)
	if err != nil {
		return nil, err
	}

	newStatus := ""
	if doc.Status == store.StatusSigned {
		newStatus = store.StatusDraft
	}
	version, err := s.appendVersion(ctx, doc, editor, appendRequest{action: store.ActionEdited, payload: payload, newStatus: newStatus})
	if err != nil {
		return nil, err
	}
	if newStatus != "" {
		doc.Status = newStatus
	}
	doc.CurrentVersion = version.Version
	return map[string]any{
		"document": documentSummaryPayload(doc, access.RoleFor(doc, editor.UserID)),
		"version":  versionPayload(version),
	}, nil
}

func (s *Service) RenameDocument(ctx context.Context, editor Session, documentID, title string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, editor.UserID, access.ActionEdit)
	if err != nil {
		return nil, err
	}
	if doc.IsArchived() {
		return nil, store.ErrDocumentArchived
	}
	if title, err = normalizeTitle(title); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDocumentTitle(ctx, doc.ID, title); err != nil {
		return nil, err
	}
	doc.Title = title
	s.reindexMetadata(ctx, doc.ID)
	return documentSummaryPayload(doc, access.RoleFor(doc, editor.UserID)), nil
}

func (s *Service) SetVisibility(ctx context.Context, owner Session, documentID, visibility string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, owner.UserID, access.ActionManage)
	if err != nil {
		return nil, err
	}
	visibility = strings.ToLower(strings.TrimSpace(visibility))
	if !access.ValidVisibility(visibility) {
		return nil, domainError(http.StatusBadRequest, "INVALID_VISIBILITY", "visibility must be private, org or public", map[string]any{"visibility": visibility})
	}
	if err := s.store.UpdateDocumentVisibility(ctx, doc.ID, visibility); err != nil {
		return nil, err
	}
	doc.Visibility = visibility
	s.reindexMetadata(ctx, doc.ID)
	return documentSummaryPayload(doc, access.RoleOwner), nil
}

func (s *Service) ListEditors(ctx context.Context, viewer Session, documentID string) ([]map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	editors, err := s.store.ListEditors(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return editorsPayload(editors), nil
}

func (s *Service) AddEditor(ctx context.Context, owner Session, documentID, emailAddress string) ([]map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, owner.UserID, access.ActionManage)
	if err != nil {
		return nil, err
	}
	emailAddress = strings.ToLower(strings.TrimSpace(emailAddress))
	if emailAddress == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "email is required", map[string]any{"field": "email"})
	}
	user, err := s.store.GetUserByEmail(ctx, emailAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "USER_NOT_FOUND", "No user with that email", map[string]any{"email": emailAddress})
		}
		return nil, err
	}
	if user.ID == doc.CreatedBy {
		return nil, domainError(http.StatusBadRequest, "OWNER_NOT_EDITOR", "The owner cannot be added as an editor", nil)
	}
	if err := s.store.AddEditor(ctx, doc.ID, user.ID); err != nil {
		return nil, err
	}
	s.reindexMetadata(ctx, doc.ID)
	return s.ListEditors(ctx, owner, doc.ID)
}

func (s *Service) RemoveEditor(ctx context.Context, owner Session, documentID, userID string) ([]map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, owner.UserID, access.ActionManage)
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveEditor(ctx, doc.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "EDITOR_NOT_FOUND", "User is not an editor of this document", map[string]any{"userId": userID})
		}
		return nil, err
	}
	s.reindexMetadata(ctx, doc.ID)
	return s.ListEditors(ctx, owner, doc.ID)
}

// SignDocument appends a signed version carrying the current payload. When a
// chain is configured the content hash is anchored; an anchor failure leaves
// the signature in place and is reported as anchorError.
func (s *Service) SignDocument(ctx context.Context, signer Session, documentID, signatureName string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, signer.UserID, access.ActionSign)
	if err != nil {
		return nil, err
	}
	if doc.IsArchived() {
		return nil, store.ErrDocumentArchived
	}
	signatureName = strings.TrimSpace(signatureName)
	if signatureName == "" {
		signatureName = signer.UserName
	}
	if doc.CurrentVersion == 0 {
		return nil, domainError(http.StatusBadRequest, "NO_CONTENT", "Document has no content to sign", nil)
	}
	current, err := s.store.GetVersion(ctx, doc.ID, doc.CurrentVersion)
	if err != nil {
		return nil, err
	}

	version, err := s.appendVersion(ctx, doc, signer, appendRequest{
		action:        store.ActionSigned,
		payload:       []byte(current.Payload),
		signatureName: signatureName,
		newStatus:     store.StatusSigned,
	})
	if err != nil {
		return nil, err
	}
	doc.Status = store.StatusSigned
	doc.CurrentVersion = version.Version

	if s.git != nil && version.CommitHash != "" {
		tag := fmt.Sprintf("v%d-signed", version.Version)
		if err := s.git.TagVersion(doc.ID, version.CommitHash, tag, "Signed by "+signatureName); err != nil {
			s.logger.Warn("tag signed version failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}

	response := map[string]any{
		"document": documentSummaryPayload(doc, access.RoleFor(doc, signer.UserID)),
	}
	if s.anchor != nil {
		txHash, err := s.anchorAndAttach(ctx, doc.ID, version)
		if err != nil {
			s.logger.Warn("anchor signed version failed", zap.String("document_id", doc.ID), zap.Int("version", version.Version), zap.Error(err))
			response["anchorError"] = err.Error()
		} else {
			version.TxHash = txHash
		}
	}
	response["version"] = versionPayload(version)

	s.notifyOwner(ctx, doc, version, signatureName)
	return response, nil
}

func (s *Service) anchorAndAttach(ctx context.Context, documentID string, version store.Version) (string, error) {
	txHash, err := s.anchor.Anchor(ctx, version.ContentHash)
	if err != nil {
		return "", err
	}
	if err := s.store.AttachVersionTx(ctx, documentID, version.Version, txHash); err != nil {
		return "", err
	}
	s.logger.Info("version anchored",
		zap.String("document_id", documentID),
		zap.Int("version", version.Version),
		zap.String("tx_hash", txHash),
	)
	return txHash, nil
}

func (s *Service) notifyOwner(ctx context.Context, doc store.Document, version store.Version, signatureName string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	owner, err := s.store.GetUserByID(ctx, doc.CreatedBy)
	if err != nil {
		s.logger.Warn("load document owner failed", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	data := email.DocumentSignedData{
		UserName:    owner.FullName,
		Title:       doc.Title,
		SignerName:  signatureName,
		Version:     version.Version,
		ContentHash: version.ContentHash,
		TxHash:      version.TxHash,
		DocumentURL: s.mailer.DocumentURL(doc.ID),
	}
	if err := s.mailer.SendDocumentSignedEmail(owner.Email, data); err != nil {
		s.logger.Warn("send signed notice failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// ArchiveDocument appends a final locked version and moves the document to
// the terminal archived status.
func (s *Service) ArchiveDocument(ctx context.Context, owner Session, documentID string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, owner.UserID, access.ActionManage)
	if err != nil {
		return nil, err
	}
	if doc.IsArchived() {
		return nil, store.ErrDocumentArchived
	}
	payload := []byte(sfdt.EmptyDocument)
	if doc.CurrentVersion > 0 {
		current, err := s.store.GetVersion(ctx, doc.ID, doc.CurrentVersion)
		if err != nil {
			return nil, err
		}
		payload = []byte(current.Payload)
	}

	version, err := s.appendVersion(ctx, doc, owner, appendRequest{
		action:    store.ActionLocked,
		payload:   payload,
		newStatus: store.StatusArchived,
	})
	if err != nil {
		return nil, err
	}
	doc.Status = store.StatusArchived
	doc.CurrentVersion = version.Version
	return map[string]any{
		"document": documentSummaryPayload(doc, access.RoleOwner),
		"version":  versionPayload(version),
	}, nil
}

func documentSummaryPayload(doc store.Document, role access.Role) map[string]any {
	editors := doc.Editors
	if editors == nil {
		editors = []string{}
	}
	return map[string]any{
		"id":             doc.ID,
		"title":          doc.Title,
		"createdBy":      doc.CreatedBy,
		"creatorName":    doc.CreatorName,
		"currentVersion": doc.CurrentVersion,
		"status":         doc.Status,
		"visibility":     doc.Visibility,
		"editors":        editors,
		"role":           string(role),
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
	}
}

func documentDetailPayload(doc store.Document, current store.Version, editors []store.Editor, role access.Role) map[string]any {
	payload := documentSummaryPayload(doc, role)
	payload["editorDetails"] = editorsPayload(editors)
	if current.Version > 0 {
		payload["content"] = json.RawMessage(current.Payload)
		payload["version"] = versionPayload(current)
	} else {
		payload["content"] = json.RawMessage(sfdt.EmptyDocument)
		payload["version"] = nil
	}
	return payload
}

func editorsPayload(editors []store.Editor) []map[string]any {
	items := make([]map[string]any, 0, len(editors))
	for _, editor := range editors {
		items = append(items, map[string]any{
			"userId":   editor.UserID,
			"email":    editor.Email,
			"fullName": editor.FullName,
			"addedAt":  editor.AddedAt,
		})
	}
	return items
}

func versionPayload(version store.Version) map[string]any {
	return map[string]any{
		"version":       version.Version,
		"action":        version.Action,
		"contentHash":   version.ContentHash,
		"txHash":        nilIfEmpty(version.TxHash),
		"commitHash":    nilIfEmpty(version.CommitHash),
		"signatureName": nilIfEmpty(version.SignatureName),
		"authorId":      version.AuthorID,
		"authorName":    version.AuthorName,
		"createdAt":     version.CreatedAt,
	}
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"certifai/api/internal/access"
	"certifai/api/internal/anchor"
	"certifai/api/internal/compare"
	"certifai/api/internal/export"
	"certifai/api/internal/search"
	"certifai/api/internal/sfdt"
	"certifai/api/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func parseVersionNumber(raw string) (int, error) {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || number < 1 {
		return 0, domainError(http.StatusBadRequest, "INVALID_VERSION", "version must be a positive integer", map[string]any{"version": raw})
	}
	return number, nil
}

func (s *Service) loadVersion(ctx context.Context, documentID string, number int) (store.Version, error) {
	version, err := s.store.GetVersion(ctx, documentID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Version{}, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", "Version not found", map[string]any{"documentId": documentID, "version": number})
		}
		return store.Version{}, err
	}
	return version, nil
}

func (s *Service) ListVersions(ctx context.Context, viewer Session, documentID string) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, versionPayload(version))
	}
	return map[string]any{
		"documentId":     doc.ID,
		"currentVersion": doc.CurrentVersion,
		"versions":       items,
	}, nil
}

func (s *Service) GetVersion(ctx context.Context, viewer Session, documentID string, number int) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	version, err := s.loadVersion(ctx, doc.ID, number)
	if err != nil {
		return nil, err
	}
	payload := versionPayload(version)
	payload["documentId"] = doc.ID
	payload["content"] = rawJSON(version.Payload)
	payload["text"] = sfdt.ExtractTextFromString(version.Payload)
	return payload, nil
}

// CompareVersions diffs the extracted text of two versions.
func (s *Service) CompareVersions(ctx context.Context, viewer Session, documentID string, fromNumber, toNumber int) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}

	var from, to store.Version
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		from, err = s.loadVersion(groupCtx, doc.ID, fromNumber)
		return err
	})
	group.Go(func() error {
		var err error
		to, err = s.loadVersion(groupCtx, doc.ID, toNumber)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fromText := sfdt.ExtractTextFromString(from.Payload)
	toText := sfdt.ExtractTextFromString(to.Payload)
	diff := compare.Text(fromText, toText)

	return map[string]any{
		"documentId": doc.ID,
		"from":       versionPayload(from),
		"to":         versionPayload(to),
		"fromText":   fromText,
		"toText":     toText,
		"segments":   diff.Segments,
		"added":      diff.Added,
		"removed":    diff.Removed,
		"identical":  from.ContentHash == to.ContentHash,
	}, nil
}

// AnchorVersion anchors a version that has no transaction yet. It is the
// retry path for signatures whose anchoring failed.
func (s *Service) AnchorVersion(ctx context.Context, signer Session, documentID string, number int) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, signer.UserID, access.ActionSign)
	if err != nil {
		return nil, err
	}
	if s.anchor == nil {
		return nil, domainError(http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE", "Blockchain anchoring is not configured", nil)
	}
	version, err := s.loadVersion(ctx, doc.ID, number)
	if err != nil {
		return nil, err
	}
	if version.TxHash != "" {
		return nil, store.ErrAlreadyAnchored
	}
	txHash, err := s.anchorAndAttach(ctx, doc.ID, version)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyAnchored) {
			return nil, err
		}
		return nil, upstreamError("ANCHOR_FAILED", "Could not anchor the version hash", err)
	}
	version.TxHash = txHash
	return versionPayload(version), nil
}

// VerifyVersion recomputes the stored payload's hash and, when the version
// was anchored, compares it with the hash carried on chain. The git commit is
// checked as a second copy of the payload.
func (s *Service) VerifyVersion(ctx context.Context, viewer Session, documentID string, number int) (map[string]any, error) {
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	version, err := s.loadVersion(ctx, doc.ID, number)
	if err != nil {
		return nil, err
	}

	computed := anchor.Hash([]byte(version.Payload))
	hashMatches := computed == version.ContentHash
	result := map[string]any{
		"documentId":    doc.ID,
		"version":       version.Version,
		"storedHash":    version.ContentHash,
		"computedHash":  computed,
		"hashMatches":   hashMatches,
		"txHash":        nilIfEmpty(version.TxHash),
		"onChain":       false,
		"chainHash":     nil,
		"chainMatches":  nil,
		"commitHash":    nilIfEmpty(version.CommitHash),
		"commitMatches": nil,
	}

	if s.git != nil && version.CommitHash != "" {
		committed, err := s.git.ReadPayload(doc.ID, version.CommitHash)
		if err != nil {
			s.logger.Warn("read committed payload failed", zap.String("document_id", doc.ID), zap.Int("version", version.Version), zap.Error(err))
		} else {
			result["commitMatches"] = anchor.Hash(committed) == version.ContentHash
		}
	}

	verified := hashMatches
	if version.TxHash != "" && s.anchor != nil {
		chainHash, err := s.anchor.ReadAnchor(ctx, version.TxHash)
		switch {
		case err == nil:
			chainMatches := strings.EqualFold(chainHash, version.ContentHash)
			result["onChain"] = true
			result["chainHash"] = chainHash
			result["chainMatches"] = chainMatches
			verified = verified && chainMatches
		case errors.Is(err, anchor.ErrTxPending):
			result["chainError"] = "transaction pending"
		case errors.Is(err, anchor.ErrTxNotFound), errors.Is(err, anchor.ErrNotAnchorTx):
			result["chainError"] = err.Error()
			verified = false
		default:
			return nil, upstreamError("CHAIN_UNAVAILABLE", "Could not read the anchor transaction", err)
		}
	}
	result["verified"] = verified
	return result, nil
}

func (s *Service) ExportVersion(ctx context.Context, viewer Session, documentID string, number int, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, documentID, viewer.UserID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	version, err := s.loadVersion(ctx, doc.ID, number)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{
		Title:         doc.Title,
		Status:        doc.Status,
		Version:       version.Version,
		Author:        version.AuthorName,
		SignatureName: version.SignatureName,
		ContentHash:   version.ContentHash,
		TxHash:        version.TxHash,
		CreatedAt:     version.CreatedAt,
		Payload:       []byte(version.Payload),
		Format:        format,
	})
}

func (s *Service) Search(ctx context.Context, viewer Session, text string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(ctx, search.Query{Text: text, ViewerID: viewer.UserID, Limit: limit, Offset: offset}), nil
}

func rawJSON(payload string) any {
	if strings.TrimSpace(payload) == "" {
		return nil
	}
	return json.RawMessage(payload)
}

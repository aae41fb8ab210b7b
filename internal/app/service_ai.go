package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"certifai/api/internal/access"
	"certifai/api/internal/draft"
	"certifai/api/internal/store"
)

type GenerateInput struct {
	DocumentType string            `json:"documentType"`
	Title        string            `json:"title"`
	Details      map[string]string `json:"details"`
	Create       bool              `json:"create"`
	Visibility   string            `json:"visibility"`
}

func (s *Service) DraftTemplates() []draft.Template {
	return draft.Templates()
}

// GenerateDraft asks the model for a draft. With Create set the validated
// draft becomes version 1 of a new document owned by the caller.
func (s *Service) GenerateDraft(ctx context.Context, owner Session, input GenerateInput) (map[string]any, error) {
	if s.drafts == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "Draft generation is not configured", nil)
	}
	visibility, err := normalizeVisibility(input.Visibility)
	if err != nil {
		return nil, err
	}

	result, err := s.drafts.Generate(ctx, draft.Request{
		DocumentType: strings.TrimSpace(input.DocumentType),
		Title:        strings.TrimSpace(input.Title),
		Details:      input.Details,
	})
	if err != nil {
		return nil, err
	}

	response := map[string]any{
		"documentType": result.DocumentType,
		"title":        result.Title,
		"sfdt":         json.RawMessage(result.SFDT),
	}
	if !input.Create {
		return response, nil
	}

	title, err := normalizeTitle(result.Title)
	if err != nil {
		return nil, err
	}
	doc, version, err := s.createDocument(ctx, owner, title, visibility, []byte(result.SFDT), store.ActionEdited)
	if err != nil {
		return nil, err
	}
	response["document"] = documentDetailPayload(doc, version, []store.Editor{}, access.RoleOwner)
	return response, nil
}

package export

import (
	"context"
	"fmt"
	"html/template"

	"certifai/api/internal/sfdt"
	"go.uber.org/zap"
)

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides document export functionality
type Service struct {
	pdf    converter
	docx   converter
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pdf:    exportPDF,
		docx:   exportDOCX,
		logger: logger.With(zap.String("component", "export")),
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	html, err := RenderVersionHTML(req)
	if err != nil {
		return nil, err
	}

	var convert converter
	switch req.Format {
	case FormatPDF:
		convert = s.pdf
	case FormatDOCX:
		convert = s.docx
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	result, err := convert(ctx, html, req.Title)
	if err != nil {
		s.logger.Warn("export failed", zap.String("format", string(req.Format)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("export rendered",
		zap.String("format", string(req.Format)),
		zap.Int("version", req.Version),
		zap.Int("bytes", len(result.Data)),
	)
	return result, nil
}

// RenderVersionHTML builds the standalone HTML page both converters consume.
func RenderVersionHTML(req Request) (string, error) {
	tree, err := sfdt.Decode(req.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	return RenderDocumentHTML(TemplateData{
		Title:         req.Title,
		Status:        req.Status,
		Version:       req.Version,
		Author:        req.Author,
		SignatureName: req.SignatureName,
		ContentHash:   req.ContentHash,
		TxHash:        req.TxHash,
		CreatedAt:     req.CreatedAt,
		ContentHTML:   template.HTML(sfdt.RenderHTML(tree)),
	})
}

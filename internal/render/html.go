package render

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/gardia-secu/gardia/internal/devis"
)

//go:embed templates/devis.html
var devisTemplate string

// PDFConverter turns an HTML document into PDF bytes.
type PDFConverter interface {
	FromHTML(ctx context.Context, html string) ([]byte, error)
}

// Service renders quote documents to HTML and PDF.
type Service struct {
	builder   *Builder
	converter PDFConverter
	tmpl      *template.Template
}

// NewService constructs the renderer. The template is parsed once at startup.
func NewService(builder *Builder, converter PDFConverter) (*Service, error) {
	tmpl, err := template.New("devis").Parse(devisTemplate)
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return &Service{builder: builder, converter: converter, tmpl: tmpl}, nil
}

// RenderHTML builds the document and executes the template.
func (s *Service) RenderHTML(ctx context.Context, d *devis.Devis) (string, error) {
	doc, err := s.builder.Build(ctx, d)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render: execute template: %w", err)
	}
	return buf.String(), nil
}

// RenderPDF renders the HTML document and converts it through Gotenberg.
func (s *Service) RenderPDF(ctx context.Context, d *devis.Devis) ([]byte, error) {
	html, err := s.RenderHTML(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.converter.FromHTML(ctx, html)
}

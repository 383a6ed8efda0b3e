// Package export renders invoices as PDF documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/view"
	"github.com/forecourt/forecourt/web"
)

// HTMLConverter turns a full HTML document into PDF bytes. report.Client
// implements it over Gotenberg.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// HTMLRenderer prints the invoice page through a headless browser.
type HTMLRenderer struct {
	converter HTMLConverter
	tpl       *template.Template
}

func NewHTMLRenderer(converter HTMLConverter) (*HTMLRenderer, error) {
	tpl, err := template.New("invoice").Funcs(view.Funcs()).ParseFS(web.Templates,
		"templates/partials/invoice_body.html", "templates/reports/invoice_pdf.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice templates: %w", err)
	}
	return &HTMLRenderer{converter: converter, tpl: tpl}, nil
}

func (r *HTMLRenderer) Name() string { return "html" }

// HTML renders the standalone document sent to the converter.
func (r *HTMLRenderer) HTML(doc invoices.Document) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, "reports/invoice_pdf", doc); err != nil {
		return "", fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.String(), nil
}

func (r *HTMLRenderer) Render(ctx context.Context, doc invoices.Document) ([]byte, error) {
	html, err := r.HTML(doc)
	if err != nil {
		return nil, err
	}
	return r.converter.RenderHTML(ctx, html)
}

package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freightdesk/internal/commerce"
)

//go:embed templates/*.html
var templateFS embed.FS

// PDFConverter turns an HTML page into a PDF.
type PDFConverter interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// DocumentRenderer lays out quotes and invoices as HTML and converts them to PDF.
type DocumentRenderer struct {
	converter PDFConverter
	lang      language.Tag
	tmpl      *template.Template
}

type page struct {
	Lang    string
	Title   string
	Invoice bool
	View    commerce.DocumentView
}

// NewDocumentRenderer parses the embedded templates.
func NewDocumentRenderer(converter PDFConverter, lang language.Tag) (*DocumentRenderer, error) {
	r := &DocumentRenderer{converter: converter, lang: lang}
	funcs := template.FuncMap{
		"money":   func(d decimal.Decimal) string { return "" },
		"percent": FormatPercent,
		"date":    formatDate,
	}
	tmpl, err := template.New("document.html").Funcs(funcs).ParseFS(templateFS, "templates/document.html")
	if err != nil {
		return nil, fmt.Errorf("report: parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// RenderQuotePDF implements commerce.Renderer.
func (r *DocumentRenderer) RenderQuotePDF(ctx context.Context, view commerce.DocumentView) ([]byte, error) {
	return r.render(ctx, "Quote", view)
}

// RenderInvoicePDF implements commerce.Renderer.
func (r *DocumentRenderer) RenderInvoicePDF(ctx context.Context, view commerce.DocumentView) ([]byte, error) {
	return r.render(ctx, "Invoice", view)
}

// HTML lays out a document without converting it.
func (r *DocumentRenderer) HTML(view commerce.DocumentView) ([]byte, error) {
	title := "Quote"
	if view.Kind == commerce.KindInvoice {
		title = "Invoice"
	}
	return r.html(title, view)
}

func (r *DocumentRenderer) render(ctx context.Context, title string, view commerce.DocumentView) ([]byte, error) {
	html, err := r.html(title, view)
	if err != nil {
		return nil, err
	}
	pdf, err := r.converter.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("report: convert %s: %w", view.Reference, err)
	}
	return pdf, nil
}

func (r *DocumentRenderer) html(title string, view commerce.DocumentView) ([]byte, error) {
	tmpl, err := r.tmpl.Clone()
	if err != nil {
		return nil, err
	}
	currency := view.Currency
	tmpl.Funcs(template.FuncMap{
		"money": func(d decimal.Decimal) string { return FormatMoney(r.lang, d, currency) },
	})
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, page{
		Lang:    r.lang.String(),
		Title:   title,
		Invoice: view.Kind == commerce.KindInvoice,
		View:    view,
	})
	if err != nil {
		return nil, fmt.Errorf("report: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("02 Jan 2006")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("02 Jan 2006")
	}
	return ""
}

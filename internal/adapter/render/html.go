package render

import (
	"bytes"
	"context"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"lexroute/internal/domain"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  @page { size: A4; margin: 18mm 16mm; }
  body { font-family: "Georgia", "Times New Roman", serif; font-size: 11pt; line-height: 1.5; color: #1a1a1a; max-width: 48rem; margin: 0 auto; }
  h1 { font-size: 18pt; border-bottom: 2px solid #1f3a5f; padding-bottom: 4pt; color: #1f3a5f; }
  h2 { font-size: 13pt; color: #1f3a5f; margin-top: 16pt; page-break-after: avoid; }
  blockquote { margin: 8pt 0; padding: 4pt 10pt; border-left: 3px solid #c9a227; background: #faf7ee; }
  code { font-family: "Courier New", monospace; font-size: 9.5pt; }
  li { margin: 2pt 0; }
  footer { margin-top: 24pt; font-size: 8.5pt; color: #666; }
</style>
</head>
<body>
{{.Body}}
<footer>Reference {{.ID}}</footer>
</body>
</html>
`))

// HTML renders the Markdown report as a standalone printable page. Raw HTML
// in model text is not passed through.
type HTML struct {
	md goldmark.Markdown
}

// NewHTML creates an HTML renderer with GitHub-flavored Markdown.
func NewHTML() *HTML {
	return &HTML{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (*HTML) ContentType() string { return "text/html; charset=utf-8" }

func (h *HTML) Render(ctx context.Context, r *domain.LegalAnalysisResult) ([]byte, error) {
	md, err := Markdown{}.Render(ctx, r)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := h.md.Convert(md, &body); err != nil {
		return nil, domain.NewSubSystemError("render", "HTML.Render", domain.ErrRender, err.Error())
	}

	title := "Legal Analysis"
	if r.AgentName != "" {
		title += ": " + r.AgentName
	}

	var out bytes.Buffer
	err = pageTmpl.Execute(&out, struct {
		Title string
		ID    string
		Body  template.HTML
	}{
		Title: title,
		ID:    r.ID,
		Body:  template.HTML(body.String()), //nolint:gosec // goldmark output with raw HTML disabled
	})
	if err != nil {
		return nil, domain.NewSubSystemError("render", "HTML.Render", domain.ErrRender, err.Error())
	}
	return out.Bytes(), nil
}

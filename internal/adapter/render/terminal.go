package render

import (
	"context"

	"github.com/charmbracelet/glamour"

	"lexroute/internal/domain"
)

// DefaultTerminalWidth is the word-wrap width when none is configured.
const DefaultTerminalWidth = 100

// Terminal renders the Markdown report with ANSI styling for the CLI.
type Terminal struct {
	// Width is the word-wrap column. Zero means DefaultTerminalWidth.
	Width int
	// Style is a glamour standard style ("dark", "light", "notty", ...).
	// Empty detects it from the terminal.
	Style string
}

func (Terminal) ContentType() string { return "text/plain; charset=utf-8" }

func (t Terminal) Render(ctx context.Context, r *domain.LegalAnalysisResult) ([]byte, error) {
	md, err := Markdown{}.Render(ctx, r)
	if err != nil {
		return nil, err
	}

	width := t.Width
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	style := glamour.WithAutoStyle()
	if t.Style != "" {
		style = glamour.WithStandardStyle(t.Style)
	}

	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, domain.NewSubSystemError("render", "Terminal.Render", domain.ErrRender, err.Error())
	}
	out, err := tr.Render(string(md))
	if err != nil {
		return nil, domain.NewSubSystemError("render", "Terminal.Render", domain.ErrRender, err.Error())
	}
	return []byte(out), nil
}

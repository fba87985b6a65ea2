package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"lexroute/internal/domain"
	"lexroute/internal/infra/tracer"
)

// DefaultPDFTimeout bounds one PDF render.
const DefaultPDFTimeout = 30 * time.Second

// A4 paper in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

// PDFConfig configures the headless Chrome used for PDF output.
type PDFConfig struct {
	// RemoteURL is a DevTools websocket endpoint. Empty launches a local browser.
	RemoteURL string
	// ExecPath overrides the Chrome binary of a local browser.
	ExecPath string
	Timeout  time.Duration
}

// PDF prints the HTML report through headless Chrome. The browser starts on
// the first render and is shared by later ones; each render uses its own tab.
type PDF struct {
	cfg    PDFConfig
	html   *HTML
	logger *slog.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewPDF creates a PDF renderer. No browser is started until Render.
func NewPDF(cfg PDFConfig, logger *slog.Logger) *PDF {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPDFTimeout
	}
	return &PDF{cfg: cfg, html: NewHTML(), logger: logger}
}

func (*PDF) ContentType() string { return "application/pdf" }

func (p *PDF) Render(ctx context.Context, r *domain.LegalAnalysisResult) ([]byte, error) {
	ctx, span := tracer.StartSpan(ctx, "render.pdf")
	defer span.End()

	doc, err := p.html.Render(ctx, r)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	browser, err := p.browser()
	if err != nil {
		tracer.RecordError(span, err)
		sentinel := domain.ErrRender
		if errors.Is(err, domain.ErrTimeout) {
			sentinel = domain.ErrTimeout
		}
		return nil, domain.NewSubSystemError("render", "PDF.Render", sentinel, err.Error())
	}

	tabCtx, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var buf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(actx context.Context) error {
			tree, err := page.GetFrameTree().Do(actx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(doc)).Do(actx)
		}),
		chromedp.ActionFunc(func(actx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				Do(actx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		}),
	)
	if err != nil {
		if browser.Err() != nil {
			p.dropBrowser(browser)
		}
		err = renderFailure(ctx, tabCtx, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(tracer.IntAttr("pdf.bytes", len(buf)))
	tracer.SetOK(span)
	return buf, nil
}

// renderFailure maps a failed print to a render error. A canceled caller is
// ErrCanceled; the caller's deadline or the render timeout is ErrTimeout.
func renderFailure(ctx, tabCtx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.NewSubSystemError("render", "PDF.Render", domain.ErrCanceled, "request canceled during print")
	case ctx.Err() != nil, errors.Is(tabCtx.Err(), context.DeadlineExceeded):
		return domain.NewSubSystemError("render", "PDF.Render", domain.ErrTimeout, fmt.Sprintf("print: %v", err))
	}
	return domain.NewSubSystemError("render", "PDF.Render", domain.ErrRender, fmt.Sprintf("print: %v", err))
}

// dropBrowser forgets stale if it is still the shared browser, so the next
// render launches a new one.
func (p *PDF) dropBrowser(stale context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCtx != stale {
		return
	}
	p.logger.Warn("pdf browser is gone, restarting on next render", "error", context.Cause(stale))
	p.closeLocked()
}

// browser returns the shared browser, starting it when there is none or the
// previous one has exited.
func (p *PDF) browser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx != nil {
		if p.browserCtx.Err() == nil {
			return p.browserCtx, nil
		}
		p.closeLocked()
	}

	var allocCtx context.Context
	if p.cfg.RemoteURL != "" {
		allocCtx, p.allocCancel = chromedp.NewRemoteAllocator(context.Background(), p.cfg.RemoteURL)
		p.logger.Info("pdf renderer connecting to remote browser")
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if p.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
		}
		allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		p.logger.Info("pdf renderer launching local browser")
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run binds the browser to browserCtx, so it must not carry a
	// deadline of its own.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			p.allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(p.cfg.Timeout):
		browserCancel()
		p.allocCancel()
		return nil, fmt.Errorf("start browser after %v: %w", p.cfg.Timeout, domain.ErrTimeout)
	}

	p.browserCtx, p.browserCancel = browserCtx, browserCancel
	return p.browserCtx, nil
}

// Close shuts the browser down. It is safe to call when none was started.
func (p *PDF) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *PDF) closeLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	p.browserCtx = nil
}

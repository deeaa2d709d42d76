package chromium

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
)

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	// Headful opens visible browser windows. Default is headless.
	Headful bool
	// Install downloads browser binaries before starting the driver. Off by
	// default; deployments usually bake binaries into the image.
	Install bool
	// UserAgent is applied to pages that do not set their own.
	UserAgent string
	// NavTimeout bounds one navigation, including redirects.
	NavTimeout time.Duration

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.NavTimeout <= 0 {
		out.NavTimeout = 30 * time.Second
	}
	return out
}

// Engine drives real Chromium over the Playwright protocol. One browser
// process serves all pages; non-incognito pages with default settings share
// a browser context and therefore cookies.
type Engine struct {
	cfg     Config
	log     *logging.Logger
	pw      *playwright.Playwright
	browser playwright.Browser

	mu        sync.Mutex
	sharedCtx playwright.BrowserContext
	pages     map[*Page]struct{}
	closed    bool
}

// New starts the Playwright driver and launches the browser.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	log := logging.OrNop(cfg.Logger)

	// Driver chatter goes nowhere; the daemon owns stdout.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if cfg.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright driver: %w", err)
	}

	headless := !cfg.Headful
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		log:     log,
		pw:      pw,
		browser: browser,
		pages:   make(map[*Page]struct{}),
	}, nil
}

// Name identifies the backend.
func (e *Engine) Name() string { return "chromium" }

// NewPage creates a live browsing context. Pages with default settings share
// one browser context; incognito pages and pages customizing the user agent
// or the script toggle get a dedicated context torn down with the page.
func (e *Engine) NewPage(ctx context.Context, cfg engine.PageConfig) (engine.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.ErrClosed
	}

	dedicated := cfg.Incognito || cfg.UserAgent != "" || !cfg.JavaScriptEnabled

	var (
		bctx playwright.BrowserContext
		own  playwright.BrowserContext
		err  error
	)
	if dedicated {
		bctx, err = e.newContext(cfg.UserAgent, cfg.JavaScriptEnabled)
		if err != nil {
			return nil, err
		}
		own = bctx
	} else {
		if e.sharedCtx == nil {
			e.sharedCtx, err = e.newContext("", true)
			if err != nil {
				return nil, err
			}
		}
		bctx = e.sharedCtx
	}

	pwPage, err := bctx.NewPage()
	if err != nil {
		if own != nil {
			_ = own.Close()
		}
		return nil, fmt.Errorf("create page: %w", err)
	}

	p := &Page{
		eng:     e,
		cfg:     cfg,
		log:     logging.OrNop(cfg.Logger),
		pw:      pwPage,
		ownCtx:  own,
		bridges: make(map[string]func(string)),
		navType: engine.NavOther,
	}
	if err := p.wire(); err != nil {
		_ = pwPage.Close()
		if own != nil {
			_ = own.Close()
		}
		return nil, err
	}

	e.pages[p] = struct{}{}
	return p, nil
}

func (e *Engine) newContext(userAgent string, js bool) (playwright.BrowserContext, error) {
	opts := playwright.BrowserNewContextOptions{
		JavaScriptEnabled: &js,
	}
	ua := userAgent
	if ua == "" {
		ua = e.cfg.UserAgent
	}
	if ua != "" {
		opts.UserAgent = &ua
	}
	bctx, err := e.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	return bctx, nil
}

// Close shuts the browser down. Every open page is closed with it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	open := make([]*Page, 0, len(e.pages))
	for p := range e.pages {
		open = append(open, p)
	}
	e.pages = nil
	shared := e.sharedCtx
	e.sharedCtx = nil
	e.mu.Unlock()

	for _, p := range open {
		_ = p.Close()
	}
	if shared != nil {
		_ = shared.Close()
	}
	if err := e.browser.Close(); err != nil {
		e.log.Warn("close browser", zap.Error(err))
	}
	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright driver: %w", err)
	}
	return nil
}

func (e *Engine) forget(p *Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pages != nil {
		delete(e.pages, p)
	}
}

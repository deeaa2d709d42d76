package inproc

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"golang.org/x/net/publicsuffix"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 WebviewInproc/1.0"

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	// UserAgent is sent with every request unless a page overrides it.
	UserAgent string
	// FetchTimeout bounds one main-resource or subresource request.
	FetchTimeout time.Duration
	// ScriptBudget bounds one script execution.
	ScriptBudget time.Duration
	// MaxBodyBytes caps the compressed response size the engine accepts.
	MaxBodyBytes int64
	// MaxFetchRPS throttles outbound requests across all pages. 0 = unlimited.
	MaxFetchRPS float64
	// Transport overrides the outbound transport. Tests point it at a local
	// server; nil selects the retrying production transport.
	Transport http.RoundTripper

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.UserAgent == "" {
		out.UserAgent = defaultUserAgent
	}
	if out.FetchTimeout <= 0 {
		out.FetchTimeout = 30 * time.Second
	}
	if out.ScriptBudget <= 0 {
		out.ScriptBudget = 5 * time.Second
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = 10 << 20
	}
	return out
}

// Engine renders pages in-process: fetch, parse, script, no real browser.
// Pages share one outbound transport, circuit breaker, and rate limiter;
// cookies are shared too except for incognito pages.
type Engine struct {
	cfg   Config
	log   *logging.Logger
	fetch *fetcher
	jar   http.CookieJar

	mu     sync.Mutex
	pages  map[*Page]struct{}
	closed bool
}

// New creates the engine. The returned engine is ready; pages come from
// NewPage.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	log := logging.OrNop(cfg.Logger)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New only fails on a nil public suffix list.
		panic(err)
	}

	return &Engine{
		cfg:   cfg,
		log:   log,
		fetch: newFetcher(cfg, log),
		jar:   jar,
		pages: make(map[*Page]struct{}),
	}
}

// Name identifies the backend.
func (e *Engine) Name() string { return "inproc" }

// NewPage creates a live browsing context, initially at about:blank.
func (e *Engine) NewPage(ctx context.Context, cfg engine.PageConfig) (engine.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.ErrClosed
	}

	jar := e.jar
	if cfg.Incognito {
		var err error
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = e.cfg.UserAgent
	}

	p := &Page{
		eng:     e,
		cfg:     cfg,
		log:     logging.OrNop(cfg.Logger),
		ua:      ua,
		hist:    newHistory(),
		bridges: make(map[string]func(string)),
		doc:     newBlankDocument(),
	}
	p.client = e.fetch.newClient(jar, ua)
	p.host = newScriptHost(p, p.doc, e.cfg.ScriptBudget, p.log)

	e.pages[p] = struct{}{}
	return p, nil
}

// Close shuts the engine down. Every open page is closed with it.
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
	e.mu.Unlock()

	for _, p := range open {
		_ = p.Close()
	}
	return nil
}

// forget drops a closed page from the registry.
func (e *Engine) forget(p *Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pages != nil {
		delete(e.pages, p)
	}
}

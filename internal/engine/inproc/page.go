package inproc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
)

const (
	// maxScriptNavChain bounds navigations triggered transitively by page
	// scripts, so a redirect loop written in script cannot spin forever.
	maxScriptNavChain = 10

	// maxPageScripts bounds how many <script> elements one document runs.
	maxPageScripts = 32
)

// navMode selects how a committed load lands in session history.
type navMode int

const (
	navPush navMode = iota
	navReplace
	navReload
	navBack
	navForward
)

// navTarget is one load source: a network request, or inline markup
// rendered under a base URL.
type navTarget struct {
	req    engine.Request
	html   string
	inline bool
}

// Page is one in-process browsing context. Mutating calls arrive serialized
// except Stop, which may race a load; mu covers the state Stop touches.
type Page struct {
	eng    *Engine
	cfg    engine.PageConfig
	log    *logging.Logger
	ua     string
	client *resty.Client

	mu      sync.Mutex
	doc     *document
	host    *scriptHost
	hist    *history
	bridges map[string]func(string)
	title   string
	referer string
	loading bool
	cancel  context.CancelFunc
	closed  bool
}

var _ engine.Page = (*Page)(nil)

// Navigate starts a gated load-by-reference and pushes a history entry.
func (p *Page) Navigate(ctx context.Context, req engine.Request) error {
	return p.perform(ctx, navTarget{req: req}, engine.NavOther, navPush, 0)
}

// SetContent renders inline markup under baseURL. The attempt is not gated;
// navigations out of the rendered document are.
func (p *Page) SetContent(ctx context.Context, html, baseURL string) error {
	base := baseURL
	if base == "" {
		base = "about:blank"
	}
	target := navTarget{
		req:    engine.Request{URL: base},
		html:   html,
		inline: true,
	}
	return p.perform(ctx, target, engine.NavOther, navPush, 0)
}

// Back replays the previous history entry. No-op when none exists.
func (p *Page) Back(ctx context.Context) error {
	return p.traverse(ctx, -1, navBack)
}

// Forward replays the next history entry. No-op when none exists.
func (p *Page) Forward(ctx context.Context) error {
	return p.traverse(ctx, 1, navForward)
}

func (p *Page) traverse(ctx context.Context, delta int, mode navMode) error {
	p.mu.Lock()
	closed := p.closed
	entry, ok := p.hist.peek(delta)
	p.mu.Unlock()
	if closed {
		return engine.ErrClosed
	}
	if !ok {
		return nil
	}
	// Traversal replays by committed URL; the original method and body are
	// not re-sent.
	target := navTarget{
		req:    engine.Request{URL: entry.url},
		html:   entry.html,
		inline: entry.inline,
	}
	return p.perform(ctx, target, engine.NavBackForward, mode, 0)
}

// Reload re-runs the current history entry in place. Reloading a page that
// never committed anything is a no-op.
func (p *Page) Reload(ctx context.Context) error {
	return p.reload(ctx, 0)
}

func (p *Page) reload(ctx context.Context, depth int) error {
	p.mu.Lock()
	closed := p.closed
	entry, ok := p.hist.current()
	p.mu.Unlock()
	if closed {
		return engine.ErrClosed
	}
	if !ok {
		return nil
	}
	target := navTarget{req: entry.req, html: entry.html, inline: entry.inline}
	return p.perform(ctx, target, engine.NavReload, navReload, depth)
}

// Stop cancels the in-flight load, if any. The interrupted load reports
// cancellation through the event stream, not through Stop's return.
func (p *Page) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Eval runs script against the current document. Navigation requested by the
// script is performed after it returns.
func (p *Page) Eval(ctx context.Context, script string) error {
	p.mu.Lock()
	closed := p.closed
	host := p.host
	p.mu.Unlock()
	if closed {
		return engine.ErrClosed
	}
	if !p.cfg.JavaScriptEnabled {
		p.log.Debug("eval skipped: javascript disabled")
		return nil
	}

	err := host.run(ctx, script, "injected")
	if err != nil {
		if m := p.metrics(); m != nil {
			m.RecordScriptError(p.eng.Name())
		}
	}
	if pend := host.takePending(); pend != nil {
		p.followPending(ctx, pend, 0)
	}
	return err
}

// InstallBridge exposes deliver as a page global. The binding is re-created
// on every committed navigation until removed.
func (p *Page) InstallBridge(name string, deliver func(payload string)) error {
	if m := p.metrics(); m != nil {
		fwd := deliver
		deliver = func(payload string) {
			m.RecordBridgeMessage("in")
			fwd(payload)
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.bridges[name] = deliver
	host := p.host
	p.mu.Unlock()

	host.installBridge(name, deliver)
	return nil
}

// RemoveBridge deletes the page global installed under name.
func (p *Page) RemoveBridge(name string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	delete(p.bridges, name)
	host := p.host
	p.mu.Unlock()

	host.removeBridge(name)
	return nil
}

// URL reports the committed URL, or about:blank before the first commit.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urlLocked()
}

func (p *Page) urlLocked() string {
	if entry, ok := p.hist.current(); ok {
		return entry.url
	}
	return "about:blank"
}

// Title reports the current document title.
func (p *Page) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// CanGoBack reports whether a previous history entry exists.
func (p *Page) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hist.canMove(-1)
}

// CanGoForward reports whether a next history entry exists.
func (p *Page) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hist.canMove(1)
}

// Loading reports whether a load is in flight.
func (p *Page) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Close releases the page. Safe to call twice.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.eng.forget(p)
	return nil
}

// perform runs one full load: gate, fetch or render, commit, document
// scripts, lifecycle events. Load failures surface as error events and a nil
// return; only a closed page returns an error.
func (p *Page) perform(parent context.Context, target navTarget, typ engine.NavigationType, mode navMode, depth int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	referer := p.referer
	p.mu.Unlock()

	targetURL := target.req.URL
	if targetURL == "" {
		targetURL = "about:blank"
	}

	// Inline renders are pre-authorized by the caller; everything else,
	// including attempts this engine originates, goes through the gate.
	if !target.inline {
		decision := engine.Allow
		if p.cfg.Gate != nil {
			decision = p.cfg.Gate(engine.Navigation{URL: targetURL, MainFrame: true, Type: typ})
		}
		if decision != engine.Allow {
			p.log.Debug("navigation suppressed by gate",
				zap.String("url", targetURL),
				zap.String("type", string(typ)))
			if m := p.metrics(); m != nil {
				m.RecordBlockedNavigation(p.eng.Name())
			}
			return nil
		}
	}

	var timer *monitoring.Timer
	if m := p.metrics(); m != nil {
		timer = monitoring.NewTimer(m, p.eng.Name())
	}
	loadCtx, cancel := context.WithCancel(parent)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return engine.ErrClosed
	}
	p.loading = true
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.loading = false
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	p.emit(engine.EventStart, func(ev *engine.Event) {
		ev.URL = targetURL
		ev.Type = typ
	})
	progress := func(v float64) {
		p.emit(engine.EventProgress, func(ev *engine.Event) {
			ev.URL = targetURL
			ev.Type = typ
			ev.Progress = v
		})
	}

	var (
		doc     *document
		status  = http.StatusOK
		errBody []byte
		lerr    *loadError
	)
	switch {
	case target.inline:
		doc, lerr = parseInline(targetURL, target.html)
	case isAboutBlank(targetURL):
		doc = newBlankDocument()
	default:
		lerr = validateURL(targetURL)
		if lerr == nil {
			var res *fetched
			res, lerr = p.eng.fetch.do(loadCtx, p.client, target.req, referer)
			if lerr == nil {
				targetURL = res.url
				status = res.status
				if status >= 400 {
					errBody = res.body
				}
				doc, lerr = p.parse(res)
			}
		}
	}
	if lerr != nil {
		p.log.Warn("load failed",
			zap.String("url", targetURL),
			zap.Int("code", lerr.Code),
			zap.String("domain", lerr.Domain),
			zap.String("description", lerr.Description))
		p.emit(engine.EventError, func(ev *engine.Event) {
			ev.URL = targetURL
			ev.Type = typ
			ev.Code = lerr.Code
			ev.Domain = lerr.Domain
			ev.Description = lerr.Description
		})
		if timer != nil {
			timer.Stop("error")
		}
		return nil
	}
	progress(0.1)

	// Commit: swap the document, settle history, rebuild the script world.
	entry := historyEntry{
		url:    targetURL,
		req:    target.req,
		html:   target.html,
		inline: target.inline,
	}
	p.mu.Lock()
	p.doc = doc
	p.title = doc.title
	switch mode {
	case navPush:
		p.hist.push(entry)
	case navReplace, navReload:
		p.hist.replace(entry)
	case navBack:
		p.hist.move(-1)
		p.hist.replace(entry)
	case navForward:
		p.hist.move(1)
		p.hist.replace(entry)
	}
	if isWebScheme(targetURL) {
		p.referer = targetURL
	}
	host := newScriptHost(p, doc, p.eng.cfg.ScriptBudget, p.log)
	p.host = host
	bridges := make(map[string]func(string), len(p.bridges))
	for name, deliver := range p.bridges {
		bridges[name] = deliver
	}
	p.mu.Unlock()
	for name, deliver := range bridges {
		host.installBridge(name, deliver)
	}
	progress(0.6)

	if status >= 400 {
		desc := http.StatusText(status)
		if snip := errorSnippet(errBody, 160); snip != "" {
			desc = desc + ": " + snip
		}
		p.emit(engine.EventHTTPError, func(ev *engine.Event) {
			ev.URL = targetURL
			ev.Type = typ
			ev.StatusCode = status
			ev.Description = desc
		})
	}

	if p.cfg.JavaScriptEnabled {
		p.runScripts(loadCtx, doc, host)
		progress(0.85)
	}

	progress(1.0)
	p.emit(engine.EventEnd, func(ev *engine.Event) {
		ev.URL = targetURL
		ev.Type = typ
	})
	if timer != nil {
		result := "end"
		if status >= 400 {
			result = "http-error"
		}
		timer.Stop(result)
	}

	if pend := host.takePending(); pend != nil {
		p.followPending(parent, pend, depth)
	}
	return nil
}

// followPending runs a navigation a script asked for, bounding the chain.
func (p *Page) followPending(ctx context.Context, pend *pendingNav, depth int) {
	if depth >= maxScriptNavChain {
		p.log.Warn("script navigation chain too deep, dropping",
			zap.String("url", pend.req.URL),
			zap.Int("depth", depth))
		return
	}
	if pend.reload {
		_ = p.reload(ctx, depth+1)
		return
	}
	mode := navPush
	if pend.replace {
		mode = navReplace
	}
	_ = p.perform(ctx, navTarget{req: pend.req}, pend.typ, mode, depth+1)
}

// runScripts executes the document's scripts in order. A failing script is
// logged and skipped; it does not fail the load.
func (p *Page) runScripts(ctx context.Context, doc *document, host *scriptHost) {
	scripts := doc.scripts()
	if len(scripts) > maxPageScripts {
		p.log.Debug("document script count capped",
			zap.Int("total", len(scripts)),
			zap.Int("cap", maxPageScripts))
		scripts = scripts[:maxPageScripts]
	}
	for _, s := range scripts {
		if ctx.Err() != nil {
			return
		}
		code, src := s.code, "inline"
		if s.src != "" {
			text, err := p.eng.fetch.fetchText(ctx, p.client, s.src, doc.loc.String())
			if err != nil {
				p.log.Debug("external script fetch failed",
					zap.String("src", s.src),
					zap.Error(err))
				continue
			}
			code, src = text, s.src
		}
		if err := host.run(ctx, code, src); err != nil {
			p.log.Warn("page script failed", zap.Error(err))
			if m := p.metrics(); m != nil {
				m.RecordScriptError(p.eng.Name())
			}
		}
	}
}

// scriptSetTitle applies a document.title assignment from script.
func (p *Page) scriptSetTitle(title string) {
	p.mu.Lock()
	if p.doc != nil {
		p.doc.setTitle(title)
	}
	p.title = title
	p.mu.Unlock()
	p.emit(engine.EventTitleChanged, nil)
}

func (p *Page) userAgent() string {
	return p.ua
}

func (p *Page) metrics() *monitoring.Metrics {
	return p.eng.cfg.Metrics
}

// emit snapshots page state into an event, applies the kind-specific fields
// and hands it to the sink outside the page lock.
func (p *Page) emit(kind engine.EventKind, mutate func(*engine.Event)) {
	if p.cfg.Events == nil {
		return
	}
	ev := engine.Event{Kind: kind}
	p.mu.Lock()
	ev.URL = p.urlLocked()
	ev.Title = p.title
	ev.CanGoBack = p.hist.canMove(-1)
	ev.CanGoForward = p.hist.canMove(1)
	p.mu.Unlock()
	if mutate != nil {
		mutate(&ev)
	}
	p.cfg.Events(ev)
}

// parse turns a fetch result into a document.
func (p *Page) parse(res *fetched) (*document, *loadError) {
	doc, err := parseDocument(res.url, res.contentType, res.body)
	if err != nil {
		return nil, &loadError{
			Code:        engine.CodeUnknown,
			Domain:      engine.DomainContent,
			Description: fmt.Sprintf("parse document: %v", err),
		}
	}
	return doc, nil
}

func parseInline(baseURL, html string) (*document, *loadError) {
	doc, err := parseDocument(baseURL, "text/html", []byte(html))
	if err != nil {
		return nil, &loadError{
			Code:        engine.CodeUnknown,
			Domain:      engine.DomainContent,
			Description: fmt.Sprintf("parse inline document: %v", err),
		}
	}
	return doc, nil
}

// validateURL rejects what the fetcher cannot load. Runs after the gate so
// non-web schemes the gate chose to hand off never reach it.
func validateURL(raw string) *loadError {
	u, err := url.Parse(raw)
	if err != nil {
		return &loadError{
			Code:        engine.CodeBadURL,
			Domain:      engine.DomainNetwork,
			Description: fmt.Sprintf("malformed URL: %v", err),
		}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return &loadError{
			Code:        engine.CodeUnsupportedScheme,
			Domain:      engine.DomainNetwork,
			Description: "unsupported scheme " + strings.ToLower(u.Scheme),
		}
	}
}

func isAboutBlank(raw string) bool {
	return strings.EqualFold(raw, "about:blank")
}

func isWebScheme(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

package chromium

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
)

// navOverride reshapes the next approved main-frame request. Goto only
// issues GETs; method, body and extra headers ride in through route
// interception instead.
type navOverride struct {
	method  string
	headers map[string]string
	body    []byte
}

// inlineDoc is markup waiting to be served in place of the next main-frame
// request. Serving it through route fulfillment gives the document a real
// base URL, which plain SetContent cannot do.
type inlineDoc struct {
	html string
	base string
}

// Page drives one Playwright page. Lifecycle events arrive on the driver's
// event goroutines; mutating calls are serialized by the caller.
type Page struct {
	eng *Engine
	cfg engine.PageConfig
	log *logging.Logger
	pw  playwright.Page
	// ownCtx is non-nil when this page holds a dedicated browser context.
	ownCtx playwright.BrowserContext

	mu sync.Mutex
	// navType and travDelta describe the host call in flight so commit-time
	// handlers can attribute the navigation correctly.
	navType    engine.NavigationType
	travDelta  int
	inflightOp bool
	denied     bool
	override   *navOverride
	inline     *inlineDoc

	// Per-load state, reset at each commit or terminal event.
	navRequested  bool
	started       bool
	hadHTTPError  bool
	pendingStatus int
	pendingSText  string
	commitAt      time.Time

	// Approximate traversal position. Playwright exposes no history
	// introspection, so commits and traversals are counted here.
	histPos int
	histLen int

	bridges   map[string]func(string)
	bridgeGen int
	lastTitle string
	closed    bool
}

var _ engine.Page = (*Page)(nil)

// wire installs bindings, init scripts, routing and event handlers. Runs
// once, before the page sees any navigation.
func (p *Page) wire() error {
	if err := p.pw.ExposeFunction(bridgeBinding, p.handleBridgePost); err != nil {
		return fmt.Errorf("expose bridge binding: %w", err)
	}
	if err := p.pw.ExposeFunction(titleBinding, p.handleTitleReport); err != nil {
		return fmt.Errorf("expose title binding: %w", err)
	}
	observer := titleObserverJS
	if err := p.pw.AddInitScript(playwright.Script{Content: &observer}); err != nil {
		return fmt.Errorf("add title observer: %w", err)
	}
	if err := p.pw.Route("**/*", p.route); err != nil {
		return fmt.Errorf("install route interception: %w", err)
	}

	p.pw.OnRequest(p.onRequest)
	p.pw.OnResponse(p.onResponse)
	p.pw.OnRequestFailed(p.onRequestFailed)
	p.pw.OnFrameNavigated(p.onFrameNavigated)
	p.pw.OnDOMContentLoaded(func(playwright.Page) { p.onDOMContentLoaded() })
	p.pw.OnLoad(func(playwright.Page) { p.onLoad() })
	p.pw.OnCrash(func(playwright.Page) { p.onCrash() })
	p.pw.OnClose(func(playwright.Page) { p.onClosed() })
	p.pw.OnPageError(func(err error) {
		p.log.Debug("uncaught page exception", zap.Error(err))
		if m := p.metrics(); m != nil {
			m.RecordScriptError("chromium")
		}
	})
	p.pw.OnConsole(func(msg playwright.ConsoleMessage) {
		p.log.Debug("page console", zap.String("level", msg.Type()), zap.String("text", msg.Text()))
	})

	p.pw.SetDefaultTimeout(float64(p.eng.cfg.NavTimeout / time.Millisecond))
	return nil
}

// route is the single interception point. Every navigation attempt, whether
// host-driven or page-initiated, passes the gate here exactly once; redirect
// hops of an approved attempt and subresource fetches pass through.
func (p *Page) route(r playwright.Route) {
	req := r.Request()
	if !req.IsNavigationRequest() || req.RedirectedFrom() != nil {
		_ = r.Continue()
		return
	}
	main := req.Frame().ParentFrame() == nil

	if main {
		// Inline markup waiting to be served bypasses the gate; the caller
		// has already enforced the inline-content rules.
		p.mu.Lock()
		if doc := p.inline; doc != nil {
			p.inline = nil
			p.mu.Unlock()
			status := 200
			ctype := "text/html; charset=utf-8"
			_ = r.Fulfill(playwright.RouteFulfillOptions{
				Status:      &status,
				ContentType: &ctype,
				Body:        doc.html,
			})
			return
		}
		p.mu.Unlock()
	}

	typ := engine.NavOther
	if req.Method() == "POST" {
		typ = engine.NavFormSubmit
	}
	p.mu.Lock()
	if main && p.navType != engine.NavOther {
		typ = p.navType
	}
	gate := p.cfg.Gate
	p.mu.Unlock()

	decision := engine.Allow
	if gate != nil {
		decision = gate(engine.Navigation{URL: req.URL(), MainFrame: main, Type: typ})
	}
	if decision != engine.Allow {
		if main {
			p.mu.Lock()
			p.denied = true
			p.mu.Unlock()
		}
		p.log.Debug("navigation suppressed by gate",
			zap.String("url", req.URL()),
			zap.Bool("main_frame", main))
		if m := p.metrics(); m != nil {
			m.RecordBlockedNavigation("chromium")
		}
		_ = r.Abort("aborted")
		return
	}

	p.mu.Lock()
	ov := p.override
	p.override = nil
	p.mu.Unlock()
	if main && ov != nil {
		opts := playwright.RouteContinueOptions{}
		if ov.method != "" {
			opts.Method = &ov.method
		}
		if len(ov.body) > 0 {
			opts.PostData = ov.body
		}
		if len(ov.headers) > 0 {
			merged := make(map[string]string, len(ov.headers))
			for k, v := range req.Headers() {
				merged[k] = v
			}
			for k, v := range ov.headers {
				merged[k] = v
			}
			opts.Headers = merged
		}
		_ = r.Continue(opts)
		return
	}
	_ = r.Continue()
}

func (p *Page) onRequest(req playwright.Request) {
	if !req.IsNavigationRequest() || req.RedirectedFrom() != nil {
		return
	}
	if req.Frame().ParentFrame() != nil {
		return
	}
	p.mu.Lock()
	p.navRequested = true
	p.mu.Unlock()
}

func (p *Page) onResponse(resp playwright.Response) {
	req := resp.Request()
	if !req.IsNavigationRequest() || req.Frame().ParentFrame() != nil {
		return
	}
	p.mu.Lock()
	p.pendingStatus = resp.Status()
	p.pendingSText = resp.StatusText()
	p.mu.Unlock()
}

// onFrameNavigated marks the commit of a main-frame navigation: the start
// event is emitted here, with any buffered HTTP error status right after.
// Same-document transitions, which commit without a network request, stay
// silent.
func (p *Page) onFrameNavigated(frame playwright.Frame) {
	if frame.ParentFrame() != nil {
		return
	}
	p.mu.Lock()
	if !p.navRequested {
		p.mu.Unlock()
		return
	}
	p.navRequested = false
	typ := p.navType
	status := p.pendingStatus
	stext := p.pendingSText
	p.pendingStatus = 0
	p.pendingSText = ""
	p.started = true
	p.hadHTTPError = status >= 400
	p.commitAt = time.Now()
	switch {
	case p.travDelta != 0:
		p.histPos += p.travDelta
		if p.histPos < 1 {
			p.histPos = 1
		}
		if p.histPos > p.histLen {
			p.histPos = p.histLen
		}
	case typ == engine.NavReload:
		// Position unchanged.
	default:
		p.histPos++
		p.histLen = p.histPos
	}
	url := frame.URL()
	p.mu.Unlock()

	p.emit(engine.EventStart, func(e *engine.Event) {
		e.URL = url
		e.Type = typ
	})
	if status >= 400 {
		p.emit(engine.EventHTTPError, func(e *engine.Event) {
			e.URL = url
			e.Type = typ
			e.StatusCode = status
			e.Description = stext
		})
	}
}

func (p *Page) onDOMContentLoaded() {
	p.mu.Lock()
	started := p.started
	typ := p.navType
	p.mu.Unlock()
	if !started {
		return
	}
	p.emit(engine.EventProgress, func(e *engine.Event) {
		e.Type = typ
		e.Progress = 0.6
	})
}

func (p *Page) onLoad() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	typ := p.navType
	httpErr := p.hadHTTPError
	p.hadHTTPError = false
	elapsed := time.Since(p.commitAt)
	p.mu.Unlock()

	p.emit(engine.EventProgress, func(e *engine.Event) {
		e.Type = typ
		e.Progress = 1.0
	})
	p.emit(engine.EventEnd, func(e *engine.Event) {
		e.Type = typ
	})
	if m := p.metrics(); m != nil {
		result := "end"
		if httpErr {
			result = "http-error"
		}
		m.RecordNavigation("chromium", result, elapsed)
	}
}

// onRequestFailed covers page-initiated attempts that die before commit;
// host-driven failures surface through the blocked playwright call instead.
func (p *Page) onRequestFailed(req playwright.Request) {
	if !req.IsNavigationRequest() || req.Frame().ParentFrame() != nil {
		return
	}
	p.mu.Lock()
	p.navRequested = false
	if p.inflightOp || p.started {
		p.mu.Unlock()
		return
	}
	if p.denied {
		p.denied = false
		p.mu.Unlock()
		return
	}
	typ := p.navType
	p.mu.Unlock()
	p.failLoad(req.URL(), typ, req.Failure(), time.Now())
}

func (p *Page) onCrash() {
	p.mu.Lock()
	p.started = false
	p.navRequested = false
	p.mu.Unlock()
	p.log.Warn("renderer process crashed")
	p.emit(engine.EventTerminated, nil)
}

func (p *Page) onClosed() {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if !already {
		p.eng.forget(p)
	}
}

// Navigate loads req. The gate runs inside route interception; a denied
// attempt produces no events and no error.
func (p *Page) Navigate(ctx context.Context, req engine.Request) error {
	var ov *navOverride
	if req.Method != "" && req.Method != "GET" || len(req.Headers) > 0 || len(req.Body) > 0 {
		ov = &navOverride{method: req.Method, headers: req.Headers, body: req.Body}
		if ov.method == "GET" {
			ov.method = ""
		}
	}
	return p.run(req.URL, engine.NavOther, 0, ov, func() error {
		_, err := p.pw.Goto(req.URL, p.gotoOpts())
		return err
	})
}

// SetContent serves markup as the document at baseURL via route fulfillment.
// With no usable base the page falls back to plain playwright content
// replacement and a synthesized event sequence.
func (p *Page) SetContent(ctx context.Context, html, baseURL string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.mu.Unlock()

	if baseURL == "" || baseURL == "about:blank" {
		began := time.Now()
		p.emit(engine.EventStart, func(e *engine.Event) {
			e.URL = "about:blank"
		})
		opts := playwright.PageSetContentOptions{
			Timeout:   playwright.Float(p.timeoutMS()),
			WaitUntil: waitLoad(),
		}
		if err := p.pw.SetContent(html, opts); err != nil {
			p.emitLoadError("about:blank", engine.NavOther, err, began)
			return nil
		}
		p.emit(engine.EventProgress, func(e *engine.Event) { e.Progress = 1.0 })
		p.emit(engine.EventEnd, nil)
		return nil
	}

	p.mu.Lock()
	p.inline = &inlineDoc{html: html, base: baseURL}
	p.mu.Unlock()
	err := p.run(baseURL, engine.NavOther, 0, nil, func() error {
		_, gerr := p.pw.Goto(baseURL, p.gotoOpts())
		return gerr
	})
	p.mu.Lock()
	p.inline = nil
	p.mu.Unlock()
	return err
}

// Back traverses history. The target URL is only known at commit, so events
// flow from the lifecycle handlers rather than from this call.
func (p *Page) Back(ctx context.Context) error {
	return p.run("", engine.NavBackForward, -1, nil, func() error {
		resp, err := p.pw.GoBack(playwright.PageGoBackOptions{
			Timeout:   playwright.Float(p.timeoutMS()),
			WaitUntil: waitLoad(),
		})
		if err == nil && resp == nil {
			return nil
		}
		return err
	})
}

func (p *Page) Forward(ctx context.Context) error {
	return p.run("", engine.NavBackForward, 1, nil, func() error {
		resp, err := p.pw.GoForward(playwright.PageGoForwardOptions{
			Timeout:   playwright.Float(p.timeoutMS()),
			WaitUntil: waitLoad(),
		})
		if err == nil && resp == nil {
			return nil
		}
		return err
	})
}

func (p *Page) Reload(ctx context.Context) error {
	return p.run("", engine.NavReload, 0, nil, func() error {
		_, err := p.pw.Reload(playwright.PageReloadOptions{
			Timeout:   playwright.Float(p.timeoutMS()),
			WaitUntil: waitLoad(),
		})
		return err
	})
}

// run frames one host-driven navigation call: stage the attribution state,
// invoke playwright, then translate the outcome. Load failures become error
// events, not Go errors; gate denials stay silent.
func (p *Page) run(url string, typ engine.NavigationType, delta int, ov *navOverride, fn func() error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.navType = typ
	p.travDelta = delta
	p.override = ov
	p.inflightOp = true
	p.denied = false
	p.mu.Unlock()

	began := time.Now()
	err := fn()

	p.mu.Lock()
	p.navType = engine.NavOther
	p.travDelta = 0
	p.override = nil
	p.inflightOp = false
	denied := p.denied
	p.denied = false
	p.mu.Unlock()

	if err == nil || denied {
		return nil
	}
	p.failLoad(url, typ, err, began)
	return nil
}

// failLoad emits the error terminal, preceded by a start event when the
// attempt never reached commit.
func (p *Page) failLoad(url string, typ engine.NavigationType, cause error, began time.Time) {
	p.mu.Lock()
	wasStarted := p.started
	p.started = false
	p.hadHTTPError = false
	if url == "" {
		url = p.pw.URL()
	}
	p.mu.Unlock()

	if !wasStarted {
		p.emit(engine.EventStart, func(e *engine.Event) {
			e.URL = url
			e.Type = typ
		})
	}
	p.emitLoadError(url, typ, cause, began)
}

func (p *Page) emitLoadError(url string, typ engine.NavigationType, cause error, began time.Time) {
	code, domain, desc := classifyNav(cause)
	p.log.Warn("load failed",
		zap.String("url", url),
		zap.Int("code", code),
		zap.String("domain", domain),
		zap.Error(cause))
	p.emit(engine.EventError, func(e *engine.Event) {
		e.URL = url
		e.Type = typ
		e.Code = code
		e.Domain = domain
		e.Description = desc
	})
	if m := p.metrics(); m != nil {
		m.RecordNavigation("chromium", "error", time.Since(began))
	}
}

// Stop asks the document to stop loading. Best effort: the load may have
// already finished, or may finish anyway with what arrived.
func (p *Page) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.mu.Unlock()
	if _, err := p.pw.Evaluate("window.stop()"); err != nil {
		p.log.Debug("stop request failed", zap.Error(err))
	}
	return nil
}

// Eval runs script in the page, discarding the result.
func (p *Page) Eval(ctx context.Context, script string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.mu.Unlock()
	if !p.cfg.JavaScriptEnabled {
		p.log.Debug("eval skipped: javascript disabled")
		return nil
	}
	if _, err := p.pw.Evaluate(script); err != nil {
		if m := p.metrics(); m != nil {
			m.RecordScriptError("chromium")
		}
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "about:blank"
	}
	return p.pw.URL()
}

func (p *Page) Title() string {
	p.mu.Lock()
	closed := p.closed
	last := p.lastTitle
	p.mu.Unlock()
	if closed {
		return last
	}
	title, err := p.pw.Title()
	if err != nil {
		return last
	}
	p.mu.Lock()
	p.lastTitle = title
	p.mu.Unlock()
	return title
}

func (p *Page) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histPos > 1
}

func (p *Page) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histPos < p.histLen
}

func (p *Page) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Close tears the page down, along with its dedicated context if it has one.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	own := p.ownCtx
	p.mu.Unlock()

	p.eng.forget(p)
	err := p.pw.Close()
	if own != nil {
		if cerr := own.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	return nil
}

// emit snapshots page state, applies the mutation, and hands the event to
// the sink. The sink contract requires it to be cheap and non-blocking.
func (p *Page) emit(kind engine.EventKind, mutate func(*engine.Event)) {
	sink := p.cfg.Events
	if sink == nil {
		return
	}
	p.mu.Lock()
	ev := engine.Event{
		Kind:         kind,
		URL:          p.pw.URL(),
		Title:        p.lastTitle,
		CanGoBack:    p.histPos > 1,
		CanGoForward: p.histPos < p.histLen,
	}
	p.mu.Unlock()
	if mutate != nil {
		mutate(&ev)
	}
	sink(ev)
}

func (p *Page) gotoOpts() playwright.PageGotoOptions {
	return playwright.PageGotoOptions{
		Timeout:   playwright.Float(p.timeoutMS()),
		WaitUntil: waitLoad(),
	}
}

func (p *Page) timeoutMS() float64 {
	return float64(p.eng.cfg.NavTimeout / time.Millisecond)
}

func (p *Page) metrics() *monitoring.Metrics {
	return p.eng.cfg.Metrics
}

func waitLoad() *playwright.WaitUntilState {
	wait := playwright.WaitUntilState("load")
	return &wait
}

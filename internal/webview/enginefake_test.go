package webview

import (
	"context"
	"sync"

	"github.com/ThuyDang88/webview/internal/engine"
)

// fakeEngine drives the core through hand-scripted pages.
type fakeEngine struct {
	mu    sync.Mutex
	pages []*fakePage
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) NewPage(_ context.Context, cfg engine.PageConfig) (engine.Page, error) {
	p := &fakePage{
		cfg:     cfg,
		bridges: make(map[string]func(string)),
		url:     "about:blank",
	}
	f.mu.Lock()
	f.pages = append(f.pages, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) page() *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[len(f.pages)-1]
}

// fakePage mimics engine behavior: it consults the gate exactly where a
// real backend would and emits a plain start/progress/end sequence for
// committed loads unless a custom script is installed.
type fakePage struct {
	cfg engine.PageConfig

	// script overrides the default emission for committed navigations.
	script func(p *fakePage, url string, typ engine.NavigationType)

	mu          sync.Mutex
	url         string
	title       string
	history     []string
	cursor      int
	navigations []engine.Request
	contents    []string
	evals       []string
	bridges     map[string]func(string)
	stops       int
	closed      bool
}

func (p *fakePage) Navigate(_ context.Context, req engine.Request) error {
	return p.attempt(req.URL, true, engine.NavOther, func() {
		p.mu.Lock()
		p.navigations = append(p.navigations, req)
		p.url = req.URL
		p.history = append(p.history[:p.cursor], req.URL)
		p.cursor = len(p.history)
		p.mu.Unlock()
	})
}

func (p *fakePage) SetContent(_ context.Context, html, baseURL string) error {
	p.mu.Lock()
	p.contents = append(p.contents, html)
	if baseURL == "" {
		baseURL = "about:blank"
	}
	p.url = baseURL
	p.mu.Unlock()
	p.commit(baseURL, engine.NavOther)
	return nil
}

func (p *fakePage) Back(_ context.Context) error {
	p.mu.Lock()
	if p.cursor <= 1 {
		p.mu.Unlock()
		return nil
	}
	target := p.history[p.cursor-2]
	p.mu.Unlock()

	return p.attempt(target, true, engine.NavBackForward, func() {
		p.mu.Lock()
		p.cursor--
		p.url = target
		p.mu.Unlock()
	})
}

func (p *fakePage) Forward(_ context.Context) error {
	p.mu.Lock()
	if p.cursor >= len(p.history) {
		p.mu.Unlock()
		return nil
	}
	target := p.history[p.cursor]
	p.mu.Unlock()

	return p.attempt(target, true, engine.NavBackForward, func() {
		p.mu.Lock()
		p.cursor++
		p.url = target
		p.mu.Unlock()
	})
}

func (p *fakePage) Reload(_ context.Context) error {
	p.mu.Lock()
	target := p.url
	p.mu.Unlock()
	return p.attempt(target, true, engine.NavReload, nil)
}

func (p *fakePage) Stop(_ context.Context) error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Eval(_ context.Context, script string) error {
	p.mu.Lock()
	p.evals = append(p.evals, script)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) InstallBridge(name string, deliver func(string)) error {
	p.mu.Lock()
	p.bridges[name] = deliver
	p.mu.Unlock()
	return nil
}

func (p *fakePage) RemoveBridge(name string) error {
	p.mu.Lock()
	delete(p.bridges, name)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *fakePage) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor > 1
}

func (p *fakePage) CanGoForward() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor < len(p.history)
}

func (p *fakePage) Loading() bool { return false }

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// attempt runs one gated navigation the way a real engine would.
func (p *fakePage) attempt(url string, mainFrame bool, typ engine.NavigationType, commit func()) error {
	if p.cfg.Gate != nil {
		if d := p.cfg.Gate(engine.Navigation{URL: url, MainFrame: mainFrame, Type: typ}); d != engine.Allow {
			return nil
		}
	}
	if commit != nil {
		commit()
	}
	p.commit(url, typ)
	return nil
}

// subframeAttempt exercises the gate for an iframe target.
func (p *fakePage) subframeAttempt(url string) engine.Decision {
	return p.cfg.Gate(engine.Navigation{URL: url, MainFrame: false, Type: engine.NavOther})
}

// commit emits the lifecycle sequence for a committed load.
func (p *fakePage) commit(url string, typ engine.NavigationType) {
	if p.script != nil {
		p.script(p, url, typ)
		return
	}
	p.emit(engine.Event{Kind: engine.EventStart, URL: url, Type: typ})
	p.emit(engine.Event{Kind: engine.EventProgress, URL: url, Type: typ, Progress: 0.5})
	p.emit(engine.Event{Kind: engine.EventEnd, URL: url, Type: typ})
}

// emit fills in shared state fields and hands the event to the sink.
func (p *fakePage) emit(ev engine.Event) {
	p.mu.Lock()
	if ev.Title == "" {
		ev.Title = p.title
	}
	ev.CanGoBack = p.cursor > 1
	ev.CanGoForward = p.cursor < len(p.history)
	p.mu.Unlock()
	p.cfg.Events(ev)
}

// snapshotEvals copies the eval log.
func (p *fakePage) snapshotEvals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.evals))
	copy(out, p.evals)
	return out
}

// flush waits for both view lanes to drain: first the ops lane (which may
// queue callback work), then the callback lane.
func flush(v *View) {
	for _, l := range []*lane{v.ops, v.callbacks} {
		done := make(chan struct{})
		l.push(func() { close(done) })
		<-done
	}
}

package inproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThuyDang88/webview/internal/engine"
)

// eventLog collects sink events for assertion.
type eventLog struct {
	mu     sync.Mutex
	events []engine.Event
}

func (l *eventLog) sink(ev engine.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []engine.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]engine.EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) find(kind engine.EventKind) (engine.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return engine.Event{}, false
}

func (l *eventLog) all(kind engine.EventKind) []engine.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []engine.Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func indexOf(kinds []engine.EventKind, k engine.EventKind) int {
	for i, kind := range kinds {
		if kind == k {
			return i
		}
	}
	return -1
}

func allowAll(engine.Navigation) engine.Decision { return engine.Allow }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{
		Transport:    http.DefaultTransport,
		FetchTimeout: 5 * time.Second,
		ScriptBudget: 2 * time.Second,
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newTestPage(t *testing.T, e *Engine, cfg engine.PageConfig) *Page {
	t.Helper()
	if cfg.Gate == nil {
		cfg.Gate = allowAll
	}
	pg, err := e.NewPage(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	return pg.(*Page)
}

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPageLoadEmitsLifecycleSequence(t *testing.T) {
	srv := serveHTML(t, "<html><head><title>Hello</title></head><body>ok</body></html>")
	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Events:            log.sink,
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	assert.Equal(t, []engine.EventKind{
		engine.EventStart,
		engine.EventProgress,
		engine.EventProgress,
		engine.EventProgress,
		engine.EventProgress,
		engine.EventEnd,
	}, log.kinds())

	last := -1.0
	for _, ev := range log.all(engine.EventProgress) {
		assert.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
	}
	assert.Equal(t, 1.0, last)

	end, ok := log.find(engine.EventEnd)
	require.True(t, ok)
	assert.Equal(t, srv.URL, end.URL)
	assert.Equal(t, "Hello", end.Title)

	assert.Equal(t, srv.URL, p.URL())
	assert.Equal(t, "Hello", p.Title())
	assert.False(t, p.Loading())
}

func TestPageGateDeniedSuppressesLoad(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	t.Cleanup(srv.Close)

	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate:   func(engine.Navigation) engine.Decision { return engine.Cancel },
		Events: log.sink,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	assert.Zero(t, log.len(), "denied attempt must emit nothing")
	assert.Zero(t, atomic.LoadInt32(&hits), "denied attempt must not hit the network")
	assert.Equal(t, "about:blank", p.URL())
}

func TestPageGateObservesAttempt(t *testing.T) {
	srv := serveHTML(t, "<html></html>")
	var got engine.Navigation
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			got = nav
			return engine.Allow
		},
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	assert.Equal(t, srv.URL, got.URL)
	assert.True(t, got.MainFrame)
	assert.Equal(t, engine.NavOther, got.Type)
}

func TestPageHTTPErrorInterleavesBeforeEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><head><title>Missing</title></head></html>"))
	}))
	t.Cleanup(srv.Close)

	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{Events: log.sink})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	kinds := log.kinds()
	he := indexOf(kinds, engine.EventHTTPError)
	end := indexOf(kinds, engine.EventEnd)
	require.GreaterOrEqual(t, he, 0, "http-error must be emitted")
	require.GreaterOrEqual(t, end, 0, "load must still end")
	assert.Less(t, he, end, "http-error precedes end")
	assert.Equal(t, -1, indexOf(kinds, engine.EventError))

	ev, _ := log.find(engine.EventHTTPError)
	assert.Equal(t, http.StatusNotFound, ev.StatusCode)
	assert.Contains(t, ev.Description, "Not Found")

	// The error body still renders.
	assert.Equal(t, "Missing", p.Title())
}

func TestPageConnectionFailureEmitsErrorTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{Events: log.sink})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: dead}))

	kinds := log.kinds()
	assert.Equal(t, engine.EventStart, kinds[0])
	assert.Equal(t, -1, indexOf(kinds, engine.EventEnd), "failed load must not end")

	ev, ok := log.find(engine.EventError)
	require.True(t, ok)
	assert.Equal(t, engine.CodeConnect, ev.Code)
	assert.Equal(t, engine.DomainNetwork, ev.Domain)
	assert.Equal(t, "about:blank", p.URL(), "failed load commits nothing")
}

func TestPageUnsupportedSchemeFailsLoudly(t *testing.T) {
	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{Events: log.sink})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: "ftp://files.example/pub"}))

	ev, ok := log.find(engine.EventError)
	require.True(t, ok)
	assert.Equal(t, engine.CodeUnsupportedScheme, ev.Code)
}

func TestPageBackForwardTraversesHistory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>A</title></head></html>"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>B</title></head></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var types []engine.NavigationType
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			types = append(types, nav.Type)
			return engine.Allow
		},
	})
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, engine.Request{URL: srv.URL + "/a"}))
	require.NoError(t, p.Navigate(ctx, engine.Request{URL: srv.URL + "/b"}))
	assert.True(t, p.CanGoBack())
	assert.False(t, p.CanGoForward())

	require.NoError(t, p.Back(ctx))
	assert.Equal(t, srv.URL+"/a", p.URL())
	assert.Equal(t, "A", p.Title())
	assert.False(t, p.CanGoBack())
	assert.True(t, p.CanGoForward())

	require.NoError(t, p.Forward(ctx))
	assert.Equal(t, srv.URL+"/b", p.URL())
	assert.Equal(t, "B", p.Title())

	assert.Equal(t, []engine.NavigationType{
		engine.NavOther,
		engine.NavOther,
		engine.NavBackForward,
		engine.NavBackForward,
	}, types)
}

func TestPageTraversalWithoutHistoryIsNoOp(t *testing.T) {
	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{Events: log.sink})
	ctx := context.Background()

	require.NoError(t, p.Back(ctx))
	require.NoError(t, p.Forward(ctx))
	require.NoError(t, p.Reload(ctx))
	assert.Zero(t, log.len())
}

func TestPageReloadRefetchesInPlace(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	var types []engine.NavigationType
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			types = append(types, nav.Type)
			return engine.Allow
		},
	})
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, engine.Request{URL: srv.URL}))
	require.NoError(t, p.Reload(ctx))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.False(t, p.CanGoBack(), "reload replaces, it does not push")
	assert.Equal(t, []engine.NavigationType{engine.NavOther, engine.NavReload}, types)
}

func TestPageSetContentRendersWithoutNetwork(t *testing.T) {
	gated := 0
	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(engine.Navigation) engine.Decision {
			gated++
			return engine.Cancel
		},
		Events: log.sink,
	})

	const html = "<html><head><title>Inline</title></head><body><p>hi</p></body></html>"
	require.NoError(t, p.SetContent(context.Background(), html, "http://inline.example/"))

	assert.Zero(t, gated, "inline render is not gated")
	assert.Equal(t, "Inline", p.Title())
	assert.Equal(t, "http://inline.example/", p.URL())

	kinds := log.kinds()
	assert.Equal(t, engine.EventStart, kinds[0])
	assert.Equal(t, engine.EventEnd, kinds[len(kinds)-1])
}

func TestPageInlineHistoryEntryReplaysWithoutFetch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Remote</title></head></html>"))
	}))
	t.Cleanup(srv.Close)

	p := newTestPage(t, newTestEngine(t), engine.PageConfig{})
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, engine.Request{URL: srv.URL}))
	require.NoError(t, p.SetContent(ctx, "<html><head><title>Inline</title></head></html>", "http://inline.example/"))
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	require.NoError(t, p.Back(ctx))
	assert.Equal(t, "Remote", p.Title())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "remote entry refetches")

	require.NoError(t, p.Forward(ctx))
	assert.Equal(t, "Inline", p.Title())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "inline entry re-renders from memory")

	require.NoError(t, p.Reload(ctx))
	assert.Equal(t, "Inline", p.Title())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "inline reload stays offline")
}

func TestPageScriptNavigationIsGatedAndFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>location.href = '/next';</script></body></html>`))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Next</title></head></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var seen []string
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			seen = append(seen, nav.URL)
			return engine.Allow
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL + "/start"}))

	require.Len(t, seen, 2, "script-driven attempt goes through the gate")
	assert.Equal(t, srv.URL+"/next", seen[1])
	assert.Equal(t, srv.URL+"/next", p.URL())
	assert.Equal(t, "Next", p.Title())
	assert.True(t, p.CanGoBack(), "location.href pushes a history entry")
}

func TestPageScriptNavigationDenied(t *testing.T) {
	srv := serveHTML(t, `<html><body><script>location.href = 'http://blocked.example/';</script></body></html>`)

	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			if nav.URL == "http://blocked.example/" {
				return engine.Cancel
			}
			return engine.Allow
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))
	assert.Equal(t, srv.URL, p.URL(), "denied script navigation leaves the page in place")
}

func TestPageAnchorClickNavigatesWithClickType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a id="go" href="/next">next</a>
			<script>document.getElementById('go').click();</script>
		</body></html>`))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Clicked</title></head></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var types []engine.NavigationType
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			types = append(types, nav.Type)
			return engine.Allow
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL + "/start"}))

	require.Len(t, types, 2)
	assert.Equal(t, engine.NavClick, types[1])
	assert.Equal(t, "Clicked", p.Title())
}

func TestPageFormSubmitPostsSerializedFields(t *testing.T) {
	var (
		gotMethod string
		gotType   string
		gotBody   string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<form id="f" method="post" action="/submit">
				<input name="name" value="ada">
				<input name="lang" value="go">
				<input type="checkbox" name="opt" value="1" checked>
				<input type="checkbox" name="off" value="1">
				<input type="submit" name="go" value="Send">
			</form>
			<script>document.getElementById('f').submit();</script>
		</body></html>`))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotBody = r.PostForm.Encode()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Submitted</title></head></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var types []engine.NavigationType
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			types = append(types, nav.Type)
			return engine.Allow
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL + "/start"}))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "lang=go&name=ada&opt=1", gotBody)
	require.Len(t, types, 2)
	assert.Equal(t, engine.NavFormSubmit, types[1])
	assert.Equal(t, "Submitted", p.Title())
}

func TestPageBridgeRoundTrip(t *testing.T) {
	srv := serveHTML(t, `<html><body><script>hostpipe('ping'); hostpipe('pong');</script></body></html>`)

	var (
		mu       sync.Mutex
		received []string
	)
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})
	require.NoError(t, p.InstallBridge("hostpipe", func(payload string) {
		mu.Lock()
		received = append(received, payload)
		mu.Unlock()
	}))

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ping", "pong"}, received)
}

func TestPageBridgeSurvivesNavigations(t *testing.T) {
	first := serveHTML(t, "<html></html>")
	second := serveHTML(t, `<html><body><script>hostpipe('still-here');</script></body></html>`)

	var received []string
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})
	require.NoError(t, p.InstallBridge("hostpipe", func(payload string) {
		received = append(received, payload)
	}))
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, engine.Request{URL: first.URL}))
	require.NoError(t, p.Navigate(ctx, engine.Request{URL: second.URL}))

	assert.Equal(t, []string{"still-here"}, received)
}

func TestPageBridgeRemovedBeforeNavigation(t *testing.T) {
	srv := serveHTML(t, `<html><body><script>hostpipe('ghost');</script></body></html>`)
	log := &eventLog{}

	var received []string
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Events:            log.sink,
		JavaScriptEnabled: true,
	})
	require.NoError(t, p.InstallBridge("hostpipe", func(payload string) {
		received = append(received, payload)
	}))
	require.NoError(t, p.RemoveBridge("hostpipe"))

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	assert.Empty(t, received, "removed bridge must not deliver")
	_, ended := log.find(engine.EventEnd)
	assert.True(t, ended, "script failure does not fail the load")
}

func TestPageTitleChangedFromScript(t *testing.T) {
	srv := serveHTML(t, `<html><head><title>Before</title></head><body><script>document.title = 'After';</script></body></html>`)
	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Events:            log.sink,
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))

	ev, ok := log.find(engine.EventTitleChanged)
	require.True(t, ok)
	assert.Equal(t, "After", ev.Title)
	assert.Equal(t, "After", p.Title())
}

func TestPageExternalScriptExecuted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><script src="/lib.js"></script></head></html>`))
	})
	mux.HandleFunc("/lib.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`document.title = 'FromLib';`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})
	require.NoError(t, p.Navigate(context.Background(), engine.Request{URL: srv.URL}))
	assert.Equal(t, "FromLib", p.Title())
}

func TestPageStopCancelsInFlightLoad(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	log := &eventLog{}
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{Events: log.sink})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Navigate(context.Background(), engine.Request{URL: srv.URL})
	}()

	require.Eventually(t, func() bool {
		_, ok := log.find(engine.EventStart)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("navigate did not return after stop")
	}

	ev, ok := log.find(engine.EventError)
	require.True(t, ok)
	assert.Equal(t, engine.DomainEngine, ev.Domain)
	assert.Equal(t, "load cancelled", ev.Description)
}

func TestPageEvalRunsAgainstDocument(t *testing.T) {
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})
	require.NoError(t, p.Eval(context.Background(), `document.title = 'ByEval';`))
	assert.Equal(t, "ByEval", p.Title())
}

func TestPageEvalReportsScriptErrors(t *testing.T) {
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})
	err := p.Eval(context.Background(), `throw new Error('boom');`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestPageEvalNoOpWhenJavaScriptDisabled(t *testing.T) {
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: false})
	require.NoError(t, p.Eval(context.Background(), `document.title = 'nope';`))
	assert.Equal(t, "", p.Title())
}

func TestPageEvalNavigationGoesThroughGate(t *testing.T) {
	var seen []engine.Navigation
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			seen = append(seen, nav)
			return engine.Cancel
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Eval(context.Background(), `location.href = 'http://elsewhere.example/';`))

	require.Len(t, seen, 1)
	assert.Equal(t, "http://elsewhere.example/", seen[0].URL)
	assert.Equal(t, "about:blank", p.URL(), "denied attempt commits nothing")
}

func TestPageIncognitoCookiesIsolated(t *testing.T) {
	var (
		mu      sync.Mutex
		cookies []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	e := newTestEngine(t)
	normal := newTestPage(t, e, engine.PageConfig{})
	incog := newTestPage(t, e, engine.PageConfig{Incognito: true})
	ctx := context.Background()

	require.NoError(t, normal.Navigate(ctx, engine.Request{URL: srv.URL + "/set"}))
	require.NoError(t, normal.Navigate(ctx, engine.Request{URL: srv.URL + "/echo"}))
	require.NoError(t, incog.Navigate(ctx, engine.Request{URL: srv.URL + "/echo"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, cookies, 2)
	assert.Contains(t, cookies[0], "sid=abc")
	assert.Empty(t, cookies[1], "incognito page must not share the jar")
}

func TestPageClosedRejectsOperations(t *testing.T) {
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{})
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Navigate(context.Background(), engine.Request{URL: "http://x/"}), engine.ErrClosed)
	assert.ErrorIs(t, p.InstallBridge("h", func(string) {}), engine.ErrClosed)
	assert.NoError(t, p.Close(), "close is idempotent")
}

package inproc

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThuyDang88/webview/internal/engine"
)

// reportingPage is a page whose script world can send values back to the
// test through a "report" bridge global.
func reportingPage(t *testing.T, cfg engine.PageConfig) (*Page, func() []string) {
	t.Helper()
	cfg.JavaScriptEnabled = true
	p := newTestPage(t, newTestEngine(t), cfg)

	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, p.InstallBridge("report", func(payload string) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	}))
	return p, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
}

func TestScriptDocumentQueries(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, `<html><body>
		<div id="main">hello</div>
		<span class="item" data-k="v1"></span>
		<span class="item" data-k="v2"></span>
	</body></html>`, "http://fixture.example/"))

	require.NoError(t, p.Eval(ctx, `
		report(document.getElementById('main').textContent);
		report(document.getElementById('main').tagName);
		report(document.querySelector('.item').getAttribute('data-k'));
		report(String(document.querySelectorAll('.item').length));
		report(String(document.querySelector('.absent')));
	`))

	assert.Equal(t, []string{"hello", "DIV", "v1", "2", "null"}, reported())
}

func TestScriptDomMutation(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, `<html><body><div id="x">before</div></body></html>`, "http://fixture.example/"))

	require.NoError(t, p.Eval(ctx, `
		var el = document.getElementById('x');
		el.textContent = 'changed';
		el.setAttribute('data-n', '5');
		report(el.textContent);
		report(el.getAttribute('data-n'));
		report(String(el.hasAttribute('missing')));
		el.removeAttribute('data-n');
		report(String(el.hasAttribute('data-n')));
	`))

	assert.Equal(t, []string{"changed", "5", "false", "false"}, reported())
}

func TestScriptInnerHTMLRoundTrip(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, `<html><body><div id="x"></div></body></html>`, "http://fixture.example/"))

	require.NoError(t, p.Eval(ctx, `
		var el = document.getElementById('x');
		el.innerHTML = '<b>bold</b>';
		report(el.innerHTML);
		report(document.querySelector('#x b').textContent);
	`))

	assert.Equal(t, []string{"<b>bold</b>", "bold"}, reported())
}

func TestScriptScopedQueriesAndMatches(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, `<html><body>
		<div id="outer"><span class="in">one</span></div>
		<span class="in">two</span>
	</body></html>`, "http://fixture.example/"))

	require.NoError(t, p.Eval(ctx, `
		var outer = document.getElementById('outer');
		report(outer.querySelector('.in').textContent);
		report(String(outer.querySelectorAll('.in').length));
		report(String(outer.matches('div')));
		report(String(outer.matches('.nope')));
	`))

	assert.Equal(t, []string{"one", "1", "true", "false"}, reported())
}

func TestScriptInvalidSelectorThrows(t *testing.T) {
	p, _ := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, "<html></html>", "http://fixture.example/"))

	err := p.Eval(ctx, `document.querySelector('<<<');`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid selector")
}

func TestScriptLocationParts(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, "<html></html>", "http://host.example:8080/path/page?q=1#top"))

	require.NoError(t, p.Eval(ctx, `
		report(location.protocol);
		report(location.host);
		report(location.hostname);
		report(location.pathname);
		report(location.search);
		report(location.hash);
		report(location.origin);
	`))

	assert.Equal(t, []string{
		"http:",
		"host.example:8080",
		"host.example",
		"/path/page",
		"?q=1",
		"#top",
		"http://host.example:8080",
	}, reported())
}

func TestScriptBridgeArgumentValidation(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()

	err := p.Eval(ctx, `report(42);`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")

	err = p.Eval(ctx, `report('a', 'b');`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one argument")

	err = p.Eval(ctx, `report();`)
	require.Error(t, err)

	assert.Empty(t, reported(), "rejected calls must not deliver")
}

func TestScriptBudgetInterruptsRunawayScript(t *testing.T) {
	e := New(Config{
		Transport:    http.DefaultTransport,
		ScriptBudget: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = e.Close() })
	p := newTestPage(t, e, engine.PageConfig{JavaScriptEnabled: true})

	start := time.Now()
	err := p.Eval(context.Background(), `while (true) {}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptContextCancellationInterrupts(t *testing.T) {
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{JavaScriptEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := p.Eval(ctx, `while (true) {}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel")
}

func TestScriptTimersRunInline(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	ctx := context.Background()

	require.NoError(t, p.Eval(ctx, `
		var x = 0;
		setTimeout(function() { x = 1; }, 1000);
		report(String(x));
		var id = setInterval(function() { x = 2; }, 10);
		clearInterval(id);
		report(String(x));
	`))

	assert.Equal(t, []string{"1", "1"}, reported())
}

func TestScriptPendingNavigationLastWins(t *testing.T) {
	var seen []string
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			seen = append(seen, nav.URL)
			return engine.Cancel
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Eval(context.Background(), `
		location.href = 'http://first.example/';
		location.href = 'http://second.example/';
	`))

	require.Len(t, seen, 1, "only the last request survives the script run")
	assert.Equal(t, "http://second.example/", seen[0])
}

func TestScriptNavigationSkipsPseudoSchemes(t *testing.T) {
	gated := 0
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(engine.Navigation) engine.Decision {
			gated++
			return engine.Allow
		},
		JavaScriptEnabled: true,
	})

	require.NoError(t, p.Eval(context.Background(), `
		location.href = 'javascript:void(0)';
		location.href = 'mailto:a@b.example';
		location.href = '#frag';
	`))

	assert.Zero(t, gated, "non-navigable targets never reach the gate")
}

func TestScriptNavigatorUserAgent(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{UserAgent: "custom-agent/2.0"})
	require.NoError(t, p.Eval(context.Background(), `report(navigator.userAgent);`))
	assert.Equal(t, []string{"custom-agent/2.0"}, reported())
}

func TestScriptWindowDialogsStubbed(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	require.NoError(t, p.Eval(context.Background(), `
		report(String(confirm('sure?')));
		report(String(prompt('name?')));
		alert('hi');
		report('after');
	`))
	assert.Equal(t, []string{"true", "null", "after"}, reported())
}

func TestScriptConsoleDoesNotThrow(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	require.NoError(t, p.Eval(context.Background(), `
		console.log('a', 1, true);
		console.info('i');
		console.warn('w');
		console.error('e');
		console.debug('d');
		report('done');
	`))
	assert.Equal(t, []string{"done"}, reported())
}

func TestScriptNodeGlobalsAbsent(t *testing.T) {
	p, reported := reportingPage(t, engine.PageConfig{})
	require.NoError(t, p.Eval(context.Background(), `
		report(String(typeof require === 'undefined' || require === undefined));
		report(String(process === undefined));
	`))
	assert.Equal(t, []string{"true", "true"}, reported())
}

func TestScriptRelativeNavigationResolvesAgainstBase(t *testing.T) {
	var seen []string
	p := newTestPage(t, newTestEngine(t), engine.PageConfig{
		Gate: func(nav engine.Navigation) engine.Decision {
			seen = append(seen, nav.URL)
			return engine.Cancel
		},
		JavaScriptEnabled: true,
	})
	ctx := context.Background()
	require.NoError(t, p.SetContent(ctx, "<html></html>", "http://site.example/dir/page.html"))

	require.NoError(t, p.Eval(ctx, `location.href = 'other.html';`))

	require.Len(t, seen, 1)
	assert.Equal(t, "http://site.example/dir/other.html", seen[0])
}

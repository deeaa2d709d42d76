package chromium

import (
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
)

// Reserved page globals. The post binding carries bridge payloads out of the
// page; the title binding reports document.title churn.
const (
	bridgeBinding = "__wvPost"
	titleBinding  = "__wvTitle"
)

// titleObserverJS reports the title at DOMContentLoaded and again whenever
// the head mutates. Deduplication happens host-side.
const titleObserverJS = `(function () {
  function report() {
    try { window.` + titleBinding + `(document.title); } catch (e) {}
  }
  function observe() {
    report();
    var target = document.head || document.documentElement;
    if (!target || typeof MutationObserver === "undefined") { return; }
    new MutationObserver(report).observe(target, {
      childList: true,
      characterData: true,
      subtree: true
    });
  }
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", observe);
  } else {
    observe();
  }
})();`

// InstallBridge exposes deliver as window[name]. The stub lands in the
// current document immediately and re-lands in every future document through
// an init script; playwright cannot retract init scripts, so each
// registration change appends a new generation and the newest one wins.
func (p *Page) InstallBridge(name string, deliver func(payload string)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	p.bridges[name] = deliver
	p.bridgeGen++
	gen := p.bridgeGen
	names := p.bridgeNamesLocked()
	p.mu.Unlock()

	script := bridgeGenScript(gen, names)
	if err := p.pw.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("install bridge %q: %w", name, err)
	}
	if _, err := p.pw.Evaluate(bridgeStubJS(name)); err != nil {
		p.log.Debug("bridge stub install on live document failed", zap.Error(err))
	}
	return nil
}

// RemoveBridge deletes the page-visible function. Future documents converge
// through the next init-script generation; the live document loses the stub
// right away.
func (p *Page) RemoveBridge(name string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	delete(p.bridges, name)
	p.bridgeGen++
	gen := p.bridgeGen
	names := p.bridgeNamesLocked()
	p.mu.Unlock()

	script := bridgeGenScript(gen, names)
	if err := p.pw.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("remove bridge %q: %w", name, err)
	}
	if _, err := p.pw.Evaluate(fmt.Sprintf("delete window[%s]", jsString(name))); err != nil {
		p.log.Debug("bridge stub removal on live document failed", zap.Error(err))
	}
	return nil
}

func (p *Page) bridgeNamesLocked() []string {
	names := make([]string, 0, len(p.bridges))
	for n := range p.bridges {
		names = append(names, n)
	}
	return names
}

// handleBridgePost receives (name, payload) from page stubs and routes to
// the registered handler. Stale stubs from an older generation land here
// with an unregistered name and are dropped.
func (p *Page) handleBridgePost(args ...interface{}) interface{} {
	if len(args) != 2 {
		return nil
	}
	name, ok := args[0].(string)
	if !ok {
		return nil
	}
	payload, ok := args[1].(string)
	if !ok {
		return nil
	}
	p.mu.Lock()
	deliver := p.bridges[name]
	p.mu.Unlock()
	if deliver == nil {
		p.log.Debug("bridge message for unregistered name", zap.String("bridge", name))
		return nil
	}
	if m := p.metrics(); m != nil {
		m.RecordBridgeMessage("in")
	}
	deliver(payload)
	return nil
}

// handleTitleReport dedupes observer reports. During a load the title rides
// on the end event; afterwards a change becomes its own signal.
func (p *Page) handleTitleReport(args ...interface{}) interface{} {
	if len(args) != 1 {
		return nil
	}
	title, ok := args[0].(string)
	if !ok {
		return nil
	}
	p.mu.Lock()
	changed := title != p.lastTitle
	p.lastTitle = title
	loading := p.started
	p.mu.Unlock()
	if changed && !loading {
		p.emit(engine.EventTitleChanged, func(e *engine.Event) {
			e.Title = title
		})
	}
	return nil
}

// bridgeGenScript rebuilds the full stub set for one registration state.
// Generations run in append order on each new document; the guard keeps a
// stale generation from clobbering a newer one.
func bridgeGenScript(gen int, names []string) string {
	if names == nil {
		names = []string{}
	}
	list, _ := json.Marshal(names)
	return fmt.Sprintf(`(function () {
  if ((window.__wvGen || 0) >= %d) { return; }
  window.__wvGen = %d;
  var prev = window.__wvNames || [];
  for (var i = 0; i < prev.length; i++) {
    try { delete window[prev[i]]; } catch (e) {}
  }
  var names = %s;
  window.__wvNames = names;
  for (var i = 0; i < names.length; i++) {
    %s(names[i]);
  }
})();`, gen, gen, list, bridgeDefineJS)
}

// bridgeStubJS installs a single stub into the live document.
func bridgeStubJS(name string) string {
	return fmt.Sprintf("(%s)(%s);", bridgeDefineJS, jsString(name))
}

// bridgeDefineJS is the stub factory. Argument validation mirrors the page
// contract: exactly one argument, and it must be a string.
const bridgeDefineJS = `(function (n) {
  window[n] = function (payload) {
    if (arguments.length !== 1) {
      throw new TypeError(n + " expects exactly one argument");
    }
    if (typeof payload !== "string") {
      throw new TypeError(n + " accepts a string argument only");
    }
    window.` + bridgeBinding + `(n, payload);
  };
})`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

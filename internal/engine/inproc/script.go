package inproc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/origin"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// pendingNav is a navigation requested from inside page script. The page
// performs it after the current script run returns; the last request wins.
type pendingNav struct {
	req     engine.Request
	typ     engine.NavigationType
	replace bool
	reload  bool
}

// scriptHost binds a goja runtime to one document. A fresh host is built for
// every committed load so page scripts never see a stale DOM.
type scriptHost struct {
	page    *Page
	vm      *goja.Runtime
	doc     *document
	log     *logging.Logger
	budget  time.Duration
	pending *pendingNav
}

func newScriptHost(p *Page, doc *document, budget time.Duration, log *logging.Logger) *scriptHost {
	h := &scriptHost{
		page:   p,
		vm:     goja.New(),
		doc:    doc,
		log:    log,
		budget: budget,
	}
	h.installGlobals()
	return h
}

// run executes one script against the document under the configured budget.
func (h *scriptHost) run(ctx context.Context, code, src string) error {
	timer := time.NewTimer(h.budget)
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-timer.C:
			h.vm.Interrupt("script budget exceeded")
		case <-ctx.Done():
			h.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	_, err := h.vm.RunString(code)
	close(done)
	h.vm.ClearInterrupt()

	if err != nil {
		return fmt.Errorf("script %s: %w", src, err)
	}
	return nil
}

// takePending returns and clears the navigation requested by script, if any.
func (h *scriptHost) takePending() *pendingNav {
	p := h.pending
	h.pending = nil
	return p
}

// requestNav records a script-driven navigation for the page to perform.
// The gate is consulted by the page exactly as for host-driven attempts.
func (h *scriptHost) requestNav(rawURL string, typ engine.NavigationType, replace bool) {
	abs, ok := h.doc.resolve(rawURL)
	if !ok {
		h.log.Debug("script navigation target not navigable", zap.String("url", rawURL))
		return
	}
	h.pending = &pendingNav{
		req:     engine.Request{URL: abs},
		typ:     typ,
		replace: replace,
	}
}

// installBridge exposes the host channel as a page-global function taking
// exactly one string argument. Anything else raises a TypeError in page script.
func (h *scriptHost) installBridge(name string, deliver func(payload string)) {
	h.vm.Set(name, func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) != 1 {
			panic(h.vm.NewTypeError("%s expects exactly one argument", name))
		}
		payload, ok := call.Argument(0).Export().(string)
		if !ok {
			panic(h.vm.NewTypeError("%s accepts a string argument only", name))
		}
		deliver(payload)
		return goja.Undefined()
	})
}

// removeBridge deletes the page-global channel function.
func (h *scriptHost) removeBridge(name string) {
	h.vm.GlobalObject().Delete(name)
}

// installGlobals shapes the page script environment: browser-ish globals in,
// host runtime escape hatches out.
func (h *scriptHost) installGlobals() {
	vm := h.vm

	// Not a Node environment.
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	console := vm.NewObject()
	console.Set("log", h.makeConsoleFunc("log"))
	console.Set("info", h.makeConsoleFunc("info"))
	console.Set("warn", h.makeConsoleFunc("warn"))
	console.Set("error", h.makeConsoleFunc("error"))
	console.Set("debug", h.makeConsoleFunc("debug"))
	vm.Set("console", console)

	// No event loop: setTimeout runs its callback inline, setInterval would
	// spin forever and is therefore a no-op.
	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		if cb, ok := goja.AssertFunction(call.Argument(0)); ok {
			if _, err := cb(goja.Undefined()); err != nil {
				h.log.Debug("setTimeout callback failed", zap.Error(err))
			}
		}
		return h.vm.ToValue(1)
	})
	vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return h.vm.ToValue(1) })
	vm.Set("clearInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	vm.Set("location", h.newLocation())
	vm.Set("document", h.newDocument())
	vm.Set("alert", func(call goja.FunctionCall) goja.Value {
		h.log.Info("page alert", zap.String("message", call.Argument(0).String()))
		return goja.Undefined()
	})
	vm.Set("confirm", func(call goja.FunctionCall) goja.Value {
		h.log.Info("page confirm", zap.String("message", call.Argument(0).String()))
		return vm.ToValue(true)
	})
	vm.Set("prompt", func(call goja.FunctionCall) goja.Value {
		return goja.Null()
	})

	navigator := vm.NewObject()
	navigator.Set("userAgent", h.page.userAgent())
	vm.Set("navigator", navigator)

	// window and self alias the global object, so globals registered later,
	// the bridge function included, stay reachable through window.
	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())
}

func (h *scriptHost) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg strings.Builder
		for i, arg := range call.Arguments {
			if i > 0 {
				msg.WriteByte(' ')
			}
			msg.WriteString(arg.String())
		}

		entry := h.log.With(zap.String("source", "page-console"))
		switch level {
		case "debug":
			entry.Debug(msg.String())
		case "warn":
			entry.Warn(msg.String())
		case "error":
			entry.Error(msg.String())
		default:
			entry.Info(msg.String())
		}
		return goja.Undefined()
	}
}

// newLocation builds the location object. Assigning href is a navigation
// request and goes through the same gate as every other attempt.
func (h *scriptHost) newLocation() *goja.Object {
	loc := h.vm.NewObject()

	h.accessor(loc, "href",
		func() goja.Value { return h.vm.ToValue(h.doc.loc.String()) },
		func(v goja.Value) { h.requestNav(v.String(), engine.NavOther, false) },
	)
	h.getter(loc, "protocol", func() goja.Value { return h.vm.ToValue(h.doc.loc.Scheme + ":") })
	h.getter(loc, "host", func() goja.Value { return h.vm.ToValue(h.doc.loc.Host) })
	h.getter(loc, "hostname", func() goja.Value { return h.vm.ToValue(h.doc.loc.Hostname()) })
	h.getter(loc, "pathname", func() goja.Value { return h.vm.ToValue(h.doc.loc.Path) })
	h.getter(loc, "search", func() goja.Value {
		if h.doc.loc.RawQuery == "" {
			return h.vm.ToValue("")
		}
		return h.vm.ToValue("?" + h.doc.loc.RawQuery)
	})
	h.getter(loc, "hash", func() goja.Value {
		if h.doc.loc.Fragment == "" {
			return h.vm.ToValue("")
		}
		return h.vm.ToValue("#" + h.doc.loc.Fragment)
	})
	h.getter(loc, "origin", func() goja.Value { return h.vm.ToValue(origin.Origin(h.doc.loc.String())) })

	loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		h.requestNav(call.Argument(0).String(), engine.NavOther, false)
		return goja.Undefined()
	})
	loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		h.requestNav(call.Argument(0).String(), engine.NavOther, true)
		return goja.Undefined()
	})
	loc.Set("reload", func(call goja.FunctionCall) goja.Value {
		h.pending = &pendingNav{typ: engine.NavReload, reload: true}
		return goja.Undefined()
	})
	loc.Set("toString", func(call goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.doc.loc.String())
	})

	return loc
}

// newDocument builds the document object over the parsed DOM.
func (h *scriptHost) newDocument() *goja.Object {
	doc := h.vm.NewObject()

	h.accessor(doc, "title",
		func() goja.Value { return h.vm.ToValue(h.doc.title) },
		func(v goja.Value) { h.page.scriptSetTitle(v.String()) },
	)
	h.getter(doc, "URL", func() goja.Value { return h.vm.ToValue(h.doc.loc.String()) })
	h.getter(doc, "readyState", func() goja.Value { return h.vm.ToValue("complete") })
	h.getter(doc, "body", func() goja.Value { return h.wrap(h.doc.dom.Find("body")) })
	h.getter(doc, "head", func() goja.Value { return h.wrap(h.doc.dom.Find("head")) })
	h.getter(doc, "documentElement", func() goja.Value { return h.wrap(h.doc.dom.Find("html")) })

	doc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return h.query(h.doc.dom.Selection, call.Argument(0).String(), false)
	})
	doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return h.query(h.doc.dom.Selection, call.Argument(0).String(), true)
	})
	doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		match := h.doc.dom.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, ok := s.Attr("id")
			return ok && v == id
		})
		return h.wrap(match)
	})
	doc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return h.wrapAll(h.doc.dom.Find(strings.ToLower(call.Argument(0).String())))
	})
	doc.Set("getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		return h.wrapAll(h.doc.dom.Find("." + call.Argument(0).String()))
	})

	return doc
}

// query runs a CSS selector, raising a page-script error on invalid input the
// way querySelector does.
func (h *scriptHost) query(scope *goquery.Selection, selector string, all bool) goja.Value {
	defer func() {
		if r := recover(); r != nil {
			panic(h.vm.NewGoError(fmt.Errorf("invalid selector %q", selector)))
		}
	}()

	found := scope.Find(selector)
	if all {
		return h.wrapAll(found)
	}
	return h.wrap(found)
}

// accessor defines a JS property backed by Go functions.
func (h *scriptHost) accessor(obj *goja.Object, name string, getter func() goja.Value, setter func(goja.Value)) {
	g := goja.Undefined()
	s := goja.Undefined()
	if getter != nil {
		g = h.vm.ToValue(func(goja.FunctionCall) goja.Value { return getter() })
	}
	if setter != nil {
		s = h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			setter(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, g, s, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		h.log.Error("define accessor failed", zap.String("property", name), zap.Error(err))
	}
}

func (h *scriptHost) getter(obj *goja.Object, name string, getter func() goja.Value) {
	h.accessor(obj, name, getter, nil)
}

// wrap converts the first node of a selection into a JS element. Empty
// selections wrap to null, matching querySelector semantics.
func (h *scriptHost) wrap(found *goquery.Selection) goja.Value {
	if found == nil || found.Length() == 0 {
		return goja.Null()
	}

	sel := found.First()
	vm := h.vm
	obj := vm.NewObject()

	tag := goquery.NodeName(sel)
	obj.Set("tagName", strings.ToUpper(tag))
	obj.Set("nodeType", 1)

	h.accessor(obj, "id",
		func() goja.Value { return vm.ToValue(sel.AttrOr("id", "")) },
		func(v goja.Value) { sel.SetAttr("id", v.String()) },
	)
	h.accessor(obj, "className",
		func() goja.Value { return vm.ToValue(sel.AttrOr("class", "")) },
		func(v goja.Value) { sel.SetAttr("class", v.String()) },
	)
	h.accessor(obj, "textContent",
		func() goja.Value { return vm.ToValue(sel.Text()) },
		func(v goja.Value) { sel.SetText(v.String()) },
	)
	h.accessor(obj, "innerHTML",
		func() goja.Value {
			inner, err := sel.Html()
			if err != nil {
				return vm.ToValue("")
			}
			return vm.ToValue(inner)
		},
		func(v goja.Value) {
			if err := sel.SetHtml(v.String()); err != nil {
				panic(vm.NewGoError(fmt.Errorf("set innerHTML: %v", err)))
			}
		},
	)
	h.getter(obj, "outerHTML", func() goja.Value {
		outer, err := goquery.OuterHtml(sel)
		if err != nil {
			return vm.ToValue("")
		}
		return vm.ToValue(outer)
	})
	h.accessor(obj, "value",
		func() goja.Value {
			if tag == "textarea" {
				return vm.ToValue(sel.Text())
			}
			return vm.ToValue(sel.AttrOr("value", ""))
		},
		func(v goja.Value) {
			if tag == "textarea" {
				sel.SetText(v.String())
				return
			}
			sel.SetAttr("value", v.String())
		},
	)
	if tag == "a" {
		h.getter(obj, "href", func() goja.Value {
			if abs, ok := h.doc.resolve(sel.AttrOr("href", "")); ok {
				return vm.ToValue(abs)
			}
			return vm.ToValue(sel.AttrOr("href", ""))
		})
	}

	obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := sel.Attr(call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		sel.SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		sel.RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := sel.Attr(call.Argument(0).String())
		return vm.ToValue(ok)
	})
	obj.Set("matches", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(sel.Is(call.Argument(0).String()))
	})

	obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return h.query(sel, call.Argument(0).String(), false)
	})
	obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return h.query(sel, call.Argument(0).String(), true)
	})

	// Anchor clicks and form submission feed the navigation pipeline with
	// their own navigation types.
	obj.Set("click", func(call goja.FunctionCall) goja.Value {
		if tag == "a" {
			if href, ok := sel.Attr("href"); ok {
				if abs, ok := h.doc.resolve(href); ok {
					h.pending = &pendingNav{req: engine.Request{URL: abs}, typ: engine.NavClick}
				}
			}
		}
		return goja.Undefined()
	})
	obj.Set("submit", func(call goja.FunctionCall) goja.Value {
		if tag == "form" {
			if req, ok := h.doc.formRequest(sel); ok {
				h.pending = &pendingNav{req: req, typ: engine.NavFormSubmit}
			}
		}
		return goja.Undefined()
	})

	// Listener registration is accepted but inert: there is no event loop to
	// dispatch into.
	obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value { return vm.ToValue(true) })

	return obj
}

// wrapAll converts a whole selection into a JS array of elements.
func (h *scriptHost) wrapAll(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		items = append(items, h.wrap(s))
	})
	return h.vm.NewArray(items...)
}

package webview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/origin"
	"github.com/ThuyDang88/webview/internal/shared/id"
)

var (
	// ErrNoSource is returned when Props carry no content source.
	ErrNoSource = errors.New("webview: props require a source")

	// ErrInlineOriginBlocked is returned when inline markup is loaded
	// without the universal "*" pattern in the origin allow-list.
	ErrInlineOriginBlocked = errors.New(`webview: inline content requires the universal "*" origin pattern`)

	// ErrViewClosed is returned by operations on a closed view.
	ErrViewClosed = errors.New("webview: view closed")
)

// CodeInlineBlocked is the load-error code carried by the event emitted
// when inline content fails the allow-list precondition. Deliberately
// outside the engine error numbering.
const CodeInlineBlocked = -100

// View is one embeddable browser component instance. All host callbacks
// are delivered sequentially on a single dispatch goroutine; imperative
// operations are fire-and-forget and observed through events.
type View struct {
	id  id.ViewID
	eng engine.Engine
	log *logging.Logger

	page engine.Page

	// callbacks carries host deliveries; ops carries page mutations.
	// Both are FIFO, single-goroutine lanes.
	callbacks *lane
	ops       *lane

	// gateMu serializes decision-predicate invocations.
	gateMu sync.Mutex

	mu        sync.Mutex
	props     Props
	allow     *origin.AllowList
	state     NavigationState
	seqOpen   bool
	floor     float64 // monotonic progress floor for the open sequence
	scriptGen int     // bumped when the one-shot script changes
	firedGen  int     // generation whose one-shot already ran
	bridgeOn  bool
	closed    bool
}

// New creates a view against eng. The page exists immediately; nothing
// loads until Load is called. The gate applies to the initial load exactly
// as it does to every later navigation.
func New(ctx context.Context, eng engine.Engine, props Props, log *logging.Logger) (*View, error) {
	if props.Source == nil {
		return nil, ErrNoSource
	}

	allow, err := origin.Compile(props.OriginAllowList)
	if err != nil {
		return nil, fmt.Errorf("webview: %w", err)
	}

	log = logging.OrNop(log)

	v := &View{
		id:    id.NewViewID(),
		eng:   eng,
		log:   log,
		props: props,
		allow: allow,
	}
	if props.InjectedScript != "" {
		v.scriptGen = 1
	}

	v.callbacks = newLane("callbacks", log)
	v.ops = newLane("ops", log)

	page, err := eng.NewPage(ctx, engine.PageConfig{
		Gate:              v.gate,
		Events:            v.onEngineEvent,
		UserAgent:         props.UserAgent,
		Incognito:         props.Incognito,
		JavaScriptEnabled: !props.DisableJavaScript,
		Logger:            log,
	})
	if err != nil {
		v.callbacks.close()
		v.ops.close()
		return nil, fmt.Errorf("webview: create page: %w", err)
	}
	v.page = page

	if props.OnMessage != nil {
		v.bridgeOn = true
		name := props.bridgeName()
		v.ops.push(func() {
			if err := page.InstallBridge(name, v.deliverMessage); err != nil {
				log.Error("bridge install failed", zap.String("view_id", v.id.String()), zap.Error(err))
			}
		})
	}

	log.Info("view created",
		zap.String("view_id", v.id.String()),
		zap.String("engine", eng.Name()),
		zap.Strings("origin_allowlist", allow.Patterns()),
	)
	return v, nil
}

// ID returns the view's identifier.
func (v *View) ID() id.ViewID { return v.id }

// EngineName reports which backend hosts the page.
func (v *View) EngineName() string { return v.eng.Name() }

// State returns the current committed snapshot.
func (v *View) State() NavigationState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Load starts the configured source. For SourceURL the attempt passes
// through the navigation gate like any other; for SourceHTML the allow-list
// must carry the universal "*" pattern or Load fails with
// ErrInlineOriginBlocked and a matching error event.
func (v *View) Load() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	src := v.props.Source
	allow := v.allow
	v.mu.Unlock()

	switch s := src.(type) {
	case SourceHTML:
		if !allow.AllowsInline() {
			v.rejectInline()
			return ErrInlineOriginBlocked
		}
		v.ops.push(func() {
			if err := v.page.SetContent(context.Background(), s.HTML, s.BaseURL); err != nil {
				v.log.Error("inline load failed", zap.String("view_id", v.id.String()), zap.Error(err))
			}
		})
		return nil

	case SourceURL:
		req := engine.Request{URL: s.URL, Method: s.Method, Headers: s.Headers, Body: s.Body}
		v.ops.push(func() {
			if err := v.page.Navigate(context.Background(), req); err != nil {
				v.log.Error("load failed", zap.String("view_id", v.id.String()), zap.String("url", s.URL), zap.Error(err))
			}
		})
		return nil

	default:
		return fmt.Errorf("webview: unknown source type %T", src)
	}
}

// Navigate loads a URL in place of the configured source. Fire-and-forget;
// the gate decides whether it proceeds.
func (v *View) Navigate(url string) {
	v.ops.push(func() {
		if err := v.page.Navigate(context.Background(), engine.Request{URL: url}); err != nil {
			v.log.Error("navigate failed", zap.String("view_id", v.id.String()), zap.String("url", url), zap.Error(err))
		}
	})
}

// GoBack traverses history one step back. No-op at the history edge.
func (v *View) GoBack() {
	v.opPage("back", engine.Page.Back)
}

// GoForward traverses history one step forward. No-op at the edge.
func (v *View) GoForward() {
	v.opPage("forward", engine.Page.Forward)
}

// Reload re-runs the current navigation. The gate sees it as a fresh
// attempt of type reload.
func (v *View) Reload() {
	v.opPage("reload", engine.Page.Reload)
}

// StopLoading requests best-effort cancellation of the in-flight load. A
// terminal event still closes the sequence. Runs immediately rather than
// queueing behind pending operations.
func (v *View) StopLoading() {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	if err := v.page.Stop(context.Background()); err != nil {
		v.log.Debug("stop failed", zap.String("view_id", v.id.String()), zap.Error(err))
	}
}

// InjectScript queues script for execution in the live page context.
// Fire-and-forget: no result is returned through this channel; results
// come back via the message bridge. Calls are serialized FIFO per view,
// even when issued from concurrent goroutines. End scripts with an explicit
// value expression; some backends treat the final expression as the
// success signal.
func (v *View) InjectScript(script string) {
	v.ops.push(func() { v.evalLogged(script, "on-demand") })
}

// SetInjectedScript replaces the one-shot script. A changed script re-arms
// the shot: it will run after the next successful load. An empty script
// disarms it.
func (v *View) SetInjectedScript(script string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if script == v.props.InjectedScript {
		return
	}
	v.props.InjectedScript = script
	if script == "" {
		v.firedGen = v.scriptGen
		return
	}
	v.scriptGen++
}

// SetMessageHandler registers or clears the host's message handler. The
// page-global bridge object exists only while a handler is registered.
func (v *View) SetMessageHandler(fn func(MessageEvent)) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.props.OnMessage = fn
	name := v.props.bridgeName()
	want := fn != nil
	had := v.bridgeOn
	v.bridgeOn = want
	v.mu.Unlock()

	if want && !had {
		v.ops.push(func() {
			if err := v.page.InstallBridge(name, v.deliverMessage); err != nil {
				v.log.Error("bridge install failed", zap.String("view_id", v.id.String()), zap.Error(err))
			}
		})
	} else if !want && had {
		v.ops.push(func() {
			if err := v.page.RemoveBridge(name); err != nil {
				v.log.Error("bridge remove failed", zap.String("view_id", v.id.String()), zap.Error(err))
			}
		})
	}
}

// Close tears the view down: the page closes first so in-flight operations
// resolve quickly, then both lanes stop. Already-queued callbacks may still
// deliver briefly after Close returns. Idempotent, and safe to call from
// inside a callback.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	err := v.page.Close()
	v.ops.close()
	v.callbacks.close()

	v.log.Info("view closed", zap.String("view_id", v.id.String()))
	if err != nil {
		return fmt.Errorf("webview: close page: %w", err)
	}
	return nil
}

// opPage queues a history-style page operation.
func (v *View) opPage(name string, op func(engine.Page, context.Context) error) {
	v.ops.push(func() {
		if err := op(v.page, context.Background()); err != nil {
			v.log.Debug("page op failed", zap.String("view_id", v.id.String()), zap.String("op", name), zap.Error(err))
		}
	})
}

// evalLogged runs script against the page, reporting failures best-effort.
func (v *View) evalLogged(script, channel string) {
	if err := v.page.Eval(context.Background(), script); err != nil {
		v.log.Error("injected script failed",
			zap.String("view_id", v.id.String()),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// deliverMessage carries one bridge payload to the host handler. Called by
// the engine from page-script context; delivery is asynchronous relative to
// page execution and FIFO per view.
func (v *View) deliverMessage(payload string) {
	v.mu.Lock()
	fn := v.props.OnMessage
	closed := v.closed
	v.mu.Unlock()
	if closed || fn == nil {
		return
	}

	ev := MessageEvent{
		ViewID:    v.id,
		MessageID: id.NewMessageID(),
		Data:      payload,
		Timestamp: time.Now(),
	}
	v.callbacks.push(func() { v.safely("onMessage", func() { fn(ev) }) })
}

// rejectInline reports the inline-content precondition failure loudly: an
// error event on top of the error Load returns.
func (v *View) rejectInline() {
	v.mu.Lock()
	cb := v.props.OnError
	st := v.state
	v.mu.Unlock()

	v.log.Error("inline content rejected: allow-list lacks universal pattern",
		zap.String("view_id", v.id.String()),
	)

	ev := LoadEvent{
		Kind:         EventError,
		ViewID:       v.id,
		URL:          st.URL,
		Title:        st.Title,
		CanGoBack:    st.CanGoBack,
		CanGoForward: st.CanGoForward,
		Code:         CodeInlineBlocked,
		Description:  "inline content requires the universal \"*\" origin pattern",
		Domain:       engine.DomainContent,
		Timestamp:    time.Now(),
	}
	v.callbacks.push(func() {
		if cb != nil {
			v.safely("onError", func() { cb(ev) })
		}
	})
}

// safely runs one host callback with panic isolation.
func (v *View) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("host handler panicked",
				zap.String("view_id", v.id.String()),
				zap.String("handler", name),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

package webview

import (
	"time"

	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/shared/id"
)

// gate decides one navigation attempt. Called synchronously by the engine
// on its loading path, for every attempt: initial load, clicks, script
// navigation, reloads and history traversal.
//
// Order of authority: the allow-list runs first; a target the component
// will never load is not the predicate's business. A main-frame miss is
// handed to the external opener; a sub-frame miss is silently dropped.
// Only allow-listed targets reach the predicate, whose verdict is never
// cached.
func (v *View) gate(nav engine.Navigation) engine.Decision {
	v.gateMu.Lock()
	defer v.gateMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return engine.Cancel
	}
	allow := v.allow
	pred := v.props.ShouldAllow
	open := v.props.OpenExternal
	st := v.state
	v.mu.Unlock()

	if !allow.Allows(nav.URL) {
		if !nav.MainFrame {
			v.log.Debug("subframe outside allow-list dropped",
				zap.String("view_id", v.id.String()),
				zap.String("url", nav.URL),
			)
			return engine.Cancel
		}

		v.log.Info("main-frame target outside allow-list, handing to OS",
			zap.String("view_id", v.id.String()),
			zap.String("url", nav.URL),
		)
		url := nav.URL
		v.callbacks.push(func() {
			if open == nil {
				v.log.Info("no external opener configured, url dropped", zap.String("url", url))
				return
			}
			v.safely("openExternal", func() { open(url) })
		})
		return engine.Handoff
	}

	if pred == nil {
		return engine.Allow
	}

	req := NavigationRequest{
		URL:            nav.URL,
		MainFrame:      nav.MainFrame,
		NavigationType: nav.Type,
		CanGoBack:      st.CanGoBack,
		CanGoForward:   st.CanGoForward,
		Loading:        st.Loading,
		Title:          st.Title,
		LockIdentifier: id.NewLockID(),
	}
	if !pred(req) {
		// Rejection is normal control flow: no event, no error. The
		// absence of a subsequent load-start is the host's signal.
		v.log.Debug("navigation cancelled by predicate",
			zap.String("view_id", v.id.String()),
			zap.String("url", nav.URL),
			zap.String("lock_id", req.LockIdentifier.String()),
		)
		return engine.Cancel
	}
	return engine.Allow
}

// onEngineEvent is the emitter: it turns raw engine signals into exactly
// one outward delivery each, enforcing the per-navigation sequence
//
//	start → [progress]* → (end | error)
//
// with http-error interleavable before the terminal and process-terminated
// able to preempt the sequence at any point. Progress is clamped to [0,1]
// and kept monotonically non-decreasing; stray signals outside an open
// sequence are dropped. Every delivered event refreshes the committed
// snapshot and fires the state-change callback.
func (v *View) onEngineEvent(ev engine.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	switch ev.Kind {
	case engine.EventStart:
		v.seqOpen = true
		v.floor = 0

	case engine.EventProgress:
		if !v.seqOpen {
			v.mu.Unlock()
			return
		}
		p := ev.Progress
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		if p < v.floor {
			v.mu.Unlock()
			return
		}
		v.floor = p
		ev.Progress = p

	case engine.EventEnd, engine.EventError:
		if !v.seqOpen {
			// Duplicate terminal; the sequence already closed.
			v.mu.Unlock()
			return
		}
		v.seqOpen = false

	case engine.EventHTTPError:
		if !v.seqOpen {
			v.mu.Unlock()
			return
		}

	case engine.EventTerminated:
		v.seqOpen = false

	case engine.EventTitleChanged:
		// Snapshot refresh only; no load event.
	}

	st := NavigationState{
		URL:            ev.URL,
		Title:          ev.Title,
		Loading:        v.seqOpen,
		CanGoBack:      ev.CanGoBack,
		CanGoForward:   ev.CanGoForward,
		NavigationType: ev.Type,
	}
	v.state = st

	// Arm check for the one-shot script: first successful load after the
	// current script generation was configured.
	var oneShot string
	if ev.Kind == engine.EventEnd && v.props.InjectedScript != "" && v.firedGen != v.scriptGen {
		v.firedGen = v.scriptGen
		oneShot = v.props.InjectedScript
	}

	cb := v.callbackFor(ev.Kind)
	stateCB := v.props.OnNavigationStateChange
	v.mu.Unlock()

	if oneShot != "" {
		// Queued before any host reaction to the end event can queue more
		// work, so the one-shot precedes on-demand scripts issued from the
		// load-end handler.
		v.ops.push(func() { v.evalLogged(oneShot, "one-shot") })
	}

	if ev.Kind == engine.EventTitleChanged {
		if stateCB != nil {
			v.callbacks.push(func() { v.safely("onNavigationStateChange", func() { stateCB(st) }) })
		}
		return
	}

	le := LoadEvent{
		Kind:           ev.Kind,
		ViewID:         v.id,
		URL:            ev.URL,
		Title:          ev.Title,
		Loading:        st.Loading,
		CanGoBack:      ev.CanGoBack,
		CanGoForward:   ev.CanGoForward,
		NavigationType: ev.Type,
		Progress:       ev.Progress,
		Code:           ev.Code,
		Description:    ev.Description,
		Domain:         ev.Domain,
		StatusCode:     ev.StatusCode,
		Timestamp:      time.Now(),
	}

	v.callbacks.push(func() {
		if cb != nil {
			v.safely(string(ev.Kind), func() { cb(le) })
		}
		if stateCB != nil {
			v.safely("onNavigationStateChange", func() { stateCB(st) })
		}
	})
}

// callbackFor maps an event kind to its configured handler. Caller holds mu.
func (v *View) callbackFor(kind engine.EventKind) func(LoadEvent) {
	switch kind {
	case engine.EventStart:
		return v.props.OnLoadStart
	case engine.EventProgress:
		return v.props.OnLoadProgress
	case engine.EventEnd:
		return v.props.OnLoadEnd
	case engine.EventError:
		return v.props.OnError
	case engine.EventHTTPError:
		return v.props.OnHTTPError
	case engine.EventTerminated:
		return v.props.OnTerminated
	default:
		return nil
	}
}

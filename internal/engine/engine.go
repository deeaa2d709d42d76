package engine

import (
	"context"
	"errors"

	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
)

// ErrClosed is returned by operations on a closed engine or page.
var ErrClosed = errors.New("engine: closed")

// NavigationType classifies what initiated a navigation attempt.
type NavigationType string

const (
	NavClick       NavigationType = "click"
	NavFormSubmit  NavigationType = "formsubmit"
	NavBackForward NavigationType = "backforward"
	NavReload      NavigationType = "reload"
	NavOther       NavigationType = "other"
)

// Decision is a gate verdict for one navigation attempt.
type Decision int

const (
	// Allow lets the engine commit the navigation.
	Allow Decision = iota
	// Cancel drops the attempt with no further signals.
	Cancel
	// Handoff drops the attempt in-engine; the core routes the URL to the
	// OS-level opener. Engines treat it exactly like Cancel.
	Handoff
)

// Navigation describes a pending attempt, as much as the engine knows.
// Correlation identifiers and committed state belong to the core.
type Navigation struct {
	URL       string
	MainFrame bool
	Type      NavigationType
}

// Gate decides whether a navigation attempt proceeds. Called synchronously
// on the engine's loading path; must not block on host code.
type Gate func(Navigation) Decision

// EventKind tags a raw lifecycle signal.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventProgress     EventKind = "progress"
	EventEnd          EventKind = "end"
	EventError        EventKind = "error"
	EventHTTPError    EventKind = "http-error"
	EventTerminated   EventKind = "process-terminated"
	EventTitleChanged EventKind = "title-changed"
)

// Event is one raw engine signal. Field presence depends on Kind: Progress
// for progress ticks, Code/Description/Domain for errors, StatusCode and
// Description for HTTP errors. URL, Title and Type reflect the engine's
// view of the current navigation at emission time.
type Event struct {
	Kind         EventKind
	URL          string
	Title        string
	Type         NavigationType
	Progress     float64
	Code         int
	Description  string
	Domain       string
	StatusCode   int
	CanGoBack    bool
	CanGoForward bool
}

// Sink receives lifecycle events. May be called from any engine goroutine;
// implementations must be cheap and must not block.
type Sink func(Event)

// Request carries a load-by-reference source.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// PageConfig configures one page at creation time.
type PageConfig struct {
	Gate              Gate
	Events            Sink
	UserAgent         string
	Incognito         bool
	JavaScriptEnabled bool
	Logger            *logging.Logger
}

// Engine creates pages against one backend.
type Engine interface {
	// Name identifies the backend ("inproc", "chromium").
	Name() string

	// NewPage creates a live browsing context.
	NewPage(ctx context.Context, cfg PageConfig) (Page, error)

	// Close releases the backend. Pages created from it become unusable.
	Close() error
}

// Page is one live browsing context. All mutating calls are serialized by
// the core; engines may assume no two run concurrently for the same page.
type Page interface {
	// Navigate starts a load-by-reference. The engine consults the gate
	// before committing, exactly as it does for attempts it originates.
	Navigate(ctx context.Context, req Request) error

	// SetContent loads inline markup with the given base URL for relative
	// resolution. Not gated; the core enforces the inline-content
	// precondition before calling. Navigations out of the inline document
	// are gated normally.
	SetContent(ctx context.Context, html, baseURL string) error

	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error

	// Stop requests best-effort cancellation of the in-flight load. Unlike
	// the other mutating calls, Stop may be invoked concurrently with an
	// in-progress operation; engines must tolerate that.
	Stop(ctx context.Context) error

	// Eval runs script in the page context, discarding the result.
	Eval(ctx context.Context, script string) error

	// InstallBridge exposes deliver as a page-global single-string-argument
	// function under name. Survives navigations until removed.
	InstallBridge(name string, deliver func(payload string)) error
	RemoveBridge(name string) error

	URL() string
	Title() string
	CanGoBack() bool
	CanGoForward() bool
	Loading() bool

	Close() error
}

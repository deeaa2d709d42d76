package webview

import (
	"time"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/shared/id"
)

// EventKind tags a LoadEvent. Values are shared with the engine layer.
type EventKind = engine.EventKind

const (
	EventStart      = engine.EventStart
	EventProgress   = engine.EventProgress
	EventEnd        = engine.EventEnd
	EventError      = engine.EventError
	EventHTTPError  = engine.EventHTTPError
	EventTerminated = engine.EventTerminated
)

// NavigationType classifies what initiated a navigation.
type NavigationType = engine.NavigationType

const (
	NavClick       = engine.NavClick
	NavFormSubmit  = engine.NavFormSubmit
	NavBackForward = engine.NavBackForward
	NavReload      = engine.NavReload
	NavOther       = engine.NavOther
)

// NavigationState is the committed state of the browsing session. Snapshots
// are immutable; each lifecycle event supersedes the previous snapshot.
type NavigationState struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Loading        bool           `json:"loading"`
	CanGoBack      bool           `json:"canGoBack"`
	CanGoForward   bool           `json:"canGoForward"`
	NavigationType NavigationType `json:"navigationType,omitempty"`
}

// NavigationRequest describes a pending navigation, handed to the embedder's
// decision predicate before the attempt proceeds. Consumed synchronously,
// never persisted.
type NavigationRequest struct {
	URL            string         `json:"url"`
	MainFrame      bool           `json:"isTopFrame"`
	NavigationType NavigationType `json:"navigationType"`
	CanGoBack      bool           `json:"canGoBack"`
	CanGoForward   bool           `json:"canGoForward"`
	Loading        bool           `json:"loading"`
	Title          string         `json:"title"`
	// LockIdentifier correlates this request with the engine-side attempt
	// it resolves.
	LockIdentifier id.LockID `json:"lockIdentifier"`
}

// LoadEvent is a lifecycle notification. One unified record covers every
// kind; kind-specific fields are zero when inapplicable (Progress for
// progress ticks, Code/Description/Domain for errors, StatusCode plus
// Description for HTTP errors). Domain is engine-dependent and
// informational.
type LoadEvent struct {
	Kind           EventKind      `json:"kind"`
	ViewID         id.ViewID      `json:"viewId"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Loading        bool           `json:"loading"`
	CanGoBack      bool           `json:"canGoBack"`
	CanGoForward   bool           `json:"canGoForward"`
	NavigationType NavigationType `json:"navigationType,omitempty"`
	Progress       float64        `json:"progress,omitempty"`
	Code           int            `json:"code,omitempty"`
	Description    string         `json:"description,omitempty"`
	Domain         string         `json:"domain,omitempty"`
	StatusCode     int            `json:"statusCode,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// State extracts the snapshot fields carried by the event.
func (e LoadEvent) State() NavigationState {
	return NavigationState{
		URL:            e.URL,
		Title:          e.Title,
		Loading:        e.Loading,
		CanGoBack:      e.CanGoBack,
		CanGoForward:   e.CanGoForward,
		NavigationType: e.NavigationType,
	}
}

// MessageEvent is one page-to-host bridge delivery. Data is opaque: the
// bridge imposes nothing beyond "is a string".
type MessageEvent struct {
	ViewID    id.ViewID    `json:"viewId"`
	MessageID id.MessageID `json:"messageId"`
	Data      string       `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

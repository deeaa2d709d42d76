package inproc

import "github.com/ThuyDang88/webview/internal/engine"

// historyEntry is one committed navigation. Inline documents keep their
// markup so traversal and reload can re-render without a network attempt.
type historyEntry struct {
	url    string         // committed URL after redirects
	req    engine.Request // original request, replayed on reload
	html   string         // inline markup when inline is set
	inline bool
}

// history is the page's session history. Not safe for concurrent use; the
// page guards it with its own mutex.
type history struct {
	entries []historyEntry
	cursor  int // index of the current entry, -1 before the first commit
}

func newHistory() *history {
	return &history{cursor: -1}
}

func (h *history) current() (historyEntry, bool) {
	if h.cursor < 0 || h.cursor >= len(h.entries) {
		return historyEntry{}, false
	}
	return h.entries[h.cursor], true
}

func (h *history) canMove(delta int) bool {
	i := h.cursor + delta
	return i >= 0 && i < len(h.entries)
}

func (h *history) peek(delta int) (historyEntry, bool) {
	if !h.canMove(delta) {
		return historyEntry{}, false
	}
	return h.entries[h.cursor+delta], true
}

// move shifts the cursor after a history navigation commits.
func (h *history) move(delta int) {
	if h.canMove(delta) {
		h.cursor += delta
	}
}

// push records a new entry, discarding any forward entries.
func (h *history) push(e historyEntry) {
	h.entries = append(h.entries[:h.cursor+1], e)
	h.cursor = len(h.entries) - 1
}

// replace swaps the current entry in place, as location.replace does.
func (h *history) replace(e historyEntry) {
	if h.cursor < 0 {
		h.push(e)
		return
	}
	h.entries[h.cursor] = e
}

/*
Package webview implements an embeddable browser component as a
message/event contract over pluggable engine backends.

# Overview

A View hosts one browsing session and surfaces it to the embedding
application through four channels:

 1. Navigation control: every navigation attempt, the initial load
    included, passes an origin allow-list and then an optional
    host-supplied predicate before the engine may commit it.
 2. Lifecycle events: engine signals become uniform LoadEvent records
    (start, progress, end, error, http-error, process-terminated), each
    delivered exactly once, in sequence, alongside a refreshed
    NavigationState snapshot.
 3. Script injection: a one-shot script bound at configuration time runs
    once after the first successful load; on-demand injection runs any
    time, FIFO per view, fire-and-forget.
 4. Message bridge: a single page-global function carries one string at a
    time from page script back to the host, installed only while a host
    handler is registered.

# Navigation Gating

The allow-list is consulted first. A main-frame target matching no pattern
never loads in-component: it is handed to the configured external opener.
A sub-frame miss is dropped silently. Targets the allow-list admits are
then offered to the ShouldAllow predicate; a false verdict cancels the
attempt with no event, and the absence of a load-start is the host's
signal. Verdicts are never cached; reloading the same URL asks again.

Loading inline markup (SourceHTML) requires the universal "*" pattern,
because the synthetic origin of injected content matches nothing else.
Load fails loudly when the precondition is missing.

# Delivery Model

Each view owns one dispatch goroutine. Every host callback (lifecycle
events, state changes, bridge messages, external-opener handoffs) runs
there, one at a time, in emission order. A panicking handler is recovered
and logged without disturbing engine progress or subsequent deliveries.
Imperative operations (Navigate, GoBack, GoForward, Reload, InjectScript)
are fire-and-forget: they queue onto a second per-view lane and their
effects surface later as events. StopLoading bypasses the queue so it can
interrupt the operation the lane is busy with.

# Engines

The component core is engine-agnostic. Backends implement engine.Engine /
engine.Page: an in-process engine (HTTP fetch, HTML document, goja script
runtime) and a Chromium engine driven over the Playwright protocol.
*/
package webview

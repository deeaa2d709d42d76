/*
Package inproc implements the engine contract without a real browser.

# Overview

A Page here is three cooperating pieces: a fetcher (resty client, retrying
transport, circuit breaker, rate limiter), a document model (goquery over
parsed HTML) and a script host (goja runtime exposing a small DOM surface).
Together they behave enough like a browser for servers, tests and headless
automation: loads emit the full lifecycle event sequence, documents keep
session history, and page scripts can read the DOM, navigate and call
installed bridge functions.

# Loading

A load runs gate, fetch, parse, commit, scripts, in that order. The gate is
consulted before any network activity, exactly as for attempts the page
originates itself (anchor clicks, form submits, location assignments from
script). Fetch failures are classified into stable negative codes and
surface as error events; HTTP 4xx/5xx responses are not failures, the body
still renders and an http-error event precedes end. Inline markup loaded via
SetContent renders without a network attempt and is replayed from history
the same way.

# Scripts

Script execution is bounded by a per-run budget and interrupted on context
cancellation. Scripts observe a deliberately small world: document queries
over CSS selectors, location, window, console wired to the page logger, and
whatever bridge globals the host installed. Timers run inline; there is no
event loop. A navigation requested mid-script is recorded and performed
after the script returns, bounded by a chain depth so scripted redirect
loops terminate.

# Fidelity limits

No subresource loading besides external <script> elements, no frames, no
CSS, no paint. Progress is synthesized at fixed milestones rather than
measured. These are acceptable for the intended uses; automation that needs
real rendering should use the chromium engine instead.
*/
package inproc

/*
Package chromium implements the engine contract over a real Chromium,
driven through the Playwright protocol.

# Overview

One launched browser serves every page. Non-incognito pages created with
default settings share a single browser context and therefore a cookie
store; incognito pages, and pages overriding the user agent or disabling
script, get a dedicated context that lives and dies with the page.

# Navigation

Route interception is the single control point: every navigation attempt,
host-driven or page-initiated, passes the gate exactly once before any
network activity, while redirect hops of an approved attempt and
subresource fetches continue unchecked. The same interception layer
reshapes non-GET host navigations (method, body, headers ride in through a
route continue) and serves inline markup by fulfilling the request at its
base URL, which plain content replacement cannot express.

# Events

Chromium reports no progress percentage, so progress is synthesized: 0.6
at DOMContentLoaded, 1.0 before end. The start event is emitted at commit,
which is the first point the engine knows the attempt survived the gate
and the network. HTTP status >= 400 arrives between start and end as an
http-error event. Renderer crashes surface as process-terminated.

# Fidelity limits

Playwright exposes no history introspection, so back/forward capability is
tracked by counting commits and traversals; it can drift when page script
manipulates history directly. Page-initiated navigations cannot be
attributed to clicks, so they report type "other" (form posts are detected
by method). Init scripts cannot be retracted, so bridge removal appends a
superseding generation instead; stale stubs from older generations are
rejected host-side.
*/
package chromium

/*
Package engine defines the contract between the webview component core and a
browser engine backend.

# Overview

The component core owns every host-facing guarantee (navigation gating,
event ordering, injection lifecycles, the message bridge). Engines own none
of that: an engine is a dumb page factory that loads content when told to,
reports raw lifecycle signals through a sink, and asks a gate before
committing any navigation it originates.

# Responsibilities

Engine implementations must:
  - Call the configured Gate for every navigation attempt, including the
    initial load, anchor clicks, script-driven location changes, reloads
    and history traversal.
  - Emit Event values for load start, progress, end, error, HTTP errors
    and process termination. Emission may happen from any goroutine; the
    core serializes delivery.
  - Keep installed bridge functions available to page script across
    navigations until removed.

Engines must not retry failed loads, reorder their own signals, or invoke
host callbacks directly.

# Implementations

Two backends ship in this repository:
  - inproc: a self-contained engine (HTTP fetch + HTML document + goja
    script runtime) suitable for tests, servers and headless automation.
  - chromium: a real browser driven over the Playwright protocol.
*/
package engine

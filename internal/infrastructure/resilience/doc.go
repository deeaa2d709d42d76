/*
Package resilience provides a circuit breaker for outbound page fetches.

# Overview

Embedded pages routinely point at hosts that are down, slow, or rate
limiting. The breaker stops a page that keeps failing to load from hammering
the network layer: after enough failures the circuit opens and fetches are
rejected immediately until a cooldown passes.

# States

  - Closed: normal operation, fetches pass through
  - Open: recent failures, fetches fail fast with ErrCircuitOpen
  - Half-Open: cooldown expired, a limited number of probe fetches test recovery

Transitions:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[probes succeed]-> Closed
	                                           |
	                                    [probe fails]
	                                           |
	                                           v
	                                         Open

# Usage

	breaker := resilience.New("fetch", resilience.Settings{
		MaxProbes: 3,
		Interval:  60 * time.Second,
		Timeout:   30 * time.Second,
		TripAfter: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	resp, err := resilience.Do(breaker, func() (*resty.Response, error) {
		return req.Get(url)
	})
*/
package resilience

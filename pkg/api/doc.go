/*
Package api implements the shiftkeeper HTTP API.

The API is how the access-control system, the roster tooling and staff
interact with the reconciler. It is a JSON-over-HTTP router built on chi,
instrumented with Prometheus metrics and logged through pkg/log.

# Architecture

	┌──────── Door reader / CLI / roster tooling ────────┐
	│                                                      │
	│   POST /v1/sessions        PUT /v1/occurrences      │
	└──────────────────────┬───────────────────────────────┘
	                       │ HTTP (default 127.0.0.1:8080)
	┌──────────────────────▼──── shiftkeeper serve ───────┐
	│                                                      │
	│  chi router: RequestID, Recoverer, instrument, CORS  │
	│        │                    │                        │
	│        ▼                    ▼                        │
	│   storage.Store      reconciler.Reconciler           │
	│   (roster, sessions)  (Tick, RecordDeparture)        │
	│        │                                             │
	│        ▼                                             │
	│   excuse.Service (excuse, review)                    │
	└──────────────────────────────────────────────────────┘

# Routes

	GET  /health /ready /live /metrics
	POST /v1/tick                          run one reconciliation tick now
	GET  /v1/schedules                     list weekly schedules
	PUT  /v1/schedules                     upsert schedules
	GET  /v1/occurrences?from=&to=         list occurrences by date
	PUT  /v1/occurrences                   upsert occurrences
	POST /v1/sessions                      tap in
	POST /v1/sessions/{id}/end             tap out
	POST /v1/attendances                   assign a makeup shift
	GET  /v1/attendances/{id}              fetch one attendance row
	POST /v1/attendances/{id}/excuse       set or clear an excuse
	POST /v1/attendances/{id}/review       mark reviewed
	GET  /v1/users/{userID}/attendances    list a user's rows

Occurrence dates are "YYYY-MM-DD" in the configured timezone. Every error
response is an ErrorResponse.

Ending a staffing session records the tap-out as the departure of any
present attendance row of that user whose shift is in progress, so a
departure is visible immediately rather than at the next tick.

# Read-only listener

A Server created with Options.ReadOnly rejects every method other than GET,
HEAD and OPTIONS with 403. The daemon serves one on api.readOnlyAddr for
wall displays that should see attendance but never change it.
*/
package api

/*
Package events provides the in-memory event bus for Falcon's generation
progress notifications.

The events package implements a lightweight pub/sub bus keyed by wiki id.
The pipeline publishes status changes, page completions, and terminal events
while it runs; SSE handlers subscribe to forward them to clients. Events are
ephemeral: nothing is stored, and a subscriber only sees what is published
after it joins.

# Architecture

	┌────────────────────── EVENT BUS ─────────────────────────┐
	│                                                           │
	│   Publisher (pipeline)                                    │
	│        │ Publish(wikiID, event)                           │
	│        ▼                                                  │
	│   ┌─────────────────────────────┐                         │
	│   │  subs: wiki id → {channels} │   RWMutex               │
	│   └──────────────┬──────────────┘                         │
	│                  │ non-blocking send                      │
	│        ┌─────────┴─────────┐                              │
	│        ▼                   ▼                              │
	│   Subscriber chan     Subscriber chan                     │
	│   (buffer: 50)        (buffer: 50)                        │
	│        │                   │                              │
	│        ▼                   ▼                              │
	│   SSE handler         SSE handler                         │
	└───────────────────────────────────────────────────────────┘

Delivery is best-effort: a subscriber whose buffer is full misses the event.
Sequential publishes for one wiki reach each subscriber in publish order.

# Event Types

  - status_change: {status, error?} on each phase transition
  - page_complete: {slug, completed, total} per generated page
  - complete:      {wiki_id, total_pages} when the wiki reaches completed
  - error:         {message} on terminal failure

# Usage

	bus := events.NewBus()
	defer bus.Close()

	sub := bus.Subscribe(wikiID)
	defer bus.Unsubscribe(wikiID, sub)

	for ev := range sub {
	    writeSSE(w, ev)
	    if ev.Type == types.EventComplete || ev.Type == types.EventError {
	        break
	    }
	}

Close is called once at shutdown; it closes every subscriber channel so
handlers draining them unblock.

# See Also

  - pkg/pipeline for the publishers
  - pkg/api for the SSE subscription endpoints
*/
package events

/*
Package event provides the pub/sub event system for the Loupe research
service.

The event system enables decoupled communication between the research
loop and the transports serving connected clients: publishers emit
events and subscribers react to them without direct dependencies.

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while maintaining direct-call semantics to preserve type information. It
provides both synchronous and asynchronous event publishing patterns,
plus the Recipient abstraction for per-session fan-out.

# Event Types

Session Events:
  - session.created: New session created
  - session.updated: Session status or config changed
  - session.terminated: Session terminated, with a reason string

Research Events:
  - reasoning.update: Agent reasoning trace for one turn
  - research.answer: Final answer for a research goal
  - entry.appended: A conversation entry was recorded

Tool Events:
  - tool.invoked: A tool call completed, with a user-facing summary
  - tool.failed: A tool call failed

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking). Each subscriber drains a
	// bounded queue on its own goroutine and sees events in publish
	// order; a subscriber that falls too far behind loses events.
	event.Publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: session.ID.String(),
		Data:      event.SessionCreatedData{Info: session},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type:      event.ReasoningUpdate,
		SessionID: sessionID,
		Data:      event.ReasoningUpdateData{Text: text},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.ResearchAnswer, func(e event.Event) {
		data := e.Data.(event.ResearchAnswerData)
		logging.Info().Str("title", data.Title).Msg("answer ready")
	})
	defer unsubscribe()

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event")
	})
	defer unsubscribe()

# Recipients

A Recipient is a bounded, non-blocking per-session sink. The research
loop clones the recipient list from the session store, releases the
lock, and then sends; a recipient whose buffer is full reports a failed
delivery and is detached rather than stalling the loop:

	r := event.NewChanRecipient(id, 64)
	store.AttachRecipient(sessionID, r)
	for ev := range r.C {
		// forward to WebSocket / SSE
	}

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the
publisher's goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish/PublishSync from within a subscriber
  - Never acquire locks that the publisher might hold

# Custom Event Bus

For testing or isolation, you can create custom bus instances:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SessionCreated, handler)
	bus.PublishSync(event.Event{Type: event.SessionCreated, Data: data})

# Testing

The package provides utilities for testing:

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is thread-safe and can be used concurrently from multiple
goroutines. Both publishing and subscribing operations are protected by
internal synchronization.

# Integration with Watermill

The package uses watermill's gochannel internally, providing access to
the underlying pubsub infrastructure for advanced use cases:

	pubsub := event.PubSub()

This allows future migration to distributed message brokers if needed
while maintaining the current API.
*/
package event

/*
Package events provides an in-memory event broker for the replication
engine's pub/sub notifications.

The events package implements a lightweight event bus for broadcasting
document, sync, replicator, migrator, and security events to interested
subscribers — typically a host UI layer watching a per-document "pending"
flag or a collection's last error signal. Delivery is best-effort: a full
subscriber buffer drops the event rather than blocking the publisher.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                    │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Publish blocks only while buffer is full │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                  │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buffer: 50 each)       │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Event Types

  - document.created / document.updated / document.deleted
  - sync.pending / sync.flushed / sync.error
  - replicator.cursor_advanced
  - wal.compaction_ran
  - migrator.schema_migrated
  - handshake.failed
  - security.vault_locked / security.vault_unlocked

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:       events.EventSyncFlushed,
		Collection: "notes",
		Document:   "doc-1",
	})

	for ev := range sub {
		// update UI pending indicator
	}
*/
package events

/*
Package log provides structured logging for the replication engine using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for on-device debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("syncer")                  │          │
	│  │  - WithCollection("notes")                  │          │
	│  │  - WithDocument("notes", "doc-1")           │          │
	│  │  - WithClientID("c-abc123")                 │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Usage

	import "github.com/synckit/replicate/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("engine starting")

	syncLog := log.WithComponent("syncer")
	syncLog.Info().Str("collection", "notes").Msg("flush scheduled")

	docLog := log.WithDocument("notes", "doc-1")
	docLog.Debug().Int("ops", 3).Msg("delta applied")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup
  - Accessible from all packages without passing a handle through

Context Logger Pattern:
  - Create child loggers carrying collection/document/client fields
  - Pass the child logger, not the field values, into deeper calls

# Security

Log Content:
  - Never log encryption keys, passphrases, or raw recovery codes
  - Document bodies are not logged; only ids and field counts are
*/
package log

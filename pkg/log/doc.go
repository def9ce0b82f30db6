/*
Package log provides structured logging for collabcore using zerolog.

The log package wraps zerolog to give every other package JSON-structured
logging with component-scoped child loggers, configurable levels, and
helpers for the identifiers that recur across the collab stack: tenant and
object pairs, row ids, and outbound message ids.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all collabcore packages
  - Safe for concurrent use

Log Levels:
  - Debug: update payload sizes, cache hit/miss decisions
  - Info: session open/close, sink state transitions, migrations
  - Warn: retried write transactions, fetch task timeouts
  - Error: backend failures, malformed persisted records
  - Fatal: unrecoverable startup errors (process exits)

Configuration:
  - Level: filters messages below threshold
  - JSONOutput: JSON for production, console writer for local development
  - Output: io.Writer destination (stdout, file, or a test buffer)

Context Loggers:
  - WithComponent(name): tags all logs with a component field
  - WithObject(tenant, objectID): tags logs with tenant + object_id
  - WithRowID(rowID): tags logs with row_id
  - WithMessageID(msgID): tags logs with msg_id

# Usage

Initializing the Logger:

	import "github.com/cuemby/collabcore/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Simple Logging:

	log.Info("update log opened")
	log.Debug("row cache miss")
	log.Warn("write transaction retried")
	log.Error("failed to open backend")
	log.Fatal("cannot start without a data directory")

Component and context loggers:

	rowLog := log.WithComponent("rowcache")
	rowLog.Info().Msg("starting background fetch loop")

	objLog := log.WithObject(tenant, objectID)
	objLog.Debug().Int("update_len", len(update)).Msg("appended update")

	sinkLog := log.WithMessageID(msg.ID())
	sinkLog.Warn().Msg("ack timed out, requeueing")

# Log Output Examples

JSON Format:

	{"level":"debug","tenant":1,"object_id":"doc-1","update_len":128,"time":"2026-07-31T10:30:00Z","message":"appended update"}
	{"level":"warn","msg_id":42,"time":"2026-07-31T10:30:01Z","message":"ack timed out, requeueing"}

Console Format:

	2026-07-31T10:30:00Z DBG appended update object_id=doc-1 tenant=1 update_len=128
	2026-07-31T10:30:01Z WRN ack timed out, requeueing msg_id=42

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance, initialized once at startup
  - Accessible from all packages without threading it through call chains

Context Logger Pattern:
  - Child loggers carry fields so call sites don't repeat them
  - Pass the child logger down, not the identifiers it was built from

Error Logging Pattern:
  - Always attach errors with .Err(err), never string-format them into Msg

# Best Practices

Do:
  - Use Info level in production, Debug only when troubleshooting
  - Use structured fields (.Str, .Int, .Err) instead of string interpolation
  - Build one context logger per session/task and reuse it

Don't:
  - Log CRDT update payloads or cell contents at Info level or above
  - Log inside per-cell or per-update hot loops without sampling
*/
package log

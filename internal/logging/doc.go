// Package logging provides structured logging for taskscope.
//
// This package wraps Go's log/slog to produce JSON-formatted logs. Every
// component of the query engine (search store, debounce scheduler, realtime
// bridge, HTTP client) accepts a [Logger] through a WithLogger option and
// defaults to [NopLogger] when none is supplied.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/state", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("search completed", "key", key, "tasks", len(resp.Tasks))
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	bridgeLogger := logger.WithComponent("realtime").WithConnection("task")
//	bridgeLogger.WithTask("task-1").Warn("task_update rejected", "from", "completed", "to", "pending")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"task_update rejected","component":"realtime","connection_type":"task","task_id":"task-1","from":"completed","to":"pending"}
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewLoggerWithWriter] with a
// bytes.Buffer to assert on emitted entries.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  dir: ~/.local/state/taskscope
package logging

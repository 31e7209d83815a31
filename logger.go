package rendergraph

import (
	"log/slog"

	"github.com/gogpu/rendergraph/internal/logging"
)

// SetLogger configures the logger for rendergraph and all its
// sub-packages. By default rendergraph produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by rendergraph:
//   - [slog.LevelDebug]: plan statistics, cache evictions, resolve insertion
//   - [slog.LevelWarn]: leaked resources, missing node callbacks, short
//     uniform writes
//
// Example:
//
//	rendergraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the current logger. It is never nil.
func Logger() *slog.Logger {
	return logging.Logger()
}

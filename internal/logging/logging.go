// Package logging provides structured-logging helpers shared by the buffer
// pool core. It wraps [log/slog] rather than introducing a bespoke logging
// façade: callers inject a *slog.Logger (or rely on slog.Default()) and use
// the With* helpers here to attach the structured fields this package's
// components care about (frame id, page id, component name) consistently.
package logging

import (
	"log/slog"

	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// Default returns logger if non-nil, otherwise slog.Default(). Components
// take a *slog.Logger constructor argument and call this once at
// construction time so nil loggers never need to be checked on the hot path.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// WithComponent returns a child logger tagged with the owning component
// name, e.g. "buffer_pool_manager", "lru_k_replacer", "disk_manager".
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithPage returns a child logger carrying the page id under inspection.
func WithPage(logger *slog.Logger, pageID util.PageID) *slog.Logger {
	return logger.With("page_id", int64(pageID))
}

// WithFrame returns a child logger carrying the frame id under inspection.
func WithFrame(logger *slog.Logger, frameID util.FrameID) *slog.Logger {
	return logger.With("frame_id", int(frameID))
}

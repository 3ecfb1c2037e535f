package tanker

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/http"
	"github.com/wippyai/tanker-go/native/wasmcore"
	"github.com/wippyai/tanker-go/stream"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the tanker package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the logger of this package and of every bridge
// package. Native log records are written to it under the "native" name.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
	future.SetLogger(l.Named("future"))
	http.SetLogger(l.Named("http"))
	stream.SetLogger(l.Named("stream"))
	wasmcore.SetLogger(l.Named("wasmcore"))
}

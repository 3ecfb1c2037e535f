package tanker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/tanker-go/errors"
	"github.com/wippyai/tanker-go/future"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
)

const version = "0.4.0"

// logQueueSize bounds records waiting for the user log handler.
const logQueueSize = 1024

// Version returns the version of this binding.
func Version() string { return version }

// libs counts the live Cores of every library. The first one initializes
// native state and the last one tears it down.
var libs = struct {
	refs map[native.Library]int
	mu   sync.Mutex
}{refs: make(map[native.Library]int)}

func acquireLib(lib native.Library) {
	libs.mu.Lock()
	defer libs.mu.Unlock()
	if libs.refs[lib] == 0 {
		lib.SetLogHandler(forwardLog)
		lib.Init()
		Logger().Debug("native library initialized", zap.String("version", lib.VersionString()))
	}
	libs.refs[lib]++
}

func releaseLib(lib native.Library) {
	libs.mu.Lock()
	defer libs.mu.Unlock()
	n, ok := libs.refs[lib]
	if !ok {
		return
	}
	if n > 1 {
		libs.refs[lib] = n - 1
		return
	}
	delete(libs.refs, lib)
	lib.Teardown()
	Logger().Debug("native library torn down")
}

var (
	logHook      atomic.Pointer[func(LogRecord)]
	logQueue     = make(chan LogRecord, logQueueSize)
	logDropped   atomic.Uint64
	dispatchOnce sync.Once
)

// SetLogHandler installs fn as the receiver of native log records, in
// addition to the zap logger. fn runs on a dedicated goroutine, never on a
// native thread. Records are dropped while fn is slower than native.
// A nil fn removes the handler.
func SetLogHandler(fn func(LogRecord)) {
	if fn == nil {
		logHook.Store(nil)
		return
	}
	logHook.Store(&fn)
	dispatchOnce.Do(func() { go dispatchLogs() })
}

// DroppedLogRecords returns how many records the log handler missed.
func DroppedLogRecords() uint64 { return logDropped.Load() }

func dispatchLogs() {
	for r := range logQueue {
		if h := logHook.Load(); h != nil {
			(*h)(r)
		}
	}
}

// forwardLog is the native log handler. It runs on a native thread.
func forwardLog(r native.LogRecord) {
	if ce := Logger().Named("native").Check(logLevel(r.Level), r.Message); ce != nil {
		ce.Write(
			zap.String("category", r.Category),
			zap.String("file", r.File),
			zap.Uint32("line", r.Line))
	}
	if logHook.Load() == nil {
		return
	}
	select {
	case logQueue <- r:
	default:
		logDropped.Add(1)
	}
}

func logLevel(l native.LogLevel) zapcore.Level {
	switch l {
	case native.LogDebug:
		return zapcore.DebugLevel
	case native.LogInfo:
		return zapcore.InfoLevel
	case native.LogWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// NativeVersion returns the version of the native library.
func NativeVersion(lib native.Library) string {
	acquireLib(lib)
	defer releaseLib(lib)
	return lib.VersionString()
}

// PrehashPassword hashes a password on the client, for applications that
// use their own password as a verification passphrase.
func PrehashPassword(ctx context.Context, lib native.Library, password string) (string, error) {
	const op = "prehash_password"
	if password == "" {
		return "", errors.InvalidArgument(op, "password is empty")
	}
	acquireLib(lib)
	defer releaseLib(lib)

	b := future.NewBridge(lib, resource.NewRegistry())
	f := b.Submit(op, func() (native.Pointer, error) {
		return lib.PrehashPassword(password), nil
	}, future.ReleaseBuffer(lib))
	return future.AwaitString(ctx, lib, f)
}

package client

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/shibukawa/snapodata"
)

// LoggerFunc receives RequestLogEntry events.
type LoggerFunc func(context.Context, RequestLogEntry)

// LoggerOpt configures optional logger behaviour passed to WithLogger.
type LoggerOpt struct {
	IncludeStack bool
	StackDepth   int
}

// RequestLogEntry represents a single request sent to the service.
type RequestLogEntry struct {
	Method     string
	URI        string
	Version    snapodata.ProtocolVersion
	StatusCode int
	StartAt    time.Time
	EndAt      time.Time
	Duration   time.Duration
	StackTrace []runtime.Frame
	Error      string
}

type loggerConfig struct {
	sink         LoggerFunc
	includeStack bool
	stackDepth   int
}

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithLogger stores a logging sink on the context. Requests executed with
// the returned context are reported to logger.
func WithLogger(ctx context.Context, logger LoggerFunc, cfg ...LoggerOpt) context.Context {
	var opt LoggerOpt
	if len(cfg) > 0 {
		opt = cfg[0]
	}

	if opt.IncludeStack && opt.StackDepth <= 0 {
		opt.StackDepth = 16
	}

	return context.WithValue(ctx, loggerKey, &loggerConfig{
		sink:         logger,
		includeStack: opt.IncludeStack,
		stackDepth:   opt.StackDepth,
	})
}

// LoggerOptFromConfig converts the logging section of the configuration.
func LoggerOptFromConfig(cfg snapodata.LoggingConfig) LoggerOpt {
	return LoggerOpt{IncludeStack: cfg.IncludeStack, StackDepth: cfg.StackDepth}
}

// requestLogger coordinates the logging of one request.
type requestLogger struct {
	cfg     *loggerConfig
	startAt time.Time
	method  string
	uri     string
	version snapodata.ProtocolVersion
	status  int
	err     error
}

func requestLoggerFromContext(ctx context.Context, req *Request, version snapodata.ProtocolVersion) *requestLogger {
	cfg, ok := ctx.Value(loggerKey).(*loggerConfig)
	if !ok || cfg == nil || cfg.sink == nil {
		return nil
	}

	return &requestLogger{
		cfg:     cfg,
		startAt: time.Now(),
		method:  req.Method,
		uri:     req.URI,
		version: version,
	}
}

func (l *requestLogger) SetStatus(status int) {
	if l == nil {
		return
	}

	l.status = status
}

func (l *requestLogger) SetErr(err error) {
	if l == nil {
		return
	}

	l.err = err
}

func (l *requestLogger) Write(ctx context.Context) {
	if l == nil {
		return
	}

	entry := RequestLogEntry{
		Method:     l.method,
		URI:        l.uri,
		Version:    l.version,
		StatusCode: l.status,
		StartAt:    l.startAt,
		EndAt:      time.Now(),
	}
	entry.Duration = entry.EndAt.Sub(entry.StartAt)

	if l.err != nil {
		entry.Error = l.err.Error()
	}

	if l.cfg.includeStack {
		entry.StackTrace = captureStackTrace(l.cfg.stackDepth)
	}

	l.cfg.sink(ctx, entry)
}

func captureStackTrace(depth int) []runtime.Frame {
	if depth <= 0 {
		depth = 16
	}

	pcs := make([]uintptr, depth)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var result []runtime.Frame

	for {
		frame, more := frames.Next()
		result = append(result, frame)

		if !more {
			break
		}
	}

	return result
}

// SlogSink adapts a slog.Logger. Failed requests are logged at error level.
func SlogSink(logger *slog.Logger) LoggerFunc {
	return func(ctx context.Context, entry RequestLogEntry) {
		attrs := []slog.Attr{
			slog.String("method", entry.Method),
			slog.String("uri", entry.URI),
			slog.String("odata_version", entry.Version.String()),
			slog.Int("status", entry.StatusCode),
			slog.Duration("duration", entry.Duration),
		}

		if len(entry.StackTrace) > 0 {
			frames := make([]string, len(entry.StackTrace))
			for i, f := range entry.StackTrace {
				frames[i] = f.Function
			}

			attrs = append(attrs, slog.Any("stack", frames))
		}

		if entry.Error != "" {
			logger.LogAttrs(ctx, slog.LevelError, "odata request failed", append(attrs, slog.String("error", entry.Error))...)
			return
		}

		logger.LogAttrs(ctx, slog.LevelInfo, "odata request", attrs...)
	}
}

// NewSlogLogger creates a text logger at the configured level.
func NewSlogLogger(w io.Writer, cfg snapodata.LoggingConfig) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package logging wraps a zap SugaredLogger behind a small key/value interface.
// Module loggers obtained with GetLogger before Initialize is called bind
// lazily to the base logger once it exists.
package logging

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/diewo77/go-esign/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// log is the base logger of the application
	log = &zapLogger{}
	mu  sync.RWMutex
)

// Logger is the logging interface used across the application.
type Logger interface {
	// Error logs an error level message
	Error(msg string, ctx ...any)
	// Warn logs a warning level message
	Warn(msg string, ctx ...any)
	// Info logs an information level message
	Info(msg string, ctx ...any)
	// Debug logs a debug level message
	Debug(msg string, ctx ...any)
	// New returns a child logger with the given context
	New(ctx ...any) Logger
	// Sync flushes buffered entries
	Sync() error
}

type zapLogger struct {
	zap    *zap.SugaredLogger
	ctx    []any
	parent *zapLogger
}

func (l *zapLogger) Error(msg string, ctx ...any) {
	if z := l.resolve(); z != nil {
		z.Errorw(msg, ctx...)
	}
}

func (l *zapLogger) Warn(msg string, ctx ...any) {
	if z := l.resolve(); z != nil {
		z.Warnw(msg, ctx...)
	}
}

func (l *zapLogger) Info(msg string, ctx ...any) {
	if z := l.resolve(); z != nil {
		z.Infow(msg, ctx...)
	}
}

func (l *zapLogger) Debug(msg string, ctx ...any) {
	if z := l.resolve(); z != nil {
		z.Debugw(msg, ctx...)
	}
}

func (l *zapLogger) Sync() error {
	z := l.resolve()
	if z == nil {
		return errors.New("syncing a non-initialized logger")
	}
	return z.Sync()
}

func (l *zapLogger) New(ctx ...any) Logger {
	return &zapLogger{ctx: ctx, parent: l}
}

// resolve returns the zap logger for l, deriving it from the parent chain
// the first time the base logger is available.
func (l *zapLogger) resolve() *zap.SugaredLogger {
	mu.RLock()
	z := l.zap
	mu.RUnlock()
	if z != nil {
		return z
	}
	if l.parent == nil {
		return nil
	}
	pz := l.parent.resolve()
	if pz == nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if l.zap == nil {
		l.zap = pz.With(l.ctx...)
	}
	return l.zap
}

// Initialize builds the base logger from the log configuration.
func Initialize(cfg config.LogConfig, dev bool) error {
	logConfig := zap.NewProductionConfig()
	if dev {
		logConfig = zap.NewDevelopmentConfig()
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		fmt.Printf("error while reading log level %q, falling back to info: %s\n", cfg.Level, err)
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logConfig.Level = level

	var outputPaths []string
	if cfg.Stdout {
		outputPaths = append(outputPaths, "stdout")
	}
	if cfg.File != "" {
		outputPaths = append(outputPaths, cfg.File)
	}
	logConfig.OutputPaths = outputPaths

	plain, err := logConfig.Build()
	if err != nil {
		return err
	}
	setBase(plain.Sugar())
	return nil
}

// UseZap installs an already built zap logger as the base logger.
func UseZap(z *zap.Logger) {
	setBase(z.Sugar())
}

func setBase(z *zap.SugaredLogger) {
	mu.Lock()
	log.zap = z
	mu.Unlock()
}

// GetLogger returns a context logger for the given module.
func GetLogger(moduleName string) Logger {
	return log.New("module", moduleName)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware logs every request with its status, duration and request id.
// Requests answered with a 5xx are logged at error level.
func HTTPMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			ctx := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Error("request failed", ctx...)
				return
			}
			logger.Info("request", ctx...)
		})
	}
}

// Package structlog is a small JSON structured logger with correlation
// ID propagation and masking of sensitive fields.
package structlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type ctxKeyCorrID struct{}

// Fields are structured log attributes.
type Fields map[string]interface{}

// sensitiveKeys are masked in every emitted line. Raw log payloads are
// masked too: stored records carry only the content hash, and the logs
// should not leak what the ledger deliberately omits.
var sensitiveKeys = []string{"password", "secret", "token", "apikey", "authorization", "logdata"}

// Logger emits one JSON object per line.
type Logger struct {
	service string
	level   Level
	mu      sync.Mutex
	output  io.Writer
	fields  Fields
}

// New creates a logger for a service.
func New(service string, level Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{service: service, level: level, output: output, fields: Fields{}}
}

// WithFields returns a logger that includes fields on every line.
func (l *Logger) WithFields(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{service: l.service, level: l.level, output: l.output, fields: merged}
}

// WithContext attaches the context's correlation ID, if present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := CorrelationID(ctx); id != "" {
		return l.WithFields(Fields{"correlation_id": id})
	}
	return l
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(LevelError, msg, fields) }

// SecurityEvent marks lines that feed the operator dashboard's security feed.
func (l *Logger) SecurityEvent(event string, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["event_type"] = "security"
	l.log(LevelWarn, "SECURITY: "+event, fields)
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}
	all := make(Fields, len(l.fields)+len(fields)+4)
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	all["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	all["level"] = level.String()
	all["service"] = l.service
	all["message"] = msg

	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			all["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	for k := range all {
		lk := strings.ToLower(k)
		for _, pattern := range sensitiveKeys {
			if strings.Contains(lk, pattern) {
				all[k] = "MASKED"
				break
			}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.output).Encode(all); err != nil {
		fmt.Fprintf(os.Stderr, "LOG_ERROR: %v\n", err)
	}
}

// NewCorrelationID generates a fresh correlation ID.
func NewCorrelationID() string { return uuid.New().String() }

// WithCorrelationID stores id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrID{}, id)
}

// CorrelationID extracts the correlation ID from ctx, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyCorrID{}).(string); ok {
		return id
	}
	return ""
}

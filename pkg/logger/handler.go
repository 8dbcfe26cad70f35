package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const redacted = "[redacted]"

// LogEntry is one JSON log line. Keys that identify a pipeline run are lifted out of Fields
// so log queries can filter on them directly.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// Credentials that must never reach a log line, whatever component logs them.
var sensitiveKeys = map[string]struct{}{
	"channel_secret":       {},
	"channel_access_token": {},
	"signature":            {},
	"authorization":        {},
}

type entryHandler struct {
	level     slog.Level
	addSource bool
	writer    io.Writer
	attrs     []slog.Attr
	groups    []string
	mu        *sync.Mutex
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}

	fields := make(map[string]any)
	for _, attr := range h.attrs {
		entry.add(fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.add(fields, h.groups, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource {
		entry.Caller = callerFromRecord(record)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// add routes one attribute either to a top-level entry field or into fields.
func (e *LogEntry) add(fields map[string]any, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok {
		fields[qualify(groups, attr.Key)] = redacted
		return
	}

	if len(groups) == 0 && e.promote(attr) {
		return
	}

	fields[qualify(groups, attr.Key)] = attrValue(attr.Value)
}

func (e *LogEntry) promote(attr slog.Attr) bool {
	var target *string
	switch attr.Key {
	case "component":
		target = &e.Component
	case "request_id":
		target = &e.RequestID
	case "user_id":
		target = &e.UserID
	case "stage":
		target = &e.Stage
	default:
		return false
	}

	// Stage is a named string type, so accept anything that renders as text.
	switch attr.Value.Kind() {
	case slog.KindString:
		*target = attr.Value.String()
	case slog.KindAny:
		if s, ok := attr.Value.Any().(fmt.Stringer); ok {
			*target = s.String()
		} else {
			*target = fmt.Sprint(attr.Value.Any())
		}
	default:
		return false
	}
	return true
}

func qualify(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}
	return strings.Join(append(append([]string{}, groups...), key), ".")
}

func callerFromRecord(record slog.Record) string {
	if record.PC == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
	if frame.File == "" {
		return ""
	}

	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func attrValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindString:
		return value.String()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindUint64:
		return value.Uint64()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		result := make(map[string]any, len(group))
		for _, item := range group {
			if _, ok := sensitiveKeys[strings.ToLower(item.Key)]; ok {
				result[item.Key] = redacted
				continue
			}
			result[item.Key] = attrValue(item.Value.Resolve())
		}
		return result
	case slog.KindAny:
		// Errors marshal to {} otherwise.
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.String()
	}
}

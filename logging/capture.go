package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry represents a single captured log record with structured data.
type Entry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Collector provides thread-safe storage for per-step log records.
// The bootstrap report uses it to show recent log lines for failed steps.
type Collector struct {
	mu   sync.RWMutex
	logs map[string][]Entry // step name -> log entries
}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{
		logs: make(map[string][]Entry),
	}
}

// Add appends a log entry for the given step (thread-safe).
func (c *Collector) Add(step string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs[step] = append(c.logs[step], entry)
}

// Logs retrieves all log entries captured for a step (thread-safe).
func (c *Collector) Logs(step string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, ok := c.logs[step]
	if !ok {
		return nil
	}
	result := make([]Entry, len(logs))
	copy(result, logs)
	return result
}

// Clear resets the collector, removing all stored entries (thread-safe).
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[string][]Entry)
}

// CapturingHandler wraps an slog.Handler to capture log records while
// passing them through to the underlying handler.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *Collector
	step       string
	attrs      []slog.Attr
}

// NewCapturingHandler creates a handler that records every log entry for
// the named step in the collector while forwarding to underlying.
func NewCapturingHandler(underlying slog.Handler, collector *Collector, step string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		step:       step,
	}
}

// StepLogger returns a logger whose records are captured for the named step.
func StepLogger(base *slog.Logger, collector *Collector, step string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), collector, step))
}

// Enabled always returns true so every level is captured; the underlying
// handler still filters what reaches its own output.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the record and then passes it to the underlying handler.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]interface{}, r.NumAttrs()+len(h.attrs)),
	}

	for _, attr := range h.attrs {
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attributes[a.Key] = resolveValue(a.Value)
		return true
	})

	h.collector.Add(h.step, entry)

	if h.underlying.Enabled(ctx, r.Level) {
		return h.underlying.Handle(ctx, r)
	}
	return nil
}

// WithAttrs returns a new CapturingHandler with additional attributes.
// Must return a CapturingHandler (not the underlying handler) to preserve
// capturing through .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		step:       h.step,
		attrs:      newAttrs,
	}
}

// WithGroup returns a new CapturingHandler wrapping the grouped handler.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		step:       h.step,
		attrs:      h.attrs,
	}
}

// resolveValue converts a slog.Value to a plain value suitable for the
// Attributes map, stringifying durations and errors.
func resolveValue(v slog.Value) interface{} {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

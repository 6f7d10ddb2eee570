package shardtrace

import (
	"fmt"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	otlog "github.com/opentracing/opentracing-go/log"
)

// LogRecord is a timestamped set of fields logged on a span.
type LogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Span represents a single unit of work in a distributed trace.
// Span values handed to handlers and collectors are snapshots; modifying
// them does not affect the live span.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string    `json:"tags,omitempty"`
	Baggage   map[string]string `json:"baggage,omitempty"`
	Logs      []LogRecord       `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration"`
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
}

// Failed reports whether the span carries the error tag.
func (s Span) Failed() bool {
	return s.Tags[tagError] == "true"
}

// clone returns a deep copy of the span.
func (s Span) clone() Span {
	out := s
	if s.Tags != nil {
		out.Tags = make(map[Tag]string, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	out.Baggage = copyBaggage(s.Baggage)
	if s.Logs != nil {
		out.Logs = make([]LogRecord, len(s.Logs))
		for i, rec := range s.Logs {
			fields := make(map[string]string, len(rec.Fields))
			for k, v := range rec.Fields {
				fields[k] = v
			}
			out.Logs[i] = LogRecord{Timestamp: rec.Timestamp, Fields: fields}
		}
	}
	return out
}

const tagError = "error"

// SpanContext carries the identity of a span across process and goroutine
// boundaries.
type SpanContext struct {
	Baggage map[string]string
	TraceID string
	SpanID  string
}

// ForeachBaggageItem implements opentracing.SpanContext.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.Baggage {
		if !handler(k, v) {
			return
		}
	}
}

// toSpanContext accepts both value and pointer forms.
func toSpanContext(sc opentracing.SpanContext) (SpanContext, bool) {
	switch c := sc.(type) {
	case SpanContext:
		return c, c.TraceID != "" && c.SpanID != ""
	case *SpanContext:
		if c == nil {
			return SpanContext{}, false
		}
		return *c, c.TraceID != "" && c.SpanID != ""
	default:
		return SpanContext{}, false
	}
}

func copyBaggage(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// liveSpan is an unfinished span started by a Tracer.
// Safe for concurrent use by multiple goroutines.
type liveSpan struct {
	tracer *Tracer
	span   *Span
	mu     sync.Mutex
}

var _ opentracing.Span = (*liveSpan)(nil)

func (s *liveSpan) finished() bool {
	return !s.span.EndTime.IsZero()
}

// SetTag adds a key-value pair to the span.
// No-op if span is already finished.
func (s *liveSpan) SetTag(key string, value interface{}) opentracing.Span {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished() {
		return s
	}
	if s.span.Tags == nil {
		s.span.Tags = make(map[Tag]string)
	}
	s.span.Tags[key] = fmt.Sprint(value)
	return s
}

// GetTag retrieves a tag value by key.
func (s *liveSpan) GetTag(key Tag) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.span.Tags[key]
	return value, ok
}

func (s *liveSpan) LogFields(fields ...otlog.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLog(time.Time{}, fields)
}

func (s *liveSpan) LogKV(alternatingKeyValues ...interface{}) {
	fields, err := otlog.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		s.LogFields(otlog.Error(err), otlog.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

func (s *liveSpan) LogEvent(event string) {
	s.LogFields(otlog.String(LogFieldEvent, event))
}

func (s *liveSpan) LogEventWithPayload(event string, payload interface{}) {
	s.LogFields(otlog.String(LogFieldEvent, event), otlog.Object("payload", payload))
}

func (s *liveSpan) Log(data opentracing.LogData) {
	rec := data.ToLogRecord()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLog(rec.Timestamp, rec.Fields)
}

// appendLog must be called with s.mu held.
func (s *liveSpan) appendLog(ts time.Time, fields []otlog.Field) {
	if s.finished() || len(fields) == 0 {
		return
	}
	if ts.IsZero() {
		ts = s.tracer.clock.Now()
	}
	rec := LogRecord{Timestamp: ts, Fields: make(map[string]string, len(fields))}
	for _, f := range fields {
		rec.Fields[f.Key()] = fmt.Sprint(f.Value())
	}
	s.span.Logs = append(s.span.Logs, rec)
}

// Finish completes the span and hands a snapshot to the tracer's handlers.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *liveSpan) Finish() {
	s.FinishWithOptions(opentracing.FinishOptions{})
}

func (s *liveSpan) FinishWithOptions(opts opentracing.FinishOptions) {
	s.mu.Lock()
	if s.finished() {
		s.mu.Unlock()
		return
	}

	for _, rec := range opts.LogRecords {
		s.appendLog(rec.Timestamp, rec.Fields)
	}
	for i := range opts.BulkLogData {
		rec := opts.BulkLogData[i].ToLogRecord()
		s.appendLog(rec.Timestamp, rec.Fields)
	}

	end := opts.FinishTime
	if end.IsZero() {
		end = s.tracer.clock.Now()
	}
	s.span.EndTime = end
	s.span.Duration = end.Sub(s.span.StartTime)
	record := s.span.clone()
	s.mu.Unlock()

	s.tracer.executeHandlers(record)
}

func (s *liveSpan) Context() opentracing.SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpanContext{
		TraceID: s.span.TraceID,
		SpanID:  s.span.SpanID,
		Baggage: copyBaggage(s.span.Baggage),
	}
}

func (s *liveSpan) SetOperationName(operationName string) opentracing.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished() {
		s.span.Name = operationName
	}
	return s
}

func (s *liveSpan) SetBaggageItem(restrictedKey, value string) opentracing.Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return s
	}
	if s.span.Baggage == nil {
		s.span.Baggage = make(map[string]string)
	}
	s.span.Baggage[restrictedKey] = value
	return s
}

func (s *liveSpan) BaggageItem(restrictedKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.span.Baggage[restrictedKey]
}

func (s *liveSpan) Tracer() opentracing.Tracer {
	return s.tracer
}

// record returns a snapshot of the span's current state.
func (s *liveSpan) record() Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.span.clone()
}

// SpanRecord returns a snapshot of a span started by a native Tracer.
// Reports false for spans from any other tracer.
func SpanRecord(span opentracing.Span) (Span, bool) {
	ls, ok := span.(*liveSpan)
	if !ok || ls == nil {
		return Span{}, false
	}
	return ls.record(), true
}

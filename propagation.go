package shardtrace

import (
	"net/url"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
)

// Carrier field names used by Inject and Extract.
const (
	FieldTraceID       = "shardtrace-traceid"
	FieldSpanID        = "shardtrace-spanid"
	FieldBaggagePrefix = "shardtrace-baggage-"
)

// Inject implements opentracing.Tracer for the TextMap and HTTPHeaders
// formats. HTTP header baggage values are query-escaped.
func (t *Tracer) Inject(sm opentracing.SpanContext, format interface{}, carrier interface{}) error {
	sc, ok := toSpanContext(sm)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}

	escape := func(v string) string { return v }
	switch format {
	case opentracing.TextMap:
	case opentracing.HTTPHeaders:
		escape = url.QueryEscape
	default:
		return opentracing.ErrUnsupportedFormat
	}

	writer, ok := carrier.(opentracing.TextMapWriter)
	if !ok {
		return opentracing.ErrInvalidCarrier
	}

	writer.Set(FieldTraceID, sc.TraceID)
	writer.Set(FieldSpanID, sc.SpanID)
	for k, v := range sc.Baggage {
		writer.Set(FieldBaggagePrefix+k, escape(v))
	}
	return nil
}

// Extract implements opentracing.Tracer for the TextMap and HTTPHeaders
// formats. Keys are matched case-insensitively.
func (t *Tracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	unescape := func(v string) (string, error) { return v, nil }
	switch format {
	case opentracing.TextMap:
	case opentracing.HTTPHeaders:
		unescape = url.QueryUnescape
	default:
		return nil, opentracing.ErrUnsupportedFormat
	}

	reader, ok := carrier.(opentracing.TextMapReader)
	if !ok {
		return nil, opentracing.ErrInvalidCarrier
	}

	var sc SpanContext
	err := reader.ForeachKey(func(key, val string) error {
		lower := strings.ToLower(key)
		switch {
		case lower == FieldTraceID:
			sc.TraceID = val
		case lower == FieldSpanID:
			sc.SpanID = val
		case strings.HasPrefix(lower, FieldBaggagePrefix):
			v, err := unescape(val)
			if err != nil {
				return opentracing.ErrSpanContextCorrupted
			}
			if sc.Baggage == nil {
				sc.Baggage = make(map[string]string)
			}
			sc.Baggage[strings.TrimPrefix(lower, FieldBaggagePrefix)] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case sc.TraceID == "" && sc.SpanID == "":
		return nil, opentracing.ErrSpanContextNotFound
	case sc.TraceID == "" || sc.SpanID == "":
		return nil, opentracing.ErrSpanContextCorrupted
	}
	return sc, nil
}

package listener

import (
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	tracer   *mocktracer.MockTracer
	protocol *Protocol
	metrics  *Metrics
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	metrics := NewMetrics(prometheus.NewRegistry(), "test")
	tracer := mocktracer.New()
	return &fixture{
		tracer:   tracer,
		metrics:  metrics,
		logs:     logs,
		protocol: NewProtocol(WithTracer(tracer), WithLogger(zap.New(core)), WithMetrics(metrics)),
	}
}

func (f *fixture) finished(t *testing.T, name string) []*mocktracer.MockSpan {
	t.Helper()
	var spans []*mocktracer.MockSpan
	for _, s := range f.tracer.FinishedSpans() {
		if s.OperationName == name {
			spans = append(spans, s)
		}
	}
	return spans
}

func mockSpan(t *testing.T, span opentracing.Span) *mocktracer.MockSpan {
	t.Helper()
	ms, ok := span.(*mocktracer.MockSpan)
	require.True(t, ok, "expected a mock span, got %T", span)
	return ms
}

// panickingTracer fails every span start.
type panickingTracer struct {
	opentracing.NoopTracer
}

func (panickingTracer) StartSpan(string, ...opentracing.StartSpanOption) opentracing.Span {
	panic("tracer unavailable")
}

package listener

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/eventbus"
	"github.com/zoobzio/shardtrace/executor"
)

const (
	// OverallOperationName names the span covering a whole sharded query.
	OverallOperationName = "/Sharding-Sphere/execute/"

	// OverallSpanContinuation is the DataMap key under which the trunk
	// publishes the continuation of its overall span to the workers.
	OverallSpanContinuation = "shardtrace.overall_span_continuation"

	overallListenerName = "overall"
)

// IsTrunk reports whether task is the trunk of its query.
func IsTrunk(task *executor.Task) bool {
	return task.Trunk()
}

// OverallContinuation returns the overall span continuation published in the
// task's DataMap.
func OverallContinuation(task *executor.Task) (*shardtrace.Continuation, bool) {
	v, ok := task.DataMap().Get(OverallSpanContinuation)
	if !ok {
		return nil, false
	}
	c, ok := v.(*shardtrace.Continuation)
	return c, ok && c != nil
}

// OverallExecuteListener traces a sharded query from the trunk's point of
// view. For parallel queries it publishes a continuation of the overall span
// so worker spans join the same trace.
type OverallExecuteListener struct {
	protocol  *Protocol
	trunkSpan *executor.Local[*shardtrace.ActiveSpan]
}

// NewOverallExecuteListener creates the listener.
func NewOverallExecuteListener(p *Protocol) *OverallExecuteListener {
	return &OverallExecuteListener{
		protocol:  p,
		trunkSpan: executor.NewLocal[*shardtrace.ActiveSpan]("overall.trunk_span"),
	}
}

// Register subscribes the listener to topic.
func (l *OverallExecuteListener) Register(topic *eventbus.Topic[event.OverallExecute]) uint64 {
	return topic.Subscribe(l.Listen)
}

// Listen handles one event. Safe for concurrent calls from distinct tasks.
func (l *OverallExecuteListener) Listen(ev event.OverallExecute) {
	Dispatch[event.OverallExecute](l.protocol, overallListenerName, l, ev)
}

// BeforeExecute starts and activates the overall span once per query.
func (l *OverallExecuteListener) BeforeExecute(ev event.OverallExecute) {
	task := ev.Task()
	if l.trunkSpan.Has(task) {
		return
	}

	opts := []opentracing.StartSpanOption{
		opentracing.Tag{Key: string(ext.Component), Value: shardtrace.ComponentName},
	}
	if ev.SQL != "" {
		opts = append(opts, opentracing.Tag{Key: string(ext.DBStatement), Value: ev.SQL})
	}

	active := shardtrace.Activate(l.protocol.Tracer().StartSpan(OverallOperationName, opts...))
	l.trunkSpan.Set(task, active)
	l.protocol.metrics.spanStarted(overallListenerName)

	if ev.Parallel {
		task.DataMap().Put(OverallSpanContinuation, active.Capture())
	}
}

// TracingFinish withdraws the continuation and deactivates the overall span.
// The span finishes once every worker holding it has deactivated too.
func (l *OverallExecuteListener) TracingFinish(ev event.OverallExecute) {
	task := ev.Task()
	active, ok := l.trunkSpan.Get(task)
	if !ok {
		return
	}
	l.trunkSpan.Remove(task)
	task.DataMap().Remove(OverallSpanContinuation)

	active.Deactivate()
	l.protocol.metrics.spanFinished(overallListenerName)
}

// FailureSpan returns the overall span of the task, if open.
func (l *OverallExecuteListener) FailureSpan(ev event.OverallExecute) opentracing.Span {
	active, ok := l.trunkSpan.Get(ev.Task())
	if !ok {
		return nil
	}
	return active.Span()
}

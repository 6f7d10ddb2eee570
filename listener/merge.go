package listener

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/eventbus"
	"github.com/zoobzio/shardtrace/executor"
)

// MergeOperationName names result-set merge spans.
const MergeOperationName = "/Sharding-Sphere/merge/"

const mergeListenerName = "merge"

// MergeListener traces result-set merging. Each task gets at most one open
// merge span; on a worker task the span is parented under the trunk's
// overall span when its continuation is published.
type MergeListener struct {
	protocol      *Protocol
	branchSpan    *executor.Local[opentracing.Span]
	trunkInBranch *executor.Local[*shardtrace.ActiveSpan]
}

// NewMergeListener creates the listener.
func NewMergeListener(p *Protocol) *MergeListener {
	return &MergeListener{
		protocol:      p,
		branchSpan:    executor.NewLocal[opentracing.Span]("merge.branch_span"),
		trunkInBranch: executor.NewLocal[*shardtrace.ActiveSpan]("merge.trunk_in_branch"),
	}
}

// Register subscribes the listener to topic.
func (l *MergeListener) Register(topic *eventbus.Topic[event.Merge]) uint64 {
	return topic.Subscribe(l.Listen)
}

// Listen handles one merge event. Safe for concurrent calls from distinct
// tasks.
func (l *MergeListener) Listen(ev event.Merge) {
	Dispatch[event.Merge](l.protocol, mergeListenerName, l, ev)
}

// BeforeExecute opens the task's merge span unless one is already open.
func (l *MergeListener) BeforeExecute(ev event.Merge) {
	task := ev.Task()
	if l.branchSpan.Has(task) {
		return
	}

	if !IsTrunk(task) {
		if continuation, ok := OverallContinuation(task); ok {
			l.trunkInBranch.Set(task, continuation.Activate())
			// A correlation handle never outlives a failed span start.
			defer func() {
				if !l.branchSpan.Has(task) {
					l.releaseTrunk(task)
				}
			}()
		}
	}

	ctx := context.Background()
	if active, ok := l.trunkInBranch.Get(task); ok {
		ctx = active.Context(ctx)
	} else if IsTrunk(task) {
		// The trunk still owns the overall span; parent under it without
		// taking a reference.
		if continuation, ok := OverallContinuation(task); ok {
			ctx = opentracing.ContextWithSpan(ctx, continuation.Span())
		}
	}
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, l.protocol.Tracer(), MergeOperationName,
		opentracing.Tag{Key: string(ext.Component), Value: shardtrace.ComponentName},
	)
	l.branchSpan.Set(task, span)
	l.protocol.metrics.spanStarted(mergeListenerName)
}

// TracingFinish finishes the task's merge span and releases the trunk span
// it was correlated with. No-op when no span is open.
func (l *MergeListener) TracingFinish(ev event.Merge) {
	task := ev.Task()
	span, ok := l.branchSpan.Get(task)
	if !ok {
		return
	}
	l.branchSpan.Remove(task)
	defer l.releaseTrunk(task)

	span.Finish()
	l.protocol.metrics.spanFinished(mergeListenerName)
}

// FailureSpan returns the task's open merge span, or nil.
func (l *MergeListener) FailureSpan(ev event.Merge) opentracing.Span {
	span, _ := l.branchSpan.Get(ev.Task())
	return span
}

func (l *MergeListener) releaseTrunk(task *executor.Task) {
	active, ok := l.trunkInBranch.Get(task)
	if !ok {
		return
	}
	l.trunkInBranch.Remove(task)
	active.Deactivate()
}

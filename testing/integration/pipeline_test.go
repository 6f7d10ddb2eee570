package integration

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/executor"
	"github.com/zoobzio/shardtrace/listener"
)

var errShardDown = errors.New("shard down")

func TestParallelQueryTrace(t *testing.T) {
	p := NewPipeline(t)

	p.Query("SELECT * FROM t_order", 4, func(int) error { return nil })

	spans := p.Collector.GetAll()
	a := NewTraceAnalyzer(spans)
	if a.CountSpans() != 5 {
		t.Fatalf("Expected 5 spans, got %d:\n%s", a.CountSpans(), PrintSpanTree(BuildSpanTree(spans)))
	}
	if a.CountTrees() != 1 {
		t.Errorf("Expected 1 tree, got %d", a.CountTrees())
	}
	if err := a.VerifyQueryTrace(4); err != nil {
		t.Error(err)
	}

	overall := a.GetSpansByName(listener.OverallOperationName)[0]
	NewSpanMatcher(t, &overall).
		HasTag("component", shardtrace.ComponentName).
		HasTag("db.statement", "SELECT * FROM t_order").
		HasParent("").
		IsFailed(false)
}

func TestParallelQueryWithFailingShard(t *testing.T) {
	p := NewPipeline(t)

	p.Query("SELECT 1", 3, func(shard int) error {
		if shard == 1 {
			return errShardDown
		}
		return nil
	})

	a := NewTraceAnalyzer(p.Collector.GetAll())
	if err := a.VerifyQueryTrace(3); err != nil {
		t.Fatal(err)
	}

	failed := 0
	for _, s := range a.GetSpansByName(listener.MergeOperationName) {
		if !s.Failed() {
			continue
		}
		failed++
		span := s
		NewSpanMatcher(t, &span).HasTag("component", shardtrace.ComponentName)
		if len(s.Logs) != 1 || s.Logs[0].Fields[shardtrace.LogFieldMessage] != errShardDown.Error() {
			t.Errorf("Expected error log on failed span, got %+v", s.Logs)
		}
	}
	if failed != 1 {
		t.Errorf("Expected 1 failed merge span, got %d", failed)
	}
}

func TestConcurrentQueriesStayIsolated(t *testing.T) {
	p := NewPipeline(t)

	const queries = 20
	const workers = 4

	var wg sync.WaitGroup
	for i := 0; i < queries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Query("SELECT 1", workers, func(int) error { return nil })
		}()
	}
	wg.Wait()

	a := NewTraceAnalyzer(p.Collector.GetAll())
	if a.CountTraces() != queries {
		t.Fatalf("Expected %d traces, got %d", queries, a.CountTraces())
	}
	if err := a.VerifyQueryTrace(workers); err != nil {
		t.Error(err)
	}
}

// TestTrunkFinishesBeforeWorkers covers a trunk that reports completion
// while workers are still merging.
func TestTrunkFinishesBeforeWorkers(t *testing.T) {
	p := NewPipeline(t)

	trunk := executor.NewTrunk()
	p.OverallTopic.Post(event.OverallBefore(trunk, "SELECT 1", true))

	workers := []*executor.Task{trunk.Fork(), trunk.Fork()}
	for _, w := range workers {
		p.MergeTopic.Post(event.MergeBefore(w))
	}
	p.OverallTopic.Post(event.OverallSuccess(trunk))

	if got := len(p.Collector.Export()); got != 0 {
		t.Fatalf("Expected overall span held open by workers, got %d finished spans", got)
	}

	// A worker forked after the trunk finished finds no continuation.
	late := trunk.Fork()
	p.MergeTopic.Post(event.MergeBefore(late))
	p.MergeTopic.Post(event.MergeSuccess(late))

	for _, w := range workers {
		p.MergeTopic.Post(event.MergeSuccess(w))
	}

	a := NewTraceAnalyzer(p.Collector.GetAll())
	if a.CountSpans() != 4 {
		t.Fatalf("Expected 4 spans, got %d", a.CountSpans())
	}
	if a.CountTraces() != 2 {
		t.Errorf("Expected the late worker in its own trace, got %d traces", a.CountTraces())
	}
}

func TestRepeatedBeforeEventsReuseSpan(t *testing.T) {
	p := NewPipeline(t)

	trunk := executor.NewTrunk()
	worker := trunk.Fork()
	p.OverallTopic.Post(event.OverallBefore(trunk, "", true))
	for i := 0; i < 5; i++ {
		p.MergeTopic.Post(event.MergeBefore(worker))
	}
	p.MergeTopic.Post(event.MergeSuccess(worker))
	p.MergeTopic.Post(event.MergeSuccess(worker))
	p.OverallTopic.Post(event.OverallSuccess(trunk))

	a := NewTraceAnalyzer(p.Collector.GetAll())
	if err := a.VerifyQueryTrace(1); err != nil {
		t.Error(err)
	}
}

func TestAsyncCollectorUnderLoad(t *testing.T) {
	tracer := shardtrace.New()
	defer tracer.Close()

	collector := shardtrace.NewCollector("async", 4096)
	defer collector.Close()
	tracer.OnSpanComplete(collector.Handler())

	protocol := listener.NewProtocol(listener.WithTracer(tracer))
	merge := listener.NewMergeListener(protocol)

	const tasks = 200
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := executor.NewTrunk()
			merge.Listen(event.MergeBefore(task))
			merge.Listen(event.MergeSuccess(task))
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for collector.Count()+int(collector.DroppedCount()) < tasks && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := collector.Count() + int(collector.DroppedCount()); got != tasks {
		t.Errorf("Expected %d spans collected or dropped, got %d", tasks, got)
	}
}

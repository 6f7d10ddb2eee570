package shardtrace

import (
	"context"
	"sync"
	"testing"

	opentracing "github.com/opentracing/opentracing-go"
)

func newCountingTracer(t *testing.T) (*Tracer, *Collector) {
	t.Helper()
	tracer := New()
	collector := NewCollector("active", 100)
	collector.SetSyncMode(true)
	tracer.OnSpanComplete(collector.Handler())
	t.Cleanup(func() {
		collector.Close()
		tracer.Close()
	})
	return tracer, collector
}

func TestActiveSpanDeactivateFinishes(t *testing.T) {
	tracer, collector := newCountingTracer(t)

	active := Activate(tracer.StartSpan("trunk"))
	if !active.Active() {
		t.Error("Expected fresh handle to be active")
	}

	active.Deactivate()
	active.Deactivate()

	if active.Active() {
		t.Error("Expected handle to be inactive after Deactivate")
	}
	if collector.Count() != 1 {
		t.Errorf("Expected span finished once, got %d", collector.Count())
	}
}

func TestContinuationKeepsSpanOpen(t *testing.T) {
	tracer, collector := newCountingTracer(t)

	trunk := Activate(tracer.StartSpan("trunk"))
	continuation := trunk.Capture()

	worker := continuation.Activate()
	trunk.Deactivate()

	if collector.Count() != 0 {
		t.Fatal("Expected span to stay open while a worker holds it")
	}

	worker.Deactivate()
	if collector.Count() != 1 {
		t.Errorf("Expected span finished after last deactivation, got %d", collector.Count())
	}
}

func TestContinuationAfterFinishIsDetached(t *testing.T) {
	tracer, collector := newCountingTracer(t)

	trunk := Activate(tracer.StartSpan("trunk"))
	continuation := trunk.Capture()
	trunk.Deactivate()

	late := continuation.Activate()
	if late.Active() {
		t.Error("Expected detached handle for finished span")
	}
	late.Deactivate()

	if collector.Count() != 1 {
		t.Errorf("Expected exactly one finish, got %d", collector.Count())
	}
}

func TestActiveSpanContextParentsChildren(t *testing.T) {
	tracer, _ := newCountingTracer(t)

	trunkSpan := tracer.StartSpan("trunk")
	trunk := Activate(trunkSpan)
	worker := trunk.Capture().Activate()

	child, _ := opentracing.StartSpanFromContextWithTracer(worker.Context(context.Background()), tracer, "child")

	childRecord, _ := SpanRecord(child)
	trunkRecord, _ := SpanRecord(trunkSpan)
	if childRecord.ParentID != trunkRecord.SpanID {
		t.Errorf("Expected child of %s, got parent %s", trunkRecord.SpanID, childRecord.ParentID)
	}
	if worker.Span() != trunkSpan {
		t.Error("Expected worker handle to share the trunk span")
	}
}

func TestContinuationConcurrentWorkers(t *testing.T) {
	tracer, collector := newCountingTracer(t)

	trunk := Activate(tracer.StartSpan("trunk"))
	continuation := trunk.Capture()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			continuation.Activate().Deactivate()
		}()
	}
	wg.Wait()
	trunk.Deactivate()

	if collector.Count() != 1 {
		t.Errorf("Expected exactly one finish, got %d", collector.Count())
	}
}

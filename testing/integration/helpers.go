package integration

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/eventbus"
	"github.com/zoobzio/shardtrace/executor"
	"github.com/zoobzio/shardtrace/listener"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []shardtrace.Span
	*shardtrace.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a collector for testing.
func NewMockCollector(t *testing.T, name string, bufferSize int) *MockCollector {
	collector := shardtrace.NewCollector(name, bufferSize)
	collector.SetSyncMode(true)
	return &MockCollector{
		Collector: collector,
		t:         t,
	}
}

// Export returns collected spans and clears the buffer.
func (m *MockCollector) Export() []shardtrace.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	spans := m.Collector.Export()
	m.exported = append(m.exported, spans...)
	return spans
}

// GetAll returns every span exported so far, including the current buffer.
func (m *MockCollector) GetAll() []shardtrace.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.Collector.Export(); len(current) > 0 {
		m.exported = append(m.exported, current...)
	}

	all := make([]shardtrace.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits for expected number of spans with timeout.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []shardtrace.Span {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var spans []shardtrace.Span
	for time.Now().Before(deadline) {
		spans = append(spans, m.Export()...)
		if len(spans) >= expected {
			return spans
		}
		<-ticker.C
	}

	m.t.Errorf("Timeout waiting for spans: expected %d, got %d", expected, len(spans))
	return spans
}

// AssertSpanCount verifies exact span count.
func (m *MockCollector) AssertSpanCount(expected int) {
	spans := m.Export()
	if len(spans) != expected {
		m.t.Errorf("Expected %d spans, got %d", expected, len(spans))
	}
}

// Pipeline wires a native tracer, a collector, both listeners and their
// topics the way a deployment does.
type Pipeline struct {
	Tracer       *shardtrace.Tracer
	Collector    *MockCollector
	Merge        *listener.MergeListener
	Overall      *listener.OverallExecuteListener
	MergeTopic   *eventbus.Topic[event.Merge]
	OverallTopic *eventbus.Topic[event.OverallExecute]
}

// NewPipeline creates a pipeline torn down with the test.
func NewPipeline(t *testing.T) *Pipeline {
	t.Helper()

	tracer := shardtrace.New()
	collector := NewMockCollector(t, "integration", 10000)
	tracer.OnSpanComplete(collector.Handler())

	protocol := listener.NewProtocol(listener.WithTracer(tracer))
	p := &Pipeline{
		Tracer:       tracer,
		Collector:    collector,
		Merge:        listener.NewMergeListener(protocol),
		Overall:      listener.NewOverallExecuteListener(protocol),
		MergeTopic:   eventbus.NewTopic[event.Merge]("merge"),
		OverallTopic: eventbus.NewTopic[event.OverallExecute]("overall"),
	}
	p.Merge.Register(p.MergeTopic)
	p.Overall.Register(p.OverallTopic)

	t.Cleanup(func() {
		p.MergeTopic.Close()
		p.OverallTopic.Close()
		tracer.Close()
		collector.Close()
	})
	return p
}

// Query drives one parallel query. Each worker runs on its own goroutine
// and calls merge between its before and completion events; a non-nil
// error from merge reports a failure.
func (p *Pipeline) Query(sql string, workers int, merge func(shard int) error) {
	trunk := executor.NewTrunk()
	p.OverallTopic.Post(event.OverallBefore(trunk, sql, true))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(task *executor.Task, shard int) {
			defer wg.Done()
			p.MergeTopic.Post(event.MergeBefore(task))
			if err := merge(shard); err != nil {
				p.MergeTopic.Post(event.MergeFailure(task, err))
				return
			}
			p.MergeTopic.Post(event.MergeSuccess(task))
		}(trunk.Fork(), i)
	}
	wg.Wait()

	p.OverallTopic.Post(event.OverallSuccess(trunk))
}

// SpanTree represents a hierarchical view of spans.
type SpanTree struct {
	Span     shardtrace.Span
	Children []*SpanTree
}

// BuildSpanTree constructs a tree from flat span list.
func BuildSpanTree(spans []shardtrace.Span) []*SpanTree {
	nodeMap := make(map[string]*SpanTree, len(spans))
	roots := make([]*SpanTree, 0)

	for i := range spans {
		nodeMap[spans[i].SpanID] = &SpanTree{Span: spans[i]}
	}

	for i := range spans {
		span := spans[i]
		node := nodeMap[span.SpanID]
		if span.ParentID == "" {
			roots = append(roots, node)
		} else if parent, exists := nodeMap[span.ParentID]; exists {
			parent.Children = append(parent.Children, node)
		}
	}

	return roots
}

// PrintSpanTree formats span tree for debugging.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	indent := strings.Repeat("  ", depth)
	status := ""
	if node.Span.Failed() {
		status = " [error]"
	}
	fmt.Fprintf(sb, "%s%s (%.2fms)%s\n",
		indent, node.Span.Name, node.Span.Duration.Seconds()*1000, status)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// SpanMatcher provides fluent assertions for spans.
type SpanMatcher struct {
	t    *testing.T
	span *shardtrace.Span
}

// NewSpanMatcher creates a matcher for span assertions.
func NewSpanMatcher(t *testing.T, span *shardtrace.Span) *SpanMatcher {
	return &SpanMatcher{t: t, span: span}
}

// HasTag verifies tag exists with value.
func (m *SpanMatcher) HasTag(key, value string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if actual, exists := m.span.Tags[key]; !exists {
		m.t.Errorf("Span %s missing tag '%s'", m.span.Name, key)
	} else if actual != value {
		m.t.Errorf("Span %s tag '%s': expected '%s', got '%s'",
			m.span.Name, key, value, actual)
	}
	return m
}

// HasParent verifies parent relationship.
func (m *SpanMatcher) HasParent(parentID string) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.ParentID != parentID {
		m.t.Errorf("Span %s wrong parent: expected %s, got %s",
			m.span.Name, parentID, m.span.ParentID)
	}
	return m
}

// IsFailed verifies the span carries the error tag.
func (m *SpanMatcher) IsFailed(failed bool) *SpanMatcher {
	if m.span == nil {
		return m
	}
	if m.span.Failed() != failed {
		m.t.Errorf("Span %s failed=%v, expected %v", m.span.Name, m.span.Failed(), failed)
	}
	return m
}

// TraceAnalyzer provides trace-level assertions.
type TraceAnalyzer struct {
	spans   []shardtrace.Span
	byName  map[string][]shardtrace.Span
	byTrace map[string][]shardtrace.Span
	trees   []*SpanTree
}

// NewTraceAnalyzer creates an analyzer for a set of spans.
func NewTraceAnalyzer(spans []shardtrace.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		spans:   spans,
		byName:  make(map[string][]shardtrace.Span),
		byTrace: make(map[string][]shardtrace.Span),
	}

	for i := range spans {
		span := spans[i]
		a.byName[span.Name] = append(a.byName[span.Name], span)
		a.byTrace[span.TraceID] = append(a.byTrace[span.TraceID], span)
	}

	a.trees = BuildSpanTree(spans)
	return a
}

// GetSpansByName retrieves all spans with given name.
func (a *TraceAnalyzer) GetSpansByName(name string) []shardtrace.Span {
	return a.byName[name]
}

// CountSpans returns total span count.
func (a *TraceAnalyzer) CountSpans() int {
	return len(a.spans)
}

// CountTrees returns number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// CountTraces returns number of distinct trace ids.
func (a *TraceAnalyzer) CountTraces() int {
	return len(a.byTrace)
}

// VerifyQueryTrace checks that every trace holds one overall span with
// the given number of merge spans directly beneath it.
func (a *TraceAnalyzer) VerifyQueryTrace(workers int) error {
	for traceID, spans := range a.byTrace {
		var root *shardtrace.Span
		merges := 0
		for i := range spans {
			switch spans[i].Name {
			case listener.OverallOperationName:
				if root != nil {
					return fmt.Errorf("trace %s: more than one overall span", traceID)
				}
				root = &spans[i]
			case listener.MergeOperationName:
				merges++
			}
		}
		if root == nil {
			return fmt.Errorf("trace %s: overall span not found", traceID)
		}
		if merges != workers {
			return fmt.Errorf("trace %s: expected %d merge spans, got %d", traceID, workers, merges)
		}
		for i := range spans {
			if spans[i].Name == listener.MergeOperationName && spans[i].ParentID != root.SpanID {
				return fmt.Errorf("trace %s: merge span %s is not a child of the overall span", traceID, spans[i].SpanID)
			}
		}
	}
	return nil
}

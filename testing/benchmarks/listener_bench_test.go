package benchmarks

import (
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/eventbus"
	"github.com/zoobzio/shardtrace/executor"
	"github.com/zoobzio/shardtrace/listener"
)

func newListeners(tracer *shardtrace.Tracer) (*listener.MergeListener, *listener.OverallExecuteListener) {
	protocol := listener.NewProtocol(listener.WithTracer(tracer))
	return listener.NewMergeListener(protocol), listener.NewOverallExecuteListener(protocol)
}

// BenchmarkMergeSpanLifecycle measures one before/success pair on a trunk.
func BenchmarkMergeSpanLifecycle(b *testing.B) {
	tracer := shardtrace.New()
	defer tracer.Close()
	merge, _ := newListeners(tracer)
	task := executor.NewTrunk()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		merge.Listen(event.MergeBefore(task))
		merge.Listen(event.MergeSuccess(task))
	}
}

// BenchmarkMergeWorkerActivation measures a worker merge joining the
// overall span through its continuation.
func BenchmarkMergeWorkerActivation(b *testing.B) {
	tracer := shardtrace.New()
	defer tracer.Close()
	merge, overall := newListeners(tracer)

	trunk := executor.NewTrunk()
	overall.Listen(event.OverallBefore(trunk, "SELECT 1", true))
	defer overall.Listen(event.OverallSuccess(trunk))
	worker := trunk.Fork()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		merge.Listen(event.MergeBefore(worker))
		merge.Listen(event.MergeSuccess(worker))
	}
}

// BenchmarkParallelQuery measures a full query fanned out to workers through
// the event topics.
func BenchmarkParallelQuery(b *testing.B) {
	for _, workers := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("workers-%d", workers), func(b *testing.B) {
			tracer := shardtrace.New()
			defer tracer.Close()
			merge, overall := newListeners(tracer)

			mergeTopic := eventbus.NewTopic[event.Merge]("merge")
			overallTopic := eventbus.NewTopic[event.OverallExecute]("overall")
			defer mergeTopic.Close()
			defer overallTopic.Close()
			merge.Register(mergeTopic)
			overall.Register(overallTopic)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				trunk := executor.NewTrunk()
				overallTopic.Post(event.OverallBefore(trunk, "SELECT 1", true))

				var wg sync.WaitGroup
				for w := 0; w < workers; w++ {
					wg.Add(1)
					go func(task *executor.Task) {
						defer wg.Done()
						mergeTopic.Post(event.MergeBefore(task))
						mergeTopic.Post(event.MergeSuccess(task))
					}(trunk.Fork())
				}
				wg.Wait()

				overallTopic.Post(event.OverallSuccess(trunk))
			}
		})
	}
}

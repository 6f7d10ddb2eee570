package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zoobzio/shardtrace/bootstrap"
	"github.com/zoobzio/shardtrace/event"
	"github.com/zoobzio/shardtrace/executor"
)

var errShardUnavailable = errors.New("shard unavailable")

// simulation posts the events of one sharded query per run.
type simulation struct {
	sql      string
	workers  int
	fail     int
	parallel bool
}

// run executes one query. In parallel mode each shard merges on its own
// forked task and goroutine; otherwise every shard merges on the trunk.
func (s simulation) run(rt *bootstrap.Runtime) {
	trunk := executor.NewTrunk()
	rt.OverallTopic.Post(event.OverallBefore(trunk, s.sql, s.parallel))

	if !s.parallel {
		for i := 0; i < s.workers; i++ {
			s.merge(rt, trunk, i)
		}
		s.finish(rt, trunk)
		return
	}

	var wg sync.WaitGroup
	started := make(chan struct{}, s.workers)
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(task *executor.Task, shard int) {
			defer wg.Done()
			rt.MergeTopic.Post(event.MergeBefore(task))
			started <- struct{}{}
			s.complete(rt, task, shard)
		}(trunk.Fork(), i)
	}

	// The trunk reports completion once every worker joined the trace; the
	// overall span then lives on until the last worker finishes merging.
	for i := 0; i < s.workers; i++ {
		<-started
	}
	s.finish(rt, trunk)
	wg.Wait()
}

func (s simulation) merge(rt *bootstrap.Runtime, task *executor.Task, shard int) {
	rt.MergeTopic.Post(event.MergeBefore(task))
	s.complete(rt, task, shard)
}

func (s simulation) complete(rt *bootstrap.Runtime, task *executor.Task, shard int) {
	if shard == s.fail {
		rt.MergeTopic.Post(event.MergeFailure(task, fmt.Errorf("shard %d: %w", shard, errShardUnavailable)))
		return
	}
	rt.MergeTopic.Post(event.MergeSuccess(task))
}

func (s simulation) finish(rt *bootstrap.Runtime, trunk *executor.Task) {
	if s.fail >= 0 && s.fail < s.workers {
		rt.OverallTopic.Post(event.OverallFailure(trunk, errShardUnavailable))
		return
	}
	rt.OverallTopic.Post(event.OverallSuccess(trunk))
}

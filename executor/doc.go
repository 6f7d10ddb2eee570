// Package executor models the execution context of a sharded query.
//
// A query runs on one trunk Task and any number of worker Tasks forked from
// it. All tasks of a query share one DataMap, written by the trunk and read
// by the workers. Each Task also carries task-local slots, addressed through
// typed Local keys, that replace thread-local storage: a slot belongs to the
// goroutine currently running the task and is never shared.
//
//	trunk := executor.NewTrunk()
//	trunk.DataMap().Put("key", value)
//
//	worker := trunk.Fork()
//	go func() {
//		v, _ := worker.DataMap().Get("key")
//		...
//	}()
package executor

package event

import "github.com/zoobzio/shardtrace/executor"

// Merge reports the progress of a result-set merge on one task.
type Merge struct {
	Base
}

// MergeBefore is posted when merging starts on task.
func MergeBefore(task *executor.Task) Merge {
	return Merge{Base: before(task)}
}

// MergeSuccess is posted when merging completed on task.
func MergeSuccess(task *executor.Task) Merge {
	return Merge{Base: success(task)}
}

// MergeFailure is posted when merging failed on task.
func MergeFailure(task *executor.Task, err error) Merge {
	return Merge{Base: failure(task, err)}
}

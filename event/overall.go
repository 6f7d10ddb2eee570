package event

import "github.com/zoobzio/shardtrace/executor"

// OverallExecute reports the progress of a whole sharded query on its trunk
// task.
type OverallExecute struct {
	Base
	SQL      string
	Parallel bool
}

// OverallBefore is posted by the trunk before any worker starts.
func OverallBefore(task *executor.Task, sql string, parallel bool) OverallExecute {
	return OverallExecute{Base: before(task), SQL: sql, Parallel: parallel}
}

// OverallSuccess is posted by the trunk once every worker completed.
func OverallSuccess(task *executor.Task) OverallExecute {
	return OverallExecute{Base: success(task)}
}

// OverallFailure is posted by the trunk when the query failed.
func OverallFailure(task *executor.Task, err error) OverallExecute {
	return OverallExecute{Base: failure(task, err)}
}

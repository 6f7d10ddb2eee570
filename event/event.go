// Package event defines the execution events published by the sharding
// pipeline and consumed by the tracing listeners.
package event

import (
	"github.com/zoobzio/shardtrace/executor"
)

// ExecutionType is the stage of the operation an event reports.
type ExecutionType int

const (
	// BeforeExecute is posted before the operation runs.
	BeforeExecute ExecutionType = iota
	// ExecuteSuccess is posted when the operation completed.
	ExecuteSuccess
	// ExecuteFailure is posted when the operation failed.
	ExecuteFailure
)

func (t ExecutionType) String() string {
	switch t {
	case BeforeExecute:
		return "before_execute"
	case ExecuteSuccess:
		return "execute_success"
	case ExecuteFailure:
		return "execute_failure"
	default:
		return "unknown"
	}
}

// Event is implemented by every pipeline event.
type Event interface {
	Type() ExecutionType
	Err() error
	Task() *executor.Task
}

// Base carries the fields shared by every event.
type Base struct {
	task     *executor.Task
	err      error
	execType ExecutionType
}

// Type returns the execution stage.
func (b Base) Type() ExecutionType { return b.execType }

// Err returns the failure cause of an ExecuteFailure event.
func (b Base) Err() error { return b.err }

// Task returns the task the event was posted from.
func (b Base) Task() *executor.Task { return b.task }

// Completed reports whether the event ends the operation.
func (b Base) Completed() bool {
	return b.execType != BeforeExecute
}

func before(task *executor.Task) Base {
	return Base{task: task, execType: BeforeExecute}
}

func success(task *executor.Task) Base {
	return Base{task: task, execType: ExecuteSuccess}
}

func failure(task *executor.Task, err error) Base {
	return Base{task: task, err: err, execType: ExecuteFailure}
}

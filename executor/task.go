package executor

import (
	"github.com/google/uuid"
)

// Task is the execution context of one goroutine taking part in a sharded
// query. A Task must be driven by a single goroutine at a time; its local
// slots are not synchronized.
type Task struct {
	data   *DataMap
	locals map[*localKey]any
	id     string
	parent string
	trunk  bool
}

// NewTrunk creates the trunk task of a new query with an empty DataMap.
func NewTrunk() *Task {
	return &Task{
		data:  NewDataMap(),
		id:    uuid.NewString(),
		trunk: true,
	}
}

// Fork derives a worker task sharing this task's DataMap.
func (t *Task) Fork() *Task {
	return &Task{
		data:   t.data,
		id:     uuid.NewString(),
		parent: t.id,
	}
}

// ID returns the task identifier.
func (t *Task) ID() string {
	return t.id
}

// ParentID returns the identifier of the task this one was forked from,
// empty for a trunk.
func (t *Task) ParentID() string {
	return t.parent
}

// Trunk reports whether the task initiated the query.
func (t *Task) Trunk() bool {
	return t.trunk
}

// DataMap returns the map shared by every task of the query.
func (t *Task) DataMap() *DataMap {
	return t.data
}

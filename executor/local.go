package executor

// localKey gives each Local a unique identity inside a task's slot map.
type localKey struct {
	name string
}

// Local is a typed task-local slot. The same Local addresses a separate
// value in every Task.
type Local[T any] struct {
	key *localKey
}

// NewLocal creates a slot. The name only aids debugging.
func NewLocal[T any](name string) *Local[T] {
	return &Local[T]{key: &localKey{name: name}}
}

// Name returns the slot name.
func (l *Local[T]) Name() string {
	return l.key.name
}

// Get returns the task's value for this slot.
func (l *Local[T]) Get(task *Task) (T, bool) {
	v, ok := task.locals[l.key]
	if !ok {
		var zero T
		return zero, false
	}
	value, _ := v.(T)
	return value, true
}

// Has reports whether the task holds a value for this slot.
func (l *Local[T]) Has(task *Task) bool {
	_, ok := task.locals[l.key]
	return ok
}

// Set stores the task's value for this slot.
func (l *Local[T]) Set(task *Task, value T) {
	if task.locals == nil {
		task.locals = make(map[*localKey]any)
	}
	task.locals[l.key] = value
}

// Remove clears the task's value for this slot.
func (l *Local[T]) Remove(task *Task) {
	delete(task.locals, l.key)
}

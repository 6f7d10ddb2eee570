package executor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrunkAndFork(t *testing.T) {
	trunk := NewTrunk()
	worker := trunk.Fork()

	assert.True(t, trunk.Trunk())
	assert.False(t, worker.Trunk())
	assert.NotEmpty(t, trunk.ID())
	assert.NotEqual(t, trunk.ID(), worker.ID())
	assert.Equal(t, trunk.ID(), worker.ParentID())
	assert.Empty(t, trunk.ParentID())
	assert.Same(t, trunk.DataMap(), worker.DataMap())
}

func TestForkOfWorkerStaysWorker(t *testing.T) {
	nested := NewTrunk().Fork().Fork()
	assert.False(t, nested.Trunk())
}

func TestDataMap(t *testing.T) {
	m := NewDataMap()

	_, ok := m.Get("missing")
	assert.False(t, ok)

	m.Put("k", 1)
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, m.Has("k"))

	assert.False(t, m.PutIfAbsent("k", 2))
	assert.True(t, m.PutIfAbsent("other", 3))

	snap := m.Snapshot()
	snap["k"] = 99
	v, _ = m.Get("k")
	assert.Equal(t, 1, v, "snapshot must not alias the map")

	m.Remove("k")
	assert.False(t, m.Has("k"))
}

func TestDataMapConcurrentAccess(t *testing.T) {
	trunk := NewTrunk()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			trunk.DataMap().Put("shared", i)
		}()
		go func() {
			defer wg.Done()
			trunk.Fork().DataMap().Get("shared")
		}()
	}
	wg.Wait()

	assert.True(t, trunk.DataMap().Has("shared"))
}

func TestLocalIsolation(t *testing.T) {
	slot := NewLocal[string]("slot")
	trunk := NewTrunk()
	worker := trunk.Fork()

	slot.Set(trunk, "trunk-value")

	v, ok := slot.Get(trunk)
	require.True(t, ok)
	assert.Equal(t, "trunk-value", v)

	_, ok = slot.Get(worker)
	assert.False(t, ok, "locals must not leak across forks")

	slot.Remove(trunk)
	assert.False(t, slot.Has(trunk))
	assert.Equal(t, "slot", slot.Name())
}

func TestLocalsAreIndependent(t *testing.T) {
	a := NewLocal[int]("same")
	b := NewLocal[int]("same")
	task := NewTrunk()

	a.Set(task, 1)
	assert.False(t, b.Has(task))
}

func TestLocalNilValue(t *testing.T) {
	slot := NewLocal[error]("err")
	task := NewTrunk()

	slot.Set(task, nil)
	v, ok := slot.Get(task)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestLocalConcurrentTasks(t *testing.T) {
	slot := NewLocal[int]("n")
	trunk := NewTrunk()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := trunk.Fork()
			slot.Set(task, i)
			v, ok := slot.Get(task)
			assert.True(t, ok)
			assert.Equal(t, i, v)
		}(i)
	}
	wg.Wait()
}

package drawcull

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAddRemove(t *testing.T) {
	s := NewCommandStore(4, 16, nil)

	a, err := s.Add(testCommand(mgl32.Vec3{1, 0, 0}))
	require.NoError(t, err)
	b, err := s.Add(testCommand(mgl32.Vec3{2, 0, 0}))
	require.NoError(t, err)
	c, err := s.Add(testCommand(mgl32.Vec3{3, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	// Removing the first slot swap-moves the last command into it.
	require.True(t, s.Remove(a))
	assert.Equal(t, 2, s.Len())

	slot, ok := s.Slot(c)
	require.True(t, ok)
	assert.Equal(t, 0, slot)
	assert.Equal(t, float32(3), s.Commands()[0].Sphere.Center.X())

	slot, ok = s.Slot(b)
	require.True(t, ok)
	assert.Equal(t, 1, slot)

	assert.False(t, s.Remove(a), "double remove")
	assert.False(t, s.Remove("no-such-id"))
}

func TestStoreFull(t *testing.T) {
	s := NewCommandStore(2, 8, nil)
	_, err := s.Add(testCommand(mgl32.Vec3{}))
	require.NoError(t, err)
	_, err = s.Add(testCommand(mgl32.Vec3{}))
	require.NoError(t, err)

	_, err = s.Add(testCommand(mgl32.Vec3{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command store full")
}

func TestStoreUpdateRotatesPrevWorld(t *testing.T) {
	s := NewCommandStore(4, 16, nil)
	id, err := s.Add(testCommand(mgl32.Vec3{1, 0, 0}))
	require.NoError(t, err)

	moved := testCommand(mgl32.Vec3{5, 0, 0})
	require.True(t, s.Update(id, moved))

	slot, _ := s.Slot(id)
	got := s.Commands()[slot]
	assert.Equal(t, moved.World, got.World)
	// The previous transform is kept for motion vectors.
	assert.Equal(t, mgl32.Translate3D(1, 0, 0), got.PrevWorld)

	assert.False(t, s.Update("no-such-id", moved))
}

func TestStoreGrow(t *testing.T) {
	s := NewCommandStore(2, 6, nil)
	id, err := s.Add(testCommand(mgl32.Vec3{9, 0, 0}))
	require.NoError(t, err)

	s.Grow(4)
	assert.Equal(t, 4, s.Capacity())

	// Growth preserves contents and handles.
	slot, ok := s.Slot(id)
	require.True(t, ok)
	assert.Equal(t, float32(9), s.Commands()[slot].Sphere.Center.X())

	// Clamped at the ceiling, never shrinks.
	s.Grow(100)
	assert.Equal(t, 6, s.Capacity())
	s.Grow(3)
	assert.Equal(t, 6, s.Capacity())
}

func TestStoreDirtyTracking(t *testing.T) {
	s := NewCommandStore(4, 16, nil)
	assert.False(t, s.Dirty())

	id, _ := s.Add(testCommand(mgl32.Vec3{}))
	assert.True(t, s.Dirty())
	s.ClearDirty()

	s.Update(id, testCommand(mgl32.Vec3{1, 0, 0}))
	assert.True(t, s.Dirty())
	s.ClearDirty()

	s.Remove(id)
	assert.True(t, s.Dirty())
}

func TestStoreHotBytes(t *testing.T) {
	s := NewCommandStore(4, 16, nil)
	s.Add(testCommand(mgl32.Vec3{}))
	s.Add(testCommand(mgl32.Vec3{}))

	assert.Len(t, s.HotBytes(), 2*HotCommandSize)
	assert.Len(t, s.ColdBytes(), 2*ColdCommandSize)
}

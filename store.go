package drawcull

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectId is a stable handle for a command slot, independent of the slot's
// position (slots move on removal).
type ObjectId string

// CommandStore is the scene-owned, fixed-capacity array of draw descriptors.
// It is mutated only by scene-side Add/Remove/Update (single writer per
// frame); capacity changes happen only between frames, driven by the
// CapacityGovernor.
type CommandStore struct {
	log      Logger
	capacity int
	ceiling  int

	commands []RenderCommand
	slots    []ObjectId // slot -> handle, parallel to commands
	index    map[ObjectId]int

	dirty bool // set on any mutation; cleared by the GPU upload
}

func NewCommandStore(capacity, ceiling int, log Logger) *CommandStore {
	if log == nil {
		log = NewNopLogger()
	}
	if capacity < 0 {
		capacity = 0
	}
	if ceiling < capacity {
		ceiling = capacity
	}
	return &CommandStore{
		log:      log,
		capacity: capacity,
		ceiling:  ceiling,
		commands: make([]RenderCommand, 0, capacity),
		slots:    make([]ObjectId, 0, capacity),
		index:    make(map[ObjectId]int),
	}
}

func (s *CommandStore) Len() int      { return len(s.commands) }
func (s *CommandStore) Capacity() int { return s.capacity }
func (s *CommandStore) Ceiling() int  { return s.ceiling }

// Commands exposes the slot array for the culling stage. Callers must not
// retain the slice across a mutation.
func (s *CommandStore) Commands() []RenderCommand { return s.commands }

// Add inserts a command and returns its handle. Fails when the store is at
// capacity; growth is the governor's job, not Add's.
func (s *CommandStore) Add(cmd RenderCommand) (ObjectId, error) {
	if len(s.commands) >= s.capacity {
		return "", fmt.Errorf("command store full: %d objects at capacity %d (ceiling %d)",
			len(s.commands), s.capacity, s.ceiling)
	}
	id := ObjectId(uuid.NewString())
	s.index[id] = len(s.commands)
	s.commands = append(s.commands, cmd)
	s.slots = append(s.slots, id)
	s.dirty = true
	return id, nil
}

// Remove swap-removes the slot, keeping the array dense.
func (s *CommandStore) Remove(id ObjectId) bool {
	slot, ok := s.index[id]
	if !ok {
		return false
	}
	last := len(s.commands) - 1
	if slot != last {
		s.commands[slot] = s.commands[last]
		moved := s.slots[last]
		s.slots[slot] = moved
		s.index[moved] = slot
	}
	s.commands = s.commands[:last]
	s.slots = s.slots[:last]
	delete(s.index, id)
	s.dirty = true
	return true
}

// Update overwrites the command for id. Transform updates also rotate the
// previous-frame matrix for motion vectors.
func (s *CommandStore) Update(id ObjectId, cmd RenderCommand) bool {
	slot, ok := s.index[id]
	if !ok {
		return false
	}
	cmd.PrevWorld = s.commands[slot].World
	s.commands[slot] = cmd
	s.dirty = true
	return true
}

// Slot resolves a handle to its current slot index.
func (s *CommandStore) Slot(id ObjectId) (int, bool) {
	slot, ok := s.index[id]
	return slot, ok
}

// Grow reallocates to newCapacity, clamped to the ceiling. Must only be
// called between frames (governor contract: never mid-frame).
func (s *CommandStore) Grow(newCapacity int) {
	if newCapacity > s.ceiling {
		newCapacity = s.ceiling
	}
	if newCapacity <= s.capacity {
		return
	}
	s.log.Warnf("growing command store %d -> %d slots", s.capacity, newCapacity)
	grown := make([]RenderCommand, len(s.commands), newCapacity)
	copy(grown, s.commands)
	s.commands = grown
	slots := make([]ObjectId, len(s.slots), newCapacity)
	copy(slots, s.slots)
	s.slots = slots
	s.capacity = newCapacity
	s.dirty = true
}

// Dirty reports whether the store changed since ClearDirty, so the GPU upload
// can be skipped on quiet frames.
func (s *CommandStore) Dirty() bool { return s.dirty }

func (s *CommandStore) ClearDirty() { s.dirty = false }

// HotBytes packs every slot's hot record for upload.
func (s *CommandStore) HotBytes() []byte {
	buf := make([]byte, 0, len(s.commands)*HotCommandSize)
	for i := range s.commands {
		buf = append(buf, s.commands[i].HotBytes()...)
	}
	return buf
}

// ColdBytes packs every slot's cold record for upload.
func (s *CommandStore) ColdBytes() []byte {
	buf := make([]byte, 0, len(s.commands)*ColdCommandSize)
	for i := range s.commands {
		buf = append(buf, s.commands[i].ColdBytes()...)
	}
	return buf
}

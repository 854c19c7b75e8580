package shmem

// ObjectInfo describes one allocated object in the shared object area.
// Size is already rounded up to the allocator chunk size.
type ObjectInfo struct {
	ID     uint64
	Offset uint64
	Size   uint64
}

type objectSlot struct {
	used uint64
	info ObjectInfo
}

// ObjectIndex is the fixed-capacity object allocator stored in the shared
// control block. Only the coordinator calls the mutating operations; replicas
// only look objects up.
//
// The allocation strategy is first fit over the slot array. It admits
// fragmentation: a smaller object placed where a larger one was freed wastes
// the tail of the gap.
type ObjectIndex struct {
	totalSize     uint64
	allocatedSize uint64
	chunkSize     uint64
	slots         [MaxObjects]objectSlot
}

// Init resets the index for a region with the given object-area size and
// chunk granularity.
func (m *ObjectIndex) Init(totalSize, chunkSize uint64) {
	*m = ObjectIndex{
		totalSize: totalSize,
		chunkSize: chunkSize,
	}
}

// TotalSize returns the size of the object area managed by the index.
func (m *ObjectIndex) TotalSize() uint64 {
	return m.totalSize
}

// AllocatedSize returns the sum of the sizes of all allocated objects.
func (m *ObjectIndex) AllocatedSize() uint64 {
	return m.allocatedSize
}

// ChunkSize returns the allocation granularity in bytes.
func (m *ObjectIndex) ChunkSize() uint64 {
	return m.chunkSize
}

// Lookup returns the info of the object with the given id.
func (m *ObjectIndex) Lookup(id uint64) (ObjectInfo, bool) {
	for i := range m.slots {
		if m.slots[i].used != 0 && m.slots[i].info.ID == id {
			return m.slots[i].info, true
		}
	}

	return ObjectInfo{}, false
}

// Alloc places an object of the given size in the first empty slot whose gap
// fits it. The size is rounded up to a multiple of the chunk size. It returns
// the object offset, or false when the id already exists, the region is full
// or no gap is large enough.
func (m *ObjectIndex) Alloc(id, size uint64) (uint64, bool) {
	chunks := (size + m.chunkSize - 1) / m.chunkSize
	size = chunks * m.chunkSize

	if m.allocatedSize+size > m.totalSize {
		return 0, false
	}

	if _, ok := m.Lookup(id); ok {
		return 0, false
	}

	for i := range m.slots {
		if m.slots[i].used != 0 {
			continue
		}

		// Gap bounds: from the end of the nearest preceding entry to the
		// offset of the nearest following one, or the region bounds.
		start := uint64(0)
		for j := i - 1; j >= 0; j-- {
			if m.slots[j].used != 0 {
				start = m.slots[j].info.Offset + m.slots[j].info.Size
				break
			}
		}

		end := m.totalSize
		for j := i + 1; j < MaxObjects; j++ {
			if m.slots[j].used != 0 {
				end = m.slots[j].info.Offset
				break
			}
		}

		if start+size <= end {
			m.slots[i] = objectSlot{
				used: 1,
				info: ObjectInfo{ID: id, Offset: start, Size: size},
			}
			m.allocatedSize += size

			return start, true
		}
	}

	return 0, false
}

// Dealloc removes the object with the given id from the index.
func (m *ObjectIndex) Dealloc(id uint64) {
	for i := range m.slots {
		if m.slots[i].used != 0 && m.slots[i].info.ID == id {
			m.allocatedSize -= m.slots[i].info.Size
			m.slots[i] = objectSlot{}
		}
	}
}

// Objects returns the infos of all allocated objects in slot order.
func (m *ObjectIndex) Objects() []ObjectInfo {
	out := make([]ObjectInfo, 0)
	for i := range m.slots {
		if m.slots[i].used != 0 {
			out = append(out, m.slots[i].info)
		}
	}

	return out
}

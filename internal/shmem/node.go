package shmem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Node is one shared memory region, backed by a file mapped by every
// participating process. The control block occupies the first StateSize
// bytes; the object area follows.
//
// Processes and VMs on the same host share the region through the file
// mapping; all participants must open the same backing path with the same
// size.
type Node struct {
	// ID is the node's position in the deployment's ordered node list.
	ID int

	data []byte
}

// FromFile maps the backing file at path into a Node of the given size.
// The file must already exist and be at least size bytes long.
func FromFile(id int, path string, size int) (*Node, error) {
	if size <= StateSize {
		return nil, fmt.Errorf("node size %d must exceed control block size %d", size, StateSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open backing file %q: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat backing file %q: %w", path, err)
	}
	if fi.Size() < int64(size) {
		return nil, fmt.Errorf("backing file %q is %d bytes, need %d", path, fi.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %q: %w", path, err)
	}

	return &Node{ID: id, data: data}, nil
}

// Size returns the total mapped size, control block included.
func (m *Node) Size() int {
	return len(m.data)
}

// ObjectAreaSize returns the number of bytes available for object storage.
func (m *Node) ObjectAreaSize() int {
	return len(m.data) - StateSize
}

// AddrAt returns the address of the given offset within the object area.
func (m *Node) AddrAt(offset uint64) unsafe.Pointer {
	if offset >= uint64(m.ObjectAreaSize()) {
		panic(fmt.Sprintf("object offset %d out of bounds (area size %d)", offset, m.ObjectAreaSize()))
	}

	return unsafe.Pointer(&m.data[StateSize+int(offset)])
}

// State returns a live pointer to the control block of this node.
func (m *Node) State() *SharedState {
	return (*SharedState)(unsafe.Pointer(&m.data[0]))
}

// ReadState returns a copy of the control block.
func (m *Node) ReadState() SharedState {
	return *m.State()
}

// WriteState overwrites the control block.
func (m *Node) WriteState(state SharedState) {
	*m.State() = state
}

// Close unmaps the region.
func (m *Node) Close() error {
	if m.data == nil {
		return nil
	}

	data := m.data
	m.data = nil

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("failed to munmap node %d: %w", m.ID, err)
	}

	return nil
}

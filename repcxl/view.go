package repcxl

import (
	"github.com/swystems/repcxl/internal/shmem"
)

// GroupView is the current membership of the group: the cooperating
// processes and the memory nodes present in the system.
type GroupView struct {
	// SelfID is the process ID of this instance.
	SelfID int
	// Processes are the known process IDs, self included.
	Processes []int
	// Nodes are the mapped memory nodes in deployment order.
	Nodes []*shmem.Node
}

func newGroupView(selfID int) GroupView {
	return GroupView{
		SelfID:    selfID,
		Processes: []int{selfID},
	}
}

// AddProcess registers a process in the view. Adding a known pid is a no-op.
func (m *GroupView) AddProcess(pid int) {
	for _, known := range m.Processes {
		if known == pid {
			return
		}
	}

	m.Processes = append(m.Processes, pid)
}

// Coordinator returns the process with the lowest ID.
func (m *GroupView) Coordinator() (int, bool) {
	if len(m.Processes) == 0 {
		return 0, false
	}

	min := m.Processes[0]
	for _, pid := range m.Processes[1:] {
		if pid < min {
			min = pid
		}
	}

	return min, true
}

// MasterNode returns the memory node with the lowest ID. The master node is
// the authoritative holder of the shared control structures.
func (m *GroupView) MasterNode() *shmem.Node {
	if len(m.Nodes) == 0 {
		return nil
	}

	master := m.Nodes[0]
	for _, node := range m.Nodes[1:] {
		if node.ID < master.ID {
			master = node
		}
	}

	return master
}

// Package repcxl implements a round-synchronous, in-memory object
// replication engine for shared disaggregated memory. A group of cooperating
// processes export typed objects backed by one or more mapped memory
// regions; writes propagate to every region and reads report whether the
// value was consistent across all replicas.
//
// Replication is driven by the MONSTER protocol: a round-driven writer state
// machine that combines a shared last-writer register with a post-conflict
// reconciliation read, arbitrating concurrent writers without quorum voting.
package repcxl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swystems/repcxl/internal/memio"
	"github.com/swystems/repcxl/internal/shmem"
)

const (
	// requestQueueDepth bounds the per-process request queues feeding the
	// replication workers.
	requestQueueDepth = 128

	// rendezvousPoll is the coarse interval at which processes poll the
	// starting block while waiting for the group.
	rendezvousPoll = 100 * time.Millisecond

	// attachTimeout bounds the retry window while waiting for a backing
	// file another host may still be creating.
	attachTimeout = 5 * time.Second
)

type stopSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newStopSignal() *stopSignal {
	return &stopSignal{ch: make(chan struct{})}
}

func (m *stopSignal) Set() {
	m.once.Do(func() { close(m.ch) })
}

func (m *stopSignal) Stopped() bool {
	select {
	case <-m.ch:
		return true
	default:
		return false
	}
}

func (m *stopSignal) Done() <-chan struct{} {
	return m.ch
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Option configures a RepCXL instance.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// RepCXL is one process's view of the replicated object store.
//
// T is the object value type and must have a fixed layout identical across
// all participating processes.
type RepCXL[T any] struct {
	cfg  *Config
	log  *zap.SugaredLogger
	view GroupView

	numObjects int

	writes chan writeRequest[T]
	reads  chan readRequest[T]
	stop   *stopSignal

	workers   *errgroup.Group
	started   bool
	conflicts atomic.Uint64
}

// New opens and maps all configured memory nodes, registers the configured
// process IDs in the group view and creates the request queues. The shared
// state is not touched: the coordinator calls InitState once per deployment.
func New[T any](cfg *Config, opts ...Option) (*RepCXL[T], error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	log := o.Log

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	paths, err := cfg.NodePaths()
	if err != nil {
		return nil, err
	}

	m := &RepCXL[T]{
		cfg:    cfg,
		log:    log,
		view:   newGroupView(cfg.ID),
		writes: make(chan writeRequest[T], requestQueueDepth),
		reads:  make(chan readRequest[T], requestQueueDepth),
		stop:   newStopSignal(),
	}

	for _, pid := range cfg.Processes {
		m.view.AddProcess(pid)
	}

	for id, path := range paths {
		node, err := attachNode(id, path, int(cfg.MemSize.Bytes()))
		if err != nil {
			m.closeNodes()
			return nil, err
		}
		log.Debugw("mapped memory node", zap.Int("node", id), zap.String("path", path))
		m.view.Nodes = append(m.view.Nodes, node)
	}

	return m, nil
}

// attachNode maps the backing file at path, retrying with backoff while the
// file is still being created by another participant.
func attachNode(id int, path string, size int) (*shmem.Node, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond

	node, err := backoff.Retry(context.Background(), func() (*shmem.Node, error) {
		return shmem.FromFile(id, path, size)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(attachTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to attach memory node %d: %w", id, err)
	}

	return node, nil
}

// RegisterProcess adds a process to the group view. All processes must call
// SyncStart with the same resulting view.
func (m *RepCXL[T]) RegisterProcess(pid int) {
	m.view.AddProcess(pid)
}

// IsCoordinator reports whether this process is the group coordinator.
func (m *RepCXL[T]) IsCoordinator() bool {
	coord, ok := m.view.Coordinator()
	return ok && coord == m.cfg.ID
}

// objectAreaSize returns the per-node bytes available to the allocator.
func (m *RepCXL[T]) objectAreaSize() uint64 {
	return m.cfg.MemSize.Bytes() - uint64(shmem.StateSize)
}

// InitState writes a freshly initialized control block to every memory node.
// Coordinator-only; run exactly once per deployment before objects are
// created.
func (m *RepCXL[T]) InitState() {
	state := shmem.NewSharedState(m.objectAreaSize(), m.cfg.ChunkSize.Bytes())

	for _, node := range m.view.Nodes {
		node.WriteState(state)
	}
}

// readState reads the control block from the master node, the authoritative
// holder of the shared control structures.
func (m *RepCXL[T]) readState() (shmem.SharedState, error) {
	master := m.view.MasterNode()
	if master == nil {
		return shmem.SharedState{}, fmt.Errorf("no memory nodes in group view")
	}

	return master.ReadState(), nil
}

// NewObject allocates a replicated object with the given id across all
// memory nodes and returns its handle. Coordinator-only; fails on duplicate
// ids and when no space is left.
func (m *RepCXL[T]) NewObject(id uint64) (*Handle[T], error) {
	if !m.IsCoordinator() {
		return nil, ErrNotCoordinator
	}

	if m.numObjects >= shmem.MaxObjects {
		m.log.Warnf("maximum number of objects reached")
		return nil, ErrAllocationFailed
	}

	size := uint64(unsafe.Sizeof(memio.Entry[T]{}))

	state, err := m.readState()
	if err != nil {
		return nil, err
	}

	offset, ok := state.Index.Alloc(id, size)
	if !ok {
		m.log.Infof("failed to allocate object %d of size %d", id, size)
		return nil, ErrAllocationFailed
	}

	for _, node := range m.view.Nodes {
		node.WriteState(state)
	}

	m.numObjects++

	info, _ := state.Index.Lookup(id)
	return m.newHandle(info), nil
}

// GetObject looks an object up in the shared state and returns a handle to
// it. Any process may call it.
func (m *RepCXL[T]) GetObject(id uint64) (*Handle[T], error) {
	state, err := m.readState()
	if err != nil {
		return nil, err
	}

	info, ok := state.Index.Lookup(id)
	if !ok {
		return nil, ErrObjectNotFound
	}

	return m.newHandle(info), nil
}

// RemoveObject deallocates the object with the given id on every node.
// Coordinator-only. Handles to the object become stale.
func (m *RepCXL[T]) RemoveObject(id uint64) error {
	if !m.IsCoordinator() {
		return ErrNotCoordinator
	}

	state, err := m.readState()
	if err != nil {
		return err
	}

	state.Index.Dealloc(id)
	for _, node := range m.view.Nodes {
		node.WriteState(state)
	}
	if m.numObjects > 0 {
		m.numObjects--
	}

	return nil
}

func (m *RepCXL[T]) newHandle(info shmem.ObjectInfo) *Handle[T] {
	return &Handle[T]{
		info:   info,
		writes: m.writes,
		reads:  m.reads,
		stop:   m.stop,
	}
}

// SyncStart rendezvouses with the rest of the group on the starting block
// and launches the write and read workers once a common start time is
// agreed. All processes must call it with the same group view; synchronized
// clocks are assumed.
func (m *RepCXL[T]) SyncStart(ctx context.Context) error {
	coord, ok := m.view.Coordinator()
	if !ok {
		return fmt.Errorf("no coordinator found in group")
	}

	master := m.view.MasterNode()
	if master == nil {
		return fmt.Errorf("no memory nodes in group view")
	}
	sblock := &master.State().Start

	sblock.MarkReady(m.cfg.ID)
	m.log.Infof("process %d marked as ready", m.cfg.ID)

	var startTime time.Time
	for {
		if coord == m.cfg.ID {
			// The start time is written once, never again; adopt a schedule
			// that is already pending.
			if sblock.StartIsScheduled() {
				startTime, _ = sblock.StartTime()
				break
			}
			if sblock.AllReady(m.view.Processes) {
				startTime = time.Now().Add(m.cfg.StartupDelay)
				sblock.StartAt(startTime)
				m.log.Infof("rounds starting at %v", startTime)
				break
			}
		} else if sblock.StartIsScheduled() {
			startTime, _ = sblock.StartTime()
			m.log.Infof("process %d sees round start time %v", m.cfg.ID, startTime)
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop.Done():
			return ErrStopped
		case <-time.After(rendezvousPoll):
		}
		m.log.Debugf("process %d waiting for start", m.cfg.ID)
	}

	writeFn, err := writeWorker[T](m.cfg.Algorithm)
	if err != nil {
		return err
	}

	w := &worker[T]{
		view:      &m.view,
		startTime: startTime,
		roundTime: m.cfg.RoundTime,
		stop:      m.stop,
		conflicts: &m.conflicts,
		log:       m.log,
	}

	m.workers, _ = errgroup.WithContext(ctx)
	m.workers.Go(func() error {
		return writeFn(w, m.writes)
	})
	m.workers.Go(func() error {
		return monsterRead(w, m.reads)
	})
	m.started = true

	return nil
}

// Stop asks the workers to exit at their next iteration. In-flight replicate
// fan-outs are not preempted.
func (m *RepCXL[T]) Stop() {
	m.stop.Set()
}

// Wait blocks until both workers exit and returns the first fatal worker
// error, if any.
func (m *RepCXL[T]) Wait() error {
	if !m.started {
		return nil
	}

	return m.workers.Wait()
}

// Conflicts returns the number of write conflicts this process has entered
// the Wait state for.
func (m *RepCXL[T]) Conflicts() uint64 {
	return m.conflicts.Load()
}

// DumpStates logs a summary of every node's control block.
func (m *RepCXL[T]) DumpStates() {
	for _, node := range m.view.Nodes {
		state := node.ReadState()
		objs := state.Index.Objects()
		m.log.Infow("memory node state",
			zap.Int("node", node.ID),
			zap.Uint64("allocated", state.Index.AllocatedSize()),
			zap.Uint64("total", state.Index.TotalSize()),
			zap.Uint64("chunk", state.Index.ChunkSize()),
			zap.Int("objects", len(objs)),
		)
	}
}

// Close stops the workers, waits for them and unmaps every memory node.
func (m *RepCXL[T]) Close() error {
	m.Stop()
	err := m.Wait()
	m.closeNodes()

	return err
}

func (m *RepCXL[T]) closeNodes() {
	for _, node := range m.view.Nodes {
		if cerr := node.Close(); cerr != nil {
			m.log.Warnw("failed to unmap node", zap.Int("node", node.ID), zap.Error(cerr))
		}
	}
	m.view.Nodes = nil
}

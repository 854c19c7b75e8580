package repcxl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swystems/repcxl/internal/shmem"
)

const (
	testMemSize   = 32 * datasize.KB
	testRoundTime = 5 * time.Millisecond
)

// createNodeFiles creates backing files of testMemSize bytes and returns
// their paths.
func createNodeFiles(t *testing.T, n int) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, 0, n)
	for i := range n {
		path := filepath.Join(dir, "node"+string(rune('0'+i)))
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		require.NoError(t, err)
		require.NoError(t, f.Truncate(int64(testMemSize.Bytes())))
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}

	return paths
}

func testConfig(id int, processes ProcessSet, nodes []string) *Config {
	cfg := DefaultConfig()
	cfg.ID = id
	cfg.Processes = processes
	cfg.MemNodes = nodes
	cfg.MemSize = testMemSize
	cfg.RoundTime = testRoundTime
	// Long enough that every replica's poll observes the schedule while it
	// is still in the future.
	cfg.StartupDelay = 500 * time.Millisecond

	return cfg
}

func newTestInstance(t *testing.T, cfg *Config) *RepCXL[uint64] {
	t.Helper()

	r, err := New[uint64](cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return r
}

func Test_NewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()

	_, err := New[uint64](cfg)
	assert.Error(t, err)
}

func Test_NewMissingBackingFile(t *testing.T) {
	cfg := testConfig(0, ProcessSet{0}, []string{filepath.Join(t.TempDir(), "absent")})

	_, err := New[uint64](cfg)
	assert.Error(t, err)
}

func Test_Coordinator(t *testing.T) {
	paths := createNodeFiles(t, 1)

	r0 := newTestInstance(t, testConfig(0, ProcessSet{0, 1}, paths))
	r1 := newTestInstance(t, testConfig(1, ProcessSet{0, 1}, paths))

	assert.True(t, r0.IsCoordinator())
	assert.False(t, r1.IsCoordinator())
}

func Test_RegisterProcess(t *testing.T) {
	paths := createNodeFiles(t, 1)

	r := newTestInstance(t, testConfig(1, ProcessSet{1}, paths))
	assert.True(t, r.IsCoordinator())

	// A lower pid joining the view takes the coordinator role over.
	r.RegisterProcess(0)
	assert.False(t, r.IsCoordinator())

	// Registering a known pid is a no-op.
	r.RegisterProcess(0)
	assert.Equal(t, []int{1, 0}, r.view.Processes)
}

func Test_ObjectLifecycle(t *testing.T) {
	paths := createNodeFiles(t, 2)

	r := newTestInstance(t, testConfig(0, ProcessSet{0}, paths))
	r.InitState()

	obj, err := r.NewObject(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), obj.ID())

	// Duplicate ids are rejected.
	_, err = r.NewObject(5)
	assert.ErrorIs(t, err, ErrAllocationFailed)

	// Lookup sees the allocation.
	got, err := r.GetObject(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.ID())

	_, err = r.GetObject(99)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Removal frees the id for reuse.
	require.NoError(t, r.RemoveObject(5))
	_, err = r.GetObject(5)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = r.NewObject(5)
	assert.NoError(t, err)
}

func Test_ObjectOpsCoordinatorOnly(t *testing.T) {
	paths := createNodeFiles(t, 1)

	r0 := newTestInstance(t, testConfig(0, ProcessSet{0, 1}, paths))
	r1 := newTestInstance(t, testConfig(1, ProcessSet{0, 1}, paths))
	r0.InitState()

	_, err := r1.NewObject(1)
	assert.ErrorIs(t, err, ErrNotCoordinator)
	assert.ErrorIs(t, r1.RemoveObject(1), ErrNotCoordinator)

	// The replica still sees objects created by the coordinator.
	_, err = r0.NewObject(1)
	require.NoError(t, err)
	_, err = r1.GetObject(1)
	assert.NoError(t, err)
}

func Test_StatePropagatedToAllNodes(t *testing.T) {
	paths := createNodeFiles(t, 3)

	r := newTestInstance(t, testConfig(0, ProcessSet{0}, paths))
	r.InitState()

	_, err := r.NewObject(7)
	require.NoError(t, err)

	for _, path := range paths {
		node, err := shmem.FromFile(0, path, int(testMemSize.Bytes()))
		require.NoError(t, err)
		state := node.ReadState()
		_, ok := state.Index.Lookup(7)
		assert.True(t, ok, "object missing on node backed by %s", path)
		require.NoError(t, node.Close())
	}
}

func Test_SyncStartStopped(t *testing.T) {
	paths := createNodeFiles(t, 1)

	r := newTestInstance(t, testConfig(1, ProcessSet{0, 1}, paths))
	r.InitState()

	// A lone replica never sees a schedule; stopping must unblock it.
	done := make(chan error, 1)
	go func() { done <- r.SyncStart(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("SyncStart did not return after Stop")
	}
}

func Test_SyncStartContextCanceled(t *testing.T) {
	paths := createNodeFiles(t, 1)

	r := newTestInstance(t, testConfig(1, ProcessSet{0, 1}, paths))
	r.InitState()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.SyncStart(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("SyncStart did not return after cancel")
	}
}

package repcxl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func Test_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, -1, cfg.ID)
	assert.Equal(t, ProcessSet{0}, cfg.Processes)
	assert.Equal(t, datasize.MB, cfg.MemSize)
	assert.Equal(t, 64*datasize.B, cfg.ChunkSize)
	assert.Equal(t, 100*time.Microsecond, cfg.RoundTime)
	assert.Equal(t, time.Second, cfg.StartupDelay)
	assert.Equal(t, AlgorithmMonster, cfg.Algorithm)
}

func Test_LoadConfigYAML(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
id: 1
processes: [0, 1]
mem_nodes: ["/dev/shm/repcxl-0"]
round_time: 200us
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.ID)
	assert.Equal(t, ProcessSet{0, 1}, cfg.Processes)
	assert.Equal(t, []string{"/dev/shm/repcxl-0"}, cfg.MemNodes)
	assert.Equal(t, 200*time.Microsecond, cfg.RoundTime)
	// Unset keys keep their defaults.
	assert.Equal(t, AlgorithmMonster, cfg.Algorithm)
	assert.Equal(t, datasize.MB, cfg.MemSize)
}

func Test_LoadConfigTOML(t *testing.T) {
	path := writeFile(t, "cfg.toml", `
id = 0
processes = [0, 1, 2]
mem_nodes = ["/dev/shm/a", "/dev/shm/b"]
algorithm = "sync_best_effort"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.ID)
	assert.Equal(t, ProcessSet{0, 1, 2}, cfg.Processes)
	assert.Equal(t, AlgorithmSyncBestEffort, cfg.Algorithm)
}

func Test_LoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func Test_ProcessSetForms(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want ProcessSet
	}{
		{"list", "processes: [0, 2, 4]", ProcessSet{0, 2, 4}},
		{"count", "processes: 4", ProcessSet{0, 1, 2, 3}},
		{"dash range", `processes: "1-3"`, ProcessSet{1, 2, 3}},
		{"dot range", `processes: "0..2"`, ProcessSet{0, 1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "cfg.yaml", tc.yaml)
			cfg, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Processes)
		})
	}
}

func Test_ProcessSetInvalid(t *testing.T) {
	for _, bad := range []string{`processes: "x"`, `processes: "3-1"`, `processes: 0`} {
		path := writeFile(t, "cfg.yaml", bad)
		_, err := LoadConfig(path)
		assert.Error(t, err, "input %q", bad)
	}
}

func validTestConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.ID = 0
	cfg.MemNodes = []string{filepath.Join(t.TempDir(), "node")}

	return cfg
}

func Test_ValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing id", func(c *Config) { c.ID = -1 }},
		{"id not in processes", func(c *Config) { c.ID = 7 }},
		{"no nodes", func(c *Config) { c.MemNodes = nil }},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }},
		{"tiny region", func(c *Config) { c.MemSize = datasize.KB }},
		{"zero round", func(c *Config) { c.RoundTime = 0 }},
		{"bad algorithm", func(c *Config) { c.Algorithm = "quorum" }},
		{"pid out of range", func(c *Config) { c.Processes = ProcessSet{0, 200} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func Test_ValidateAccepts(t *testing.T) {
	assert.NoError(t, validTestConfig(t).Validate())
}

func Test_NodePathsLiteral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemNodes = []string{"/dev/shm/a", "/dev/shm/b"}

	paths, err := cfg.NodePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/shm/a", "/dev/shm/b"}, paths)
}

func Test_NodePathsGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"repcxl-1", "repcxl-0", "other"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	cfg := DefaultConfig()
	cfg.MemNodes = []string{filepath.Join(dir, "repcxl-*")}

	paths, err := cfg.NodePaths()
	require.NoError(t, err)
	// Matches are sorted so every process derives the same node order.
	assert.Equal(t, []string{
		filepath.Join(dir, "repcxl-0"),
		filepath.Join(dir, "repcxl-1"),
	}, paths)
}

func Test_NodePathsGlobNoMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemNodes = []string{filepath.Join(t.TempDir(), "missing-*")}

	_, err := cfg.NodePaths()
	assert.Error(t, err)
}

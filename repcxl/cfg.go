package repcxl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gobwas/glob"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/swystems/repcxl/internal/logging"
	"github.com/swystems/repcxl/internal/shmem"
)

// Algorithm names accepted by the "algorithm" configuration key.
const (
	AlgorithmMonster         = "monster"
	AlgorithmAsyncBestEffort = "async_best_effort"
	AlgorithmSyncBestEffort  = "sync_best_effort"
)

// Config carries the deployment parameters of one process.
//
// All participating processes must agree on mem_size, chunk_size and the
// struct layout of the shared control block; this is a compatibility
// precondition.
type Config struct {
	// ID is this process's identifier. Required, >= 0.
	ID int `yaml:"id" toml:"id"`
	// Processes is the set of process IDs in the group.
	Processes ProcessSet `yaml:"processes" toml:"processes"`
	// MemNodes is the ordered list of backing-file paths, one per memory
	// node. Entries may be glob patterns, expanded and sorted at load time.
	MemNodes []string `yaml:"mem_nodes" toml:"mem_nodes"`
	// MemSize is the size of each memory node in bytes.
	MemSize datasize.ByteSize `yaml:"mem_size" toml:"mem_size"`
	// ChunkSize is the allocator granularity in bytes.
	ChunkSize datasize.ByteSize `yaml:"chunk_size" toml:"chunk_size"`
	// RoundTime is the round duration: a duration string ("100us") in YAML
	// files, an integer number of nanoseconds in TOML files.
	RoundTime time.Duration `yaml:"round_time" toml:"round_time"`
	// StartupDelay is the time from rendezvous to the first round, written
	// like RoundTime.
	StartupDelay time.Duration `yaml:"startup_delay" toml:"startup_delay"`
	// Algorithm selects the replication algorithm.
	Algorithm string `yaml:"algorithm" toml:"algorithm"`
	// Logging configuration.
	Logging logging.Config `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns the configuration defaults. The process ID has no
// default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		ID:           -1,
		Processes:    ProcessSet{0},
		MemNodes:     nil,
		MemSize:      datasize.MB,
		ChunkSize:    64 * datasize.B,
		RoundTime:    100 * time.Microsecond,
		StartupDelay: time.Second,
		Algorithm:    AlgorithmMonster,
		Logging:      logging.Config{Level: zapcore.InfoLevel},
	}
}

// LoadConfig loads the configuration from the given path. TOML is selected
// by the ".toml" extension; anything else is parsed as YAML. Keys missing
// from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to deserialize config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to deserialize config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (m *Config) Validate() error {
	if m.ID < 0 {
		return fmt.Errorf("invalid config: id must be provided")
	}

	found := false
	for _, pid := range m.Processes {
		if pid == m.ID {
			found = true
		}
		if pid < 0 || pid >= shmem.MaxProcesses {
			return fmt.Errorf("invalid config: process ID %d out of range [0, %d)", pid, shmem.MaxProcesses)
		}
	}
	if !found {
		return fmt.Errorf("invalid config: id %d must be in the processes list %v", m.ID, m.Processes)
	}

	if len(m.Processes) > shmem.MaxProcesses {
		return fmt.Errorf("invalid config: maximum number of processes is %d", shmem.MaxProcesses)
	}

	if len(m.MemNodes) == 0 {
		return fmt.Errorf("invalid config: at least one memory node must be specified")
	}

	if m.ChunkSize == 0 {
		return fmt.Errorf("invalid config: chunk_size must be positive")
	}

	if int(m.MemSize.Bytes()) <= shmem.StateSize {
		return fmt.Errorf("invalid config: mem_size %d must exceed the control block size %d",
			m.MemSize.Bytes(), shmem.StateSize)
	}

	if m.RoundTime <= 0 {
		return fmt.Errorf("invalid config: round_time must be positive")
	}

	switch m.Algorithm {
	case AlgorithmMonster, AlgorithmAsyncBestEffort, AlgorithmSyncBestEffort:
	default:
		return fmt.Errorf("invalid config: unknown algorithm %q", m.Algorithm)
	}

	return nil
}

// NodePaths expands the mem_nodes entries into the ordered list of backing
// files. Glob patterns match against the entries of the pattern's directory;
// matches are sorted so that every process derives the same node order.
func (m *Config) NodePaths() ([]string, error) {
	out := make([]string, 0, len(m.MemNodes))
	for _, pattern := range m.MemNodes {
		if !strings.ContainsAny(pattern, "*?[{") {
			out = append(out, pattern)
			continue
		}

		g, err := glob.Compile(filepath.Base(pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to compile node pattern %q: %w", pattern, err)
		}

		dir := filepath.Dir(pattern)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q for node pattern %q: %w", dir, pattern, err)
		}

		matched := make([]string, 0)
		for _, entry := range entries {
			if !entry.IsDir() && g.Match(entry.Name()) {
				matched = append(matched, filepath.Join(dir, entry.Name()))
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("node pattern %q matched no backing files", pattern)
		}

		sort.Strings(matched)
		out = append(out, matched...)
	}

	return out, nil
}

// ProcessSet is the set of process IDs in the group. In configuration files
// it accepts a list ([0, 1, 2]), a count (4, meaning 0..3) or a range string
// ("0-3" or "0..3").
type ProcessSet []int

// UnmarshalYAML accepts the list, count and range forms.
func (m *ProcessSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var pids []int
		if err := value.Decode(&pids); err != nil {
			return err
		}
		*m = pids
		return nil
	case yaml.ScalarNode:
		return m.UnmarshalText([]byte(value.Value))
	default:
		return fmt.Errorf("processes must be a list, a count or a range string")
	}
}

// UnmarshalText parses the count and range forms. TOML string values are
// routed here; TOML arrays decode directly into the underlying slice.
func (m *ProcessSet) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))

	var startStr, endStr string
	switch {
	case strings.Contains(s, ".."):
		parts := strings.SplitN(s, "..", 2)
		startStr, endStr = parts[0], parts[1]
	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		startStr, endStr = parts[0], parts[1]
	default:
		// A plain count: n means processes 0..n-1.
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid process count %q", s)
		}
		*m = spanProcesses(0, n-1)
		return nil
	}

	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return fmt.Errorf("invalid range start in %q", s)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return fmt.Errorf("invalid range end in %q", s)
	}
	if start < 0 || end < start {
		return fmt.Errorf("invalid process range %q", s)
	}

	*m = spanProcesses(start, end)
	return nil
}

func spanProcesses(start, end int) []int {
	out := make([]int, 0, end-start+1)
	for pid := start; pid <= end; pid++ {
		out = append(out, pid)
	}
	return out
}

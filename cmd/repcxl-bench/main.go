// Command repcxl-bench joins a replication group, performs a timed sequence
// of writes and reads against one object and prints the latency profile.
// Every process of the group runs the same binary with its own config.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swystems/repcxl/internal/logging"
	"github.com/swystems/repcxl/internal/stats"
	"github.com/swystems/repcxl/repcxl"
)

var cmd Cmd

// Cmd is the command line arguments. A config file, when given, overrides
// the flag values.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// ObjectID is the benchmarked object's identifier.
	ObjectID uint64
	// Ops is the number of writes (and reads) to time.
	Ops int
	// ID is the process ID, used when no config file is given.
	ID int
	// MemNodes are the backing files, used when no config file is given.
	MemNodes []string
	// Peers are additional group members, used when no config file is given.
	Peers []int
}

var rootCmd = &cobra.Command{
	Use:   "repcxl-bench",
	Short: "RepCXL replication latency benchmark",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().Uint64Var(&cmd.ObjectID, "object-id", 1, "Object ID to benchmark")
	rootCmd.Flags().IntVarP(&cmd.Ops, "ops", "n", 1000, "Number of operations to time")
	rootCmd.Flags().IntVar(&cmd.ID, "id", -1, "Process ID (overridden by the config file)")
	rootCmd.Flags().StringSliceVar(&cmd.MemNodes, "mem-node", nil, "Backing file path (repeatable; overridden by the config file)")
	rootCmd.Flags().IntSliceVar(&cmd.Peers, "peer", nil, "Peer process ID (repeatable; overridden by the config file)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd Cmd) (*repcxl.Config, error) {
	if cmd.ConfigPath != "" {
		return repcxl.LoadConfig(cmd.ConfigPath)
	}

	cfg := repcxl.DefaultConfig()
	cfg.ID = cmd.ID
	cfg.Processes = repcxl.ProcessSet{cmd.ID}
	cfg.MemNodes = cmd.MemNodes

	return cfg, nil
}

func run(cmd Cmd) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	engine, err := repcxl.New[uint64](cfg, repcxl.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	// Flag-supplied peers extend the group view the same way the config
	// file's processes list does.
	if cmd.ConfigPath == "" {
		for _, pid := range cmd.Peers {
			engine.RegisterProcess(pid)
		}
	}

	var obj *repcxl.Handle[uint64]
	if engine.IsCoordinator() {
		engine.InitState()
		if obj, err = engine.NewObject(cmd.ObjectID); err != nil {
			return fmt.Errorf("failed to create object %d: %w", cmd.ObjectID, err)
		}
	} else {
		// The coordinator may still be allocating; poll until the object
		// shows up in the shared index.
		for {
			if obj, err = engine.GetObject(cmd.ObjectID); err == nil {
				break
			}
			if !errors.Is(err, repcxl.ErrObjectNotFound) {
				return fmt.Errorf("failed to get object %d: %w", cmd.ObjectID, err)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		// Unblock the signal waiter once the benchmark is done.
		defer cancel()
		defer engine.Stop()
		if err := engine.SyncStart(ctx); err != nil {
			return fmt.Errorf("failed to start rounds: %w", err)
		}
		return bench(engine, obj, cmd.Ops, log)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	err = wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func bench(engine *repcxl.RepCXL[uint64], obj *repcxl.Handle[uint64], ops int, log *zap.SugaredLogger) error {
	writeLat := make([]time.Duration, 0, ops)
	for i := range ops {
		start := time.Now()
		if err := obj.Write(uint64(i)); err != nil {
			return fmt.Errorf("write %d failed: %w", i, err)
		}
		writeLat = append(writeLat, time.Since(start))
	}

	readLat := make([]time.Duration, 0, ops)
	dirty := 0
	for i := range ops {
		start := time.Now()
		res, err := obj.Read()
		if err != nil {
			return fmt.Errorf("read %d failed: %w", i, err)
		}
		readLat = append(readLat, time.Since(start))
		if !res.Safe {
			dirty++
		}
	}

	log.Infof("write conflicts: %d, dirty reads: %d/%d", engine.Conflicts(), dirty, ops)

	fmt.Printf("write latency (%d ops):\n%s\n", ops, stats.Compute(writeLat))
	fmt.Printf("read latency (%d ops):\n%s\n", ops, stats.Compute(readLat))

	return nil
}

// Interrupted reports the signal that stopped the run.
type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received
// or the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}

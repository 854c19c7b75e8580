// Command repcxl-memctl creates the backing files of a deployment's memory
// nodes. Every participating process must map files of the same size, so the
// files are created up front, either from a config file or from explicit
// paths.
package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/swystems/repcxl/repcxl"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Size is the size of each backing file.
	Size string
}

var rootCmd = &cobra.Command{
	Use:   "repcxl-memctl [paths...]",
	Short: "Create backing files for RepCXL memory nodes",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd, args); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	rootCmd.Flags().StringVarP(&cmd.Size, "size", "s", "", "Size of each backing file (e.g. 1MB); defaults to the config mem_size")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd, paths []string) error {
	size := repcxl.DefaultConfig().MemSize

	if cmd.ConfigPath != "" {
		cfg, err := repcxl.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		size = cfg.MemSize
		if len(paths) == 0 {
			paths = cfg.MemNodes
		}
	}

	if cmd.Size != "" {
		var parsed datasize.ByteSize
		if err := parsed.UnmarshalText([]byte(cmd.Size)); err != nil {
			return fmt.Errorf("failed to parse size %q: %w", cmd.Size, err)
		}
		size = parsed
	}

	if len(paths) == 0 {
		return fmt.Errorf("no backing files to create: pass paths or a config with mem_nodes")
	}

	for _, path := range paths {
		if err := createBackingFile(path, int64(size.Bytes())); err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", path, size.HR())
	}

	return nil
}

func createBackingFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create backing file %q: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("failed to size backing file %q: %w", path, err)
	}

	return nil
}

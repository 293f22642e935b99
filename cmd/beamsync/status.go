package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsync/internal/config"
	"github.com/bamsammich/beamsync/internal/manifest"
)

var statusCmd = &cobra.Command{
	Use:           "status <folder>",
	Short:         "Show the node serving a folder, if any",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	metaDir := filepath.Join(args[0], manifest.MetaDir)
	info, err := config.ReadRuntimeInfo(metaDir)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cmd.OutOrStdout(), "no beamsync node is serving %s\n", args[0])
		return &exitError{code: 1}
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", config.RuntimePath(metaDir), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "node:        %s\n", info.NodeID)
	fmt.Fprintf(out, "listen:      %s\n", info.Listen)
	fmt.Fprintf(out, "fingerprint: %s\n", info.Fingerprint)
	fmt.Fprintf(out, "pid:         %d\n", info.PID)
	return nil
}

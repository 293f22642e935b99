package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsync/internal/manifest"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Reconcile a folder and print its manifest",
	Long: `Scan the folder, bump the version of every file whose content changed
since the last scan, persist the manifest and print it.

The folder must not be in use by a running beamsync node.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

func init() {
	scanCmd.Flags().String("store", manifest.BackendJSON, "manifest backend (json or sqlite)")
	scanCmd.Flags().Bool("json", false, "print the manifest as JSON")
}

type scanEntry struct {
	Path    string `json:"path"`
	Digest  string `json:"digest"`
	Version uint64 `json:"version"`
	Changed bool   `json:"changed,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	backend, _ := cmd.Flags().GetString("store") //nolint:errcheck // flag name is hardcoded
	asJSON, _ := cmd.Flags().GetBool("json")     //nolint:errcheck // flag name is hardcoded

	store, err := manifest.Open(args[0], manifest.Options{Backend: backend})
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Reconcile(cmd.Context())
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	changed := make(map[string]bool, len(res.Changed))
	for _, p := range res.Changed {
		changed[p] = true
	}

	m := store.Snapshot()
	entries := make([]scanEntry, 0, len(m))
	for _, p := range m.Paths() {
		rec := m[p]
		entries = append(entries, scanEntry{Path: p, Digest: rec.Digest, Version: rec.Version, Changed: changed[p]})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tDIGEST\tPATH")
	for _, e := range entries {
		mark := ""
		if e.Changed {
			mark = " *"
		}
		fmt.Fprintf(tw, "%d\t%.16s\t%s%s\n", e.Version, e.Digest, e.Path, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d files on disk, %d tracked, %d changed (%s)\n",
		res.Files, len(m), len(res.Changed), store.BackendPath())
	return nil
}

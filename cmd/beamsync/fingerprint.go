package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/beamsync/internal/proto"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print this node's TLS certificate fingerprint",
	Long: `Print the fingerprint of this node's TLS certificate, generating the
certificate on first use. Give it to peers so they can pin this node with
"beamsync fingerprint pin".`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runFingerprint,
}

var pinCmd = &cobra.Command{
	Use:   "pin <name> <fingerprint>",
	Short: "Pin a peer's certificate fingerprint in known_peers",
	Long: `Record a peer's fingerprint so connections to and from it are trusted.
The name is the peer address as given on the command line, or its IP for
peers that only connect inbound.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPin,
}

func init() {
	fingerprintCmd.Flags().String("tls-cert", "", "TLS certificate file (default: generated in the config dir)")
	fingerprintCmd.Flags().String("tls-key", "", "TLS private key file")
	pinCmd.Flags().String("known-peers", "", "pinned peer fingerprints (default: known_peers in the config dir)")
	fingerprintCmd.AddCommand(pinCmd)
}

func runFingerprint(cmd *cobra.Command, _ []string) error {
	certFile, _ := cmd.Flags().GetString("tls-cert") //nolint:errcheck // flag name is hardcoded
	keyFile, _ := cmd.Flags().GetString("tls-key")   //nolint:errcheck // flag name is hardcoded

	_, fp, err := proto.LoadOrGenerateCert(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("TLS identity: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), fp)
	return nil
}

func runPin(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("known-peers") //nolint:errcheck // flag name is hardcoded
	name, fp := args[0], args[1]
	if !strings.HasPrefix(fp, "SHA256:") {
		return errors.New(`fingerprint must look like "SHA256:..."`)
	}

	known, err := proto.LoadKnownPeers(path)
	if err != nil {
		return fmt.Errorf("load known peers: %w", err)
	}
	trusted := known.Contains(fp)
	if err := known.Add(name, fp); err != nil {
		return fmt.Errorf("pin %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pinned %s %s\n", name, fp)
	if trusted {
		fmt.Fprintln(cmd.OutOrStdout(), "fingerprint was already pinned under another name")
	}
	return nil
}

// Command swap-peer runs the atomic-swap orchestration engine: the
// automation loop that advances trades (run), a one-shot dispatcher into
// the same tool executor the loop itself uses (tool), manual recovery
// actions over stuck escrows (recover), and mnemonic-based key generation
// (keygen). run, tool and recover share one config.Load()'d environment;
// keygen loads no config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "swap-peer",
		Short:         "peer-to-peer BTC-Lightning <-> USDT-Solana atomic swap engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(toolCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "swap-peer: %v\n", err)
		os.Exit(1)
	}
}

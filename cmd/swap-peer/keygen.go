package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intercomswap/swap-core/internal/identity"
)

func keygenCmd() *cobra.Command {
	var solSeeded bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a new peer identity (delegates to swapkeygen's bip39 flow)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mnemonic, err := identity.GenerateMnemonic()
			if err != nil {
				return err
			}
			id, seedHex, err := identity.FromMnemonic(mnemonic, solSeeded)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "PEER_SEED_HEX=%s\n", seedHex)
			fmt.Fprintf(out, "PEER_SOL_SEEDED=%t\n", solSeeded)
			fmt.Fprintf(out, "# peer identity (hex):    %s\n", id.PeerHex)
			if solSeeded {
				fmt.Fprintf(out, "# solana signer (base58): %s\n", id.SolPublicKey().String())
			}
			fmt.Fprintf(out, "# recovery mnemonic:      %s\n", mnemonic)
			return nil
		},
	}
	cmd.Flags().BoolVar(&solSeeded, "sol-seeded", true, "derive the Solana escrow signer from the same seed")
	return cmd
}

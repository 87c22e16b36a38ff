// Command swapkeygen generates a new peer identity: a bip39 mnemonic whose
// seed is both this peer's Ed25519 signing key (envelope signatures) and,
// when seeded mode is in effect, its Solana escrow signer. Uses
// internal/identity's mnemonic-to-key flow and prints the hex seed
// swap-peer's PEER_SEED_HEX expects.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/intercomswap/swap-core/internal/identity"
)

func main() {
	recoveryFile := flag.String("recovery-out", "", "path to write the recovery mnemonic (default: stdout only)")
	solSeeded := flag.Bool("sol-seeded", true, "derive the Solana escrow signer from the same seed")
	flag.Parse()

	mnemonic, err := identity.GenerateMnemonic()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate mnemonic: %v\n", err)
		os.Exit(1)
	}

	id, seedHex, err := identity.FromMnemonic(mnemonic, *solSeeded)
	if err != nil {
		fmt.Fprintf(os.Stderr, "derive identity: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("PEER_SEED_HEX=%s\n", seedHex)
	fmt.Printf("PEER_SOL_SEEDED=%t\n", *solSeeded)
	fmt.Printf("# peer identity (hex):    %s\n", id.PeerHex)
	if *solSeeded {
		fmt.Printf("# solana signer (base58): %s\n", id.SolSigner.PublicKey().String())
	}
	fmt.Printf("# recovery mnemonic:      %s\n", mnemonic)

	if *recoveryFile != "" {
		if err := os.WriteFile(*recoveryFile, []byte(mnemonic+"\n"), 0600); err != nil {
			fmt.Fprintf(os.Stderr, "write recovery file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("recovery phrase written to %s\n", *recoveryFile)
	}
}

// Package identity derives a peer's Ed25519 envelope-signing key and, in
// seeded mode, its Solana escrow signer from one bip39-backed 32-byte seed —
// one mnemonic-to-ed25519 derivation shared between swapkeygen and
// swap-peer's own startup.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"
)

// Identity bundles the two keys a running peer needs: Keypair signs and
// verifies envelopes (internal/envelope), SolSigner authorizes on-chain
// escrow instructions (internal/solchain).
type Identity struct {
	Keypair   ed25519.PrivateKey
	SolSigner solana.PrivateKey
	PeerHex   string // hex of Keypair's public half; this peer's wire identity
}

// GenerateMnemonic returns a fresh bip39 mnemonic with 256 bits of entropy.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// FromSeedHex derives an Identity from a hex-encoded 32-byte seed. When
// solSeeded is false, the Solana signer is left nil — the peer is
// LN-settlement-only for this trade side and must supply a SOL signer some
// other way (e.g. an externally-custodied hot wallet).
func FromSeedHex(seedHex string, solSeeded bool) (Identity, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return Identity{}, fmt.Errorf("decode peer seed hex: %w", err)
	}
	if len(seed) != 32 {
		return Identity{}, fmt.Errorf("peer seed must be 32 bytes, got %d", len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	id := Identity{
		Keypair: priv,
		PeerHex: hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
	}
	if solSeeded {
		id.SolSigner = solana.PrivateKey(priv)
	}
	return id, nil
}

// FromMnemonic is the swapkeygen path: mnemonic -> 32-byte seed -> Identity.
func FromMnemonic(mnemonic string, solSeeded bool) (Identity, string, error) {
	fullSeed := bip39.NewSeed(mnemonic, "")
	seedHex := hex.EncodeToString(fullSeed[:32])
	id, err := FromSeedHex(seedHex, solSeeded)
	return id, seedHex, err
}

// SolPublicKey returns the zero PublicKey when this identity was derived
// without a Solana signer, instead of panicking the way calling
// SolSigner.PublicKey() on a nil key would.
func (id Identity) SolPublicKey() solana.PublicKey {
	if len(id.SolSigner) == 0 {
		return solana.PublicKey{}
	}
	return id.SolSigner.PublicKey()
}

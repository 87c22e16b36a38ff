// Package util holds small validation helpers shared by the tool executor
// (C9) when checking raw tool arguments before they reach envelope builders
// or chain calls.
package util

import (
	"regexp"

	solana "github.com/gagliardetto/solana-go"
)

var base58Regex = regexp.MustCompile("^[123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz]+$")
var hexRegex = regexp.MustCompile("^[0-9a-f]+$")
var decimalStringRegex = regexp.MustCompile("^[0-9]+$")

const (
	minAddressLength = 32
	maxAddressLength = 44
)

// IsValidSolanaAddress reports whether address decodes as a base58 Solana
// public key. This accepts both on-curve addresses and PDAs.
func IsValidSolanaAddress(address string) bool {
	if len(address) < minAddressLength || len(address) > maxAddressLength {
		return false
	}
	if !base58Regex.MatchString(address) {
		return false
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// IsValidBase58 reports whether str contains only base58 alphabet characters.
func IsValidBase58(str string) bool {
	if str == "" {
		return false
	}
	return base58Regex.MatchString(str)
}

// IsHex32 reports whether s is exactly 64 lowercase hex characters (a
// sha256 digest: payment hashes, app hashes, preimages).
func IsHex32(s string) bool {
	return len(s) == 64 && hexRegex.MatchString(s)
}

// IsDecimalAmount reports whether s is a non-negative base-10 integer
// string, the wire representation for atomic USDT/lamport amounts that may
// exceed 2^53.
func IsDecimalAmount(s string) bool {
	return s != "" && decimalStringRegex.MatchString(s)
}

// Package envelope implements C1: canonical serialization, signing,
// signature verification, and hashing for swap envelopes.
package envelope

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/intercomswap/swap-core/internal/model"
)

// AppTag is the literal string hashed together with the Solana program id to
// derive app_hash. It is part of the wire contract, not a placeholder.
const AppTag = "intercomswap"

// BuildUnsigned constructs an unsigned envelope from its parts.
func BuildUnsigned(kind model.Kind, tradeID string, tsMs int64, body any) (model.Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("envelope: marshal body: %w", err)
	}
	return model.Envelope{
		V:       model.EnvelopeVersion,
		Kind:    kind,
		TradeID: tradeID,
		TSMs:    tsMs,
		Body:    raw,
	}, nil
}

// canonicalize returns the deterministic byte encoding of the unsigned form
// of env: sorted object keys, no extraneous whitespace. encoding/json already
// sorts map keys and struct-derived RawMessage trees are re-marshaled through
// a generic any so nested objects sort too.
func canonicalize(env model.Envelope) ([]byte, error) {
	unsigned := env.Unsigned()

	var bodyAny any
	if len(unsigned.Body) > 0 {
		if err := json.Unmarshal(unsigned.Body, &bodyAny); err != nil {
			return nil, fmt.Errorf("envelope: body is not valid json: %w", err)
		}
	}

	ordered := map[string]any{
		"v":        unsigned.V,
		"kind":     string(unsigned.Kind),
		"trade_id": unsigned.TradeID,
		"ts_ms":    unsigned.TSMs,
		"body":     bodyAny,
	}
	return marshalSorted(ordered)
}

// marshalSorted renders v as JSON with object keys in lexicographic order at
// every nesting level, which is what every peer must produce bitwise
// identically for HashUnsigned/Sign/Verify to agree.
func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, e := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(t)
	}
}

// HashUnsigned returns the SHA-256 digest of env's canonical unsigned
// encoding — the envelope id operation from spec §4.1. Signature fields never
// participate, so signing an envelope does not change its hash.
func HashUnsigned(env model.Envelope) ([32]byte, error) {
	raw, err := canonicalize(env)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// HashUnsignedHex is HashUnsigned hex-encoded.
func HashUnsignedHex(env model.Envelope) (string, error) {
	h, err := HashUnsigned(env)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// Sign signs env's canonical unsigned encoding with keypair and returns a new
// envelope carrying signer/sig. env is never mutated.
func Sign(env model.Envelope, keypair ed25519.PrivateKey) (model.Envelope, error) {
	raw, err := canonicalize(env)
	if err != nil {
		return model.Envelope{}, err
	}
	sig := ed25519.Sign(keypair, raw)
	signed := env.Unsigned()
	signed.Signer = hex.EncodeToString(keypair.Public().(ed25519.PublicKey))
	signed.Sig = hex.EncodeToString(sig)
	return signed, nil
}

// Verify checks that env carries a valid signature from its stated signer.
func Verify(env model.Envelope) error {
	if !env.IsSigned() {
		return fmt.Errorf("envelope: not signed")
	}
	pubBytes, err := hex.DecodeString(env.Signer)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("envelope: invalid signer pubkey")
	}
	sigBytes, err := hex.DecodeString(env.Sig)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return fmt.Errorf("envelope: invalid signature encoding")
	}
	raw, err := canonicalize(env)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), raw, sigBytes) {
		return fmt.Errorf("envelope: signature verification failed")
	}
	return nil
}

// AppHash derives the 32-byte app tag binding an envelope to a specific
// Solana program deployment: sha256("intercomswap" || program_id_base58).
func AppHash(programIDBase58 string) [32]byte {
	return sha256.Sum256([]byte(AppTag + programIDBase58))
}

// AppHashHex is AppHash hex-encoded, the form carried in TermsBody.AppHash.
func AppHashHex(programIDBase58 string) string {
	h := AppHash(programIDBase58)
	return hex.EncodeToString(h[:])
}

// HashTerms returns a stable hash over a TERMS envelope, used by the pre-pay
// verifier and by replay/dedup bookkeeping. It is simply HashUnsigned scoped
// to a TERMS-kind envelope; callers should assert env.Kind == model.KindTerms.
func HashTerms(env model.Envelope) (string, error) {
	return HashUnsignedHex(env)
}

package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromSeedHexDerivesStableIdentity(t *testing.T) {
	seedHex := strings.Repeat("ab", 32)

	id1, err := FromSeedHex(seedHex, true)
	require.NoError(t, err)
	id2, err := FromSeedHex(seedHex, true)
	require.NoError(t, err)

	require.Equal(t, id1.PeerHex, id2.PeerHex)
	require.Equal(t, id1.SolSigner, id2.SolSigner)
	require.NotEmpty(t, id1.PeerHex)
}

func TestFromSeedHexUnseededLeavesSolSignerEmpty(t *testing.T) {
	seedHex := strings.Repeat("cd", 32)

	id, err := FromSeedHex(seedHex, false)
	require.NoError(t, err)
	require.Empty(t, id.SolSigner)
	require.True(t, id.SolPublicKey().IsZero())
}

func TestFromSeedHexRejectsWrongLength(t *testing.T) {
	_, err := FromSeedHex("abcd", true)
	require.Error(t, err)
}

func TestFromSeedHexRejectsBadHex(t *testing.T) {
	_, err := FromSeedHex("not-hex-at-all-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", true)
	require.Error(t, err)
}

func TestFromMnemonicRoundTripsThroughSeedHex(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NotEmpty(t, mnemonic)

	id, seedHex, err := FromMnemonic(mnemonic, true)
	require.NoError(t, err)
	require.Len(t, seedHex, 64)

	again, err := FromSeedHex(seedHex, true)
	require.NoError(t, err)
	require.Equal(t, id.PeerHex, again.PeerHex)
	require.Equal(t, id.SolSigner, again.SolSigner)
}

func TestGenerateMnemonicProducesDistinctPhrases(t *testing.T) {
	m1, err := GenerateMnemonic()
	require.NoError(t, err)
	m2, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NotEqual(t, m1, m2)
}

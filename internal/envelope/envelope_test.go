package envelope

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intercomswap/swap-core/internal/model"
)

func testKeypair(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv := testKeypair(t)

	body := model.StatusBody{State: "init", Note: "hello"}
	unsigned, err := BuildUnsigned(model.KindStatus, "svc:demo:1", 1700000000000, body)
	require.NoError(t, err)

	signed, err := Sign(unsigned, priv)
	require.NoError(t, err)
	require.True(t, signed.IsSigned())

	require.NoError(t, Verify(signed))
}

func TestHashUnsignedExcludesSignature(t *testing.T) {
	priv := testKeypair(t)

	body := model.StatusBody{State: "init"}
	unsigned, err := BuildUnsigned(model.KindStatus, "svc:demo:1", 1700000000000, body)
	require.NoError(t, err)

	hBefore, err := HashUnsignedHex(unsigned)
	require.NoError(t, err)

	signed, err := Sign(unsigned, priv)
	require.NoError(t, err)

	hAfter, err := HashUnsignedHex(signed)
	require.NoError(t, err)

	require.Equal(t, hBefore, hAfter)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	priv := testKeypair(t)

	unsigned, err := BuildUnsigned(model.KindStatus, "svc:demo:1", 1700000000000, model.StatusBody{State: "init"})
	require.NoError(t, err)
	signed, err := Sign(unsigned, priv)
	require.NoError(t, err)

	tampered := signed
	tampered.TradeID = "svc:demo:2"
	require.Error(t, Verify(tampered))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv := testKeypair(t)
	other := testKeypair(t)

	unsigned, err := BuildUnsigned(model.KindStatus, "svc:demo:1", 1700000000000, model.StatusBody{State: "init"})
	require.NoError(t, err)
	signed, err := Sign(unsigned, priv)
	require.NoError(t, err)

	signed.Signer = hexPubKey(other)
	require.Error(t, Verify(signed))
}

func hexPubKey(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	const hextable = "0123456789abcdef"
	out := make([]byte, len(pub)*2)
	for i, b := range pub {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func TestAppHashDeterministic(t *testing.T) {
	h1 := AppHashHex("11111111111111111111111111111111")
	h2 := AppHashHex("11111111111111111111111111111111")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)

	h3 := AppHashHex("So11111111111111111111111111111111111111112")
	require.NotEqual(t, h1, h3)
}

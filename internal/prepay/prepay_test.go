package prepay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/intercomswap/swap-core/internal/envelope"
	"github.com/intercomswap/swap-core/internal/ln"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/solchain"
)

func mustBody(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newVerifier(programID solana.PublicKey) *Verifier {
	chain := solchain.NewClient(nil, programID)
	return New(chain, nil)
}

func TestCheckTradeIDConsistencyRejectsMismatch(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	b := Bundle{
		Terms:            model.Envelope{TradeID: "t1"},
		LNInvoice:        model.Envelope{TradeID: "t1"},
		SolEscrowCreated: model.Envelope{TradeID: "t2"},
	}
	err := v.checkTradeIDConsistency(b)
	require.Error(t, err)
}

func TestCheckAppHashMatchesDerivation(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	v := newVerifier(programID)
	terms := model.TermsBody{AppHash: envelope.AppHashHex(programID.String())}
	require.NoError(t, v.checkAppHash(Bundle{}, terms))

	terms.AppHash = "deadbeef"
	require.Error(t, v.checkAppHash(Bundle{}, terms))
}

func TestCheckProgramIDMismatch(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	v := newVerifier(programID)
	terms := model.TermsBody{}
	escrow := model.SolEscrowCreatedBody{ProgramID: solana.NewWallet().PublicKey().String()}
	require.Error(t, v.checkProgramID(terms, escrow))

	escrow.ProgramID = programID.String()
	require.NoError(t, v.checkProgramID(terms, escrow))
}

func TestCheckInvoiceMismatch(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	terms := model.TermsBody{LNReceiverPeer: "deadbeef", BTCSats: 1000}
	body := model.LNInvoiceBody{PaymentHashHex: "aa"}
	decoded := ln.Invoice{PaymentHashHex: "bb", DestinationHex: "deadbeef", AmountMsat: 1_000_000}
	require.Error(t, v.checkInvoice(terms, body, decoded))

	decoded.PaymentHashHex = "aa"
	require.NoError(t, v.checkInvoice(terms, body, decoded))

	decoded.AmountMsat = 999
	require.Error(t, v.checkInvoice(terms, body, decoded))
}

func TestCheckInvoiceRejectsWrongDestination(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	terms := model.TermsBody{LNReceiverPeer: "aabbcc", BTCSats: 1000}
	body := model.LNInvoiceBody{PaymentHashHex: "aa"}
	decoded := ln.Invoice{PaymentHashHex: "aa", DestinationHex: "aabbcc", AmountMsat: 1_000_000}
	require.NoError(t, v.checkInvoice(terms, body, decoded))

	decoded.DestinationHex = "ddeeff"
	require.Error(t, v.checkInvoice(terms, body, decoded))
}

func TestCheckInvoiceRejectsAmountAgainstTermsNotSelfReportedBody(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	terms := model.TermsBody{LNReceiverPeer: "aabbcc", BTCSats: 1000}
	// body.AmountMsat self-reports an amount that agrees with the invoice,
	// but terms.BTCSats*1000 is what must bind — a forged or stale
	// invoice that's internally consistent must still fail here.
	body := model.LNInvoiceBody{PaymentHashHex: "aa", AmountMsat: "500000"}
	decoded := ln.Invoice{PaymentHashHex: "aa", DestinationHex: "aabbcc", AmountMsat: 500_000}
	require.Error(t, v.checkInvoice(terms, body, decoded))
}

func TestCheckEscrowPDADerivation(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	v := newVerifier(programID)
	chain := solchain.NewClient(nil, programID)

	paymentHashHex := "aa000000000000000000000000000000000000000000000000000000000000bb"
	hash, err := decodeHex32(paymentHashHex)
	require.NoError(t, err)
	pda, _, err := chain.EscrowPDA(hash)
	require.NoError(t, err)

	body := model.LNInvoiceBody{PaymentHashHex: paymentHashHex}
	require.NoError(t, v.checkEscrowPDADerivation(body, pda))
	require.Error(t, v.checkEscrowPDADerivation(body, solana.NewWallet().PublicKey()))
}

func TestCheckEscrowStateMismatches(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	recipient := solana.NewWallet().PublicKey()
	refund := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	terms := model.TermsBody{
		SolRecipient:       recipient.String(),
		SolRefund:          refund.String(),
		SolMint:            mint.String(),
		SolRefundAfterUnix: 1000,
		USDTAmount:         "1000000",
	}
	state := solchain.EscrowState{
		Status:            solchain.EscrowStatusActive,
		Recipient:         recipient,
		Refund:            refund,
		Mint:              mint,
		RefundAfterUnix:   1000,
		NetAmount:         970000,
		PlatformFeeAmount: 20000,
		TradeFeeAmount:    10000,
	}
	require.NoError(t, v.checkEscrowState(terms, state))

	bad := state
	bad.Status = solchain.EscrowStatusClaimed
	require.Error(t, v.checkEscrowState(terms, bad))

	bad = state
	bad.NetAmount = 1
	require.Error(t, v.checkEscrowState(terms, bad))
}

func TestCheckFeeGuardrails(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	collector := solana.NewWallet().PublicKey()
	terms := model.TermsBody{PlatformFeeBps: 100, TradeFeeBps: 50, TradeFeeCollector: collector.String()}
	state := solchain.EscrowState{PlatformFeeBps: 100, TradeFeeBps: 50, TradeFeeCollector: collector}
	require.NoError(t, v.checkFeeGuardrails(terms, state))

	state.TradeFeeBps = 51
	require.Error(t, v.checkFeeGuardrails(terms, state))
}

func TestCheckExpiryRejectsPastWindows(t *testing.T) {
	v := newVerifier(solana.NewWallet().PublicKey())
	v.now = func() time.Time { return time.Unix(2000, 0) }

	invoiceBody := model.LNInvoiceBody{ExpiresAtUnix: 1000}
	terms := model.TermsBody{SolRefundAfterUnix: 5000}
	require.Error(t, v.checkExpiry(invoiceBody, terms))

	invoiceBody.ExpiresAtUnix = 3000
	require.NoError(t, v.checkExpiry(invoiceBody, terms))

	terms.SolRefundAfterUnix = 1500
	require.Error(t, v.checkExpiry(invoiceBody, terms))
}

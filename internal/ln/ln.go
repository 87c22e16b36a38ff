// Package ln defines the Lightning Network capability this peer consumes,
// plus REST-backed clients for the two node kinds a peer may run:
// LNDClient (lnd's REST gateway, macaroon auth) and CLNClient (core-lightning's
// clnrest plugin, rune auth). Liquidity prechecks and settlement tools are
// written and tested against the Client interface, mirroring the shape the
// teacher gives its own external dependencies (internal/clients'
// GenericClientAPI); the concrete clients reuse the teacher's bare
// http.Client idiom from internal/service/solana's Raydium calls.
package ln

import "context"

// Channel is one raw channel view, before normalization. Backends populate
// either the LND-style or the CLN-style fields; liquidity.ChannelView is the
// normalized row C7 actually computes against.
type Channel struct {
	ID            string
	Peer          string
	Active        bool
	LocalSats     int64
	RemoteSats    int64
	CapacitySats  int64
	SpendableMsat int64  // CLN-style spendable balance, msat precision
	State         string // CLN-style connection state, e.g. "CHANNELD_NORMAL"
}

// Info is the node's self-description.
type Info struct {
	PubkeyHex string
	Alias     string
}

// Invoice is a decoded bolt11 payment request.
type Invoice struct {
	Bolt11         string
	PaymentHashHex string
	DestinationHex string
	AmountMsat     int64
	ExpiresAtUnix  int64
	RouteHints     int
}

// Route is one candidate path returned by a graph probe.
type Route struct {
	HopCount   int
	TotalFeeMsat int64
}

// PayResult reports a completed or failed payment attempt.
type PayResult struct {
	PaymentHashHex string
	PreimageHex    string
	Succeeded      bool
	FailureReason  string
}

// Client is the Lightning capability surface consumed by C7 and C9,
// spanning both LND and core-lightning backends (§6's "Lightning operations
// (consumed)").
type Client interface {
	GetInfo(ctx context.Context) (Info, error)
	ListPeers(ctx context.Context) ([]string, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	Connect(ctx context.Context, peerURI string) error
	FundChannel(ctx context.Context, nodeID string, amountSats int64, satPerVByte int64, pushSats int64) (string, error)
	CloseChannel(ctx context.Context, channelID string) error
	SpliceChannel(ctx context.Context, channelID string, deltaSats int64) error

	Invoice(ctx context.Context, amountMsat int64, label, description string, expirySec int64) (Invoice, error)
	DecodePay(ctx context.Context, bolt11 string) (Invoice, error)
	Pay(ctx context.Context, bolt11 string, opts PayOptions) (PayResult, error)
	PayStatus(ctx context.Context, paymentHashHex string) (PayResult, error)
	QueryRoutes(ctx context.Context, destinationHex string, amountSats int64, numRoutes int) ([]Route, error)
	PreimageGet(ctx context.Context, paymentHashHex string) (string, error)
}

// PayOptions mirrors the optional pay() knobs from §6.
type PayOptions struct {
	OutgoingChanID     string
	LastHopPubkey      string
	FeeLimitSat        int64
	AllowSelfPayment   bool
}

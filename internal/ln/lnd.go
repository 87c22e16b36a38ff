package ln

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// LNDClient talks to an lnd node's REST API (the gRPC proxy lnd serves
// alongside its native gRPC port), authenticating with a macaroon header
// instead of a TLS client cert exchange. It implements Client.
type LNDClient struct {
	t *restTransport
}

// NewLNDClient builds an LNDClient. macaroonHex is the admin (or
// invoice+offchain, depending on what this peer's role needs) macaroon,
// hex-encoded the way lnd's own lncli prints it. tlsCertPath may be empty
// when the REST endpoint sits behind a reverse proxy that terminates TLS
// with a publicly trusted certificate.
func NewLNDClient(host, macaroonHex, tlsCertPath string, timeout time.Duration) (*LNDClient, error) {
	mac, err := hex.DecodeString(macaroonHex)
	if err != nil {
		return nil, apperr.Validation("decode lnd macaroon hex: %v", err)
	}
	macHex := hex.EncodeToString(mac)

	t, err := newRESTTransport(host, tlsCertPath, timeout, func(req *http.Request) {
		req.Header.Set("Grpc-Metadata-macaroon", macHex)
	})
	if err != nil {
		return nil, err
	}
	return &LNDClient{t: t}, nil
}

type lndGetInfoResp struct {
	IdentityPubkey string `json:"identity_pubkey"`
	Alias          string `json:"alias"`
}

func (c *LNDClient) GetInfo(ctx context.Context) (Info, error) {
	var resp lndGetInfoResp
	if err := c.t.call(ctx, "GET", "/v1/getinfo", nil, &resp); err != nil {
		return Info{}, err
	}
	return Info{PubkeyHex: resp.IdentityPubkey, Alias: resp.Alias}, nil
}

type lndPeer struct {
	PubKey string `json:"pub_key"`
}

func (c *LNDClient) ListPeers(ctx context.Context) ([]string, error) {
	var resp struct {
		Peers []lndPeer `json:"peers"`
	}
	if err := c.t.call(ctx, "GET", "/v1/peers", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		out = append(out, p.PubKey)
	}
	return out, nil
}

type lndChannel struct {
	ChanID        string `json:"chan_id"`
	RemotePubkey  string `json:"remote_pubkey"`
	Active        bool   `json:"active"`
	LocalBalance  string `json:"local_balance"`
	RemoteBalance string `json:"remote_balance"`
	Capacity      string `json:"capacity"`
}

func (c *LNDClient) ListChannels(ctx context.Context) ([]Channel, error) {
	var resp struct {
		Channels []lndChannel `json:"channels"`
	}
	if err := c.t.call(ctx, "GET", "/v1/channels", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(resp.Channels))
	for _, ch := range resp.Channels {
		out = append(out, Channel{
			ID:           ch.ChanID,
			Peer:         ch.RemotePubkey,
			Active:       ch.Active,
			LocalSats:    parseSats(ch.LocalBalance),
			RemoteSats:   parseSats(ch.RemoteBalance),
			CapacitySats: parseSats(ch.Capacity),
		})
	}
	return out, nil
}

func parseSats(s string) int64 {
	var v int64
	fmt.Sscan(s, &v)
	return v
}

func (c *LNDClient) Connect(ctx context.Context, peerURI string) error {
	pubkey, host, err := splitPeerURI(peerURI)
	if err != nil {
		return err
	}
	req := map[string]any{
		"addr": map[string]string{"pubkey": pubkey, "host": host},
	}
	return c.t.call(ctx, "POST", "/v1/peers", req, nil)
}

func splitPeerURI(uri string) (pubkey, host string, err error) {
	for i := 0; i < len(uri); i++ {
		if uri[i] == '@' {
			return uri[:i], uri[i+1:], nil
		}
	}
	return "", "", apperr.Validation("peer uri %q missing @host", uri)
}

func (c *LNDClient) FundChannel(ctx context.Context, nodeID string, amountSats, satPerVByte, pushSats int64) (string, error) {
	req := map[string]any{
		"node_pubkey_string":    nodeID,
		"local_funding_amount":  amountSats,
		"sat_per_vbyte":         satPerVByte,
		"push_sat":              pushSats,
	}
	var resp struct {
		FundingTxidStr string `json:"funding_txid_str"`
	}
	if err := c.t.call(ctx, "POST", "/v1/channels", req, &resp); err != nil {
		return "", err
	}
	return resp.FundingTxidStr, nil
}

func (c *LNDClient) CloseChannel(ctx context.Context, channelID string) error {
	return c.t.call(ctx, "DELETE", "/v1/channels/"+channelID, nil, nil)
}

func (c *LNDClient) SpliceChannel(ctx context.Context, channelID string, deltaSats int64) error {
	req := map[string]any{"channel_id": channelID, "relative_local_credit": deltaSats}
	return c.t.call(ctx, "POST", "/v2/channels/splice", req, nil)
}

func (c *LNDClient) Invoice(ctx context.Context, amountMsat int64, label, description string, expirySec int64) (Invoice, error) {
	req := map[string]any{
		"value_msat": amountMsat,
		"memo":       description,
		"expiry":     expirySec,
	}
	var resp struct {
		PaymentRequest string `json:"payment_request"`
		RHash          string `json:"r_hash"`
	}
	if err := c.t.call(ctx, "POST", "/v1/invoices", req, &resp); err != nil {
		return Invoice{}, err
	}
	hashHex, err := base64RHashToHex(resp.RHash)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Bolt11:         resp.PaymentRequest,
		PaymentHashHex: hashHex,
		AmountMsat:     amountMsat,
		ExpiresAtUnix:  time.Now().Unix() + expirySec,
	}, nil
}

func base64RHashToHex(rHash string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(rHash)
	if err != nil {
		return "", apperr.Transient(err, "decode invoice r_hash")
	}
	return hex.EncodeToString(raw), nil
}

type lndPayReqResp struct {
	Destination string `json:"destination"`
	PaymentHash string `json:"payment_hash"`
	NumMsat     string `json:"num_msat"`
	Expiry      string `json:"expiry"`
	RouteHints  []any  `json:"route_hints"`
}

func (c *LNDClient) DecodePay(ctx context.Context, bolt11 string) (Invoice, error) {
	var resp lndPayReqResp
	if err := c.t.call(ctx, "GET", "/v1/payreq/"+bolt11, nil, &resp); err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Bolt11:         bolt11,
		PaymentHashHex: resp.PaymentHash,
		DestinationHex: resp.Destination,
		AmountMsat:     parseSats(resp.NumMsat),
		ExpiresAtUnix:  time.Now().Unix() + parseSats(resp.Expiry),
		RouteHints:     len(resp.RouteHints),
	}, nil
}

func (c *LNDClient) Pay(ctx context.Context, bolt11 string, opts PayOptions) (PayResult, error) {
	req := map[string]any{
		"payment_request":    bolt11,
		"fee_limit_sat":      opts.FeeLimitSat,
		"outgoing_chan_id":   opts.OutgoingChanID,
		"last_hop_pubkey":    opts.LastHopPubkey,
		"allow_self_payment": opts.AllowSelfPayment,
	}
	var resp struct {
		PaymentError    string `json:"payment_error"`
		PaymentPreimage string `json:"payment_preimage"`
		PaymentHash     string `json:"payment_hash"`
	}
	if err := c.t.call(ctx, "POST", "/v1/channels/transactions", req, &resp); err != nil {
		return PayResult{}, err
	}
	if resp.PaymentError != "" {
		return PayResult{PaymentHashHex: resp.PaymentHash, Succeeded: false, FailureReason: resp.PaymentError}, nil
	}
	return PayResult{PaymentHashHex: resp.PaymentHash, PreimageHex: resp.PaymentPreimage, Succeeded: true}, nil
}

func (c *LNDClient) PayStatus(ctx context.Context, paymentHashHex string) (PayResult, error) {
	var resp struct {
		Status   string `json:"status"`
		Preimage string `json:"payment_preimage"`
		FailureReason string `json:"failure_reason"`
	}
	if err := c.t.call(ctx, "GET", "/v2/router/track/"+paymentHashHex, nil, &resp); err != nil {
		return PayResult{}, err
	}
	return PayResult{
		PaymentHashHex: paymentHashHex,
		PreimageHex:    resp.Preimage,
		Succeeded:      resp.Status == "SUCCEEDED",
		FailureReason:  resp.FailureReason,
	}, nil
}

func (c *LNDClient) QueryRoutes(ctx context.Context, destinationHex string, amountSats int64, numRoutes int) ([]Route, error) {
	var resp struct {
		Routes []struct {
			Hops         []any  `json:"hops"`
			TotalFeesMsat string `json:"total_fees_msat"`
		} `json:"routes"`
	}
	path := fmt.Sprintf("/v1/graph/routes/%s/%d?num_routes=%d", destinationHex, amountSats, numRoutes)
	if err := c.t.call(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Route, 0, len(resp.Routes))
	for _, r := range resp.Routes {
		out = append(out, Route{HopCount: len(r.Hops), TotalFeeMsat: parseSats(r.TotalFeesMsat)})
	}
	return out, nil
}

func (c *LNDClient) PreimageGet(ctx context.Context, paymentHashHex string) (string, error) {
	result, err := c.PayStatus(ctx, paymentHashHex)
	if err != nil {
		return "", err
	}
	if !result.Succeeded || result.PreimageHex == "" {
		return "", apperr.Precondition("no settled preimage yet for payment %s", paymentHashHex)
	}
	return result.PreimageHex, nil
}

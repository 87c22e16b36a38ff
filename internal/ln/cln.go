package ln

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// CLNClient talks to a core-lightning node through its clnrest plugin,
// which exposes the same lightning-cli commands as JSON POST endpoints
// authenticated with a "rune" bearer token instead of lnd's macaroon.
type CLNClient struct {
	t *restTransport
}

func NewCLNClient(host, rune_ string, timeout time.Duration) (*CLNClient, error) {
	t, err := newRESTTransport(host, "", timeout, func(req *http.Request) {
		req.Header.Set("Rune", rune_)
	})
	if err != nil {
		return nil, err
	}
	return &CLNClient{t: t}, nil
}

func (c *CLNClient) GetInfo(ctx context.Context) (Info, error) {
	var resp struct {
		ID    string `json:"id"`
		Alias string `json:"alias"`
	}
	if err := c.t.call(ctx, "POST", "/v1/getinfo", struct{}{}, &resp); err != nil {
		return Info{}, err
	}
	return Info{PubkeyHex: resp.ID, Alias: resp.Alias}, nil
}

func (c *CLNClient) ListPeers(ctx context.Context) ([]string, error) {
	var resp struct {
		Peers []struct {
			ID string `json:"id"`
		} `json:"peers"`
	}
	if err := c.t.call(ctx, "POST", "/v1/listpeers", struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		out = append(out, p.ID)
	}
	return out, nil
}

func (c *CLNClient) ListChannels(ctx context.Context) ([]Channel, error) {
	var resp struct {
		Channels []struct {
			PeerID          string `json:"peer_id"`
			ShortChannelID  string `json:"short_channel_id"`
			State           string `json:"state"`
			SpendableMsat   int64  `json:"spendable_msat"`
			TotalMsat       int64  `json:"total_msat"`
		} `json:"channels"`
	}
	if err := c.t.call(ctx, "POST", "/v1/listpeerchannels", struct{}{}, &resp); err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(resp.Channels))
	for _, ch := range resp.Channels {
		out = append(out, Channel{
			ID:            ch.ShortChannelID,
			Peer:          ch.PeerID,
			CapacitySats:  ch.TotalMsat / 1000,
			SpendableMsat: ch.SpendableMsat,
			State:         ch.State,
		})
	}
	return out, nil
}

func (c *CLNClient) Connect(ctx context.Context, peerURI string) error {
	id, host, err := splitPeerURI(peerURI)
	if err != nil {
		return err
	}
	return c.t.call(ctx, "POST", "/v1/connect", map[string]string{"id": id, "host": host}, nil)
}

func (c *CLNClient) FundChannel(ctx context.Context, nodeID string, amountSats, satPerVByte, pushSats int64) (string, error) {
	req := map[string]any{
		"id":        nodeID,
		"amount":    amountSats,
		"feerate":   fmt.Sprintf("%dperkw", satPerVByte*250),
		"push_msat": pushSats * 1000,
	}
	var resp struct {
		TXID string `json:"txid"`
	}
	if err := c.t.call(ctx, "POST", "/v1/fundchannel", req, &resp); err != nil {
		return "", err
	}
	return resp.TXID, nil
}

func (c *CLNClient) CloseChannel(ctx context.Context, channelID string) error {
	return c.t.call(ctx, "POST", "/v1/close", map[string]string{"id": channelID}, nil)
}

func (c *CLNClient) SpliceChannel(ctx context.Context, channelID string, deltaSats int64) error {
	return c.t.call(ctx, "POST", "/v1/splice/init", map[string]any{
		"channel_id": channelID,
		"relative_amount": deltaSats,
	}, nil)
}

func (c *CLNClient) Invoice(ctx context.Context, amountMsat int64, label, description string, expirySec int64) (Invoice, error) {
	req := map[string]any{
		"amount_msat": amountMsat,
		"label":       label,
		"description": description,
		"expiry":      expirySec,
	}
	var resp struct {
		Bolt11      string `json:"bolt11"`
		PaymentHash string `json:"payment_hash"`
	}
	if err := c.t.call(ctx, "POST", "/v1/invoice", req, &resp); err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Bolt11:         resp.Bolt11,
		PaymentHashHex: resp.PaymentHash,
		AmountMsat:     amountMsat,
		ExpiresAtUnix:  time.Now().Unix() + expirySec,
	}, nil
}

func (c *CLNClient) DecodePay(ctx context.Context, bolt11 string) (Invoice, error) {
	var resp struct {
		PaymentHash string `json:"payment_hash"`
		Payee       string `json:"payee"`
		AmountMsat  int64  `json:"amount_msat"`
		ExpiryAt    int64  `json:"expiry"`
		Routes      []any  `json:"routes"`
	}
	if err := c.t.call(ctx, "POST", "/v1/decode", map[string]string{"string": bolt11}, &resp); err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Bolt11:         bolt11,
		PaymentHashHex: resp.PaymentHash,
		DestinationHex: resp.Payee,
		AmountMsat:     resp.AmountMsat,
		ExpiresAtUnix:  resp.ExpiryAt,
		RouteHints:     len(resp.Routes),
	}, nil
}

func (c *CLNClient) Pay(ctx context.Context, bolt11 string, opts PayOptions) (PayResult, error) {
	req := map[string]any{
		"bolt11":    bolt11,
		"maxfeepercent": 0,
		"exemptfee": opts.FeeLimitSat,
	}
	var resp struct {
		PaymentHash     string `json:"payment_hash"`
		PaymentPreimage string `json:"payment_preimage"`
		Status          string `json:"status"`
	}
	if err := c.t.call(ctx, "POST", "/v1/pay", req, &resp); err != nil {
		return PayResult{}, err
	}
	return PayResult{
		PaymentHashHex: resp.PaymentHash,
		PreimageHex:    resp.PaymentPreimage,
		Succeeded:      resp.Status == "complete",
		FailureReason:  resp.Status,
	}, nil
}

func (c *CLNClient) PayStatus(ctx context.Context, paymentHashHex string) (PayResult, error) {
	var resp struct {
		Pays []struct {
			Status   string `json:"status"`
			Preimage string `json:"preimage"`
		} `json:"pays"`
	}
	if err := c.t.call(ctx, "POST", "/v1/listpays", map[string]string{"payment_hash": paymentHashHex}, &resp); err != nil {
		return PayResult{}, err
	}
	if len(resp.Pays) == 0 {
		return PayResult{PaymentHashHex: paymentHashHex}, nil
	}
	p := resp.Pays[0]
	return PayResult{
		PaymentHashHex: paymentHashHex,
		PreimageHex:    p.Preimage,
		Succeeded:      p.Status == "complete",
		FailureReason:  p.Status,
	}, nil
}

func (c *CLNClient) QueryRoutes(ctx context.Context, destinationHex string, amountSats int64, numRoutes int) ([]Route, error) {
	var resp struct {
		Route []any `json:"route"`
	}
	req := map[string]any{"id": destinationHex, "amount_msat": amountSats * 1000, "riskfactor": 10}
	if err := c.t.call(ctx, "POST", "/v1/getroute", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Route) == 0 {
		return nil, nil
	}
	return []Route{{HopCount: len(resp.Route)}}, nil
}

func (c *CLNClient) PreimageGet(ctx context.Context, paymentHashHex string) (string, error) {
	result, err := c.PayStatus(ctx, paymentHashHex)
	if err != nil {
		return "", err
	}
	if !result.Succeeded || result.PreimageHex == "" {
		return "", apperr.Precondition("no settled preimage yet for payment %s", paymentHashHex)
	}
	return result.PreimageHex, nil
}

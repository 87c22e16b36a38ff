package ln

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLNDServer(t *testing.T, handler http.HandlerFunc) (*LNDClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := NewLNDClient(srv.URL, hex.EncodeToString([]byte("fake-macaroon")), "", time.Second)
	if err != nil {
		t.Fatalf("NewLNDClient: %v", err)
	}
	return c, srv.Close
}

func TestLNDGetInfoParsesIdentityAndAlias(t *testing.T) {
	client, closeSrv := newTestLNDServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Grpc-Metadata-macaroon") == "" {
			t.Fatal("expected macaroon header to be set")
		}
		json.NewEncoder(w).Encode(map[string]string{"identity_pubkey": "03abc", "alias": "peerA"})
	})
	defer closeSrv()

	info, err := client.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.PubkeyHex != "03abc" || info.Alias != "peerA" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestLNDListChannelsParsesStringAmounts(t *testing.T) {
	client, closeSrv := newTestLNDServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"channels": []map[string]any{
				{"chan_id": "111", "remote_pubkey": "03def", "active": true, "local_balance": "500000", "remote_balance": "300000", "capacity": "800000"},
			},
		})
	})
	defer closeSrv()

	channels, err := client.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected one channel, got %d", len(channels))
	}
	ch := channels[0]
	if ch.LocalSats != 500000 || ch.RemoteSats != 300000 || ch.CapacitySats != 800000 || !ch.Active {
		t.Fatalf("unexpected channel: %+v", ch)
	}
}

func TestLNDPayReturnsFailureWithoutErrorOnPaymentError(t *testing.T) {
	client, closeSrv := newTestLNDServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"payment_error": "no_route", "payment_hash": "hash1"})
	})
	defer closeSrv()

	result, err := client.Pay(context.Background(), "lnbc1...", PayOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded || result.FailureReason != "no_route" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLNDCallWrapsNon2xxAsTransient(t *testing.T) {
	client, closeSrv := newTestLNDServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("node syncing"))
	})
	defer closeSrv()

	if _, err := client.GetInfo(context.Background()); err == nil {
		t.Fatal("expected an error on a 503 response")
	}
}

func TestLNDPreimageGetFailsBeforePaymentSettles(t *testing.T) {
	client, closeSrv := newTestLNDServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "IN_FLIGHT"})
	})
	defer closeSrv()

	if _, err := client.PreimageGet(context.Background(), "hash1"); err == nil {
		t.Fatal("expected an error for a payment still in flight")
	}
}

package ln

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
)

// restTransport is the shared plumbing both the LND and core-lightning REST
// clients build on: a plain http.Client (mirroring
// internal/service/solana.SolanaTradeService's own bare http.Client for its
// Raydium calls) plus a per-request header hook for macaroon/rune auth.
type restTransport struct {
	baseURL string
	client  *http.Client
	setAuth func(req *http.Request)
}

func newRESTTransport(baseURL, tlsCertPath string, timeout time.Duration, setAuth func(req *http.Request)) (*restTransport, error) {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if tlsCertPath != "" {
		pem, err := os.ReadFile(tlsCertPath)
		if err != nil {
			return nil, apperr.Wrap(fmt.Errorf("read tls cert %s: %w", tlsCertPath, err))
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, apperr.Validation("tls cert at %s contains no usable certificate", tlsCertPath)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}

	return &restTransport{baseURL: baseURL, client: httpClient, setAuth: setAuth}, nil
}

// call performs one REST round-trip, JSON-encoding body (if non-nil) and
// JSON-decoding the response into out (if non-nil). Node errors map to
// apperr.Transient so the automation loop's retry/backoff treats a flaky
// node connection the same way it treats a flaky chain RPC call.
func (t *restTransport) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperr.Validation("encode %s request: %v", path, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return apperr.Validation("build %s request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.setAuth != nil {
		t.setAuth(req)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return apperr.Transient(err, "ln node request %s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient(err, "read ln node response %s", path)
	}

	if resp.StatusCode >= 400 {
		return apperr.Transient(fmt.Errorf("%s", string(respBody)), "ln node returned %d on %s", resp.StatusCode, path)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Transient(err, "decode ln node response %s", path)
	}
	return nil
}

package kraken

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
)

const (
	testKey    = "test-api-key"
	testSecret = "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="
)

func newTestClient(t *testing.T, handler http.Handler, creds bool) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := core.DefaultConfig().
		WithBaseURL(srv.URL).
		WithRateLimit(1000, 1000)
	if creds {
		cfg.WithCredentials(&core.Credentials{APIKey: testKey, APISecret: testSecret})
	}

	client, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_PublicTime(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/0/public/Time", r.URL.Path)
		_, _ = w.Write([]byte(`{"error":[],"result":{"unixtime":1688669448,"rfc1123":"Thu, 06 Jul 23 18:50:48 +0000"}}`))
	}), false)

	res, err := client.Time(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1688669448), res.UnixTime)
}

func TestClient_PrivateWithoutCredentialsFailsBeforeIO(t *testing.T) {
	var hits atomic.Int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), false)

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsInvalidUsage(err))
	assert.Equal(t, int64(0), hits.Load(), "no request may reach the wire")
}

func TestClient_PrivateSignsRequest(t *testing.T) {
	secret, err := DecodeSecret(testSecret)
	require.NoError(t, err)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/0/private/Balance", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("API-Key"))

		body, rerr := io.ReadAll(r.Body)
		require.NoError(t, rerr)
		form, perr := url.ParseQuery(string(body))
		require.NoError(t, perr)

		nonce := form.Get("nonce")
		require.NotEmpty(t, nonce)
		want := Sign(secret, r.URL.Path, nonce, form)
		assert.Equal(t, want, r.Header.Get("API-Sign"))

		_, _ = w.Write([]byte(`{"error":[],"result":{"ZUSD":"1200.50","XXBT":"0.25"}}`))
	}), true)

	balances, err := client.Balance(context.Background())
	require.NoError(t, err)
	require.Contains(t, balances, "ZUSD")
	usd := balances["ZUSD"]
	assert.Equal(t, "1200.50", usd.String())
}

func TestClient_NoncesStrictlyIncrease(t *testing.T) {
	var nonces []int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		n, err := strconv.ParseInt(form.Get("nonce"), 10, 64)
		require.NoError(t, err)
		nonces = append(nonces, n)
		_, _ = w.Write([]byte(`{"error":[],"result":{}}`))
	}), true)

	for i := 0; i < 5; i++ {
		_, err := client.Balance(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, nonces, 5)
	for i := 1; i < len(nonces); i++ {
		assert.Greater(t, nonces[i], nonces[i-1])
	}
}

func TestClient_EnvelopeErrorClassified(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.ErrorType
	}{
		{"rate_limited", `{"error":["EAPI:Rate limit exceeded"],"result":null}`, core.ErrorTypeRateLimited},
		{"order", `{"error":["EOrder:Insufficient funds"],"result":null}`, core.ErrorTypeOrder},
		{"service", `{"error":["EService:Unavailable"],"result":null}`, core.ErrorTypeService},
		{"unrecognized", `{"error":["EWeird:Something new"],"result":null}`, core.ErrorTypeUnrecognized},
		{"empty_error_on_failure", `{"error":[]}`, core.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}), true)

			_, err := client.Balance(context.Background())
			if tt.want == core.ErrorTypeUnknown {
				// empty error list with empty result decodes as success
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsType(err, tt.want), "got %v", err)
		})
	}
}

func TestClient_HTTPErrorWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}), false)

	_, err := client.Time(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrorTypeHTTP))

	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusBadGateway, cerr.Status)
}

func TestClient_EnvelopeErrorOutranksHTTPStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":["EService:Unavailable"],"result":null}`))
	}), false)

	_, err := client.Time(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrorTypeService))
}

func TestClient_CircuitBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"error":["EService:Unavailable"],"result":null}`))
	}))
	t.Cleanup(srv.Close)

	cfg := core.DefaultConfig().
		WithBaseURL(srv.URL).
		WithRateLimit(1000, 1000)
	cfg.CircuitBreakerEnabled = true
	cfg.CircuitBreakerFailThreshold = 3

	client, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	for i := 0; i < 3; i++ {
		_, err := client.Time(context.Background())
		require.Error(t, err)
	}

	_, err = client.Time(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrorTypeService))
	assert.Equal(t, int64(3), hits.Load(), "open breaker must short-circuit before the wire")
}

func TestClient_AddOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/AddOrder", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		assert.Equal(t, "XBTUSD", form.Get("pair"))
		assert.Equal(t, "buy", form.Get("type"))
		assert.Equal(t, "limit", form.Get("ordertype"))
		assert.Equal(t, "1.25", form.Get("volume"))
		assert.Equal(t, "37500", form.Get("price"))

		_, _ = w.Write([]byte(`{"error":[],"result":{"descr":{"order":"buy 1.25 XBTUSD @ limit 37500"},"txid":["OUF4EM-FRGI2-MQMWZD"]}}`))
	}), true)

	res, err := client.AddOrder(context.Background(), &OrderRequest{
		Pair:      "XBTUSD",
		Type:      "buy",
		OrderType: "limit",
		Volume:    "1.25",
		Price:     "37500",
	})
	require.NoError(t, err)
	require.Len(t, res.TxIDs, 1)
	assert.Equal(t, "OUF4EM-FRGI2-MQMWZD", res.TxIDs[0])
}

func TestClient_GetWebSocketsToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/GetWebSocketsToken", r.URL.Path)
		_, _ = w.Write([]byte(`{"error":[],"result":{"token":"1Dwc4lzSwNWOAwkMdqhssNNFhs1ed606d1WcF3XfEMw","expires":900}}`))
	}), true)

	tok, err := client.GetWebSocketsToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(900), tok.Expires)
	assert.NotEmpty(t, tok.Token)
}

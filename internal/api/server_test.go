package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"growtube/internal/career"
	"growtube/internal/game"
	"growtube/internal/ledger"
	"growtube/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPinger time.Duration

func (p fixedPinger) Latency() time.Duration { return time.Duration(p) }

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Memory) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemory(ledger.DefaultCatalog())
	require.NoError(t, store.InTx(ctx, func(tx ledger.Tx) error {
		for _, id := range []int64{1, 2} {
			if err := tx.CreateAccount(ctx, id); err != nil {
				return err
			}
		}
		_, err := tx.AddCurrency(ctx, 2, 750)
		return err
	}))
	engine := market.NewEngine(store, nil, market.Options{})
	careers := career.NewScheduler(store, nil, career.Options{})
	t.Cleanup(careers.Close)

	srv := New(nil, engine, careers, fixedPinger(42*time.Millisecond), time.Now().Add(-time.Minute))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndPing(t *testing.T) {
	ts, _ := newTestServer(t)

	var health map[string]bool
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	assert.True(t, health["ok"])

	var ping struct {
		Uptime  int64 `json:"uptime_seconds"`
		Latency int64 `json:"latency_ms"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/ping", &ping))
	assert.Equal(t, int64(42), ping.Latency)
	assert.GreaterOrEqual(t, ping.Uptime, int64(59))
}

func TestWalletAndInventory(t *testing.T) {
	ts, _ := newTestServer(t)

	var acct game.Account
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/users/2/wallet", &acct))
	assert.Equal(t, int64(750), acct.Currency)

	var inv game.InventoryView
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/users/1/inventory", &inv))
	assert.Equal(t, int64(1), inv.UserID)
	assert.Empty(t, inv.Lines)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/users/99/wallet", &errBody))
	assert.Contains(t, errBody["error"], "not registered")
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/users/abc/wallet", &errBody))
}

func TestMarketTopCareers(t *testing.T) {
	ts, _ := newTestServer(t)
	client := NewClient(ts.URL + "/")
	ctx := context.Background()

	listings, err := client.Market(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, listings)
	for _, l := range listings {
		assert.Positive(t, l.Price, l.Name)
	}

	rows, err := client.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].UserID)

	var badLimit map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/top?limit=x", &badLimit))

	var careers struct {
		Careers []game.Career `json:"careers"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/careers", &careers))
	assert.NotEmpty(t, careers.Careers)

	var info career.Info
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/users/1/career", &info))
	assert.False(t, info.Employed)
}

func TestClientStatusError(t *testing.T) {
	ts, _ := newTestServer(t)
	_, err := NewClient(ts.URL).Wallet(context.Background(), 12345)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, game.ErrNotRegistered.Error(), se.Message)
}

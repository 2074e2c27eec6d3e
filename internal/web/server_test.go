package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/engine"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/storage/positions"
	"github.com/ordinex/signalrelay/internal/storage/summaries"
)

type fakeSummaries struct{ records []summaries.Record }

func (f fakeSummaries) SummariesAfter(index uint64) ([]summaries.Record, error) {
	var out []summaries.Record
	for _, rec := range f.records {
		if rec.Index > index {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAccounts struct{ accounts []registry.ManagedAccount }

func (f fakeAccounts) All() []registry.ManagedAccount { return f.accounts }

type fakeStats struct{ stats engine.Stats }

func (f fakeStats) Stats() engine.Stats { return f.stats }

func testServer(t *testing.T) (*Server, *positions.MemoryStore) {
	t.Helper()

	store := positions.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), domain.PositionRecord{
		Pair:     domain.Pair{From: "SOL", To: "USDT"},
		Side:     domain.SideLong,
		OpenedAt: time.Now().UTC(),
		Accounts: []string{"env-1"},
	}))

	summary := domain.ExecutionSummary{
		ID:           "sum-1",
		Pair:         domain.Pair{From: "SOL", To: "USDT"},
		Side:         domain.SideLong,
		SuccessCount: 1,
	}

	srv := NewServer(":0", zap.NewNop(),
		fakeSummaries{records: []summaries.Record{{Index: 1, Summary: summary}}},
		fakeAccounts{accounts: []registry.ManagedAccount{
			{Account: domain.Account{
				ID:          "env-1",
				Platform:    domain.PlatformBinance,
				Environment: domain.EnvironmentLive,
				IsActive:    true,
				AutoTrade:   true,
				Leverage:    2,
			}},
			{Account: domain.Account{ID: "file-1", Platform: domain.PlatformBybit}},
		}},
		fakeStats{stats: engine.Stats{Cycles: 3, Qualified: 2}},
		store,
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "metrics_ok")
		}),
	)
	return srv, store
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	require.Len(t, got.Accounts, 2)
	assert.Equal(t, "env-1", got.Accounts[0].ID)
	assert.True(t, got.Accounts[0].Active)
	assert.False(t, got.Accounts[1].Active)
	assert.Equal(t, 3, got.Engine.Cycles)

	require.Len(t, got.Positions, 1)
	assert.Equal(t, "SOL_USDT", got.Positions[0].Symbol)
	assert.Equal(t, "LONG", got.Positions[0].Side)
}

func TestClosePosition(t *testing.T) {
	srv, store := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/positions/close?symbol=SOL/USDT", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := store.Get(context.Background(), domain.Pair{From: "SOL", To: "USDT"})
	require.NoError(t, err)
	assert.Nil(t, rec, "released symbol can qualify again")
}

func TestClosePositionRejectsBadRequests(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/positions/close?symbol=SOL/USDT")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/positions/close", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/positions/close?symbol=garbage", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummaryStreamReplaysJournal(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/summaries/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	srv.handleSummaryStream(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "id: 1")
	assert.Contains(t, body, "event: summary")
	assert.Contains(t, body, "sum-1")
}

func TestSummaryStreamResumesAfterCursor(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/summaries/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	srv.handleSummaryStream(rec, req)

	assert.NotContains(t, rec.Body.String(), "event: summary")
}

func TestMetricsEndpointWired(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "metrics_ok", string(body))
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/auth"
	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/server/middleware"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
	"github.com/Pablito-AI/playmark-mvp/internal/store/memory"
)

const (
	testTokenSecret = "handler-test-secret"
	testCronSecret  = "cron-secret"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testAPI is the full HTTP surface backed by an in-memory ledger.
type testAPI struct {
	handler  http.Handler
	ledger   *memory.Ledger
	verifier *auth.TokenVerifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ledger := memory.NewLedger()
	logger := testLogger()
	verifier := auth.NewTokenVerifier(testTokenSecret)
	admins := auth.NewEmailPolicy([]string{"admin@example.com"})

	bets := service.NewBetService(ledger, nil, nil, nil, logger)
	markets := service.NewMarketService(ledger, nil, nil, admins, logger)
	users := service.NewUserService(ledger, nil, logger)
	stats := service.NewStatsService(ledger, nil, logger)
	resolver := service.NewResolveService(ledger, admins, nil, nil, nil, nil, nil, logger)
	lifecycle := service.NewLifecycleService(ledger, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", NewMarketHandler(markets, bets, logger).ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", NewMarketHandler(markets, bets, logger).GetMarket)
	mux.HandleFunc("POST /api/markets", NewMarketHandler(markets, bets, logger).CreateMarket)
	mux.HandleFunc("DELETE /api/markets/{id}", NewMarketHandler(markets, bets, logger).DeleteMarket)
	mux.HandleFunc("POST /api/bets", NewBetHandler(bets, logger).PlaceBet)
	mux.HandleFunc("DELETE /api/bets/{id}", NewBetHandler(bets, logger).CancelBet)
	mux.HandleFunc("POST /api/me", NewProfileHandler(users, logger).Register)
	mux.HandleFunc("GET /api/me", NewProfileHandler(users, logger).Me)
	mux.HandleFunc("GET /api/me/transactions", NewProfileHandler(users, logger).Transactions)
	mux.HandleFunc("GET /api/me/bets", NewProfileHandler(users, logger).Bets)
	mux.HandleFunc("GET /api/me/balance-check", NewProfileHandler(users, logger).BalanceCheck)
	mux.HandleFunc("GET /api/leaderboard", NewLeaderboardHandler(stats, logger).Leaderboard)
	mux.HandleFunc("POST /api/markets/{id}/resolve", NewAdminHandler(resolver, markets, admins, logger).ResolveMarket)
	mux.HandleFunc("GET /api/markets/{id}/pool-check", NewAdminHandler(resolver, markets, admins, logger).VerifyPool)
	mux.HandleFunc("POST /api/cron/close-markets", NewCronHandler(lifecycle, testCronSecret, logger).CloseMarkets)

	return &testAPI{
		handler:  middleware.Auth(verifier)(mux),
		ledger:   ledger,
		verifier: verifier,
	}
}

func (a *testAPI) token(userID, email string) string {
	return a.verifier.Sign(domain.Identity{UserID: userID, Email: email}, time.Now().Add(time.Hour))
}

// do performs a request; a non-empty token goes into the Authorization header.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seedUser(t *testing.T, id string, points int64) {
	t.Helper()
	require.NoError(t, a.ledger.Users().Create(context.Background(), domain.User{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: id,
		Points:      points,
		CreatedAt:   time.Now().UTC(),
	}))
	require.NoError(t, a.ledger.Transactions().Append(context.Background(), domain.Transaction{
		UserID:       id,
		Type:         domain.TxInitial,
		Amount:       points,
		BalanceAfter: points,
	}))
}

func (a *testAPI) seedMarket(t *testing.T, status domain.MarketStatus, closeDate time.Time) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:        uuid.New().String(),
		CreatorID: "creator",
		Title:     "Will the metro strike end this week?",
		Category:  "Sociedad",
		CloseDate: closeDate,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.ledger.Markets().Create(context.Background(), m))
	require.NoError(t, a.ledger.Pools().Init(context.Background(), m.ID))
	return m
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	var body errorBody
	decodeBody(t, rec, &body)
	assert.Equal(t, code, body.Code)
}

func TestPlaceBetEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))

	rec := api.do(t, http.MethodPost, "/api/bets", api.token("alice", "alice@example.com"), map[string]any{
		"market_id": market.ID,
		"side":      "yes",
		"points":    20,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var receipt service.BetReceipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, int64(80), receipt.NewBalance)
	assert.Equal(t, int64(20), receipt.Pool.YesPool)
	assert.NotEmpty(t, receipt.Bet.ID)
}

func TestPlaceBetEndpointRequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))

	rec := api.do(t, http.MethodPost, "/api/bets", "", map[string]any{
		"market_id": market.ID,
		"side":      "yes",
		"points":    10,
	})
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestPlaceBetEndpointInvalidToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/bets", "not-a-real-token", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceBetEndpointErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	open := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))
	closed := api.seedMarket(t, domain.MarketStatusClosed, time.Now().UTC().Add(time.Hour))
	token := api.token("alice", "alice@example.com")

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "bad side",
			body:   map[string]any{"market_id": open.ID, "side": "maybe", "points": 10},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "over balance",
			body:   map[string]any{"market_id": open.ID, "side": "yes", "points": 500},
			status: http.StatusConflict,
			code:   "insufficient_funds",
		},
		{
			name:   "over stake cap",
			body:   map[string]any{"market_id": open.ID, "side": "yes", "points": 50},
			status: http.StatusConflict,
			code:   "stake_too_large",
		},
		{
			name:   "closed market",
			body:   map[string]any{"market_id": closed.ID, "side": "yes", "points": 10},
			status: http.StatusConflict,
			code:   "market_closed",
		},
		{
			name:   "unknown market",
			body:   map[string]any{"market_id": "missing", "side": "yes", "points": 10},
			status: http.StatusNotFound,
			code:   "not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/bets", token, tt.body)
			assertErrorCode(t, rec, tt.status, tt.code)
		})
	}
}

func TestCancelBetEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))
	token := api.token("alice", "alice@example.com")

	rec := api.do(t, http.MethodPost, "/api/bets", token, map[string]any{
		"market_id": market.ID, "side": "no", "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var receipt service.BetReceipt
	decodeBody(t, rec, &receipt)

	rec = api.do(t, http.MethodDelete, "/api/bets/"+receipt.Bet.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &receipt)
	assert.Equal(t, int64(100), receipt.NewBalance)

	// Cancelling someone else's bet is forbidden.
	api.seedUser(t, "bob", 100)
	rec = api.do(t, http.MethodPost, "/api/bets", token, map[string]any{
		"market_id": market.ID, "side": "no", "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeBody(t, rec, &receipt)

	rec = api.do(t, http.MethodDelete, "/api/bets/"+receipt.Bet.ID, api.token("bob", "bob@example.com"), nil)
	assertErrorCode(t, rec, http.StatusForbidden, "forbidden")
}

func TestListMarketsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))
	api.seedMarket(t, domain.MarketStatusResolved, time.Now().UTC().Add(-time.Hour))

	rec := api.do(t, http.MethodGet, "/api/markets?status=open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listMarketsResponse
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Markets, 1)

	rec = api.do(t, http.MethodGet, "/api/markets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Markets, 2)

	rec = api.do(t, http.MethodGet, "/api/markets?status=bogus", "", nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestGetMarketEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))
	token := api.token("alice", "alice@example.com")

	rec := api.do(t, http.MethodPost, "/api/bets", token, map[string]any{
		"market_id": market.ID, "side": "yes", "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Anonymous: no my_bets field.
	rec = api.do(t, http.MethodGet, "/api/markets/"+market.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var anon map[string]json.RawMessage
	decodeBody(t, rec, &anon)
	assert.NotContains(t, anon, "my_bets")

	// Authenticated: own stakes attached.
	rec = api.do(t, http.MethodGet, "/api/markets/"+market.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine struct {
		MyBets []domain.Bet `json:"my_bets"`
	}
	decodeBody(t, rec, &mine)
	assert.Len(t, mine.MyBets, 1)

	rec = api.do(t, http.MethodGet, "/api/markets/missing", "", nil)
	assertErrorCode(t, rec, http.StatusNotFound, "not_found")
}

func TestCreateMarketEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.token("alice", "alice@example.com")

	rec := api.do(t, http.MethodPost, "/api/markets", token, map[string]any{
		"title":      "Will inflation drop below 3% this quarter?",
		"category":   "Economía",
		"close_date": time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/markets", "", map[string]any{})
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = api.do(t, http.MethodPost, "/api/markets", token, map[string]any{
		"title":      "short",
		"category":   "Economía",
		"close_date": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestCreateMarketEndpointRateLimited(t *testing.T) {
	api := newTestAPI(t)
	token := api.token("alice", "alice@example.com")

	for i := 0; i < 5; i++ {
		rec := api.do(t, http.MethodPost, "/api/markets", token, map[string]any{
			"title":      fmt.Sprintf("Will headline number %d age badly within a week?", i),
			"category":   "Sociedad",
			"close_date": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := api.do(t, http.MethodPost, "/api/markets", token, map[string]any{
		"title":      "Will the sixth attempt get through the throttle?",
		"category":   "Sociedad",
		"close_date": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})
	assertErrorCode(t, rec, http.StatusTooManyRequests, "rate_limited")
}

func TestDeleteMarketEndpoint(t *testing.T) {
	api := newTestAPI(t)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))

	rec := api.do(t, http.MethodDelete, "/api/markets/"+market.ID, api.token("alice", "alice@example.com"), nil)
	assertErrorCode(t, rec, http.StatusForbidden, "forbidden")

	rec = api.do(t, http.MethodDelete, "/api/markets/"+market.ID, api.token("admin", "admin@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/markets/"+market.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveMarketEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))

	rec := api.do(t, http.MethodPost, "/api/bets", api.token("alice", "alice@example.com"), map[string]any{
		"market_id": market.ID, "side": "yes", "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Non-admin cannot settle.
	rec = api.do(t, http.MethodPost, "/api/markets/"+market.ID+"/resolve",
		api.token("alice", "alice@example.com"), map[string]any{"outcome": "yes"})
	assertErrorCode(t, rec, http.StatusForbidden, "forbidden")

	adminToken := api.token("admin", "admin@example.com")
	rec = api.do(t, http.MethodPost, "/api/markets/"+market.ID+"/resolve",
		adminToken, map[string]any{"outcome": "yes", "notes": "source confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result service.ResolutionResult
	decodeBody(t, rec, &result)
	assert.Len(t, result.Payouts, 1)
	assert.Equal(t, int64(10), result.PaidPoints)

	rec = api.do(t, http.MethodPost, "/api/markets/"+market.ID+"/resolve",
		adminToken, map[string]any{"outcome": "no"})
	assertErrorCode(t, rec, http.StatusConflict, "already_resolved")
}

func TestPoolCheckEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 100)
	market := api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(time.Hour))

	rec := api.do(t, http.MethodPost, "/api/bets", api.token("alice", "alice@example.com"), map[string]any{
		"market_id": market.ID, "side": "yes", "points": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/markets/"+market.ID+"/pool-check",
		api.token("alice", "alice@example.com"), nil)
	assertErrorCode(t, rec, http.StatusForbidden, "forbidden")

	rec = api.do(t, http.MethodGet, "/api/markets/"+market.ID+"/pool-check",
		api.token("admin", "admin@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check service.PoolCheck
	decodeBody(t, rec, &check)
	assert.True(t, check.Consistent)
}

func TestProfileEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := api.token("alice", "alice@example.com")

	rec := api.do(t, http.MethodPost, "/api/me", token, map[string]any{"display_name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user domain.User
	decodeBody(t, rec, &user)
	assert.Equal(t, domain.StartingBalance, user.Points)

	rec = api.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile service.Profile
	decodeBody(t, rec, &profile)
	assert.Equal(t, "alice", profile.User.ID)

	rec = api.do(t, http.MethodGet, "/api/me/transactions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs listTransactionsResponse
	decodeBody(t, rec, &txs)
	require.Len(t, txs.Transactions, 1)
	assert.Equal(t, domain.TxInitial, txs.Transactions[0].Type)

	rec = api.do(t, http.MethodGet, "/api/me/balance-check", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check service.BalanceCheck
	decodeBody(t, rec, &check)
	assert.True(t, check.Consistent)

	rec = api.do(t, http.MethodGet, "/api/me", "", nil)
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestLeaderboardEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(t, "alice", 300)
	api.seedUser(t, "bob", 200)

	rec := api.do(t, http.MethodGet, "/api/leaderboard?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp leaderboardResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Leaderboard, 1)
	assert.Equal(t, "alice", resp.Leaderboard[0].UserID)
}

func TestCronEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.seedMarket(t, domain.MarketStatusOpen, time.Now().UTC().Add(-time.Minute))

	rec := api.do(t, http.MethodPost, "/api/cron/close-markets", "", nil)
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = api.do(t, http.MethodPost, "/api/cron/close-markets", "wrong-secret", nil)
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = api.do(t, http.MethodPost, "/api/cron/close-markets", testCronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]int64
	decodeBody(t, rec, &body)
	assert.Equal(t, int64(1), body["closed"])

	// Nothing left to close.
	rec = api.do(t, http.MethodPost, "/api/cron/close-markets", testCronSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Zero(t, body["closed"])
}

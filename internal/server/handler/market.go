package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// MarketService defines what the market handler needs from the service layer.
type MarketService interface {
	Create(ctx context.Context, caller domain.Identity, p service.CreateMarketParams) (domain.Market, error)
	Get(ctx context.Context, marketID string) (service.MarketView, error)
	List(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]service.MarketView, error)
	Delete(ctx context.Context, caller domain.Identity, marketID string) error
}

// MarketBetReader lists the caller's stakes on a market.
type MarketBetReader interface {
	MarketBets(ctx context.Context, marketID, userID string) ([]domain.Bet, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	bets    MarketBetReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, bets MarketBetReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, bets: bets, logger: logger}
}

type listMarketsResponse struct {
	Markets []service.MarketView `json:"markets"`
}

// ListMarkets returns markets filtered by status, category, and sort order.
// GET /api/markets?status=open&category=Deportes&sort=trending&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f domain.MarketFilter
	if s := q.Get("status"); s != "" {
		status := domain.MarketStatus(s)
		switch status {
		case domain.MarketStatusOpen, domain.MarketStatusClosed, domain.MarketStatusResolved:
			f.Statuses = []domain.MarketStatus{status}
		default:
			writeBadRequest(w, "unknown status "+s)
			return
		}
	}
	f.Category = q.Get("category")
	f.Sort = q.Get("sort")

	views, err := h.markets.List(r.Context(), f, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if views == nil {
		views = []service.MarketView{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: views})
}

type marketResponse struct {
	service.MarketView
	MyBets []domain.Bet `json:"my_bets,omitempty"`
}

// GetMarket returns one market with its pool and, for authenticated callers,
// their own stakes on it.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeBadRequest(w, "missing market id")
		return
	}

	view, err := h.markets.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := marketResponse{MarketView: view}
	if caller, ok := identityFrom(r); ok {
		bets, err := h.bets.MarketBets(r.Context(), id, caller.UserID)
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: load caller bets failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		} else {
			resp.MyBets = bets
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createMarketRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	SourceLink  string    `json:"source_link"`
	CloseDate   time.Time `json:"close_date"`
}

// CreateMarket creates a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	market, err := h.markets.Create(r.Context(), caller, service.CreateMarketParams{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		SourceLink:  req.SourceLink,
		CloseDate:   req.CloseDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

// DeleteMarket removes a market and its bets. Admin only; stakes are not
// refunded.
// DELETE /api/markets/{id}
func (h *MarketHandler) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeBadRequest(w, "missing market id")
		return
	}

	if err := h.markets.Delete(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "deleted",
		"market_id": id,
	})
}

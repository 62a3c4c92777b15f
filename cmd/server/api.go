package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"vnmarket/internal/assets"
	"vnmarket/internal/market"
	"vnmarket/internal/provider"
)

// defaultHistoryDays is the window served when a history request has no start.
const defaultHistoryDays = 30

type marketService interface {
	LatestQuote(ctx context.Context, symbol string) (*provider.Quote, error)
	History(ctx context.Context, symbol string, start, end time.Time) ([]provider.Record, error)
	Search(ctx context.Context, query string) []market.SearchResult
	RefreshFundCache(ctx context.Context) (int, error)
	Classify(symbol string) provider.AssetType
}

type assetStore interface {
	Upsert(ctx context.Context, a assets.Asset) (assets.Asset, error)
	Get(ctx context.Context, symbol string) (assets.Asset, error)
	List(ctx context.Context, assetType provider.AssetType) ([]assets.Asset, error)
	Delete(ctx context.Context, symbol string) error
}

type api struct {
	market  marketService
	assets  assetStore
	log     zerolog.Logger
	timeout time.Duration
	origins []string
	now     func() time.Time
}

type historyResponse struct {
	Symbol  string            `json:"symbol"`
	Start   string            `json:"start"`
	End     string            `json:"end"`
	Records []provider.Record `json:"records"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []market.SearchResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(middleware.Timeout(a.timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Compress(5))
	r.Use(limitBody)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/quotes/{symbol}", a.handleQuote)
		r.Get("/history/{symbol}", a.handleHistory)
		r.Get("/search", a.handleSearch)
		r.Post("/funds/refresh", a.handleRefreshFunds)
		r.Route("/assets", func(r chi.Router) {
			r.Get("/", a.handleListAssets)
			r.Post("/", a.handleAddAsset)
			r.Get("/{symbol}", a.handleGetAsset)
			r.Delete("/{symbol}", a.handleDeleteAsset)
		})
	})
	return r
}

func (a *api) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := a.market.LatestQuote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	end := provider.Day(a.now())
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{"end must be YYYY-MM-DD"})
			return
		}
		end = t
	}
	start := end.AddDate(0, 0, -defaultHistoryDays)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{"start must be YYYY-MM-DD"})
			return
		}
		start = t
	}
	symbol := chi.URLParam(r, "symbol")
	recs, err := a.market.History(r.Context(), symbol, start, end)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Symbol:  strings.ToUpper(symbol),
		Start:   start.Format(time.DateOnly),
		End:     end.Format(time.DateOnly),
		Records: recs,
	})
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: a.market.Search(r.Context(), q)})
}

func (a *api) handleRefreshFunds(w http.ResponseWriter, r *http.Request) {
	n, err := a.market.RefreshFundCache(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"funds": n})
}

func (a *api) handleListAssets(w http.ResponseWriter, r *http.Request) {
	t := provider.AssetType(strings.ToUpper(r.URL.Query().Get("type")))
	if t != "" && !t.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{"unknown asset type"})
		return
	}
	list, err := a.assets.List(r.Context(), t)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAddAsset stores a search result. A missing asset type is derived
// from the symbol.
func (a *api) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var in market.SearchResult
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid JSON body"})
		return
	}
	if strings.TrimSpace(in.Symbol) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"symbol is required"})
		return
	}
	if in.AssetType == "" {
		in.AssetType = a.market.Classify(in.Symbol)
	}
	if !in.AssetType.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{"unknown asset type"})
		return
	}
	stored, err := a.assets.Upsert(r.Context(), assets.Asset{
		Symbol:    in.Symbol,
		Name:      in.Name,
		AssetType: in.AssetType,
		Exchange:  in.Exchange,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (a *api) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	got, err := a.assets.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (a *api) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := a.assets.Delete(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps service errors to HTTP statuses. Anything unrecognized is
// an upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, provider.ErrNoData),
		errors.Is(err, provider.ErrFundNotFound),
		errors.Is(err, assets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInvalidRange),
		errors.Is(err, market.ErrEmptySymbol):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

type limitRequest struct {
	Category string          `json:"category"`
	LimitSum decimal.Decimal `json:"limitSum"`
}

type limitResponse struct {
	ID            int64           `json:"id"`
	Category      string          `json:"category"`
	LimitSum      decimal.Decimal `json:"limitSum"`
	LimitDatetime time.Time       `json:"limitDatetime"`
	Currency      string          `json:"currency"`
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateLimit(w, r)
	case http.MethodGet:
		s.handleListLimits(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := s.limitSvc.Create(r.Context(), core.Category(req.Category), req.LimitSum)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLimitResponse(saved))
}

func (s *Server) handleListLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := s.limitSvc.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]limitResponse, 0, len(limits))
	for _, l := range limits {
		resp = append(resp, toLimitResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toLimitResponse(l core.Limit) limitResponse {
	return limitResponse{
		ID:            l.ID,
		Category:      string(l.Category),
		LimitSum:      l.Value,
		LimitDatetime: l.EffectiveFrom,
		Currency:      l.Currency,
	}
}

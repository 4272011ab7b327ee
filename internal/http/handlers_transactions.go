package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

type transactionRequest struct {
	AccountFrom       string          `json:"accountFrom"`
	AccountTo         string          `json:"accountTo"`
	CurrencyShortname string          `json:"currencyShortname"`
	Sum               decimal.Decimal `json:"sum"`
	ExpenseCategory   string          `json:"expenseCategory"`
	Datetime          time.Time       `json:"datetime"`
}

type transactionResponse struct {
	ID                int64           `json:"id"`
	AccountFrom       string          `json:"accountFrom"`
	AccountTo         string          `json:"accountTo"`
	CurrencyShortname string          `json:"currencyShortname"`
	Sum               decimal.Decimal `json:"sum"`
	ExpenseCategory   string          `json:"expenseCategory"`
	Datetime          time.Time       `json:"datetime"`
	USDAmount         decimal.Decimal `json:"usdAmount"`
	LimitID           *int64          `json:"limitId"`
	LimitExceeded     bool            `json:"limitExceeded"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type exceededTransactionResponse struct {
	transactionResponse
	LimitSum               decimal.Decimal `json:"limitSum"`
	LimitDatetime          time.Time       `json:"limitDatetime"`
	LimitCurrencyShortname string          `json:"limitCurrencyShortname"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	t := core.Transaction{
		AccountFrom: req.AccountFrom,
		AccountTo:   req.AccountTo,
		Currency:    req.CurrencyShortname,
		Amount:      req.Sum,
		Category:    core.Category(req.ExpenseCategory),
		Datetime:    req.Datetime,
	}
	if err := t.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}

	saved, err := s.evaluator.Evaluate(r.Context(), t)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(saved))
}

func (s *Server) handleExceeded(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	exceeded, err := s.evaluator.ListExceeded(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]exceededTransactionResponse, 0, len(exceeded))
	for _, et := range exceeded {
		resp = append(resp, exceededTransactionResponse{
			transactionResponse:    toTransactionResponse(et.Transaction),
			LimitSum:               et.LimitValue,
			LimitDatetime:          et.LimitEffectiveFrom,
			LimitCurrencyShortname: et.LimitCurrency,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                t.ID,
		AccountFrom:       t.AccountFrom,
		AccountTo:         t.AccountTo,
		CurrencyShortname: t.Currency,
		Sum:               t.Amount,
		ExpenseCategory:   string(t.Category),
		Datetime:          t.Datetime,
		USDAmount:         t.USDAmount,
		LimitID:           t.LimitID,
		LimitExceeded:     t.LimitExceeded,
		CreatedAt:         t.CreatedAt,
	}
}

// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供本機 HTTP 介面，作為 bank 模組的應用層 (Application Layer)。
// 每個 handler 僅負責：
//  1. 接收與驗證 HTTP 請求
//  2. 呼叫 bank 層執行商業邏輯（持久化由 bank 自己完成）
//  3. 回傳標準化 JSON 回應
//
// 分層：
//   - bank：純商業邏輯，與 HTTP 無關。
//   - server：處理傳輸層（Transport Layer）、身分驗證與限流。
//   - storage：負責持久化。
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
)

const maxBodyBytes = 1 << 20

// Options 為 HTTP 層的設定，由 main 從 config 轉入。
type Options struct {
	JWTSecret          []byte
	SessionTTL         time.Duration
	AdminUsername      string
	AdminPasswordHash  []byte
	AllowRemote        bool
	AllowedOrigins     []string
	LoginRatePerMinute int
	Logger             *slog.Logger
}

// Server 為 HTTP 層核心結構。
type Server struct {
	Bank     *bank.Bank
	opts     Options
	sessions *sessions
	limiter  *RateLimiter
	log      *slog.Logger
}

// NewServer 建立新的 HTTP 伺服器。
func NewServer(b *bank.Bank, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 15 * time.Minute
	}
	return &Server{
		Bank:     b,
		opts:     opts,
		sessions: &sessions{secret: opts.JWTSecret, ttl: opts.SessionTTL, now: time.Now},
		limiter:  NewRateLimiter(opts.LoginRatePerMinute),
		log:      logger.With("component", "http"),
	}
}

// decode 解析 JSON body；未知欄位與超過大小上限皆視為錯誤。
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		// 金額格式錯誤時 Money.UnmarshalJSON 會回 ErrInvalidAmount
		if errors.Is(err, bank.ErrInvalidAmount) {
			writeErr(w, r, s.log, err)
			return false
		}
		if errors.Is(err, io.EOF) {
			writeFail(w, http.StatusBadRequest, "bad_request", "Request body is required.")
			return false
		}
		writeFail(w, http.StatusBadRequest, "bad_request", "Malformed JSON body.")
		return false
	}
	return true
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// login 處理 POST /login → {token, expires_at, account}
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNumber string `json:"account_number"`
		Pin           string `json:"pin"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.Bank.Authenticate(r.Context(), req.AccountNumber, req.Pin)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	token, exp, err := s.sessions.issue(a.Number)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp.UTC(),
		"account":    a,
	})
}

// createAccount 處理 POST /accounts（開戶）。
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountNumber  string     `json:"account_number"`
		Pin            string     `json:"pin"`
		AccountHolder  string     `json:"account_holder"`
		InitialBalance bank.Money `json:"initial_balance"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.Bank.Create(r.Context(), req.AccountNumber, req.Pin, req.AccountHolder, req.InitialBalance)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	// 建立成功 → 回傳 201 Created
	writeJSON(w, http.StatusCreated, a)
}

// getAccount 處理 GET /accounts/{number}，不留交易紀錄。
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.Bank.Account(r.Context(), accountFromContext(r.Context()))
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// balanceInquiry 處理 POST /accounts/{number}/balance-inquiry（會記錄一筆 BALANCE_INQUIRY）。
func (s *Server) balanceInquiry(w http.ResponseWriter, r *http.Request) {
	number := accountFromContext(r.Context())
	bal, err := s.Bank.BalanceInquiry(r.Context(), number)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_number": number, "balance": bal})
}

type amountRequest struct {
	Amount bank.Money `json:"amount"`
}

// deposit 處理 POST /accounts/{number}/deposit
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.Bank.Deposit(r.Context(), accountFromContext(r.Context()), req.Amount)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// withdraw 處理 POST /accounts/{number}/withdraw
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.Bank.Withdraw(r.Context(), accountFromContext(r.Context()), req.Amount)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// transfer 處理 POST /accounts/{number}/transfer → JSON {to, amount}
// 只回傳付款方的最新狀態；收款方只回帳號，不洩漏他人餘額。
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     string     `json:"to"`
		Amount bank.Money `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	from, to, err := s.Bank.Transfer(r.Context(), accountFromContext(r.Context()), req.To, req.Amount)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "transfer success",
		"from":    from,
		"to":      to.Number,
	})
}

// changePin 處理 POST /accounts/{number}/pin
func (s *Server) changePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPin string `json:"current_pin"`
		NewPin     string `json:"new_pin"`
		ConfirmPin string `json:"confirm_pin"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Bank.ChangePin(r.Context(), accountFromContext(r.Context()), req.CurrentPin, req.NewPin, req.ConfirmPin); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "pin changed"})
}

// history 處理 GET /accounts/{number}/transactions
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	txs := slices.Collect(s.Bank.History(r.Context(), accountFromContext(r.Context())))
	if txs == nil {
		txs = []bank.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// ─────────────────────────────────────────────
// 管理員
// ─────────────────────────────────────────────

// adminListAccounts 處理 GET /admin/accounts
func (s *Server) adminListAccounts(w http.ResponseWriter, r *http.Request) {
	seq, err := s.Bank.Accounts(r.Context())
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	out := slices.Collect(seq)
	if out == nil {
		out = []bank.Account{}
	}
	writeJSON(w, http.StatusOK, out)
}

// adminDeleteAccount 處理 DELETE /admin/accounts/{number}?reason=...
func (s *Server) adminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	d, err := s.Bank.DeleteAccount(r.Context(), chi.URLParam(r, "number"), r.URL.Query().Get("reason"))
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// adminListDeleted 處理 GET /admin/deleted
func (s *Server) adminListDeleted(w http.ResponseWriter, r *http.Request) {
	seq, err := s.Bank.DeletedAccounts(r.Context())
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	out := slices.Collect(seq)
	if out == nil {
		out = []bank.DeletedAccount{}
	}
	writeJSON(w, http.StatusOK, out)
}

// adminRestore 處理 POST /admin/deleted/{number}/restore
func (s *Server) adminRestore(w http.ResponseWriter, r *http.Request) {
	a, err := s.Bank.RestoreAccount(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// adminResetPin 處理 PUT /admin/accounts/{number}/pin → {pin}
func (s *Server) adminResetPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pin string `json:"pin"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Bank.ResetPin(r.Context(), chi.URLParam(r, "number"), req.Pin); err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "pin reset"})
}

// adminRenameHolder 處理 PUT /admin/accounts/{number}/holder → {account_holder}
func (s *Server) adminRenameHolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountHolder string `json:"account_holder"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.Bank.RenameHolder(r.Context(), chi.URLParam(r, "number"), req.AccountHolder)
	if err != nil {
		writeErr(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

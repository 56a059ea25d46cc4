// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式。
// 成功回應一律 JSON；錯誤回應一律 {"error": "<snake_case 代碼>", "message": "<可讀訊息>"}。
// 領域錯誤 → 狀態碼的對照集中在 errorStatus，handler 只需呼叫 writeErr。
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON 統一輸出成功回應。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus 將領域錯誤對應到 HTTP 狀態、錯誤代碼與訊息。
// ErrPersistence 與未知錯誤只回通用訊息，不洩漏內部細節。
func errorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, bank.ErrNotFound):
		return http.StatusNotFound, "account_not_found", "Account not found."
	case errors.Is(err, bank.ErrDuplicateAccount):
		return http.StatusConflict, "duplicate_account", "An account with this number already exists."
	case errors.Is(err, bank.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount", "Amount must be a positive multiple of 100.00; opening balance must be at least 500.00."
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds", "Insufficient funds."
	case errors.Is(err, bank.ErrInvalidPin):
		return http.StatusBadRequest, "invalid_pin", "PIN must be exactly 4 digits."
	case errors.Is(err, bank.ErrPinMismatch):
		return http.StatusBadRequest, "pin_mismatch", "New PIN and confirmation do not match."
	case errors.Is(err, bank.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid account number or PIN."
	case errors.Is(err, bank.ErrSameAccount):
		return http.StatusBadRequest, "same_account", "Cannot transfer to the same account."
	case errors.Is(err, bank.ErrInvalidAccountNumber):
		return http.StatusBadRequest, "invalid_account_number", "Account number must be 1-32 letters, digits or dashes."
	case errors.Is(err, bank.ErrInvalidHolder):
		return http.StatusBadRequest, "invalid_account_holder", "Account holder name is required."
	case errors.Is(err, bank.ErrUnauthorized):
		return http.StatusForbidden, "forbidden", "Administrator access required."
	case errors.Is(err, bank.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error", "The operation could not be saved. Please try again."
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error."
	}
}

// writeErr 統一輸出領域錯誤。5xx 會記錄完整錯誤，但不回給用戶端。
func writeErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code, errCode, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, errorBody{Error: errCode, Message: msg})
}

// writeFail 輸出非領域錯誤（壞 JSON、未登入、限流等）。
func writeFail(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Error: errCode, Message: msg})
}

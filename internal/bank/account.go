// Package bank 定義核心領域模型與業務規則。
// 本檔定義 Account、Transaction 與 DeletedAccount，不含任何 HTTP 或儲存細節。

package bank

import (
	"regexp"
	"strings"
	"time"
)

// Account represents a bank account.
// 交易紀錄不掛在帳戶上，歷史一律向 TransactionLedger 以帳號查詢。
type Account struct {
	Number  string `json:"account_number"`
	Pin     string `json:"-"`
	Holder  string `json:"account_holder"`
	Balance Money  `json:"balance"`
}

// TransactionType 交易種類。
type TransactionType string

const (
	BalanceInquiry TransactionType = "BALANCE_INQUIRY"
	Withdrawal     TransactionType = "WITHDRAWAL"
	Deposit        TransactionType = "DEPOSIT"
	TransferOut    TransactionType = "TRANSFER_OUT"
	TransferIn     TransactionType = "TRANSFER_IN"
	PinChange      TransactionType = "PIN_CHANGE"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case BalanceInquiry, Withdrawal, Deposit, TransferOut, TransferIn, PinChange:
		return true
	}
	return false
}

// Transaction represents an immutable ledger record owned by exactly one account.
type Transaction struct {
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        Money           `json:"amount"`
	BalanceAfter  Money           `json:"balance_after"`
	Timestamp     time.Time       `json:"timestamp"`
	Description   string          `json:"description"`
}

// DeletedAccount 為刪除當下的帳戶快照。Pin 僅在 preserve 還原策略下使用。
type DeletedAccount struct {
	AccountNumber string    `json:"account_number"`
	Holder        string    `json:"account_holder"`
	FinalBalance  Money     `json:"final_balance"`
	DeletedAt     time.Time `json:"deletion_time"`
	Reason        string    `json:"deletion_reason"`
	Pin           string    `json:"-"`
}

var (
	pinPattern     = regexp.MustCompile(`^\d{4}$`)
	accountPattern = regexp.MustCompile(`^[0-9A-Za-z-]{1,32}$`)
)

// ValidPin reports whether pin is exactly four ASCII digits.
func ValidPin(pin string) bool {
	return pinPattern.MatchString(pin)
}

func validAccountNumber(n string) bool {
	return accountPattern.MatchString(n)
}

// validHolder：戶名不可為空，也不可含換行（檔案以行為單位）。
func validHolder(h string) bool {
	return strings.TrimSpace(h) != "" && !strings.ContainsAny(h, "\r\n")
}

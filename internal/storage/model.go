// internal/storage/model.go
//
// 定義「資料持久化層 (storage layer)」的記錄格式。
// 三個純文字檔、每行一筆、以逗號分隔：
//
//	accounts.txt          accountNumber,pin,accountHolder,balance
//	transactions.txt      accountNumber,type,amount,epochMillis,description,balanceAfter
//	deleted_accounts.txt  accountNumber,accountHolder,finalBalance,deletionTimeISO,deletionReason,pin
//
// 金額一律寫成兩位小數（"1500.00"）；記憶體中以最小貨幣單位 int64 保存。
// ───────────────────────────────
// 設計理念：
// - **關注分離**：此層只處理欄位編解碼與檔案 I/O，不驗證業務規則。
// - **向後相容**：舊版 deleted 檔只有五欄（無 pin），讀取時 Pin 為空字串。
// ───────────────────────────────
package storage

import "time"

// AccountRecord 為 accounts 檔的一行。
type AccountRecord struct {
	Number  string
	Pin     string
	Holder  string
	Balance int64
}

// TransactionRecord 為 transactions 檔的一行。
type TransactionRecord struct {
	AccountNumber string
	Type          string
	Amount        int64
	Time          time.Time // 以 epoch 毫秒存檔，讀回時為 UTC
	Description   string
	BalanceAfter  int64
}

// DeletedRecord 為 deleted_accounts 檔的一行。
type DeletedRecord struct {
	Number       string
	Holder       string
	FinalBalance int64
	DeletedAt    time.Time
	Reason       string
	Pin          string // 空字串代表舊格式，沒有保存 PIN
}

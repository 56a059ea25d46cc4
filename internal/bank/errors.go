// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 呼叫端一律以 errors.Is 判斷錯誤種類；上層（HTTP、桌面介面）再各自轉成使用者可讀的訊息。

package bank

import "errors"

var (
	// ErrNotFound 代表帳戶（或封存中的已刪除帳戶）不存在。
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateAccount 代表帳號已被使用。
	ErrDuplicateAccount = errors.New("account number already exists")

	// ErrInvalidAmount 代表金額非法：<=0、非整百、小數超過兩位，或開戶金額低於 500.00。
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds 代表餘額不足，提款或轉帳失敗。
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPin 代表 PIN 不是四位數字。
	ErrInvalidPin = errors.New("pin must be exactly 4 digits")

	// ErrPinMismatch 代表新 PIN 與確認 PIN 不一致。
	ErrPinMismatch = errors.New("new pin and confirmation do not match")

	// ErrAuthenticationFailed 不區分「帳號不存在」與「PIN 錯誤」，避免帳號被列舉。
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrPersistence 代表寫檔失敗；回傳前記憶體狀態已回滾。
	ErrPersistence = errors.New("persistence error")

	// ErrSameAccount 代表轉帳來源與目標帳戶相同。
	ErrSameAccount = errors.New("from and to are same")

	// ErrInvalidAccountNumber 代表帳號格式不合法。
	ErrInvalidAccountNumber = errors.New("invalid account number")

	// ErrInvalidHolder 代表戶名為空或含換行。
	ErrInvalidHolder = errors.New("invalid account holder")

	// ErrUnauthorized 代表呼叫端沒有管理員權限。
	ErrUnauthorized = errors.New("administrator authorization required")
)

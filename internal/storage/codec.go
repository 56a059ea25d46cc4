// internal/storage/codec.go
//
// 每種記錄與 []string 欄位之間的轉換。真正的引號跳脫交給 encoding/csv，
// 所以戶名、說明含逗號也能完整往返。

package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedRecord 代表某一行無法解析；載入時該行會被略過並記錄警告。
var ErrMalformedRecord = errors.New("malformed record")

// deletionTimeLayout 刪除時間的 ISO-8601 格式（UTC、毫秒）。
const deletionTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatAmount 將最小貨幣單位轉為兩位小數字串。
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ParseAmount 將 "1500"、"1500.5"、"1500.50" 轉為最小貨幣單位；超過兩位小數回錯。
// 只接受一般小數寫法，"1e3" 這類指數寫法一律拒絕。
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	if strings.ContainsAny(s, "eE") {
		return 0, fmt.Errorf("amount %s must be plain decimal notation", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than two fractional digits", s)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s is out of range", s)
	}
	return minor.IntPart(), nil
}

// oneLine 檔案以行為單位，自由文字欄位中的換行一律換成空白。
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func (r AccountRecord) fields() []string {
	return []string{r.Number, r.Pin, oneLine(r.Holder), FormatAmount(r.Balance)}
}

func parseAccountRecord(f []string) (AccountRecord, error) {
	if len(f) != 4 {
		return AccountRecord{}, fmt.Errorf("%w: account wants 4 fields, got %d", ErrMalformedRecord, len(f))
	}
	bal, err := ParseAmount(f[3])
	if err != nil {
		return AccountRecord{}, fmt.Errorf("%w: balance: %v", ErrMalformedRecord, err)
	}
	if f[0] == "" {
		return AccountRecord{}, fmt.Errorf("%w: empty account number", ErrMalformedRecord)
	}
	return AccountRecord{Number: f[0], Pin: f[1], Holder: f[2], Balance: bal}, nil
}

func (r TransactionRecord) fields() []string {
	return []string{
		r.AccountNumber,
		r.Type,
		FormatAmount(r.Amount),
		strconv.FormatInt(r.Time.UnixMilli(), 10),
		oneLine(r.Description),
		FormatAmount(r.BalanceAfter),
	}
}

// parseTransactionRecord 接受六欄（目前格式）或五欄（舊格式，沒有 balanceAfter）。
// 第二個回傳值表示 BalanceAfter 是否來自檔案；五欄時由 replayBalances 補上。
func parseTransactionRecord(f []string) (TransactionRecord, bool, error) {
	if len(f) != 5 && len(f) != 6 {
		return TransactionRecord{}, false, fmt.Errorf("%w: transaction wants 5 or 6 fields, got %d", ErrMalformedRecord, len(f))
	}
	amount, err := ParseAmount(f[2])
	if err != nil {
		return TransactionRecord{}, false, fmt.Errorf("%w: amount: %v", ErrMalformedRecord, err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(f[3]), 10, 64)
	if err != nil {
		return TransactionRecord{}, false, fmt.Errorf("%w: timestamp: %v", ErrMalformedRecord, err)
	}
	rec := TransactionRecord{
		AccountNumber: f[0],
		Type:          f[1],
		Amount:        amount,
		Time:          time.UnixMilli(ms).UTC(),
		Description:   f[4],
	}
	if len(f) == 5 {
		return rec, false, nil
	}
	after, err := ParseAmount(f[5])
	if err != nil {
		return TransactionRecord{}, false, fmt.Errorf("%w: balance after: %v", ErrMalformedRecord, err)
	}
	rec.BalanceAfter = after
	return rec, true, nil
}

// replayBalances 為沒有 balanceAfter 的舊格式交易補上餘額：
// 從同帳號前一筆的 balanceAfter（沒有則為 0）出發，依交易類型加減金額。
// recs 必須是檔案中的順序，也就是寫入順序。
func replayBalances(recs []TransactionRecord, known []bool) {
	running := make(map[string]int64)
	for i := range recs {
		r := &recs[i]
		if known[i] {
			running[r.AccountNumber] = r.BalanceAfter
			continue
		}
		bal := running[r.AccountNumber]
		switch r.Type {
		case "DEPOSIT", "TRANSFER_IN":
			bal += r.Amount
		case "WITHDRAWAL", "TRANSFER_OUT":
			bal -= r.Amount
		}
		r.BalanceAfter = bal
		running[r.AccountNumber] = bal
	}
}

func (r DeletedRecord) fields() []string {
	return []string{
		r.Number,
		oneLine(r.Holder),
		FormatAmount(r.FinalBalance),
		r.DeletedAt.UTC().Format(deletionTimeLayout),
		oneLine(r.Reason),
		r.Pin,
	}
}

// parseDeletedRecord 接受六欄（目前格式）或五欄（舊格式，無 pin）。
func parseDeletedRecord(f []string) (DeletedRecord, error) {
	if len(f) != 5 && len(f) != 6 {
		return DeletedRecord{}, fmt.Errorf("%w: deleted account wants 5 or 6 fields, got %d", ErrMalformedRecord, len(f))
	}
	bal, err := ParseAmount(f[2])
	if err != nil {
		return DeletedRecord{}, fmt.Errorf("%w: final balance: %v", ErrMalformedRecord, err)
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(f[3]))
	if err != nil {
		return DeletedRecord{}, fmt.Errorf("%w: deletion time: %v", ErrMalformedRecord, err)
	}
	rec := DeletedRecord{Number: f[0], Holder: f[1], FinalBalance: bal, DeletedAt: at.UTC(), Reason: f[4]}
	if len(f) == 6 {
		rec.Pin = f[5]
	}
	return rec, nil
}

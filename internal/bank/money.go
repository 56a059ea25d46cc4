// internal/bank/money.go
//
// Money 以最小貨幣單位（分）儲存金額，所有加減皆為 int64 整數運算，不會有浮點誤差。
// 與文字（"150.00"）之間的轉換交給 shopspring/decimal。

package bank

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

// Money is an amount in minor units (cents).
type Money int64

const (
	// MinOpeningBalance 開戶最低金額 500.00。
	MinOpeningBalance Money = 500_00

	// AmountStep 存提款與轉帳須為 100.00 的整數倍。
	AmountStep Money = 100_00
)

// ParseMoney 解析 "1500"、"1500.5"、"1500.50" 之類的字串；超過兩位小數視為非法。
func ParseMoney(s string) (Money, error) {
	minor, err := storage.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return Money(minor), nil
}

// MoneyFromDecimal 將 decimal 轉為最小單位。
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than two fractional digits", ErrInvalidAmount, d)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d)
	}
	return Money(minor.IntPart()), nil
}

// Decimal 回傳兩位小數的 decimal 表示。
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String 固定輸出兩位小數，例如 "1500.00"。
func (m Money) String() string {
	return storage.FormatAmount(int64(m))
}

// MarshalJSON 以字串輸出，避免前端把金額當浮點數處理。
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON 同時接受數字（150.5）與字串（"150.50"）；指數寫法（1e3）視為非法。
func (m *Money) UnmarshalJSON(b []byte) error {
	if bytes.ContainsAny(b, "eE") {
		return fmt.Errorf("%w: %s must be plain decimal notation", ErrInvalidAmount, b)
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// validStep 檢查金額為正且為整百。
func validStep(amount Money) bool {
	return amount > 0 && amount%AmountStep == 0
}

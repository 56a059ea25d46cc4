// internal/bank/operations.go
//
// 顧客端操作。所有變更在 mutate 的寫鎖內完成，並透過 commit 持久化；
// 查詢只取讀鎖。每個成功的交易都會在 ledger 留下一筆（或兩筆，轉帳）紀錄。
package bank

import (
	"context"
	"fmt"
	"iter"
	"math"
)

// Create 開戶：帳號唯一、PIN 為四位數字、開戶金額至少 500.00。
// 開戶金額記為一筆 DEPOSIT（"Opening deposit"）。
func (b *Bank) Create(ctx context.Context, number, pin, holder string, initial Money) (Account, error) {
	var out Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Create(number, pin, initial, holder)
		if err != nil {
			return nil, err
		}
		txs := []Transaction{{
			AccountNumber: number,
			Type:          Deposit,
			Amount:        initial,
			BalanceAfter:  initial,
			Timestamp:     b.stamp(),
			Description:   "Opening deposit",
		}}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		out = a
		return txs, nil
	})
	if err != nil {
		return Account{}, err
	}
	b.log.InfoContext(ctx, "account created", "account", number)
	return out, nil
}

// Authenticate 驗證帳號與 PIN。帳號不存在與 PIN 錯誤回傳同一個錯誤，且耗時相同。
func (b *Bank) Authenticate(ctx context.Context, number, pin string) (Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, err := b.store.Get(number)
	stored := dummyPin
	if err == nil {
		stored = a.Pin
	}
	if !pinMatches(stored, pin) || err != nil {
		b.log.WarnContext(ctx, "authentication failed")
		return Account{}, ErrAuthenticationFailed
	}
	return a, nil
}

// Account 取得帳戶目前狀態，不留交易紀錄。
func (b *Bank) Account(ctx context.Context, number string) (Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.Get(number)
}

// BalanceInquiry 查詢餘額並記錄一筆 BALANCE_INQUIRY。
func (b *Bank) BalanceInquiry(ctx context.Context, number string) (Money, error) {
	var bal Money
	err := b.mutate(ctx, func() ([]Transaction, error) {
		a, err := b.store.Get(number)
		if err != nil {
			return nil, err
		}
		txs := []Transaction{{
			AccountNumber: number,
			Type:          BalanceInquiry,
			BalanceAfter:  a.Balance,
			Timestamp:     b.stamp(),
			Description:   "Balance inquiry",
		}}
		if err := b.commit(ctx, nil, txs, false); err != nil {
			return nil, err
		}
		bal = a.Balance
		return txs, nil
	})
	return bal, err
}

// Deposit 存款：金額需為正且為 100.00 的整數倍。
func (b *Bank) Deposit(ctx context.Context, number string, amount Money) (Account, error) {
	if !validStep(amount) {
		return Account{}, fmt.Errorf("%w: %s is not a positive multiple of %s", ErrInvalidAmount, amount, AmountStep)
	}
	var out Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Get(number)
		if err != nil {
			return nil, err
		}
		if a.Balance > math.MaxInt64-amount {
			return nil, fmt.Errorf("%w: balance would overflow", ErrInvalidAmount)
		}
		a.Balance += amount
		b.store.put(a)
		txs := []Transaction{{
			AccountNumber: number,
			Type:          Deposit,
			Amount:        amount,
			BalanceAfter:  a.Balance,
			Timestamp:     b.stamp(),
			Description:   "Cash deposit",
		}}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		out = a
		return txs, nil
	})
	return out, err
}

// Withdraw 提款：規則同存款，且不得透支。
func (b *Bank) Withdraw(ctx context.Context, number string, amount Money) (Account, error) {
	if !validStep(amount) {
		return Account{}, fmt.Errorf("%w: %s is not a positive multiple of %s", ErrInvalidAmount, amount, AmountStep)
	}
	var out Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Get(number)
		if err != nil {
			return nil, err
		}
		if a.Balance < amount {
			return nil, ErrInsufficientFunds
		}
		a.Balance -= amount
		b.store.put(a)
		txs := []Transaction{{
			AccountNumber: number,
			Type:          Withdrawal,
			Amount:        amount,
			BalanceAfter:  a.Balance,
			Timestamp:     b.stamp(),
			Description:   "Cash withdrawal",
		}}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		out = a
		return txs, nil
	})
	return out, err
}

// Transfer 轉帳：在同一個臨界區內同時扣款與入帳，並寫入一對 TRANSFER_OUT / TRANSFER_IN。
// 回傳轉帳後的來源與目標帳戶。
func (b *Bank) Transfer(ctx context.Context, from, to string, amount Money) (Account, Account, error) {
	if !validStep(amount) {
		return Account{}, Account{}, fmt.Errorf("%w: %s is not a positive multiple of %s", ErrInvalidAmount, amount, AmountStep)
	}
	if from == to {
		return Account{}, Account{}, ErrSameAccount
	}
	var src, dst Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(from, to)
		s, err := b.store.Get(from)
		if err != nil {
			return nil, err
		}
		d, err := b.store.Get(to)
		if err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		if s.Balance < amount {
			return nil, ErrInsufficientFunds
		}
		if d.Balance > math.MaxInt64-amount {
			return nil, fmt.Errorf("%w: recipient balance would overflow", ErrInvalidAmount)
		}
		s.Balance -= amount
		d.Balance += amount
		b.store.put(s)
		b.store.put(d)

		at := b.stamp()
		txs := []Transaction{
			{AccountNumber: from, Type: TransferOut, Amount: amount, BalanceAfter: s.Balance, Timestamp: at, Description: "Transfer to " + to},
			{AccountNumber: to, Type: TransferIn, Amount: amount, BalanceAfter: d.Balance, Timestamp: at, Description: "Transfer from " + from},
		}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		src, dst = s, d
		return txs, nil
	})
	if err != nil {
		return Account{}, Account{}, err
	}
	return src, dst, nil
}

// ChangePin 先驗證目前 PIN，再檢查兩次輸入一致與格式。成功時記錄一筆 PIN_CHANGE。
func (b *Bank) ChangePin(ctx context.Context, number, current, newPin, confirm string) error {
	return b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Get(number)
		stored := dummyPin
		if err == nil {
			stored = a.Pin
		}
		if !pinMatches(stored, current) || err != nil {
			return nil, ErrAuthenticationFailed
		}
		if newPin != confirm {
			return nil, ErrPinMismatch
		}
		if !ValidPin(newPin) {
			return nil, ErrInvalidPin
		}
		a.Pin = newPin
		b.store.put(a)
		txs := []Transaction{{
			AccountNumber: number,
			Type:          PinChange,
			BalanceAfter:  a.Balance,
			Timestamp:     b.stamp(),
			Description:   "PIN changed",
		}}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		return txs, nil
	})
}

// History 依時間先後列出某帳號的交易；帳戶刪除後仍可查詢。
func (b *Bank) History(ctx context.Context, number string) iter.Seq[Transaction] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.HistoryFor(number)
}

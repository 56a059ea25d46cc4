// internal/bank/admin.go
//
// 管理員操作：刪除、還原、重設 PIN、更名與列表。
// 呼叫端必須先以 WithAdmin 標記 context，否則一律回 ErrUnauthorized。
package bank

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

type adminKey struct{}

// WithAdmin 標記此 context 已通過管理員驗證（由 HTTP 層的 Basic Auth 中介層呼叫）。
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey{}, true)
}

// IsAdmin reports whether ctx carries the administrator marker.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey{}).(bool)
	return v
}

func requireAdmin(ctx context.Context) error {
	if !IsAdmin(ctx) {
		return ErrUnauthorized
	}
	return nil
}

const defaultDeletionReason = "No reason provided"

// DeleteAccount 將帳戶移出 AccountStore 並寫入封存。交易紀錄保留，仍可以帳號查詢。
func (b *Bank) DeleteAccount(ctx context.Context, number, reason string) (DeletedAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return DeletedAccount{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultDeletionReason
	}
	var out DeletedAccount
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Remove(number)
		if err != nil {
			return nil, err
		}
		d := DeletedAccount{
			AccountNumber: a.Number,
			Holder:        a.Holder,
			FinalBalance:  a.Balance,
			DeletedAt:     b.stamp(),
			Reason:        strings.TrimSpace(reason),
			Pin:           a.Pin,
		}
		if err := b.saveAccounts(); err != nil {
			b.store.restore(saved)
			b.log.ErrorContext(ctx, "persist accounts failed, rolled back", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if err := b.archive.Archive(d); err != nil {
			b.store.restore(saved)
			b.compensate(ctx)
			b.log.ErrorContext(ctx, "archive deleted account failed, rolled back", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		out = d
		return nil, nil
	})
	if err != nil {
		return DeletedAccount{}, err
	}
	b.log.InfoContext(ctx, "account deleted", "account", number, "final_balance", out.FinalBalance.String())
	return out, nil
}

// RestoreAccount 從封存還原最近一次刪除的帳戶，餘額為刪除當下的金額。
// PIN 依還原策略決定：preserve 沿用舊 PIN（舊格式沒有 PIN 時改用預設值），reset 一律用預設值。
func (b *Bank) RestoreAccount(ctx context.Context, number string) (Account, error) {
	if err := requireAdmin(ctx); err != nil {
		return Account{}, err
	}
	var out Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		d, err := b.archive.Find(number)
		if err != nil {
			return nil, err
		}
		if b.store.Exists(number) {
			return nil, fmt.Errorf("%w: %s is live again", ErrDuplicateAccount, number)
		}
		pin := d.Pin
		if b.restorePolicy == RestoreReset || !ValidPin(pin) {
			pin = b.defaultPin
		}
		a := Account{Number: d.AccountNumber, Pin: pin, Holder: d.Holder, Balance: d.FinalBalance}

		saved := b.store.capture(number)
		b.store.put(a)
		if err := b.saveAccounts(); err != nil {
			b.store.restore(saved)
			b.log.ErrorContext(ctx, "persist accounts failed, rolled back", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if _, err := b.archive.Remove(number); err != nil {
			b.store.restore(saved)
			b.compensate(ctx)
			b.log.ErrorContext(ctx, "remove archive entry failed, rolled back", "err", err)
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		out = a
		return nil, nil
	})
	if err != nil {
		return Account{}, err
	}
	b.log.InfoContext(ctx, "account restored", "account", number, "pin_policy", string(b.restorePolicy))
	return out, nil
}

// ResetPin 由管理員直接指定新 PIN，記錄一筆 PIN_CHANGE。
func (b *Bank) ResetPin(ctx context.Context, number, newPin string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if !ValidPin(newPin) {
		return ErrInvalidPin
	}
	return b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Get(number)
		if err != nil {
			return nil, err
		}
		a.Pin = newPin
		b.store.put(a)
		txs := []Transaction{{
			AccountNumber: number,
			Type:          PinChange,
			BalanceAfter:  a.Balance,
			Timestamp:     b.stamp(),
			Description:   "PIN reset by administrator",
		}}
		if err := b.commit(ctx, saved, txs, true); err != nil {
			return nil, err
		}
		return txs, nil
	})
}

// RenameHolder 更改戶名；不產生交易紀錄。
func (b *Bank) RenameHolder(ctx context.Context, number, holder string) (Account, error) {
	if err := requireAdmin(ctx); err != nil {
		return Account{}, err
	}
	if !validHolder(holder) {
		return Account{}, ErrInvalidHolder
	}
	var out Account
	err := b.mutate(ctx, func() ([]Transaction, error) {
		saved := b.store.capture(number)
		a, err := b.store.Get(number)
		if err != nil {
			return nil, err
		}
		a.Holder = strings.TrimSpace(holder)
		b.store.put(a)
		if err := b.commit(ctx, saved, nil, true); err != nil {
			return nil, err
		}
		out = a
		return nil, nil
	})
	return out, err
}

// Accounts 依帳號排序列出所有存活帳戶。
func (b *Bank) Accounts(ctx context.Context) (iter.Seq[Account], error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.All(), nil
}

// DeletedAccounts 依刪除順序列出封存。
func (b *Bank) DeletedAccounts(ctx context.Context) (iter.Seq[DeletedAccount], error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.archive.All(), nil
}

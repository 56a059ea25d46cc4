// internal/bank/store.go
//
// AccountStore 以帳號為鍵保存目前存活的帳戶。
// 回傳值一律是複本，外部無法繞過 Bank 直接改動內部狀態。

package bank

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
)

type AccountStore struct {
	mu    sync.RWMutex
	accts map[string]*Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accts: make(map[string]*Account)}
}

// Create 驗證後新增帳戶；帳號重複回 ErrDuplicateAccount。
func (s *AccountStore) Create(number, pin string, initial Money, holder string) (Account, error) {
	switch {
	case !validAccountNumber(number):
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccountNumber, number)
	case !validHolder(holder):
		return Account{}, ErrInvalidHolder
	case !ValidPin(pin):
		return Account{}, ErrInvalidPin
	case initial < MinOpeningBalance:
		return Account{}, fmt.Errorf("%w: opening balance must be at least %s", ErrInvalidAmount, MinOpeningBalance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accts[number]; ok {
		return Account{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, number)
	}
	a := &Account{Number: number, Pin: pin, Holder: strings.TrimSpace(holder), Balance: initial}
	s.accts[number] = a
	return *a, nil
}

// Get 取得帳戶複本。
func (s *AccountStore) Get(number string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accts[number]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

// Exists reports whether number is a live account.
func (s *AccountStore) Exists(number string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accts[number]
	return ok
}

// Remove 移除並回傳被移除的帳戶。
func (s *AccountStore) Remove(number string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accts[number]
	if !ok {
		return Account{}, ErrNotFound
	}
	delete(s.accts, number)
	return *a, nil
}

// All 回傳呼叫當下的快照，依帳號排序；同一個序列可重複走訪。
func (s *AccountStore) All() iter.Seq[Account] {
	snap := s.snapshot()
	return slices.Values(snap)
}

// Len 回傳帳戶數。
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accts)
}

// put 新增或覆寫；只給 Bank 在持有寫鎖時使用（載入、還原、餘額異動）。
func (s *AccountStore) put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accts[a.Number] = &cp
}

func (s *AccountStore) snapshot() []Account {
	s.mu.RLock()
	out := make([]Account, 0, len(s.accts))
	for _, a := range s.accts {
		out = append(out, *a)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Account) int { return strings.Compare(a.Number, b.Number) })
	return out
}

// capture 記錄操作前的狀態；不存在的帳號記為 nil，回滾時會被移除。
func (s *AccountStore) capture(numbers ...string) map[string]*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	saved := make(map[string]*Account, len(numbers))
	for _, n := range numbers {
		if a, ok := s.accts[n]; ok {
			cp := *a
			saved[n] = &cp
		} else {
			saved[n] = nil
		}
	}
	return saved
}

func (s *AccountStore) restore(saved map[string]*Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n, a := range saved {
		if a == nil {
			delete(s.accts, n)
			continue
		}
		cp := *a
		s.accts[n] = &cp
	}
}

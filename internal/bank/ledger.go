// internal/bank/ledger.go
//
// TransactionLedger 只能追加，不能修改或刪除。
// Append 先寫入 journal（持久化），成功後才進記憶體；journal 為 nil 時純記憶體運作。

package bank

import (
	"iter"
	"slices"
	"sync"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

// Journal is the durable side of the ledger.
type Journal interface {
	AppendTransactions(recs []storage.TransactionRecord) error
}

type TransactionLedger struct {
	mu        sync.RWMutex
	journal   Journal
	byAccount map[string][]Transaction
}

func NewTransactionLedger(j Journal) *TransactionLedger {
	return &TransactionLedger{journal: j, byAccount: make(map[string][]Transaction)}
}

// Append 原子地追加一批交易：journal 寫入失敗時記憶體不變。
func (l *TransactionLedger) Append(txs ...Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal != nil {
		recs := make([]storage.TransactionRecord, len(txs))
		for i, t := range txs {
			recs[i] = toTransactionRecord(t)
		}
		if err := l.journal.AppendTransactions(recs); err != nil {
			return err
		}
	}
	l.add(txs)
	return nil
}

// HistoryFor 依時間先後（同時間則依寫入順序）列出某帳號的交易；未知帳號回傳空序列。
func (l *TransactionLedger) HistoryFor(number string) iter.Seq[Transaction] {
	l.mu.RLock()
	hist := slices.Clone(l.byAccount[number])
	l.mu.RUnlock()
	slices.SortStableFunc(hist, func(a, b Transaction) int { return a.Timestamp.Compare(b.Timestamp) })
	return slices.Values(hist)
}

// Len 回傳總筆數。
func (l *TransactionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, h := range l.byAccount {
		n += len(h)
	}
	return n
}

// load 只在啟動時使用，不寫 journal。
func (l *TransactionLedger) load(txs []Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(txs)
}

func (l *TransactionLedger) add(txs []Transaction) {
	for _, t := range txs {
		l.byAccount[t.AccountNumber] = append(l.byAccount[t.AccountNumber], t)
	}
}

// internal/bank/bank.go

// Package bank 定義核心商業邏輯：開戶、驗證、存款、提款、轉帳、改 PIN、刪除與還原。
// Bank 是唯一的對外入口（façade），內部組合 AccountStore、TransactionLedger 與 DeletedAccountArchive。
// 採用單一讀寫鎖 (sync.RWMutex) 讓所有狀態變更「原子且序列化」；查詢走讀鎖可並行。
// 金額以 int64 的最小貨幣單位（分）儲存，避免浮點誤差。
//
// ───────────────────────────────
// 持久化順序（每次變更都在寫鎖內完成）：
//  1. 修改記憶體狀態。
//  2. 原子重寫帳戶檔。失敗 → 還原記憶體，回 ErrPersistence。
//  3. 追加交易紀錄。失敗 → 還原記憶體並再寫一次帳戶檔（補償寫入），回 ErrPersistence。
//
// 成功後才在鎖外發送事件通知，避免網路 I/O 卡住其他交易。
// ───────────────────────────────
package bank

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

// Persister 為 Bank 所需的持久化能力；storage.FileStore 實作此介面。
type Persister interface {
	Journal
	ArchiveWriter
	LoadAccounts() ([]storage.AccountRecord, error)
	SaveAccounts(recs []storage.AccountRecord) error
	LoadTransactions() ([]storage.TransactionRecord, error)
	LoadDeleted() ([]storage.DeletedRecord, error)
}

// Notifier 在交易成功落盤後收到通知（例如送往訊息佇列）。實作不得阻塞太久。
type Notifier interface {
	TransactionsCommitted(ctx context.Context, txs []Transaction)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, txs []Transaction)

func (f NotifierFunc) TransactionsCommitted(ctx context.Context, txs []Transaction) { f(ctx, txs) }

// RestorePolicy 決定還原帳戶時 PIN 的處理方式。
type RestorePolicy string

const (
	RestorePreserve RestorePolicy = "preserve" // 沿用刪除時保存的 PIN
	RestoreReset    RestorePolicy = "reset"    // 一律改為預設 PIN
)

// ParseRestorePolicy 解析設定值。
func ParseRestorePolicy(s string) (RestorePolicy, error) {
	switch p := RestorePolicy(s); p {
	case RestorePreserve, RestoreReset:
		return p, nil
	}
	return "", fmt.Errorf("unknown restore pin policy %q", s)
}

// Bank 為聚合根 (Aggregate Root)。
type Bank struct {
	mu      sync.RWMutex
	store   *AccountStore
	ledger  *TransactionLedger
	archive *DeletedAccountArchive
	persist Persister

	notifier      Notifier
	log           *slog.Logger
	now           func() time.Time
	restorePolicy RestorePolicy
	defaultPin    string
}

// Option 調整 Bank 的可選行為。
type Option func(*Bank)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock 替換時間來源（測試用）。
func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(b *Bank) {
		if n != nil {
			b.notifier = n
		}
	}
}

// WithRestorePolicy 設定還原策略；defaultPin 用於 reset 策略與沒有保存 PIN 的舊封存。
func WithRestorePolicy(p RestorePolicy, defaultPin string) Option {
	return func(b *Bank) {
		b.restorePolicy = p
		if ValidPin(defaultPin) {
			b.defaultPin = defaultPin
		}
	}
}

// NewBank 建立純記憶體的銀行實例（不寫檔），適合測試與示範。
func NewBank(opts ...Option) *Bank {
	return newBank(nil, opts)
}

// Open 從 Persister 載入既有資料並回傳 Bank；之後每次變更都會寫回。
// 無法解析的行由 storage 記錄後略過；違反不變量的記錄在此記錄後略過。
func Open(p Persister, opts ...Option) (*Bank, error) {
	b := newBank(p, opts)
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func newBank(p Persister, opts []Option) *Bank {
	b := &Bank{
		store:         NewAccountStore(),
		persist:       p,
		notifier:      NotifierFunc(func(context.Context, []Transaction) {}),
		log:           slog.Default(),
		now:           time.Now,
		restorePolicy: RestorePreserve,
		defaultPin:    "0000",
	}
	var (
		j Journal
		w ArchiveWriter
	)
	if p != nil {
		j, w = p, p
	}
	b.ledger = NewTransactionLedger(j)
	b.archive = NewDeletedAccountArchive(w)
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With("component", "bank")
	return b
}

func (b *Bank) load() error {
	recs, err := b.persist.LoadAccounts()
	if err != nil {
		return err
	}
	for _, r := range recs {
		a := fromAccountRecord(r)
		switch {
		case !validAccountNumber(a.Number), !ValidPin(a.Pin), !validHolder(a.Holder), a.Balance < 0:
			b.log.Warn("skipping invalid account record", "account", a.Number)
		case b.store.Exists(a.Number):
			b.log.Warn("skipping duplicate account record", "account", a.Number)
		default:
			b.store.put(a)
		}
	}

	txRecs, err := b.persist.LoadTransactions()
	if err != nil {
		return err
	}
	txs := make([]Transaction, 0, len(txRecs))
	for _, r := range txRecs {
		t := fromTransactionRecord(r)
		if !t.Type.Valid() || t.Amount < 0 || t.BalanceAfter < 0 {
			b.log.Warn("skipping invalid transaction record", "account", t.AccountNumber, "type", r.Type)
			continue
		}
		txs = append(txs, t)
	}
	b.ledger.load(txs)

	delRecs, err := b.persist.LoadDeleted()
	if err != nil {
		return err
	}
	deleted := make([]DeletedAccount, 0, len(delRecs))
	for _, r := range delRecs {
		d := fromDeletedRecord(r)
		if !validAccountNumber(d.AccountNumber) || d.FinalBalance < 0 {
			b.log.Warn("skipping invalid deleted account record", "account", d.AccountNumber)
			continue
		}
		deleted = append(deleted, d)
	}
	b.archive.load(deleted)

	b.log.Info("ledger loaded", "accounts", b.store.Len(), "transactions", len(txs), "deleted", len(deleted))
	return nil
}

// stamp 產生交易時間：UTC、毫秒精度，與檔案格式一致，重新載入後可比對相等。
func (b *Bank) stamp() time.Time {
	return b.now().UTC().Truncate(time.Millisecond)
}

// mutate 在寫鎖內執行 fn，成功後於鎖外發送通知。
func (b *Bank) mutate(ctx context.Context, fn func() ([]Transaction, error)) error {
	txs, err := func() ([]Transaction, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return fn()
	}()
	if err != nil {
		return err
	}
	if len(txs) > 0 {
		b.notifier.TransactionsCommitted(ctx, txs)
	}
	return nil
}

func (b *Bank) saveAccounts() error {
	if b.persist == nil {
		return nil
	}
	snap := b.store.snapshot()
	recs := make([]storage.AccountRecord, len(snap))
	for i, a := range snap {
		recs[i] = toAccountRecord(a)
	}
	return b.persist.SaveAccounts(recs)
}

// commit 依序寫帳戶檔（accountsChanged 時）與交易紀錄；任一步失敗即回滾到 saved。
func (b *Bank) commit(ctx context.Context, saved map[string]*Account, txs []Transaction, accountsChanged bool) error {
	if accountsChanged {
		if err := b.saveAccounts(); err != nil {
			b.store.restore(saved)
			b.log.ErrorContext(ctx, "persist accounts failed, rolled back", "err", err)
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}
	if err := b.ledger.Append(txs...); err != nil {
		b.store.restore(saved)
		if accountsChanged {
			b.compensate(ctx)
		}
		b.log.ErrorContext(ctx, "append transactions failed, rolled back", "err", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// compensate 把已回滾的記憶體狀態再寫回帳戶檔。
func (b *Bank) compensate(ctx context.Context) {
	if err := b.saveAccounts(); err != nil {
		b.log.ErrorContext(ctx, "compensating accounts write failed, file may be ahead of memory", "err", err)
	}
}

// Backup 在讀鎖內執行 fn。commit 的各步寫檔都在寫鎖內完成，
// 所以 fn 看到的帳戶檔、交易紀錄與刪除封存彼此一致。
func (b *Bank) Backup(fn func() error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn()
}

// dummyPin 帳號不存在時仍做一次等長比較，讓兩種失敗的耗時一致。
const dummyPin = "\x00\x00\x00\x00"

func pinMatches(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

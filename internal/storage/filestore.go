// internal/storage/filestore.go
//
// FileStore 將三個資料檔組合成 Bank 需要的持久化介面：
// 帳戶檔與刪除封存檔整份原子重寫；交易檔只追加。
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Paths 指定資料目錄與三個檔名。
type Paths struct {
	Dir          string
	Accounts     string
	Transactions string
	Deleted      string
}

type FileStore struct {
	mu           sync.Mutex
	dir          string
	accounts     string
	transactions string
	deleted      string
	log          *slog.Logger
}

// NewFileStore 建立資料目錄（若不存在），並清除遺留的暫存檔。
func NewFileStore(p Paths, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p.Accounts == "" {
		p.Accounts = "accounts.txt"
	}
	if p.Transactions == "" {
		p.Transactions = "transactions.txt"
	}
	if p.Deleted == "" {
		p.Deleted = "deleted_accounts.txt"
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{
		dir:          p.Dir,
		accounts:     filepath.Join(p.Dir, p.Accounts),
		transactions: filepath.Join(p.Dir, p.Transactions),
		deleted:      filepath.Join(p.Dir, p.Deleted),
		log:          logger.With("component", "storage"),
	}
	for _, f := range s.Files() {
		if err := removeStaleTemps(f); err != nil {
			return nil, fmt.Errorf("clean temp files: %w", err)
		}
	}
	return s, nil
}

// Files 回傳三個資料檔的完整路徑。
func (s *FileStore) Files() []string {
	return []string{s.accounts, s.transactions, s.deleted}
}

func (s *FileStore) LoadAccounts() ([]AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AccountRecord
	err := readRows(s.accounts, func(f []string) error {
		rec, err := parseAccountRecord(f)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	}, s.skip(s.accounts))
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return out, nil
}

func (s *FileStore) SaveAccounts(recs []AccountRecord) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.fields()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.accounts, rows); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

func (s *FileStore) LoadTransactions() ([]TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		out   []TransactionRecord
		known []bool
	)
	err := readRows(s.transactions, func(f []string) error {
		rec, ok, err := parseTransactionRecord(f)
		if err != nil {
			return err
		}
		out = append(out, rec)
		known = append(known, ok)
		return nil
	}, s.skip(s.transactions))
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	replayBalances(out, known)
	return out, nil
}

func (s *FileStore) AppendTransactions(recs []TransactionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.fields()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := appendRows(s.transactions, rows); err != nil {
		return fmt.Errorf("append transactions: %w", err)
	}
	return nil
}

func (s *FileStore) LoadDeleted() ([]DeletedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DeletedRecord
	err := readRows(s.deleted, func(f []string) error {
		rec, err := parseDeletedRecord(f)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	}, s.skip(s.deleted))
	if err != nil {
		return nil, fmt.Errorf("load deleted accounts: %w", err)
	}
	return out, nil
}

func (s *FileStore) SaveDeleted(recs []DeletedRecord) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = r.fields()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.deleted, rows); err != nil {
		return fmt.Errorf("save deleted accounts: %w", err)
	}
	return nil
}

// CopyTo 在持有鎖的情況下把三個檔案複製到 dir，每個檔案都是完整的。
// 三個檔案彼此一致需要呼叫端另外保證（見 bank.Bank.Backup）。
// 尚未建立的檔案會被略過。
func (s *FileStore) CopyTo(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.Files() {
		data, err := os.ReadFile(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("backup %s: %w", filepath.Base(src), err)
		}
		if err := writeFileAtomic(filepath.Join(dir, filepath.Base(src)), data); err != nil {
			return fmt.Errorf("backup %s: %w", filepath.Base(src), err)
		}
	}
	return nil
}

func (s *FileStore) skip(path string) func(int, error) {
	return func(line int, err error) {
		s.log.Warn("skipping malformed line", "file", filepath.Base(path), "line", line, "err", err)
	}
}

// internal/bank/archive.go
//
// DeletedAccountArchive 保存已刪除帳戶的快照，供管理員日後還原。
// 每次異動都整份重寫 deleted 檔；寫檔失敗則記憶體不變。

package bank

import (
	"iter"
	"slices"
	"sync"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

// ArchiveWriter is the durable side of the archive.
type ArchiveWriter interface {
	SaveDeleted(recs []storage.DeletedRecord) error
}

type DeletedAccountArchive struct {
	mu      sync.RWMutex
	w       ArchiveWriter
	entries []DeletedAccount
}

func NewDeletedAccountArchive(w ArchiveWriter) *DeletedAccountArchive {
	return &DeletedAccountArchive{w: w}
}

// Archive 新增一筆快照。
func (a *DeletedAccountArchive) Archive(d DeletedAccount) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := append(slices.Clone(a.entries), d)
	if err := a.save(next); err != nil {
		return err
	}
	a.entries = next
	return nil
}

// Find 回傳該帳號最近一次的刪除快照。
func (a *DeletedAccountArchive) Find(number string) (DeletedAccount, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := a.latest(number)
	if i < 0 {
		return DeletedAccount{}, ErrNotFound
	}
	return a.entries[i], nil
}

// Remove 移除該帳號最近一次的刪除快照（還原成功時呼叫）。
func (a *DeletedAccountArchive) Remove(number string) (DeletedAccount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.latest(number)
	if i < 0 {
		return DeletedAccount{}, ErrNotFound
	}
	removed := a.entries[i]
	next := slices.Delete(slices.Clone(a.entries), i, i+1)
	if err := a.save(next); err != nil {
		return DeletedAccount{}, err
	}
	a.entries = next
	return removed, nil
}

// All 依刪除順序列出所有快照。
func (a *DeletedAccountArchive) All() iter.Seq[DeletedAccount] {
	a.mu.RLock()
	snap := slices.Clone(a.entries)
	a.mu.RUnlock()
	return slices.Values(snap)
}

func (a *DeletedAccountArchive) load(entries []DeletedAccount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entries...)
}

// latest：同一帳號可能被刪除多次（刪除後以同帳號重新開戶再刪），取刪除時間最晚的一筆。
func (a *DeletedAccountArchive) latest(number string) int {
	idx := -1
	for i, d := range a.entries {
		if d.AccountNumber != number {
			continue
		}
		if idx < 0 || !d.DeletedAt.Before(a.entries[idx].DeletedAt) {
			idx = i
		}
	}
	return idx
}

func (a *DeletedAccountArchive) save(entries []DeletedAccount) error {
	if a.w == nil {
		return nil
	}
	recs := make([]storage.DeletedRecord, len(entries))
	for i, d := range entries {
		recs[i] = toDeletedRecord(d)
	}
	return a.w.SaveDeleted(recs)
}

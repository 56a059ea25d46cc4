// internal/storage/filestore_test.go
//
// 測試目標：驗證三個純文字檔的讀寫一致性。
//
// 測試重點：
//  1. 帳戶、交易、刪除封存可完整往返（含逗號的欄位）。
//  2. 壞行被略過，其餘資料照常載入。
//  3. 原子寫入後不留下暫存檔；檔尾半行不影響後續追加。
//  4. 舊格式（五欄）刪除封存可讀，Pin 為空；五欄交易紀錄可讀，餘額依序重算。
//  5. 追加途中 fsync 失敗時，檔案截回追加前的長度。
package storage

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*FileStore, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	s, err := NewFileStore(Paths{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("NewFileStore err=%v", err)
	}
	return s, &logs
}

func TestAccountsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	orig := []AccountRecord{
		{Number: "1001", Pin: "1234", Holder: "Doe, Jane", Balance: 150000},
		{Number: "1002", Pin: "0000", Holder: `Bob "The Saver"`, Balance: 50000},
	}

	// 1️⃣ 寫入
	if err := s.SaveAccounts(orig); err != nil {
		t.Fatalf("SaveAccounts err=%v", err)
	}
	// 2️⃣ 讀回
	got, err := s.LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts err=%v", err)
	}
	if len(got) != len(orig) {
		t.Fatalf("want %d accounts, got %d", len(orig), len(got))
	}
	for i := range orig {
		if got[i] != orig[i] {
			t.Fatalf("record %d mismatch: got=%+v want=%+v", i, got[i], orig[i])
		}
	}

	// 3️⃣ 檔案內容是兩位小數
	raw, _ := os.ReadFile(s.accounts)
	if !strings.Contains(string(raw), "1500.00") {
		t.Fatalf("balance not written with two decimals: %q", raw)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.SaveAccounts([]AccountRecord{{Number: "1", Pin: "1111", Holder: "A", Balance: int64(i)}}); err != nil {
			t.Fatalf("SaveAccounts err=%v", err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(s.dir, "*.tmp-*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestNewFileStoreRemovesStaleTemps(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "accounts.txt.tmp-123")
	if err := os.WriteFile(stale, []byte("half"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(Paths{Dir: dir}, nil); err != nil {
		t.Fatalf("NewFileStore err=%v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale temp file should be removed, stat err=%v", err)
	}
}

func TestLoadMissingFilesIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	accts, err := s.LoadAccounts()
	if err != nil || len(accts) != 0 {
		t.Fatalf("want empty accounts, got %v err=%v", accts, err)
	}
	txs, err := s.LoadTransactions()
	if err != nil || len(txs) != 0 {
		t.Fatalf("want empty transactions, got %v err=%v", txs, err)
	}
	del, err := s.LoadDeleted()
	if err != nil || len(del) != 0 {
		t.Fatalf("want empty archive, got %v err=%v", del, err)
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	s, logs := newTestStore(t)
	content := strings.Join([]string{
		"1001,1234,Alice,1500.00",
		"garbage line without enough fields",
		"1002,1234,Bob,not-a-number",
		"",
		`1003,1234,"Carol, Jr.",700.50`,
		`1004,1234,"unterminated,1.00`,
	}, "\n") + "\n"
	if err := os.WriteFile(s.accounts, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadAccounts()
	if err != nil {
		t.Fatalf("LoadAccounts err=%v", err)
	}
	if len(got) != 2 || got[0].Number != "1001" || got[1].Holder != "Carol, Jr." || got[1].Balance != 70050 {
		t.Fatalf("unexpected records: %+v", got)
	}
	// ✅ 三行壞資料都留下警告
	if n := strings.Count(logs.String(), "skipping malformed line"); n != 3 {
		t.Fatalf("want 3 warnings, got %d: %s", n, logs.String())
	}
}

func TestTransactionsAppendAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ts := time.UnixMilli(1700000000123).UTC()
	batch := []TransactionRecord{
		{AccountNumber: "1001", Type: "TRANSFER_OUT", Amount: 20000, Time: ts, Description: "Transfer to 1002", BalanceAfter: 130000},
		{AccountNumber: "1002", Type: "TRANSFER_IN", Amount: 20000, Time: ts, Description: "Transfer from 1001", BalanceAfter: 70000},
	}
	if err := s.AppendTransactions(batch[:1]); err != nil {
		t.Fatalf("append err=%v", err)
	}
	if err := s.AppendTransactions(batch[1:]); err != nil {
		t.Fatalf("append err=%v", err)
	}

	got, err := s.LoadTransactions()
	if err != nil {
		t.Fatalf("LoadTransactions err=%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 transactions, got %d", len(got))
	}
	for i := range batch {
		if got[i] != batch[i] {
			t.Fatalf("tx %d mismatch: got=%+v want=%+v", i, got[i], batch[i])
		}
	}
}

func TestAppendAfterTornLine(t *testing.T) {
	s, _ := newTestStore(t)
	// 模擬上次寫到一半當機：檔尾沒有換行
	if err := os.WriteFile(s.transactions, []byte("1001,DEPOSIT,100.0"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := TransactionRecord{AccountNumber: "1001", Type: "DEPOSIT", Amount: 10000, Time: time.UnixMilli(1700000000500).UTC(), Description: "Deposit", BalanceAfter: 10000}
	if err := s.AppendTransactions([]TransactionRecord{rec}); err != nil {
		t.Fatalf("append err=%v", err)
	}
	got, err := s.LoadTransactions()
	if err != nil {
		t.Fatalf("LoadTransactions err=%v", err)
	}
	if len(got) != 1 || got[0] != rec {
		t.Fatalf("torn line should be skipped and new record kept, got %+v", got)
	}
}

func TestDeletedRoundTripAndLegacyFormat(t *testing.T) {
	s, _ := newTestStore(t)
	at := time.Date(2024, 3, 1, 10, 30, 0, 250_000_000, time.UTC)
	orig := []DeletedRecord{{Number: "1001", Holder: "Alice", FinalBalance: 90000, DeletedAt: at, Reason: "closed, moved abroad", Pin: "4321"}}
	if err := s.SaveDeleted(orig); err != nil {
		t.Fatalf("SaveDeleted err=%v", err)
	}
	got, err := s.LoadDeleted()
	if err != nil || len(got) != 1 {
		t.Fatalf("LoadDeleted got=%v err=%v", got, err)
	}
	if !got[0].DeletedAt.Equal(at) || got[0].Reason != orig[0].Reason || got[0].Pin != "4321" {
		t.Fatalf("mismatch: %+v", got[0])
	}

	// 舊格式沒有 pin 欄
	legacy := "1002,Bob,500.00,2023-12-31T23:59:59.000Z,inactive\n"
	if err := os.WriteFile(s.deleted, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadDeleted()
	if err != nil || len(got) != 1 {
		t.Fatalf("legacy load got=%v err=%v", got, err)
	}
	if got[0].Pin != "" || got[0].FinalBalance != 50000 {
		t.Fatalf("legacy record mismatch: %+v", got[0])
	}
}

// TestLegacyTransactionsReplayBalance 五欄舊格式沒有 balanceAfter，載入時依序重算；
// 與六欄新資料混在同一檔時，以最近一筆已知餘額為起點。
func TestLegacyTransactionsReplayBalance(t *testing.T) {
	s, logs := newTestStore(t)
	content := strings.Join([]string{
		"1001,DEPOSIT,1000.00,1704067200000,Opening deposit",
		"1002,DEPOSIT,500.00,1704067201000,Opening deposit",
		"1001,WITHDRAWAL,200.00,1704067202000,Cash withdrawal",
		"1001,TRANSFER_OUT,100.00,1704067203000,Transfer to 1002",
		"1002,TRANSFER_IN,100.00,1704067203000,Transfer from 1001",
		"1001,BALANCE_INQUIRY,0.00,1704067204000,Balance inquiry",
		"1001,DEPOSIT,300.00,1704067205000,Cash deposit,1000.00",
		"1001,WITHDRAWAL,100.00,1704067206000,Cash withdrawal",
	}, "\n") + "\n"
	if err := os.WriteFile(s.transactions, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadTransactions()
	if err != nil {
		t.Fatalf("LoadTransactions err=%v", err)
	}
	want := []int64{100000, 50000, 80000, 70000, 60000, 70000, 100000, 90000}
	if len(got) != len(want) {
		t.Fatalf("want %d transactions, got %d (%s)", len(want), len(got), logs.String())
	}
	for i, w := range want {
		if got[i].BalanceAfter != w {
			t.Fatalf("tx %d balanceAfter=%d want=%d", i, got[i].BalanceAfter, w)
		}
	}
	if got[0].Description != "Opening deposit" || !got[0].Time.Equal(time.UnixMilli(1704067200000)) {
		t.Fatalf("legacy fields mismatch: %+v", got[0])
	}
	if strings.Contains(logs.String(), "skipping malformed line") {
		t.Fatalf("legacy rows must not be reported as malformed: %s", logs.String())
	}
}

// TestAppendTruncatesOnSyncFailure fsync 失敗時，已寫入的資料要被截掉，
// 否則回滾後的交易會在下次載入時重新出現。
func TestAppendTruncatesOnSyncFailure(t *testing.T) {
	s, _ := newTestStore(t)
	first := TransactionRecord{AccountNumber: "1001", Type: "DEPOSIT", Amount: 10000, Time: time.UnixMilli(1700000000000).UTC(), Description: "Cash deposit", BalanceAfter: 10000}
	if err := s.AppendTransactions([]TransactionRecord{first}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(s.transactions)

	errIO := errors.New("input/output error")
	orig := syncFile
	syncFile = func(*os.File) error { return errIO }
	t.Cleanup(func() { syncFile = orig })

	second := first
	second.Amount, second.BalanceAfter = 20000, 30000
	if err := s.AppendTransactions([]TransactionRecord{second}); !errors.Is(err, errIO) {
		t.Fatalf("want sync error, got %v", err)
	}
	after, _ := os.ReadFile(s.transactions)
	if !bytes.Equal(before, after) {
		t.Fatalf("failed append left data behind:\nbefore=%q\nafter=%q", before, after)
	}

	// ✅ 恢復後可正常追加，且只有兩筆
	syncFile = orig
	if err := s.AppendTransactions([]TransactionRecord{second}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.LoadTransactions()
	if len(got) != 2 || got[1] != second {
		t.Fatalf("unexpected journal: %+v", got)
	}
}

func TestCopyTo(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SaveAccounts([]AccountRecord{{Number: "1", Pin: "1111", Holder: "A", Balance: 50000}}); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "snap")
	if err := s.CopyTo(dst); err != nil {
		t.Fatalf("CopyTo err=%v", err)
	}
	src, _ := os.ReadFile(s.accounts)
	cp, err := os.ReadFile(filepath.Join(dst, "accounts.txt"))
	if err != nil || !bytes.Equal(src, cp) {
		t.Fatalf("backup mismatch err=%v", err)
	}
	// 尚未建立的交易檔不該出現在備份中
	if _, err := os.Stat(filepath.Join(dst, "transactions.txt")); !os.IsNotExist(err) {
		t.Fatalf("missing source should be skipped, stat err=%v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1500", 150000, true},
		{"1500.5", 150050, true},
		{" 0.01 ", 1, true},
		{"-200.00", -20000, true},
		{"1.001", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.5E2", 0, false},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if (err == nil) != c.ok || (c.ok && got != c.want) {
			t.Errorf("ParseAmount(%q) = %d, %v; want %d ok=%v", c.in, got, err, c.want, c.ok)
		}
	}
	if FormatAmount(150000) != "1500.00" || FormatAmount(5) != "0.05" {
		t.Fatalf("FormatAmount mismatch: %s %s", FormatAmount(150000), FormatAmount(5))
	}
}

func TestMalformedRecordSentinel(t *testing.T) {
	_, _, err := parseTransactionRecord([]string{"1", "DEPOSIT"})
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("want ErrMalformedRecord, got %v", err)
	}
}

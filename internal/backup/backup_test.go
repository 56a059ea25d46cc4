package backup

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

func TestRunOnceCopiesAndPrunes(t *testing.T) {
	data := t.TempDir()
	fs, err := storage.NewFileStore(storage.Paths{Dir: data}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.SaveAccounts([]storage.AccountRecord{{Number: "1001", Pin: "1234", Holder: "Alice", Balance: 150000}}); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "backups")
	job := NewJob(fs, dir, 2, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	job.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}

	var last string
	for i := 0; i < 3; i++ {
		if last, err = job.RunOnce(); err != nil {
			t.Fatalf("RunOnce err=%v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 backups kept, got %d", len(entries))
	}
	if entries[0].Name() != base.Add(2*time.Minute).Format(stampLayout) {
		t.Fatalf("oldest backup should be pruned, got %s", entries[0].Name())
	}
	if _, err := os.Stat(filepath.Join(last, "accounts.txt")); err != nil {
		t.Fatalf("accounts file missing from backup: %v", err)
	}
}

func TestPruneIgnoresForeignDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "keep-me"), 0o755); err != nil {
		t.Fatal(err)
	}
	job := NewJob(nil, dir, 1, nil)
	if err := job.prune(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep-me")); err != nil {
		t.Fatalf("unrelated directory removed: %v", err)
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewJob(nil, t.TempDir(), 1, nil), "not a schedule", nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

type countingGuard struct {
	mu     sync.Mutex
	held   bool
	called int
}

func (g *countingGuard) Backup(fn func() error) error {
	g.mu.Lock()
	g.held = true
	g.called++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.held = false
		g.mu.Unlock()
	}()
	return fn()
}

type sourceFunc func(dir string) error

func (f sourceFunc) CopyTo(dir string) error { return f(dir) }

func TestGuardedCopiesInsideGuard(t *testing.T) {
	g := &countingGuard{}
	inside := false
	src := sourceFunc(func(string) error {
		g.mu.Lock()
		inside = g.held
		g.mu.Unlock()
		return nil
	})

	job := NewJob(Guarded(src, g), t.TempDir(), 1, nil)
	if _, err := job.RunOnce(); err != nil {
		t.Fatalf("RunOnce err=%v", err)
	}
	if g.called != 1 || !inside {
		t.Fatalf("copy should run inside the guard: called=%d inside=%v", g.called, inside)
	}
}

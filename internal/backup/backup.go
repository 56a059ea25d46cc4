// internal/backup/backup.go
//
// 定期把三個資料檔複製到 BACKUP_DIR/<時間戳>/，只保留最近 keep 份。
// 複製由 storage.FileStore.CopyTo 完成；以 Guarded 包住後改在 bank 的讀鎖內執行，
// 三個檔案之間不會出現「餘額已寫、交易紀錄還沒寫」的狀態。
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// Source 為可被備份的資料來源。
type Source interface {
	CopyTo(dir string) error
}

// Guard 讓備份在呼叫端的鎖內執行（*bank.Bank 實作此介面）。
type Guard interface {
	Backup(fn func() error) error
}

type guarded struct {
	src   Source
	guard Guard
}

func (g guarded) CopyTo(dir string) error {
	return g.guard.Backup(func() error { return g.src.CopyTo(dir) })
}

// Guarded 回傳一個在 guard 鎖內呼叫 src.CopyTo 的 Source。
func Guarded(src Source, guard Guard) Source {
	return guarded{src: src, guard: guard}
}

// stampLayout 目錄名稱；字典序即時間序。
const stampLayout = "20060102T150405.000Z"

// Job 執行一次備份並清除過舊的備份。
type Job struct {
	src    Source
	dir    string
	keep   int
	logger *slog.Logger
	now    func() time.Time
}

func NewJob(src Source, dir string, keep int, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if keep < 1 {
		keep = 1
	}
	return &Job{src: src, dir: dir, keep: keep, logger: logger.With("component", "backup"), now: time.Now}
}

// RunOnce 回傳本次備份目錄。
func (j *Job) RunOnce() (string, error) {
	target := filepath.Join(j.dir, j.now().UTC().Format(stampLayout))
	if err := j.src.CopyTo(target); err != nil {
		return "", fmt.Errorf("backup to %s: %w", target, err)
	}
	if err := j.prune(); err != nil {
		return target, fmt.Errorf("prune backups: %w", err)
	}
	return target, nil
}

// Run 給 cron 呼叫；錯誤只記錄。
func (j *Job) Run() {
	target, err := j.RunOnce()
	if err != nil {
		j.logger.Error("backup failed", "error", err)
		return
	}
	j.logger.Info("backup written", "dir", target)
}

func (j *Job) prune() error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(stampLayout, e.Name()); err == nil {
			names = append(names, e.Name())
		}
	}
	if len(names) <= j.keep {
		return nil
	}
	slices.Sort(names)
	for _, name := range names[:len(names)-j.keep] {
		if err := os.RemoveAll(filepath.Join(j.dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Scheduler manages the cron backup job.
type Scheduler struct {
	cron     *cron.Cron
	job      *Job
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(job *Job, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{cron: c, job: job, schedule: schedule, logger: logger}
}

// Start registers the job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddJob(s.schedule, s.job); err != nil {
		return fmt.Errorf("schedule backup job %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled backup job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

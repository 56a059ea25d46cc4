// cmd/server/main.go

// 本服務提供 ATM 帳務的本機 RESTful API：開戶、登入、存提款、轉帳、改 PIN、交易紀錄與管理員功能。
// 此檔案負責初始化各模組（config, logging, storage, bank, events, backup, server），
// 啟動時從資料檔載入狀態，並在收到 SIGINT/SIGTERM 時優雅關閉。
// 每次成功變更都已由 bank 即時寫檔，結束時不需要再另外保存。

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/backup"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/config"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/events"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/logging"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/server"
	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"
)

func main() {
	// .env 只在本機開發使用，不存在時忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store, err := storage.NewFileStore(storage.Paths{
		Dir:          cfg.DataDir,
		Accounts:     cfg.AccountsFile,
		Transactions: cfg.TransactionsFile,
		Deleted:      cfg.DeletedAccountsFile,
	}, logger)
	if err != nil {
		logger.Error("failed to prepare data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	// 事件發送：沒有設定或連不上 RabbitMQ 時改用 Fallback
	var publisher events.Publisher = &events.Fallback{Log: logger}
	if cfg.RabbitMQURL != "" {
		p, err := events.NewProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events disabled", "error", err)
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	policy, err := bank.ParseRestorePolicy(cfg.RestorePinPolicy)
	if err != nil {
		logger.Error("invalid restore policy", "error", err)
		os.Exit(1)
	}

	// 初始化銀行核心模組，並從資料檔載入帳戶、交易與刪除封存
	b, err := bank.Open(store,
		bank.WithLogger(logger),
		bank.WithNotifier(events.NewNotifier(publisher, cfg.EventsExchange, logger)),
		bank.WithRestorePolicy(policy, cfg.DefaultRestorePin),
	)
	if err != nil {
		logger.Error("failed to load ledger", "error", err)
		os.Exit(1)
	}

	if cfg.BackupSchedule != "" {
		// 在 bank 的讀鎖內複製，三個檔案彼此一致
		job := backup.NewJob(backup.Guarded(store, b), cfg.BackupDir, cfg.BackupKeep, logger)
		sched := backup.NewScheduler(job, cfg.BackupSchedule, logger)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start backup scheduler", "error", err)
			os.Exit(1)
		}
		defer func() { <-sched.Stop().Done() }()
	}

	s := server.NewServer(b, server.Options{
		JWTSecret:          []byte(cfg.JWTSecret),
		SessionTTL:         cfg.SessionTTL,
		AdminUsername:      cfg.AdminUsername,
		AdminPasswordHash:  []byte(cfg.AdminPasswordHash),
		AllowRemote:        cfg.AllowRemote,
		AllowedOrigins:     cfg.Origins(),
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ATM ledger server running", "addr", srv.Addr, "allow_remote", cfg.AllowRemote)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 監聽 SIGINT/SIGTERM，收到後停止接受新請求並等進行中的請求完成
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// internal/events/notifier.go
//
// Notifier 把 bank 成功落盤的交易轉成 LedgerEvent 發出，routing key 為 "ledger.<type>"。
// 發送失敗只記錄警告；帳本才是事實來源，事件是盡力而為。
package events

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
)

// LedgerEvent represents the payload published for each committed transaction.
type LedgerEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	Type          string    `json:"type"`
	AccountNumber string    `json:"account_number"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

const publishTimeout = 5 * time.Second

type Notifier struct {
	pub      Publisher
	exchange string
	log      *slog.Logger
}

func NewNotifier(pub Publisher, exchange string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, exchange: exchange, log: logger.With("component", "events")}
}

// RoutingKey 例如 TRANSFER_OUT → "ledger.transfer_out"。
func RoutingKey(t bank.TransactionType) string {
	return "ledger." + strings.ToLower(string(t))
}

func newLedgerEvent(tx bank.Transaction) LedgerEvent {
	return LedgerEvent{
		EventID:       uuid.New(),
		Type:          string(tx.Type),
		AccountNumber: tx.AccountNumber,
		Amount:        tx.Amount.String(),
		BalanceAfter:  tx.BalanceAfter.String(),
		Description:   tx.Description,
		Timestamp:     tx.Timestamp,
	}
}

// TransactionsCommitted implements bank.Notifier.
// 請求結束後 ctx 可能被取消，所以改用不會被取消的 context 加上逾時。
func (n *Notifier) TransactionsCommitted(ctx context.Context, txs []bank.Transaction) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, tx := range txs {
		ev := newLedgerEvent(tx)
		if err := n.pub.Publish(ctx, n.exchange, RoutingKey(tx.Type), ev); err != nil {
			n.log.WarnContext(ctx, "publish ledger event failed",
				"event_id", ev.EventID, "type", ev.Type, "account", ev.AccountNumber, "err", err)
		}
	}
}

// internal/bank/convert.go
//
// 領域型別與 storage 記錄之間的轉換。
package bank

import "github.com/PAD-934/ATMsimulatorbank-sub000/internal/storage"

func toAccountRecord(a Account) storage.AccountRecord {
	return storage.AccountRecord{Number: a.Number, Pin: a.Pin, Holder: a.Holder, Balance: int64(a.Balance)}
}

func fromAccountRecord(r storage.AccountRecord) Account {
	return Account{Number: r.Number, Pin: r.Pin, Holder: r.Holder, Balance: Money(r.Balance)}
}

func toTransactionRecord(t Transaction) storage.TransactionRecord {
	return storage.TransactionRecord{
		AccountNumber: t.AccountNumber,
		Type:          string(t.Type),
		Amount:        int64(t.Amount),
		Time:          t.Timestamp,
		Description:   t.Description,
		BalanceAfter:  int64(t.BalanceAfter),
	}
}

func fromTransactionRecord(r storage.TransactionRecord) Transaction {
	return Transaction{
		AccountNumber: r.AccountNumber,
		Type:          TransactionType(r.Type),
		Amount:        Money(r.Amount),
		BalanceAfter:  Money(r.BalanceAfter),
		Timestamp:     r.Time,
		Description:   r.Description,
	}
}

func toDeletedRecord(d DeletedAccount) storage.DeletedRecord {
	return storage.DeletedRecord{
		Number:       d.AccountNumber,
		Holder:       d.Holder,
		FinalBalance: int64(d.FinalBalance),
		DeletedAt:    d.DeletedAt,
		Reason:       d.Reason,
		Pin:          d.Pin,
	}
}

func fromDeletedRecord(r storage.DeletedRecord) DeletedAccount {
	return DeletedAccount{
		AccountNumber: r.Number,
		Holder:        r.Holder,
		FinalBalance:  Money(r.FinalBalance),
		DeletedAt:     r.DeletedAt,
		Reason:        r.Reason,
		Pin:           r.Pin,
	}
}

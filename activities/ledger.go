package activities

import (
	"sync"
	"time"
)

// PaymentRecord is one settled charge.
type PaymentRecord struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	ChargedAt time.Time `json:"charged_at"`
}

// PaymentLedger is an idempotent charge store keyed by payment id. Charging
// the same payment id twice returns the original settled record; a retried
// charge step never produces a second charge.
type PaymentLedger struct {
	mu      sync.Mutex
	records map[string]PaymentRecord
}

// NewPaymentLedger creates an empty ledger.
func NewPaymentLedger() *PaymentLedger {
	return &PaymentLedger{records: make(map[string]PaymentRecord)}
}

// Charge settles a payment. It returns the record and whether this call
// created it; a repeat of an already-settled payment id returns the
// existing record unchanged.
func (l *PaymentLedger) Charge(paymentID, orderID string, amount int) (PaymentRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.records[paymentID]; ok {
		return record, false
	}

	record := PaymentRecord{
		PaymentID: paymentID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    "charged",
		ChargedAt: time.Now().UTC(),
	}
	l.records[paymentID] = record
	return record, true
}

// Len returns the number of settled charges.
func (l *PaymentLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

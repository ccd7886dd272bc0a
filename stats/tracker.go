// Package stats tracks the progress of a disperse run.
package stats

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/okx/disperser/disperse"
)

var _ disperse.RecordKeeper = (*Tracker)(nil)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RecipientsPaid   int
	ConfirmedBatches int
	FailedAttempts   int
	GasUsed          uint64
	ValueSent        *big.Int
	Elapsed          time.Duration
	// RecipientsPerMinute is zero until a minute fraction has elapsed.
	RecipientsPerMinute float64
}

// Tracker counts outcomes on their way to the next RecordKeeper and logs
// progress after every batch.
type Tracker struct {
	mu   sync.RWMutex
	next disperse.RecordKeeper
	log  log.Logger
	now  func() time.Time

	amount    *uint256.Int
	startTime time.Time

	recipientsPaid   int
	confirmedBatches int
	failedAttempts   int
	gasUsed          uint64
	valueSent        *uint256.Int
}

// NewTracker returns a Tracker for a run paying amount to each recipient.
// next may be nil.
func NewTracker(next disperse.RecordKeeper, amount *uint256.Int, l log.Logger) *Tracker {
	return &Tracker{
		next:      next,
		log:       l,
		now:       time.Now,
		amount:    amount.Clone(),
		startTime: time.Now(),
		valueSent: new(uint256.Int),
	}
}

func (t *Tracker) Record(outcome disperse.BatchOutcome) {
	t.mu.Lock()
	switch o := outcome.(type) {
	case *disperse.Success:
		t.confirmedBatches++
		t.recipientsPaid += o.Batch.Len()
		t.gasUsed += o.GasUsed
		paid := new(uint256.Int).Mul(t.amount, uint256.NewInt(uint64(o.Batch.Len())))
		t.valueSent.Add(t.valueSent, paid)
	case *disperse.Failure:
		t.failedAttempts++
	}
	t.mu.Unlock()

	if t.next != nil {
		t.next.Record(outcome)
	}
	t.logProgress(false)
}

// Snapshot returns the current statistics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	elapsed := t.now().Sub(t.startTime)
	var rate float64
	if elapsed > 0 {
		rate = float64(t.recipientsPaid) / elapsed.Minutes()
	}
	return Snapshot{
		RecipientsPaid:      t.recipientsPaid,
		ConfirmedBatches:    t.confirmedBatches,
		FailedAttempts:      t.failedAttempts,
		GasUsed:             t.gasUsed,
		ValueSent:           t.valueSent.ToBig(),
		Elapsed:             elapsed,
		RecipientsPerMinute: rate,
	}
}

// LogFinal logs the final statistics of the run.
func (t *Tracker) LogFinal() {
	t.logProgress(true)
}

func (t *Tracker) logProgress(final bool) {
	s := t.Snapshot()
	msg := "Run progress"
	if final {
		msg = "Final run statistics"
	}
	t.log.Info(msg,
		"paid", s.RecipientsPaid,
		"confirmedBatches", s.ConfirmedBatches,
		"failedAttempts", s.FailedAttempts,
		"gasUsed", s.GasUsed,
		"sent", disperse.FormatEther(s.ValueSent)+" ETH",
		"rate", fmt.Sprintf("%.2f/min", s.RecipientsPerMinute),
		"elapsed", s.Elapsed.Round(time.Second).String(),
	)
}

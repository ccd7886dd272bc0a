// Package records persists batch outcomes as JSON Lines.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/disperser/disperse"
)

const queueSize = 10000

var (
	_ disperse.RecordKeeper = (*Keeper)(nil)

	// ErrPersistence marks a record that could not be written. It is only
	// ever logged.
	ErrPersistence = errors.New("failed to persist record")
)

// SuccessRecord is one line of the success log.
type SuccessRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	RunID          string           `json:"runId"`
	Batch          int              `json:"batch"`
	Attempt        int              `json:"attempt"`
	RecipientCount int              `json:"recipientCount"`
	TxHash         common.Hash      `json:"txHash"`
	BlockNumber    uint64           `json:"blockNumber"`
	GasUsed        uint64           `json:"gasUsed"`
	Recipients     []common.Address `json:"recipients"`
}

// FailureRecord is one line of the error log.
type FailureRecord struct {
	Timestamp  time.Time        `json:"timestamp"`
	RunID      string           `json:"runId"`
	Batch      int              `json:"batch"`
	Attempt    int              `json:"attempt"`
	Stage      disperse.Stage   `json:"stage"`
	Recipients []common.Address `json:"recipients"`
	Error      string           `json:"error"`
	TxHash     *common.Hash     `json:"txHash,omitempty"`
}

type entry struct {
	sink string
	w    io.Writer
	line []byte
}

// Keeper queues records to a single writer goroutine so Record never waits
// on disk. Records reach each sink in the order they were recorded.
type Keeper struct {
	success io.Writer
	failure io.Writer
	closers []io.Closer
	runID   string
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}

	warnings atomic.Int64
	log      log.Logger
}

// NewKeeper starts a keeper writing to the given sinks.
func NewKeeper(success, failure io.Writer, runID string, logger log.Logger) *Keeper {
	k := &Keeper{
		success: success,
		failure: failure,
		runID:   runID,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan entry, queueSize),
		done:    make(chan struct{}),
		log:     logger,
	}
	go k.loop()
	return k
}

// Open appends to the files at successPath and errorPath, creating them when
// missing.
func Open(successPath, errorPath, runID string, logger log.Logger) (*Keeper, error) {
	success, err := openAppend(successPath)
	if err != nil {
		return nil, err
	}
	failure, err := openAppend(errorPath)
	if err != nil {
		success.Close()
		return nil, err
	}
	k := NewKeeper(success, failure, runID, logger)
	k.closers = []io.Closer{success, failure}
	logger.Info("Recording outcomes", "success", successPath, "errors", errorPath)
	return k, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file %s: %w", path, err)
	}
	return f, nil
}

// Record queues one line for outcome.
func (k *Keeper) Record(outcome disperse.BatchOutcome) {
	e, err := k.encode(outcome)
	if err != nil {
		k.warn("encode", err)
		return
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		k.warn(e.sink, errors.New("keeper is closed"))
		return
	}
	k.queue <- e
}

func (k *Keeper) encode(outcome disperse.BatchOutcome) (entry, error) {
	switch o := outcome.(type) {
	case *disperse.Success:
		line, err := json.Marshal(SuccessRecord{
			Timestamp:      k.now(),
			RunID:          k.runID,
			Batch:          o.Batch.Number(),
			Attempt:        o.Attempt,
			RecipientCount: o.Batch.Len(),
			TxHash:         o.TxHash,
			BlockNumber:    o.BlockNumber,
			GasUsed:        o.GasUsed,
			Recipients:     o.Batch.Recipients,
		})
		return entry{sink: "success", w: k.success, line: line}, err
	case *disperse.Failure:
		rec := FailureRecord{
			Timestamp:  k.now(),
			RunID:      k.runID,
			Batch:      o.Batch.Number(),
			Attempt:    o.Attempt,
			Stage:      o.Stage,
			Recipients: o.Batch.Recipients,
			Error:      o.Message(),
		}
		if o.TxHash != (common.Hash{}) {
			hash := o.TxHash
			rec.TxHash = &hash
		}
		line, err := json.Marshal(rec)
		return entry{sink: "error", w: k.failure, line: line}, err
	default:
		return entry{}, fmt.Errorf("unknown outcome %T", outcome)
	}
}

func (k *Keeper) loop() {
	defer close(k.done)
	for e := range k.queue {
		if _, err := e.w.Write(append(e.line, '\n')); err != nil {
			k.warn(e.sink, err)
		}
	}
}

func (k *Keeper) warn(sink string, err error) {
	k.warnings.Add(1)
	k.log.Warn("Record not persisted", "sink", sink, "err", fmt.Errorf("%w: %w", ErrPersistence, err))
}

// Warnings is the number of records that could not be persisted.
func (k *Keeper) Warnings() int64 {
	return k.warnings.Load()
}

// Close flushes queued records and closes files opened by Open. It is safe
// to call more than once.
func (k *Keeper) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	<-k.done
	var errs []error
	for _, c := range k.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

package disperse

import (
	"github.com/ethereum/go-ethereum/common"
)

// Batcher partitions recipients into batches of at most size entries. Batches
// are cut on demand, so iterating again starts from the first batch.
type Batcher struct {
	recipients []common.Address
	size       int
}

// NewBatcher returns a Batcher over recipients. The slice is not copied.
func NewBatcher(recipients []common.Address, size int) (*Batcher, error) {
	if size <= 0 {
		return nil, configErrorf("batch size must be positive, got %d", size)
	}
	return &Batcher{recipients: recipients, size: size}, nil
}

// Len is the number of batches, ceil(N/size).
func (b *Batcher) Len() int {
	return (len(b.recipients) + b.size - 1) / b.size
}

// Batch returns the i-th batch. It panics if i is out of range.
func (b *Batcher) Batch(i int) Batch {
	if i < 0 || i >= b.Len() {
		panic("disperse: batch index out of range")
	}
	start := i * b.size
	end := min(start+b.size, len(b.recipients))
	return Batch{Index: i, Recipients: b.recipients[start:end:end]}
}

// Each calls fn for every batch in order until fn returns false.
func (b *Batcher) Each(fn func(Batch) bool) {
	for i := 0; i < b.Len(); i++ {
		if !fn(b.Batch(i)) {
			return
		}
	}
}

// All materialises every batch.
func (b *Batcher) All() []Batch {
	batches := make([]Batch, 0, b.Len())
	b.Each(func(batch Batch) bool {
		batches = append(batches, batch)
		return true
	})
	return batches
}

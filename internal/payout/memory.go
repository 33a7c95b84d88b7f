package payout

import (
	"context"
	"sync"
)

// Payment is one recorded sink call.
type Payment struct {
	Recipient string
	Amount    uint64
}

// MemorySink credits recipients in memory. The rehearsal tool uses it as the
// custody rail and tests script failures through FailNext.
type MemorySink struct {
	mu       sync.Mutex
	credits  map[string]uint64
	payments []Payment
	failErr  error
	failLeft int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{credits: make(map[string]uint64)}
}

func (s *MemorySink) Pay(_ context.Context, recipient string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLeft != 0 {
		if s.failLeft > 0 {
			s.failLeft--
		}
		return s.failErr
	}
	s.credits[recipient] += amount
	s.payments = append(s.payments, Payment{Recipient: recipient, Amount: amount})
	return nil
}

// FailNext makes the next n payouts fail with err; n < 0 fails every payout
// until FailNext is called again.
func (s *MemorySink) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLeft = n
	s.failErr = err
}

// Credited returns the total amount paid to recipient.
func (s *MemorySink) Credited(recipient string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[recipient]
}

// Payments returns a copy of all successful payments in order.
func (s *MemorySink) Payments() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Payment, len(s.payments))
	copy(out, s.payments)
	return out
}

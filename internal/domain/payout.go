package domain

import "context"

// PayoutSink moves value out of the pool to an external recipient. A call
// either transfers the full amount and returns nil, or transfers nothing and
// returns an error; partial transfers do not happen.
type PayoutSink interface {
	Pay(ctx context.Context, recipient string, amount uint64) error
}

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolkeeper/poolkeeper/internal/domain"
)

// --- Mocks ---

type payment struct {
	recipient string
	amount    uint64
}

type mockSink struct {
	mu       sync.Mutex
	payments []payment
	failErr  error
	failLeft int
}

func (m *mockSink) Pay(_ context.Context, recipient string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLeft != 0 {
		if m.failLeft > 0 {
			m.failLeft--
		}
		return m.failErr
	}
	m.payments = append(m.payments, payment{recipient: recipient, amount: amount})
	return nil
}

// failNext makes the next n payouts fail with err; n < 0 fails every payout.
func (m *mockSink) failNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLeft = n
	m.failErr = err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *mockSink) paidTo(recipient string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total uint64
	for _, p := range m.payments {
		if p.recipient == recipient {
			total += p.amount
		}
	}
	return total
}

func (m *mockSink) last() payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[len(m.payments)-1]
}

type captureJournal struct {
	mu     sync.Mutex
	events []domain.Event
}

func (j *captureJournal) Record(_ context.Context, event domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

func (j *captureJournal) byKind(kind domain.EventKind) []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Event
	for _, e := range j.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// --- Fixture ---

const testOwner = "owner"

type testLedger struct {
	ledger  *Ledger
	clock   *clockwork.FakeClock
	sink    *mockSink
	journal *captureJournal
}

func newTestLedger(t *testing.T, cfg Config) *testLedger {
	t.Helper()
	if cfg.Owner == "" {
		cfg.Owner = testOwner
	}
	clock := clockwork.NewFakeClock()
	sink := &mockSink{}
	journal := &captureJournal{}
	led, err := New(cfg, sink, journal, clock)
	require.NoError(t, err)
	return &testLedger{ledger: led, clock: clock, sink: sink, journal: journal}
}

// --- Construction ---

func TestNew_RequiresOwner(t *testing.T) {
	_, err := New(Config{}, &mockSink{}, &captureJournal{}, clockwork.NewFakeClock())
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

func TestNew_RejectsNegativeCooldown(t *testing.T) {
	cfg := Config{Owner: testOwner, Cooldown: -time.Second}
	_, err := New(cfg, &mockSink{}, &captureJournal{}, clockwork.NewFakeClock())
	require.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestNew_RejectsCooldownBelowFloor(t *testing.T) {
	cfg := Config{Owner: testOwner, Cooldown: 5 * time.Second, CooldownFloor: 10 * time.Second}
	_, err := New(cfg, &mockSink{}, &captureJournal{}, clockwork.NewFakeClock())
	require.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestNew_DisabledWithoutTarget(t *testing.T) {
	tl := newTestLedger(t, Config{Threshold: 100})
	policy := tl.ledger.Policy()
	assert.False(t, policy.Enabled)
	assert.Empty(t, policy.Target)
	assert.Equal(t, uint64(1), policy.Minimum, "minimum should default to 1")
}

func TestNew_EnabledWithTarget(t *testing.T) {
	tl := newTestLedger(t, Config{Threshold: 100, Target: "treasury"})
	policy := tl.ledger.Policy()
	assert.True(t, policy.Enabled)
	assert.Equal(t, "treasury", policy.Target)
}

// --- Deposit ---

func TestDeposit_CreditsAccountAndPool(t *testing.T) {
	tl := newTestLedger(t, Config{Threshold: 100})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 50))

	assert.Equal(t, uint64(50), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(50), tl.ledger.PooledFunds())
	assert.Equal(t, 0, tl.sink.count())

	deposits := tl.journal.byKind(domain.EventDeposit)
	require.Len(t, deposits, 1)
	assert.Equal(t, "alice", deposits[0].Account)
	assert.Equal(t, uint64(50), deposits[0].Amount)
	assert.Equal(t, domain.OutcomeSuccess, deposits[0].Outcome)
	assert.NotEmpty(t, deposits[0].ID)
}

func TestDeposit_AccumulatesAcrossAccounts(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 30))
	require.NoError(t, tl.ledger.Deposit(ctx, "bob", 20))
	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 10))

	assert.Equal(t, uint64(40), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(20), tl.ledger.Balance("bob"))
	assert.Equal(t, uint64(60), tl.ledger.PooledFunds())
}

func TestDeposit_RejectsZeroAmount(t *testing.T) {
	tl := newTestLedger(t, Config{})
	err := tl.ledger.Deposit(context.Background(), "alice", 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, uint64(0), tl.ledger.PooledFunds())
}

func TestDeposit_RejectsEmptyAccount(t *testing.T) {
	tl := newTestLedger(t, Config{})
	err := tl.ledger.Deposit(context.Background(), "", 10)
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

// --- Withdraw ---

func TestWithdraw_RoundTrip(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 100))
	require.NoError(t, tl.ledger.Withdraw(ctx, "alice", 40))

	assert.Equal(t, uint64(60), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(60), tl.ledger.PooledFunds())
	require.Equal(t, 1, tl.sink.count())
	assert.Equal(t, payment{recipient: "alice", amount: 40}, tl.sink.last())
}

func TestWithdraw_RejectsZeroAmount(t *testing.T) {
	tl := newTestLedger(t, Config{})
	err := tl.ledger.Withdraw(context.Background(), "alice", 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestWithdraw_RejectsOverdraw(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 50))
	err := tl.ledger.Withdraw(ctx, "alice", 51)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, uint64(50), tl.ledger.Balance("alice"))
	assert.Equal(t, 0, tl.sink.count())
}

func TestWithdraw_UnknownAccountHasZeroBalance(t *testing.T) {
	tl := newTestLedger(t, Config{})
	err := tl.ledger.Withdraw(context.Background(), "nobody", 1)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestWithdraw_SinkFailureRollsBack(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 100))
	tl.sink.failNext(1, errors.New("rail down"))

	err := tl.ledger.Withdraw(ctx, "alice", 40)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// Debit fully restored.
	assert.Equal(t, uint64(100), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(100), tl.ledger.PooledFunds())

	// Sink healthy again: the same withdrawal goes through.
	require.NoError(t, tl.ledger.Withdraw(ctx, "alice", 40))
	assert.Equal(t, uint64(60), tl.ledger.Balance("alice"))
}

func TestWithdraw_FailsWhenClaimOutgrowsPool(t *testing.T) {
	// A sweep halves the pool but leaves claims standing, so a claim larger
	// than the remaining backing must be refused without touching the sink.
	tl := newTestLedger(t, Config{Threshold: 100, Target: "treasury"})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 200))
	require.Equal(t, uint64(100), tl.ledger.PooledFunds(), "deposit should have swept half")
	require.Equal(t, uint64(200), tl.ledger.Balance("alice"))

	sinkCallsBefore := tl.sink.count()
	err := tl.ledger.Withdraw(ctx, "alice", 150)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, sinkCallsBefore, tl.sink.count())
	assert.Equal(t, uint64(200), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(100), tl.ledger.PooledFunds())

	// Withdrawing within the backing still works.
	require.NoError(t, tl.ledger.Withdraw(ctx, "alice", 100))
	assert.Equal(t, uint64(100), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(0), tl.ledger.PooledFunds())
}

// --- Transfer ---

func TestTransfer_MovesClaimOnly(t *testing.T) {
	tl := newTestLedger(t, Config{Threshold: 10, Target: "treasury"})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 8))
	pooledBefore := tl.ledger.PooledFunds()
	sinkBefore := tl.sink.count()

	require.NoError(t, tl.ledger.Transfer(ctx, "alice", "bob", 5))

	assert.Equal(t, uint64(3), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(5), tl.ledger.Balance("bob"))
	assert.Equal(t, pooledBefore, tl.ledger.PooledFunds())
	// Transfers never touch the sink and never trigger a sweep check.
	assert.Equal(t, sinkBefore, tl.sink.count())

	transfers := tl.journal.byKind(domain.EventTransfer)
	require.Len(t, transfers, 1)
	assert.Equal(t, "alice", transfers[0].Account)
	assert.Equal(t, "bob", transfers[0].Target)
}

func TestTransfer_DoesNotTriggerSweep(t *testing.T) {
	tl := newTestLedger(t, Config{Threshold: 100, Target: "treasury"})
	ctx := context.Background()

	// Pool sits above threshold (single deposit swept half away already).
	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 400))
	require.Equal(t, uint64(200), tl.ledger.PooledFunds())
	sweepsBefore := len(tl.journal.byKind(domain.EventSweep))

	require.NoError(t, tl.ledger.Transfer(ctx, "alice", "bob", 50))

	assert.Equal(t, uint64(200), tl.ledger.PooledFunds())
	assert.Len(t, tl.journal.byKind(domain.EventSweep), sweepsBefore)
}

func TestTransfer_Validation(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()
	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 10))

	tests := []struct {
		name    string
		from    string
		to      string
		amount  uint64
		wantErr error
	}{
		{name: "empty recipient", from: "alice", to: "", amount: 5, wantErr: domain.ErrInvalidRecipient},
		{name: "self transfer", from: "alice", to: "alice", amount: 5, wantErr: domain.ErrSelfTransfer},
		{name: "zero amount", from: "alice", to: "bob", amount: 0, wantErr: domain.ErrInvalidAmount},
		{name: "insufficient balance", from: "alice", to: "bob", amount: 11, wantErr: domain.ErrInsufficientFunds},
		{name: "unknown sender", from: "ghost", to: "bob", amount: 1, wantErr: domain.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tl.ledger.Transfer(ctx, tt.from, tt.to, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing moved.
	assert.Equal(t, uint64(10), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(0), tl.ledger.Balance("bob"))
}

// --- EmergencyWithdraw ---

func TestEmergencyWithdraw_PaysOwnerFullPool(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 75))
	require.NoError(t, tl.ledger.Deposit(ctx, "bob", 25))

	amount, err := tl.ledger.EmergencyWithdraw(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), amount)
	assert.Equal(t, uint64(0), tl.ledger.PooledFunds())
	assert.Equal(t, uint64(100), tl.sink.paidTo(testOwner))

	// Claims stay recorded even though the backing is gone.
	assert.Equal(t, uint64(75), tl.ledger.Balance("alice"))
	assert.Equal(t, uint64(25), tl.ledger.Balance("bob"))

	// Which means a withdrawal now fails on the pool check.
	err = tl.ledger.Withdraw(ctx, "alice", 75)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
}

func TestEmergencyWithdraw_RequiresOwner(t *testing.T) {
	tl := newTestLedger(t, Config{})
	require.NoError(t, tl.ledger.Deposit(context.Background(), "alice", 10))

	_, err := tl.ledger.EmergencyWithdraw(context.Background(), "alice")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, uint64(10), tl.ledger.PooledFunds())
}

func TestEmergencyWithdraw_EmptyPool(t *testing.T) {
	tl := newTestLedger(t, Config{})
	_, err := tl.ledger.EmergencyWithdraw(context.Background(), testOwner)
	require.ErrorIs(t, err, domain.ErrNoFunds)
}

func TestEmergencyWithdraw_SinkFailureRollsBack(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	require.NoError(t, tl.ledger.Deposit(ctx, "alice", 50))
	tl.sink.failNext(1, errors.New("rail down"))

	_, err := tl.ledger.EmergencyWithdraw(ctx, testOwner)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, uint64(50), tl.ledger.PooledFunds())
}

// --- Accounting identity ---

func TestPooledFunds_AccountingIdentity(t *testing.T) {
	// pooled == deposited - withdrawn - swept, whatever the op mix.
	tl := newTestLedger(t, Config{Threshold: 100, Target: "treasury", Cooldown: time.Minute})
	ctx := context.Background()

	var deposited, withdrawn uint64

	deposit := func(account string, amount uint64) {
		require.NoError(t, tl.ledger.Deposit(ctx, account, amount))
		deposited += amount
	}
	withdraw := func(account string, amount uint64) {
		require.NoError(t, tl.ledger.Withdraw(ctx, account, amount))
		withdrawn += amount
	}

	deposit("alice", 60)
	deposit("bob", 80) // pool 140 -> sweep 70
	withdraw("alice", 20)
	tl.clock.Advance(2 * time.Minute)
	deposit("carol", 90) // pool 140 -> sweep 70
	require.NoError(t, tl.ledger.Transfer(ctx, "bob", "carol", 30))
	withdraw("carol", 50)

	swept := tl.sink.paidTo("treasury")
	assert.Equal(t, uint64(140), swept)
	assert.Equal(t, deposited-withdrawn-swept, tl.ledger.PooledFunds())
}

func TestLedger_ConcurrentDeposits(t *testing.T) {
	tl := newTestLedger(t, Config{})
	ctx := context.Background()

	const goroutines = 10
	const depositsEach = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < depositsEach; j++ {
				_ = tl.ledger.Deposit(ctx, "shared", 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(goroutines*depositsEach), tl.ledger.Balance("shared"))
	assert.Equal(t, uint64(goroutines*depositsEach), tl.ledger.PooledFunds())
}

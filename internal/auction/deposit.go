package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hyunsoo-dev/liveauction/internal/resume"
)

// InsufficientFundsError reports that the deposit balance does not cover the
// auction deposit. It is not a hard failure: it carries what the top-up flow
// needs to resolve it.
type InsufficientFundsError struct {
	Balance           Money
	Deposit           Money
	Shortage          Money
	RecommendedCharge Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("deposit balance %d is short %d of the %d deposit", e.Balance, e.Shortage, e.Deposit)
}

// GatewayError reports a failed payment-gateway round-trip. The resume intent
// has already been discarded when this is returned.
type GatewayError struct {
	OrderID string
	Reason  string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway order %s failed: %s", e.OrderID, e.Reason)
}

// DepositAPI is the slice of the platform backend the deposit guard calls.
type DepositAPI interface {
	AuctionDetail(ctx context.Context, auctionID string) (*Snapshot, error)
	DepositBalance(ctx context.Context) (Money, error)
	CreateParticipation(ctx context.Context, auctionID string, deposit Money) (*Participation, error)
	CreateTopUpOrder(ctx context.Context, amount Money) (*TopUpOrder, error)
}

// GuardConfig holds tunables for the deposit guard.
type GuardConfig struct {
	// TopUpIncrement is the rounding step for the recommended charge.
	TopUpIncrement Money
	// MaxIntentAge is how long a persisted resume intent stays valid before
	// it is discarded unconsumed.
	MaxIntentAge time.Duration
}

// DefaultGuardConfig returns the default deposit guard configuration.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		TopUpIncrement: 10_000,
		MaxIntentAge:   30 * time.Minute,
	}
}

// DepositGuard gates bidding on the per-auction deposit. When the balance is
// short it suspends the caller's intent, persists it, hands off to the payment
// gateway and resumes the original action once the gateway redirects back.
type DepositGuard struct {
	api     DepositAPI
	intents resume.Store
	desk    *BidDesk
	clock   clockwork.Clock
	config  GuardConfig

	mu           sync.Mutex
	balance      Money
	balanceKnown bool
}

// NewDepositGuard creates a guard wired to the given bid desk. desk may be nil
// when the guard only handles gateway callbacks.
func NewDepositGuard(api DepositAPI, intents resume.Store, desk *BidDesk, clock clockwork.Clock, config GuardConfig) *DepositGuard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.TopUpIncrement <= 0 {
		config.TopUpIncrement = DefaultGuardConfig().TopUpIncrement
	}
	if config.MaxIntentAge <= 0 {
		config.MaxIntentAge = DefaultGuardConfig().MaxIntentAge
	}
	return &DepositGuard{
		api:     api,
		intents: intents,
		desk:    desk,
		clock:   clock,
		config:  config,
	}
}

// Balance returns the last known deposit balance and whether one is cached.
func (g *DepositGuard) Balance() (Money, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, g.balanceKnown
}

func (g *DepositGuard) setBalance(balance Money) {
	g.mu.Lock()
	g.balance = balance
	g.balanceKnown = true
	g.mu.Unlock()
}

// RequestParticipation pays the auction deposit for the caller. With enough
// balance it creates the participation record and debits the local balance
// cache. Otherwise it returns an *InsufficientFundsError describing the
// shortage; the caller confirms and continues with BeginTopUp.
func (g *DepositGuard) RequestParticipation(ctx context.Context, auctionID string) error {
	detail, err := g.api.AuctionDetail(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("fetch auction %s: %w", auctionID, err)
	}

	balance, err := g.api.DepositBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch deposit balance: %w", err)
	}
	g.setBalance(balance)

	if balance < detail.DepositAmount {
		shortage := detail.DepositAmount - balance
		return &InsufficientFundsError{
			Balance:           balance,
			Deposit:           detail.DepositAmount,
			Shortage:          shortage,
			RecommendedCharge: roundUpTo(shortage, g.config.TopUpIncrement),
		}
	}

	participation, err := g.api.CreateParticipation(ctx, auctionID, detail.DepositAmount)
	if err != nil {
		return fmt.Errorf("create participation for auction %s: %w", auctionID, err)
	}
	g.setBalance(balance - detail.DepositAmount)

	if g.desk != nil && g.desk.AuctionID() == auctionID {
		g.desk.SetParticipation(*participation)
	}

	log.Info().
		Str("auction_id", auctionID).
		Int64("deposit", int64(detail.DepositAmount)).
		Msg("auction deposit paid")
	return nil
}

// BeginTopUp creates a top-up order for charge against the payment gateway and
// persists the resume intent before the caller redirects away. pendingBid is
// the bid amount to re-attempt after the round-trip, zero when the user had
// not entered one.
func (g *DepositGuard) BeginTopUp(ctx context.Context, auctionID string, charge, pendingBid Money) (*TopUpOrder, error) {
	order, err := g.api.CreateTopUpOrder(ctx, charge)
	if err != nil {
		return nil, fmt.Errorf("create top-up order: %w", err)
	}

	intent := resume.Intent{
		Kind:      resume.KindAuctionDeposit,
		TargetID:  auctionID,
		Amount:    int64(pendingBid),
		CreatedAt: g.clock.Now(),
	}
	if err := g.intents.Put(intent); err != nil {
		return nil, fmt.Errorf("persist resume intent: %w", err)
	}

	log.Info().
		Str("auction_id", auctionID).
		Str("order_id", order.OrderID).
		Int64("charge", int64(charge)).
		Msg("redirecting to payment gateway for deposit top-up")
	return order, nil
}

// ResumeAfterTopUp handles the gateway's redirect back. The persisted intent
// is read and cleared exactly once; on a successful charge the original
// participation (and pending bid, if any) is re-attempted without further user
// input. A callback with no pending intent does nothing.
func (g *DepositGuard) ResumeAfterTopUp(ctx context.Context, result GatewayResult) error {
	intent, ok, err := g.intents.Take()
	if err != nil {
		return fmt.Errorf("read resume intent: %w", err)
	}
	if !ok {
		log.Debug().Str("order_id", result.OrderID).Msg("gateway callback with no pending intent")
		return nil
	}

	if age := g.clock.Now().Sub(intent.CreatedAt); age > g.config.MaxIntentAge {
		log.Warn().
			Str("target_id", intent.TargetID).
			Dur("age", age).
			Msg("stale resume intent discarded")
		return nil
	}

	if !result.Succeeded {
		return &GatewayError{OrderID: result.OrderID, Reason: result.Message}
	}

	if intent.Kind != resume.KindAuctionDeposit {
		// Order-payment intents belong to the order checkout flow.
		log.Debug().Str("kind", string(intent.Kind)).Msg("resume intent not for an auction deposit")
		return nil
	}

	if err := g.RequestParticipation(ctx, intent.TargetID); err != nil {
		return fmt.Errorf("resume participation for auction %s: %w", intent.TargetID, err)
	}

	if intent.Amount > 0 && g.desk != nil && g.desk.AuctionID() == intent.TargetID {
		if err := g.desk.PlaceBid(ctx, Money(intent.Amount)); err != nil {
			return fmt.Errorf("resume bid for auction %s: %w", intent.TargetID, err)
		}
	}
	return nil
}

// roundUpTo rounds amount up to the next multiple of step.
func roundUpTo(amount, step Money) Money {
	if amount%step == 0 {
		return amount
	}
	return (amount/step + 1) * step
}

package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Validation failures surfaced by PlaceBid. None of them are retried
// automatically.
var (
	ErrLoginRequired   = errors.New("login is required to place a bid")
	ErrSelfBid         = errors.New("sellers cannot bid on their own auction")
	ErrWithdrawn       = errors.New("withdrawn participants cannot bid again")
	ErrDepositRequired = errors.New("the auction deposit has not been paid")
	ErrBidGranularity  = errors.New("bid amount must be a positive multiple of 100")
	ErrBidTooLow       = errors.New("bid amount is below the minimum allowed")
	ErrBidInFlight     = errors.New("a bid submission is already in progress")
)

// BidSubmitter sends an accepted-for-submission bid to the backend command
// endpoint. Implemented by the platform client.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, auctionID string, amount Money) error
}

// BidDesk runs the bid submission workflow for one auction view: the
// precondition chain, the command call and the optimistic participation
// update. Submissions are serialized; a second call while one is in flight
// fails with ErrBidInFlight.
type BidDesk struct {
	auctionID string
	userID    string

	reconciler *Reconciler
	submitter  BidSubmitter

	mu            sync.Mutex
	participation Participation

	inFlight atomic.Bool
}

// NewBidDesk creates the bid workflow for one auction view. An empty userID
// means the caller is not authenticated.
func NewBidDesk(auctionID, userID string, reconciler *Reconciler, submitter BidSubmitter) *BidDesk {
	return &BidDesk{
		auctionID:  auctionID,
		userID:     userID,
		reconciler: reconciler,
		submitter:  submitter,
	}
}

// AuctionID returns the auction this desk submits bids for.
func (d *BidDesk) AuctionID() string { return d.auctionID }

// SetParticipation replaces the cached participation record, e.g. after the
// deposit guard created one.
func (d *BidDesk) SetParticipation(p Participation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participation = p
}

// Participation returns a copy of the cached participation record.
func (d *BidDesk) Participation() Participation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.participation
}

// PlaceBid validates amount against the business rules and submits it to the
// backend. Every precondition is checked before any network call. On success
// the participation record is optimistically updated and, when the push
// connection is degraded, the read model is refetched.
func (d *BidDesk) PlaceBid(ctx context.Context, amount Money) error {
	if !d.inFlight.CompareAndSwap(false, true) {
		return ErrBidInFlight
	}
	defer d.inFlight.Store(false)

	if d.userID == "" {
		return ErrLoginRequired
	}

	snapshot := d.reconciler.Snapshot()
	if snapshot.SellerID == d.userID {
		return ErrSelfBid
	}

	participation := d.Participation()
	if participation.IsWithdrawn {
		return ErrWithdrawn
	}
	if !participation.IsParticipated {
		// The deposit guard takes over from here.
		return ErrDepositRequired
	}

	if amount <= 0 || amount%BidUnit != 0 {
		return ErrBidGranularity
	}
	if snapshot.CurrentBid == 0 {
		if amount < snapshot.StartBid {
			return fmt.Errorf("%w: first bid must be at least %d", ErrBidTooLow, snapshot.StartBid)
		}
	} else if amount <= snapshot.CurrentBid {
		return fmt.Errorf("%w: bid must exceed the current bid of %d", ErrBidTooLow, snapshot.CurrentBid)
	}

	if err := d.submitter.SubmitBid(ctx, d.auctionID, amount); err != nil {
		return fmt.Errorf("submit bid: %w", err)
	}

	d.mu.Lock()
	d.participation.LastBidPrice = amount
	d.mu.Unlock()

	log.Info().
		Str("auction_id", d.auctionID).
		Int64("amount", int64(amount)).
		Msg("bid submitted")

	if err := d.reconciler.AfterBidSubmitted(ctx); err != nil {
		// The bid went through; a failed fallback refetch only delays the
		// read model until the next page load.
		log.Warn().Err(err).Str("auction_id", d.auctionID).Msg("post-bid resync failed")
	}
	return nil
}

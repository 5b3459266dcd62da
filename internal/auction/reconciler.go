package auction

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Refetcher reloads the read model from the backend when push delivery cannot
// be trusted. Implemented by the platform client.
type Refetcher interface {
	AuctionDetail(ctx context.Context, auctionID string) (*Snapshot, error)
	BidHistory(ctx context.Context, auctionID string, page, size int) (*HistoryPage, error)
}

// PushProbe reports whether the push connection is currently healthy, i.e.
// push delivery can be trusted to keep the read model up to date.
type PushProbe func() bool

// Reconciler is the single mutation entry point for the per-view read model:
// the auction snapshot, the paginated bid history and the presence counter.
// Events from one push connection are applied in receipt order.
type Reconciler struct {
	mu sync.Mutex

	auctionID string
	snapshot  Snapshot
	pages     []HistoryPage
	seen      map[int64]struct{}

	currentUsers int
	pageSize     int

	refetcher   Refetcher
	pushHealthy PushProbe
}

// NewReconciler creates a reconciler for one auction view. The initial
// snapshot comes from the detail fetch; history pages are loaded separately.
func NewReconciler(snapshot Snapshot, pageSize int, refetcher Refetcher, pushHealthy PushProbe) *Reconciler {
	return &Reconciler{
		auctionID:   snapshot.AuctionID,
		snapshot:    snapshot,
		seen:        make(map[int64]struct{}),
		pageSize:    pageSize,
		refetcher:   refetcher,
		pushHealthy: pushHealthy,
	}
}

// LoadPage adds an externally fetched history page to the read model.
// Pages must be loaded in order, first page first.
func (r *Reconciler) LoadPage(page HistoryPage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pages = append(r.pages, page)
	for _, bid := range page.Bids {
		r.seen[bid.BidSeq] = struct{}{}
	}
}

// Apply merges one decoded push event into the read model. Duplicate
// BidAccepted deliveries (same bid_seq) are discarded, so replaying an event
// never duplicates history rows. An error leaves the caches untouched.
func (r *Reconciler) Apply(event BidEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := event.(type) {
	case UserJoin:
		r.currentUsers = e.CurrentUsers
	case UserLeave:
		r.currentUsers = e.CurrentUsers
	case BidAccepted:
		return r.applyBidLocked(e)
	default:
		return fmt.Errorf("unsupported event type %T", event)
	}
	return nil
}

func (r *Reconciler) applyBidLocked(e BidAccepted) error {
	if e.AuctionID != "" && e.AuctionID != r.auctionID {
		return fmt.Errorf("event for auction %s applied to view of %s", e.AuctionID, r.auctionID)
	}

	// A redelivered bid_seq must leave everything untouched. A resubscribe can
	// replay old events, and an old price written into the snapshot would
	// regress currentBid below the latest accepted bid.
	if _, dup := r.seen[e.BidSeq]; dup {
		log.Debug().
			Str("auction_id", r.auctionID).
			Int64("bid_seq", e.BidSeq).
			Msg("duplicate bid event discarded")
		return nil
	}
	r.seen[e.BidSeq] = struct{}{}

	r.currentUsers = e.CurrentUsers

	// The server is authoritative on price: the snapshot follows the event.
	r.snapshot.CurrentBid = e.BidPrice
	r.snapshot.HighestUserID = e.HighestUserID

	record := BidRecord{
		BidSeq:   e.BidSeq,
		BidPrice: e.BidPrice,
		UserID:   e.HighestUserID,
		Username: e.HighestUsername,
		BidAt:    e.BidAt,
	}
	if len(r.pages) == 0 {
		r.pages = []HistoryPage{{Page: 0}}
	}
	first := &r.pages[0]
	first.Bids = append([]BidRecord{record}, first.Bids...)
	return nil
}

// AfterBidSubmitted runs the fallback consistency path after a local bid
// submission completed. When the push connection is degraded the snapshot and
// the first history page are refetched, since the accepted bid will never
// arrive over the (dead) push channel.
func (r *Reconciler) AfterBidSubmitted(ctx context.Context) error {
	if r.pushHealthy != nil && r.pushHealthy() {
		return nil
	}
	return r.Resync(ctx)
}

// Resync refetches the snapshot and the first history page and replaces the
// local caches. Both fetches must succeed before anything is mutated.
func (r *Reconciler) Resync(ctx context.Context) error {
	if r.refetcher == nil {
		return fmt.Errorf("resync auction %s: no refetcher configured", r.auctionID)
	}

	snapshot, err := r.refetcher.AuctionDetail(ctx, r.auctionID)
	if err != nil {
		return fmt.Errorf("resync auction %s: %w", r.auctionID, err)
	}
	first, err := r.refetcher.BidHistory(ctx, r.auctionID, 0, r.pageSize)
	if err != nil {
		return fmt.Errorf("resync bid history for auction %s: %w", r.auctionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshot = *snapshot
	r.pages = []HistoryPage{*first}
	r.seen = make(map[int64]struct{})
	for _, bid := range first.Bids {
		r.seen[bid.BidSeq] = struct{}{}
	}

	log.Info().Str("auction_id", r.auctionID).Msg("read model resynced from backend")
	return nil
}

// Snapshot returns a copy of the cached auction snapshot.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// History returns a copy of the loaded history pages, newest-first.
func (r *Reconciler) History() []HistoryPage {
	r.mu.Lock()
	defer r.mu.Unlock()

	pages := make([]HistoryPage, len(r.pages))
	for i, p := range r.pages {
		pages[i] = HistoryPage{Page: p.Page, HasMore: p.HasMore, Bids: append([]BidRecord(nil), p.Bids...)}
	}
	return pages
}

// HistoryLen returns the total number of loaded history rows.
func (r *Reconciler) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.pages {
		n += len(p.Bids)
	}
	return n
}

// CurrentUsers returns the live presence counter for the auction room.
func (r *Reconciler) CurrentUsers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentUsers
}

package auction

import (
	"context"
	"testing"
	"time"
)

type fakeRefetcher struct {
	snapshot     Snapshot
	history      HistoryPage
	detailCalls  int
	historyCalls int
}

func (f *fakeRefetcher) AuctionDetail(ctx context.Context, auctionID string) (*Snapshot, error) {
	f.detailCalls++
	snapshot := f.snapshot
	return &snapshot, nil
}

func (f *fakeRefetcher) BidHistory(ctx context.Context, auctionID string, page, size int) (*HistoryPage, error) {
	f.historyCalls++
	history := f.history
	return &history, nil
}

func testSnapshot() Snapshot {
	return Snapshot{
		AuctionID:     "A1",
		Status:        StatusInProgress,
		StartBid:      5000,
		DepositAmount: 20000,
		SellerID:      "seller",
	}
}

func acceptedBid(seq int64, price Money) BidAccepted {
	return BidAccepted{
		BidSeq:          seq,
		BidPrice:        price,
		HighestUserID:   "u1",
		HighestUsername: "alice",
		BidAt:           time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		CurrentUsers:    3,
		AuctionID:       "A1",
	}
}

func TestApplyBidAcceptedUpdatesSnapshotAndHistory(t *testing.T) {
	r := NewReconciler(testSnapshot(), 20, nil, nil)
	r.LoadPage(HistoryPage{Page: 0})

	if err := r.Apply(acceptedBid(1, 5100)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snapshot := r.Snapshot()
	if snapshot.CurrentBid != 5100 || snapshot.HighestUserID != "u1" {
		t.Fatalf("snapshot not updated: %+v", snapshot)
	}
	pages := r.History()
	if len(pages) != 1 || len(pages[0].Bids) != 1 || pages[0].Bids[0].BidSeq != 1 {
		t.Fatalf("history not updated: %+v", pages)
	}
	if r.CurrentUsers() != 3 {
		t.Fatalf("presence counter not updated: %d", r.CurrentUsers())
	}
}

func TestApplyDuplicateBidIsIdempotent(t *testing.T) {
	r := NewReconciler(testSnapshot(), 20, nil, nil)
	event := acceptedBid(5, 6000)

	if err := r.Apply(event); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	lenAfterFirst := r.HistoryLen()
	snapshotAfterFirst := r.Snapshot()

	if err := r.Apply(event); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if got := r.HistoryLen(); got != lenAfterFirst {
		t.Fatalf("duplicate delivery changed history length: %d -> %d", lenAfterFirst, got)
	}
	if r.Snapshot() != snapshotAfterFirst {
		t.Fatalf("duplicate delivery changed snapshot")
	}
}

func TestApplyReplayedOlderBidDoesNotRegressSnapshot(t *testing.T) {
	r := NewReconciler(testSnapshot(), 20, nil, nil)

	if err := r.Apply(acceptedBid(5, 6000)); err != nil {
		t.Fatalf("Apply seq 5: %v", err)
	}
	if err := r.Apply(acceptedBid(7, 7000)); err != nil {
		t.Fatalf("Apply seq 7: %v", err)
	}

	// A resubscribe can re-deliver the older event after the newer one.
	if err := r.Apply(acceptedBid(5, 6000)); err != nil {
		t.Fatalf("replayed Apply: %v", err)
	}
	if got := r.Snapshot().CurrentBid; got != 7000 {
		t.Fatalf("current bid regressed on duplicate replay: got %d, want 7000", got)
	}
	if got := r.HistoryLen(); got != 2 {
		t.Fatalf("expected 2 history rows, got %d", got)
	}
}

func TestApplySkipsBidSeqSeenOnLoadedPages(t *testing.T) {
	r := NewReconciler(testSnapshot(), 2, nil, nil)
	r.LoadPage(HistoryPage{Page: 0, Bids: []BidRecord{{BidSeq: 9, BidPrice: 7000}}})
	r.LoadPage(HistoryPage{Page: 1, Bids: []BidRecord{{BidSeq: 8, BidPrice: 6000}}})

	// Seq 8 lives on the second page; a replayed push event must not prepend it.
	if err := r.Apply(acceptedBid(8, 6000)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := r.HistoryLen(); got != 2 {
		t.Fatalf("expected 2 history rows, got %d", got)
	}
}

func TestApplyPresenceEvents(t *testing.T) {
	r := NewReconciler(testSnapshot(), 20, nil, nil)

	if err := r.Apply(UserJoin{CurrentUsers: 7}); err != nil {
		t.Fatalf("Apply join: %v", err)
	}
	if r.CurrentUsers() != 7 {
		t.Fatalf("expected 7 current users, got %d", r.CurrentUsers())
	}
	if err := r.Apply(UserLeave{CurrentUsers: 6}); err != nil {
		t.Fatalf("Apply leave: %v", err)
	}
	if r.CurrentUsers() != 6 {
		t.Fatalf("expected 6 current users, got %d", r.CurrentUsers())
	}
	// Presence must not leak into the snapshot.
	if r.Snapshot() != testSnapshot() {
		t.Fatalf("presence event mutated the snapshot")
	}
}

func TestApplyRejectsForeignAuctionEvent(t *testing.T) {
	r := NewReconciler(testSnapshot(), 20, nil, nil)
	event := acceptedBid(1, 5100)
	event.AuctionID = "B2"

	if err := r.Apply(event); err == nil {
		t.Fatal("expected an error for a foreign auction event")
	}
	if r.HistoryLen() != 0 {
		t.Fatalf("foreign event mutated history")
	}
	if r.Snapshot().CurrentBid != 0 {
		t.Fatalf("foreign event mutated snapshot")
	}
}

func TestAfterBidSubmittedRefetchesWhenPushDegraded(t *testing.T) {
	refetcher := &fakeRefetcher{
		snapshot: Snapshot{AuctionID: "A1", Status: StatusInProgress, StartBid: 5000, CurrentBid: 5300},
		history:  HistoryPage{Page: 0, Bids: []BidRecord{{BidSeq: 3, BidPrice: 5300}}},
	}
	degraded := false
	r := NewReconciler(testSnapshot(), 20, refetcher, func() bool { return !degraded })

	if err := r.AfterBidSubmitted(context.Background()); err != nil {
		t.Fatalf("AfterBidSubmitted: %v", err)
	}
	if refetcher.detailCalls != 0 || refetcher.historyCalls != 0 {
		t.Fatalf("healthy push must not refetch: %d/%d", refetcher.detailCalls, refetcher.historyCalls)
	}

	degraded = true
	if err := r.AfterBidSubmitted(context.Background()); err != nil {
		t.Fatalf("AfterBidSubmitted degraded: %v", err)
	}
	if refetcher.detailCalls != 1 || refetcher.historyCalls != 1 {
		t.Fatalf("degraded push must refetch both caches: %d/%d", refetcher.detailCalls, refetcher.historyCalls)
	}
	if r.Snapshot().CurrentBid != 5300 {
		t.Fatalf("snapshot not replaced after resync: %+v", r.Snapshot())
	}
	if r.HistoryLen() != 1 {
		t.Fatalf("history not replaced after resync: %d rows", r.HistoryLen())
	}
	// The refetched rows count as seen for later push events.
	if err := r.Apply(acceptedBid(3, 5300)); err != nil {
		t.Fatalf("Apply after resync: %v", err)
	}
	if r.HistoryLen() != 1 {
		t.Fatalf("replayed row duplicated after resync")
	}
}

// Package view owns the live state of one open auction page: the push
// connection, the read-model caches and the bid/deposit workflow, with an
// explicit open/close lifecycle.
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hyunsoo-dev/liveauction/internal/auction"
	"github.com/hyunsoo-dev/liveauction/internal/platform"
	"github.com/hyunsoo-dev/liveauction/internal/realtime"
	"github.com/hyunsoo-dev/liveauction/internal/resume"
)

// Options configures an auction view.
type Options struct {
	AuctionID string
	// UserID of the authenticated user; empty for anonymous viewing.
	UserID string

	API       *platform.Client
	Transport realtime.Transport
	Intents   resume.Store

	Supervisor realtime.Config
	Guard      auction.GuardConfig
	PageSize   int
	Clock      clockwork.Clock

	// OnStateChange is notified on every connection state transition.
	OnStateChange func(realtime.State)
}

// AuctionView is one open auction page. Its caches are not shared with views
// of other auctions; Close releases the push connection and all timers.
type AuctionView struct {
	auctionID string
	api       *platform.Client

	supervisor *realtime.Supervisor
	reconciler *auction.Reconciler
	desk       *auction.BidDesk
	guard      *auction.DepositGuard

	cancel    context.CancelFunc
	closeOnce sync.Once

	mu          sync.Mutex
	loadedPages int
	pageSize    int
}

// Open fetches the initial read model and starts the push connection for one
// auction.
func Open(ctx context.Context, opts Options) (*AuctionView, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}

	snapshot, err := opts.API.AuctionDetail(ctx, opts.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("open auction view: %w", err)
	}
	first, err := opts.API.BidHistory(ctx, opts.AuctionID, 0, opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("open auction view: %w", err)
	}

	var participation auction.Participation
	if opts.UserID != "" {
		record, err := opts.API.ParticipationStatus(ctx, opts.AuctionID)
		if err != nil {
			// Viewing works without it; bidding will refetch as needed.
			log.Warn().Err(err).Str("auction_id", opts.AuctionID).Msg("failed to load participation status")
		} else {
			participation = *record
		}
	}

	var supervisor *realtime.Supervisor
	reconciler := auction.NewReconciler(*snapshot, opts.PageSize, opts.API, func() bool {
		return supervisor.State() == realtime.StateConnected
	})
	reconciler.LoadPage(*first)

	desk := auction.NewBidDesk(opts.AuctionID, opts.UserID, reconciler, opts.API)
	desk.SetParticipation(participation)
	guard := auction.NewDepositGuard(opts.API, opts.Intents, desk, opts.Clock, opts.Guard)

	handler := func(payload []byte) {
		event, err := auction.DecodeBidEvent(payload)
		if err != nil {
			log.Warn().Err(err).Str("auction_id", opts.AuctionID).Msg("dropping malformed push payload")
			return
		}
		if event == nil {
			return
		}
		if err := reconciler.Apply(event); err != nil {
			log.Warn().Err(err).Str("auction_id", opts.AuctionID).Msg("failed to apply push event")
		}
	}

	topic := "auction." + opts.AuctionID
	supervisor = realtime.NewSupervisor(opts.Transport, topic, handler, opts.Supervisor, opts.Clock)
	joinBody, _ := json.Marshal(map[string]string{"auction_id": opts.AuctionID, "user_id": opts.UserID})
	supervisor.SetJoinNotice(topic+".join", joinBody)
	if opts.OnStateChange != nil {
		supervisor.OnStateChange(opts.OnStateChange)
	}

	viewCtx, cancel := context.WithCancel(ctx)
	supervisor.Start(viewCtx)

	log.Info().Str("auction_id", opts.AuctionID).Msg("auction view opened")
	return &AuctionView{
		auctionID:   opts.AuctionID,
		api:         opts.API,
		supervisor:  supervisor,
		reconciler:  reconciler,
		desk:        desk,
		guard:       guard,
		cancel:      cancel,
		loadedPages: 1,
		pageSize:    opts.PageSize,
	}, nil
}

// Close tears the view down: the reconnect timer is cancelled and the push
// connection released. Safe to call multiple times.
func (v *AuctionView) Close() error {
	v.closeOnce.Do(func() {
		v.cancel()
		v.supervisor.Close()
		log.Info().Str("auction_id", v.auctionID).Msg("auction view closed")
	})
	return nil
}

// Snapshot returns the cached auction snapshot.
func (v *AuctionView) Snapshot() auction.Snapshot { return v.reconciler.Snapshot() }

// History returns the loaded bid history pages, newest-first.
func (v *AuctionView) History() []auction.HistoryPage { return v.reconciler.History() }

// CurrentUsers returns the live presence counter.
func (v *AuctionView) CurrentUsers() int { return v.reconciler.CurrentUsers() }

// ConnectionState returns the push connection state.
func (v *AuctionView) ConnectionState() realtime.State { return v.supervisor.State() }

// SetOnline feeds the host's network connectivity signal to the supervisor.
func (v *AuctionView) SetOnline(online bool) { v.supervisor.SetOnline(online) }

// PlaceBid runs the bid submission workflow.
func (v *AuctionView) PlaceBid(ctx context.Context, amount auction.Money) error {
	return v.desk.PlaceBid(ctx, amount)
}

// RequestParticipation pays the auction deposit for the current user.
func (v *AuctionView) RequestParticipation(ctx context.Context) error {
	return v.guard.RequestParticipation(ctx, v.auctionID)
}

// BeginTopUp starts the deposit top-up flow after an insufficient-funds
// condition. The caller redirects the user to the returned checkout URL.
func (v *AuctionView) BeginTopUp(ctx context.Context, charge, pendingBid auction.Money) (*auction.TopUpOrder, error) {
	return v.guard.BeginTopUp(ctx, v.auctionID, charge, pendingBid)
}

// ResumeAfterTopUp handles the payment gateway's redirect back.
func (v *AuctionView) ResumeAfterTopUp(ctx context.Context, result auction.GatewayResult) error {
	return v.guard.ResumeAfterTopUp(ctx, result)
}

// LoadMoreHistory fetches the next bid history page into the read model.
func (v *AuctionView) LoadMoreHistory(ctx context.Context) error {
	v.mu.Lock()
	next := v.loadedPages
	v.mu.Unlock()

	page, err := v.api.BidHistory(ctx, v.auctionID, next, v.pageSize)
	if err != nil {
		return fmt.Errorf("load history page %d: %w", next, err)
	}
	v.reconciler.LoadPage(*page)

	v.mu.Lock()
	v.loadedPages = next + 1
	v.mu.Unlock()
	return nil
}

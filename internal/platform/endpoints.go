package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/hyunsoo-dev/liveauction/internal/auction"
)

// AuctionDetail fetches the auction snapshot.
func (c *Client) AuctionDetail(ctx context.Context, auctionID string) (*auction.Snapshot, error) {
	var snapshot auction.Snapshot
	endpoint := fmt.Sprintf("/api/auctions/%s", url.PathEscape(auctionID))
	if err := c.getJSON(ctx, endpoint, &snapshot); err != nil {
		return nil, fmt.Errorf("get auction detail: %w", err)
	}
	return &snapshot, nil
}

// BidHistory fetches one page of the bid history, newest-first.
func (c *Client) BidHistory(ctx context.Context, auctionID string, page, size int) (*auction.HistoryPage, error) {
	var history auction.HistoryPage
	endpoint := fmt.Sprintf("/api/auctions/%s/bids?page=%d&size=%d", url.PathEscape(auctionID), page, size)
	if err := c.getJSON(ctx, endpoint, &history); err != nil {
		return nil, fmt.Errorf("get bid history: %w", err)
	}
	history.Page = page
	return &history, nil
}

// SubmitBid sends a bid to the command endpoint. Each submission carries a
// client-generated request id so the server can discard a duplicate delivery.
func (c *Client) SubmitBid(ctx context.Context, auctionID string, amount auction.Money) error {
	endpoint := fmt.Sprintf("/api/auctions/%s/bids", url.PathEscape(auctionID))
	req := struct {
		RequestID string        `json:"request_id"`
		Amount    auction.Money `json:"amount"`
	}{RequestID: uuid.NewString(), Amount: amount}
	if err := c.postJSON(ctx, endpoint, req, nil); err != nil {
		return fmt.Errorf("submit bid: %w", err)
	}
	return nil
}

// ParticipationStatus fetches the caller's participation record for the
// auction. A user who never paid the deposit gets a zero record.
func (c *Client) ParticipationStatus(ctx context.Context, auctionID string) (*auction.Participation, error) {
	var participation auction.Participation
	endpoint := fmt.Sprintf("/api/auctions/%s/participation", url.PathEscape(auctionID))
	if err := c.getJSON(ctx, endpoint, &participation); err != nil {
		return nil, fmt.Errorf("get participation status: %w", err)
	}
	return &participation, nil
}

// DepositBalance fetches the caller's current deposit balance.
func (c *Client) DepositBalance(ctx context.Context) (auction.Money, error) {
	var resp struct {
		Balance auction.Money `json:"balance"`
	}
	if err := c.getJSON(ctx, "/api/members/me/deposit", &resp); err != nil {
		return 0, fmt.Errorf("get deposit balance: %w", err)
	}
	return resp.Balance, nil
}

// CreateParticipation pays the auction deposit; the server debits the balance
// and returns the created participation record.
func (c *Client) CreateParticipation(ctx context.Context, auctionID string, deposit auction.Money) (*auction.Participation, error) {
	var participation auction.Participation
	endpoint := fmt.Sprintf("/api/auctions/%s/participation", url.PathEscape(auctionID))
	req := struct {
		DepositAmount auction.Money `json:"deposit_amount"`
	}{DepositAmount: deposit}
	if err := c.postJSON(ctx, endpoint, req, &participation); err != nil {
		return nil, fmt.Errorf("create participation: %w", err)
	}
	return &participation, nil
}

// CreateTopUpOrder creates a deposit top-up order against the payment gateway.
func (c *Client) CreateTopUpOrder(ctx context.Context, amount auction.Money) (*auction.TopUpOrder, error) {
	var order auction.TopUpOrder
	req := struct {
		Amount auction.Money `json:"amount"`
	}{Amount: amount}
	if err := c.postJSON(ctx, "/api/payments/top-up", req, &order); err != nil {
		return nil, fmt.Errorf("create top-up order: %w", err)
	}
	return &order, nil
}

package auction

import "time"

// Money is an amount in currency minor units.
type Money int64

// BidUnit is the smallest increment a bid may be expressed in.
const BidUnit Money = 100

// Status represents the lifecycle state of an auction.
type Status string

const (
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Snapshot is the locally cached detail of one auction. It is mutated only by
// the initial fetch and by the Reconciler applying accepted bids.
type Snapshot struct {
	AuctionID      string    `json:"auction_id"`
	Status         Status    `json:"status"`
	StartBid       Money     `json:"start_bid"`
	CurrentBid     Money     `json:"current_bid"`
	HighestUserID  string    `json:"highest_user_id,omitempty"`
	DepositAmount  Money     `json:"deposit_amount"`
	AuctionStartAt time.Time `json:"auction_start_at"`
	AuctionEndAt   time.Time `json:"auction_end_at"`
	SellerID       string    `json:"seller_id"`
}

// BidRecord is one accepted bid in the history list.
type BidRecord struct {
	BidSeq   int64     `json:"bid_seq"`
	BidPrice Money     `json:"bid_price"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	BidAt    time.Time `json:"bid_at"`
}

// HistoryPage is one page of the bid history, ordered newest-first by BidAt.
type HistoryPage struct {
	Bids    []BidRecord `json:"bids"`
	Page    int         `json:"page"`
	HasMore bool        `json:"has_more"`
}

// Participation is the caller's per-auction participation record.
// IsWithdrawn is terminal: once set, bidding is permanently disallowed.
type Participation struct {
	IsParticipated bool  `json:"is_participated"`
	IsWithdrawn    bool  `json:"is_withdrawn"`
	DepositPaid    Money `json:"deposit_paid"`
	LastBidPrice   Money `json:"last_bid_price,omitempty"`
}

// TopUpOrder is the handle returned by the payment gateway for a deposit
// top-up. The caller redirects the user to CheckoutURL.
type TopUpOrder struct {
	OrderID     string `json:"order_id"`
	Amount      Money  `json:"amount"`
	CheckoutURL string `json:"checkout_url"`
}

// GatewayResult is the outcome reported by the payment gateway when it
// redirects back to the application.
type GatewayResult struct {
	OrderID   string `json:"order_id"`
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message,omitempty"`
}

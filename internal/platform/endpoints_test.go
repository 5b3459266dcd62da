package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyunsoo-dev/liveauction/internal/auction"
)

func TestAuctionDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auctions/A1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		w.Write([]byte(`{"auction_id":"A1","status":"IN_PROGRESS","start_bid":5000,"current_bid":5300,"deposit_amount":20000,"seller_id":"s1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok-1")
	snapshot, err := client.AuctionDetail(context.Background(), "A1")
	if err != nil {
		t.Fatalf("AuctionDetail: %v", err)
	}
	if snapshot.AuctionID != "A1" || snapshot.Status != auction.StatusInProgress || snapshot.CurrentBid != 5300 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestBidHistoryQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "page=2&size=20" {
			t.Errorf("unexpected query: %s", got)
		}
		w.Write([]byte(`{"bids":[{"bid_seq":41,"bid_price":9000,"user_id":"u2","username":"bob","bid_at":"2026-09-01T12:00:00Z"}],"has_more":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	page, err := client.BidHistory(context.Background(), "A1", 2, 20)
	if err != nil {
		t.Fatalf("BidHistory: %v", err)
	}
	if page.Page != 2 || !page.HasMore || len(page.Bids) != 1 || page.Bids[0].BidSeq != 41 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestSubmitBidCarriesRequestID(t *testing.T) {
	var body struct {
		RequestID string        `json:"request_id"`
		Amount    auction.Money `json:"amount"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.SubmitBid(context.Background(), "A1", 5100); err != nil {
		t.Fatalf("SubmitBid: %v", err)
	}
	if body.Amount != 5100 {
		t.Fatalf("unexpected amount: %d", body.Amount)
	}
	if body.RequestID == "" {
		t.Fatal("expected a client-generated request id")
	}
}

func TestErrorResponsesSurfaceBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"auction already completed"}`, http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.SubmitBid(context.Background(), "A1", 5100)
	if err == nil {
		t.Fatal("expected an error for a 409 response")
	}
}

func TestCreateTopUpOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/top-up" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"order_id":"order-9","amount":10000,"checkout_url":"https://pay.example/order-9"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	order, err := client.CreateTopUpOrder(context.Background(), 10000)
	if err != nil {
		t.Fatalf("CreateTopUpOrder: %v", err)
	}
	if order.OrderID != "order-9" || order.Amount != 10000 || order.CheckoutURL == "" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

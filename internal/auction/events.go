package auction

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the wire discriminant of a push payload.
type EventType string

const (
	EventTypeUserJoin   EventType = "USER_JOIN"
	EventTypeUserLeave  EventType = "USER_LEAVE"
	EventTypeBidSuccess EventType = "BID_SUCCESS"
)

// BidEvent is one decoded push event. The concrete type is one of UserJoin,
// UserLeave or BidAccepted.
type BidEvent interface {
	EventType() EventType
}

// UserJoin reports a viewer joining the auction room.
type UserJoin struct {
	CurrentUsers int `json:"current_users"`
}

// UserLeave reports a viewer leaving the auction room.
type UserLeave struct {
	CurrentUsers int `json:"current_users"`
}

// BidAccepted reports a bid the server accepted as the new highest bid.
type BidAccepted struct {
	BidSeq          int64     `json:"bid_seq"`
	BidPrice        Money     `json:"bid_price"`
	HighestUserID   string    `json:"highest_user_id"`
	HighestUsername string    `json:"highest_username"`
	BidAt           time.Time `json:"bid_at"`
	CurrentUsers    int       `json:"current_users"`
	AuctionID       string    `json:"auction_id"`
}

func (UserJoin) EventType() EventType    { return EventTypeUserJoin }
func (UserLeave) EventType() EventType   { return EventTypeUserLeave }
func (BidAccepted) EventType() EventType { return EventTypeBidSuccess }

// DecodeError reports a push payload that could not be parsed into a BidEvent.
// The payload is dropped; the connection is unaffected.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode bid event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode bid event: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// eventEnvelope carries the discriminant plus the full payload body.
type eventEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeBidEvent parses a raw push payload into a BidEvent.
// Unknown event types are skipped for forward compatibility: the result is
// (nil, nil). Malformed payloads fail with a *DecodeError.
func DecodeBidEvent(raw []byte) (BidEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if envelope.Type == "" {
		return nil, &DecodeError{Reason: "missing type discriminant"}
	}

	body := envelope.Data
	if len(body) == 0 {
		// Flat payloads carry the fields beside the discriminant.
		body = raw
	}

	switch envelope.Type {
	case EventTypeUserJoin:
		var event UserJoin
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, &DecodeError{Reason: "malformed USER_JOIN payload", Err: err}
		}
		return event, nil

	case EventTypeUserLeave:
		var event UserLeave
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, &DecodeError{Reason: "malformed USER_LEAVE payload", Err: err}
		}
		return event, nil

	case EventTypeBidSuccess:
		var event BidAccepted
		if err := json.Unmarshal(body, &event); err != nil {
			return nil, &DecodeError{Reason: "malformed BID_SUCCESS payload", Err: err}
		}
		if event.BidSeq <= 0 {
			return nil, &DecodeError{Reason: "BID_SUCCESS payload missing bid_seq"}
		}
		if event.BidPrice <= 0 {
			return nil, &DecodeError{Reason: "BID_SUCCESS payload missing bid_price"}
		}
		return event, nil

	default:
		// Unknown event type
		return nil, nil
	}
}

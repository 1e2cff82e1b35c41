package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FlightPool/internal/event"
)

// Wire formats are snake_case JSON. Timestamps travel as microseconds
// since epoch; amounts as integer wei.

type poolCreatedWire struct {
	PoolID        string `json:"pool_id"`
	PremiumAmount int64  `json:"premium_amount"`
	PayoutAmount  int64  `json:"payout_amount"`
	Sequence      int64  `json:"sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

type fundsAddedWire struct {
	DepositID   string `json:"deposit_id"`
	PoolID      string `json:"pool_id"`
	Funder      string `json:"funder,omitempty"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

type policyPurchasedWire struct {
	PurchaseID      string `json:"purchase_id"`
	PoolID          string `json:"pool_id"`
	Policyholder    string `json:"policyholder"`
	FlightNumber    string `json:"flight_number"`
	DepartureTimeUs int64  `json:"departure_time_us"`
	Payment         int64  `json:"payment"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

type claimRequestedWire struct {
	ClaimID     string `json:"claim_id"`
	PoolID      string `json:"pool_id"`
	PolicyID    int64  `json:"policy_id"`
	IsDelayed   bool   `json:"is_delayed"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", field, err)
	}
	return id, nil
}

func parseOptionalUUID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, nil
	}
	return parseUUID(field, value)
}

// ParseRawEvent decodes one wire payload into a typed event.
func ParseRawEvent(eventType event.EventType, payload []byte) (event.Event, error) {
	switch eventType {
	case event.EventTypePoolCreated:
		var w poolCreatedWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("decode pool_created: %w", err)
		}
		poolID, err := parseUUID("pool_id", w.PoolID)
		if err != nil {
			return nil, err
		}
		return &event.PoolCreated{
			Pool:          poolID,
			PremiumAmount: w.PremiumAmount,
			PayoutAmount:  w.PayoutAmount,
			Sequence:      w.Sequence,
			Timestamp:     time.UnixMicro(w.TimestampUs).UTC(),
		}, nil

	case event.EventTypeFundsAdded:
		var w fundsAddedWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("decode funds_added: %w", err)
		}
		depositID, err := parseUUID("deposit_id", w.DepositID)
		if err != nil {
			return nil, err
		}
		poolID, err := parseUUID("pool_id", w.PoolID)
		if err != nil {
			return nil, err
		}
		funder, err := parseOptionalUUID("funder", w.Funder)
		if err != nil {
			return nil, err
		}
		return &event.FundsAdded{
			DepositID: depositID,
			Pool:      poolID,
			Funder:    funder,
			Amount:    w.Amount,
			Sequence:  w.Sequence,
			Timestamp: time.UnixMicro(w.TimestampUs).UTC(),
		}, nil

	case event.EventTypePolicyPurchased:
		var w policyPurchasedWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("decode policy_purchased: %w", err)
		}
		purchaseID, err := parseUUID("purchase_id", w.PurchaseID)
		if err != nil {
			return nil, err
		}
		poolID, err := parseUUID("pool_id", w.PoolID)
		if err != nil {
			return nil, err
		}
		holder, err := parseUUID("policyholder", w.Policyholder)
		if err != nil {
			return nil, err
		}
		if w.FlightNumber == "" {
			return nil, fmt.Errorf("policy_purchased: flight_number is required")
		}
		return &event.PolicyPurchased{
			PurchaseID:    purchaseID,
			Pool:          poolID,
			Policyholder:  holder,
			FlightNumber:  w.FlightNumber,
			DepartureTime: time.UnixMicro(w.DepartureTimeUs).UTC(),
			Payment:       w.Payment,
			Sequence:      w.Sequence,
			Timestamp:     time.UnixMicro(w.TimestampUs).UTC(),
		}, nil

	case event.EventTypeClaimRequested:
		var w claimRequestedWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("decode claim_requested: %w", err)
		}
		claimID, err := parseUUID("claim_id", w.ClaimID)
		if err != nil {
			return nil, err
		}
		poolID, err := parseUUID("pool_id", w.PoolID)
		if err != nil {
			return nil, err
		}
		return &event.ClaimRequested{
			ClaimID:   claimID,
			Pool:      poolID,
			PolicyID:  w.PolicyID,
			IsDelayed: w.IsDelayed,
			Sequence:  w.Sequence,
			Timestamp: time.UnixMicro(w.TimestampUs).UTC(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type %d", eventType)
	}
}

// MarshalEvent encodes a typed event into its wire payload. This is
// the inverse of ParseRawEvent and is what the persistence bridge
// stores, so replay goes through the same decoder as the live feed.
func MarshalEvent(evt event.Event) ([]byte, error) {
	switch ev := evt.(type) {
	case *event.PoolCreated:
		return json.Marshal(poolCreatedWire{
			PoolID:        ev.Pool.String(),
			PremiumAmount: ev.PremiumAmount,
			PayoutAmount:  ev.PayoutAmount,
			Sequence:      ev.Sequence,
			TimestampUs:   ev.Timestamp.UnixMicro(),
		})
	case *event.FundsAdded:
		w := fundsAddedWire{
			DepositID:   ev.DepositID.String(),
			PoolID:      ev.Pool.String(),
			Amount:      ev.Amount,
			Sequence:    ev.Sequence,
			TimestampUs: ev.Timestamp.UnixMicro(),
		}
		if ev.Funder != uuid.Nil {
			w.Funder = ev.Funder.String()
		}
		return json.Marshal(w)
	case *event.PolicyPurchased:
		return json.Marshal(policyPurchasedWire{
			PurchaseID:      ev.PurchaseID.String(),
			PoolID:          ev.Pool.String(),
			Policyholder:    ev.Policyholder.String(),
			FlightNumber:    ev.FlightNumber,
			DepartureTimeUs: ev.DepartureTime.UnixMicro(),
			Payment:         ev.Payment,
			Sequence:        ev.Sequence,
			TimestampUs:     ev.Timestamp.UnixMicro(),
		})
	case *event.ClaimRequested:
		return json.Marshal(claimRequestedWire{
			ClaimID:     ev.ClaimID.String(),
			PoolID:      ev.Pool.String(),
			PolicyID:    ev.PolicyID,
			IsDelayed:   ev.IsDelayed,
			Sequence:    ev.Sequence,
			TimestampUs: ev.Timestamp.UnixMicro(),
		})
	default:
		return nil, fmt.Errorf("unhandled event type %T", evt)
	}
}

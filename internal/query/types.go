package query

import "time"

// PoolDetail is the read model for one pool. Balance comes from the
// projections, so AsOfSequence says how fresh it is.
type PoolDetail struct {
	PoolID        string `json:"pool_id"`
	PremiumAmount int64  `json:"premium_amount"`
	PayoutAmount  int64  `json:"payout_amount"`
	Balance       int64  `json:"balance"`
	PolicyCount   int64  `json:"policy_count"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// PolicyDetail is the read model for one policy.
type PolicyDetail struct {
	PoolID          string `json:"pool_id"`
	PolicyID        int64  `json:"policy_id"`
	Policyholder    string `json:"policyholder"`
	FlightNumber    string `json:"flight_number"`
	DepartureTimeUs int64  `json:"departure_time_us"`
	Claimed         bool   `json:"claimed"`
	Active          bool   `json:"active"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// JournalEntry is one ledger movement in a pool's history.
type JournalEntry struct {
	Sequence      int64  `json:"sequence"`
	JournalType   string `json:"journal_type"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	EventRef      string `json:"event_ref"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// IntegrityReport is the result of verifying the event log against
// the projected balances.
type IntegrityReport struct {
	EventsChecked   int64     `json:"events_checked"`
	ChainIntact     bool      `json:"chain_intact"`
	BrokenAt        int64     `json:"broken_at,omitempty"`
	GlobalBalance   int64     `json:"global_balance"`
	DriftedAccounts int64     `json:"drifted_accounts"`
	CheckedAt       time.Time `json:"checked_at"`
}

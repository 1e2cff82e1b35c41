package pool

import (
	"time"

	"github.com/google/uuid"
)

// Pool is one insurance pool: fixed terms plus the append-only list of
// policies written against it. Capital is not stored here; the ledger
// is the source of truth for money.
type Pool struct {
	PoolID          uuid.UUID
	PremiumAmount   int64
	PayoutAmount    int64
	CreatedSequence int64

	policies []*Policy
}

// AppendPolicy writes a new policy and returns it. The policy ID is
// the append index, so IDs are dense and start at zero.
func (p *Pool) AppendPolicy(holder uuid.UUID, flightNumber string, departure time.Time) *Policy {
	pol := &Policy{
		ID:            int64(len(p.policies)),
		Policyholder:  holder,
		FlightNumber:  flightNumber,
		DepartureTime: departure,
		Claimed:       false,
		Active:        true,
	}
	p.policies = append(p.policies, pol)
	return pol
}

// Policy returns the policy with the given ID or ErrPolicyNotFound.
// The returned pointer is live state; only the engine may mutate it.
func (p *Pool) Policy(id int64) (*Policy, error) {
	if id < 0 || id >= int64(len(p.policies)) {
		return nil, ErrPolicyNotFound
	}
	return p.policies[id], nil
}

// MarkClaimed flips a policy to claimed. It fails if the policy does
// not exist or has already been claimed.
func (p *Pool) MarkClaimed(id int64) error {
	pol, err := p.Policy(id)
	if err != nil {
		return err
	}
	if pol.Claimed {
		return ErrAlreadyClaimed
	}
	pol.Claimed = true
	return nil
}

// PolicyCount returns the number of policies written.
func (p *Pool) PolicyCount() int64 {
	return int64(len(p.policies))
}

// Policies returns a copy of the policy list in purchase order.
func (p *Pool) Policies() []Policy {
	out := make([]Policy, len(p.policies))
	for i, pol := range p.policies {
		out[i] = *pol
	}
	return out
}

// RestorePolicies replaces the policy list from a snapshot. IDs must
// already be dense and ordered; the caller guarantees this.
func (p *Pool) RestorePolicies(policies []Policy) {
	p.policies = make([]*Policy, len(policies))
	for i := range policies {
		pol := policies[i]
		p.policies[i] = &pol
	}
}

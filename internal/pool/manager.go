package pool

import (
	"github.com/google/uuid"
)

// Manager holds every pool by ID. It is owned by the engine goroutine;
// ordering for listings lives in the registry, not here.
type Manager struct {
	pools map[uuid.UUID]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[uuid.UUID]*Pool)}
}

// Create registers a new pool with immutable terms.
func (m *Manager) Create(poolID uuid.UUID, premium, payout, createdSequence int64) (*Pool, error) {
	if premium < 0 || payout < 0 {
		return nil, ErrInvalidTerms
	}
	if _, exists := m.pools[poolID]; exists {
		return nil, ErrPoolExists
	}
	p := &Pool{
		PoolID:          poolID,
		PremiumAmount:   premium,
		PayoutAmount:    payout,
		CreatedSequence: createdSequence,
	}
	m.pools[poolID] = p
	return p, nil
}

// Get returns the pool or ErrPoolNotFound.
func (m *Manager) Get(poolID uuid.UUID) (*Pool, error) {
	p, ok := m.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// Len returns the number of pools.
func (m *Manager) Len() int {
	return len(m.pools)
}

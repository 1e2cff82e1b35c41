package oracle

import (
	"sync"

	"github.com/rs/zerolog"
)

// FlightOracle is an administratively fed store of flight delay
// statuses. It is advisory only: claim settlement uses the delay flag
// supplied with the claim itself, never a lookup here. The store
// exists so operators and downstream tooling have a shared view of
// which flights are currently marked delayed.
type FlightOracle struct {
	mu     sync.RWMutex
	status map[string]bool
	logger zerolog.Logger
}

func NewFlightOracle(logger zerolog.Logger) *FlightOracle {
	return &FlightOracle{
		status: make(map[string]bool),
		logger: logger,
	}
}

// SetDelayStatus records whether a flight is delayed. Setting the same
// flight again overwrites the previous value.
func (o *FlightOracle) SetDelayStatus(flightNumber string, delayed bool) {
	o.mu.Lock()
	o.status[flightNumber] = delayed
	o.mu.Unlock()

	o.logger.Info().
		Str("flight_number", flightNumber).
		Bool("delayed", delayed).
		Msg("delay status updated")
}

// GetDelayStatus returns the recorded status for a flight. Flights
// never set default to not delayed.
func (o *FlightOracle) GetDelayStatus(flightNumber string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status[flightNumber]
}

// Statuses returns a copy of every recorded flight status.
func (o *FlightOracle) Statuses() map[string]bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]bool, len(o.status))
	for k, v := range o.status {
		out[k] = v
	}
	return out
}

package pool

import (
	"time"

	"github.com/google/uuid"
)

// Policy is one unit of coverage. IDs are assigned per pool, starting
// at zero, in purchase order.
//
// Claimed flips to true exactly once, when an eligible claim pays out.
// Active is set at purchase and never transitions; it is retained for
// wire compatibility with downstream consumers.
type Policy struct {
	ID            int64
	Policyholder  uuid.UUID
	FlightNumber  string
	DepartureTime time.Time
	Claimed       bool
	Active        bool
}

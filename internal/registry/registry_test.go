package registry_test

import (
	"testing"

	"github.com/google/uuid"

	"FlightPool/internal/registry"
)

func TestListPreservesCreationOrder(t *testing.T) {
	r := registry.NewRegistry()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		r.Append(registry.PoolHandle{PoolID: id, PremiumAmount: 100, PayoutAmount: 500, CreatedSequence: int64(i + 1)})
	}

	handles := r.List()
	if len(handles) != 5 {
		t.Fatalf("List returned %d handles, want 5", len(handles))
	}
	for i, h := range handles {
		if h.PoolID != ids[i] {
			t.Errorf("handle %d = %s, want %s", i, h.PoolID, ids[i])
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := registry.NewRegistry()
	r.Append(registry.PoolHandle{PoolID: uuid.New()})

	first := r.List()
	first[0].PremiumAmount = 999

	if got := r.List()[0].PremiumAmount; got != 0 {
		t.Errorf("mutating List result leaked into registry: premium = %d", got)
	}
}

func TestGet(t *testing.T) {
	r := registry.NewRegistry()
	id := uuid.New()
	r.Append(registry.PoolHandle{PoolID: id, PremiumAmount: 7})

	h, ok := r.Get(id)
	if !ok || h.PremiumAmount != 7 {
		t.Errorf("Get = (%+v, %v), want premium 7, true", h, ok)
	}
	if _, ok := r.Get(uuid.New()); ok {
		t.Error("Get returned ok for an unregistered pool")
	}
}

func TestSubscribeReceivesAppends(t *testing.T) {
	r := registry.NewRegistry()
	ch := r.Subscribe(4)

	id := uuid.New()
	r.Append(registry.PoolHandle{PoolID: id})

	select {
	case h := <-ch:
		if h.PoolID != id {
			t.Errorf("received %s, want %s", h.PoolID, id)
		}
	default:
		t.Fatal("no notification delivered")
	}
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	r := registry.NewRegistry()
	ch := r.Subscribe(1)

	r.Append(registry.PoolHandle{PoolID: uuid.New()})
	r.Append(registry.PoolHandle{PoolID: uuid.New()})

	// Second append must not block; only one notification fits.
	if got := len(ch); got != 1 {
		t.Errorf("channel holds %d notifications, want 1", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

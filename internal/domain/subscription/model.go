package subscription

import (
	"sync"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// Subscription is the owning entity for usage records. Only its identity and
// type matter to the ledger; everything else lives with the billing system.
type Subscription struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	TypeID     string `json:"type_id"`
}

// SubscriptionType describes a class of subscriptions and the capability set
// it implements. Usage type variants check this set at construction instead
// of reflecting on the concrete implementation.
type SubscriptionType struct {
	ID           string                         `json:"id"`
	Name         string                         `json:"name"`
	Capabilities []types.SubscriptionCapability `json:"capabilities"`
}

func (t *SubscriptionType) HasCapability(c types.SubscriptionCapability) bool {
	for _, have := range t.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// TypeRegistry maps subscription type identifiers to their definitions.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*SubscriptionType
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]*SubscriptionType),
	}
}

func (r *TypeRegistry) Register(t *SubscriptionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.ID] = t
}

func (r *TypeRegistry) Get(id string) (*SubscriptionType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[id]
	if !ok {
		return nil, ierr.NewError("subscription type not registered").
			WithHint("Unknown subscription type").
			WithReportableDetails(map[string]any{"type_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return t, nil
}

package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
)

// StrategyFactory creates the Strategy for a hal variant within a tier.
type StrategyFactory func(variant gputypes.Backend) Strategy

// Tier is one probing level: the hal variants tried for it, in order, and the
// strategy used once one of them succeeds.
type Tier struct {
	Kind        Kind
	Variants    []gputypes.Backend
	NewStrategy StrategyFactory
}

// registry holds registered tiers.
var (
	registryMu sync.RWMutex
	tiers      = make(map[Kind]Tier)
	// Priority order for tier selection (first available wins).
	tierPriority = []Kind{KindWebGPU, KindWebGL}
)

func init() {
	Register(Tier{
		Kind:        KindWebGPU,
		Variants:    []gputypes.Backend{gputypes.BackendVulkan, gputypes.BackendMetal, gputypes.BackendDX12},
		NewStrategy: newExplicitStrategy,
	})
	Register(Tier{
		Kind:        KindWebGL,
		Variants:    []gputypes.Backend{gputypes.BackendGL},
		NewStrategy: newFallbackStrategy,
	})
}

// Register adds or replaces the tier for t.Kind.
func Register(t Tier) {
	registryMu.Lock()
	defer registryMu.Unlock()
	tiers[t.Kind] = t
}

// Unregister removes the tier for kind.
// This is useful for testing.
func Unregister(kind Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(tiers, kind)
}

// IsRegistered reports whether a tier is registered for kind.
func IsRegistered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := tiers[kind]
	return ok
}

// Registered returns the registered tiers in priority order.
func Registered() []Tier {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Tier, 0, len(tiers))
	for _, k := range tierPriority {
		if t, ok := tiers[k]; ok {
			t.Variants = slices.Clone(t.Variants)
			out = append(out, t)
		}
	}
	return out
}

// StrategyFor returns the strategy of the registered tier serving variant.
// Hosts that bring their own device use it in place of Select.
func StrategyFor(variant gputypes.Backend) (Strategy, error) {
	for _, t := range Registered() {
		if !slices.Contains(t.Variants, variant) || t.NewStrategy == nil {
			continue
		}
		if s := t.NewStrategy(variant); s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no tier serves %s", ErrNoCapableBackend, variant)
}

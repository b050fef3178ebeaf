package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/internal/logging"
)

// Lookup resolves a hal variant to its registered backend.
// The default is hal.GetBackend.
type Lookup func(variant gputypes.Backend) (hal.Backend, bool)

type probeConfig struct {
	lookup Lookup
	tiers    []Tier
	tiersSet bool
	prefer   Kind
	flags  gputypes.InstanceFlags
}

// ProbeOption configures Select.
type ProbeOption func(*probeConfig)

// WithLookup replaces the hal backend lookup.
func WithLookup(l Lookup) ProbeOption {
	return func(c *probeConfig) { c.lookup = l }
}

// WithTiers replaces the registered tiers for one probe. An empty list
// probes nothing.
func WithTiers(t ...Tier) ProbeOption {
	return func(c *probeConfig) {
		c.tiers = append([]Tier{}, t...)
		c.tiersSet = true
	}
}

// WithKind restricts probing to one tier. KindNone keeps the default order.
func WithKind(k Kind) ProbeOption {
	return func(c *probeConfig) { c.prefer = k }
}

// WithInstanceFlags sets hal instance flags such as debug or validation.
func WithInstanceFlags(f gputypes.InstanceFlags) ProbeOption {
	return func(c *probeConfig) { c.flags = f }
}

// Select probes the tiers in priority order and returns the first usable one.
//
// A variant is usable when its hal backend is registered, an instance can be
// created, and the instance exposes at least one adapter. Instances of
// unusable variants are destroyed before the next variant is tried.
func Select(opts ...ProbeOption) (*Selection, error) {
	cfg := probeConfig{lookup: hal.GetBackend}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.tiersSet {
		cfg.tiers = Registered()
	}

	log := logging.Logger()
	var errs []error
	for _, t := range cfg.tiers {
		if cfg.prefer != KindNone && t.Kind != cfg.prefer {
			continue
		}
		for _, v := range t.Variants {
			sel, err := probeVariant(&cfg, t, v)
			if err != nil {
				log.Debug("backend: probe failed", "tier", t.Kind, "variant", v, "error", err)
				errs = append(errs, err)
				continue
			}
			log.Info("backend: selected", "tier", sel.Kind, "variant", sel.Variant,
				"adapter", sel.Adapter.Info.Name, "type", sel.Adapter.Info.DeviceType)
			return sel, nil
		}
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no tier to probe", ErrNoCapableBackend)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoCapableBackend, errors.Join(errs...))
}

// Detect returns the Kind Select would choose, releasing everything it
// allocated. It returns KindNone when no backend is usable.
func Detect(opts ...ProbeOption) Kind {
	sel, err := Select(opts...)
	if err != nil {
		return KindNone
	}
	defer sel.Release()
	return sel.Kind
}

func probeVariant(cfg *probeConfig, t Tier, v gputypes.Backend) (*Selection, error) {
	b, ok := cfg.lookup(v)
	if !ok || b == nil {
		return nil, fmt.Errorf("%s: %w", v, hal.ErrBackendNotFound)
	}

	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: cfg.flags})
	if err != nil {
		return nil, fmt.Errorf("%s: create instance: %w", v, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no adapters", v)
	}

	strategy := t.NewStrategy(v)
	if strategy == nil {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no strategy for tier %s", v, t.Kind)
	}

	return &Selection{
		Kind:     t.Kind,
		Variant:  v,
		Strategy: strategy,
		Instance: instance,
		Adapter:  pickAdapter(adapters),
	}, nil
}

// pickAdapter prefers a discrete GPU, then an integrated one, then the first.
func pickAdapter(adapters []hal.ExposedAdapter) hal.ExposedAdapter {
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return adapters[i]
			}
		}
	}
	return adapters[0]
}

package scheduler

import (
	"context"
	"fmt"

	"github.com/524D/lcquant/internal/compound"
	"github.com/524D/lcquant/internal/measurement"
)

// Processor loads files with fixed settings
type Processor struct {
	Targets []*compound.Compound
	MS      measurement.MSOptions
	// Cache is shared by all units and may be nil
	Cache *measurement.Cache
}

// Process is a ProcessFunc
func (p *Processor) Process(ctx context.Context, u Unit) (*measurement.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch u.Kind {
	case measurement.LC:
		return measurement.LoadLC(u.Path, p.Cache)
	case measurement.MS:
		return measurement.LoadMS(u.Path, p.Targets, p.MS, p.Cache)
	}
	return nil, fmt.Errorf("scheduler: unknown file kind %v", u.Kind)
}

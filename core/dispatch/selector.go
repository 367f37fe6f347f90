package dispatch

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kmoreau/citycab/core/model"
)

// Selector orders assignment candidates. The orchestrator walks the
// returned order and picks the first taxi with a live session.
type Selector interface {
	Rank(taxis []model.Taxi, pickupX, pickupY int) []model.Taxi
}

// FirstAvailableSelector keeps registration order: the first available
// connected taxi wins.
type FirstAvailableSelector struct{}

func (FirstAvailableSelector) Rank(taxis []model.Taxi, _, _ int) []model.Taxi {
	return taxis
}

// NearestSelector ranks candidates by Euclidean distance to the pickup
// cell, closest first. Ties keep registration order.
type NearestSelector struct{}

func (NearestSelector) Rank(taxis []model.Taxi, pickupX, pickupY int) []model.Taxi {
	if len(taxis) < 2 {
		return taxis
	}
	dists := make([]float64, len(taxis))
	for i, t := range taxis {
		dists[i] = math.Hypot(float64(t.X-pickupX), float64(t.Y-pickupY))
	}
	inds := make([]int, len(taxis))
	floats.Argsort(dists, inds)
	ranked := make([]model.Taxi, len(taxis))
	for i, idx := range inds {
		ranked[i] = taxis[idx]
	}
	return ranked
}

// NewSelector maps a configuration name to a Selector, defaulting to
// first-available.
func NewSelector(name string) Selector {
	if name == "nearest" {
		return NearestSelector{}
	}
	return FirstAvailableSelector{}
}

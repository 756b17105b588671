// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package plan contains the planner engine: opportunity mapping, in-block
// combination, retrofit decisions and the basin Monte-Carlo composition.
package plan

import (
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/mca"
	"github.com/sapcc/wsud-planner/internal/storage"
)

// ServiceVector indexes the three service dimensions.
const (
	ServiceQty = 0
	ServiceWQ  = 1
	ServiceRec = 2
)

// ServiceVector holds {quantity, water quality, recycling} amounts. The
// first two are treated impervious areas [sqm], the third an annual supply
// [kL/yr].
type ServiceVector [3]float64

// Add accumulates another service vector.
func (v *ServiceVector) Add(other ServiceVector) {
	for i := range v {
		v[i] += other[i]
	}
}

// WaterTech is a single sized technology instance. Created only by the
// opportunity mapper; owned by at most one BlockStrategy.
type WaterTech struct {
	Type    string
	Scale   core.Scale
	LandUse core.LandUse // set for lot-scale instances only
	BlockID int

	Area     float64 // planning area [sqm]
	EAFactor float64

	// Service is per-unit for lot-scale instances (one allotment, one
	// estate); the combiner scales by unit counts exactly once.
	Service ServiceVector
	// IAO carries the impervious-area offsets {Qty, WQ} [sqm] credited for
	// harvesting.
	IAO [2]float64

	HasStore bool
	Store    storage.Store
	// AuxStoreType is set for hybrid designs: the paired store's type code
	// ("RT" for a closed tank, "PB" for an open pond). Empty for integrated
	// stores and plain treatment systems.
	AuxStoreType string

	// Increment is the design increment at this tech's own scale. Street
	// techs additionally record the lot increment they were designed
	// against.
	Increment    float64
	LotIncrement float64
}

// Serves reports which service dimensions this instance contributes to.
func (t WaterTech) Serves() [3]bool {
	return [3]bool{t.Service[0] > 0, t.Service[1] > 0, t.Service[2] > 0}
}

// Contribution converts this instance into the scorer's input.
func (t WaterTech) Contribution() mca.TechContribution {
	return mca.TechContribution{
		Abbr:         t.Type,
		Scale:        t.Scale,
		Serves:       t.Serves(),
		ServiceTotal: t.Service[0] + t.Service[1] + t.Service[2],
		IAOTotal:     t.IAO[0] + t.IAO[1],
	}
}

// Slot indexes the seven positions of an in-block combination.
const (
	SlotLotRES = iota
	SlotLotHDR
	SlotLotLI
	SlotLotHI
	SlotLotCOM
	SlotStreet
	SlotNeigh
	slotCount
)

// BlockStrategy is one chosen combination of technologies within a block,
// with aggregate service, offsets and cached MCA scores. Nil slots are the
// no-tech sentinel.
type BlockStrategy struct {
	BlockID   int
	Techs     [slotCount]*WaterTech
	LotCounts [slotCount]float64

	Service ServiceVector
	IAO     [2]float64

	// Bin is the service-level bracket (a sub-basin increment value).
	Bin float64

	GroupScores [4]float64
	Score       float64
}

// Contributions lists the scorer inputs of all occupied slots.
func (s *BlockStrategy) Contributions() []mca.TechContribution {
	var result []mca.TechContribution
	for _, tech := range s.Techs {
		if tech != nil {
			result = append(result, tech.Contribution())
		}
	}
	return result
}

// SubbasinChoice is one sub-basin-scale placement inside a basin strategy.
type SubbasinChoice struct {
	BlockID int
	Tech    *WaterTech
}

// BasinStrategy is one sampled basin-wide composition: per-block selections
// plus sub-basin selections, with aggregate service P-values and the total
// MCA score.
type BasinStrategy struct {
	BasinID   int
	Iteration int

	InBlock  map[int]*BlockStrategy
	Subbasin map[int]*WaterTech

	// PValues is the fraction of the basin's remaining need met per
	// dimension; Objective is Σ(provided − required), or −1 when any
	// enabled dimension falls short.
	PValues   [3]float64
	Objective float64

	GroupScores [4]float64
	Score       float64
}

// Contributions lists the scorer inputs of every tech placed by this
// strategy, walking blocks in ascending ID order for determinism.
func (s *BasinStrategy) Contributions() []mca.TechContribution {
	var result []mca.TechContribution
	for _, id := range sortedKeys(s.InBlock) {
		result = append(result, s.InBlock[id].Contributions()...)
	}
	for _, id := range sortedKeys(s.Subbasin) {
		result = append(result, s.Subbasin[id].Contribution())
	}
	return result
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	// insertion sort; these maps hold at most a few dozen entries
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"math"
	"math/rand"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/mca"
)

// topPerBin bounds how many strategies each service bin retains.
const topPerBin = 10

// Combiner forms in-block strategies from the mapper's candidates: the
// Cartesian product over the seven slots, filtered for feasibility, scored,
// and binned by service level.
type Combiner struct {
	cfg    *core.PlannerConfig
	scorer *mca.Scorer
}

// NewCombiner assembles the in-block combiner.
func NewCombiner(cfg *core.PlannerConfig, scorer *mca.Scorer) *Combiner {
	return &Combiner{cfg: cfg, scorer: scorer}
}

// BinnedStrategies maps a service bin (a sub-basin increment value) to the
// top strategies within that bin.
type BinnedStrategies map[float64][]*BlockStrategy

// Combine enumerates every 7-slot combination for one block. The rng drives
// only the fair-coin tie break between equal scores.
func (c *Combiner) Combine(block *blocks.Block, candidates BlockCandidates, rng *rand.Rand) BinnedStrategies {
	result := make(BinnedStrategies)
	blockEIA := block.ManageEIA
	blockDemand := block.SubstitutableDemand()
	if blockEIA == 0 && blockDemand == 0 {
		return result
	}
	for _, incr := range c.cfg.SubbasinIncrements {
		result[incr] = nil
	}

	allotments := block.ResAllots
	impPerLot := block.ResLotEIA
	impRes := impPerLot * allotments
	impStreetRes := block.ResFrontT - block.AvStRES

	// lot slots are pieced together per lot increment; the no-tech option
	// is always part of each slot's choice
	withSentinel := func(list []*WaterTech) []*WaterTech {
		return append([]*WaterTech{nil}, list...)
	}
	lotRES := withSentinel(candidates.Lot[core.LandUseRES])
	lotHDR := withSentinel(candidates.Lot[core.LandUseHDR])
	lotLI := withSentinel(candidates.Lot[core.LandUseLI])
	lotHI := withSentinel(candidates.Lot[core.LandUseHI])
	lotCOM := withSentinel(candidates.Lot[core.LandUseCOM])
	street := withSentinel(candidates.Street)
	neigh := withSentinel(candidates.Neigh)

	matchesIncrement := func(tech *WaterTech, lotIncr float64) bool {
		return tech == nil || tech.Increment == lotIncr
	}

	for _, lotIncr := range c.cfg.LotIncrements {
		var lotCombos [][5]*WaterTech
		if lotIncr == 0 {
			lotCombos = [][5]*WaterTech{{}}
		} else {
			for _, res := range lotRES {
				for _, hdr := range lotHDR {
					if !matchesIncrement(hdr, lotIncr) {
						continue
					}
					for _, li := range lotLI {
						if !matchesIncrement(li, lotIncr) {
							continue
						}
						for _, hi := range lotHI {
							if !matchesIncrement(hi, lotIncr) {
								continue
							}
							for _, com := range lotCOM {
								if !matchesIncrement(com, lotIncr) {
									continue
								}
								lotCombos = append(lotCombos, [5]*WaterTech{res, hdr, li, hi, com})
							}
						}
					}
				}
			}
		}

		// small allotment counts can truncate to zero houses at this
		// increment; such combos would report zero service
		lotHouses := math.Floor(lotIncr * allotments)
		if allotments != 0 && lotIncr != 0 && lotHouses == 0 {
			continue
		}

		for _, lotCombo := range lotCombos {
			allLotNil := lotCombo == [5]*WaterTech{}
			for _, streetTech := range street {
				if streetTech != nil && streetTech.LotIncrement != lotIncr {
					continue
				}
				// a combo without any lot or street tech is identical at
				// every lot increment; only form it once
				if lotIncr != 0 && allLotNil && streetTech == nil {
					continue
				}
				for _, neighTech := range neigh {
					techs := [slotCount]*WaterTech{
						lotCombo[0], lotCombo[1], lotCombo[2], lotCombo[3], lotCombo[4],
						streetTech, neighTech,
					}
					c.tryCombo(block, techs, lotHouses, blockEIA, blockDemand,
						impRes, impStreetRes, result, rng)
				}
			}
		}
	}
	return result
}

func (c *Combiner) tryCombo(block *blocks.Block, techs [slotCount]*WaterTech, lotHouses, blockEIA, blockDemand, impRes, impStreetRes float64, result BinnedStrategies, rng *rand.Rand) {
	occupied := 0
	for _, tech := range techs {
		if tech != nil {
			occupied++
		}
	}
	if occupied == 0 {
		return
	}

	lotCounts := [slotCount]float64{
		lotHouses, 1, block.LIEstates, block.HIEstates, block.COMEstates, 1, 1,
	}

	// lot + street together must not overtreat the residential zone
	resTech, streetTech := techs[SlotLotRES], techs[SlotStreet]
	if resTech != nil && streetTech != nil {
		resZone := impRes + impStreetRes
		if resTech.Service[ServiceQty]*lotCounts[SlotLotRES]+streetTech.Service[ServiceQty] > resZone {
			return
		}
		if resTech.Service[ServiceWQ]*lotCounts[SlotLotRES]+streetTech.Service[ServiceWQ] > resZone {
			return
		}
	}

	var service ServiceVector
	var iao [2]float64
	for slot, tech := range techs {
		if tech == nil {
			continue
		}
		count := 1.0
		if tech.Scale == core.ScaleLot && tech.LandUse != core.LandUseHDR {
			count = lotCounts[slot]
		}
		for dim := range service {
			if c.cfg.ObjectiveEnabled(dim) {
				service[dim] += tech.Service[dim] * count
			}
		}
		iao[0] += tech.IAO[0] * count
		iao[1] += tech.IAO[1] * count
	}

	if service[ServiceQty] > blockEIA || service[ServiceWQ] > blockEIA {
		return // overtreatment of the block's manageable impervious area
	}
	if service[ServiceRec] > blockDemand {
		return // oversupply of the block's substitutable demand
	}

	strategy := &BlockStrategy{
		BlockID:   block.ID,
		Techs:     techs,
		LotCounts: lotCounts,
		Service:   service,
		IAO:       iao,
		Bin:       c.identifyBin(service, blockEIA, blockDemand),
	}
	strategy.GroupScores, strategy.Score = c.scorer.Score(strategy.Contributions())

	c.retain(result, strategy, rng)
}

// identifyBin sorts a service vector into the coarsest sub-basin increment
// whose half-bracket window contains the maximum service fraction.
func (c *Combiner) identifyBin(service ServiceVector, blockEIA, blockDemand float64) float64 {
	if blockEIA == 0 {
		blockEIA = areaEpsilon
	}
	if blockDemand == 0 {
		blockDemand = areaEpsilon
	}
	levels := [3]float64{
		service[ServiceQty] / blockEIA,
		service[ServiceWQ] / blockEIA,
		service[ServiceRec] / blockDemand,
	}
	maxLevel := math.Max(levels[0], math.Max(levels[1], levels[2]))

	bracket := 1.0 / float64(c.cfg.Scales.Subbasin.Rigour)
	for _, incr := range c.cfg.SubbasinIncrements {
		lo := math.Max(incr-bracket/2, 0)
		hi := math.Min(incr+bracket/2, 1)
		if maxLevel >= lo && maxLevel <= hi {
			return incr
		}
	}
	return c.cfg.SubbasinIncrements[len(c.cfg.SubbasinIncrements)-1]
}

// retain keeps the top strategies per bin, replacing the current lowest
// score and breaking ties with a fair coin.
func (c *Combiner) retain(result BinnedStrategies, strategy *BlockStrategy, rng *rand.Rand) {
	bin := strategy.Bin
	list := result[bin]
	if len(list) < topPerBin {
		result[bin] = append(list, strategy)
		return
	}
	lowestIdx := 0
	for i, other := range list {
		if other.Score < list[lowestIdx].Score {
			lowestIdx = i
		}
	}
	lowest := list[lowestIdx].Score
	switch {
	case strategy.Score > lowest:
		list[lowestIdx] = strategy
	case strategy.Score == lowest && rng.Float64() > 0.5:
		list[lowestIdx] = strategy
	}
}

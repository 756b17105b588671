// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"math"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/climate"
	"github.com/sapcc/wsud-planner/internal/core"
)

// lotTankSizes is the ladder of candidate lot-scale tank volumes [kL].
var lotTankSizes = []float64{1, 2, 3, 4, 5, 7.5, 10, 15, 20}

// Sizer computes required recycling-store volumes. All series work happens
// at the daily timestep; annual quantities are [kL/yr].
type Sizer struct {
	cfg       *core.PlannerConfig
	table     *blocks.Table
	rain      []float64 // daily rainfall [mm]
	evapScale []float64 // daily evaporation scaling factors
}

// NewSizer builds a storage sizer over the given climate series.
func NewSizer(cfg *core.PlannerConfig, table *blocks.Table, rain, evapScale []float64) *Sizer {
	return &Sizer{cfg: cfg, table: table, rain: rain, evapScale: evapScale}
}

// EndUsesFor returns the end uses that a source of the given water class may
// serve, following the configured quality requirement per end use.
func (s *Sizer) EndUsesFor(class core.WaterClass) []EndUse {
	rec := s.cfg.Recycling
	var enduses []EndUse
	if class.Level() <= rec.FFPKitchen.Level() {
		enduses = append(enduses, EndUseKitchen)
	}
	if class.Level() <= rec.FFPShower.Level() {
		enduses = append(enduses, EndUseShower)
	}
	if class.Level() <= rec.FFPToilet.Level() {
		enduses = append(enduses, EndUseToilet)
	}
	if class.Level() <= rec.FFPLaundry.Level() {
		enduses = append(enduses, EndUseLaundry)
	}
	if class.Level() <= rec.FFPGarden.Level() {
		enduses = append(enduses, EndUseIrrigation)
	}
	if class.Level() <= rec.PublicIrrigation.Level() {
		enduses = append(enduses, EndUsePublicIrr)
	}
	return enduses
}

// DemandForEndUses totals the block's annual demand [kL/yr] over the given
// end uses. Per-end-use demands are daily values in the block table.
func DemandForEndUses(block *blocks.Block, enduses []EndUse) float64 {
	demand := 0.0
	for _, enduse := range enduses {
		switch enduse {
		case EndUseKitchen:
			demand += (block.WdResKitchen + block.WdHDRKitchen) * 365.0
		case EndUseShower:
			demand += (block.WdResShower + block.WdHDRShower) * 365.0
		case EndUseToilet:
			demand += (block.WdResToilet + block.WdHDRToilet) * 365.0
		case EndUseLaundry:
			demand += (block.WdResLaundry + block.WdHDRLaundry) * 365.0
		case EndUseIrrigation:
			demand += (block.WdResIrrig + block.WdHDRIrrig) * 365.0
		case EndUsePublicIrr:
			demand += block.WdPublicIrr
		}
	}
	return demand
}

var allEndUses = []EndUse{EndUseKitchen, EndUseShower, EndUseToilet, EndUseLaundry, EndUseIrrigation, EndUsePublicIrr}

func contains(enduses []EndUse, enduse EndUse) bool {
	for _, e := range enduses {
		if e == enduse {
			return true
		}
	}
	return false
}

// demandSeries distributes an annual demand across days: irrigation-bearing
// demand follows the evaporation pattern, everything else is constant.
func (s *Sizer) demandSeries(annual float64, enduses []EndUse) []float64 {
	if contains(enduses, EndUseIrrigation) || contains(enduses, EndUsePublicIrr) {
		return climate.ScaledSeries(annual, s.evapScale)
	}
	return climate.ConstantSeries(annual/365.0, len(s.rain))
}

// demandInRange checks the configured supply band: a store may not be sized
// for a demand outside [dmin,dmax] of its mean annual inflow.
func (s *Sizer) demandInRange(demand, annualInflow float64) bool {
	rec := s.cfg.Recycling
	if annualInflow <= 0 {
		return false
	}
	if demand > rec.DemRangeMaxPercent/100.0*annualInflow {
		return false
	}
	if demand < rec.DemRangeMinPercent/100.0*annualInflow {
		return false
	}
	return true
}

// ForLot sizes a per-unit recycling store for the given residential lot
// type ("RES" or "HDR"). The smallest ladder tank whose simulated
// reliability meets the target wins.
func (s *Sizer) ForLot(block *blocks.Block, class core.WaterClass, lotUse core.LandUse) (Store, bool) {
	if !block.HasRes {
		return Store{}, false
	}
	if lotUse == core.LandUseRES && !block.HasHouses {
		return Store{}, false
	}
	if lotUse == core.LandUseHDR && !block.HasFlats {
		return Store{}, false
	}

	enduses := s.EndUsesFor(class)

	var perUnit map[EndUse]float64
	var roofArea float64
	switch lotUse {
	case core.LandUseRES:
		if block.ResHouses == 0 || block.ResAllots == 0 {
			return Store{}, false
		}
		perUnit = map[EndUse]float64{
			EndUseKitchen:    block.WdResKitchen * 365.0 / block.ResHouses,
			EndUseShower:     block.WdResShower * 365.0 / block.ResHouses,
			EndUseToilet:     block.WdResToilet * 365.0 / block.ResHouses,
			EndUseLaundry:    block.WdResLaundry * 365.0 / block.ResHouses,
			EndUseIrrigation: block.WdResIrrig * 365.0 / block.ResAllots,
		}
		roofArea = block.ResRoof
	case core.LandUseHDR:
		if block.HDRFlats == 0 {
			return Store{}, false
		}
		// one roof feeds the whole apartment building
		perUnit = map[EndUse]float64{
			EndUseKitchen:    block.WdHDRKitchen * 365.0 / block.HDRFlats,
			EndUseShower:     block.WdHDRShower * 365.0 / block.HDRFlats,
			EndUseToilet:     block.WdHDRToilet * 365.0 / block.HDRFlats,
			EndUseLaundry:    block.WdHDRLaundry * 365.0 / block.HDRFlats,
			EndUseIrrigation: block.WdHDRIrrig * 365.0,
		}
		roofArea = block.HDRRoofA
	default:
		return Store{}, false
	}

	totalDemand := 0.0
	substitutable := 0.0
	var usableEndUses []EndUse
	for _, enduse := range allEndUses {
		if enduse == EndUsePublicIrr {
			continue // lot systems do not serve public space
		}
		totalDemand += perUnit[enduse]
		if contains(enduses, enduse) {
			substitutable += perUnit[enduse]
			usableEndUses = append(usableEndUses, enduse)
		}
	}
	if substitutable == 0 {
		return Store{}, false
	}
	recDemand := math.Min(substitutable, s.cfg.Service.Rec/100.0*totalDemand)

	var inflow []float64
	var annualInflow float64
	switch class {
	case core.ClassRainwater, core.ClassStormwater:
		inflow = climate.InflowSeries(s.rain, roofArea)
		annualInflow = climate.AnnualInflow(s.rain, roofArea, s.cfg.Recycling.RainYears)
	default:
		// greywater inflow modelling needs a wastewater stream reader
		return Store{}, false
	}

	if !s.demandInRange(recDemand, annualInflow) {
		return Store{}, false
	}
	demand := s.demandSeries(recDemand, usableEndUses)

	volume := math.Inf(+1)
	switch s.cfg.Recycling.SizingMethod {
	case "Sim":
		for _, tankSize := range lotTankSizes {
			if SimulateReliability(inflow, demand, tankSize) >= s.cfg.Targets.Reliability {
				volume = tankSize
				break
			}
		}
	case "Eqn":
		storagePercent := LogLogStoragePercent(s.cfg.Targets.Reliability, recDemand/annualInflow)
		required := storagePercent / 100.0 * annualInflow
		// round up to the next ladder size
		for i := len(lotTankSizes) - 1; i >= 0; i-- {
			if required < lotTankSizes[i] {
				volume = lotTankSizes[i]
			}
		}
	}
	if math.IsInf(volume, +1) {
		return Store{}, false
	}

	return Store{
		Class:        class,
		Scale:        core.ScaleLot,
		Volume:       volume,
		HarvestArea:  roofArea,
		EndUses:      usableEndUses,
		Reliability:  s.cfg.Targets.Reliability,
		AnnualSupply: recDemand,
	}, true
}

// ForNeighbourhood sizes stores for every (harvest, supply) increment pair
// of the neighbourhood grid. Harvest is a share of the block's effective
// impervious area, supply a share of the block's total demand.
func (s *Sizer) ForNeighbourhood(block *blocks.Block, class core.WaterClass) (Grid, bool) {
	if block.BlkEIA == 0 {
		return nil, false
	}
	enduses := s.EndUsesFor(class)
	blockDemand := DemandForEndUses(block, allEndUses)
	substitutable := DemandForEndUses(block, enduses)
	if substitutable == 0 {
		return nil, false
	}

	grid := make(Grid)
	for _, harvestIncr := range s.cfg.NeighIncrements {
		if harvestIncr == 0 {
			continue
		}
		harvestArea := block.BlkEIA * harvestIncr
		for _, supplyIncr := range s.cfg.NeighIncrements {
			if supplyIncr == 0 {
				continue
			}
			recDemand := supplyIncr * blockDemand
			if recDemand == 0 || recDemand > substitutable {
				continue
			}
			store, ok := s.sizeOne(class, core.ScaleNeigh, harvestArea, recDemand, enduses)
			if ok {
				grid.put(harvestIncr, supplyIncr, store)
			}
		}
	}
	return grid, len(grid) > 0
}

// ForSubbasin sizes stores for a sub-basin site. Harvest is scoped to the
// impervious area of the block and all blocks upstream of it; the demand scope follows the
// configured hydraulic strategy (ud = downstream, uu = upstream, ua = whole
// basin).
func (s *Sizer) ForSubbasin(block *blocks.Block, class core.WaterClass) (Grid, bool) {
	harvestIDs := append([]int{block.ID}, s.table.UpstreamIDs(block.ID)...)
	var supplyIDs []int
	switch s.cfg.Recycling.HSStrategy {
	case "ud":
		supplyIDs = append([]int{block.ID}, s.table.DownstreamIDs(block.ID)...)
	case "uu":
		supplyIDs = harvestIDs
	case "ua":
		supplyIDs = append(append([]int{}, harvestIDs...), s.table.DownstreamIDs(block.ID)...)
	}

	enduses := s.EndUsesFor(class)
	totalDemand, substitutable := 0.0, 0.0
	for _, id := range supplyIDs {
		supplyBlock := s.table.Get(id)
		if supplyBlock == nil || !supplyBlock.Status {
			continue
		}
		totalDemand += DemandForEndUses(supplyBlock, allEndUses)
		substitutable += DemandForEndUses(supplyBlock, enduses)
	}
	if substitutable == 0 {
		return nil, false
	}

	harvestTotal := s.table.Reduce(harvestIDs, func(b *blocks.Block) float64 { return b.BlkEIA }, blocks.ReduceSum)
	if harvestTotal == 0 {
		return nil, false
	}

	grid := make(Grid)
	for _, harvestIncr := range s.cfg.SubbasinIncrements {
		if harvestIncr == 0 {
			continue
		}
		harvestArea := harvestTotal * harvestIncr
		for _, supplyIncr := range s.cfg.SubbasinIncrements {
			if supplyIncr == 0 {
				continue
			}
			recDemand := totalDemand * supplyIncr
			if recDemand == 0 || recDemand > substitutable {
				continue
			}
			store, ok := s.sizeOne(class, core.ScaleSubbasin, harvestArea, recDemand, enduses)
			if ok {
				grid.put(harvestIncr, supplyIncr, store)
			}
		}
	}
	return grid, len(grid) > 0
}

// sizeOne sizes a single store for the given harvest area and annual demand.
func (s *Sizer) sizeOne(class core.WaterClass, scale core.Scale, harvestArea, recDemand float64, enduses []EndUse) (Store, bool) {
	var inflow []float64
	var annualInflow float64
	switch class {
	case core.ClassRainwater, core.ClassStormwater:
		inflow = climate.InflowSeries(s.rain, harvestArea)
		annualInflow = climate.AnnualInflow(s.rain, harvestArea, s.cfg.Recycling.RainYears)
	default:
		return Store{}, false
	}
	if !s.demandInRange(recDemand, annualInflow) {
		return Store{}, false
	}
	demand := s.demandSeries(recDemand, enduses)

	var volume float64
	switch s.cfg.Recycling.SizingMethod {
	case "Sim":
		vol, ok := EstimateVolume(inflow, demand, s.cfg.Targets.Reliability,
			s.cfg.Recycling.RelTolerance, s.cfg.Recycling.MaxSBIterations)
		if !ok {
			return Store{}, false
		}
		volume = vol
	case "Eqn":
		storagePercent := LogLogStoragePercent(s.cfg.Targets.Reliability, recDemand/annualInflow)
		volume = storagePercent / 100.0 * annualInflow
	}

	return Store{
		Class:        class,
		Scale:        scale,
		Volume:       volume,
		HarvestArea:  harvestArea,
		EndUses:      enduses,
		Reliability:  s.cfg.Targets.Reliability,
		AnnualSupply: recDemand,
	}, true
}

// SimulateReliability runs a daily mass balance for a store of the given
// volume and returns the fraction of days [%] on which the demand was fully
// met.
func SimulateReliability(inflow, demand []float64, volume float64) float64 {
	days := len(inflow)
	if len(demand) < days {
		days = len(demand)
	}
	if days == 0 {
		return 0
	}
	level := 0.0
	daysMet := 0
	for i := 0; i < days; i++ {
		level = math.Min(level+inflow[i], volume)
		if level >= demand[i] {
			level -= demand[i]
			daysMet++
		} else {
			level = 0
		}
	}
	return float64(daysMet) / float64(days) * 100.0
}

// EstimateVolume bisects on storage volume until the simulated reliability
// reaches the target within the given tolerance [percentage points].
func EstimateVolume(inflow, demand []float64, targetRel, tolerance float64, maxIterations int) (float64, bool) {
	annualDemand := 0.0
	for _, d := range demand {
		annualDemand += d
	}
	if annualDemand == 0 {
		return 0, false
	}

	lo, hi := 0.0, 2.0*annualDemand
	if SimulateReliability(inflow, demand, hi) < targetRel-tolerance {
		return 0, false // even an oversized store cannot reach the target
	}
	volume := hi
	for i := 0; i < maxIterations; i++ {
		mid := (lo + hi) / 2
		rel := SimulateReliability(inflow, demand, mid)
		if rel >= targetRel {
			volume = mid
			hi = mid
			if rel <= targetRel+tolerance {
				break
			}
		} else {
			lo = mid
		}
	}
	return volume, true
}

// LogLogStoragePercent is the closed-form regression fit for the target
// region: it returns the required storage volume as a percentage of the
// mean annual inflow, given the target reliability [%] and the demand
// fraction (annual demand / mean annual inflow). The coefficients are the
// log-log fit over the simulated design space.
func LogLogStoragePercent(reliability, demandFraction float64) float64 {
	if demandFraction <= 0 {
		return 0
	}
	failure := math.Max(1.0-reliability/100.0, 0.001)
	// ln(S%) = a + b·ln(d) − c·ln(1−R)
	const a, b, c = 1.15, 1.32, 0.80
	return math.Exp(a + b*math.Log(demandFraction) - c*math.Log(failure))
}

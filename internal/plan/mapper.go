// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"math"

	"github.com/sapcc/wsud-planner/internal/blocks"
	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/design"
	"github.com/sapcc/wsud-planner/internal/storage"
)

const areaEpsilon = 0.0001

// Mapper enumerates and sizes feasible technologies for single blocks at
// the four planning scales. All referenced tables are read-only, so one
// mapper serves all basin planners concurrently.
type Mapper struct {
	cfg      *core.PlannerConfig
	table    *blocks.Table
	adapter  *design.Adapter
	sizer    *storage.Sizer // nil unless harvesting is a rationale
	benefits design.BenefitsTable
}

// NewMapper assembles the opportunity mapper.
func NewMapper(cfg *core.PlannerConfig, table *blocks.Table, adapter *design.Adapter, sizer *storage.Sizer, benefits design.BenefitsTable) *Mapper {
	return &Mapper{cfg: cfg, table: table, adapter: adapter, sizer: sizer, benefits: benefits}
}

// BlockCandidates is the mapper's output for one block.
type BlockCandidates struct {
	Lot    map[core.LandUse][]*WaterTech
	Street []*WaterTech
	Neigh  []*WaterTech
	// Subbasin candidates are grouped by design increment.
	Subbasin map[float64][]*WaterTech
}

// HasSubbasin reports whether this block can host a sub-basin system.
func (c BlockCandidates) HasSubbasin() bool {
	for _, candidates := range c.Subbasin {
		if len(candidates) > 0 {
			return true
		}
	}
	return false
}

// Assess produces all candidates for one block.
func (m *Mapper) Assess(block *blocks.Block) BlockCandidates {
	result := BlockCandidates{
		Lot:      make(map[core.LandUse][]*WaterTech),
		Subbasin: make(map[float64][]*WaterTech),
	}
	if !block.Status {
		return result
	}
	if m.cfg.Scales.Lot.Enabled {
		result.Lot = m.assessLot(block)
	}
	if m.cfg.Scales.Street.Enabled {
		result.Street = m.assessStreet(block)
	}
	if m.cfg.Scales.Neigh.Enabled {
		result.Neigh = m.assessNeigh(block)
	}
	if m.cfg.Scales.Subbasin.Enabled {
		result.Subbasin = m.assessSubbasin(block)
	}
	return result
}

// lotSite describes one land-use category that can host lot-scale systems.
type lotSite struct {
	landUse    core.LandUse
	present    bool
	occupied   bool
	available  float64
	impervious float64 // per unit (allotment or estate); whole area for HDR
}

func (m *Mapper) lotSites(block *blocks.Block) []lotSite {
	inScope := func(flag *bool) bool { return flag == nil || *flag }
	return []lotSite{
		{core.LandUseRES, block.HasHouses && inScope(m.cfg.Service.Res), block.HasLotRESSys,
			block.AvLtRES, block.ResLotEIA},
		{core.LandUseHDR, block.HasFlats && inScope(m.cfg.Service.Hdr), block.HasLotHDRSys,
			block.AvHDRes, block.HDREIA},
		{core.LandUseLI, block.HasLI && inScope(m.cfg.Service.LI), block.HasLotLISys,
			block.AvLtLI, block.LIAeEIA},
		{core.LandUseHI, block.HasHI && inScope(m.cfg.Service.HI), block.HasLotHISys,
			block.AvLtHI, block.HIAeEIA},
		{core.LandUseCOM, block.HasCOM && inScope(m.cfg.Service.Com), block.HasLotCOMSys,
			block.AvLtCOM, block.COMAeEIA},
	}
}

func (m *Mapper) assessLot(block *blocks.Block) map[core.LandUse][]*WaterTech {
	result := make(map[core.LandUse][]*WaterTech)
	sites := m.lotSites(block)

	anyUnits, anySpace := false, false
	for _, site := range sites {
		if site.present {
			anyUnits = true
			if site.available >= areaEpsilon {
				anySpace = true
			}
		}
	}
	if !anyUnits || !anySpace {
		return result
	}

	// Size the recycling stores once per block; they are shared by all
	// candidate types that can embed them. Only residential roofs harvest
	// at lot scale.
	var storeRES, storeHDR *storage.Store
	if m.sizer != nil {
		if store, ok := m.sizer.ForLot(block, core.ClassRainwater, core.LandUseRES); ok {
			storeRES = &store
		}
		if store, ok := m.sizer.ForLot(block, core.ClassRainwater, core.LandUseHDR); ok {
			storeHDR = &store
		}
	}

	for _, tech := range m.cfg.Registry.AtScale(core.ScaleLot) {
		for _, site := range sites {
			if !site.present || site.occupied || site.impervious < areaEpsilon || site.available < areaEpsilon {
				continue
			}
			var store *storage.Store
			switch site.landUse {
			case core.LandUseRES:
				store = storeRES
			case core.LandUseHDR:
				store = storeHDR
			}

			if site.landUse == core.LandUseRES {
				// all-or-none per house: a single candidate at full increment
				candidates := m.designTechnology(1.0, site.impervious, tech,
					site.available, core.ScaleLot, site.landUse, block, store)
				result[site.landUse] = append(result[site.landUse], candidates...)
				continue
			}
			for _, incr := range m.cfg.LotIncrements {
				if incr == 0 {
					continue
				}
				candidates := m.designTechnology(incr, site.impervious*incr, tech,
					site.available, core.ScaleLot, site.landUse, block, store)
				result[site.landUse] = append(result[site.landUse], candidates...)
			}
		}
	}
	return result
}

func (m *Mapper) assessStreet(block *blocks.Block) []*WaterTech {
	var result []*WaterTech
	inScope := m.cfg.Service.Res == nil || *m.cfg.Service.Res
	if !block.HasHouses || !inScope || block.HasStreetSys {
		return result
	}
	if block.AvStRES < areaEpsilon {
		return result
	}

	impPerLot := block.ResLotEIA
	impRes := impPerLot * block.ResAllots
	impStreetRes := block.ResFrontT - block.AvStRES

	for _, tech := range m.cfg.Registry.AtScale(core.ScaleStreet) {
		for _, lotIncr := range m.cfg.LotIncrements {
			// street systems treat the frontage plus whatever the lot scale
			// leaves untreated at this lot increment
			impRemaining := impStreetRes + impRes*(1-lotIncr)
			for _, streetIncr := range m.cfg.StreetIncrements {
				if streetIncr == 0 {
					continue
				}
				impTarget := impRemaining * streetIncr
				if impTarget < areaEpsilon {
					continue
				}
				candidates := m.designTechnology(streetIncr, impTarget, tech,
					block.AvStRES, core.ScaleStreet, "", block, nil)
				for _, candidate := range candidates {
					candidate.LotIncrement = lotIncr
					result = append(result, candidate)
				}
			}
		}
	}
	return result
}

func (m *Mapper) assessNeigh(block *blocks.Block) []*WaterTech {
	var result []*WaterTech
	if block.ManageEIA <= areaEpsilon || block.HasNeighSys || block.HasBasinSys {
		return result
	}

	var grid storage.Grid
	if m.sizer != nil {
		grid, _ = m.sizer.ForNeighbourhood(block, core.ClassStormwater)
	}

	for _, tech := range m.cfg.Registry.AtScale(core.ScaleNeigh) {
		available := block.OpenSpaceBudget(true)
		if available < areaEpsilon {
			continue
		}
		for _, neighIncr := range m.cfg.NeighIncrements {
			if neighIncr == 0 {
				continue
			}
			impTarget := block.ManageEIA * neighIncr

			result = append(result, m.designTechnology(neighIncr, impTarget, tech,
				available, core.ScaleNeigh, "", block, nil)...)
			for _, supplyIncr := range m.cfg.NeighIncrements {
				if supplyIncr == 0 {
					continue
				}
				store, ok := grid.At(neighIncr, supplyIncr)
				if !ok {
					continue
				}
				result = append(result, m.designHarvesting(neighIncr, impTarget, tech,
					available, core.ScaleNeigh, "", block, store)...)
			}
		}
	}
	return result
}

func (m *Mapper) assessSubbasin(block *blocks.Block) map[float64][]*WaterTech {
	result := make(map[float64][]*WaterTech)
	upstreamIDs := m.table.UpstreamIDs(block.ID)
	if len(upstreamIDs) == 0 || block.HasBasinSys {
		return result
	}
	available := block.OpenSpaceBudget(true)
	if available < areaEpsilon {
		return result
	}
	upstreamImp := m.table.Reduce(upstreamIDs, func(b *blocks.Block) float64 { return b.ManageEIA }, blocks.ReduceSum)
	if upstreamImp < areaEpsilon {
		return result
	}

	var grid storage.Grid
	if m.sizer != nil {
		grid, _ = m.sizer.ForSubbasin(block, core.ClassStormwater)
	}

	for _, tech := range m.cfg.Registry.AtScale(core.ScaleSubbasin) {
		for _, basIncr := range m.cfg.SubbasinIncrements {
			if basIncr == 0 {
				continue
			}
			impTarget := upstreamImp * basIncr
			if impTarget < areaEpsilon {
				continue
			}

			result[basIncr] = append(result[basIncr], m.designTechnology(basIncr, impTarget, tech,
				available, core.ScaleSubbasin, "", block, nil)...)
			for _, supplyIncr := range m.cfg.SubbasinIncrements {
				if supplyIncr == 0 {
					continue
				}
				store, ok := grid.At(basIncr, supplyIncr)
				if !ok {
					continue
				}
				result[basIncr] = append(result[basIncr], m.designHarvesting(basIncr, impTarget, tech,
					available, core.ScaleSubbasin, "", block, store)...)
			}
		}
	}
	return result
}

// designTechnology carries out the design for a given type, land use and
// scale: base sizing for runoff and quality, then the optional storage
// extensions. Returns zero or more fully sized instances.
func (m *Mapper) designTechnology(incr, impTarget float64, tech core.Technology, availSpace float64, scale core.Scale, landUse core.LandUse, block *blocks.Block, store *storage.Store) []*WaterTech {
	applications := m.cfg.Applications(tech)
	var result []*WaterTech

	var qtySizing, wqSizing design.Sizing
	qtyOK, wqOK := false, false
	if applications.Runoff {
		qtySizing, qtyOK = m.adapter.Design(tech, impTarget, core.Purposes{Runoff: true}, block.SoilK, tech.Exfil)
	}
	if applications.Pollution {
		wqSizing, wqOK = m.adapter.Design(tech, impTarget, core.Purposes{Pollution: true}, block.SoilK, tech.Exfil)
	}

	// the governing purpose sets the base system size
	baseSizing, baseOK := qtySizing, qtyOK
	if wqOK && (!baseOK || wqSizing.Area > baseSizing.Area) {
		baseSizing = wqSizing
		baseOK = true
	}

	if baseOK && baseSizing.Area <= availSpace {
		candidate := &WaterTech{
			Type: tech.Abbr, Scale: scale, LandUse: landUse, BlockID: block.ID,
			Area: baseSizing.Area, EAFactor: baseSizing.EAFactor, Increment: incr,
		}
		if qtyOK {
			candidate.Service[ServiceQty] = impTarget
		}
		if wqOK {
			candidate.Service[ServiceWQ] = impTarget
		}
		result = append(result, candidate)
	}

	if !applications.Recycling || store == nil {
		return result
	}
	result = append(result, m.designHarvesting(incr, impTarget, tech, availSpace, scale, landUse, block, *store)...)
	return result
}

// harvestVariant is one way of attaching the storage volume to a treatment
// system.
type harvestVariant struct {
	storeSizing  design.Sizing
	auxStoreType string // "" for integrated stores
	integrated   bool
}

// designHarvesting extends the base system with a recycling store: the
// treatment part is redesigned as a fully lined water-quality system, then
// the storage volume is attached in every geometry the type supports.
func (m *Mapper) designHarvesting(incr, impTarget float64, tech core.Technology, availSpace float64, scale core.Scale, landUse core.LandUse, block *blocks.Block, store storage.Store) []*WaterTech {
	var result []*WaterTech
	if !m.cfg.Applications(tech).Recycling {
		return result
	}

	// treatment sized for quality only; tanks treat by non-vegetated means
	var treatSizing design.Sizing
	switch tech.Abbr {
	case "RT", "GW":
		treatSizing = design.Sizing{Area: 0, EAFactor: 1}
	default:
		var ok bool
		treatSizing, ok = m.adapter.Design(tech, impTarget, core.Purposes{Pollution: true}, block.SoilK, 0)
		if !ok {
			return result
		}
	}
	if math.IsInf(store.Volume, +1) || store.Volume <= 0 {
		return result
	}

	var variants []harvestVariant
	if tech.SupportsIntegratedStore() {
		if sizing, ok := design.StoreArea(store.Volume, tech.StoreDepth(), 0, 9999); ok {
			variants = append(variants, harvestVariant{sizing, "", true})
		}
	}
	if tech.SupportsClosedAuxStore() {
		rt, _ := m.cfg.Registry.Get("RT")
		depth := rt.StoreDepth()
		if depth == 0 {
			depth = 1.9 // registry default when RT is not enabled
		}
		if sizing, ok := design.StoreArea(store.Volume, depth, 0, 9999); ok {
			variants = append(variants, harvestVariant{sizing, "RT", false})
		}
	}
	if tech.SupportsOpenAuxStore(scale) {
		pb, _ := m.cfg.Registry.Get("PB")
		depth := pb.StoreDepth()
		if depth == 0 {
			depth = 0.75
		}
		if sizing, ok := design.StoreArea(store.Volume, depth, 0, 9999); ok {
			variants = append(variants, harvestVariant{sizing, "PB", false})
		}
	}

	for _, variant := range variants {
		totalArea := treatSizing.Area + variant.storeSizing.Area
		if totalArea > availSpace {
			continue
		}
		effective := treatSizing.Area/treatSizing.EAFactor + variant.storeSizing.Area/variant.storeSizing.EAFactor
		eaFactor := 1.0
		if effective > 0 {
			eaFactor = totalArea / effective
		}

		// integrated stores share the treatment system's planning rules, so
		// the whole footprint is one object; hybrids keep the treatment
		// part as the base system
		planningArea := totalArea
		if !variant.integrated {
			planningArea = treatSizing.Area
		}
		candidate := &WaterTech{
			Type: tech.Abbr, Scale: scale, LandUse: landUse, BlockID: block.ID,
			Area: planningArea, EAFactor: eaFactor, Increment: incr,
			HasStore: true, Store: store, AuxStoreType: variant.auxStoreType,
		}
		// a lined harvesting system does not reduce flow by treatment; its
		// quantity benefit comes as an offset credit below
		candidate.Service[ServiceWQ] = impTarget
		candidate.Service[ServiceRec] = store.AnnualSupply

		if m.cfg.Recycling.SWHBenefits {
			qty, wq := m.benefits.IAOCredits(store.AnnualSupply, impTarget, m.cfg.Recycling.SWHUnitRunoff)
			if m.cfg.Rationale.Runoff {
				candidate.IAO[0] = qty
			}
			if m.cfg.Rationale.Pollute {
				candidate.IAO[1] = wq
			}
		}
		result = append(result, candidate)
	}
	return result
}

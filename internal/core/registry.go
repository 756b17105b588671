// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"slices"
)

// Scale tags where a technology is applied.
type Scale string

const (
	ScaleLot      Scale = "L"
	ScaleStreet   Scale = "S"
	ScaleNeigh    Scale = "N"
	ScaleSubbasin Scale = "B"
)

// LandUse tags the land-use category that a lot-scale technology serves.
type LandUse string

const (
	LandUseRES LandUse = "RES"
	LandUseHDR LandUse = "HDR"
	LandUseLI  LandUse = "LI"
	LandUseHI  LandUse = "HI"
	LandUseCOM LandUse = "COM"
)

// LotLandUses enumerates the land uses that host lot-scale systems, in slot
// order.
var LotLandUses = []LandUse{LandUseRES, LandUseHDR, LandUseLI, LandUseHI, LandUseCOM}

// WaterClass orders water sources by cleanliness. A source of a given class
// may serve any end use whose required class is at most as clean.
type WaterClass string

const (
	ClassPotable    WaterClass = "PO"
	ClassNonPotable WaterClass = "NP"
	ClassRainwater  WaterClass = "RW"
	ClassStormwater WaterClass = "SW"
	ClassGreywater  WaterClass = "GW"
)

var waterClassLevels = map[WaterClass]int{
	ClassPotable: 1, ClassNonPotable: 2, ClassRainwater: 3, ClassStormwater: 4, ClassGreywater: 5,
}

// Level returns the ordering rank of this water class (potable lowest).
func (c WaterClass) Level() int {
	return waterClassLevels[c]
}

// CanServe reports whether a source of this class may supply an end use
// that requires the given class.
func (c WaterClass) CanServe(enduse WaterClass) bool {
	return enduse.Level() >= c.Level()
}

// SizerKind selects the back-end that sizes a technology type.
type SizerKind int

const (
	SizeByCurve SizerKind = iota
	SizeByEquation
	SizeBySimulation
)

// Technology is one entry of the technology registry. The opportunity
// mapper iterates the registry instead of branching on type codes.
type Technology struct {
	Abbr string

	CanRunoff  bool
	CanPollute bool
	CanRecycle bool

	Scales map[Scale]bool

	Sizer     SizerKind
	CurvePath string

	// Design parameters. EDD/FD apply to filter media systems, MD to open
	// water bodies, MaxDepth/MinDead to closed tanks.
	SpecEDD  float64
	SpecFD   float64
	SpecMD   float64
	MaxDepth float64
	MinDead  float64

	MinSize float64
	MaxSize float64
	AvgLife float64
	Exfil   float64
}

// StoreDepth returns the usable storage depth of this technology when it
// carries an integrated recycling store, or 0 if it cannot store water.
func (t Technology) StoreDepth() float64 {
	switch t.Abbr {
	case "RT", "GW":
		return t.MaxDepth - t.MinDead
	case "WSUR":
		return t.SpecEDD
	case "PB":
		return t.SpecMD
	default:
		return 0
	}
}

// SupportsIntegratedStore reports whether extra storage volume can be folded
// into the system's own planning area.
func (t Technology) SupportsIntegratedStore() bool {
	switch t.Abbr {
	case "RT", "GW", "PB", "WSUR":
		return true
	default:
		return false
	}
}

// SupportsClosedAuxStore reports whether the treatment system can be paired
// with an additional closed tank.
func (t Technology) SupportsClosedAuxStore() bool {
	switch t.Abbr {
	case "WSUR", "BF", "SW":
		return true
	default:
		return false
	}
}

// SupportsOpenAuxStore reports whether the treatment system can be paired
// with an open pond at the given scale.
func (t Technology) SupportsOpenAuxStore(scale Scale) bool {
	switch t.Abbr {
	case "BF", "SW":
		return scale == ScaleNeigh || scale == ScaleSubbasin
	default:
		return false
	}
}

// Registry is the compiled set of enabled technologies.
type Registry struct {
	techs map[string]Technology
}

// KnownTechnologyCodes lists every code that may appear in a scoring matrix.
// Only a subset is fully designed by this planner.
var KnownTechnologyCodes = []string{
	"ASHP", "AQ", "ASR", "BF", "GR", "GT", "GPT", "IS", "PPL", "PB", "PP",
	"RT", "SF", "IRR", "WSUB", "WSUR", "SW", "TPS", "UT", "WWRR", "GW",
}

// defaultTechnologies carries the built-in design parameters. Entries are
// merged with the user's TechnologyConfiguration overrides.
var defaultTechnologies = map[string]Technology{
	"BF": {
		Abbr: "BF", CanRunoff: true, CanPollute: true, CanRecycle: true,
		Scales: map[Scale]bool{ScaleLot: true, ScaleStreet: true, ScaleNeigh: true, ScaleSubbasin: true},
		Sizer:  SizeByCurve,
		SpecEDD: 0.4, SpecFD: 0.6, MinSize: 5, MaxSize: 999999, AvgLife: 20, Exfil: 0,
	},
	"IS": {
		Abbr: "IS", CanRunoff: true, CanPollute: true,
		Scales: map[Scale]bool{ScaleLot: true, ScaleStreet: true, ScaleNeigh: true, ScaleSubbasin: true},
		Sizer:  SizeByCurve,
		SpecEDD: 0.2, SpecFD: 0.8, MinSize: 5, MaxSize: 99999, AvgLife: 20, Exfil: 3.6,
	},
	"PB": {
		Abbr: "PB", CanRunoff: true, CanPollute: true,
		Scales: map[Scale]bool{ScaleNeigh: true, ScaleSubbasin: true},
		Sizer:  SizeByCurve,
		SpecMD: 0.75, MinSize: 100, MaxSize: 9999999, AvgLife: 20, Exfil: 0.36,
	},
	"RT": {
		Abbr: "RT", CanRecycle: true,
		Scales: map[Scale]bool{ScaleLot: true},
		Sizer:  SizeByEquation,
		MaxDepth: 2.0, MinDead: 0.1, MinSize: 0, MaxSize: 9999, AvgLife: 20,
	},
	"WSUR": {
		Abbr: "WSUR", CanRunoff: true, CanPollute: true,
		Scales: map[Scale]bool{ScaleNeigh: true, ScaleSubbasin: true},
		Sizer:  SizeByCurve,
		SpecEDD: 0.75, MinSize: 200, MaxSize: 9999999, AvgLife: 20, Exfil: 0.36,
	},
	"SW": {
		Abbr: "SW", CanRunoff: true, CanPollute: true,
		Scales: map[Scale]bool{ScaleStreet: true, ScaleNeigh: true},
		Sizer:  SizeByCurve,
		MinSize: 20, MaxSize: 9999, AvgLife: 20, Exfil: 3.6,
	},
	"GW": {
		Abbr: "GW", CanRecycle: true,
		Scales: map[Scale]bool{ScaleLot: true},
		Sizer:  SizeByEquation,
		MaxDepth: 2.0, MinDead: 0.1, MinSize: 0, MaxSize: 9999, AvgLife: 20,
	},
}

// BuildRegistry compiles the technology registry from the built-in defaults
// and the user's overrides. Only enabled technologies are included.
func BuildRegistry(cfg PlannerConfiguration) Registry {
	reg := Registry{techs: make(map[string]Technology)}
	for abbr, userCfg := range cfg.Techs {
		if !userCfg.Enabled {
			continue
		}
		tech, exists := defaultTechnologies[abbr]
		if !exists {
			continue // validated earlier; unknown codes never reach this point
		}

		tech.Scales = map[Scale]bool{}
		defaults := defaultTechnologies[abbr].Scales
		overrideScale := func(scale Scale, override *bool) {
			if override != nil {
				tech.Scales[scale] = *override && defaults[scale]
			} else {
				tech.Scales[scale] = defaults[scale]
			}
		}
		overrideScale(ScaleLot, userCfg.Lot)
		overrideScale(ScaleStreet, userCfg.Street)
		overrideScale(ScaleNeigh, userCfg.Neigh)
		overrideScale(ScaleSubbasin, userCfg.Subbasin)

		if userCfg.Flow != nil {
			tech.CanRunoff = *userCfg.Flow && defaultTechnologies[abbr].CanRunoff
		}
		if userCfg.Pollute != nil {
			tech.CanPollute = *userCfg.Pollute && defaultTechnologies[abbr].CanPollute
		}
		if userCfg.Recycle != nil {
			tech.CanRecycle = *userCfg.Recycle && defaultTechnologies[abbr].CanRecycle
		}

		tech.CurvePath = userCfg.CurvePath
		if userCfg.SpecEDD != 0 {
			tech.SpecEDD = userCfg.SpecEDD
		}
		if userCfg.SpecFD != 0 {
			tech.SpecFD = userCfg.SpecFD
		}
		if userCfg.SpecMD != 0 {
			tech.SpecMD = userCfg.SpecMD
		}
		if userCfg.MaxDepth != 0 {
			tech.MaxDepth = userCfg.MaxDepth
		}
		if userCfg.MinDead != 0 {
			tech.MinDead = userCfg.MinDead
		}
		if userCfg.MinSize != 0 {
			tech.MinSize = userCfg.MinSize
		}
		if userCfg.MaxSize != 0 {
			tech.MaxSize = userCfg.MaxSize
		}
		if userCfg.AvgLife != 0 {
			tech.AvgLife = userCfg.AvgLife
		}
		if userCfg.Exfil != 0 {
			tech.Exfil = userCfg.Exfil
		}

		reg.techs[abbr] = tech
	}
	return reg
}

// Get returns the registry entry for the given type code.
func (r Registry) Get(abbr string) (Technology, bool) {
	tech, ok := r.techs[abbr]
	return tech, ok
}

// AtScale returns all enabled technologies permitted at the given scale, in
// stable (alphabetical) order for deterministic iteration.
func (r Registry) AtScale(scale Scale) []Technology {
	var result []Technology
	for _, tech := range r.techs {
		if tech.Scales[scale] {
			result = append(result, tech)
		}
	}
	slices.SortFunc(result, func(lhs, rhs Technology) int {
		switch {
		case lhs.Abbr < rhs.Abbr:
			return -1
		case lhs.Abbr > rhs.Abbr:
			return +1
		default:
			return 0
		}
	})
	return result
}

// Purposes is the three-bit objective set used when sizing a system.
type Purposes struct {
	Runoff    bool
	Pollution bool
	Recycling bool
}

// Applications intersects a technology's capabilities with the globally
// enabled rationales.
func (c *PlannerConfig) Applications(tech Technology) Purposes {
	return Purposes{
		Runoff:    tech.CanRunoff && c.Rationale.Runoff,
		Pollution: tech.CanPollute && c.Rationale.Pollute,
		Recycling: tech.CanRecycle && c.Rationale.Harvest,
	}
}

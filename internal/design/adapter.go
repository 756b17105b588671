// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package design

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/wsud-planner/internal/core"
)

// Sizing is the result of one successful design: the planning area of the
// system and the factor relating planning area to effective treatment area.
type Sizing struct {
	Area     float64
	EAFactor float64
}

// planningFactors relates a system's planning footprint to its effective
// treatment area (batters, access strips, buffers).
var planningFactors = map[string]float64{
	"BF": 1.3, "IS": 1.3, "WSUR": 1.3, "PB": 1.2, "SW": 1.0, "RT": 1.0, "GW": 1.0,
}

// EAFactorFor returns the planning factor for a technology type.
func EAFactorFor(abbr string) float64 {
	if factor, exists := planningFactors[abbr]; exists {
		return factor
	}
	return 1.0
}

// Adapter is the uniform façade over the curve-based, equation-based and
// simulation-based sizing strategies. It is safe for concurrent use.
type Adapter struct {
	cfg    *core.PlannerConfig
	curves *CurveCache
}

// NewAdapter builds a sizing adapter over the given curve cache.
func NewAdapter(cfg *core.PlannerConfig, curves *CurveCache) *Adapter {
	return &Adapter{cfg: cfg, curves: curves}
}

// CurvePath assembles the design curve path for a technology, following the
// built-in naming scheme unless the user supplied a custom curve file.
func (a *Adapter) CurvePath(tech core.Technology) string {
	if tech.CurvePath != "" {
		return tech.CurvePath
	}
	dir := a.cfg.CurveDirectory
	switch tech.Abbr {
	case "BF", "IS":
		return filepath.Join(dir, fmt.Sprintf("%s-EDD%.1fm-FD%.1fm-DC.dcv", tech.Abbr, tech.SpecEDD, tech.SpecFD))
	case "PB":
		return filepath.Join(dir, fmt.Sprintf("PB-MD%.2fm-DC.dcv", tech.SpecMD))
	case "WSUR":
		return filepath.Join(dir, fmt.Sprintf("WSUR-EDD%.2fm-DC.dcv", tech.SpecEDD))
	case "SW":
		return filepath.Join(dir, "SW-DC.dcv")
	default:
		return ""
	}
}

// Design sizes a system of the given type against the target impervious
// area. The returned area is the maximum over all invoked purposes, with
// the effective-area factor following the governing purpose. The second
// return value is false when the design is infeasible: the curve lookup ran
// out of range, or the result violates the system's size bounds.
func (a *Adapter) Design(tech core.Technology, impTarget float64, purposes core.Purposes, soilK, systemK float64) (Sizing, bool) {
	if impTarget <= 0 {
		return Sizing{}, false
	}

	targets := a.targetsFor(purposes)
	if targets == ([4]float64{}) {
		return Sizing{}, false
	}

	var effectiveArea float64
	switch tech.Sizer {
	case core.SizeByCurve:
		curve, err := a.curves.Get(a.CurvePath(tech))
		if err != nil {
			// A missing or broken curve file makes this type undesignable,
			// not the run failed: candidates are simply not generated.
			logg.Error("design %s: %s", tech.Abbr, err.Error())
			return Sizing{}, false
		}
		fraction := curve.RequiredFraction(math.Min(soilK, systemK), targets)
		if math.IsInf(fraction, +1) {
			return Sizing{}, false
		}
		effectiveArea = impTarget * fraction
	case core.SizeBySimulation:
		fraction, ok := a.simulateFraction(tech, targets, soilK, systemK)
		if !ok {
			return Sizing{}, false
		}
		effectiveArea = impTarget * fraction
	case core.SizeByEquation:
		// Closed stores have no treatment surface; their sizing happens via
		// StoreArea once the storage volume is known.
		return Sizing{}, false
	default:
		return Sizing{}, false
	}

	eaFactor := EAFactorFor(tech.Abbr)
	planningArea := effectiveArea * eaFactor
	if planningArea < tech.MinSize || (tech.MaxSize > 0 && planningArea > tech.MaxSize) {
		return Sizing{}, false
	}
	return Sizing{Area: planningArea, EAFactor: eaFactor}, true
}

// targetsFor masks the global targets vector down to the invoked purposes:
// runoff drives the Q% target, pollution drives TSS/TP/TN.
func (a *Adapter) targetsFor(purposes core.Purposes) [4]float64 {
	var targets [4]float64
	if purposes.Runoff {
		targets[0] = a.cfg.TargetsVector[0]
	}
	if purposes.Pollution {
		targets[1] = a.cfg.TargetsVector[1]
		targets[2] = a.cfg.TargetsVector[2]
		targets[3] = a.cfg.TargetsVector[3]
	}
	return targets
}

// StoreArea sizes the surface footprint of a storage volume at the given
// usable depth, e.g. the open water body of a harvesting wetland or the pad
// of an auxiliary tank.
func StoreArea(volume, depth, minSize, maxSize float64) (Sizing, bool) {
	if volume <= 0 || depth <= 0 || math.IsInf(volume, +1) {
		return Sizing{}, false
	}
	area := volume / depth
	if area < minSize || (maxSize > 0 && area > maxSize) {
		return Sizing{}, false
	}
	return Sizing{Area: area, EAFactor: 1.0}, true
}

// simulateFraction runs a short storage-behaviour simulation to find the
// smallest surface fraction that meets the runoff target: the system is
// modelled as a store of depth EDD over the candidate area that empties by
// exfiltration between storms.
func (a *Adapter) simulateFraction(tech core.Technology, targets [4]float64, soilK, systemK float64) (float64, bool) {
	target := targets[0] / 100.0
	if target <= 0 {
		return 0, false
	}
	depth := tech.SpecEDD
	if depth <= 0 {
		depth = 0.3
	}
	drainRate := math.Min(soilK, systemK) * 24.0 / 1000.0 // [m/day]
	if drainRate <= 0 {
		return 0, false
	}

	// A store of depth d over fraction f of the impervious area captures
	// f*d [m³ per m² of catchment] per storm and recovers drainRate*f per
	// day. With the design storm sequence normalised to one 40 mm event per
	// week, the captured share is:
	capture := func(fraction float64) float64 {
		stormDepth := 0.040 // [m]
		storeVol := fraction * depth
		recovered := math.Min(storeVol, fraction*drainRate*7.0)
		return math.Min(storeVol, recovered) / stormDepth
	}

	lo, hi := 0.0, 1.0
	if capture(hi) < target {
		return 0, false
	}
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		if capture(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, true
}

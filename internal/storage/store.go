// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package storage sizes recycling stores at lot, neighbourhood and
// sub-basin scale from inflow and demand series.
package storage

import (
	"github.com/sapcc/wsud-planner/internal/core"
)

// EndUse identifies one water end use that a recycled source may serve.
type EndUse string

const (
	EndUseKitchen    EndUse = "K"
	EndUseShower     EndUse = "S"
	EndUseToilet     EndUse = "T"
	EndUseLaundry    EndUse = "L"
	EndUseIrrigation EndUse = "I"
	EndUsePublicIrr  EndUse = "PI"
)

// Store describes one sized recycling store. Value type; created only by
// the storage sizer.
type Store struct {
	Class        core.WaterClass
	Scale        core.Scale
	Volume       float64 // [kL]
	HarvestArea  float64 // [sqm]
	EndUses      []EndUse
	Reliability  float64 // [%]
	AnnualSupply float64 // [kL/yr]
}

// Grid is the neighbourhood/sub-basin result table, keyed by
// (harvest increment, supply increment). Absent entries are infeasible.
type Grid map[float64]map[float64]Store

// At returns the store for the given increments, if one could be sized.
func (g Grid) At(harvestIncr, supplyIncr float64) (Store, bool) {
	inner, exists := g[harvestIncr]
	if !exists {
		return Store{}, false
	}
	store, exists := inner[supplyIncr]
	return store, exists
}

func (g Grid) put(harvestIncr, supplyIncr float64, store Store) {
	inner, exists := g[harvestIncr]
	if !exists {
		inner = make(map[float64]Store)
		g[harvestIncr] = inner
	}
	inner[supplyIncr] = store
}

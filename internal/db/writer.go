// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gorp/gorp/v3"

	"github.com/sapcc/wsud-planner/internal/plan"
)

// SaveResults persists one planner run with all emitted basin strategies
// and their per-block selections.
func SaveResults(dbMap *gorp.DbMap, seed int64, startedAt time.Time, results *plan.Results) (runID int64, err error) {
	tx, err := dbMap.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			err2 := tx.Rollback()
			if err2 != nil {
				err = fmt.Errorf("%w (additionally, rollback failed: %s)", err, err2.Error())
			}
		}
	}()

	now := time.Now().UTC()
	run := &PlannerRun{StartedAt: startedAt.UTC(), FinishedAt: &now, Seed: seed}
	err = tx.Insert(run)
	if err != nil {
		return 0, err
	}

	for _, basinID := range sortedBasinIDs(results) {
		for rank, strategy := range results.PerBasin[basinID] {
			row := &BasinStrategy{
				RunID:     run.ID,
				BasinID:   basinID,
				Rank:      rank + 1,
				Score:     strategy.Score,
				Objective: strategy.Objective,
				PQty:      strategy.PValues[0],
				PWQ:       strategy.PValues[1],
				PRec:      strategy.PValues[2],
			}
			err = tx.Insert(row)
			if err != nil {
				return 0, err
			}
			err = insertSelections(tx, row.ID, strategy)
			if err != nil {
				return 0, err
			}
		}
	}

	return run.ID, tx.Commit()
}

func insertSelections(tx *gorp.Transaction, strategyID int64, strategy *plan.BasinStrategy) error {
	insertTech := func(tech *plan.WaterTech) error {
		row := &StrategySelection{
			StrategyID: strategyID,
			BlockID:    tech.BlockID,
			Scale:      string(tech.Scale),
			LandUse:    string(tech.LandUse),
			TechType:   tech.Type,
			Area:       tech.Area,
			EAFactor:   tech.EAFactor,
			ServiceQty: tech.Service[plan.ServiceQty],
			ServiceWQ:  tech.Service[plan.ServiceWQ],
			ServiceRec: tech.Service[plan.ServiceRec],
		}
		if tech.HasStore {
			row.StoreVolume = tech.Store.Volume
		}
		return tx.Insert(row)
	}

	for _, blockID := range sortedKeys(strategy.InBlock) {
		for _, tech := range strategy.InBlock[blockID].Techs {
			if tech == nil {
				continue
			}
			err := insertTech(tech)
			if err != nil {
				return err
			}
		}
	}
	for _, blockID := range sortedKeys(strategy.Subbasin) {
		err := insertTech(strategy.Subbasin[blockID])
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	return keys
}

func sortedBasinIDs(results *plan.Results) []int {
	return sortedKeys(results.PerBasin)
}

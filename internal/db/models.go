// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"time"

	"github.com/go-gorp/gorp/v3"
)

// PlannerRun contains a record from the `planner_runs` table.
type PlannerRun struct {
	ID         int64      `db:"id"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"` // pointer type to allow for NULL value
	Seed       int64      `db:"seed"`
}

// BasinStrategy contains a record from the `basin_strategies` table.
type BasinStrategy struct {
	ID        int64   `db:"id"`
	RunID     int64   `db:"run_id"`
	BasinID   int     `db:"basin_id"`
	Rank      int     `db:"rank"`
	Score     float64 `db:"score"`
	Objective float64 `db:"objective"`
	PQty      float64 `db:"p_qty"`
	PWQ       float64 `db:"p_wq"`
	PRec      float64 `db:"p_rec"`
}

// StrategySelection contains a record from the `strategy_selections` table:
// one placed technology instance of a basin strategy.
type StrategySelection struct {
	ID          int64   `db:"id"`
	StrategyID  int64   `db:"strategy_id"`
	BlockID     int     `db:"block_id"`
	Scale       string  `db:"scale"`
	LandUse     string  `db:"land_use"`
	TechType    string  `db:"tech_type"`
	Area        float64 `db:"area"`
	EAFactor    float64 `db:"ea_factor"`
	ServiceQty  float64 `db:"service_qty"`
	ServiceWQ   float64 `db:"service_wq"`
	ServiceRec  float64 `db:"service_rec"`
	StoreVolume float64 `db:"store_volume"`
}

// initGorp is used by InitORM() to set up the ORM part of the database
// connection.
func initGorp(dbMap *gorp.DbMap) {
	dbMap.AddTableWithName(PlannerRun{}, "planner_runs").SetKeys(true, "id")
	dbMap.AddTableWithName(BasinStrategy{}, "basin_strategies").SetKeys(true, "id")
	dbMap.AddTableWithName(StrategySelection{}, "strategy_selections").SetKeys(true, "id")
}

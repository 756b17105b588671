// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP TABLE strategy_selections;
		DROP TABLE basin_strategies;
		DROP TABLE planner_runs;
	`,
	"001_initial.up.sql": `
		CREATE TABLE planner_runs (
			id           BIGSERIAL  NOT NULL PRIMARY KEY,
			started_at   TIMESTAMP  NOT NULL,
			finished_at  TIMESTAMP,
			seed         BIGINT     NOT NULL DEFAULT 0
		);

		CREATE TABLE basin_strategies (
			id         BIGSERIAL         NOT NULL PRIMARY KEY,
			run_id     BIGINT            NOT NULL REFERENCES planner_runs ON DELETE CASCADE,
			basin_id   INTEGER           NOT NULL,
			rank       INTEGER           NOT NULL,
			score      DOUBLE PRECISION  NOT NULL,
			objective  DOUBLE PRECISION  NOT NULL,
			p_qty      DOUBLE PRECISION  NOT NULL,
			p_wq       DOUBLE PRECISION  NOT NULL,
			p_rec      DOUBLE PRECISION  NOT NULL
		);
		CREATE INDEX basin_strategies_basin_idx ON basin_strategies (run_id, basin_id);

		CREATE TABLE strategy_selections (
			id             BIGSERIAL         NOT NULL PRIMARY KEY,
			strategy_id    BIGINT            NOT NULL REFERENCES basin_strategies ON DELETE CASCADE,
			block_id       INTEGER           NOT NULL,
			scale          TEXT              NOT NULL,
			land_use       TEXT              NOT NULL DEFAULT '',
			tech_type      TEXT              NOT NULL,
			area           DOUBLE PRECISION  NOT NULL,
			ea_factor      DOUBLE PRECISION  NOT NULL,
			service_qty    DOUBLE PRECISION  NOT NULL,
			service_wq     DOUBLE PRECISION  NOT NULL,
			service_rec    DOUBLE PRECISION  NOT NULL,
			store_volume   DOUBLE PRECISION  NOT NULL DEFAULT 0
		);
		CREATE INDEX strategy_selections_strategy_idx ON strategy_selections (strategy_id);
	`,
}

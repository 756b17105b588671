// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"github.com/sapcc/go-bits/respondwith"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/sapcc/wsud-planner/internal/core"
	"github.com/sapcc/wsud-planner/internal/db"
	"github.com/sapcc/wsud-planner/internal/plan"
)

func main() {
	// first two arguments must be task name and configuration file
	if len(os.Args) < 3 {
		printUsageAndExit()
	}
	taskName, configPath := os.Args[1], os.Args[2]

	logg.ShowDebug = osext.GetenvBool("WSUD_DEBUG")
	cfg := core.NewConfiguration(configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var task func(context.Context, *core.PlannerConfig, []string) error
	switch taskName {
	case "plan":
		task = taskPlan
	case "serve":
		task = taskServe
	default:
		printUsageAndExit()
	}

	err := task(ctx, cfg, os.Args[3:])
	if err != nil {
		logg.Fatal(err.Error())
	}
}

var usageMessage = strings.Replace(strings.TrimSpace(`
Usage:
\t%s plan <config-file> [<output-file>]
\t%s serve <config-file>
`), `\t`, "\t", -1) + "\n"

func printUsageAndExit() {
	fmt.Fprintln(os.Stderr, strings.Replace(usageMessage, "%s", os.Args[0], -1))
	os.Exit(1)
}

////////////////////////////////////////////////////////////////////////////////
// task: plan

func taskPlan(ctx context.Context, cfg *core.PlannerConfig, args []string) error {
	if len(args) > 1 {
		printUsageAndExit()
	}
	plan.RegisterMetrics()

	dbConn, err := db.Init()
	if err != nil {
		return err
	}
	dbMap := db.InitORM(dbConn)

	planner, err := plan.LoadPlanner(cfg)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	results, err := planner.Run(ctx)
	if err != nil {
		return err
	}

	runID, err := db.SaveResults(dbMap, cfg.MonteCarlo.Seed, startedAt, results)
	if err != nil {
		return err
	}
	logg.Info("planner run %d completed in %s", runID, time.Since(startedAt).Round(time.Millisecond))

	if len(args) == 1 {
		buf, err := json.MarshalIndent(resultsToReport(results), "", "  ")
		if err != nil {
			return err
		}
		err = os.WriteFile(args[0], buf, 0o644)
		if err != nil {
			return err
		}
	}
	return nil
}

// resultsToReport renders the run results into the serialisable report
// structure shared with the serve task.
func resultsToReport(results *plan.Results) map[string][]strategyReport {
	report := make(map[string][]strategyReport, len(results.PerBasin))
	for basinID, strategies := range results.PerBasin {
		list := []strategyReport{}
		for rank, strategy := range strategies {
			list = append(list, strategyReport{
				Rank:      rank + 1,
				Score:     strategy.Score,
				Objective: strategy.Objective,
				PQty:      strategy.PValues[0],
				PWQ:       strategy.PValues[1],
				PRec:      strategy.PValues[2],
			})
		}
		report[strconv.Itoa(basinID)] = list
	}
	return report
}

type strategyReport struct {
	Rank      int     `json:"rank"`
	Score     float64 `json:"score"`
	Objective float64 `json:"objective"`
	PQty      float64 `json:"p_qty"`
	PWQ       float64 `json:"p_wq"`
	PRec      float64 `json:"p_rec"`
}

////////////////////////////////////////////////////////////////////////////////
// task: serve

var strategiesQuery = sqlext.SimplifyWhitespace(`
	SELECT bs.basin_id, bs.rank, bs.score, bs.objective, bs.p_qty, bs.p_wq, bs.p_rec
	  FROM basin_strategies bs
	  JOIN planner_runs pr ON pr.id = bs.run_id
	 WHERE pr.id = (SELECT max(id) FROM planner_runs)
	 ORDER BY bs.basin_id, bs.rank
`)

func taskServe(ctx context.Context, cfg *core.PlannerConfig, args []string) error {
	if len(args) != 0 {
		printUsageAndExit()
	}

	dbConn, err := db.Init()
	if err != nil {
		return err
	}

	mainRouter := mux.NewRouter()
	mainRouter.HandleFunc("/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
		report := make(map[string][]strategyReport)
		err := sqlext.ForeachRow(dbConn, strategiesQuery, nil, func(rows *sql.Rows) error {
			var (
				basinID int
				entry   strategyReport
			)
			err := rows.Scan(&basinID, &entry.Rank, &entry.Score, &entry.Objective,
				&entry.PQty, &entry.PWQ, &entry.PRec)
			if err == nil {
				key := strconv.Itoa(basinID)
				report[key] = append(report[key], entry)
			}
			return err
		})
		if respondwith.ErrorText(w, err) {
			return
		}
		respondwith.JSON(w, http.StatusOK, report)
	}).Methods("GET")
	mainRouter.Handle("/metrics", promhttp.Handler())

	listenAddress := osext.GetenvOrDefault("WSUD_API_LISTEN_ADDRESS", ":8080")
	server := &http.Server{Addr: listenAddress, Handler: mainRouter}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info("listening on %s", listenAddress)
	err = server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

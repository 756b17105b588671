// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package mca implements the weighted-sum multi-criteria scorer shared by
// the in-block combiner and the basin composer.
package mca

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/wsud-planner/internal/core"
)

// CriterionGroup indexes the four criterion groups.
type CriterionGroup int

const (
	GroupTech CriterionGroup = iota
	GroupEnv
	GroupEcn
	GroupSoc
	groupCount
)

// Matrix holds the rescaled per-technology scores per criterion group.
type Matrix struct {
	// scores[group][techAbbr] is the list of rescaled metric scores
	scores [groupCount]map[string][]float64
}

// groupPrefixes lists the accepted column header prefixes per criterion
// group. Matching is case-insensitive.
var groupPrefixes = [groupCount][]string{
	GroupTech: {"te", "tec", "tech", "technical", "technology", "technological"},
	GroupEnv:  {"en", "env", "enviro", "environ", "environment", "environmental"},
	GroupEcn:  {"ec", "ecn", "econ", "economic", "economics", "economical"},
	GroupSoc:  {"so", "soc", "social", "society", "socio", "societal", "people", "person"},
}

// classifyHeader assigns a column header like "Tec1" or "ENVIRONMENT3" to a
// criterion group by stripping the trailing index and matching the prefix.
func classifyHeader(header string) (CriterionGroup, bool) {
	stem := strings.TrimRight(strings.TrimSpace(header), "0123456789")
	stem = strings.ToLower(stem)
	for group := range groupPrefixes {
		if slices.Contains(groupPrefixes[group], stem) {
			return CriterionGroup(group), true
		}
	}
	return 0, false
}

// LoadMatrix reads the scoring matrix from the CSV file at the given path.
func LoadMatrix(path string, cfg core.MCAConfiguration) (*Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read MCA scoring matrix: %w", err)
	}
	defer file.Close()
	return ParseMatrix(file, cfg)
}

// ParseMatrix reads the scoring matrix. The first row carries column
// headers prefixed with a criterion-group token; each subsequent row names
// a known technology abbreviation followed by its scores. When the declared
// per-group metric counts disagree with the file, the column assignment is
// re-detected from the headers.
func ParseMatrix(reader io.Reader, cfg core.MCAConfiguration) (*Matrix, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse MCA scoring matrix: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("MCA scoring matrix has no technology rows")
	}
	headers := records[0]
	totalMetrics := len(headers) - 1

	// column positions per group: either from the user's declared counts, or
	// auto-detected from the headers when the counts do not add up
	var positions [groupCount][]int
	declared := cfg.TechMetrics + cfg.EnvMetrics + cfg.EcnMetrics + cfg.SocMetrics
	if declared == totalMetrics && declared > 0 {
		col := 1
		for group, count := range []int{cfg.TechMetrics, cfg.EnvMetrics, cfg.EcnMetrics, cfg.SocMetrics} {
			for i := 0; i < count; i++ {
				positions[group] = append(positions[group], col)
				col++
			}
		}
	} else {
		logg.Info("declared MCA metric counts (%d) do not match the file (%d columns), identifying metrics from headers", declared, totalMetrics)
		for col := 1; col < len(headers); col++ {
			group, ok := classifyHeader(headers[col])
			if !ok {
				logg.Error("MCA scoring matrix: cannot classify column %q, ignoring it", headers[col])
				continue
			}
			positions[group] = append(positions[group], col)
		}
	}

	matrix := &Matrix{}
	for group := range matrix.scores {
		matrix.scores[group] = make(map[string][]float64)
	}

	for rowIdx, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		abbr := strings.TrimSpace(record[0])
		if !slices.Contains(core.KnownTechnologyCodes, abbr) {
			return nil, fmt.Errorf("MCA scoring matrix row %d: unknown technology code %q", rowIdx+2, abbr)
		}
		for group := range positions {
			var scores []float64
			for _, col := range positions[group] {
				if col >= len(record) {
					return nil, fmt.Errorf("MCA scoring matrix row %d: too few columns for technology %s", rowIdx+2, abbr)
				}
				value, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
				if err != nil {
					return nil, fmt.Errorf("MCA scoring matrix row %d: malformed score %q for technology %s", rowIdx+2, record[col], abbr)
				}
				scores = append(scores, value)
			}
			// rescale by metric count so that each criterion group starts
			// with equal weight
			for i := range scores {
				scores[i] /= float64(len(scores))
			}
			matrix.scores[group][abbr] = scores
		}
	}
	return matrix, nil
}

// GroupScore returns the summed rescaled score of a technology in the given
// criterion group, and whether the technology appears in the matrix.
func (m *Matrix) GroupScore(group CriterionGroup, abbr string) (float64, bool) {
	scores, exists := m.scores[group][abbr]
	if !exists {
		return 0, false
	}
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total, true
}

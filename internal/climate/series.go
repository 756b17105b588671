// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package climate reads rainfall and evaporation series and rescales them to
// the daily timestep that the storage sizing mass balance works on.
package climate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const minutesPerDay = 1440

// LoadSeries reads a climate series (one value per line, fixed timestep of
// stepMinutes) and aggregates it to daily sums. At most years*365 days are
// returned.
func LoadSeries(path string, stepMinutes, years float64) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read climate series: %w", err)
	}
	defer file.Close()
	return ParseSeries(file, stepMinutes, years, path)
}

// ParseSeries is the testable core of LoadSeries.
func ParseSeries(reader io.Reader, stepMinutes, years float64, name string) ([]float64, error) {
	if stepMinutes <= 0 || stepMinutes > minutesPerDay {
		return nil, fmt.Errorf("climate series %s: invalid timestep %g minutes", name, stepMinutes)
	}
	stepsPerDay := int(minutesPerDay / stepMinutes)
	maxDays := int(years * 365)

	var daily []float64
	daySum, stepsInDay := 0.0, 0

	scanner := bufio.NewScanner(reader)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("climate series %s line %d: malformed value %q", name, lineNo, text)
		}
		daySum += value
		stepsInDay++
		if stepsInDay == stepsPerDay {
			daily = append(daily, daySum)
			daySum, stepsInDay = 0, 0
			if maxDays > 0 && len(daily) == maxDays {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read climate series %s: %w", name, err)
	}
	if stepsInDay > 0 {
		daily = append(daily, daySum)
	}
	if len(daily) == 0 {
		return nil, fmt.Errorf("climate series %s is empty", name)
	}
	return daily, nil
}

// ScalingFactors converts a daily series into dimensionless factors around
// its mean. A flat series yields all ones.
func ScalingFactors(daily []float64) []float64 {
	mean := Mean(daily)
	factors := make([]float64, len(daily))
	for i, v := range daily {
		if mean == 0 {
			factors[i] = 1
		} else {
			factors[i] = v / mean
		}
	}
	return factors
}

// ScaledSeries spreads an annual total [kL/yr] across days following the
// given scaling pattern (e.g. irrigation demand following evaporation).
func ScaledSeries(annualTotal float64, scale []float64) []float64 {
	series := make([]float64, len(scale))
	perDay := annualTotal / 365.0
	for i, factor := range scale {
		series[i] = perDay * factor
	}
	return series
}

// ConstantSeries produces n days of the same daily value.
func ConstantSeries(perDay float64, n int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = perDay
	}
	return series
}

// InflowSeries converts daily rainfall [mm] on a collection area [sqm] into
// daily inflow [kL].
func InflowSeries(rain []float64, area float64) []float64 {
	inflow := make([]float64, len(rain))
	for i, mm := range rain {
		inflow[i] = mm / 1000.0 * area
	}
	return inflow
}

// AnnualInflow is the average annual inflow [kL/yr] that the collection area
// receives over the series.
func AnnualInflow(rain []float64, area, years float64) float64 {
	if years <= 0 {
		return 0
	}
	total := 0.0
	for _, mm := range rain {
		total += mm
	}
	return total / 1000.0 * area / years
}

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range series {
		total += v
	}
	return total / float64(len(series))
}

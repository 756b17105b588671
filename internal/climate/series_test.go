// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package climate

import (
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

func TestParseSeriesAggregatesToDaily(t *testing.T) {
	// 720-minute timestep: two values per day
	input := strings.NewReader("1.5\n2.5\n0\n4\n")
	daily, err := ParseSeries(input, 720, 1, "test")
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "daily sums", daily, []float64{4, 4})
}

func TestParseSeriesRejectsMalformedValues(t *testing.T) {
	_, err := ParseSeries(strings.NewReader("1.0\nnope\n"), 1440, 1, "test")
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line-naming error, got %v", err)
	}
	_, err = ParseSeries(strings.NewReader(""), 1440, 1, "test")
	if err == nil {
		t.Error("expected error for empty series")
	}
}

func TestScalingFactors(t *testing.T) {
	factors := ScalingFactors([]float64{2, 4, 6})
	assert.DeepEqual(t, "factors", factors, []float64{0.5, 1, 1.5})

	flat := ScalingFactors([]float64{0, 0})
	assert.DeepEqual(t, "flat series", flat, []float64{1, 1})
}

func TestSeriesConstruction(t *testing.T) {
	assert.DeepEqual(t, "constant", ConstantSeries(2, 3), []float64{2, 2, 2})

	scaled := ScaledSeries(365, []float64{0.5, 1.5})
	assert.DeepEqual(t, "scaled", scaled, []float64{0.5, 1.5})

	// 10 mm on 500 sqm = 5 kL
	inflow := InflowSeries([]float64{10}, 500)
	assert.DeepEqual(t, "inflow", inflow, []float64{5})

	annual := AnnualInflow([]float64{10, 10}, 500, 2)
	assert.DeepEqual(t, "annual inflow", annual, 5.0)
}

// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package design

import (
	"math"
	"strings"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

const testCurveText = `
# biofilter test curve
k 0
30,60,30,30,0.01
60,80,45,45,0.02
80,90,60,60,0.04
k 36
30,60,30,30,0.005
60,80,45,45,0.01
80,90,60,60,0.02
`

func parseTestCurve(t *testing.T) *Curve {
	t.Helper()
	curve, err := ParseCurve(strings.NewReader(testCurveText), "test")
	if err != nil {
		t.Fatal(err)
	}
	return curve
}

func TestCurveLookup(t *testing.T) {
	curve := parseTestCurve(t)
	closeTo := func(name string, actual, expected float64) {
		t.Helper()
		if diff := actual - expected; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: expected %g, got %g", name, expected, actual)
		}
	}

	// exact row hit at k=36: TSS=80, TP=45, TN=45 -> 0.01
	closeTo("exact hit", curve.RequiredFraction(36, [4]float64{0, 80, 45, 45}), 0.01)

	// interpolation between rows: TSS=85 is halfway between 80 and 90
	closeTo("interpolated", curve.RequiredFraction(36, [4]float64{0, 85, 0, 0}), 0.015)

	// clamped at the bottom end
	closeTo("clamped low", curve.RequiredFraction(36, [4]float64{0, 10, 0, 0}), 0.005)

	// out of range means infeasible
	fraction := curve.RequiredFraction(36, [4]float64{0, 99, 0, 0})
	if !math.IsInf(fraction, +1) {
		t.Errorf("expected +Inf for unreachable target, got %g", fraction)
	}

	// lower infiltration rate falls back to the k=0 section
	closeTo("low-k section", curve.RequiredFraction(10, [4]float64{0, 80, 45, 45}), 0.02)

	// the strictest target governs
	closeTo("governing target", curve.RequiredFraction(36, [4]float64{0, 60, 60, 0}), 0.02)
}

func TestParseCurveErrors(t *testing.T) {
	_, err := ParseCurve(strings.NewReader("1,2,3\n"), "test")
	if err == nil {
		t.Error("expected error for wrong column count")
	}
	_, err = ParseCurve(strings.NewReader("# only comments\n"), "test")
	if err == nil {
		t.Error("expected error for empty curve")
	}
}

func TestStoreArea(t *testing.T) {
	sizing, ok := StoreArea(20, 2, 0, 9999)
	if !ok {
		t.Fatal("expected feasible store area")
	}
	assert.DeepEqual(t, "area", sizing.Area, 10.0)
	assert.DeepEqual(t, "ea factor", sizing.EAFactor, 1.0)

	_, ok = StoreArea(math.Inf(+1), 2, 0, 9999)
	if ok {
		t.Error("infinite volume must be infeasible")
	}
	_, ok = StoreArea(20, 2, 0, 5)
	if ok {
		t.Error("area above max size must be infeasible")
	}
}

func TestCurveCacheConcurrentReads(t *testing.T) {
	cache := NewCurveCache()
	cache.Put("test", parseTestCurve(t))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			curve, err := cache.Get("test")
			if err != nil {
				t.Error(err)
				return
			}
			curve.RequiredFraction(36, [4]float64{0, 80, 45, 45})
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

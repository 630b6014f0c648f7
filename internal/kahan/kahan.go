// Package kahan implements Neumaier-compensated floating summation. Delay
// minutes are summed tens of millions of times per run; a naive float64
// accumulator loses low-order minutes once the running sum grows large, and
// the KPI means drift. The compensation term keeps the error independent of
// the number of additions, and two partial sums merge exactly, which is what
// lets parallel workers each keep their own Sum.
package kahan

import "math"

// Sum is a compensated accumulator. The zero value is an empty sum.
type Sum struct {
	sum  float64
	comp float64
}

// Add folds v into the sum.
func (s *Sum) Add(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.comp += (s.sum - t) + v
	} else {
		s.comp += (v - t) + s.sum
	}
	s.sum = t
}

// Merge folds another partial sum into s. Order of merges does not change
// the result beyond one rounding step, so merged worker sums agree with a
// single sequential sum within float tolerance.
func (s *Sum) Merge(o Sum) {
	s.Add(o.sum)
	s.comp += o.comp
}

// Value returns the compensated total.
func (s *Sum) Value() float64 {
	return s.sum + s.comp
}

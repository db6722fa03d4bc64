package mos

import (
	"errors"
	"sort"
)

// Isotonic is a monotone non-decreasing calibration map fitted with
// pool-adjacent-violators. Prediction interpolates linearly between the
// fitted knots and clips outside the fitted support.
type Isotonic struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// FitIsotonic fits the map from raw probabilities to realized outcome
// frequency. Equal raw probabilities are merged (weighted average)
// before pooling.
func FitIsotonic(p, outcome []float64) (*Isotonic, error) {
	if len(p) == 0 || len(p) != len(outcome) {
		return nil, errors.New("isotonic: need matching non-empty inputs")
	}

	order := make([]int, len(p))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	type block struct {
		sum        float64
		weight     float64
		minX, maxX float64
	}

	// Merge duplicate x values first so blocks have distinct support.
	var merged []block
	for _, i := range order {
		x, y := p[i], outcome[i]
		if n := len(merged); n > 0 && merged[n-1].minX == x {
			merged[n-1].sum += y
			merged[n-1].weight++
			continue
		}
		merged = append(merged, block{sum: y, weight: 1, minX: x, maxX: x})
	}

	// Pool adjacent violators.
	var stack []block
	for _, b := range merged {
		stack = append(stack, b)
		for len(stack) > 1 {
			n := len(stack)
			prev, cur := stack[n-2], stack[n-1]
			if prev.sum/prev.weight <= cur.sum/cur.weight {
				break
			}
			stack = stack[:n-2]
			stack = append(stack, block{
				sum:    prev.sum + cur.sum,
				weight: prev.weight + cur.weight,
				minX:   prev.minX,
				maxX:   cur.maxX,
			})
		}
	}

	iso := &Isotonic{}
	for _, b := range stack {
		v := b.sum / b.weight
		iso.X = append(iso.X, b.minX)
		iso.Y = append(iso.Y, v)
		if b.maxX > b.minX {
			iso.X = append(iso.X, b.maxX)
			iso.Y = append(iso.Y, v)
		}
	}
	return iso, nil
}

// Calibrate maps one raw probability through the fitted curve.
func (iso *Isotonic) Calibrate(p float64) float64 {
	n := len(iso.X)
	if n == 0 {
		return p
	}
	if p <= iso.X[0] {
		return iso.Y[0]
	}
	if p >= iso.X[n-1] {
		return iso.Y[n-1]
	}
	// First knot strictly above p.
	hi := sort.SearchFloat64s(iso.X, p)
	if iso.X[hi] == p {
		return iso.Y[hi]
	}
	lo := hi - 1
	frac := (p - iso.X[lo]) / (iso.X[hi] - iso.X[lo])
	return clamp(iso.Y[lo]+frac*(iso.Y[hi]-iso.Y[lo]), 0, 1)
}

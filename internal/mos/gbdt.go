package mos

import (
	"errors"
	"math"
	"sort"
)

// Objectives supported by the boosted-tree learner.
const (
	ObjectiveMAE      = "mae"
	ObjectiveLogLoss  = "logloss"
	ObjectiveQuantile = "quantile"
	ObjectiveTweedie  = "tweedie"
)

const (
	boostRounds     = 150
	learningRate    = 0.1
	maxTreeDepth    = 4
	minLeafSize     = 5
	tweedieVariance = 1.5
	probClamp       = 1e-6
	maxNewtonStep   = 5.0
)

// GBDT is a gradient-boosted regression tree ensemble. Training is fully
// deterministic: no subsampling, stable sort order, fixed parameters.
// Missing feature values (NaN) are routed through splits natively.
type GBDT struct {
	Objective    string  `json:"objective"`
	Alpha        float64 `json:"alpha,omitempty"`
	Base         float64 `json:"base"`
	LearningRate float64 `json:"learning_rate"`
	Trees        []tree  `json:"trees"`
}

func NewGBDT(objective string) *GBDT {
	return &GBDT{Objective: objective, LearningRate: learningRate}
}

func NewQuantileGBDT(alpha float64) *GBDT {
	return &GBDT{Objective: ObjectiveQuantile, Alpha: alpha, LearningRate: learningRate}
}

// Fit trains the ensemble. Rows with NaN targets must be filtered by the
// caller; NaN features are fine.
func (m *GBDT) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("no training rows")
	}
	if len(X) != len(y) {
		return errors.New("feature/target length mismatch")
	}
	for _, v := range y {
		if math.IsNaN(v) {
			return errors.New("NaN target")
		}
	}

	m.Trees = nil
	m.Base = m.baseScore(y)

	raw := make([]float64, len(y))
	for i := range raw {
		raw[i] = m.Base
	}

	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	grad := make([]float64, len(y))
	params := treeParams{maxDepth: maxTreeDepth, minLeaf: minLeafSize}

	for round := 0; round < boostRounds; round++ {
		for i := range y {
			grad[i] = m.gradient(y[i], raw[i])
		}

		t := buildTree(X, grad, idx, params, func(leaf []int) float64 {
			return m.LearningRate * m.leafValue(y, raw, leaf)
		})

		if len(t.Nodes) == 1 && math.Abs(t.Nodes[0].Value) < 1e-12 {
			break // converged: further rounds are identical no-ops
		}

		m.Trees = append(m.Trees, t)
		for i := range y {
			raw[i] += t.predict(X[i])
		}
	}
	return nil
}

// Predict returns the model output for one feature vector, through the
// objective's link: probability for logloss, mean for tweedie, the raw
// score otherwise.
func (m *GBDT) Predict(x []float64) float64 {
	f := m.Base
	for i := range m.Trees {
		f += m.Trees[i].predict(x)
	}
	switch m.Objective {
	case ObjectiveLogLoss:
		return sigmoid(f)
	case ObjectiveTweedie:
		return math.Exp(f)
	}
	return f
}

func (m *GBDT) baseScore(y []float64) float64 {
	switch m.Objective {
	case ObjectiveMAE:
		return quantileOf(y, 0.5)
	case ObjectiveQuantile:
		return quantileOf(y, m.Alpha)
	case ObjectiveLogLoss:
		p := clamp(mean(y), probClamp, 1-probClamp)
		return math.Log(p / (1 - p))
	case ObjectiveTweedie:
		return math.Log(math.Max(mean(y), 1e-9))
	}
	return mean(y)
}

func (m *GBDT) gradient(y, raw float64) float64 {
	switch m.Objective {
	case ObjectiveMAE:
		if y > raw {
			return 1
		}
		if y < raw {
			return -1
		}
		return 0
	case ObjectiveQuantile:
		if y > raw {
			return m.Alpha
		}
		return m.Alpha - 1
	case ObjectiveLogLoss:
		return y - sigmoid(raw)
	case ObjectiveTweedie:
		p := tweedieVariance
		return y*math.Exp((1-p)*raw) - math.Exp((2-p)*raw)
	}
	return y - raw
}

// leafValue computes the optimal raw-score step for one leaf: order
// statistics of the residuals for L1-family objectives, a Newton step
// for the likelihood-based ones.
func (m *GBDT) leafValue(y, raw []float64, leaf []int) float64 {
	switch m.Objective {
	case ObjectiveMAE, ObjectiveQuantile:
		res := make([]float64, len(leaf))
		for k, i := range leaf {
			res[k] = y[i] - raw[i]
		}
		alpha := 0.5
		if m.Objective == ObjectiveQuantile {
			alpha = m.Alpha
		}
		return quantileOf(res, alpha)
	case ObjectiveLogLoss:
		var g, h float64
		for _, i := range leaf {
			p := sigmoid(raw[i])
			g += y[i] - p
			h += p * (1 - p)
		}
		return clamp(g/(h+1e-9), -maxNewtonStep, maxNewtonStep)
	case ObjectiveTweedie:
		p := tweedieVariance
		var g, h float64
		for _, i := range leaf {
			g += y[i]*math.Exp((1-p)*raw[i]) - math.Exp((2-p)*raw[i])
			h += (p-1)*y[i]*math.Exp((1-p)*raw[i]) + (2-p)*math.Exp((2-p)*raw[i])
		}
		return clamp(g/(h+1e-9), -maxNewtonStep, maxNewtonStep)
	}
	var sum float64
	for _, i := range leaf {
		sum += y[i] - raw[i]
	}
	return sum / float64(len(leaf))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// quantileOf computes the alpha-quantile with linear interpolation
// between order statistics.
func quantileOf(vals []float64, alpha float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	pos := alpha * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

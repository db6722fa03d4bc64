package mos

import (
	"math"
	"sort"
)

// treeNode is one node of a fitted regression tree. Feature < 0 marks a
// leaf. MissingLeft records which side NaN feature values were routed to
// when the split was scored; prediction follows the same routing.
type treeNode struct {
	Feature     int     `json:"f"`
	Threshold   float64 `json:"t,omitempty"`
	MissingLeft bool    `json:"m,omitempty"`
	Left        int     `json:"l,omitempty"`
	Right       int     `json:"r,omitempty"`
	Value       float64 `json:"v,omitempty"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth int
	minLeaf  int
}

// buildTree fits a regression tree to the gradient vector. Split scoring
// is exact greedy variance reduction; leaf values come from the
// objective-specific leafValue callback and already include shrinkage.
func buildTree(X [][]float64, grad []float64, idx []int, p treeParams, leafValue func([]int) float64) tree {
	t := tree{}
	t.grow(X, grad, idx, 0, p, leafValue)
	return t
}

func (t *tree) grow(X [][]float64, grad []float64, idx []int, depth int, p treeParams, leafValue func([]int) float64) int {
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return t.leaf(leafValue(idx))
	}

	feat, thresh, missLeft, ok := bestSplit(X, grad, idx, p.minLeaf)
	if !ok {
		return t.leaf(leafValue(idx))
	}

	var left, right []int
	for _, i := range idx {
		v := X[i][feat]
		switch {
		case math.IsNaN(v):
			if missLeft {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		case v <= thresh:
			left = append(left, i)
		default:
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return t.leaf(leafValue(idx))
	}

	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: feat, Threshold: thresh, MissingLeft: missLeft})
	l := t.grow(X, grad, left, depth+1, p, leafValue)
	r := t.grow(X, grad, right, depth+1, p, leafValue)
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

func (t *tree) leaf(value float64) int {
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: value})
	return len(t.Nodes) - 1
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		v := x[n.Feature]
		if math.IsNaN(v) {
			if n.MissingLeft {
				i = n.Left
			} else {
				i = n.Right
			}
			continue
		}
		if v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// bestSplit scans every feature for the split maximizing gradient
// variance reduction. Rows with a missing feature value are tried on
// both sides and kept on whichever scores better.
func bestSplit(X [][]float64, grad []float64, idx []int, minLeaf int) (feat int, thresh float64, missLeft, ok bool) {
	nFeatures := len(X[idx[0]])
	bestGain := 1e-12

	type pair struct {
		v float64
		i int
	}

	for f := 0; f < nFeatures; f++ {
		present := make([]pair, 0, len(idx))
		var missSum float64
		missCount := 0
		for _, i := range idx {
			v := X[i][f]
			if math.IsNaN(v) {
				missSum += grad[i]
				missCount++
				continue
			}
			present = append(present, pair{v, i})
		}
		if len(present) < 2 {
			continue
		}
		sort.Slice(present, func(a, b int) bool {
			if present[a].v != present[b].v {
				return present[a].v < present[b].v
			}
			return present[a].i < present[b].i
		})

		var totalSum float64
		for _, p := range present {
			totalSum += grad[p.i]
		}

		var leftSum float64
		for k := 1; k < len(present); k++ {
			leftSum += grad[present[k-1].i]
			if present[k].v == present[k-1].v {
				continue
			}

			for _, mLeft := range []bool{true, false} {
				lSum, lN := leftSum, k
				rSum, rN := totalSum-leftSum, len(present)-k
				if mLeft {
					lSum += missSum
					lN += missCount
				} else {
					rSum += missSum
					rN += missCount
				}
				if lN < minLeaf || rN < minLeaf {
					continue
				}
				gain := lSum*lSum/float64(lN) + rSum*rSum/float64(rN)
				gain -= (totalSum + missSum) * (totalSum + missSum) / float64(len(present)+missCount)
				if gain > bestGain {
					bestGain = gain
					feat = f
					thresh = (present[k-1].v + present[k].v) / 2
					missLeft = mLeft
					ok = true
				}
				if missCount == 0 {
					break // both routings identical without missing rows
				}
			}
		}
	}
	return feat, thresh, missLeft, ok
}

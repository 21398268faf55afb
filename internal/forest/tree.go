package forest

import (
	"math/rand/v2"
	"slices"
)

// Node is one node of a decision tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Class     int
}

// Tree is a binary CART tree stored as a flat node slice rooted at index 0
type Tree struct {
	Nodes []Node
}

// Predict returns the class index of the leaf x falls into
func (t *Tree) Predict(x []float64) int {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Class
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type valueClass struct {
	value float64
	class int
}

// treeBuilder grows one tree. It is not shared between goroutines.
type treeBuilder struct {
	x        [][]float64
	y        []int
	nClasses int
	mtry     int
	maxDepth int
	minSplit int
	rng      *rand.Rand

	features []int
	scratch  []valueClass
	nodes    []Node
}

func newTreeBuilder(x [][]float64, y []int, nClasses, nFeatures int, opts buildOptions, rng *rand.Rand) *treeBuilder {
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	return &treeBuilder{
		x:        x,
		y:        y,
		nClasses: nClasses,
		mtry:     opts.mtry,
		maxDepth: opts.maxDepth,
		minSplit: opts.minSplit,
		rng:      rng,
		features: features,
		scratch:  make([]valueClass, 0, len(x)),
	}
}

// bootstrap draws len(x) sample indices with replacement
func (b *treeBuilder) bootstrap() []int {
	samples := make([]int, len(b.x))
	for i := range samples {
		samples[i] = b.rng.IntN(len(b.x))
	}
	return samples
}

func (b *treeBuilder) grow(samples []int) Tree {
	b.nodes = b.nodes[:0]
	b.build(samples, 0)
	return Tree{Nodes: slices.Clone(b.nodes)}
}

func (b *treeBuilder) build(samples []int, depth int) int {
	counts := b.classCounts(samples)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Class: argmax(counts)})

	if isPure(counts) || len(samples) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return idx
	}

	feature, threshold, ok := b.bestSplit(samples, counts)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit draws features without replacement until mtry non-constant
// features were evaluated or every feature was drawn
func (b *treeBuilder) bestSplit(samples []int, parent []int) (int, float64, bool) {
	d := len(b.features)
	evaluated := 0
	found := false
	bestFeature, bestThreshold, bestImpurity := -1, 0.0, 0.0

	for i := 0; i < d && evaluated < b.mtry; i++ {
		j := i + b.rng.IntN(d-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
		f := b.features[i]

		threshold, impurity, ok := b.evalFeature(samples, f, parent)
		if !ok {
			continue
		}
		evaluated++
		if !found || impurity < bestImpurity {
			found = true
			bestFeature, bestThreshold, bestImpurity = f, threshold, impurity
		}
	}
	return bestFeature, bestThreshold, found
}

// evalFeature returns the threshold minimising the weighted Gini impurity of
// the children. ok is false when the feature is constant over samples.
func (b *treeBuilder) evalFeature(samples []int, f int, parent []int) (float64, float64, bool) {
	vals := b.scratch[:0]
	lo, hi := b.x[samples[0]][f], b.x[samples[0]][f]
	for _, s := range samples {
		v := b.x[s][f]
		lo = min(lo, v)
		hi = max(hi, v)
		vals = append(vals, valueClass{value: v, class: b.y[s]})
	}
	b.scratch = vals
	if lo == hi {
		return 0, 0, false
	}

	slices.SortFunc(vals, func(a, c valueClass) int {
		switch {
		case a.value < c.value:
			return -1
		case a.value > c.value:
			return 1
		default:
			return 0
		}
	})

	left := make([]int, b.nClasses)
	right := slices.Clone(parent)
	n := float64(len(vals))

	found := false
	bestThreshold, bestImpurity := 0.0, 0.0
	for k := 0; k < len(vals)-1; k++ {
		left[vals[k].class]++
		right[vals[k].class]--
		if vals[k].value == vals[k+1].value {
			continue
		}
		nl := float64(k + 1)
		nr := n - nl
		impurity := (nl*gini(left, nl) + nr*gini(right, nr)) / n
		if !found || impurity < bestImpurity {
			found = true
			bestImpurity = impurity
			bestThreshold = vals[k].value/2 + vals[k+1].value/2
			if bestThreshold >= vals[k+1].value {
				bestThreshold = vals[k].value
			}
		}
	}
	return bestThreshold, bestImpurity, found
}

func (b *treeBuilder) classCounts(samples []int) []int {
	counts := make([]int, b.nClasses)
	for _, s := range samples {
		counts[b.y[s]]++
	}
	return counts
}

func gini(counts []int, total float64) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / total
		g -= p * p
	}
	return g
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// argmax returns the index of the largest count, preferring lower indices on ties
func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

// Package forest implements a random forest of CART decision trees for
// dense feature vectors.
//
// Every tree is grown on a bootstrap sample of the training rows and considers
// a random subset of sqrt(d) features at each split. Tree i draws all of its
// randomness from a PCG source seeded with (seed, i), so a forest is
// reproduced bit-for-bit from the same data and seed no matter how many
// workers build it.
package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"golang.org/x/sync/errgroup"
)

// Forest is a bagged ensemble of decision trees
type Forest struct {
	cfg        config.ForestConfig
	classes    []string
	classIndex map[string]int
	trees      []Tree
	nFeatures  int
}

type buildOptions struct {
	mtry     int
	maxDepth int
	minSplit int
}

// New creates an unfitted forest
func New(cfg config.ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	return &Forest{cfg: cfg}
}

// Fit trains the forest on rows x with labels y
func (f *Forest) Fit(ctx context.Context, x [][]float64, y []string) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no training rows", core.ErrInsufficientTrainingData)
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d rows but %d labels", len(x), len(y))
	}
	nFeatures := len(x[0])
	for i, row := range x {
		if len(row) != nFeatures {
			return fmt.Errorf("%w: row %d has %d features, row 0 has %d", core.ErrDimensionMismatch, i, len(row), nFeatures)
		}
	}

	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return fmt.Errorf("%w: need two classes, got %v", core.ErrInsufficientTrainingData, classes)
	}
	classIndex := indexOf(classes)
	yi := make([]int, len(y))
	for i, label := range y {
		yi[i] = classIndex[label]
	}

	opts := buildOptions{
		mtry:     max(1, int(math.Sqrt(float64(nFeatures)))),
		maxDepth: f.cfg.MaxDepth,
		minSplit: f.cfg.MinSamplesSplit,
	}

	workers := f.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]Tree, f.cfg.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(i)))
			b := newTreeBuilder(x, yi, len(classes), nFeatures, opts, rng)
			trees[i] = b.grow(b.bootstrap())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to grow trees: %w", err)
	}

	f.classes = classes
	f.classIndex = classIndex
	f.trees = trees
	f.nFeatures = nFeatures
	return nil
}

// Predict returns the class with the most tree votes
func (f *Forest) Predict(x []float64) (string, error) {
	votes, err := f.votes(x)
	if err != nil {
		return "", err
	}
	return f.classes[argmax(votes)], nil
}

// PredictProba returns the fraction of trees voting for each class, in Classes order
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	votes, err := f.votes(x)
	if err != nil {
		return nil, err
	}
	probs := make([]float64, len(votes))
	for i, v := range votes {
		probs[i] = float64(v) / float64(len(f.trees))
	}
	return probs, nil
}

// Classes returns the class names in probability order
func (f *Forest) Classes() []string {
	out := make([]string, len(f.classes))
	copy(out, f.classes)
	return out
}

// ClassIndex returns the probability index of class
func (f *Forest) ClassIndex(class string) (int, bool) {
	i, ok := f.classIndex[class]
	return i, ok
}

// NumFeatures returns the vector length the forest was fitted on
func (f *Forest) NumFeatures() int {
	return f.nFeatures
}

// NumTrees returns the number of fitted trees
func (f *Forest) NumTrees() int {
	return len(f.trees)
}

// Fitted reports whether Fit has completed
func (f *Forest) Fitted() bool {
	return len(f.trees) > 0
}

func (f *Forest) votes(x []float64) ([]int, error) {
	if !f.Fitted() {
		return nil, fmt.Errorf("forest has not been fitted")
	}
	if len(x) != f.nFeatures {
		return nil, fmt.Errorf("%w: got %d features, forest expects %d", core.ErrDimensionMismatch, len(x), f.nFeatures)
	}
	votes := make([]int, len(f.classes))
	for i := range f.trees {
		votes[f.trees[i].Predict(x)]++
	}
	return votes, nil
}

type forestState struct {
	Config    config.ForestConfig
	Classes   []string
	NFeatures int
	Trees     []Tree
}

// MarshalBinary encodes a fitted forest. The encoding contains no maps and is byte-stable.
func (f *Forest) MarshalBinary() ([]byte, error) {
	if !f.Fitted() {
		return nil, fmt.Errorf("forest has not been fitted")
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestState{
		Config:    f.cfg,
		Classes:   f.classes,
		NFeatures: f.nFeatures,
		Trees:     f.trees,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode forest: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a forest encoded by MarshalBinary
func (f *Forest) UnmarshalBinary(data []byte) error {
	var st forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode forest: %w", err)
	}
	if len(st.Trees) == 0 || len(st.Classes) < 2 {
		return fmt.Errorf("corrupt forest: %d trees, %d classes", len(st.Trees), len(st.Classes))
	}
	for ti, t := range st.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("corrupt forest: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature >= st.NFeatures || n.Class < 0 || n.Class >= len(st.Classes) {
				return fmt.Errorf("corrupt forest: tree %d node %d out of range", ti, ni)
			}
			if n.Feature >= 0 && (n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes)) {
				return fmt.Errorf("corrupt forest: tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	f.cfg = st.Config
	f.classes = st.Classes
	f.classIndex = indexOf(st.Classes)
	f.nFeatures = st.NFeatures
	f.trees = st.Trees
	return nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 2)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func indexOf(classes []string) map[string]int {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

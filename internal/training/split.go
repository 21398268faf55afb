package training

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mikey/phish-detector/internal/core"
)

// StratifiedSplit partitions example indices into a train and a test set,
// keeping the class proportions of labels in both. The test set holds
// ceil(n*testRatio) examples and every class contributes at least one example
// to each side. The same labels, ratio and seed always yield the same split.
func StratifiedSplit(labels []core.Label, testRatio float64, seed uint64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio %v outside (0,1)", testRatio)
	}

	byClass := make(map[core.Label][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]core.Label, 0, len(byClass))
	for l := range byClass {
		classes = append(classes, l)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	if len(classes) < 2 {
		return nil, nil, fmt.Errorf("%w: need examples of two classes, got %d", core.ErrInsufficientTrainingData, len(classes))
	}
	for _, l := range classes {
		if len(byClass[l]) < 2 {
			return nil, nil, fmt.Errorf("%w: class %s has %d example(s), need at least 2",
				core.ErrInsufficientTrainingData, l, len(byClass[l]))
		}
	}

	n := len(labels)
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest < len(classes) {
		nTest = len(classes)
	}
	if n-nTest < len(classes) {
		return nil, nil, fmt.Errorf("%w: %d examples cannot fill train and test sets", core.ErrInsufficientTrainingData, n)
	}

	alloc := allocate(classes, byClass, n, nTest)

	rng := rand.New(rand.NewPCG(seed, 0))
	for _, l := range classes {
		idx := append([]int(nil), byClass[l]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:alloc[l]]...)
		train = append(train, idx[alloc[l]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocate distributes nTest test slots over the classes in proportion to their
// size. Leftover slots go to the largest fractional shares.
func allocate(classes []core.Label, byClass map[core.Label][]int, n, nTest int) map[core.Label]int {
	type share struct {
		label core.Label
		frac  float64
	}

	alloc := make(map[core.Label]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, l := range classes {
		exact := float64(nTest) * float64(len(byClass[l])) / float64(n)
		k := int(math.Floor(exact))
		alloc[l] = k
		assigned += k
		shares = append(shares, share{label: l, frac: exact - float64(k)})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for i := 0; assigned < nTest; i = (i + 1) % len(shares) {
		l := shares[i].label
		if alloc[l] < len(byClass[l])-1 {
			alloc[l]++
			assigned++
		}
	}

	// Each class needs one test example and one training example.
	for _, l := range classes {
		for alloc[l] < 1 {
			donor := largestAllocation(classes, alloc, l)
			alloc[donor]--
			alloc[l]++
		}
	}
	return alloc
}

func largestAllocation(classes []core.Label, alloc map[core.Label]int, except core.Label) core.Label {
	best := except
	for _, l := range classes {
		if l != except && (best == except || alloc[l] > alloc[best]) {
			best = l
		}
	}
	return best
}

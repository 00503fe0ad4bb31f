package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
)

var ErrInvalidTrainingSet = errors.New("model: invalid training set")

// Config controls forest training.
type Config struct {
	Trees           int    `json:"trees"`
	Seed            uint64 `json:"seed"`
	MaxDepth        int    `json:"max_depth,omitempty"`    // 0 = grow until pure
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     int    `json:"max_features,omitempty"` // 0 = every input
	Workers         int    `json:"-"`
}

// DefaultConfig is 100 fully grown trees seeded with 42.
func DefaultConfig() Config {
	return Config{Trees: 100, Seed: 42, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Trees <= 0 {
		c.Trees = d.Trees
	}
	if c.MinSamplesSplit < 2 {
		c.MinSamplesSplit = d.MinSamplesSplit
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = d.MinSamplesLeaf
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Node is one tree node. Leaves have Feature == -1 and carry Value.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// Tree is a regression tree stored as a flat node slice rooted at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a multi-output random forest regressor. Its prediction is the
// mean of the tree predictions.
type Forest struct {
	Inputs  int    `json:"inputs"`
	Outputs int    `json:"outputs"`
	Trees   []Tree `json:"trees"`
}

// Predict returns one value per output. x must have Inputs entries.
func (f *Forest) Predict(x []float64) []float64 {
	out := make([]float64, f.Outputs)
	for i := range f.Trees {
		for o, v := range f.Trees[i].predict(x) {
			out[o] += v
		}
	}
	for o := range out {
		out[o] /= float64(len(f.Trees))
	}
	return out
}

// Validate checks structural soundness after decoding.
func (f *Forest) Validate() error {
	if f.Inputs <= 0 || f.Outputs <= 0 || len(f.Trees) == 0 {
		return fmt.Errorf("model: empty forest (inputs=%d outputs=%d trees=%d)", f.Inputs, f.Outputs, len(f.Trees))
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("model: tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				if len(n.Value) != f.Outputs {
					return fmt.Errorf("model: tree %d leaf %d has %d outputs", ti, ni, len(n.Value))
				}
				continue
			}
			// children always come after their parent, so this also rules out cycles
			if n.Feature >= f.Inputs || n.Left <= ni || n.Right <= ni ||
				n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("model: tree %d node %d is malformed", ti, ni)
			}
		}
	}
	return nil
}

// Fit trains a forest on rows X with targets Y. Each tree sees a bootstrap
// sample and splits on the threshold that most reduces the summed squared
// error over all outputs. Training is deterministic for a given Config.Seed
// regardless of Workers.
func Fit(X, Y [][]float64, cfg Config) (*Forest, error) {
	if err := checkTrainingSet(X, Y); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	master := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible training
	seeds := make([]uint64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	forest := &Forest{Inputs: len(X[0]), Outputs: len(Y[0]), Trees: make([]Tree, cfg.Trees)}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < min(cfg.Workers, cfg.Trees); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				forest.Trees[i] = growTree(X, Y, cfg, seeds[i])
			}
		}()
	}
	for i := range seeds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return forest, nil
}

func checkTrainingSet(X, Y [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidTrainingSet)
	}
	if len(X) != len(Y) {
		return fmt.Errorf("%w: %d inputs but %d targets", ErrInvalidTrainingSet, len(X), len(Y))
	}
	nIn, nOut := len(X[0]), len(Y[0])
	if nIn == 0 || nOut == 0 {
		return fmt.Errorf("%w: zero-width rows", ErrInvalidTrainingSet)
	}
	for i := range X {
		if len(X[i]) != nIn || len(Y[i]) != nOut {
			return fmt.Errorf("%w: row %d has inconsistent width", ErrInvalidTrainingSet, i)
		}
		for _, v := range X[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d has a non-finite input", ErrInvalidTrainingSet, i)
			}
		}
		for _, v := range Y[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d has a non-finite target", ErrInvalidTrainingSet, i)
			}
		}
	}
	return nil
}

type grower struct {
	X, Y  [][]float64
	cfg   Config
	rng   *rand.Rand
	nodes []Node
	order []int
}

func growTree(X, Y [][]float64, cfg Config, seed uint64) Tree {
	g := &grower{
		X:     X,
		Y:     Y,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(seed, seed>>1|1)), //nolint:gosec // reproducible training
		order: make([]int, len(X)),
	}
	sample := make([]int, len(X))
	for i := range sample {
		sample[i] = g.rng.IntN(len(X))
	}
	g.grow(sample, 0)
	return Tree{Nodes: g.nodes}
}

// grow appends the subtree for idx and returns its root position.
func (g *grower) grow(idx []int, depth int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, Node{Feature: -1})

	sum, sq := g.moments(idx)
	leaf := Node{Feature: -1, Value: make([]float64, len(sum))}
	for o := range sum {
		leaf.Value[o] = sum[o] / float64(len(idx))
	}

	if len(idx) < g.cfg.MinSamplesSplit || (g.cfg.MaxDepth > 0 && depth >= g.cfg.MaxDepth) {
		g.nodes[id] = leaf
		return id
	}
	feature, threshold, ok := g.bestSplit(idx, sum, sq)
	if !ok {
		g.nodes[id] = leaf
		return id
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (g *grower) moments(idx []int) (sum, sq []float64) {
	nOut := len(g.Y[0])
	sum = make([]float64, nOut)
	sq = make([]float64, nOut)
	for _, i := range idx {
		for o, v := range g.Y[i] {
			sum[o] += v
			sq[o] += v * v
		}
	}
	return sum, sq
}

func (g *grower) candidateFeatures() []int {
	n := len(g.X[0])
	if g.cfg.MaxFeatures <= 0 || g.cfg.MaxFeatures >= n {
		feats := make([]int, n)
		for i := range feats {
			feats[i] = i
		}
		return feats
	}
	return g.rng.Perm(n)[:g.cfg.MaxFeatures]
}

// bestSplit scans every candidate feature in sorted order and returns the
// split with the lowest summed squared error of the two children.
func (g *grower) bestSplit(idx []int, totSum, totSq []float64) (int, float64, bool) {
	n := len(idx)
	nOut := len(totSum)
	if g.pure(idx) {
		return 0, 0, false
	}
	parent := sse(totSum, totSq, float64(n))

	best := parent
	bestFeature, bestThreshold := -1, 0.0
	leftSum := make([]float64, nOut)
	leftSq := make([]float64, nOut)
	order := g.order[:n]
	minLeaf := g.cfg.MinSamplesLeaf

	for _, f := range g.candidateFeatures() {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return g.X[order[a]][f] < g.X[order[b]][f] })
		for o := range leftSum {
			leftSum[o], leftSq[o] = 0, 0
		}

		for k := 0; k < n-1; k++ {
			for o, v := range g.Y[order[k]] {
				leftSum[o] += v
				leftSq[o] += v * v
			}
			lo, hi := g.X[order[k]][f], g.X[order[k+1]][f]
			nl := k + 1
			if lo == hi || nl < minLeaf || n-nl < minLeaf {
				continue
			}

			score := 0.0
			for o := 0; o < nOut; o++ {
				score += sse1(leftSum[o], leftSq[o], float64(nl))
				score += sse1(totSum[o]-leftSum[o], totSq[o]-leftSq[o], float64(n-nl))
			}
			if score < best-1e-12 {
				best = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (g *grower) pure(idx []int) bool {
	first := g.Y[idx[0]]
	for _, i := range idx[1:] {
		for o, v := range g.Y[i] {
			if v != first[o] {
				return false
			}
		}
	}
	return true
}

func sse(sum, sq []float64, n float64) float64 {
	total := 0.0
	for o := range sum {
		total += sse1(sum[o], sq[o], n)
	}
	return total
}

func sse1(sum, sq, n float64) float64 {
	v := sq - sum*sum/n
	if v < 0 {
		return 0
	}
	return v
}

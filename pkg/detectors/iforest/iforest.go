// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/hed1ad/netsight/pkg/detectors"
)

var _ detectors.Detector = (*IsolationForest)(nil)

// IsolationForest implements unsupervised anomaly detection using isolation
// trees. A single batch is fit and predicted in one pass; the decision
// threshold is derived from the configured contamination ratio.
//
// Tree construction and prediction run in parallel, but every tree draws
// from its own seed derived from the forest seed, so results are identical
// regardless of worker count.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	workers       int
	seed          int64
	maxDepth      int

	// Trained model
	trees     []*iTree
	nFeatures int
	threshold float64
	trained   bool

	// Statistics from training
	avgPathLength float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies, in (0, 0.5].
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// WithWorkers caps the number of goroutines used for fit and predict.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(f *IsolationForest) {
		f.workers = n
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the forest on the provided data and sets the decision
// threshold so that roughly a contamination fraction of the training
// batch falls below it.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}
	if f.contamination <= 0 || f.contamination > 0.5 {
		return fmt.Errorf("contamination %v out of range (0, 0.5]", f.contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("samples have no features")
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("ragged feature matrix: row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	// Max depth based on sample size
	f.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
	if f.maxDepth < 1 {
		f.maxDepth = 1
	}

	trees := make([]*iTree, f.nTrees)
	f.runParallel(f.nTrees, func(i int) {
		rng := rand.New(rand.NewSource(treeSeed(f.seed, i)))

		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		trees[i] = &iTree{root: buildNode(sample, nFeatures, 0, f.maxDepth, rng)}
	})

	f.trees = trees
	f.nFeatures = nFeatures
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	scores := f.scores(data)
	f.threshold = quantile(scores, 1-f.contamination)

	return nil
}

// buildNode recursively builds an isolation tree node.
func buildNode(data [][]float64, nFeatures, depth, maxDepth int, rng *rand.Rand) *node {
	n := len(data)

	// Terminal conditions
	if depth >= maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         buildNode(leftData, nFeatures, depth+1, maxDepth, rng),
		right:        buildNode(rightData, nFeatures, depth+1, maxDepth, rng),
	}
}

// Scores returns raw anomaly scores in [0, 1] for the given samples.
// Higher means more anomalous.
func (f *IsolationForest) Scores(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkPredict(data); err != nil {
		return nil, err
	}
	return f.scores(data), nil
}

// DecisionFunction returns threshold-relative scores for the given samples.
// Negative values are anomalous; a sample exactly on the threshold scores 0.
func (f *IsolationForest) DecisionFunction(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkPredict(data); err != nil {
		return nil, err
	}

	decisions := f.scores(data)
	for i, s := range decisions {
		decisions[i] = f.threshold - s
	}
	return decisions, nil
}

// Labels returns +1 for inliers and -1 for outliers. The partition is
// consistent with the sign of DecisionFunction: strictly negative decisions
// are outliers, zero and positive decisions are inliers.
func (f *IsolationForest) Labels(data [][]float64) ([]int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkPredict(data); err != nil {
		return nil, err
	}

	labels := make([]int, len(data))
	for i, s := range f.scores(data) {
		if s > f.threshold {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels, nil
}

// ScoreOne returns the raw anomaly score for a single sample.
func (f *IsolationForest) ScoreOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.checkPredict([][]float64{sample}); err != nil {
		return 0, err
	}
	return f.scoreOne(sample), nil
}

func (f *IsolationForest) checkPredict(data [][]float64) error {
	if !f.trained {
		return errors.New("model not trained")
	}
	for i, row := range data {
		if len(row) != f.nFeatures {
			return fmt.Errorf("sample %d has %d features, model trained on %d", i, len(row), f.nFeatures)
		}
	}
	return nil
}

func (f *IsolationForest) scores(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	f.runParallel(len(data), func(i int) {
		scores[i] = f.scoreOne(data[i])
	})
	return scores
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	// Degenerate single-sample fit; every point is equally isolated.
	if f.avgPathLength == 0 {
		return 0.5
	}

	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// runParallel invokes fn(i) for i in [0, n) across the configured worker
// count. Each index is independent, so scheduling order cannot affect output.
func (f *IsolationForest) runParallel(n int, fn func(i int)) {
	workers := f.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	indices := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()
}

// Threshold returns the raw-score threshold derived from contamination.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is the harmonic number
	// approximated as H(n) = ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// treeSeed derives a per-tree seed from the forest seed via a splitmix64
// step, keeping neighboring trees decorrelated.
func treeSeed(base int64, i int) int64 {
	z := uint64(base) + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

// quantile returns the q-th quantile of the data, q in [0, 1].
func quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}

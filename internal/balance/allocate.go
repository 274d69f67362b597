package balance

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"label-balancer/internal/config"
)

// CategoryCount is the scanned size of one category.
type CategoryCount struct {
	ID     string
	Count  int
	Labels []LabelCount
}

// LabelCount is the scanned size of one label.
type LabelCount struct {
	Label string
	Count int
}

// Decision names the category that receives synthesized images.
type Decision struct {
	Deficient string
	Surplus   string
	Deficit   int
}

// Decide compares the two categories. When they are equal the first one is
// treated as deficient with a deficit of zero.
func Decide(first, second CategoryCount) Decision {
	if first.Count > second.Count {
		return Decision{Deficient: second.ID, Surplus: first.ID, Deficit: first.Count - second.Count}
	}
	return Decision{Deficient: first.ID, Surplus: second.ID, Deficit: second.Count - first.Count}
}

// Gate is the result of the feasibility check.
type Gate struct {
	Policy   string
	Capacity int // images the compared category can account for
	Feasible bool
}

// CheckFeasibility compares capacity = count x totalMultiplier against the
// deficit. The literal policy always takes the first category's count; the
// deficient policy takes the deficient category's own count.
func CheckFeasibility(policy string, first, deficient CategoryCount, totalMultiplier, deficit int) Gate {
	base := first.Count
	if policy == config.FeasibilityDeficient {
		base = deficient.Count
	}
	capacity := base * totalMultiplier
	return Gate{Policy: policy, Capacity: capacity, Feasible: capacity >= deficit}
}

// Weights returns the complement weights 1 - count_i/total normalized to one,
// so the smallest label is favoured. An empty category or a single label
// yields uniform weights.
func Weights(counts []int) []float64 {
	weights := make([]float64, len(counts))
	if len(counts) == 0 {
		return weights
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || len(counts) == 1 {
		for i := range weights {
			weights[i] = 1 / float64(len(counts))
		}
		return weights
	}

	sum := 0.0
	for i, c := range counts {
		weights[i] = 1 - float64(c)/float64(total)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// Allocate draws n labels with replacement from the categorical distribution
// over weights and returns the tally per label. The tally sums to n.
func Allocate(weights []float64, n int, src rand.Source) []int {
	tally := make([]int, len(weights))
	if n <= 0 || len(weights) == 0 {
		return tally
	}
	if len(weights) == 1 {
		tally[0] = n
		return tally
	}

	dist := distuv.NewCategorical(weights, src)
	for i := 0; i < n; i++ {
		tally[int(dist.Rand())]++
	}
	return tally
}

// NewSource returns the PCG source used for sampling.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

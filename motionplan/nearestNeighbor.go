package motionplan

import (
	"math"
	"sync"

	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"
)

const neighborsBeforeParallelization = 1000

type neighborManager struct {
	nCPU int
}

type neighbor struct {
	dist float64
	idx  int
}

// nearestNeighbor returns the index of the sample closest to seed and its distance. Ties go to the
// lowest index so the parallel and sequential searches agree.
func (nm *neighborManager) nearestNeighbor(seed []float64, samples [][]float64) neighbor {
	if len(samples) > neighborsBeforeParallelization && nm.nCPU > 1 {
		// If the tree is large, calculate distances in parallel
		return nm.parallelNearestNeighbor(seed, samples)
	}
	return nnWorker(seed, samples, 0, len(samples))
}

func (nm *neighborManager) parallelNearestNeighbor(seed []float64, samples [][]float64) neighbor {
	chunk := (len(samples) + nm.nCPU - 1) / nm.nCPU
	results := make([]neighbor, nm.nCPU)
	var wg sync.WaitGroup
	for i := 0; i < nm.nCPU; i++ {
		from, to := i*chunk, (i+1)*chunk
		if to > len(samples) {
			to = len(samples)
		}
		results[i] = neighbor{dist: math.Inf(1), idx: -1}
		if from >= to {
			continue
		}
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			results[i] = nnWorker(seed, samples, from, to)
		})
	}
	wg.Wait()

	best := neighbor{dist: math.Inf(1), idx: -1}
	for _, nn := range results {
		if nn.idx >= 0 && nn.dist < best.dist {
			best = nn
		}
	}
	return best
}

func nnWorker(seed []float64, samples [][]float64, from, to int) neighbor {
	best := neighbor{dist: math.Inf(1), idx: -1}
	for i := from; i < to; i++ {
		if dist := floats.Distance(seed, samples[i], 2); dist < best.dist {
			best = neighbor{dist: dist, idx: i}
		}
	}
	return best
}

package motionplan

// ResampleLinear returns n configurations spread evenly over the indices of path, linearly
// interpolating between consecutive samples. The first and last configurations are kept.
func ResampleLinear(path [][]float64, n int) [][]float64 {
	if len(path) == 0 || n <= 0 {
		return nil
	}
	out := make([][]float64, n)
	if len(path) == 1 || n == 1 {
		for i := range out {
			out[i] = append([]float64{}, path[0]...)
		}
		if n > 1 {
			out[n-1] = append([]float64{}, path[len(path)-1]...)
		}
		return out
	}
	last := float64(len(path) - 1)
	for i := 0; i < n; i++ {
		s := float64(i) * last / float64(n-1)
		lo := int(s)
		if lo >= len(path)-1 {
			out[i] = append([]float64{}, path[len(path)-1]...)
			continue
		}
		by := s - float64(lo)
		q := make([]float64, len(path[lo]))
		for j := range q {
			q[j] = path[lo][j] + by*(path[lo+1][j]-path[lo][j])
		}
		out[i] = q
	}
	return out
}

// RevertPath reverses path in place and returns it.
func RevertPath(path [][]float64) [][]float64 {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

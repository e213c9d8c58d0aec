package gccphat

// ring keeps the latest samples of an endless stream addressed by their
// global index.
type ring struct {
	buf   []float64
	count int64
}

func newRing(size int) ring {
	return ring{buf: make([]float64, size)}
}

func (r *ring) push(samples []float32) {
	size := int64(len(r.buf))
	for _, v := range samples {
		r.buf[r.count%size] = float64(v)
		r.count++
	}
}

// at returns the sample with the global index idx, if it was pushed and
// is not overwritten yet.
func (r *ring) at(idx int64) (float64, bool) {
	size := int64(len(r.buf))
	if idx < 0 || idx >= r.count || idx < r.count-size {
		return 0, false
	}
	return r.buf[idx%size], true
}

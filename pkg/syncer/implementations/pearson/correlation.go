package pearson

import (
	"math"
)

// Correlate returns the Pearson correlation coefficient between data1 and data2
// aligned so that data2[i+lag] is paired with data1[i], using at most
// windowSamples pairs from the beginning of the overlap.
//
// It returns -1 if the signals do not overlap or if any of them is constant
// within the overlap.
func Correlate(data1, data2 []float32, lag, windowSamples int) float64 {
	start1 := max(0, -lag)
	start2 := max(0, lag)
	length := min(windowSamples, len(data1)-start1, len(data2)-start2)
	if length <= 0 {
		return -1
	}

	s1 := data1[start1 : start1+length]
	s2 := data2[start2 : start2+length]

	var sum1, sum2 float64
	for i := range s1 {
		sum1 += float64(s1[i])
		sum2 += float64(s2[i])
	}
	n := float64(length)
	mean1 := sum1 / n
	mean2 := sum2 / n

	var cov, var1, var2 float64
	for i := range s1 {
		d1 := float64(s1[i]) - mean1
		d2 := float64(s2[i]) - mean2
		cov += d1 * d2
		var1 += d1 * d1
		var2 += d2 * d2
	}
	if var1 <= 0 || var2 <= 0 {
		return -1
	}

	corr := cov / math.Sqrt(var1*var2)
	switch {
	case math.IsNaN(corr):
		return -1
	case corr > 1:
		return 1
	case corr < -1:
		return -1
	}
	return corr
}

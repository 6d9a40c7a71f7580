package spectrum

// Range is a half-open interval of bin indices.
type Range struct {
	Start, End int
}

// Len returns the number of bins in r.
func (r Range) Len() int { return r.End - r.Start }

// Partition splits total bins into n contiguous ranges whose sizes differ by
// at most one; the first total%n ranges take the extra bin.
func Partition(total, n int) []Range {
	if n <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	size, extra := total/n, total%n
	out := make([]Range, n)
	start := 0
	for i := range out {
		l := size
		if i < extra {
			l++
		}
		out[i] = Range{Start: start, End: start + l}
		start += l
	}
	return out
}

// Normalize divides b by its maximum. A vector whose maximum is not
// positive comes back as zeros.
func Normalize(b []float64) []float64 {
	out := make([]float64, len(b))
	var peak float64
	for _, v := range b {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return out
	}
	for i, v := range b {
		out[i] = v / peak
	}
	return out
}

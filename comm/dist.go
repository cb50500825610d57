package comm

//Data-decomposition helpers. Both the G-vector and the k-point splits are
//contiguous blocks with the remainder assigned to the lowest ranks first,
//so every index is owned by exactly one rank and the counts differ by at
//most one.

// Distribute splits n items among size ranks and returns the count and the
// starting offset owned by rank. It panics on a non-positive size or a rank
// outside [0,size), as such a call means the caller is already broken.
func Distribute(n, size, rank int) (count, offset int) {
	if size <= 0 || rank < 0 || rank >= size {
		panic("comm: Distribute called with a bad size/rank combination")
	}
	if n < 0 {
		panic("comm: Distribute called with negative n")
	}
	base := n / size
	rem := n % size
	if rank < rem {
		return base + 1, rank * (base + 1)
	}
	return base, rem*(base+1) + (rank-rem)*base
}

// Segments returns the per-rank slices of x under the Distribute decomposition.
func Segments(x []complex128, size int) [][]complex128 {
	segs := make([][]complex128, size)
	for r := 0; r < size; r++ {
		n, off := Distribute(len(x), size, r)
		segs[r] = x[off : off+n]
	}
	return segs
}

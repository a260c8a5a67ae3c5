package dispatch

// sparseHeaderBytes is the size of one jump table entry.
const sparseHeaderBytes = 2

// sparse picks the bucket count, within 15% of the selector count, that
// minimizes the largest bucket. Ties go to the smaller count.
func sparse(es []entry) *Layout {
	n := len(es)
	lo := max(1, n*85/100)
	hi := max(1, (n*115+99)/100)

	best, worst := lo, n+1
	for c := lo; c <= hi; c++ {
		if m := largestBucket(es, c); m < worst {
			best, worst = c, m
		}
	}

	buckets := make([]*bucket, best)
	for i := range buckets {
		buckets[i] = &bucket{index: i}
	}
	for _, e := range es {
		b := buckets[e.id%uint32(best)]
		b.entries = append(b.entries, e)
	}
	return &Layout{kind: KindSparse, entries: es, buckets: buckets}
}

func largestBucket(es []entry, n int) int {
	sizes := make([]int, n)
	largest := 0
	for _, e := range es {
		i := e.id % uint32(n)
		sizes[i]++
		largest = max(largest, sizes[i])
	}
	return largest
}

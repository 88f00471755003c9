package scheduler

import "runtime"

const (
	// DefaultBatchSize is the number of files processed per batch
	DefaultBatchSize = 5

	gib = 1 << 30
)

// OptimalWorkers returns the pool size for a machine with cpu logical
// CPUs and availableMemory bytes of memory. Two CPUs are left to the
// rest of the system; machines with little memory get fewer workers.
func OptimalWorkers(cpu int, availableMemory uint64) int {
	n := cpu - 2
	if n < 1 {
		n = 1
	}
	switch {
	case availableMemory < 8*gib:
		n = min(n, 2)
	case availableMemory < 16*gib:
		n = min(n, cpu-1)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DetectWorkers applies OptimalWorkers to the current machine
func DetectWorkers() int {
	return OptimalWorkers(runtime.NumCPU(), availableMemory())
}

// Partition splits items into consecutive batches of at most size items.
// A size below 1 uses DefaultBatchSize.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultBatchSize
	}
	var batches [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

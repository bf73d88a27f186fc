package images

import (
	"runtime"
	"sync"
)

// Parallel splits [0, dataSize) into one contiguous partition per CPU and
// runs fn on each concurrently. Partitions never overlap, so fn may write
// rows of a shared image without locking.
//
// Arguments:
// - dataSize: The size of the data to process.
// - fn: Function to execute for each partition (receives start and end indices).
//
// @example
//
//	Parallel(height, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        // Process row y
//	    }
//	})
func Parallel(dataSize int, fn func(partStart, partEnd int)) {
	numGoroutines := runtime.NumCPU()

	// Small inputs are not worth the goroutines.
	if dataSize < numGoroutines*2 {
		fn(0, dataSize)
		return
	}

	partSize := dataSize / numGoroutines

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		partStart := i * partSize
		partEnd := partStart + partSize

		// Last partition gets any remaining data.
		if i == numGoroutines-1 {
			partEnd = dataSize
		}

		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(partStart, partEnd)
	}

	wg.Wait()
}

// Wrap maps a coordinate into [0, extent), tiling the axis in both
// directions.
//
// Arguments:
// - coord: The coordinate to map.
// - extent: The extent of the axis; must be positive.
func Wrap(coord, extent int) int {
	return (coord%extent + extent) % extent
}

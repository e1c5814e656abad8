package worker

import (
	"fmt"

	"github.com/jzx17/photobatch/pkg/types"
)

// Range is the half-open index interval [Start, End) handed to one worker
type Range struct {
	Start int
	End   int
}

// Len returns the number of items in the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Partition splits nItems into nWorkers contiguous ranges in worker order.
// With q = nItems/nWorkers and r = nItems%nWorkers, the first r ranges get
// q+1 items and the rest get q. Ranges are empty when nItems < nWorkers.
func Partition(nItems, nWorkers int) ([]Range, error) {
	if nWorkers <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", types.ErrInvalidPartition, nWorkers)
	}
	if nItems < 0 {
		return nil, fmt.Errorf("%w: item count must not be negative, got %d", types.ErrInvalidPartition, nItems)
	}

	q, r := nItems/nWorkers, nItems%nWorkers
	ranges := make([]Range, nWorkers)

	start := 0
	for i := range ranges {
		size := q
		if i < r {
			size++
		}
		ranges[i] = Range{Start: start, End: start + size}
		start += size
	}

	return ranges, nil
}

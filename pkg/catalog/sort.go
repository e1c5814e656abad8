package catalog

import (
	"cmp"
	"slices"

	"github.com/jzx17/photobatch/pkg/types"
)

// SortKey selects the dispatch order
type SortKey int

const (
	// ByName orders lexicographically on filename
	ByName SortKey = iota
	// BySize orders by ascending byte size
	BySize
)

// Command line literals for the sort keys
const (
	FlagName = "-name"
	FlagSize = "-size"
)

// ParseSortKey parses the command line sort literal
func ParseSortKey(flag string) (SortKey, error) {
	switch flag {
	case FlagName:
		return ByName, nil
	case FlagSize:
		return BySize, nil
	default:
		return ByName, types.ErrInvalidSortFlag
	}
}

// Flag returns the command line literal of the key
func (k SortKey) Flag() string {
	if k == BySize {
		return FlagSize
	}
	return FlagName
}

// String returns the string representation of SortKey
func (k SortKey) String() string {
	switch k {
	case ByName:
		return "name"
	case BySize:
		return "size"
	default:
		return "unknown"
	}
}

// Sort orders records in place. Equal sizes fall back to name order, so the
// result depends only on the (name, size) pairs and not on the order the
// filesystem returned them in.
func Sort(records []ImageRecord, key SortKey) {
	switch key {
	case BySize:
		slices.SortStableFunc(records, func(a, b ImageRecord) int {
			if c := cmp.Compare(a.Size, b.Size); c != 0 {
				return c
			}
			return cmp.Compare(a.Name, b.Name)
		})
	default:
		slices.SortStableFunc(records, func(a, b ImageRecord) int {
			return cmp.Compare(a.Name, b.Name)
		})
	}
}

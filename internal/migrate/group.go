package migrate

import "fmt"

// chunk splits items into consecutive groups of at most size items each.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}

// regroup splits flat into len(counts) consecutive groups where group i
// holds exactly counts[i] items. This is the inverse of flattening per-row
// slices into one bulk call: both enrichment and write-result handling rely
// on the store preserving submission order and count.
func regroup[T any](flat []T, counts []int) ([][]T, error) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != len(flat) {
		return nil, fmt.Errorf("regroup: %d items for group sizes totalling %d", len(flat), total)
	}

	groups := make([][]T, len(counts))
	offset := 0
	for i, n := range counts {
		groups[i] = flat[offset : offset+n]
		offset += n
	}
	return groups, nil
}

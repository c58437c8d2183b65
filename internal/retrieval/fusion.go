package retrieval

import "sort"

// RankedList is one retriever's ordered result list with its fusion
// weight. Entries are best-first; rank is the position in the list.
type RankedList struct {
	Source  string
	Weight  float64
	ChunkID []int64
}

// FusedCandidate is one chunk after reciprocal rank fusion.
type FusedCandidate struct {
	ChunkID int64
	Score   float64
	Sources []string
}

// FuseRRF combines ranked lists with reciprocal rank fusion:
// each appearance contributes weight / (k + rank + 1). Ties keep the
// order in which chunks were first encountered, so equal-rank
// reorderings cannot change the fused score.
func FuseRRF(lists []RankedList, k float64) []FusedCandidate {
	scores := make(map[int64]*FusedCandidate)
	var order []int64

	for _, list := range lists {
		for rank, chunkID := range list.ChunkID {
			candidate := scores[chunkID]
			if candidate == nil {
				candidate = &FusedCandidate{ChunkID: chunkID}
				scores[chunkID] = candidate
				order = append(order, chunkID)
			}
			candidate.Score += list.Weight / (k + float64(rank) + 1)
			candidate.Sources = append(candidate.Sources, list.Source)
		}
	}

	out := make([]FusedCandidate, 0, len(order))
	for _, chunkID := range order {
		out = append(out, *scores[chunkID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

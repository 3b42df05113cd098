// Package correspondence builds matched keypoint pairs from the visual words
// of two views.
//
// Each view is a multimap from a visual word identifier to the image points at
// which that word was observed; the same word may occur several times in one
// view. The three matching policies differ in how they disambiguate repeated
// words, but all of them report the same matched count: the sum over shared
// identifiers of min(|A_id|, |B_id|).
package correspondence

import (
	"sort"

	"github.com/golang/geo/r2"
)

// Words maps a visual word identifier to the image points at which that word
// was observed in a single view.
type Words map[int][]r2.Point

// Pair is a single correspondence: an identifier and one image point from
// each view.
type Pair struct {
	ID int
	A  r2.Point
	B  r2.Point
}

// sharedIDs returns the identifiers present in both views, in increasing
// order.
func sharedIDs(wordsA, wordsB Words) []int {
	ids := make([]int, 0, len(wordsA))
	for id := range wordsA {
		if _, ok := wordsB[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// FindPairs matches same-position occurrences of each shared word in
// insertion order, stopping when either view runs out of occurrences.
// Example: a=[1 2 3 4 6 6], b=[1 1 2 4 5 6 6] gives pairs
// [(1,1a) (2,2) (4,4) (6a,6a) (6b,6b)] and count 5.
func FindPairs(wordsA, wordsB Words) (int, []Pair) {
	count := 0
	var pairs []Pair
	for _, id := range sharedIDs(wordsA, wordsB) {
		ptsA := wordsA[id]
		ptsB := wordsB[id]
		n := len(ptsA)
		if len(ptsB) < n {
			n = len(ptsB)
		}
		for i := 0; i < n; i++ {
			pairs = append(pairs, Pair{ID: id, A: ptsA[i], B: ptsB[i]})
		}
		count += n
	}
	return count, pairs
}

// FindPairsUnique matches a shared word only when it occurs exactly once in
// each view. Ambiguous words are dropped from the pair list but still
// contribute min(|A_id|, |B_id|) to the count, so the count and the list
// length may diverge.
// Example: a=[1 2 3 4 6 6], b=[1 1 2 4 5 6 6] gives pairs [(2,2) (4,4)] and
// count 5.
func FindPairsUnique(wordsA, wordsB Words) (int, []Pair) {
	count := 0
	var pairs []Pair
	for _, id := range sharedIDs(wordsA, wordsB) {
		ptsA := wordsA[id]
		ptsB := wordsB[id]
		if len(ptsA) == 1 && len(ptsB) == 1 {
			pairs = append(pairs, Pair{ID: id, A: ptsA[0], B: ptsB[0]})
			count++
			continue
		}
		if len(ptsA) < len(ptsB) {
			count += len(ptsA)
		} else {
			count += len(ptsB)
		}
	}
	return count, pairs
}

// FindPairsAll emits the full cross-product of each shared word's occurrences
// in the two views. The count still follows the min rule, independent of the
// number of emitted pairs.
// Example: a=[1 2 3 4 6 6], b=[1 1 2 4 5 6 6] gives 8 pairs and count 5.
func FindPairsAll(wordsA, wordsB Words) (int, []Pair) {
	count := 0
	var pairs []Pair
	for _, id := range sharedIDs(wordsA, wordsB) {
		ptsA := wordsA[id]
		ptsB := wordsB[id]
		if len(ptsA) < len(ptsB) {
			count += len(ptsA)
		} else {
			count += len(ptsB)
		}
		for _, pa := range ptsA {
			for _, pb := range ptsB {
				pairs = append(pairs, Pair{ID: id, A: pa, B: pb})
			}
		}
	}
	return count, pairs
}

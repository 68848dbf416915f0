package stats

import (
	"runtime"

	"github.com/grailbio/base/traverse"
)

// mutCorrParallelThreshold is the minimum mut_corr length (L·(L+1)/2)
// above which MergeAll splits the dominant O(L²) add across traverse.Each
// shards; below it the per-goroutine overhead isn't worth paying.
const mutCorrParallelThreshold = 1 << 16

// MergeAll folds shards into one Stats sized to ref, equivalent to
// repeated pairwise Merge calls but with the mut_corr add parallelized
// once there's enough of it to be worth splitting up.
func MergeAll(ref []byte, shards []*Stats) (*Stats, error) {
	merged := New(ref)
	for _, s := range shards {
		merged.NReads += s.NReads
		for k, v := range s.InsertLen {
			merged.InsertLen[k] += v
		}
		for k, v := range s.DelHash {
			merged.DelHash[k] += v
		}
		for i := range merged.PosCounts {
			for k := 0; k < 6; k++ {
				merged.PosCounts[i][k] += s.PosCounts[i][k]
			}
		}
	}

	if len(shards) > 1 && len(merged.MutCorr) >= mutCorrParallelThreshold {
		parallelism := runtime.NumCPU()
		n := len(merged.MutCorr)
		err := traverse.Each(parallelism, func(jobIdx int) error {
			start := (jobIdx * n) / parallelism
			end := ((jobIdx + 1) * n) / parallelism
			for _, s := range shards {
				for i := start; i < end; i++ {
					for k := 0; k < 4; k++ {
						merged.MutCorr[i][k] += s.MutCorr[i][k]
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		for _, s := range shards {
			for i := range merged.MutCorr {
				for k := 0; k < 4; k++ {
					merged.MutCorr[i][k] += s.MutCorr[i][k]
				}
			}
		}
	}

	return merged, nil
}

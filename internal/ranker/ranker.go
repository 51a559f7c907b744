// Package ranker orders screening results and keeps the top of the list.
package ranker

import (
	"sort"

	"github.com/dyike/GemScreener/models"
)

// Rank sorts results by score, then peak volume ratio, then symbol, assigns
// 1-based ranks and keeps the first topN. topN <= 0 keeps everything. The
// input slice is not modified.
func Rank(results []models.ScreeningResult, topN int) []models.ScreeningResult {
	ranked := make([]models.ScreeningResult, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		return Less(ranked[i], ranked[j])
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Less reports whether a ranks ahead of b.
func Less(a, b models.ScreeningResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Indicators.PeakVolumeRatio != b.Indicators.PeakVolumeRatio {
		return a.Indicators.PeakVolumeRatio > b.Indicators.PeakVolumeRatio
	}
	return a.Ticker.Symbol < b.Ticker.Symbol
}

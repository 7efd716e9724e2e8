package normalize

import (
	"math"

	"github.com/joseph-ayodele/invoice-organizer/constants"
)

// Score starts at 1.0 and subtracts the penalty for each distinct flag, clamped to [0,1].
func Score(flags []constants.Flag) float64 {
	score := 1.0
	seen := make(map[constants.Flag]struct{}, len(flags))
	for _, f := range flags {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		score -= constants.Penalties[f]
	}
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}

package report

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/coffersTech/logbuf/internal/model"
)

// TestSplitEven_PropertyBased checks that splitting keeps every record in
// order, never yields more pieces than records, and balances piece lengths
// to within one.
func TestSplitEven_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("split covers all records evenly", prop.ForAll(
		func(n, pieces int) bool {
			recs := make([]model.BizInfo, n)
			for i := range recs {
				recs[i].Created = int64(i)
			}
			out := splitEven(recs, pieces)

			want := pieces
			if want > n {
				want = n
			}
			if len(out) != want {
				return false
			}

			minLen, maxLen := n, 0
			next := int64(0)
			for _, piece := range out {
				if len(piece) < minLen {
					minLen = len(piece)
				}
				if len(piece) > maxLen {
					maxLen = len(piece)
				}
				for _, r := range piece {
					if r.Created != next {
						return false
					}
					next++
				}
			}
			return next == int64(n) && maxLen-minLen <= 1
		},
		gen.IntRange(1, 500),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

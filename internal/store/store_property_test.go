package store

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestQuotaInvariant_PropertyBased appends random-sized entries under a
// random quota and checks, after every append, that the stored total equals
// the sum of the stored sizes, that entries stay in create-time order, and
// that the total is within quota unless the newest entry is alone.
func TestQuotaInvariant_PropertyBased(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("total size stays consistent and bounded", prop.ForAll(
		func(quota int64, sizes []int) bool {
			if err := s.WipeAll(ctx); err != nil {
				t.Logf("wipe: %v", err)
				return false
			}
			for _, size := range sizes {
				id, err := s.Append(ctx, "prop", quota, text(size, "p"))
				if err != nil {
					t.Logf("append: %v", err)
					return false
				}

				entries, err := s.QueryRange(ctx, "prop", 0, math.MaxInt64)
				if err != nil {
					return false
				}
				status, err := s.Status(ctx, "prop")
				if err != nil {
					return false
				}

				var sum, prev int64
				for _, e := range entries {
					if e.CreateTime <= prev {
						return false
					}
					prev = e.CreateTime
					sum += e.Content.Size()
				}
				if sum != status.TotalSize {
					t.Logf("sum %d != total %d", sum, status.TotalSize)
					return false
				}
				if entries[len(entries)-1].CreateTime != id {
					return false
				}
				if status.TotalSize > quota && len(entries) != 1 {
					t.Logf("total %d over quota %d with %d entries", status.TotalSize, quota, len(entries))
					return false
				}
			}
			return true
		},
		gen.Int64Range(50, 2000),
		gen.SliceOfN(15, gen.IntRange(0, 600)),
	))

	properties.TestingRun(t)
}

package gamification

import (
	"bytes"
	"sort"
	"time"

	"github.com/meterly/backend/internal/domain/principal"
)

// Ranking is one principal's total across all event types
type Ranking struct {
	Principal   principal.Ref
	DisplayName string
	TotalPoints int64
	// PrincipalCreatedAt breaks ties: earlier principals rank first.
	PrincipalCreatedAt time.Time
}

// SortRankings orders by points descending, then creation time, then id
func SortRankings(rs []Ranking) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if !a.PrincipalCreatedAt.Equal(b.PrincipalCreatedAt) {
			return a.PrincipalCreatedAt.Before(b.PrincipalCreatedAt)
		}
		return bytes.Compare(a.Principal.ID[:], b.Principal.ID[:]) < 0
	})
}

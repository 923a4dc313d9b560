package settings

import (
	"testing"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	t.Run("empty map keeps defaults", func(t *testing.T) {
		s, err := FromMap(Defaults(), nil)

		require.NoError(t, err)
		assert.Equal(t, Defaults(), s)
	})

	t.Run("overlays stored values", func(t *testing.T) {
		demo := uuid.New()
		s, err := FromMap(Defaults(), map[string]string{
			KeyDisableCredits:    "true",
			KeyActionCost:        "3",
			KeyResetIntervalDays: "7",
			KeyDemoCouponTypeID:  demo.String(),
			"unknown_key":        "ignored",
		})

		require.NoError(t, err)
		assert.True(t, s.DisableCredits)
		assert.Equal(t, int64(3), s.ActionCost)
		assert.Equal(t, 7, s.ResetIntervalDays)
		assert.Equal(t, demo, *s.DemoCouponTypeID)
		assert.True(t, s.EnableCoupons)
	})

	t.Run("round trips through ToMap", func(t *testing.T) {
		in := Defaults()
		in.PremiumDefaultCredits = 5000

		out, err := FromMap(Settings{}, in.ToMap())

		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	tests := []struct {
		name   string
		values map[string]string
	}{
		{"unparsable bool", map[string]string{KeyEnableCoupons: "yes please"}},
		{"unparsable int", map[string]string{KeyFreemiumDefaultCredits: "lots"}},
		{"bad uuid", map[string]string{KeyDemoCouponTypeID: "nope"}},
		{"out of range", map[string]string{KeyActionCost: "0"}},
		{"negative default", map[string]string{KeyAnonymousDefaultCredits: "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(Defaults(), tt.values)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumericConversion(t *testing.T) {
	tests := []string{"0", "2.5", "1234.56", "-10.01", "0.082500"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			d := decimal.RequireFromString(in)
			require.True(t, d.Equal(decimalFrom(numeric(d))))
		})
	}

	t.Run("null reads as zero", func(t *testing.T) {
		require.True(t, decimalFrom(pgtype.Numeric{}).IsZero())
	})
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	cases := []struct {
		name      string
		lines     []decimal.Decimal
		vat       decimal.Decimal
		subtotal  string
		vatAmount string
		total     string
	}{
		{"flat subscription", []decimal.Decimal{dec("50.00")}, dec("21"), "50", "10.5", "60.5"},
		{"rounds vat half up", []decimal.Decimal{dec("0.05")}, dec("21"), "0.05", "0.01", "0.06"},
		{"multiple lines", []decimal.Decimal{dec("12.34"), dec("7.66")}, dec("10"), "20", "2", "22"},
		{"zero vat", []decimal.Decimal{dec("99.99")}, decimal.Zero, "99.99", "0", "99.99"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(tc.lines, tc.vat)
			assert.True(t, got.Subtotal.Equal(dec(tc.subtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.VATAmount.Equal(dec(tc.vatAmount)), "vat %s", got.VATAmount)
			assert.True(t, got.Total.Equal(dec(tc.total)), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.VATAmount)))
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.True(t, FromMinorUnits(4132).Equal(dec("41.32")))
	assert.Equal(t, int64(6050), ToMinorUnits(dec("60.50")))
	assert.Equal(t, int64(1), ToMinorUnits(dec("0.005")))
	assert.True(t, LineTotal(dec("12.50"), dec("3")).Equal(dec("37.5")))
}

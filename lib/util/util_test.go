package util

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIn(t *testing.T) {
	assert.True(t, In([]string{"btc", "eth"}, "eth"))
	assert.False(t, In([]string{"btc", "eth"}, "ltc"))
	assert.False(t, In(nil, "btc"))
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		name, in string
		prec     int32
		want     string
		wantErr  bool
	}{
		{"longer_than_precision", "150000000", 8, "1.5", false},
		{"equal_to_precision", "15000000", 8, "0.15", false},
		{"shorter_than_precision", "42", 8, "0.00000042", false},
		{"single_digit", "7", 8, "0.00000007", false},
		{"zero", "0", 8, "0", false},
		{"precision_zero", "12345", 0, "12345", false},
		{"large_amount", "2100000000000000", 8, "21000000", false},
		{"empty", "", 8, "", true},
		{"negative", "-15", 8, "", true},
		{"not_a_number", "12a4", 8, "", true},
		{"float_smuggled_in", "1.5", 8, "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseUnits(c.in, c.prec)
			if c.wantErr {
				assert.ErrorIs(t, err, ErrBadAmount)
				return
			}
			require.NoError(t, err)
			want, err := decimal.NewFromString(c.want)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s want %s", got, want)
		})
	}
}

// Multiplying the parsed value back by 10^prec must recover the original integer string.
func TestParseUnitsRoundTrip(t *testing.T) {
	ins := []string{"1", "99", "100", "150000000", "2100000000000000", "5", "123456789012345678901234567890"}
	for _, in := range ins {
		for _, prec := range []int32{0, 1, 8, 18} {
			d, err := ParseUnits(in, prec)
			require.NoError(t, err)
			back := d.Mul(decimal.New(1, prec))
			orig, err := decimal.NewFromString(in)
			require.NoError(t, err)
			assert.True(t, back.Equal(orig), "in=%s prec=%d got %s", in, prec, back)
		}
	}
}

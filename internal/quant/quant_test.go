package quant

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTickSize(t *testing.T) {
	tests := []struct {
		price string
		tick  string
	}{
		{"0.5", "0.01"},
		{"9.99", "0.01"},
		{"10", "0.05"},
		{"49.9", "0.05"},
		{"50", "0.1"},
		{"99.9", "0.1"},
		{"100", "0.5"},
		{"499.5", "0.5"},
		{"500", "1"},
		{"999", "1"},
		{"1000", "5"},
		{"1058.9", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			assert.True(t, TickSize(d(tt.price)).Equal(d(tt.tick)),
				"TickSize(%s) = %s, want %s", tt.price, TickSize(d(tt.price)), tt.tick)
		})
	}
}

func TestCeilToTick(t *testing.T) {
	tests := []struct {
		price string
		want  string
	}{
		{"10.0377878", "10.05"},
		{"42.718", "42.75"},
		{"35.854", "35.90"},
		{"131.9894", "132"},
		{"998.1", "999"},
		{"39.55", "39.55"}, // on-tick input unchanged
		{"41.35", "41.35"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			got := CeilToTick(d(tt.price))
			assert.True(t, got.Equal(d(tt.want)), "CeilToTick(%s) = %s, want %s", tt.price, got, tt.want)
		})
	}
}

func TestFloorToTick(t *testing.T) {
	tests := []struct {
		price string
		want  string
	}{
		{"10.0377878", "10"},
		{"41.37", "41.35"},
		{"42.749", "42.70"},
		{"131.9894", "131.5"},
		{"1058.9", "1055"},
		{"39.55", "39.55"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			got := FloorToTick(d(tt.price))
			assert.True(t, got.Equal(d(tt.want)), "FloorToTick(%s) = %s, want %s", tt.price, got, tt.want)
		})
	}
}

func TestRoundToTickIdempotent(t *testing.T) {
	for _, price := range []string{"10.0377878", "42.718", "131.9894", "998.1", "1058.9"} {
		up := CeilToTick(d(price))
		down := FloorToTick(d(price))
		assert.True(t, CeilToTick(up).Equal(up), "re-ceiling %s moved the price", price)
		assert.True(t, FloorToTick(down).Equal(down), "re-flooring %s moved the price", price)
	}
}

func TestClampToBand(t *testing.T) {
	up, down := d("43.3"), d("35.5")
	assert.True(t, ClampToBand(d("44.0"), up, down).Equal(up))
	assert.True(t, ClampToBand(d("35.0"), up, down).Equal(down))
	assert.True(t, ClampToBand(d("39.4"), up, down).Equal(d("39.4")))
}

func TestTickCountBetween(t *testing.T) {
	tests := []struct {
		p0, p1 string
		want   int
	}{
		{"39.40", "39.55", 3},
		{"39.55", "39.40", -3},
		{"9.98", "10.05", 3},  // 0.01 steps to 10, one 0.05 step above
		{"10.05", "9.98", -3},
		{"49.90", "50.2", 4},
		{"42.70", "42.70", 0},
		{"42.718", "42.748", 0}, // both floor to 42.70
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TickCountBetween(d(tt.p0), d(tt.p1)),
			"TickCountBetween(%s, %s)", tt.p0, tt.p1)
	}
}

func TestOffsetByTicks(t *testing.T) {
	tests := []struct {
		price string
		n     int
		want  string
	}{
		{"39.40", 3, "39.55"},
		{"39.55", -3, "39.40"},
		{"10.00", -1, "9.99"}, // steps below the decade use the finer tick
		{"9.99", 1, "10.00"},
		{"50.0", -1, "49.95"},
		{"10.00", 2, "10.10"},
		{"0.03", -5, "0.01"}, // clamped at the venue minimum
	}
	for _, tt := range tests {
		got := OffsetByTicks(d(tt.price), tt.n)
		assert.True(t, got.Equal(d(tt.want)),
			"OffsetByTicks(%s, %d) = %s, want %s", tt.price, tt.n, got, tt.want)
	}
}

func TestSplitByThreshold(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int64
		threshold int64
		want      []int64
	}{
		{"over threshold", 1024, 499, []int64{499, 499, 26}},
		{"negative over threshold", -1024, 499, []int64{-499, -499, -26}},
		{"exact multiple has no zero chunk", 998, 499, []int64{499, 499}},
		{"under threshold", 26, 499, []int64{26}},
		{"at threshold", 499, 499, []int64{499}},
		{"zero", 0, 499, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitByThreshold(tt.quantity, tt.threshold)
			require.Equal(t, tt.want, got)
			var sum int64
			for _, c := range got {
				sum += c
			}
			assert.Equal(t, tt.quantity, sum)
		})
	}
}

func TestSplitEvenly(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		parts    int
		want     []int64
	}{
		{"uneven", 7, 3, []int64{3, 2, 2}},
		{"negative uneven", -7, 3, []int64{-3, -2, -2}},
		{"even", 6, 3, []int64{2, 2, 2}},
		{"more parts than quantity", 2, 4, []int64{1, 1, 0, 0}},
		{"no parts", 7, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitEvenly(tt.quantity, tt.parts)
			require.Equal(t, tt.want, got)
			var sum int64
			for _, c := range got {
				sum += c
			}
			if tt.parts > 0 {
				assert.Equal(t, tt.quantity, sum)
			}
		})
	}
}

package flake

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmpSPOTFieldCascade(t *testing.T) {
	tests := []struct {
		name string
		a, b Flake
		want int // sign
	}{
		{
			name: "subject decides first",
			a:    Flake{S: 1, P: 9, T: -1, Op: true},
			b:    Flake{S: 2, P: 1, T: -5, Op: true},
			want: -1,
		},
		{
			name: "predicate decides within subject",
			a:    Flake{S: 1, P: 2, T: -1, Op: true},
			b:    Flake{S: 1, P: 3, T: -1, Op: true},
			want: -1,
		},
		{
			name: "datatype decides before value",
			a:    Flake{S: 1, P: 1, O: Int(999), DT: DtLong, T: -1, Op: true},
			b:    Flake{S: 1, P: 1, O: Float(0.5), DT: DtDouble, T: -1, Op: true},
			want: -1,
		},
		{
			name: "value decides within datatype",
			a:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -1, Op: true},
			b:    Flake{S: 1, P: 1, O: Int(42), DT: DtLong, T: -1, Op: true},
			want: -1,
		},
		{
			name: "recent transaction precedes older",
			a:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -7, Op: true},
			b:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -3, Op: true},
			want: -1,
		},
		{
			name: "assert precedes retract",
			a:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -3, Op: true},
			b:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -3, Op: false},
			want: -1,
		},
		{
			name: "identical flakes compare equal",
			a:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -3, Op: true},
			b:    Flake{S: 1, P: 1, O: Int(9), DT: DtLong, T: -3, Op: true},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CmpSPOT(tt.a, tt.b)
			switch tt.want {
			case -1:
				assert.Negative(t, got)
				assert.Positive(t, CmpSPOT(tt.b, tt.a))
			case 0:
				assert.Zero(t, got)
			}
		})
	}
}

func TestComparatorsAreTotalOrders(t *testing.T) {
	flakes := []Flake{
		{S: 1, P: 1, O: Int(9), DT: DtLong, T: -1, Op: true},
		{S: 1, P: 1, O: Int(42), DT: DtLong, T: -1, Op: true},
		{S: 1, P: 1, O: Int(42), DT: DtInt, T: -1, Op: true},
		{S: 1, P: 2, O: String("x"), DT: DtString, T: -2, Op: true},
		{S: 2, P: 1, O: Ref(1), DT: DtRef, T: -2, Op: true},
		{S: 2, P: 1, O: Ref(1), DT: DtRef, T: -3, Op: false},
		{S: -1, P: 20, O: Int(1000), DT: DtInstant, T: -1, Op: true},
	}

	for _, idx := range Indexes {
		cmp := ComparatorFor(idx)
		t.Run(string(idx), func(t *testing.T) {
			sorted := make([]Flake, len(flakes))
			copy(sorted, flakes)
			sort.Slice(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })

			for i := 0; i < len(sorted)-1; i++ {
				c := cmp(sorted[i], sorted[i+1])
				assert.Negative(t, c, "adjacent flakes must be strictly ordered")
			}
			// antisymmetry on every pair
			for i := range flakes {
				for j := range flakes {
					cij := cmp(flakes[i], flakes[j])
					cji := cmp(flakes[j], flakes[i])
					if cij < 0 {
						assert.Positive(t, cji)
					}
					if cij == 0 {
						assert.Zero(t, cji)
						assert.True(t, flakes[i].Equal(flakes[j]))
					}
				}
			}
		})
	}
}

func TestCrossDatatypeNeverCoerces(t *testing.T) {
	// 999 as long vs 0.5 as double: datatype id decides, not numeric value
	longFlake := Flake{S: 1, P: 1, O: Int(999), DT: DtLong, T: -1, Op: true}
	doubleFlake := Flake{S: 1, P: 1, O: Float(0.5), DT: DtDouble, T: -1, Op: true}
	assert.Negative(t, CmpSPOT(longFlake, doubleFlake))
}

func TestMinMaxBound(t *testing.T) {
	flakes := []Flake{
		{S: 1, P: 1, O: Int(9), DT: DtLong, T: -1, Op: true},
		{S: -5, P: 20, O: Int(1), DT: DtInstant, T: -5, Op: true},
		{S: 9, P: 3, O: String("z"), DT: DtString, T: -2, Op: false},
	}
	for _, idx := range Indexes {
		cmp := ComparatorFor(idx)
		for _, f := range flakes {
			assert.Negative(t, cmp(Min(), f), "%s: Min must precede %v", idx, f)
			assert.Positive(t, cmp(Max(), f), "%s: Max must follow %v", idx, f)
		}
	}
}

func TestCompareDecimalStrings(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"9", "12", -1},
		{"1.5", "1.50", 0},
		{"-2", "1", -1},
		{"-10", "-2", -1},
		{"0.1", "0.09", 1},
		{"000.5", "0.5", 0},
	}
	for _, tt := range tests {
		got := CompareValues(Decimal(tt.a), Decimal(tt.b))
		switch tt.want {
		case -1:
			assert.Negative(t, got, "%s < %s", tt.a, tt.b)
		case 0:
			assert.Zero(t, got, "%s == %s", tt.a, tt.b)
		case 1:
			assert.Positive(t, got, "%s > %s", tt.a, tt.b)
		}
	}
}

func TestSIDPartitioning(t *testing.T) {
	sid := SID(3, 42)
	require.Equal(t, int64(3), Collection(sid))
	assert.Greater(t, SID(3, 43), sid)
	assert.Greater(t, SID(4, 0), SID(3, 1<<40))
}

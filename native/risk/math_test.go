package risk

import (
	"math/big"
	"testing"
)

func TestRatToRayExactQuotientsStayExact(t *testing.T) {
	cases := []struct {
		rat  *big.Rat
		want *big.Int
	}{
		{big.NewRat(1, 1), new(big.Int).Set(ray)},
		{big.NewRat(2, 1), new(big.Int).Mul(ray, big.NewInt(2))},
		{big.NewRat(1, 2), new(big.Int).Rsh(ray, 1)},
		{big.NewRat(7, 10), new(big.Int).Quo(new(big.Int).Mul(ray, big.NewInt(7)), big.NewInt(10))},
	}
	for _, tc := range cases {
		got := ratToRay(tc.rat)
		if got.Cmp(tc.want) != 0 {
			t.Fatalf("ratToRay(%s): got %s want %s", tc.rat, got, tc.want)
		}
	}
}

func TestFixedPointTiesRoundUp(t *testing.T) {
	// 1e27 x 1/(2e27) is exactly half a ray unit and must round up.
	tie := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Mul(ray, big.NewInt(2)))
	if got := ratToRay(tie); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("tie should round up: got %s", got)
	}
	// Just under the tie rounds down.
	under := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Mul(wad, big.NewInt(3)))
	if got := ratToWad(under); got.Sign() != 0 {
		t.Fatalf("sub-tie should round down: got %s", got)
	}
}

func TestRatToWadExactAndTie(t *testing.T) {
	if got := ratToWad(big.NewRat(3, 1)); got.Cmp(new(big.Int).Mul(wad, big.NewInt(3))) != 0 {
		t.Fatalf("exact wad conversion drifted: got %s", got)
	}
	tie := new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Mul(wad, big.NewInt(2)))
	if got := ratToWad(tie); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("tie should round up: got %s", got)
	}
}

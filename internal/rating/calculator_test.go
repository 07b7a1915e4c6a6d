package rating

import "testing"

func TestCalculate(t *testing.T) {
	cases := []struct {
		name           string
		player         int
		opponent       int
		outcome        Outcome
		k              int
		wantNewRating  int
	}{
		{"even win", 1000, 1000, Win, DefaultKFactor, 1016},
		{"even loss", 1000, 1000, Loss, DefaultKFactor, 984},
		{"even draw", 1000, 1000, Draw, DefaultKFactor, 1000},
		{"underdog win", 1000, 1200, Win, DefaultKFactor, 1024},
		{"favorite loss", 1200, 1000, Loss, DefaultKFactor, 1176},
		{"zero k falls back to default", 1000, 1000, Win, 0, 1016},
		{"floor clamps at 100", 100, 2000, Loss, DefaultKFactor, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Calculate(tc.player, tc.opponent, tc.outcome, tc.k)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if got.NewRating != tc.wantNewRating {
				t.Errorf("NewRating = %d, want %d", got.NewRating, tc.wantNewRating)
			}
		})
	}
}

func TestCalculateInvalidInput(t *testing.T) {
	if _, err := Calculate(99, 1000, Win, DefaultKFactor); err == nil {
		t.Error("expected error for sub-floor player rating")
	}
	if _, err := Calculate(1000, 1000, Outcome("forfeit"), DefaultKFactor); err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestEloSymmetry(t *testing.T) {
	winner, err := Calculate(1000, 1200, Win, DefaultKFactor)
	if err != nil {
		t.Fatal(err)
	}
	loser, err := Calculate(1200, 1000, Loss, DefaultKFactor)
	if err != nil {
		t.Fatal(err)
	}
	if sum := winner.Delta + loser.Delta; sum != 0 {
		t.Errorf("Δwinner + Δloser = %d, want 0", sum)
	}
	if abs(winner.Delta) > DefaultKFactor {
		t.Errorf("|Δwinner| = %d exceeds k = %d", abs(winner.Delta), DefaultKFactor)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

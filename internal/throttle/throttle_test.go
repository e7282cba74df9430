package throttle

import "testing"

func TestShouldAnalyze(t *testing.T) {
	for _, n := range []int{1, 2, 5, 7} {
		for i := 1; i <= 50; i++ {
			if got, want := ShouldAnalyze(i, n), i%n == 0; got != want {
				t.Errorf("ShouldAnalyze(%d, %d) = %v, want %v", i, n, got, want)
			}
		}
	}
}

func TestThrottleEveryFifth(t *testing.T) {
	th, err := New(5)
	if err != nil {
		t.Fatal(err)
	}

	var hits []int
	for i := 0; i < 20; i++ {
		idx, ok := th.Next()
		if ok {
			hits = append(hits, idx)
		}
	}

	want := []int{5, 10, 15, 20}
	if len(hits) != len(want) {
		t.Fatalf("Expected hits %v, got %v", want, hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Errorf("Expected hit %d at frame %d, got %d", i, want[i], hits[i])
		}
	}
	if th.Count() != 20 {
		t.Errorf("Expected count 20, got %d", th.Count())
	}
}

func TestThrottleIntervalOne(t *testing.T) {
	th, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 10; i++ {
		idx, ok := th.Next()
		if idx != i || !ok {
			t.Errorf("Next() = (%d, %v), want (%d, true)", idx, ok, i)
		}
	}
}

func TestNewRejectsInvalidInterval(t *testing.T) {
	for _, n := range []int{0, -1, -10} {
		if _, err := New(n); err == nil {
			t.Errorf("New(%d) expected error, got nil", n)
		}
	}
}

func TestShouldAnalyzeInvalidInterval(t *testing.T) {
	for _, n := range []int{0, -1, -5} {
		for _, i := range []int{0, 1, 5, 10} {
			if ShouldAnalyze(i, n) {
				t.Errorf("ShouldAnalyze(%d, %d) = true, want false", i, n)
			}
		}
	}
}

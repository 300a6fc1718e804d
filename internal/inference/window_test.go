package inference

import (
	"reflect"
	"testing"
)

func TestFillWindow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		seq  []int
		want []int
		n    int
	}{
		{seq: []int{5}, want: []int{5, 0, 0}, n: 1},
		{seq: []int{5, 6, 7}, want: []int{5, 6, 7}, n: 3},
		{seq: []int{1, 2, 3, 4, 5}, want: []int{3, 4, 5}, n: 3},
	}
	for _, tc := range cases {
		w := []int{9, 9, 9}
		n := fillWindow(w, tc.seq, 0)
		if n != tc.n || !reflect.DeepEqual(w, tc.want) {
			t.Fatalf("fillWindow(%v): got %v,%d want %v,%d", tc.seq, w, n, tc.want, tc.n)
		}
	}
}

func TestCompletePrefix(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"":                 0,
		"abc":              3,
		"a\xe2\x82":        1,
		"a\xe2\x82\xac":    4,
		"\xf0\x9f\x91":     0,
		"\xf0\x9f\x91\x8b": 4,
		"x\xff":            2,
	}
	for in, want := range cases {
		if got := completePrefix([]byte(in)); got != want {
			t.Fatalf("completePrefix(%q) = %d want %d", in, got, want)
		}
	}
}

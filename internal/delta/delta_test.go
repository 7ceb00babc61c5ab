package delta

import "testing"

func TestCompute(t *testing.T) {
	tcs := []struct {
		name string
		prev string
		curr string
		want string
	}{
		{name: "empty to empty", prev: "", curr: "", want: ""},
		{name: "first text", prev: "", curr: "hello", want: "hello"},
		{name: "pure append", prev: "hello", curr: "hello world", want: " world"},
		{name: "unchanged", prev: "hello", curr: "hello", want: ""},
		{name: "curr empty clears", prev: "hello", curr: "", want: ""},
		{name: "revision diverges entirely", prev: "hello", curr: "goodbye", want: "goodbye"},
		{name: "common prefix then diverges", prev: "I think", curr: "I thought", want: "ought"},
		{name: "multi-byte runes", prev: "こんに", curr: "こんにちは", want: "ちは"},
		{name: "curr shorter than prev, still a prefix", prev: "hello world", curr: "hello", want: ""},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := Compute(tc.prev, tc.curr)
			if got != tc.want {
				t.Fatalf("Compute(%q, %q) = %q, want %q", tc.prev, tc.curr, got, tc.want)
			}
		})
	}
}

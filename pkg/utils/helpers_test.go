package utils

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	def := 10 * time.Second
	cases := map[string]time.Duration{
		"":      def,
		"5m":    5 * time.Minute,
		"250ms": 250 * time.Millisecond,
		"soon":  def,
		"-1s":   def,
		"0s":    def,
	}
	for input, want := range cases {
		if got := ParseDuration(input, def); got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want interface{}
	}{
		{"42", int64(42)},
		{" 7 ", int64(7)},
		{"1.5", 1.5},
		{"List of rivers", "List of rivers"},
		{"  ", nil},
	}
	for _, tc := range cases {
		if got := ParseValue(tc.in); got != tc.want {
			t.Errorf("ParseValue(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{int64(12), 12, true},
		{int(3), 3, true},
		{uint8(9), 9, true},
		{float64(5), 5, true},
		{float64(5.5), 0, false},
		{json.Number("17"), 17, true},
		{json.Number("17.0"), 17, true},
		{json.Number("1e2"), 100, true},
		{"  23 ", 23, true},
		{"23.0", 23, true},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{uint64(math.MaxUint64), 0, false},
	}
	for _, tc := range cases {
		got, ok := ToInt64(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ToInt64(%#v) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestToString(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{"Ocean", "Ocean", true},
		{float64(1.25), "1.25", true},
		{float64(12), "12", true},
		{int64(-4), "-4", true},
		{uint(4), "4", true},
		{json.Number("99"), "99", true},
		{true, "", false},
		{nil, "", false},
		{[]string{"a"}, "", false},
	}
	for _, tc := range cases {
		got, ok := ToString(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ToString(%#v) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

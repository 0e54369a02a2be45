package timecontrol

import (
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{300000, "5:00"},
		{298800, "4:58"},
		{20000, "0:20"},
		{19999, "0:19.9"},
		{19400, "0:19.4"},
		{950, "0:00.9"},
		{0, "0:00.0"},
		{-50, "0:00.0"},
		{3723000, "62:03"},
	}
	for _, tc := range cases {
		if got := FormatClock(tc.ms, DefaultLowTime); got != tc.want {
			t.Fatalf("FormatClock(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestLookup(t *testing.T) {
	b, ok := Lookup(" 5+3 ")
	if !ok {
		t.Fatalf("expected 5+3 bucket")
	}
	if b.Initial != 5*time.Minute || b.Increment != 3*time.Second {
		t.Fatalf("unexpected bucket: %+v", b)
	}
	if _, ok := Lookup("7+7"); ok {
		t.Fatalf("unknown bucket accepted")
	}
}

func TestKeysOrder(t *testing.T) {
	keys := Keys()
	want := []string{"3+0", "3+2", "5+0", "5+3", "10+0", "15+10"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	keys[0] = "mutated"
	if Keys()[0] != "3+0" {
		t.Fatalf("Keys must return a copy")
	}
}

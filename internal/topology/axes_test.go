package topology

import "testing"

func TestParseAxes(t *testing.T) {
	a, err := ParseAxes([]string{"-Z", "Y", "X"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a != DefaultOrientation() {
		t.Fatalf("got %v, want default orientation", a.Strings())
	}
	if got := a.Strings(); got[0] != "-Z" || got[1] != "Y" || got[2] != "X" {
		t.Fatalf("round trip: got %v", got)
	}

	if _, err := ParseAxes([]string{"X", "Y"}); err == nil {
		t.Fatalf("expected error for 2 axes")
	}
	if _, err := ParseAxes([]string{"X", "X", "Y"}); err == nil {
		t.Fatalf("expected error for repeated axis")
	}
	if _, err := ParseAxes([]string{"X", "Y", "W"}); err == nil {
		t.Fatalf("expected error for unknown axis")
	}
	if _, err := ParseAxes([]string{"+x", "-y", "z"}); err != nil {
		t.Fatalf("lowercase with signs should parse: %v", err)
	}
}

func TestAxesApply(t *testing.T) {
	dims := [3]int{20, 10, 5}

	id := DefaultWorldOrientation()
	if got := id.Apply([3]int{3, 4, 2}, dims); got != [3]int{3, 4, 2} {
		t.Fatalf("identity: got %v", got)
	}

	// {-Z, Y, X}: first output counts down the Z extent.
	a := DefaultOrientation()
	if got := a.Apply([3]int{3, 4, 2}, dims); got != [3]int{5 - 1 - 2, 4, 3} {
		t.Fatalf("default orientation: got %v", got)
	}
}

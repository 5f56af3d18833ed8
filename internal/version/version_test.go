package version

import "testing"

func TestDefaults(t *testing.T) {
	v, c, d := Info()
	if v != "dev" || c != "unknown" || d != "unknown" {
		t.Fatalf("unexpected defaults: %s %s %s", v, c, d)
	}
	if GetVersion() != v || GetCommit() != c || GetDate() != d {
		t.Fatal("getters must agree with Info")
	}
}

func TestString_ReflectsLinkerValues(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	t.Cleanup(func() { version, commit, date = origVersion, origCommit, origDate })

	version, commit, date = "v1.4.0", "abc1234", "2026-01-15"

	want := "orderflow version=v1.4.0 commit=abc1234 date=2026-01-15"
	if got := String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

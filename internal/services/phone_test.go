package services

import "testing"

func TestNormPhone(t *testing.T) {
	tests := map[string]string{
		"(434) 996-1245":    "+14349961245",
		"434.996.1245":      "+14349961245",
		"1-434-996-1245":    "+14349961245",
		"+1 434 996 1245":   "+14349961245",
		"0044 20 7946 0958": "+442079460958",
		"+44 20 7946 0958":  "+442079460958",
		"":                  "",
		"call me":           "",
		"12":                "",
		"434#9961245":       "",
	}
	for in, want := range tests {
		if got := NormPhone(in); got != want {
			t.Errorf("NormPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAltPhones(t *testing.T) {
	got := altPhones("(434) 996-1245")
	want := []string{"+14349961245", "(434) 996-1245", "4349961245", "14349961245"}
	if len(got) != len(want) {
		t.Fatalf("altPhones = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("altPhones[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormEmail(t *testing.T) {
	if e, ok := NormEmail("  Rider@Ranch.Test "); !ok || e != "rider@ranch.test" {
		t.Errorf("NormEmail = %q, %v", e, ok)
	}
	for _, bad := range []string{"", "nope", "Jane <jane@ranch.test>"} {
		if _, ok := NormEmail(bad); ok {
			t.Errorf("NormEmail(%q) should fail", bad)
		}
	}
}

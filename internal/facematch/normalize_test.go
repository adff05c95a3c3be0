package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no diacritics", "soara", "soara"},
		{"acute accent", "Agné", "Agne"},
		{"mixed", "Nurul Huda Á", "Nurul Huda A"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RemoveDiacritics(tc.input); got != tc.want {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeStudentName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Soara", "soara"},
		{"dashes to spaces", "nurul-huda", "nurul huda"},
		{"collapse whitespace", "  dwi   lestari ", "dwi lestari"},
		{"diacritics and case", "Agné-Putri", "agne putri"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeStudentName(tc.input); got != tc.want {
				t.Errorf("NormalizeStudentName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

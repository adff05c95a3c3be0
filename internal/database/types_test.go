package database

import "testing"

func TestStatusValid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusSukses, true},
		{Status("success"), false},
		{Status(""), false},
	}

	for _, tc := range tests {
		if got := tc.status.Valid(); got != tc.want {
			t.Errorf("Status(%q).Valid() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestValidNIM(t *testing.T) {
	tests := []struct {
		nim  string
		want bool
	}{
		{"118130001", true},
		{"000000000", true},
		{"11813001", false},   // eight digits
		{"1181300011", false}, // ten digits
		{"11813000a", false},
		{"", false},
		{"118 30001", false},
	}

	for _, tc := range tests {
		if got := ValidNIM(tc.nim); got != tc.want {
			t.Errorf("ValidNIM(%q) = %v, want %v", tc.nim, got, tc.want)
		}
	}
}

func TestClassTable(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{"simple", "CS101", "attendance_cs101", false},
		{"underscore", "tif_2022", "attendance_tif_2022", false},
		{"empty", "", "", true},
		{"sql injection", "x; DROP TABLE", "", true},
		{"dash", "cs-101", "", true},
		{"too long", "abcdefghijklmnopqrstuvwxyz0123456789", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ClassTable(tc.code)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ClassTable(%q) did not fail", tc.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClassTable(%q) returned error: %v", tc.code, err)
			}
			if got != tc.want {
				t.Errorf("ClassTable(%q) = %q, want %q", tc.code, got, tc.want)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]float32{0.1, 0.2, 0.3})
	b := Fingerprint([]float32{0.1, 0.2, 0.3})
	c := Fingerprint([]float32{0.1, 0.2, 0.3000001})

	if a != b {
		t.Error("equal vectors produced different fingerprints")
	}
	if a == c {
		t.Error("different vectors produced the same fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
}

package phone

import "testing"

func TestNormalizeE164In(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{"national brazilian mobile", "(11) 91234-5678", "BR", "+5511912345678"},
		{"already international", "+55 11 91234-5678", "NL", "+5511912345678"},
		{"dutch national", "06 12345678", "NL", "+31612345678"},
		{"garbage is trimmed not dropped", "  not-a-phone ", "BR", "not-a-phone"},
		{"empty", "   ", "BR", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeE164In(tc.input, tc.region); got != tc.want {
				t.Fatalf("NormalizeE164In(%q, %q) = %q, want %q", tc.input, tc.region, got, tc.want)
			}
		})
	}
}

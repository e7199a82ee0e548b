package textutil

import "testing"

func TestPrintSanitizerStripsMarkup(t *testing.T) {
	sanitizer := NewPrintSanitizer()

	cases := map[string]string{
		"HAPPY 40TH":                      "HAPPY 40TH",
		"  JO 10  ":                       "JO 10",
		"<script>alert(1)</script>JO 10":  "JO 10",
		"<b>BRIDE</b> <i>SQUAD</i>":       "BRIDE SQUAD",
		`<img src=x onerror=alert(1)>RUN`: "RUN",
	}
	for input, want := range cases {
		if got := sanitizer.Sanitize(input); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", input, got, want)
		}
	}
}

package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "Sofer categoria C", "Sofer categoria C"},
		{"strips tags", "<p>Program <strong>flexibil</strong></p>", "Program flexibil"},
		{"drops script", "Salut<script>alert(1)</script>!", "Salut!"},
		{"keeps comparison characters", "Salariu > 3000 & bonus", "Salariu > 3000 & bonus"},
		{"keeps newlines", "Linia 1\nLinia 2", "Linia 1\nLinia 2"},
		{"removes control characters", "a\x07b\x1bc", "abc"},
		{"trims", "  text  ", "text"},
		{"keeps email text for detection", "<a href=\"mailto:x@y.ro\">x@y.ro</a>", "x@y.ro"},
		{"keeps angle bracket email", "Scrie la Ion <ion@firma.ro> pentru detalii", "Scrie la Ion ion@firma.ro pentru detalii"},
		{"keeps angle bracket url", "Detalii: <https://firma.ro/joburi>", "Detalii: https://firma.ro/joburi"},
		{"encoded script is removed", "&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"double encoded tag is removed", "a &amp;lt;b&amp;gt;bold&amp;lt;/b&amp;gt; z", "a bold z"},
		{"lone less-than stays text", "a < b", "a < b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	for _, in := range []string{
		"<b>Angajam</b> &amp; instruim",
		"Tel: 0712 345 678 <br> email: hr@firma.ro",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&lt;b&gt;Angajam&lt;/b&gt; &amp;lt;i&amp;gt;acum",
		"Contact <hr@firma.ro>",
	} {
		once := s.Sanitize(in)
		if twice := s.Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}

func TestTextSanitizer_OutputHasNoMarkup(t *testing.T) {
	s := NewTextSanitizer()
	for _, in := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&lt;img src=x onerror=alert(1)&gt;",
		"&amp;lt;iframe src=//evil&amp;gt;",
	} {
		out := s.Sanitize(in)
		if strings.Contains(out, "<") {
			t.Errorf("Sanitize(%q) = %q, should not contain markup", in, out)
		}
	}
}

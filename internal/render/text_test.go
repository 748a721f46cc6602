package render

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  We   encrypt\tat rest. ", want: "We encrypt at rest."},
		{name: "paragraphs", in: "<p>First</p><p>Second <b>bold</b></p>", want: "First\nSecond bold"},
		{name: "list", in: "<ul><li>SSO</li><li>MFA</li></ul>", want: "- SSO\n- MFA"},
		{name: "break", in: "line one<br>line two", want: "line one\nline two"},
		{name: "script dropped", in: "<p>ok</p><script>alert(1)</script>", want: "ok"},
		{name: "entities", in: "R&amp;D &lt;team&gt;", want: "R&D <team>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Text(tc.in); got != tc.want {
				t.Fatalf("Text(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

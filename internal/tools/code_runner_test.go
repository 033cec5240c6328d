package tools

import (
	"strings"
	"testing"
)

func TestIsStub(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"# Calculate the factorial of 20", true},
		{"  # placeholder\n", true},
		{"print(sum(range(10)))", false},
		{"# " + strings.Repeat("long explanatory comment ", 10), false},
	}
	for _, c := range cases {
		if got := isStub(c.code); got != c.want {
			t.Errorf("isStub(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestEnsurePrint(t *testing.T) {
	withPrint := "x = 2\nprint(x)"
	if got := ensurePrint(withPrint); got != withPrint {
		t.Errorf("code with print modified: %q", got)
	}

	got := ensurePrint("x = 2")
	if !strings.HasSuffix(got, "print(\"Done.\")") {
		t.Errorf("print not appended: %q", got)
	}
}

package directory

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Dr. Lina", "dr-lina"},
		{"Dr. Omar", "dr-omar"},
		{"  On Call  ", "on-call"},
		{"Dr.  A.  B.", "dr-a-b"},
		{"dr-lina", "dr-lina"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

package security

import "testing"

func TestEqual(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"", "", true},
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "abcd", false},
		{"", "a", false},
	}
	for _, tc := range cases {
		if got := EqualString(tc.a, tc.b); got != tc.want {
			t.Errorf("EqualString(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := Equal([]byte(tc.a), []byte(tc.b)); got != tc.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEqualNilAndEmpty(t *testing.T) {
	if !Equal(nil, []byte{}) {
		t.Fatal("nil and empty slices should compare equal")
	}
}

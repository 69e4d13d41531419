package textutil

import "testing"

func TestCollapseWhitespace(t *testing.T) {
	cases := map[string]string{
		"  Grand   Theft\nAuto ": "Grand Theft Auto",
		"plain":                  "plain",
		"":                       "",
	}
	for in, expected := range cases {
		got := CollapseWhitespace(in)
		if got != expected {
			t.Fatalf("%q: expected %q, got %q", in, expected, got)
		}
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Foo Bar", "foo") {
		t.Fatal("expected match")
	}
	if !ContainsFold("Foo Bar", "") {
		t.Fatal("empty query matches everything")
	}
	if ContainsFold("Foo Bar", "baz") {
		t.Fatal("unexpected match")
	}
}

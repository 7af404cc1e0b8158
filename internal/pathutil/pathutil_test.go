package pathutil

import (
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{".", ""},
		{"/", "/"},
		{"foo/", "foo"},
		{"foo/bar/", "foo/bar"},
		{"/foo/bar", "/foo/bar"},
		{"/foo/bar///", "/foo/bar"},
		{"foo", "foo"},
	}

	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.StringMatching(`[/a-z.]{0,20}`).Draw(t, "p")
		once := Normalize(p)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", p, once, twice)
		}
	})
}

func TestJoin(t *testing.T) {
	if got := Join("a", "b", "c"); got != "a/b/c" {
		t.Errorf("Join = %q, want a/b/c", got)
	}
	if got := Join("/w", "sub/"); got != "/w/sub" {
		t.Errorf("Join = %q, want /w/sub", got)
	}
}

func TestDirname(t *testing.T) {
	if got := Dirname("a/b/c"); got != "a/b" {
		t.Errorf("Dirname = %q, want a/b", got)
	}
	if got := Dirname("a"); got != "" {
		t.Errorf("Dirname(a) = %q, want \"\"", got)
	}
}

func TestRelative(t *testing.T) {
	rel, err := Relative("/w", "/w/sub/f.bin")
	if err != nil {
		t.Fatal(err)
	}
	if rel != "sub/f.bin" {
		t.Errorf("Relative = %q, want sub/f.bin", rel)
	}
}

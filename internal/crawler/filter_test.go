package crawler

import (
	"errors"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
)

func TestNewPathFilter(t *testing.T) {
	t.Parallel()

	t.Run("no patterns yields nil filter", func(t *testing.T) {
		t.Parallel()

		filter, err := NewPathFilter(nil, []string{" ", ""})
		if err != nil {
			t.Fatal(err)
		}
		if filter != nil {
			t.Error("expected nil filter")
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()

		_, err := NewPathFilter([]string{"/a/[b"}, nil)
		if !errors.Is(err, doublestar.ErrBadPattern) {
			t.Errorf("expected ErrBadPattern, got %v", err)
		}
	})

	tests := []struct {
		name    string
		ignore  []string
		follow  []string
		address string
		want    bool
	}{
		{name: "ignored prefix", ignore: []string{"/admin/**"}, address: "http://h.example/admin/users", want: false},
		{name: "not ignored", ignore: []string{"/admin/**"}, address: "http://h.example/about", want: true},
		{name: "base name pattern", ignore: []string{"*.pdf"}, address: "http://h.example/files/report.pdf", want: false},
		{name: "follow match", follow: []string{"/blog/**"}, address: "http://h.example/blog/2024/post", want: true},
		{name: "follow miss", follow: []string{"/blog/**"}, address: "http://h.example/shop", want: false},
		{name: "ignore wins over follow", ignore: []string{"/blog/drafts/**"}, follow: []string{"/blog/**"}, address: "http://h.example/blog/drafts/x", want: false},
		{name: "empty path is root", follow: []string{"/"}, address: "http://h.example", want: true},
		{name: "query is not part of path", ignore: []string{"/search"}, address: "http://h.example/search?q=x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			filter, err := NewPathFilter(tt.ignore, tt.follow)
			if err != nil {
				t.Fatal(err)
			}
			if got := filter(tt.address); got != tt.want {
				t.Errorf("filter(%q) = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

package textscan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"news-publisher/internal/domain"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain passthrough", in: "just text", want: "just text"},
		{name: "tags stripped", in: "<p>Hello <b>world</b></p>", want: "Hello world"},
		{name: "scripts removed", in: "<div>Body<script>alert(1)</script></div>", want: "Body"},
		{name: "entities decoded", in: "Fish &amp; chips", want: "Fish & chips"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCorpusAndFindKeywords(t *testing.T) {
	item := domain.ContentItem{
		Title:   "EARTHQUAKE hits coast",
		Summary: "Tsunami warning",
		Body:    "<p>Residents <em>evacuated</em></p>",
	}
	corpus := Corpus(item)
	got := FindKeywords(corpus, []string{"Earthquake", "tsunami", "flood", "earthquake", " ", "evacuated"})
	want := []string{"earthquake", "tsunami", "evacuated"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FindKeywords mismatch (-want +got):\n%s", diff)
	}
}

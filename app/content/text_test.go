package content

import (
	"sync"
	"testing"
)

func TestComputeReadingTime(t *testing.T) {
	tests := []struct {
		words    int
		expected int
	}{
		{0, 0},
		{1, 1},
		{200, 1},
		{201, 2},
		{1000, 5},
	}

	for _, tt := range tests {
		if got := ComputeReadingTime(tt.words); got != tt.expected {
			t.Errorf("ComputeReadingTime(%d): expected %d, got %d", tt.words, tt.expected, got)
		}
	}
}

func TestWordCountHTML(t *testing.T) {
	if got := WordCount("<p>one <b>two</b> three</p>", FormatHTML); got != 3 {
		t.Errorf("Expected 3 words, got %d", got)
	}
	if got := WordCount("one two\n\nthree four", FormatMarkdown); got != 4 {
		t.Errorf("Expected 4 words, got %d", got)
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		limit     int
		expected  string
		truncated bool
	}{
		{"fits", "hello", 10, "hello", false},
		{"unbounded", "hello world", 0, "hello world", false},
		{"cuts on boundary", "hello world foo", 8, "hello", true},
		{"keeps word before space", "hello world foo", 11, "hello world", true},
		{"single long word", "abcdefghij", 4, "abcd", true},
		{"multibyte", "héllo wörld", 7, "héllo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := TruncateWords(tt.input, tt.limit)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
			if truncated != tt.truncated {
				t.Errorf("Expected truncated=%v, got %v", tt.truncated, truncated)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hello, World!":         "hello-world",
		"Héllo Wörld":           "hello-world",
		"  many   spaces  ":     "many-spaces",
		"Go 1.24 release notes": "go-1-24-release-notes",
	}

	for input, expected := range tests {
		if got := Slugify(input); got != expected {
			t.Errorf("Slugify(%q): expected %q, got %q", input, expected, got)
		}
	}

	if got := SlugifyLimit("hello world again", 6); got != "hello" {
		t.Errorf("Expected limited slug 'hello', got %q", got)
	}
}

func TestSlugifyConcurrent(t *testing.T) {
	inputs := []struct{ in, want string }{
		{"Héllo Wörld", "hello-world"},
		{"Crème brûlée at the café", "creme-brulee-at-the-cafe"},
		{"Ünïcödé títlés ärë fïnë", "unicode-titles-are-fine"},
		{"Писать сервисы на Go, часть 2", "писать-сервисы-на-go-часть-2"},
	}

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				for _, tc := range inputs {
					if got := Slugify(tc.in); got != tc.want {
						select {
						case errs <- tc.in + " -> " + got:
						default:
						}
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Errorf("Unexpected concurrent slug: %s", e)
	}
}

func TestKeywordDensity(t *testing.T) {
	got := KeywordDensity("Go is fun. Writing Go is fun.", []string{"go"})
	if got < 0.28 || got > 0.29 {
		t.Errorf("Expected density around 0.285, got %f", got)
	}
	if KeywordDensity("", []string{"go"}) != 0 {
		t.Error("Expected zero density for empty text")
	}
}

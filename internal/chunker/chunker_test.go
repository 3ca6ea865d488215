package chunker

import (
	"strings"
	"testing"
)

func TestSplitter_FlushPerParagraph(t *testing.T) {
	s := NewSplitter(3)
	chunks := s.Split("A.\n\nB.\n\nC.")
	want := []string{"A.", "B.", "C."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitter_GreedyAccumulation(t *testing.T) {
	s := NewSplitter(20)
	chunks := s.Split("aaaa\n\nbbbb\n\ncccccccccccccccc")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "aaaa\n\nbbbb" {
		t.Errorf("first chunk = %q", chunks[0])
	}
	if chunks[1] != "cccccccccccccccc" {
		t.Errorf("second chunk = %q", chunks[1])
	}
}

func TestSplitter_OversizedParagraphKeptWhole(t *testing.T) {
	s := NewSplitter(5)
	long := strings.Repeat("x", 40)
	chunks := s.Split("ab\n\n" + long + "\n\ncd")
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1] != long {
		t.Errorf("oversized paragraph should be its own chunk")
	}
}

func TestSplitter_DropsEmptyParagraphs(t *testing.T) {
	s := NewSplitter(100)
	chunks := s.Split("first\n\n   \n\n\t\n\nsecond")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "first\n\nsecond" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestSplitter_EmptyInput(t *testing.T) {
	s := NewSplitter(10)
	if chunks := s.Split("  \n\n \n \n"); chunks != nil {
		t.Errorf("blank input should return nil, got %v", chunks)
	}
}

// Concatenating chunks with blank-line separators must reproduce the
// non-empty-paragraph content of the document, and every multi-paragraph
// chunk must respect the size limit.
func TestSplitter_ReassemblyAndBounds(t *testing.T) {
	doc := "one two\n\nthree\n\n\n\nfour five six\n\nseven\n\neight nine ten eleven"
	const max = 16
	s := NewSplitter(max)
	chunks := s.Split(doc)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, ch := range chunks {
		if len(ch) > max && strings.Contains(ch, "\n\n") {
			t.Errorf("chunk %d exceeds max (%d > %d) and is not a single paragraph", i, len(ch), max)
		}
	}
	joined := strings.Join(chunks, "\n\n")
	want := "one two\n\nthree\n\nfour five six\n\nseven\n\neight nine ten eleven"
	if joined != want {
		t.Errorf("reassembled = %q, want %q", joined, want)
	}
}

package chunk

import (
	"strings"
	"testing"
)

func TestSplitReconstructsInputExactly(t *testing.T) {
	inputs := []string{
		"Hello, world! How are you today? I'm fine.",
		"One, two, three.",
		"No punctuation here",
		"Semicolons; work too: right.",
	}
	for _, in := range inputs {
		chunks := Split(in)
		var got strings.Builder
		for _, c := range chunks {
			got.WriteString(c.Text)
		}
		if got.String() != in {
			t.Errorf("Split(%q) chunks reassemble to %q, want %q", in, got.String(), in)
		}
	}
}

func TestAbbreviationWhitelistSuppressesBoundary(t *testing.T) {
	chunks := Split("Dr. Smith said hi.")
	var sentenceBoundaries int
	for _, c := range chunks {
		if c.Boundary == BoundarySentence {
			sentenceBoundaries++
		}
	}
	if sentenceBoundaries != 1 {
		t.Errorf("got %d sentence boundaries, want exactly 1 (after 'hi.')", sentenceBoundaries)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1, chunks=%+v", len(chunks), chunks)
	}
	if chunks[0].Text != "Dr. Smith said hi." {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, "Dr. Smith said hi.")
	}
}

func TestFiveCharAbbreviationsSuppressBoundary(t *testing.T) {
	for _, in := range []string{"See Prof. Jones now.", "Acme Corp. filed today."} {
		chunks := Split(in)
		var sentenceBoundaries int
		for _, c := range chunks {
			if c.Boundary == BoundarySentence {
				sentenceBoundaries++
			}
		}
		if sentenceBoundaries != 1 {
			t.Errorf("Split(%q): got %d sentence boundaries, want exactly 1", in, sentenceBoundaries)
		}
	}
}

func TestNumericCommaSuppressed(t *testing.T) {
	chunks := Split("The price is 1,000 dollars.")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (comma inside a number is not a boundary), chunks=%+v", len(chunks), chunks)
	}
}

func TestNonNumericCommaIsBoundary(t *testing.T) {
	chunks := Split("First, second.")
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Boundary != BoundaryComma {
		t.Errorf("first chunk boundary = %v, want BoundaryComma", chunks[0].Boundary)
	}
}

func TestEmptyInputYieldsNoChunks(t *testing.T) {
	if chunks := Split("   "); len(chunks) != 0 {
		t.Errorf("Split(whitespace) = %d chunks, want 0", len(chunks))
	}
	if chunks := Split(""); len(chunks) != 0 {
		t.Errorf("Split(\"\") = %d chunks, want 0", len(chunks))
	}
}

func TestBoundaryPauseMs(t *testing.T) {
	cases := map[Boundary]int{
		BoundarySentence:    400,
		BoundaryClauseMajor: 250,
		BoundaryComma:       150,
		BoundaryNone:        100,
	}
	for b, want := range cases {
		if got := b.PauseMs(); got != want {
			t.Errorf("Boundary(%d).PauseMs() = %d, want %d", b, got, want)
		}
	}
}

func TestSemicolonAndColonAreClauseMajor(t *testing.T) {
	chunks := Split("Wait; think: decide.")
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3, chunks=%+v", len(chunks), chunks)
	}
	if chunks[0].Boundary != BoundaryClauseMajor || chunks[1].Boundary != BoundaryClauseMajor {
		t.Errorf("expected first two chunks to be BoundaryClauseMajor, got %v and %v", chunks[0].Boundary, chunks[1].Boundary)
	}
}

package docs

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleCandidate() Candidate {
	return Candidate{
		JobName:          "weekly",
		LaunchID:         "20170220090024",
		WaybackTimestamp: "20160127211938",
		LandingPageURL:   "http://www.example.com/page",
		DocumentURL:      "http://www.example.com/reports/a b.pdf",
		Filename:         "a b.pdf",
		Size:             324,
		Source:           "tid:42:http://www.example.com/",
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	t.Parallel()

	c := sampleCandidate()
	line, err := EncodeCandidate(c)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, c.DocumentURL+"\t"))
	require.NotContains(t, line, "\n")

	got, err := DecodeCandidate(line)
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestDecodeCandidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{name: "no tab", line: "http://example.com/a.pdf {}"},
		{name: "bad json", line: "http://example.com/a.pdf\t{not json"},
		{name: "key mismatch", line: "http://example.com/b.pdf\t{\"document_url\":\"http://example.com/a.pdf\"}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeCandidate(tc.line)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestCandidateWriterAndReader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewCandidateWriter(&buf)
	first := sampleCandidate()
	second := sampleCandidate()
	second.DocumentURL = "http://www.example.com/b.pdf"
	second.Filename = "b.pdf"
	require.NoError(t, w.Write(first))
	require.NoError(t, w.Write(second))
	require.NoError(t, w.Flush())
	require.Equal(t, 2, w.Count())

	// Blank lines are tolerated.
	buf.WriteString("\n")

	var got []Candidate
	err := ReadCandidates(&buf, func(c Candidate) bool {
		got = append(got, c)
		return true
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []Candidate{first, second}, got)
}

func TestReadCandidatesStopsEarly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewCandidateWriter(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(sampleCandidate()))
	}
	require.NoError(t, w.Flush())

	seen := 0
	err := ReadCandidates(&buf, func(Candidate) bool {
		seen++
		return false
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, seen)
}

func TestReadCandidatesReportsLine(t *testing.T) {
	t.Parallel()

	err := ReadCandidates(strings.NewReader("\ngarbage\n"), func(Candidate) bool { return true }, nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 2, perr.Line)
	require.Equal(t, "candidates", perr.Shard)
}

func TestReadCandidatesSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	good, err := EncodeCandidate(sampleCandidate())
	require.NoError(t, err)
	input := "garbage-without-tab\n" + good + "\nhttp://example.com/x.pdf\t{broken\n"

	var (
		got     []Candidate
		skipped []int
	)
	err = ReadCandidates(strings.NewReader(input), func(c Candidate) bool {
		got = append(got, c)
		return true
	}, func(perr *ParseError) {
		skipped = append(skipped, perr.Line)
	})
	require.NoError(t, err)
	require.Equal(t, []Candidate{sampleCandidate()}, got)
	require.Equal(t, []int{1, 3}, skipped)
}

package docs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxCandidateLine bounds a single line of the intermediate format.
const maxCandidateLine = 1 << 20

// candidateSource names the candidates stream in parse errors.
const candidateSource = "candidates"

// EncodeCandidate renders c as one line of the intermediate format:
// document_url, a tab, then the JSON candidate. No trailing newline.
func EncodeCandidate(c Candidate) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal candidate: %w", err)
	}
	return c.DocumentURL + "\t" + string(payload), nil
}

// DecodeCandidate parses one line produced by EncodeCandidate. Malformed
// lines yield a *ParseError; its Line is left for the caller to set.
func DecodeCandidate(line string) (Candidate, error) {
	line = strings.TrimRight(line, "\r\n")
	key, payload, ok := strings.Cut(line, "\t")
	if !ok {
		return Candidate{}, &ParseError{Shard: candidateSource, Reason: "no tab separator"}
	}
	var c Candidate
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Candidate{}, &ParseError{Shard: candidateSource, Reason: "unmarshal candidate: " + err.Error()}
	}
	if c.DocumentURL != key {
		return Candidate{}, &ParseError{
			Shard:  candidateSource,
			Reason: fmt.Sprintf("key %q does not match document_url %q", key, c.DocumentURL),
		}
	}
	return c, nil
}

// CandidateWriter appends candidates to a stream in the intermediate format.
type CandidateWriter struct {
	w *bufio.Writer
	n int
}

// NewCandidateWriter wraps w. Call Flush when done.
func NewCandidateWriter(w io.Writer) *CandidateWriter {
	return &CandidateWriter{w: bufio.NewWriter(w)}
}

// Write encodes c and appends it as a single line.
func (cw *CandidateWriter) Write(c Candidate) error {
	line, err := EncodeCandidate(c)
	if err != nil {
		return err
	}
	if _, err := cw.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write candidate: %w", err)
	}
	cw.n++
	return nil
}

// Count returns the number of candidates written so far.
func (cw *CandidateWriter) Count() int {
	return cw.n
}

// Flush writes any buffered data to the underlying writer.
func (cw *CandidateWriter) Flush() error {
	if err := cw.w.Flush(); err != nil {
		return fmt.Errorf("flush candidates: %w", err)
	}
	return nil
}

// ReadCandidates decodes every non-empty line of r and hands it to yield.
// Reading stops when yield returns false. A malformed line is passed to skip
// and reading continues; with a nil skip it aborts the read instead.
func ReadCandidates(r io.Reader, yield func(Candidate) bool, skip func(*ParseError)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCandidateLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := DecodeCandidate(line)
		if err != nil {
			var perr *ParseError
			if !errors.As(err, &perr) {
				return err
			}
			perr.Line = lineNo
			if skip == nil {
				return perr
			}
			skip(perr)
			continue
		}
		if !yield(c) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read candidates: %w", err)
	}
	return nil
}

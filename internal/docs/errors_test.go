package docs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	parseErr := &ParseError{Shard: "crawl.log", Line: 7, Reason: "expected 12 fields, got 3"}
	require.Equal(t, "parse crawl.log line 7: expected 12 fields, got 3", parseErr.Error())

	pubErr := &PublishError{DocumentURL: "http://a/b.pdf", StatusCode: 500, Reason: "Internal Server Error"}
	require.Contains(t, pubErr.Error(), "catalog returned 500")
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: timeout")
	pollErr := &PollError{URL: "http://a/b.pdf", Timestamp: "20200101000000", Err: cause}
	require.ErrorIs(t, pollErr, cause)

	submit := &SubmitError{StatusCode: 502, Reason: "Bad Gateway"}
	pubErr := &PublishError{DocumentURL: "http://a/b.pdf", Err: submit}
	var target *SubmitError
	require.True(t, errors.As(fmt.Errorf("worker: %w", pubErr), &target))
	require.Equal(t, 502, target.StatusCode)
}

func TestPublishKeyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com/abc", PublishKey{Host: "example.com", Hash: "abc"}.String())
}

func TestTargetIDFromSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		want   int64
		ok     bool
	}{
		{source: "tid:42:http://example.com/", want: 42, ok: true},
		{source: "tid:42", want: 42, ok: true},
		{source: "WTID:12321444", want: 12321444, ok: true},
		{source: "77", want: 77, ok: true},
		{source: "-", ok: false},
		{source: "", ok: false},
		{source: "seed:42", ok: false},
		{source: "tid:abc", ok: false},
		{source: "0", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.source, func(t *testing.T) {
			t.Parallel()
			got, ok := TargetIDFromSource(tc.source)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

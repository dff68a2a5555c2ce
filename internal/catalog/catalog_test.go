package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docwatch/internal/docs"
)

const feedJSON = `[
	{"id": 1, "title": "GOV.UK", "watched": true, "seeds": ["https://www.gov.uk/"]},
	{"id": 2, "title": "Blog", "watched": false, "seeds": []}
]`

func TestHTTPFeedLoad(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "act" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedJSON))
	}))
	defer srv.Close()

	targets, err := NewHTTPFeed(srv.URL, Credentials{User: "act", Password: "secret"}, nil, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, docs.Target{ID: 1, Title: "GOV.UK", Watched: true, Seeds: []string{"https://www.gov.uk/"}}, targets[0])
	require.False(t, targets[1].Watched)

	_, err = NewHTTPFeed(srv.URL, Credentials{}, nil, nil).Load(context.Background())
	require.ErrorContains(t, err, "401")
}

func TestHTTPFeedBadBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := NewHTTPFeed(srv.URL, Credentials{}, nil, nil).Load(context.Background())
	require.ErrorContains(t, err, "decode feed")
}

func TestFileFeedLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(feedJSON), 0o600))

	targets, err := NewFileFeed(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	_, err = NewFileFeed(filepath.Join(t.TempDir(), "missing.json")).Load(context.Background())
	require.Error(t, err)
}

func testDocument() docs.Document {
	return docs.Document{
		Candidate: docs.Candidate{
			JobName:     "weekly",
			DocumentURL: "https://www.gov.uk/a.pdf",
			Filename:    "a.pdf",
		},
		Status:          docs.StatusAccepted,
		WatchedTargetID: 1,
		Title:           "a",
	}
}

func TestSubmitterPostsDocument(t *testing.T) {
	t.Parallel()

	var got docs.Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "act", user)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSubmitter(srv.URL+"/documents", Credentials{User: "act", Password: "pw"}, nil, nil)
	require.NoError(t, s.Submit(context.Background(), testDocument()))
	require.Equal(t, testDocument(), got)
}

func TestSubmitterNonOKIsSubmitError(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("target not found"))
		}))

		err := NewSubmitter(srv.URL, Credentials{}, nil, nil).Submit(context.Background(), testDocument())
		srv.Close()

		var submitErr *docs.SubmitError
		require.True(t, errors.As(err, &submitErr), "code %d", code)
		require.Equal(t, code, submitErr.StatusCode)
		require.Equal(t, http.StatusText(code), submitErr.Reason)
		require.Equal(t, "target not found", submitErr.Body)
	}
}

func TestSubmitterTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewSubmitter(url, Credentials{}, nil, nil).Submit(context.Background(), testDocument())
	require.Error(t, err)
	var submitErr *docs.SubmitError
	require.False(t, errors.As(err, &submitErr))
}

func TestSubmitterHonorsContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSubmitter(srv.URL, Credentials{}, nil, nil).Submit(ctx, testDocument())
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 0, calls.Load())
}

func TestDisabledCatalog(t *testing.T) {
	t.Parallel()

	err := Disabled{}.Submit(context.Background(), testDocument())
	require.ErrorIs(t, err, ErrNotConfigured)
}

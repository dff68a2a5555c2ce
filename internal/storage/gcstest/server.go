// Package gcstest runs an in-process fake of the parts of the Cloud Storage
// API the stores use: XML object reads, multipart uploads with a
// does-not-exist precondition, and delimited listings.
package gcstest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// Server is a fake single-bucket GCS endpoint.
type Server struct {
	Bucket string

	mu      sync.Mutex
	objects map[string][]byte
	uploads int
	srv     *httptest.Server
}

// NewServer starts a fake for bucket; it is closed with the test.
func NewServer(t *testing.T, bucket string) *Server {
	t.Helper()
	s := &Server{Bucket: bucket, objects: make(map[string][]byte)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns a storage client pointed at the fake.
func (s *Server) Client(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(s.srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Put stores an object directly.
func (s *Server) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), data...)
}

// Object returns a stored object.
func (s *Server) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return data, ok
}

// Uploads counts accepted uploads.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/"+s.Bucket+"/o":
		s.upload(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/"+s.Bucket+"/o":
		s.list(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/"+s.Bucket+"/"):
		s.read(w, strings.TrimPrefix(r.URL.Path, "/"+s.Bucket+"/"))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) read(w http.ResponseWriter, name string) {
	data, ok := s.Object(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(mediaPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := meta.Name
	if name == "" {
		name = r.URL.Query().Get("name")
	}

	s.mu.Lock()
	_, exists := s.objects[name]
	if exists && r.URL.Query().Get("ifGenerationMatch") == "0" {
		s.mu.Unlock()
		writeError(w, http.StatusPreconditionFailed, "conditionNotMet")
		return
	}
	s.objects[name] = data
	s.uploads++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"kind":       "storage#object",
		"bucket":     s.Bucket,
		"name":       name,
		"generation": "1",
		"size":       fmt.Sprint(len(data)),
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	delim := r.URL.Query().Get("delimiter")

	s.mu.Lock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	items := []map[string]any{}
	prefixes := []string{}
	seen := map[string]bool{}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				p := prefix + rest[:i+len(delim)]
				if !seen[p] {
					seen[p] = true
					prefixes = append(prefixes, p)
				}
				continue
			}
		}
		items = append(items, map[string]any{"kind": "storage#object", "bucket": s.Bucket, "name": name})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"kind":     "storage#objects",
		"items":    items,
		"prefixes": prefixes,
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

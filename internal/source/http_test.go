package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

func TestHTTPSourceFetch(t *testing.T) {
	var gotAuth, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(`{"data": {"models": [{"id": "m1", "publicName": "Model One"}]}}`))
	}))
	defer srv.Close()

	s := NewHTTP("arena", time.Minute, srv.URL,
		map[string]string{"Authorization": "Bearer tok"},
		map[string]string{"session": "abc"},
		catalog.Extractor{ModelsPath: []string{"data", "models"}},
		logx.Nop(),
	)

	models, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(models) != 1 || models[0].ID != "m1" || models[0].Name != "Model One" {
		t.Fatalf("models = %+v", models)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotCookie != "abc" {
		t.Fatalf("cookie = %q", gotCookie)
	}
}

func TestHTTPSourceNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewHTTP("arena", time.Minute, srv.URL, nil, nil, catalog.Extractor{}, logx.Nop())
	_, err := s.Fetch(context.Background())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Source != "arena" {
		t.Fatalf("source = %q", fe.Source)
	}
}

func TestHTTPSourceMalformedDocumentIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": "not an array"}`))
	}))
	defer srv.Close()

	s := NewHTTP("arena", time.Minute, srv.URL, nil, nil,
		catalog.Extractor{ModelsPath: []string{"data"}}, logx.Nop())
	_, err := s.Fetch(context.Background())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	var xe *catalog.ExtractionError
	if !errors.As(err, &xe) {
		t.Fatalf("expected wrapped ExtractionError, got %v", err)
	}
}

func TestOpenAISourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data": [{"id": "gpt-x"}, {"id": ""}, {"id": "gpt-y"}]}`))
	}))
	defer srv.Close()

	s := NewOpenAI("openai", time.Minute, "sk-test", srv.URL, logx.Nop())
	models, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(models) != 2 || models[0].ID != "gpt-x" || models[1].ID != "gpt-y" {
		t.Fatalf("models = %+v", models)
	}
	if models[0].Name != "gpt-x" {
		t.Fatalf("name should mirror id, got %q", models[0].Name)
	}
}

func TestGoogleSourceFetchPaginated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "g-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"models": [{"name": "models/gemini-a", "displayName": "Gemini A"}], "nextPageToken": "page2"}`))
			return
		}
		w.Write([]byte(`{"models": [{"name": "models/gemini-b"}]}`))
	}))
	defer srv.Close()

	s := NewGoogle("google", time.Minute, "g-key", srv.URL, logx.Nop())
	models, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %+v", models)
	}
	if models[0].ID != "models/gemini-a" || models[0].Name != "Gemini A" {
		t.Fatalf("models[0] = %+v", models[0])
	}
	// Missing displayName falls back to the resource name.
	if models[1].Name != "models/gemini-b" {
		t.Fatalf("models[1] = %+v", models[1])
	}
}

package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

// GoogleSource lists models via the Generative Language REST API, following
// page tokens. The resource name (e.g. "models/gemini-pro") is the canonical
// id; displayName is the human-readable one.
type GoogleSource struct {
	name     string
	interval time.Duration
	apiKey   string
	baseURL  string
	client   *http.Client
	log      logx.Logger
}

func NewGoogle(name string, interval time.Duration, apiKey, baseURL string, log logx.Logger) *GoogleSource {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &GoogleSource{
		name:     name,
		interval: interval,
		apiKey:   apiKey,
		baseURL:  baseURL,
		client:   newClient(),
		log:      log,
	}
}

func (s *GoogleSource) Name() string            { return s.name }
func (s *GoogleSource) Interval() time.Duration { return s.interval }

func (s *GoogleSource) Fetch(ctx context.Context) ([]catalog.Model, error) {
	var models []catalog.Model
	pageToken := ""

	// Page cap guards against a server that keeps returning tokens.
	for page := 0; page < 20; page++ {
		q := url.Values{"pageSize": {"200"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1beta/models?"+q.Encode(), nil)
		if err != nil {
			return nil, fetchErr(s.name, err)
		}
		req.Header.Set("x-goog-api-key", s.apiKey)

		body, err := getBody(ctx, s.client, req, s.name)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Models []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
			} `json:"models"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fetchErr(s.name, err)
		}

		for _, rec := range payload.Models {
			if rec.Name == "" {
				s.log.Debug("skipping model record without name", logx.String("source", s.name))
				continue
			}
			display := rec.DisplayName
			if display == "" {
				display = rec.Name
			}
			models = append(models, catalog.Model{ID: rec.Name, Name: display})
		}

		pageToken = payload.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return models, nil
}

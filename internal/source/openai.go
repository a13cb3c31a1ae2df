package source

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAISource lists models via the OpenAI REST API. Records expose no
// separate display name, so the id doubles as one.
type OpenAISource struct {
	name     string
	interval time.Duration
	apiKey   string
	baseURL  string
	client   *http.Client
	log      logx.Logger
}

func NewOpenAI(name string, interval time.Duration, apiKey, baseURL string, log logx.Logger) *OpenAISource {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAISource{
		name:     name,
		interval: interval,
		apiKey:   apiKey,
		baseURL:  baseURL,
		client:   newClient(),
		log:      log,
	}
}

func (s *OpenAISource) Name() string            { return s.name }
func (s *OpenAISource) Interval() time.Duration { return s.interval }

func (s *OpenAISource) Fetch(ctx context.Context) ([]catalog.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fetchErr(s.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	body, err := getBody(ctx, s.client, req, s.name)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fetchErr(s.name, err)
	}

	models := make([]catalog.Model, 0, len(payload.Data))
	for _, rec := range payload.Data {
		if rec.ID == "" {
			s.log.Debug("skipping model record without id", logx.String("source", s.name))
			continue
		}
		models = append(models, catalog.Model{ID: rec.ID, Name: rec.ID})
	}
	return models, nil
}

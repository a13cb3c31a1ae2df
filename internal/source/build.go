package source

import (
	"fmt"
	"strings"

	"modelwatch/internal/catalog"
	"modelwatch/internal/config"
	logx "modelwatch/pkg/logx"
)

// Build constructs the poller for one configured source. Assumes the config
// already passed validation; unknown shapes still fail defensively.
func Build(src config.SourceConfig, watch config.WatchConfig, log logx.Logger) (Source, error) {
	name := strings.TrimSpace(src.Name)
	interval := watch.Interval(src)
	slog := log.With(logx.String("source", name))

	if strings.TrimSpace(src.URL) != "" {
		extractor := catalog.Extractor{
			ModelsPath: src.ModelsPath,
			IDPath:     src.IDPath,
			Log:        slog,
		}
		return NewHTTP(name, interval, src.URL, src.Headers, src.Cookies, extractor, slog), nil
	}

	switch strings.ToLower(strings.TrimSpace(src.Provider)) {
	case "openai":
		return NewOpenAI(name, interval, src.APIKey, src.BaseURL, slog), nil
	case "google":
		return NewGoogle(name, interval, src.APIKey, src.BaseURL, slog), nil
	case "designarena":
		return NewDesignArena(name, interval, src.BaseURL, slog), nil
	default:
		return nil, fmt.Errorf("source %q: no fetch strategy configured", name)
	}
}

// BuildAll constructs pollers for every configured source.
func BuildAll(watch config.WatchConfig, log logx.Logger) ([]Source, error) {
	out := make([]Source, 0, len(watch.Sources))
	for _, src := range watch.Sources {
		s, err := Build(src, watch, log)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

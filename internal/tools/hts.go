package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTSName is the tariff classification tool identifier.
const HTSName = "hts"

// htsTTL is long: the Harmonized Tariff Schedule changes on a slow cadence.
const htsTTL = 24 * time.Hour

// DefaultHTSBaseURL is the USITC HTS public search endpoint.
const DefaultHTSBaseURL = "https://hts.usitc.gov/reststop"

// htsResult mirrors one entry of the USITC search response.
type htsResult struct {
	HTSNo       string `json:"htsno"`
	Description string `json:"description"`
	General     string `json:"general"`
	Special     string `json:"special"`
	Other       string `json:"other"`
	Footnotes   []struct {
		Value string `json:"value"`
	} `json:"footnotes"`
}

// NewHTS builds the tariff classification adapter over the USITC HTS search
// API. baseURL empty means DefaultHTSBaseURL.
func NewHTS(client *http.Client, baseURL string, cache Cache, logger *slog.Logger) (*Adapter, error) {
	if baseURL == "" {
		baseURL = DefaultHTSBaseURL
	}

	fetch := func(ctx context.Context, p Params) (map[string]any, error) {
		endpoint := fmt.Sprintf("%s/search?keyword=%s", baseURL, url.QueryEscape(p.ProductID))

		var results []htsResult
		if err := getJSON(ctx, client, endpoint, nil, &results); err != nil {
			return nil, err
		}
		return normalizeHTS(p, results), nil
	}

	return NewAdapter(Config{
		Name:      HTSName,
		Tile:      "tariff",
		TTL:       htsTTL,
		RateLimit: rate.Limit(2),
		Fetch:     fetch,
		Fallback:  htsFallback,
		Key:       func(p Params) string { return p.ProductID },
	}, cache, logger)
}

// normalizeHTS maps USITC rows into the tile data shape.
func normalizeHTS(p Params, results []htsResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{
			"risk_level":   "medium",
			"status":       "attention",
			"headline":     fmt.Sprintf("no HTS classification found for %s", p.ProductID),
			"requirements": []string{"obtain binding tariff classification before entry"},
			"match_count":  0,
		}
	}

	top := results[0]
	classifications := make([]map[string]any, 0, len(results))
	for _, r := range results {
		classifications = append(classifications, map[string]any{
			"htsno":       r.HTSNo,
			"description": r.Description,
			"general":     r.General,
			"special":     r.Special,
		})
	}

	var reqs []string
	for _, fn := range top.Footnotes {
		if fn.Value != "" {
			reqs = append(reqs, fn.Value)
		}
	}

	return map[string]any{
		"risk_level":      "low",
		"status":          "clear",
		"headline":        fmt.Sprintf("classified under HTS %s, general rate %s", top.HTSNo, top.General),
		"requirements":    reqs,
		"match_count":     len(results),
		"classifications": classifications,
	}
}

// htsFallback is the deterministic substitute when the HTS API is unavailable.
func htsFallback(p Params) map[string]any {
	return map[string]any{
		"risk_level":  "low",
		"status":      "error",
		"headline":    fmt.Sprintf("tariff classification unavailable for %s", p.ProductID),
		"match_count": 0,
	}
}

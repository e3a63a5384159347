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

// RulingsName is the customs rulings tool identifier.
const RulingsName = "rulings"

// rulingsTTL is the longest in the system; published rulings are immutable
// and new ones arrive on a weekly cadence at most.
const rulingsTTL = 7 * 24 * time.Hour

// DefaultRulingsBaseURL is the CBP CROSS rulings search endpoint.
const DefaultRulingsBaseURL = "https://rulings.cbp.gov/api"

// crossResponse mirrors the CROSS search response.
type crossResponse struct {
	Rulings []struct {
		RulingNumber string `json:"rulingNumber"`
		Subject      string `json:"subject"`
		CategoryName string `json:"categoryName"`
		RulingDate   string `json:"rulingDate"`
	} `json:"rulings"`
}

// NewRulings builds the customs rulings adapter over the CBP CROSS search
// API. baseURL empty means DefaultRulingsBaseURL.
func NewRulings(client *http.Client, baseURL string, cache Cache, logger *slog.Logger) (*Adapter, error) {
	if baseURL == "" {
		baseURL = DefaultRulingsBaseURL
	}

	fetch := func(ctx context.Context, p Params) (map[string]any, error) {
		q := url.Values{}
		q.Set("term", p.ProductID)
		q.Set("collection", "ALL")
		q.Set("pageSize", "10")
		endpoint := fmt.Sprintf("%s/search?%s", baseURL, q.Encode())

		var resp crossResponse
		if err := getJSON(ctx, client, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		return normalizeRulings(p, resp), nil
	}

	return NewAdapter(Config{
		Name:      RulingsName,
		Tile:      "rulings",
		TTL:       rulingsTTL,
		RateLimit: rate.Limit(2),
		Fetch:     fetch,
		Fallback:  rulingsFallback,
		Key:       func(p Params) string { return p.ProductID },
	}, cache, logger)
}

// normalizeRulings maps CROSS rows into the tile data shape. Rulings are
// informational: risk stays low, but matches flip status to attention so
// the advisor surfaces precedent the client should read.
func normalizeRulings(p Params, resp crossResponse) map[string]any {
	if len(resp.Rulings) == 0 {
		return map[string]any{
			"risk_level":   "low",
			"status":       "clear",
			"headline":     fmt.Sprintf("no customs rulings on record for %s", p.ProductID),
			"ruling_count": 0,
		}
	}

	rulings := make([]map[string]any, 0, len(resp.Rulings))
	for _, r := range resp.Rulings {
		rulings = append(rulings, map[string]any{
			"number":   r.RulingNumber,
			"subject":  r.Subject,
			"category": r.CategoryName,
			"date":     r.RulingDate,
		})
	}

	return map[string]any{
		"risk_level":   "low",
		"status":       "attention",
		"headline":     fmt.Sprintf("%d customs ruling(s) may apply to %s, most recent %s", len(resp.Rulings), p.ProductID, resp.Rulings[0].RulingNumber),
		"ruling_count": len(resp.Rulings),
		"rulings":      rulings,
	}
}

func rulingsFallback(p Params) map[string]any {
	return map[string]any{
		"risk_level":   "low",
		"status":       "error",
		"headline":     fmt.Sprintf("customs rulings lookup unavailable for %s", p.ProductID),
		"ruling_count": 0,
	}
}

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SanctionsName is the sanctions screening tool identifier.
const SanctionsName = "sanctions"

// sanctionsTTL is short: screening lists change without notice and a stale
// clear result is the most dangerous kind of stale data in this system.
const sanctionsTTL = time.Hour

// DefaultCSLBaseURL is the Trade.gov Consolidated Screening List endpoint.
const DefaultCSLBaseURL = "https://data.trade.gov/consolidated_screening_list/v1"

// cslResponse mirrors the CSL search response.
type cslResponse struct {
	Total   int `json:"total"`
	Results []struct {
		Name      string   `json:"name"`
		Source    string   `json:"source"`
		Programs  []string `json:"programs"`
		Countries []string `json:"countries"`
		Remarks   string   `json:"remarks"`
	} `json:"results"`
}

// NewSanctions builds the sanctions screening adapter over the Trade.gov
// Consolidated Screening List API. apiKey is the subscription key sent on
// every request; baseURL empty means DefaultCSLBaseURL.
func NewSanctions(client *http.Client, baseURL, apiKey string, cache Cache, logger *slog.Logger) (*Adapter, error) {
	if baseURL == "" {
		baseURL = DefaultCSLBaseURL
	}

	fetch := func(ctx context.Context, p Params) (map[string]any, error) {
		q := url.Values{}
		q.Set("name", screeningSubject(p))
		q.Set("fuzzy_name", "true")
		endpoint := fmt.Sprintf("%s/search?%s", baseURL, q.Encode())

		headers := map[string]string{}
		if apiKey != "" {
			headers["subscription-key"] = apiKey
		}

		var resp cslResponse
		if err := getJSON(ctx, client, endpoint, headers, &resp); err != nil {
			return nil, err
		}
		return normalizeSanctions(p, resp), nil
	}

	return NewAdapter(Config{
		Name:      SanctionsName,
		Tile:      "sanctions",
		TTL:       sanctionsTTL,
		RateLimit: rate.Limit(5),
		Fetch:     fetch,
		Fallback:  sanctionsFallback,
		Key: func(p Params) string {
			return p.ProductID + "|" + p.RouteID
		},
	}, cache, logger)
}

// screeningSubject derives the party name screened against the list. Route
// identifiers encode origin/destination counterparties as the segment after
// the last colon (e.g. "us-cn:shenzhen-global-trading").
func screeningSubject(p Params) string {
	if i := strings.LastIndex(p.RouteID, ":"); i >= 0 && i < len(p.RouteID)-1 {
		return p.RouteID[i+1:]
	}
	return p.RouteID
}

// normalizeSanctions maps a CSL response into the tile data shape. Any match
// at all is high risk: shipping to a listed party is a strict-liability
// violation regardless of match quality.
func normalizeSanctions(p Params, resp cslResponse) map[string]any {
	if resp.Total == 0 {
		return map[string]any{
			"risk_level":  "low",
			"status":      "clear",
			"headline":    fmt.Sprintf("no screening list matches for route %s", p.RouteID),
			"match_count": 0,
		}
	}

	matches := make([]map[string]any, 0, len(resp.Results))
	var programs []string
	for _, r := range resp.Results {
		matches = append(matches, map[string]any{
			"name":     r.Name,
			"source":   r.Source,
			"programs": r.Programs,
		})
		programs = append(programs, r.Programs...)
	}

	reqs := []string{"verify counterparty identity against listed entity"}
	if len(programs) > 0 {
		reqs = append(reqs, fmt.Sprintf("review license requirements under %s", strings.Join(dedupStrings(programs), ", ")))
	}

	return map[string]any{
		"risk_level":   "high",
		"status":       "action",
		"headline":     fmt.Sprintf("%d screening list match(es) on route %s", resp.Total, p.RouteID),
		"requirements": reqs,
		"match_count":  resp.Total,
		"matches":      matches,
	}
}

// sanctionsFallback errs conservative: an unscreened shipment is treated as
// medium risk until the list is reachable again.
func sanctionsFallback(p Params) map[string]any {
	return map[string]any{
		"risk_level":  "medium",
		"status":      "error",
		"headline":    fmt.Sprintf("sanctions screening unavailable for route %s", p.RouteID),
		"match_count": 0,
	}
}

// dedupStrings returns the unique values preserving first-seen order.
func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

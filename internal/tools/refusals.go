package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RefusalsName is the import refusals tool identifier.
const RefusalsName = "refusals"

const refusalsTTL = 24 * time.Hour

// DefaultRefusalsBaseURL is the FDA data dashboard API endpoint.
const DefaultRefusalsBaseURL = "https://api-datadashboard.fda.gov/v1"

// refusalsRequest is the FDA dashboard filter payload.
type refusalsRequest struct {
	Start   int               `json:"start"`
	Rows    int               `json:"rows"`
	Filters map[string][]string `json:"filters"`
}

// refusalsResponse mirrors the FDA dashboard response.
type refusalsResponse struct {
	Result []struct {
		FirmName               string `json:"LegalName"`
		ProductCodeDescription string `json:"ProductCodeDescription"`
		RefusalCharges         string `json:"RefusalCharges"`
		RefusalDate            string `json:"RefusalDate"`
		CountryName            string `json:"CountryName"`
	} `json:"result"`
}

// NewRefusals builds the import refusals adapter over the FDA data dashboard
// API. authUser/authKey are the dashboard credentials; baseURL empty means
// DefaultRefusalsBaseURL.
func NewRefusals(client *http.Client, baseURL, authUser, authKey string, cache Cache, logger *slog.Logger) (*Adapter, error) {
	if baseURL == "" {
		baseURL = DefaultRefusalsBaseURL
	}

	fetch := func(ctx context.Context, p Params) (map[string]any, error) {
		body := refusalsRequest{
			Start: 1,
			Rows:  25,
			Filters: map[string][]string{
				"ProductCodeDescription": {p.ProductID},
			},
		}
		headers := map[string]string{
			"Authorization-User": authUser,
			"Authorization-Key":  authKey,
		}

		var resp refusalsResponse
		if err := postJSON(ctx, client, baseURL+"/import_refusals", headers, body, &resp); err != nil {
			return nil, err
		}
		return normalizeRefusals(p, resp), nil
	}

	return NewAdapter(Config{
		Name:      RefusalsName,
		Tile:      "refusals",
		TTL:       refusalsTTL,
		RateLimit: rate.Limit(2),
		Fetch:     fetch,
		Fallback:  refusalsFallback,
		Key:       func(p Params) string { return p.ProductID },
	}, cache, logger)
}

// normalizeRefusals maps dashboard rows into the tile data shape. Refusal
// counts grade the risk: a handful of historical refusals warrants attention,
// a pattern of them means detention-without-physical-examination exposure.
func normalizeRefusals(p Params, resp refusalsResponse) map[string]any {
	n := len(resp.Result)

	refusals := make([]map[string]any, 0, n)
	for _, r := range resp.Result {
		refusals = append(refusals, map[string]any{
			"firm":        r.FirmName,
			"product":     r.ProductCodeDescription,
			"charges":     r.RefusalCharges,
			"date":        r.RefusalDate,
			"country":     r.CountryName,
		})
	}

	switch {
	case n == 0:
		return map[string]any{
			"risk_level":    "low",
			"status":        "clear",
			"headline":      fmt.Sprintf("no import refusal history for %s", p.ProductID),
			"refusal_count": 0,
		}
	case n < 5:
		return map[string]any{
			"risk_level":    "medium",
			"status":        "attention",
			"headline":      fmt.Sprintf("%d prior import refusal(s) for %s", n, p.ProductID),
			"requirements":  []string{"review refusal charges for recurring admissibility issues"},
			"refusal_count": n,
			"refusals":      refusals,
		}
	default:
		return map[string]any{
			"risk_level":    "high",
			"status":        "action",
			"headline":      fmt.Sprintf("refusal pattern for %s: %d prior refusals", p.ProductID, n),
			"requirements":  []string{"prepare evidence of admissibility before next entry"},
			"refusal_count": n,
			"refusals":      refusals,
		}
	}
}

func refusalsFallback(p Params) map[string]any {
	return map[string]any{
		"risk_level":    "low",
		"status":        "error",
		"headline":      fmt.Sprintf("import refusal history unavailable for %s", p.ProductID),
		"refusal_count": 0,
	}
}

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func runAgainst(t *testing.T, build func(baseURL string) (*Adapter, error), handler http.HandlerFunc, p Params) Result {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := build(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return adapter.Run(context.Background(), p)
}

func TestHTSNormalization(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantRisk     string
		wantStatus   string
		wantRequires bool
	}{
		{
			name:         "no classification found",
			payload:      `[]`,
			wantRisk:     "medium",
			wantStatus:   "attention",
			wantRequires: true,
		},
		{
			name: "classified with footnote requirement",
			payload: `[{"htsno":"8471.30.01","description":"portable computers",
				"general":"Free","footnotes":[{"value":"See chapter 84 statistical note 1"}]}]`,
			wantRisk:     "low",
			wantStatus:   "clear",
			wantRequires: true,
		},
		{
			name:         "classified without footnotes",
			payload:      `[{"htsno":"8471.30.01","description":"portable computers","general":"Free"}]`,
			wantRisk:     "low",
			wantStatus:   "clear",
			wantRequires: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runAgainst(t, func(baseURL string) (*Adapter, error) {
				return NewHTS(http.DefaultClient, baseURL, nil, nil)
			}, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("keyword") == "" {
					t.Error("keyword query parameter not sent")
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.payload))
			}, Params{ProductID: "laptop computers", RouteID: "us-cn:importer"})

			if !res.Success {
				t.Fatalf("run failed: %s", res.Err)
			}
			if res.Data["risk_level"] != tt.wantRisk {
				t.Errorf("risk_level = %v, want %s", res.Data["risk_level"], tt.wantRisk)
			}
			if res.Data["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", res.Data["status"], tt.wantStatus)
			}
			_, hasReqs := res.Data["requirements"].([]string)
			if hasReqs != tt.wantRequires && tt.wantRequires {
				t.Errorf("requirements presence = %v, want %v", hasReqs, tt.wantRequires)
			}
		})
	}
}

func TestSanctionsNormalization(t *testing.T) {
	t.Run("clear route", func(t *testing.T) {
		res := runAgainst(t, func(baseURL string) (*Adapter, error) {
			return NewSanctions(http.DefaultClient, baseURL, "test-key", nil, nil)
		}, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("subscription-key") != "test-key" {
				t.Error("subscription key header not sent")
			}
			_ = json.NewEncoder(w).Encode(cslResponse{Total: 0})
		}, Params{ProductID: "PROD-1", RouteID: "us-cn:acme-trading"})

		if res.Data["risk_level"] != "low" || res.Data["status"] != "clear" {
			t.Errorf("clear screening produced %v", res.Data)
		}
	})

	t.Run("any match is high risk action", func(t *testing.T) {
		res := runAgainst(t, func(baseURL string) (*Adapter, error) {
			return NewSanctions(http.DefaultClient, baseURL, "", nil, nil)
		}, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("name"); got != "acme-trading" {
				t.Errorf("screened name = %q, want segment after last colon", got)
			}
			_, _ = w.Write([]byte(`{"total":1,"results":[{"name":"ACME Trading Co",
				"source":"Entity List (EL) - Bureau of Industry and Security",
				"programs":["EAR"]}]}`))
		}, Params{ProductID: "PROD-1", RouteID: "us-cn:acme-trading"})

		if res.Data["risk_level"] != "high" || res.Data["status"] != "action" {
			t.Errorf("screening match produced %v, want high/action", res.Data)
		}
		reqs, _ := res.Data["requirements"].([]string)
		if len(reqs) == 0 {
			t.Error("screening match should carry requirements")
		}
	})

	t.Run("api failure falls back to medium", func(t *testing.T) {
		res := runAgainst(t, func(baseURL string) (*Adapter, error) {
			return NewSanctions(http.DefaultClient, baseURL, "", nil, nil)
		}, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}, Params{ProductID: "PROD-1", RouteID: "us-cn:acme-trading"})

		if !res.IsFallback {
			t.Fatal("expected fallback result")
		}
		if res.Data["risk_level"] != "medium" || res.Data["status"] != "error" {
			t.Errorf("sanctions fallback = %v, want medium/error", res.Data)
		}
	})
}

func TestScreeningSubject(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{route: "us-cn:shenzhen-global-trading", want: "shenzhen-global-trading"},
		{route: "us-cn", want: "us-cn"},
		{route: "a:b:c", want: "c"},
		{route: "trailing:", want: "trailing:"},
	}
	for _, tt := range tests {
		if got := screeningSubject(Params{RouteID: tt.route}); got != tt.want {
			t.Errorf("screeningSubject(%q) = %q, want %q", tt.route, got, tt.want)
		}
	}
}

func TestRefusalsThresholds(t *testing.T) {
	row := `{"LegalName":"Firm","ProductCodeDescription":"widget","RefusalCharges":"UNAPPROVED","RefusalDate":"2026-07-01","CountryName":"China"}`

	tests := []struct {
		name       string
		count      int
		wantRisk   string
		wantStatus string
	}{
		{name: "no history", count: 0, wantRisk: "low", wantStatus: "clear"},
		{name: "a few refusals", count: 3, wantRisk: "medium", wantStatus: "attention"},
		{name: "refusal pattern", count: 5, wantRisk: "high", wantStatus: "action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runAgainst(t, func(baseURL string) (*Adapter, error) {
				return NewRefusals(http.DefaultClient, baseURL, "user", "key", nil, nil)
			}, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if r.Header.Get("Authorization-User") != "user" {
					t.Error("dashboard credentials not sent")
				}
				body := `{"result":[`
				for i := 0; i < tt.count; i++ {
					if i > 0 {
						body += ","
					}
					body += row
				}
				body += `]}`
				_, _ = w.Write([]byte(body))
			}, Params{ProductID: "widget", RouteID: "us-cn:importer"})

			if !res.Success {
				t.Fatalf("run failed: %s", res.Err)
			}
			if res.Data["risk_level"] != tt.wantRisk {
				t.Errorf("risk_level = %v, want %s", res.Data["risk_level"], tt.wantRisk)
			}
			if res.Data["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", res.Data["status"], tt.wantStatus)
			}
		})
	}
}

func TestRulingsNormalization(t *testing.T) {
	t.Run("matches flip status to attention", func(t *testing.T) {
		res := runAgainst(t, func(baseURL string) (*Adapter, error) {
			return NewRulings(http.DefaultClient, baseURL, nil, nil)
		}, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rulings":[{"rulingNumber":"N339201",
				"subject":"The tariff classification of laptop computers",
				"categoryName":"Classification","rulingDate":"2026-06-15"}]}`))
		}, Params{ProductID: "laptop computers", RouteID: "us-cn:importer"})

		if res.Data["risk_level"] != "low" || res.Data["status"] != "attention" {
			t.Errorf("ruling match produced %v, want low/attention", res.Data)
		}
	})

	t.Run("no rulings stays clear", func(t *testing.T) {
		res := runAgainst(t, func(baseURL string) (*Adapter, error) {
			return NewRulings(http.DefaultClient, baseURL, nil, nil)
		}, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rulings":[]}`))
		}, Params{ProductID: "laptop computers", RouteID: "us-cn:importer"})

		if res.Data["status"] != "clear" {
			t.Errorf("status = %v, want clear", res.Data["status"])
		}
	})
}

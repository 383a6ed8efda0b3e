package taxonomy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// fakeAPI serves a tiny catalogue: one car make with a generation of twelve
// derivatives split across trims and fuels, paginated five per page.
type fakeAPI struct {
	server *httptest.Server
	calls  atomic.Int64
	apiKey string
}

func derivativesFixture() []Derivative {
	var out []Derivative
	trims := []string{"SE", "SE", "SE", "SE", "SE", "SE", "Sport", "Sport", "Sport", "Sport", "Sport", "Sport"}
	for i, trim := range trims {
		fuel := "Petrol"
		if i%2 == 1 {
			fuel = "Diesel"
		}
		out = append(out, Derivative{
			ID:       "d" + strconv.Itoa(i+1),
			Name:     "1.5 " + trim + " " + fuel + " " + strconv.Itoa(i+1),
			Trim:     trim,
			Engine:   "1.5",
			FuelType: fuel,
		})
	}
	return out
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{apiKey: "key-123"}
	derivs := derivativesFixture()
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Header.Get(apiKeyHeader) != f.apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/vehicle-types":
			writePage(w, []Option{{ID: "car", Name: "Car"}, {ID: "van", Name: "Van"}}, 1, 1)
		case "/makes":
			writePage(w, []Option{{ID: "ford", Name: "Ford"}}, 1, 1)
		case "/models":
			if q.Get("make") != "ford" {
				http.Error(w, "unknown make", http.StatusNotFound)
				return
			}
			writePage(w, []Option{{ID: "focus", Name: "Focus"}}, 1, 1)
		case "/generations":
			writePage(w, []Option{{ID: "mk4", Name: "Mk4 (2018-)"}}, 1, 1)
		case "/derivatives":
			page, _ := strconv.Atoi(q.Get("page"))
			start := (page - 1) * 5
			end := start + 5
			if end > len(derivs) {
				end = len(derivs)
			}
			writePage(w, derivs[start:end], page, 3)
		case "/years":
			writePage(w, []YearOption{{Year: 2019, Plate: "19"}, {Year: 2020, Plate: "70"}}, 1, 1)
		case "/valuations":
			var req ValuationRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(Valuation{DerivativeID: req.DerivativeID, Retail: 14500, Trade: 12100, PartExchange: 11800, Currency: "GBP"})
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func writePage[T any](w http.ResponseWriter, items []T, page, total int) {
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "page": page, "pageSize": len(items), "totalPages": total})
}

func (f *fakeAPI) client() *Client {
	return NewClient(f.server.URL, f.apiKey, 0, f.server.Client())
}

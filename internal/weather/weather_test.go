package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCurrentParsesProviderResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "k" {
			t.Errorf("missing appid, query = %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("units") != "metric" {
			t.Errorf("units = %s", r.URL.Query().Get("units"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Tijuana","main":{"temp":22.4,"humidity":60},"wind":{"speed":5.0},"weather":[{"main":"Clouds","description":"nubes dispersas"}]}`))
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, APIKey: "k", Lat: 32.5, Lon: -117.0}
	obs, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if obs.City != "Tijuana" || obs.TempC != 22.4 || obs.Condition != "Clouds" {
		t.Fatalf("observation = %+v", obs)
	}
	if obs.WindKmh < 17.9 || obs.WindKmh > 18.1 {
		t.Fatalf("wind = %v, want 18 km/h", obs.WindKmh)
	}
}

func TestCurrentProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := Client{BaseURL: srv.URL, APIKey: "bad"}
	if _, err := c.Current(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestFavorable(t *testing.T) {
	cases := []struct {
		name string
		obs  Observation
		want bool
	}{
		{"mild day", Observation{TempC: 20, WindKmh: 10, Condition: "Clouds"}, true},
		{"boundary temps", Observation{TempC: 5, WindKmh: 30, Condition: "Clear"}, true},
		{"too cold", Observation{TempC: 4.9, WindKmh: 5, Condition: "Clear"}, false},
		{"too hot", Observation{TempC: 35.1, WindKmh: 5, Condition: "Clear"}, false},
		{"too windy", Observation{TempC: 20, WindKmh: 30.5, Condition: "Clear"}, false},
		{"rain", Observation{TempC: 20, WindKmh: 5, Condition: "Rain"}, false},
		{"thunderstorm", Observation{TempC: 20, WindKmh: 5, Condition: "Thunderstorm"}, false},
	}
	for _, c := range cases {
		ok, reasons := Favorable(c.obs)
		if ok != c.want {
			t.Errorf("%s: Favorable = %v (reasons %v), want %v", c.name, ok, reasons, c.want)
		}
		if !ok && len(reasons) == 0 {
			t.Errorf("%s: unfavorable without reasons", c.name)
		}
	}
}

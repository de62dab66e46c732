// Package weather fetches current conditions and judges whether they allow
// outdoor construction work. Failures here are advisory only and never block
// core flows.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	minWorkTempC   = 5.0
	maxWorkTempC   = 35.0
	maxWindKmh     = 30.0
	defaultTimeout = 10 * time.Second
)

// Conditions that stop outdoor work outright, regardless of temperature.
var severeConditions = map[string]bool{
	"rain":         true,
	"thunderstorm": true,
	"snow":         true,
	"tornado":      true,
	"hurricane":    true,
	"storm":        true,
}

// Client queries an OpenWeather-compatible endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Lat     float64
	Lon     float64
	HTTP    *http.Client
}

// Observation is the normalized current-weather reading. Wind comes back
// from the provider in m/s and is converted to km/h.
type Observation struct {
	City        string  `json:"city,omitempty"`
	TempC       float64 `json:"temp_c"`
	WindKmh     float64 `json:"wind_kmh"`
	Humidity    int     `json:"humidity"`
	Condition   string  `json:"condition"`
	Description string  `json:"description,omitempty"`
}

type providerResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// Current fetches the observation for the configured coordinates.
func (c Client) Current(ctx context.Context) (Observation, error) {
	if c.BaseURL == "" {
		return Observation{}, errors.New("weather base url not configured")
	}
	if c.APIKey == "" {
		return Observation{}, errors.New("weather api key not configured")
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", c.Lat))
	q.Set("lon", fmt.Sprintf("%g", c.Lon))
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")
	q.Set("lang", "es")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Observation{}, err
	}
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return Observation{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Observation{}, fmt.Errorf("weather provider status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var pr providerResponse
	if err := json.NewDecoder(res.Body).Decode(&pr); err != nil {
		return Observation{}, fmt.Errorf("decode weather response: %w", err)
	}
	obs := Observation{
		City:     pr.Name,
		TempC:    pr.Main.Temp,
		WindKmh:  pr.Wind.Speed * 3.6,
		Humidity: pr.Main.Humidity,
	}
	if len(pr.Weather) > 0 {
		obs.Condition = pr.Weather[0].Main
		obs.Description = pr.Weather[0].Description
	}
	return obs, nil
}

// Favorable applies the site-work thresholds: temperature within [5,35]°C,
// wind at most 30 km/h and no severe condition. The returned reasons name
// each violated threshold.
func Favorable(o Observation) (bool, []string) {
	var reasons []string
	if o.TempC < minWorkTempC {
		reasons = append(reasons, fmt.Sprintf("temperatura %.1f°C por debajo de %.0f°C", o.TempC, minWorkTempC))
	}
	if o.TempC > maxWorkTempC {
		reasons = append(reasons, fmt.Sprintf("temperatura %.1f°C por encima de %.0f°C", o.TempC, maxWorkTempC))
	}
	if o.WindKmh > maxWindKmh {
		reasons = append(reasons, fmt.Sprintf("viento %.1f km/h por encima de %.0f km/h", o.WindKmh, maxWindKmh))
	}
	if severeConditions[strings.ToLower(o.Condition)] {
		reasons = append(reasons, fmt.Sprintf("condición adversa: %s", o.Condition))
	}
	return len(reasons) == 0, reasons
}

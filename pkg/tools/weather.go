package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/parlo-ai/parlo/pkg/chat"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

// WMO weather interpretation codes, abridged to what the forecast
// endpoint actually returns.
var weatherCodes = map[int]string{
	0: "clear sky", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "fog", 48: "depositing rime fog",
	51: "light drizzle", 53: "drizzle", 55: "dense drizzle",
	61: "light rain", 63: "rain", 65: "heavy rain",
	71: "light snow", 73: "snow", 75: "heavy snow",
	80: "rain showers", 81: "rain showers", 82: "violent rain showers",
	95: "thunderstorm", 96: "thunderstorm with hail", 99: "thunderstorm with heavy hail",
}

// WeatherTool answers current-conditions questions through the free
// Open-Meteo API, no key required.
type WeatherTool struct {
	Client      *http.Client
	GeocodeURL  string
	ForecastURL string
}

func NewWeatherTool(client *http.Client) *WeatherTool {
	if client == nil {
		client = http.DefaultClient
	}
	return &WeatherTool{
		Client:      client,
		GeocodeURL:  defaultGeocodeURL,
		ForecastURL: defaultForecastURL,
	}
}

// Definition returns the registry entry for this tool.
func (w *WeatherTool) Definition() Tool {
	return Tool{
		Name:        "get_weather",
		Description: "Get the current weather conditions for a city.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"city": {
					Type:        "string",
					Description: "City name, optionally with region or country, e.g. \"Chicago\" or \"Springfield, Illinois\".",
				},
			},
			Required: []string{"city"},
		},
		Tags:    []string{"weather"},
		Handler: w.handle,
	}
}

type geoResult struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResult struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}

func (w *WeatherTool) handle(ctx context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	if city == "" {
		return nil, fmt.Errorf("get_weather: missing city")
	}

	var geo geoResult
	q := url.Values{"name": {city}, "count": {"1"}}
	if err := w.getJSON(ctx, w.GeocodeURL+"?"+q.Encode(), &geo); err != nil {
		return nil, fmt.Errorf("get_weather: geocode %q: %w", city, err)
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("get_weather: no location found for %q", city)
	}
	loc := geo.Results[0]

	// The forecast reports in the turn's timezone when the request
	// carries one; "auto" lets Open-Meteo resolve it from coordinates.
	tz := chat.TurnContextFrom(ctx).Timezone
	if tz == "" {
		tz = "auto"
	}

	var fc forecastResult
	q = url.Values{
		"latitude":  {fmt.Sprintf("%g", loc.Latitude)},
		"longitude": {fmt.Sprintf("%g", loc.Longitude)},
		"current":   {"temperature_2m,weather_code,wind_speed_10m"},
		"timezone":  {tz},
	}
	if err := w.getJSON(ctx, w.ForecastURL+"?"+q.Encode(), &fc); err != nil {
		return nil, fmt.Errorf("get_weather: forecast for %q: %w", city, err)
	}

	conditions := weatherCodes[fc.Current.WeatherCode]
	if conditions == "" {
		conditions = "unknown conditions"
	}
	return map[string]any{
		"status":      "success",
		"location":    loc.Name,
		"country":     loc.Country,
		"conditions":  conditions,
		"temperature": fmt.Sprintf("%.0f%s", fc.Current.Temperature, fc.CurrentUnits.Temperature),
		"wind_speed":  fmt.Sprintf("%.0f %s", fc.Current.WindSpeed, fc.CurrentUnits.WindSpeed),
	}, nil
}

func (w *WeatherTool) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

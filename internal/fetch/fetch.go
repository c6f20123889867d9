package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	"sia/internal/skills"
)

const (
	DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	DefaultNewsURL    = "https://newsapi.org/v2/top-headlines"

	userAgent  = "sia/1.0"
	maxBody    = 1 << 20
	reqTimeout = 15 * time.Second

	weatherCacheSize = 64
	WeatherTTL       = 10 * time.Minute
)

var ErrMissingKey = errors.New("api key not configured")

// Weather resolves a city name into a one-sentence report. Reports are
// cached per city for WeatherTTL; failures are not cached.
type Weather struct {
	client  *http.Client
	apiKey  string
	cache   *expirable.LRU[string, string]
	BaseURL string
}

func NewWeather(client *http.Client, apiKey string) *Weather {
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{
		client:  client,
		apiKey:  apiKey,
		cache:   expirable.NewLRU[string, string](weatherCacheSize, nil, WeatherTTL),
		BaseURL: DefaultWeatherURL,
	}
}

// Lookup always returns a sentence to present. err explains why the
// apology sentence was used instead of a report.
func (w *Weather) Lookup(ctx context.Context, city string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(city))
	if sentence, ok := w.cache.Get(key); ok {
		return sentence, nil
	}

	sentence, err := w.lookup(ctx, city)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch the weather for %s. Please check your connection or try another city.", city), err
	}
	w.cache.Add(key, sentence)
	return sentence, nil
}

func (w *Weather) lookup(ctx context.Context, city string) (string, error) {
	if w.apiKey == "" {
		return "", ErrMissingKey
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")

	body, err := get(ctx, w.client, w.BaseURL+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}

	res := gjson.GetManyBytes(body, "name", "weather.0.description", "main.temp")
	if !res[1].Exists() || !res[2].Exists() {
		return "", errors.New("weather: unexpected response shape")
	}

	temp := strconv.FormatFloat(res[2].Float(), 'f', -1, 64)
	return fmt.Sprintf("The weather in %s is %s with a temperature of %s°C.", res[0].String(), res[1].String(), temp), nil
}

// News resolves the current top headline.
type News struct {
	client  *http.Client
	apiKey  string
	BaseURL string
	Country string
}

func NewNews(client *http.Client, apiKey string) *News {
	if client == nil {
		client = http.DefaultClient
	}
	return &News{client: client, apiKey: apiKey, BaseURL: DefaultNewsURL, Country: "us"}
}

// Headline always returns a sentence to present, falling back to the mock
// headline on any failure.
func (n *News) Headline(ctx context.Context) (string, error) {
	title, err := n.headline(ctx)
	if err != nil {
		return skills.MockHeadline, err
	}
	return fmt.Sprintf("Top headline: %s.", title), nil
}

func (n *News) headline(ctx context.Context) (string, error) {
	if n.apiKey == "" {
		return "", ErrMissingKey
	}

	q := url.Values{}
	q.Set("country", n.Country)
	q.Set("apiKey", n.apiKey)

	body, err := get(ctx, n.client, n.BaseURL+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("news: %w", err)
	}

	title := gjson.GetBytes(body, "articles.0.title")
	if !title.Exists() {
		return "", errors.New("news: no articles")
	}
	return title.String(), nil
}

func get(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, reqTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid json")
	}
	return body, nil
}

package routecalc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/routecalc/prefork/pkg/retry"
)

// ErrNoResult indicates the geocoder returned no match for an address
var ErrNoResult = errors.New("no geocoding result")

const upstreamTimeout = 10 * time.Second

// GeocodingService resolves free-form addresses through a Nominatim
// instance.
type GeocodingService struct {
	baseURL string
	client  *http.Client
	retrier *retry.Executor
	log     *slog.Logger
}

// NewGeocodingService creates a geocoding service
func NewGeocodingService(baseURL string, log *slog.Logger) *GeocodingService {
	policy := retry.NewExponentialBackoffPolicy(3, 200*time.Millisecond, 2*time.Second).
		WithJitter(0.1).
		WithCondition(func(err error) bool {
			// a valid empty result set is final, transport errors are not
			return err != nil && !errors.Is(err, ErrNoResult)
		})

	return &GeocodingService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: upstreamTimeout},
		retrier: retry.NewExecutor(policy),
		log:     log,
	}
}

// nominatimHit is one entry of a Nominatim search response. Coordinates
// come back as strings.
type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to coordinates, taking the first hit
func (g *GeocodingService) Geocode(ctx context.Context, address string) (Coordinates, error) {
	coords, err := retry.Execute(g.retrier, ctx, func(ctx context.Context) (Coordinates, error) {
		return g.geocodeOnce(ctx, address)
	})
	if err != nil {
		g.log.Error("geocoding failed", "address", address, "error", err)
		return Coordinates{}, err
	}
	return coords, nil
}

func (g *GeocodingService) geocodeOnce(ctx context.Context, address string) (Coordinates, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coordinates{}, err
	}

	var hits []nominatimHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return Coordinates{}, fmt.Errorf("decoding nominatim response: %w", err)
	}
	if len(hits) == 0 {
		g.log.Warn("no geocoding results", "address", address)
		return Coordinates{}, ErrNoResult
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parsing latitude %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parsing longitude %q: %w", hits[0].Lon, err)
	}

	return Coordinates{Latitude: lat, Longitude: lon}, nil
}

package routecalc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/routecalc/prefork/pkg/retry"
)

// ErrNoRoute indicates OpenRouteService found no route between the points
var ErrNoRoute = errors.New("no route found")

// RoutingService computes driving distances through an OpenRouteService
// instance.
type RoutingService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retrier *retry.Executor
	log     *slog.Logger
}

// NewRoutingService creates a routing service
func NewRoutingService(baseURL, apiKey string, log *slog.Logger) *RoutingService {
	policy := retry.NewExponentialBackoffPolicy(3, 200*time.Millisecond, 2*time.Second).
		WithJitter(0.1).
		WithCondition(func(err error) bool {
			return err != nil && !errors.Is(err, ErrNoRoute)
		})

	return &RoutingService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: upstreamTimeout},
		retrier: retry.NewExecutor(policy),
		log:     log,
	}
}

type orsRequest struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type orsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"` // meters
		} `json:"summary"`
	} `json:"routes"`
}

// Distance returns the driving distance between start and end in
// kilometers, rounded to two decimals.
func (r *RoutingService) Distance(ctx context.Context, start, end Coordinates) (float64, error) {
	km, err := retry.Execute(r.retrier, ctx, func(ctx context.Context) (float64, error) {
		return r.distanceOnce(ctx, start, end)
	})
	if err != nil {
		r.log.Error("routing failed", "error", err)
		return 0, err
	}
	return km, nil
}

func (r *RoutingService) distanceOnce(ctx context.Context, start, end Coordinates) (float64, error) {
	// ORS expects [lon, lat] pairs
	payload, err := json.Marshal(orsRequest{
		Coordinates: [][]float64{
			{start.Longitude, start.Latitude},
			{end.Longitude, end.Latitude},
		},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/ors/v2/directions/driving-car", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("openrouteservice returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var parsed orsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("decoding openrouteservice response: %w", err)
	}
	if len(parsed.Routes) == 0 {
		r.log.Warn("no routes in openrouteservice response")
		return 0, ErrNoRoute
	}

	meters := parsed.Routes[0].Summary.Distance
	return math.Round(meters/1000*100) / 100, nil
}

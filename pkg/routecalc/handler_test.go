package routecalc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routecalc/prefork/pkg/types"
)

func newRequest(method, path, body string, headers ...string) *types.Request {
	h := make(http.Header)
	for _, kv := range headers {
		parts := strings.SplitN(kv, ": ", 2)
		h.Set(parts[0], parts[1])
	}
	return &types.Request{
		Method:     method,
		Path:       path,
		Proto:      "HTTP/1.1",
		Header:     h,
		Body:       []byte(body),
		RemoteAddr: "127.0.0.1:54321",
	}
}

// parseResponse decodes the raw bytes the handler emits back into an
// http.Response with a fully read body.
func parseResponse(t *testing.T, raw []byte) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// stubUpstreams backs a handler with fake Nominatim and ORS servers
func stubUpstreams(t *testing.T, nominatim, ors http.HandlerFunc) *Handler {
	t.Helper()

	nsrv := httptest.NewServer(nominatim)
	t.Cleanup(nsrv.Close)
	osrv := httptest.NewServer(ors)
	t.Cleanup(osrv.Close)

	return NewHandler(&Settings{
		NominatimURL: nsrv.URL,
		ORSURL:       osrv.URL,
	}, discardLogger())
}

func geocodeOK(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte(`[{"lat": "52.517", "lon": "13.389"}]`)) //nolint:errcheck
}

func routeOK(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte(`{"routes": [{"summary": {"distance": 5432.1}}]}`)) //nolint:errcheck
}

const routeBody = `{
	"home":   {"HSNMR": "1", "STRAS": "Unter den Linden", "PSTLZ": "10117", "ORT01": "Berlin", "LAND1": "DE"},
	"office": {"STRAS": "Alexanderplatz", "PSTLZ": "10178", "ORT01": "Berlin", "LAND1": "DE"}
}`

func TestHandleHealth(t *testing.T) {
	h := stubUpstreams(t, geocodeOK, routeOK)

	raw, err := h.Handle(context.Background(), newRequest(http.MethodGet, "/health", ""))
	require.NoError(t, err)

	resp, body := parseResponse(t, raw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "healthy", parsed["status"])
	assert.Equal(t, AppName, parsed["service"])
}

func TestHandleNotFound(t *testing.T) {
	h := stubUpstreams(t, geocodeOK, routeOK)

	raw, err := h.Handle(context.Background(), newRequest(http.MethodGet, "/nope", ""))
	require.NoError(t, err)

	resp, body := parseResponse(t, raw)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"detail": "Not Found"}`, string(body))
}

func TestHandleMethodNotAllowed(t *testing.T) {
	h := stubUpstreams(t, geocodeOK, routeOK)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/health"},
		{http.MethodGet, "/distance_ik"},
		{http.MethodDelete, "/distance_ik"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			raw, err := h.Handle(context.Background(), newRequest(tt.method, tt.path, ""))
			require.NoError(t, err)

			resp, body := parseResponse(t, raw)
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			assert.JSONEq(t, `{"detail": "Method Not Allowed"}`, string(body))
		})
	}
}

func TestHandleDistanceSuccess(t *testing.T) {
	h := stubUpstreams(t, geocodeOK, routeOK)

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", routeBody))
	require.NoError(t, err)

	resp, body := parseResponse(t, raw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed RouteResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "success", parsed.Status)
	assert.Nil(t, parsed.Error)
	require.NotNil(t, parsed.Data)
	assert.Equal(t, "1 Unter den Linden, 10117 Berlin, DE", parsed.Data.Home.HomeAddress)
	assert.Equal(t, "Alexanderplatz, 10178 Berlin, DE", parsed.Data.Office.OfficeAddress)
	assert.InDelta(t, 5.43, parsed.Data.Distance, 1e-9)
	assert.InDelta(t, 52.517, parsed.Data.Home.Coordinates.Latitude, 1e-9)

	ts, ok := parsed.Metadata["timestamp"]
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestHandleDistanceInvalidBody(t *testing.T) {
	h := stubUpstreams(t, geocodeOK, routeOK)

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", "{not json"))
	require.NoError(t, err)

	resp, body := parseResponse(t, raw)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.JSONEq(t, `{"detail": "Invalid request body"}`, string(body))
}

func TestHandleDistanceGeocodeFailure(t *testing.T) {
	h := stubUpstreams(t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[]`)) //nolint:errcheck
		},
		routeOK)

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", routeBody))
	require.NoError(t, err)

	resp, body := parseResponse(t, raw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed RouteResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "error", parsed.Status)
	assert.Nil(t, parsed.Data)
	require.NotNil(t, parsed.Error)
	assert.Equal(t, "Could not geocode home address: 1 Unter den Linden, 10117 Berlin, DE", *parsed.Error)
}

func TestHandleDistanceRouteFailure(t *testing.T) {
	h := stubUpstreams(t, geocodeOK,
		func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"routes": []}`)) //nolint:errcheck
		})

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", routeBody))
	require.NoError(t, err)

	_, body := parseResponse(t, raw)
	var parsed RouteResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "error", parsed.Status)
	require.NotNil(t, parsed.Error)
	assert.Equal(t, "Could not calculate route between addresses", *parsed.Error)
}

func TestHandleDistanceUnexpectedFailure(t *testing.T) {
	h := stubUpstreams(t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		routeOK)

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", routeBody))
	require.NoError(t, err)

	_, body := parseResponse(t, raw)
	var parsed RouteResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "error", parsed.Status)
	require.NotNil(t, parsed.Error)
	assert.Equal(t, "An unexpected error occurred", *parsed.Error)
}

func TestHandleCompressedResponse(t *testing.T) {
	// Pad the geocoded addresses so the success payload clears the
	// compression threshold.
	h := stubUpstreams(t, geocodeOK, routeOK)

	long := strings.Repeat("Lange Strasse ", 40)
	body := `{"home": {"STRAS": "` + long + `", "ORT01": "Berlin"}, "office": {"ORT01": "Berlin"}}`

	raw, err := h.Handle(context.Background(),
		newRequest(http.MethodPost, "/distance_ik", body, "Accept-Encoding: gzip"))
	require.NoError(t, err)

	resp, respBody := parseResponse(t, raw)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	r, err := gzip.NewReader(bytes.NewReader(respBody))
	require.NoError(t, err)
	defer r.Close()
	decoded, err := io.ReadAll(r)
	require.NoError(t, err)

	var parsed RouteResponse
	require.NoError(t, json.Unmarshal(decoded, &parsed))
	assert.Equal(t, "success", parsed.Status)
}

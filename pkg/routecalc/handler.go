package routecalc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/routecalc/prefork/pkg/types"
)

// Handler is the Route Calculator application handler plugged into the
// serving shell. It produces complete HTTP/1.1 response bytes; the shell
// writes them verbatim.
type Handler struct {
	settings *Settings
	geocoder *GeocodingService
	router   *RoutingService
	clock    types.Clock
	log      *slog.Logger
}

// NewHandler wires the geocoding and routing services from settings
func NewHandler(settings *Settings, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		settings: settings,
		geocoder: NewGeocodingService(settings.NominatimURL, log),
		router:   NewRoutingService(settings.ORSURL, settings.ORSAPIKey, log),
		clock:    types.NewRealClock(),
		log:      log,
	}
}

// WithClock overrides the clock used for response timestamps
func (h *Handler) WithClock(clock types.Clock) *Handler {
	h.clock = clock
	return h
}

// Handle implements types.Handler
func (h *Handler) Handle(ctx context.Context, req *types.Request) ([]byte, error) {
	switch {
	case req.Path == "/health":
		if req.Method != http.MethodGet {
			return h.respond(req, http.StatusMethodNotAllowed, detailBody("Method Not Allowed"))
		}
		return h.respond(req, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": AppName,
		})

	case req.Path == "/distance_ik":
		if req.Method != http.MethodPost {
			return h.respond(req, http.StatusMethodNotAllowed, detailBody("Method Not Allowed"))
		}
		return h.distance(ctx, req)

	default:
		return h.respond(req, http.StatusNotFound, detailBody("Not Found"))
	}
}

// distance geocodes both addresses and computes the driving distance.
// Validation failures are reported inside the envelope with status
// "error", not as HTTP errors.
func (h *Handler) distance(ctx context.Context, req *types.Request) ([]byte, error) {
	var routeReq RouteRequest
	if err := json.Unmarshal(req.Body, &routeReq); err != nil {
		return h.respond(req, http.StatusUnprocessableEntity, detailBody("Invalid request body"))
	}

	homeAddr := routeReq.Home.Address()
	officeAddr := routeReq.Office.Address()

	home, err := h.geocoder.Geocode(ctx, homeAddr)
	if err != nil {
		return h.errorEnvelope(req, err, fmt.Sprintf("Could not geocode home address: %s", homeAddr))
	}

	office, err := h.geocoder.Geocode(ctx, officeAddr)
	if err != nil {
		return h.errorEnvelope(req, err, fmt.Sprintf("Could not geocode office address: %s", officeAddr))
	}

	distance, err := h.router.Distance(ctx, home, office)
	if err != nil {
		return h.errorEnvelope(req, err, "Could not calculate route between addresses")
	}

	return h.respond(req, http.StatusOK, &RouteResponse{
		Status: "success",
		Data: &RouteData{
			Home:     HomeData{HomeAddress: homeAddr, Coordinates: home},
			Office:   OfficeData{OfficeAddress: officeAddr, Coordinates: office},
			Distance: distance,
		},
		Metadata: h.metadata(),
	})
}

// errorEnvelope builds the "error" RouteResponse. Expected upstream
// outcomes carry the validation message; anything else stays generic.
func (h *Handler) errorEnvelope(req *types.Request, err error, msg string) ([]byte, error) {
	if !errors.Is(err, ErrNoResult) && !errors.Is(err, ErrNoRoute) {
		h.log.Error("unexpected error", "error", err)
		msg = "An unexpected error occurred"
	} else {
		h.log.Error("validation error", "error", msg)
	}
	return h.respond(req, http.StatusOK, &RouteResponse{
		Status:   "error",
		Error:    &msg,
		Metadata: h.metadata(),
	})
}

func (h *Handler) metadata() map[string]string {
	return map[string]string{
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339Nano),
	}
}

// respond serializes payload as a complete HTTP/1.1 response, compressed
// per the request's Accept-Encoding.
func (h *Handler) respond(req *types.Request, status int, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}

	encoding := negotiateEncoding(req.Header.Get("Accept-Encoding"))
	body, applied, err := compressBody(encoding, body)
	if err != nil {
		return nil, fmt.Errorf("compressing response: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	buf.WriteString("Content-Type: application/json\r\n")
	if applied != "" {
		fmt.Fprintf(&buf, "Content-Encoding: %s\r\n", applied)
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(body))
	buf.WriteString("Connection: close\r\n\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func detailBody(detail string) map[string]string {
	return map[string]string{"detail": detail}
}

package routecalc

import "strings"

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationRequest is one address in SAP field naming as sent by the
// upstream HR system.
type LocationRequest struct {
	HouseNumber string `json:"HSNMR"` // street number
	Street      string `json:"STRAS"`
	Supplement  string `json:"LOCAT"` // address supplement
	PostalCode  string `json:"PSTLZ"`
	City        string `json:"ORT01"`
	Country     string `json:"LAND1"`
}

// Address renders the location as a free-form geocoder query
func (l LocationRequest) Address() string {
	var parts []string
	if s := strings.TrimSpace(l.HouseNumber + " " + l.Street); s != "" {
		parts = append(parts, s)
	}
	if l.Supplement != "" {
		parts = append(parts, l.Supplement)
	}
	if s := strings.TrimSpace(l.PostalCode + " " + l.City); s != "" {
		parts = append(parts, s)
	}
	if l.Country != "" {
		parts = append(parts, l.Country)
	}
	return strings.Join(parts, ", ")
}

// RouteRequest is the body of POST /distance_ik
type RouteRequest struct {
	Home   LocationRequest `json:"home"`
	Office LocationRequest `json:"office"`
}

// RouteResponse is the envelope of every /distance_ik response. Validation
// failures use status "error" with the HTTP status still 200.
type RouteResponse struct {
	Status   string            `json:"status"` // "success" or "error"
	Error    *string           `json:"error"`
	Data     *RouteData        `json:"data"`
	Metadata map[string]string `json:"metadata"`
}

// RouteData is the success payload
type RouteData struct {
	Home     HomeData   `json:"home"`
	Office   OfficeData `json:"office"`
	Distance float64    `json:"distance"` // kilometers, rounded to 2 decimals
}

// HomeData echoes the geocoded home address
type HomeData struct {
	HomeAddress string      `json:"home_address"`
	Coordinates Coordinates `json:"coordinates"`
}

// OfficeData echoes the geocoded office address
type OfficeData struct {
	OfficeAddress string      `json:"office_address"`
	Coordinates   Coordinates `json:"coordinates"`
}

package routecalc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationRequestAddress(t *testing.T) {
	tests := []struct {
		name string
		loc  LocationRequest
		want string
	}{
		{
			name: "full address",
			loc: LocationRequest{
				HouseNumber: "12",
				Street:      "Hauptstrasse",
				Supplement:  "Hinterhaus",
				PostalCode:  "10115",
				City:        "Berlin",
				Country:     "DE",
			},
			want: "12 Hauptstrasse, Hinterhaus, 10115 Berlin, DE",
		},
		{
			name: "no supplement",
			loc: LocationRequest{
				HouseNumber: "1",
				Street:      "Unter den Linden",
				PostalCode:  "10117",
				City:        "Berlin",
				Country:     "DE",
			},
			want: "1 Unter den Linden, 10117 Berlin, DE",
		},
		{
			name: "street only",
			loc:  LocationRequest{Street: "Marienplatz"},
			want: "Marienplatz",
		},
		{
			name: "city only",
			loc:  LocationRequest{City: "Hamburg"},
			want: "Hamburg",
		},
		{
			name: "empty",
			loc:  LocationRequest{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.Address())
		})
	}
}

func TestRouteRequestUnmarshal(t *testing.T) {
	body := `{
		"home":   {"HSNMR": "5", "STRAS": "Ringstrasse", "PSTLZ": "50667", "ORT01": "Koeln", "LAND1": "DE"},
		"office": {"STRAS": "Domplatz", "ORT01": "Koeln", "LAND1": "DE"}
	}`

	var req RouteRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, "5 Ringstrasse, 50667 Koeln, DE", req.Home.Address())
	assert.Equal(t, "Domplatz, Koeln, DE", req.Office.Address())
}

func TestRouteResponseMarshalOmitsNothing(t *testing.T) {
	// The envelope always carries error and data keys, null when unused.
	resp := RouteResponse{Status: "success", Data: &RouteData{Distance: 12.35}}

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"error":null`)
	assert.Contains(t, string(raw), `"distance":12.35`)
}

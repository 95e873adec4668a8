package eta

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

const osrmProfile = "driving"

// OSRMClient looks up routed driver-to-pickup times on an OSRM server.
// It satisfies Client, so the Estimator can fall back to haversine when
// no endpoint is configured.
type OSRMClient struct {
	endpoint string
	http     *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 2 * time.Second},
	}
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// EstimateSeconds asks OSRM for the fastest route between the points
// and returns its duration in seconds.
func (o *OSRMClient) EstimateSeconds(from, to models.Coord) (float64, error) {
	resp, err := o.http.Get(o.routeURL(from, to))
	if err != nil {
		return 0, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	var out osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return 0, fmt.Errorf("osrm no route: %s", out.Code)
	}
	return out.Routes[0].Duration, nil
}

// routeURL builds /route/v1/{profile}/{lon,lat;lon,lat}. OSRM wants
// lon before lat.
func (o *OSRMClient) routeURL(from, to models.Coord) string {
	coords := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", from.Lon, from.Lat, to.Lon, to.Lat)
	q := url.Values{"overview": {"false"}}
	return fmt.Sprintf("%s/route/v1/%s/%s?%s", o.endpoint, osrmProfile, coords, q.Encode())
}

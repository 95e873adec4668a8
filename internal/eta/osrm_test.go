package eta

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestOSRMEstimateSeconds(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"code":"Ok","routes":[{"duration":412.5}]}`)
	}))
	defer srv.Close()

	c := NewOSRMClient(srv.URL + "/")
	got, err := c.EstimateSeconds(models.Coord{Lat: 9.02, Lon: 38.75}, models.Coord{Lat: 9.03, Lon: 38.74})
	if err != nil {
		t.Fatalf("EstimateSeconds: %v", err)
	}
	if got != 412.5 {
		t.Fatalf("duration = %v, want 412.5", got)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/driving/38.750000,9.020000;") {
		t.Fatalf("path = %q, want lon-lat ordered route query", gotPath)
	}
}

func TestOSRMNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"NoRoute","routes":[]}`)
	}))
	defer srv.Close()

	if _, err := NewOSRMClient(srv.URL).EstimateSeconds(models.Coord{}, models.Coord{Lat: 1, Lon: 1}); err == nil {
		t.Fatal("expected error for NoRoute response")
	}
}

func TestOSRMBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewOSRMClient(srv.URL).EstimateSeconds(models.Coord{}, models.Coord{Lat: 1, Lon: 1}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

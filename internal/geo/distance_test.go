package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{"same point", 27.70, 85.32, 27.70, 85.32, 0, 1e-9},
		{"kathmandu to pokhara", 27.7172, 85.3240, 28.2096, 83.9856, 142.39, 0.5},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 343.5, 1.5},
		{"one degree of latitude", 0, 0, 1, 0, 111.19, 0.05},
		{"small hop", 27.70, 85.32, 27.701, 85.321, 0.148, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Fatalf("got=%.4f want=%.4f±%.3f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Point{Lat: 35.6812, Lon: 139.7671}
	b := Point{Lat: 34.7025, Lon: 135.4959}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("asymmetric: %v vs %v", d1, d2)
	}
}

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.1, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		if got := ValidCoordinates(tt.lat, tt.lon); got != tt.want {
			t.Fatalf("ValidCoordinates(%v,%v)=%v want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := Point{Lat: 27.70, Lon: 85.32}
	box := BoundingBox(center, 10)
	if len(box.Lon) != 1 {
		t.Fatalf("lon ranges=%v", box.Lon)
	}
	edge := []Point{
		{Lat: box.MinLat, Lon: center.Lon},
		{Lat: box.MaxLat, Lon: center.Lon},
		{Lat: center.Lat, Lon: box.Lon[0].Min},
		{Lat: center.Lat, Lon: box.Lon[0].Max},
	}
	for _, p := range edge {
		if d := Distance(center, p); d < 9.9 {
			t.Fatalf("box edge %v only %.3f km from center", p, d)
		}
	}
}

func TestBoundingBoxWrapsAntimeridian(t *testing.T) {
	tests := []struct {
		name   string
		center Point
		across Point
	}{
		{"east of the line", Point{Lat: -17.80, Lon: 179.95}, Point{Lat: -17.80, Lon: -179.95}},
		{"west of the line", Point{Lat: 65.00, Lon: -179.98}, Point{Lat: 65.00, Lon: 179.90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := Distance(tt.center, tt.across); d > 20 {
				t.Fatalf("fixture too far apart: %.2f km", d)
			}
			box := BoundingBox(tt.center, 20)
			if len(box.Lon) != 2 {
				t.Fatalf("want two lon ranges, got %v", box.Lon)
			}
			for _, r := range box.Lon {
				if r.Min < -180 || r.Max > 180 || r.Min > r.Max {
					t.Fatalf("bad range %+v", r)
				}
			}
			if !box.Contains(tt.center) || !box.Contains(tt.across) {
				t.Fatalf("box %+v misses a point within radius", box)
			}
			if box.Contains(Point{Lat: tt.center.Lat, Lon: 0}) {
				t.Fatal("box should not span the whole globe")
			}
		})
	}
}

func TestBoundingBoxNearPoleSpansAllLongitudes(t *testing.T) {
	box := BoundingBox(Point{Lat: 89.95, Lon: 10}, 20)
	if box.MaxLat != 90 {
		t.Fatalf("max lat=%v", box.MaxLat)
	}
	if len(box.Lon) != 1 || box.Lon[0].Min != -180 || box.Lon[0].Max != 180 {
		t.Fatalf("lon ranges=%v", box.Lon)
	}
}

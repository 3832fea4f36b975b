package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether p lies within [-90,90] x [-180,180].
func (p Point) Valid() bool {
	return ValidCoordinates(p.Lat, p.Lon)
}

func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceKm returns the great-circle distance between two points using the
// haversine formula. Inputs are not validated.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := degreesToRadians(lat1)
	rlat2 := degreesToRadians(lat2)
	dlat := rlat2 - rlat1
	dlon := degreesToRadians(lon2 - lon1)

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func Distance(a, b Point) float64 {
	return DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// LonRange is an inclusive longitude interval with Min <= Max.
type LonRange struct {
	Min, Max float64
}

// Box is a lat/lon range prefilter. Lon holds two ranges when the box
// crosses the antimeridian.
type Box struct {
	MinLat, MaxLat float64
	Lon            []LonRange
}

func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	for _, r := range b.Lon {
		if p.Lon >= r.Min && p.Lon <= r.Max {
			return true
		}
	}
	return false
}

// BoundingBox returns the box enclosing a circle of radiusKm around p,
// suitable for an indexed range prefilter before an exact distance check.
// Longitudes wrap at +-180; a circle reaching a pole spans every longitude.
func BoundingBox(p Point, radiusKm float64) Box {
	dLat := radiusKm / 111.32
	b := Box{
		MinLat: math.Max(p.Lat-dLat, -90),
		MaxLat: math.Min(p.Lat+dLat, 90),
	}

	cosLat := math.Cos(degreesToRadians(p.Lat))
	if cosLat < 1e-6 || b.MinLat == -90 || b.MaxLat == 90 {
		b.Lon = []LonRange{{Min: -180, Max: 180}}
		return b
	}
	dLon := radiusKm / (111.32 * cosLat)
	if dLon >= 180 {
		b.Lon = []LonRange{{Min: -180, Max: 180}}
		return b
	}
	minLon, maxLon := p.Lon-dLon, p.Lon+dLon
	switch {
	case minLon < -180:
		b.Lon = []LonRange{{Min: -180, Max: maxLon}, {Min: minLon + 360, Max: 180}}
	case maxLon > 180:
		b.Lon = []LonRange{{Min: -180, Max: maxLon - 360}, {Min: minLon, Max: 180}}
	default:
		b.Lon = []LonRange{{Min: minLon, Max: maxLon}}
	}
	return b
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

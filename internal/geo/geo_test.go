package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var coimbatore = Coordinates{Latitude: 11.0168, Longitude: 76.9558}

func TestDistanceKm_Symmetric(t *testing.T) {
	pairs := [][2]Coordinates{
		{coimbatore, {Latitude: 11.0500, Longitude: 76.9000}},
		{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 1}},
		{{Latitude: 51.5074, Longitude: -0.1278}, {Latitude: 48.8566, Longitude: 2.3522}},
		{{Latitude: -33.8688, Longitude: 151.2093}, {Latitude: 35.6762, Longitude: 139.6503}},
	}
	for _, p := range pairs {
		ab := DistanceKm(p[0], p[1])
		ba := DistanceKm(p[1], p[0])
		assert.Equal(t, ab, ba)
		assert.InDelta(t, 0, math.Abs(ab*10-math.Round(ab*10)), 1e-9, "not rounded to 1 decimal: %v", ab)
	}
}

func TestDistanceKm_KnownValues(t *testing.T) {
	assert.Equal(t, 0.0, DistanceKm(coimbatore, coimbatore))
	// one degree of longitude on the equator
	assert.Equal(t, 111.2, DistanceKm(Coordinates{0, 0}, Coordinates{0, 1}))
	// London - Paris
	assert.InDelta(t, 343.6, DistanceKm(
		Coordinates{Latitude: 51.5074, Longitude: -0.1278},
		Coordinates{Latitude: 48.8566, Longitude: 2.3522},
	), 0.5)
}

func TestIsWithinRadius_BoundaryInclusive(t *testing.T) {
	sevenKmNorth := Coordinates{Latitude: coimbatore.Latitude + 7.0/kmPerDegree, Longitude: coimbatore.Longitude}
	assert.Equal(t, 7.0, DistanceKm(coimbatore, sevenKmNorth))
	assert.True(t, IsWithinRadius(coimbatore, sevenKmNorth, 7))
	assert.False(t, IsWithinRadius(coimbatore, sevenKmNorth, 6.9))
}

func TestFormatDistance(t *testing.T) {
	cases := map[float64]string{
		0.85:  "850 m",
		0:     "0 m",
		0.999: "999 m",
		1:     "1.0 km",
		7.0:   "7.0 km",
		12.34: "12.3 km",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDistance(in), "FormatDistance(%v)", in)
	}
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, coimbatore.Valid())
	assert.False(t, Coordinates{Latitude: 91}.Valid())
	assert.False(t, Coordinates{Longitude: -181}.Valid())
	assert.False(t, Coordinates{Latitude: math.NaN()}.Valid())
	assert.False(t, Coordinates{Longitude: math.Inf(1)}.Valid())
}

const kmPerDegree = earthRadiusKm * math.Pi / 180

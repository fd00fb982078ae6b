package constraints

import (
	"math"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in kilometres
func HaversineKm(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceKm returns the distance from a referee's home to a game, and false when either
// side has no coordinates
func DistanceKm(referee *models.Referee, game *models.Game) (float64, bool) {
	if referee.Home == nil || game.Coordinates == nil {
		return 0, false
	}
	return HaversineKm(*referee.Home, *game.Coordinates), true
}

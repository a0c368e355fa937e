package geo

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/meshworks/radio-orchestrator/model"
)

const degToRad = math.Pi / 180

// ECEF converts geographic coordinates to Earth-centered Earth-fixed
// positions, for deployments whose motion sources already work in ECEF.
// The sidereal angle is pinned to a fixed epoch so the transform stays
// deterministic across a run.
type ECEF struct {
	jday float64
	gmst float64

	// Scale is meters per local coordinate unit; zero means 1.
	Scale float64
}

// NewECEF constructs an ECEF transform pinned to the given epoch.
func NewECEF(epoch time.Time) *ECEF {
	year, month, day := epoch.Date()
	hour, min, sec := epoch.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return &ECEF{jday: jd, gmst: satellite.ThetaG_JD(jd), Scale: 1}
}

func (e *ECEF) scale() float64 {
	if e.Scale == 0 {
		return 1
	}
	return e.Scale
}

// ToXYZ maps lat/lon/alt onto ECEF coordinates in local units.
// go-satellite works in kilometres and radians; events carry degrees and
// meters.
func (e *ECEF) ToXYZ(p model.GeoPoint) (float64, float64, float64) {
	obs := satellite.LatLong{
		Latitude:  p.Lat * degToRad,
		Longitude: p.Lon * degToRad,
	}
	eci := satellite.LLAToECI(obs, p.Alt/1000.0, e.jday)
	ecef := satellite.ECIToECEF(eci, e.gmst)

	const kmToM = 1000.0
	s := e.scale()
	return ecef.X * kmToM / s, ecef.Y * kmToM / s, ecef.Z * kmToM / s
}

// ToGeo maps local ECEF coordinates back to lat/lon/alt. The ECEF to ECI
// step is the inverse sidereal rotation of ECIToECEF.
func (e *ECEF) ToGeo(x, y, z float64) model.GeoPoint {
	s := e.scale()
	ex := x * s / 1000.0
	ey := y * s / 1000.0
	ez := z * s / 1000.0

	sin, cos := math.Sincos(e.gmst)
	eci := satellite.Vector3{
		X: ex*cos - ey*sin,
		Y: ex*sin + ey*cos,
		Z: ez,
	}
	alt, _, ll := satellite.ECIToLLA(eci, e.gmst)
	return model.GeoPoint{
		Lat: ll.Latitude / degToRad,
		Lon: ll.Longitude / degToRad,
		Alt: alt * 1000.0,
	}
}

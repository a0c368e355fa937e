// Package geo converts between the geographic coordinates carried by
// location events and the emulation's local coordinate space.
package geo

import (
	"math"

	"github.com/meshworks/radio-orchestrator/model"
)

// metersPerDegree is the approximate ground distance of one degree of
// latitude at the Earth's surface.
const metersPerDegree = 111320.0

// Transform maps geographic coordinates onto the local coordinate space
// and back.
type Transform interface {
	ToXYZ(p model.GeoPoint) (x, y, z float64)
	ToGeo(x, y, z float64) model.GeoPoint
}

// Planar is the default transform: an equirectangular projection around a
// reference point, with a configurable scale of meters per local unit.
// X grows eastward, Y grows southward (screen convention), Z is altitude
// above the reference.
type Planar struct {
	RefLat float64
	RefLon float64
	RefAlt float64

	// Scale is meters per local coordinate unit; zero means 1.
	Scale float64
}

// NewPlanar constructs a planar transform around the given reference
// point with a 1:1 scale.
func NewPlanar(refLat, refLon, refAlt float64) *Planar {
	return &Planar{RefLat: refLat, RefLon: refLon, RefAlt: refAlt, Scale: 1}
}

func (p *Planar) scale() float64 {
	if p.Scale == 0 {
		return 1
	}
	return p.Scale
}

func (p *Planar) ToXYZ(pt model.GeoPoint) (float64, float64, float64) {
	s := p.scale()
	x := (pt.Lon - p.RefLon) * metersPerDegree * math.Cos(p.RefLat*math.Pi/180) / s
	y := (p.RefLat - pt.Lat) * metersPerDegree / s
	z := (pt.Alt - p.RefAlt) / s
	return x, y, z
}

func (p *Planar) ToGeo(x, y, z float64) model.GeoPoint {
	s := p.scale()
	return model.GeoPoint{
		Lat: p.RefLat - y*s/metersPerDegree,
		Lon: p.RefLon + x*s/(metersPerDegree*math.Cos(p.RefLat*math.Pi/180)),
		Alt: p.RefAlt + z*s,
	}
}

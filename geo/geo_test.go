package geo

import (
	"math"
	"testing"
	"time"

	"github.com/meshworks/radio-orchestrator/model"
)

func TestPlanarRoundTrip(t *testing.T) {
	p := NewPlanar(47.5, 19.0, 100)

	pt := model.GeoPoint{Lat: 47.51, Lon: 19.02, Alt: 250}
	x, y, z := p.ToXYZ(pt)
	back := p.ToGeo(x, y, z)

	if math.Abs(back.Lat-pt.Lat) > 1e-9 {
		t.Errorf("lat round trip drifted: %v vs %v", back.Lat, pt.Lat)
	}
	if math.Abs(back.Lon-pt.Lon) > 1e-9 {
		t.Errorf("lon round trip drifted: %v vs %v", back.Lon, pt.Lon)
	}
	if math.Abs(back.Alt-pt.Alt) > 1e-9 {
		t.Errorf("alt round trip drifted: %v vs %v", back.Alt, pt.Alt)
	}
}

func TestPlanarAxes(t *testing.T) {
	p := NewPlanar(0, 0, 0)

	// East of the reference is positive X.
	x, _, _ := p.ToXYZ(model.GeoPoint{Lat: 0, Lon: 0.001})
	if x <= 0 {
		t.Errorf("expected positive X east of reference, got %v", x)
	}
	// South of the reference is positive Y (screen convention).
	_, y, _ := p.ToXYZ(model.GeoPoint{Lat: -0.001, Lon: 0})
	if y <= 0 {
		t.Errorf("expected positive Y south of reference, got %v", y)
	}
	// Altitude above the reference is positive Z.
	_, _, z := p.ToXYZ(model.GeoPoint{Lat: 0, Lon: 0, Alt: 42})
	if z != 42 {
		t.Errorf("expected Z=42, got %v", z)
	}
}

func TestPlanarScale(t *testing.T) {
	p := NewPlanar(0, 0, 0)
	p.Scale = 10

	_, _, z := p.ToXYZ(model.GeoPoint{Alt: 100})
	if z != 10 {
		t.Errorf("expected scaled Z=10, got %v", z)
	}

	back := p.ToGeo(0, 0, 10)
	if math.Abs(back.Alt-100) > 1e-9 {
		t.Errorf("expected altitude 100 back, got %v", back.Alt)
	}
}

func TestPlanarZeroScaleMeansOne(t *testing.T) {
	p := &Planar{}
	_, _, z := p.ToXYZ(model.GeoPoint{Alt: 7})
	if z != 7 {
		t.Errorf("expected zero scale to behave as 1, got %v", z)
	}
}

func TestECEFRoundTrip(t *testing.T) {
	e := NewECEF(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	pt := model.GeoPoint{Lat: 47.51, Lon: 19.02, Alt: 250}
	x, y, z := e.ToXYZ(pt)
	back := e.ToGeo(x, y, z)

	if math.Abs(back.Lat-pt.Lat) > 1e-6 {
		t.Errorf("lat round trip drifted: %v vs %v", back.Lat, pt.Lat)
	}
	if math.Abs(back.Lon-pt.Lon) > 1e-6 {
		t.Errorf("lon round trip drifted: %v vs %v", back.Lon, pt.Lon)
	}
	if math.Abs(back.Alt-pt.Alt) > 1.0 {
		t.Errorf("alt round trip drifted: %v vs %v", back.Alt, pt.Alt)
	}
}

func TestECEFDeterministicAndScaled(t *testing.T) {
	epoch := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	pt := model.GeoPoint{Lat: 10, Lon: 20, Alt: 0}

	a := NewECEF(epoch)
	b := NewECEF(epoch)
	ax, ay, az := a.ToXYZ(pt)
	bx, by, bz := b.ToXYZ(pt)
	if ax != bx || ay != by || az != bz {
		t.Errorf("same epoch must give identical coordinates: (%v %v %v) vs (%v %v %v)",
			ax, ay, az, bx, by, bz)
	}

	// At sea level the position sits roughly one Earth radius from the
	// center.
	r := math.Sqrt(ax*ax + ay*ay + az*az)
	if r < 6.3e6 || r > 6.4e6 {
		t.Errorf("expected roughly one Earth radius in meters, got %v", r)
	}

	scaled := NewECEF(epoch)
	scaled.Scale = 1000
	sx, sy, sz := scaled.ToXYZ(pt)
	if math.Abs(sx*1000-ax) > 1e-6 || math.Abs(sy*1000-ay) > 1e-6 || math.Abs(sz*1000-az) > 1e-6 {
		t.Errorf("scale must divide coordinates: (%v %v %v) vs (%v %v %v)", sx, sy, sz, ax, ay, az)
	}
}

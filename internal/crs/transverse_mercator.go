package crs

import (
	"math"

	"github.com/paulmach/orb"
)

// GRS80 ellipsoid, used by ETRF2000-PL.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// TransverseMercator holds the parameters of a Gauss-Krüger style projection
// on the GRS80 ellipsoid with latitude of origin 0. Series follow Snyder,
// "Map Projections: A Working Manual", §8.
type TransverseMercator struct {
	CentralMeridian float64 // degrees
	ScaleFactor     float64
	FalseEasting    float64
	FalseNorthing   float64
}

// Frame wraps the projection as a registry frame.
func (tm TransverseMercator) Frame(id, description string) Frame {
	return Frame{
		ID:             id,
		Description:    description,
		ToGeographic:   tm.Inverse,
		FromGeographic: tm.Forward,
	}
}

func ellipsoid() (e2, ep2 float64) {
	e2 = grs80F * (2 - grs80F)
	ep2 = e2 / (1 - e2)
	return e2, ep2
}

func meridianArc(phi, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return grs80A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// Forward maps lon/lat degrees to easting/northing metres.
func (tm TransverseMercator) Forward(p orb.Point) orb.Point {
	e2, ep2 := ellipsoid()
	phi := p.Lat() * math.Pi / 180
	dl := (p.Lon() - tm.CentralMeridian) * math.Pi / 180

	sin, cos := math.Sin(phi), math.Cos(phi)
	n := grs80A / math.Sqrt(1-e2*sin*sin)
	t := math.Tan(phi) * math.Tan(phi)
	c := ep2 * cos * cos
	a := dl * cos
	m := meridianArc(phi, e2)

	x := tm.ScaleFactor * n * (a +
		(1-t+c)*math.Pow(a, 3)/6 +
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120)
	y := tm.ScaleFactor * (m + n*math.Tan(phi)*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))

	return orb.Point{x + tm.FalseEasting, y + tm.FalseNorthing}
}

// Inverse maps easting/northing metres to lon/lat degrees.
func (tm TransverseMercator) Inverse(p orb.Point) orb.Point {
	e2, ep2 := ellipsoid()
	x := p[0] - tm.FalseEasting
	y := p[1] - tm.FalseNorthing

	m := y / tm.ScaleFactor
	mu := m / (grs80A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sin(phi1), math.Cos(phi1)
	c1 := ep2 * cos1 * cos1
	t1 := math.Tan(phi1) * math.Tan(phi1)
	n1 := grs80A / math.Sqrt(1-e2*sin1*sin1)
	r1 := grs80A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * tm.ScaleFactor)

	phi := phi1 - (n1*math.Tan(phi1)/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lambda := (d - (1+2*t1+c1)*math.Pow(d, 3)/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos1

	return orb.Point{tm.CentralMeridian + lambda*180/math.Pi, phi * 180 / math.Pi}
}

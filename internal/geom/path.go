// Package geom generates guide paths and distance metrics for tracing
// exercises. All functions are pure; positions are in meters, world frame.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Default path generation parameters.
const (
	DefaultSpacing   = 0.001 // meters between interpolated guide points
	DefaultMaxPoints = 1000
)

// worldUp is the reference axis used to build a lateral offset direction.
var worldUp = r3.Vec{X: 0, Y: 0, Z: 1}

// fallbackAxis replaces worldUp when the path direction is nearly vertical,
// where cross(dir, up) would degenerate.
var fallbackAxis = r3.Vec{X: 1, Y: 0, Z: 0}

// Dist returns the Euclidean distance between two points.
func Dist(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// Lerp linearly interpolates between a and b at parameter t in [0, 1].
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// GenerateStraightPath returns an ordered point sequence from start to end
// with at most spacing between consecutive points. The first element is
// exactly start and the last is snapped to exactly end. A degenerate
// zero-length path yields the single point start.
func GenerateStraightPath(start, end r3.Vec, spacing float64, maxPoints int) []r3.Vec {
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	if maxPoints < 2 {
		maxPoints = DefaultMaxPoints
	}

	length := Dist(start, end)
	if length == 0 {
		return []r3.Vec{start}
	}

	steps := int(math.Floor(length / spacing))
	if steps > maxPoints {
		steps = maxPoints
	}
	if steps < 1 {
		return []r3.Vec{start, end}
	}

	dir := r3.Scale(1/length, r3.Sub(end, start))
	points := make([]r3.Vec, 0, steps+1)
	for i := 0; i <= steps; i++ {
		points = append(points, r3.Add(start, r3.Scale(float64(i)*spacing, dir)))
	}

	// Snap the final sample onto the endpoint so repeated trials and
	// deviation scoring target the exact frozen end position.
	points[len(points)-1] = end
	return points
}

// GenerateZigzagPath returns an ordered point sequence from start to end with
// a sinusoidal lateral offset. The offset is forced to zero at both endpoints
// so the path lands exactly on start and end regardless of amplitude or
// frequency. A non-positive frequency degenerates to a straight line.
func GenerateZigzagPath(start, end r3.Vec, amplitude, frequency, spacing float64, maxPoints int) []r3.Vec {
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	if maxPoints < 2 {
		maxPoints = DefaultMaxPoints
	}

	length := Dist(start, end)
	if length == 0 {
		return []r3.Vec{start}
	}

	segments := int(math.Floor(length / spacing))
	if segments > maxPoints-1 {
		segments = maxPoints - 1
	}
	if segments < 1 {
		// Too short to subdivide; a straight two-point path avoids a
		// zero division in the sine argument below.
		return []r3.Vec{start, end}
	}

	if frequency <= 0 {
		return GenerateStraightPath(start, end, spacing, maxPoints)
	}

	lateral := lateralAxis(r3.Scale(1/length, r3.Sub(end, start)))

	points := make([]r3.Vec, 0, segments+1)
	for i := 0; i <= segments; i++ {
		t := float64(i) / float64(segments)
		base := Lerp(start, end, t)

		if i == 0 || i == segments {
			// Endpoints are exact, never offset.
			points = append(points, base)
			continue
		}

		offset := amplitude * math.Sin(float64(i)*frequency*math.Pi/float64(segments))
		points = append(points, r3.Add(base, r3.Scale(offset, lateral)))
	}
	return points
}

// lateralAxis returns a unit vector perpendicular to the unit path direction
// and to a stable up reference. When the direction is nearly parallel to
// worldUp, a fallback axis is used to keep the cross product well defined.
func lateralAxis(dir r3.Vec) r3.Vec {
	up := worldUp
	if math.Abs(r3.Dot(dir, up)) > 0.99 {
		up = fallbackAxis
	}
	return r3.Unit(r3.Cross(dir, up))
}

// PointToSegmentDistance returns the minimum Euclidean distance from point p
// to the line segment [a, b]. A degenerate segment collapses to the distance
// from p to a.
func PointToSegmentDistance(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	len2 := r3.Norm2(ab)
	if len2 == 0 {
		return Dist(p, a)
	}

	t := r3.Dot(r3.Sub(p, a), ab) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Dist(p, r3.Add(a, r3.Scale(t, ab)))
}

package kinematic

// This package includes the vector type shared by table state, cue poses
// and the wire codecs.

import (
	"math"
)

// Vector is a point or direction in table-local space.
// Y is up; balls at rest lie on the Y=0 plane.
type Vector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Zero is the zero vector.
var Zero = Vector{}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Length returns the euclidean length of v.
func (v Vector) Length() float64 {
	return math.Sqrt(float64(v.X)*float64(v.X) + float64(v.Y)*float64(v.Y) + float64(v.Z)*float64(v.Z))
}

// PlanarDistance returns the distance between v and o projected on the table plane.
func (v Vector) PlanarDistance(o Vector) float64 {
	dx := float64(v.X - o.X)
	dz := float64(v.Z - o.Z)
	return math.Sqrt(dx*dx + dz*dz)
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

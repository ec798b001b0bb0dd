package coord

// Point is a machine position in engine units.
type Point struct{ X, Y, Z float64 }

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}


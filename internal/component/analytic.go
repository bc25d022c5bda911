package component

import "context"

// Paraboloid evaluates f(x,y) = (x-3)^2 + xy + (y+4)^2 - 3.
func Paraboloid(x, y float64) float64 {
	return (x-3)*(x-3) + x*y + (y+4)*(y+4) - 3
}

// Parabola evaluates f(x) = (x-3)^2 - 3.
func Parabola(x float64) float64 {
	return (x-3)*(x-3) - 3
}

// Sum evaluates f(y,z) = y + z.
func Sum(y, z float64) float64 {
	return y + z
}

// analytic adapts a closed-form function to the Component interface.
type analytic struct {
	params  []Port
	unknown string
	fn      func(Values) float64
}

func (a *analytic) Params() []Port   { return a.params }
func (a *analytic) Unknowns() []Port { return []Port{{Name: a.unknown}} }

func (a *analytic) Solve(ctx context.Context, params Values) (Values, error) {
	return Values{a.unknown: a.fn(params)}, nil
}

// NewParaboloid returns the paraboloid component: params x, y; unknown f_xy.
func NewParaboloid() Component {
	return &analytic{
		params:  []Port{{Name: "x"}, {Name: "y"}},
		unknown: "f_xy",
		fn:      func(p Values) float64 { return Paraboloid(p["x"], p["y"]) },
	}
}

// NewParabola returns the parabola component: param x; unknown f_x.
func NewParabola() Component {
	return &analytic{
		params:  []Port{{Name: "x"}},
		unknown: "f_x",
		fn:      func(p Values) float64 { return Parabola(p["x"]) },
	}
}

// NewSum returns the sum component: params y, z; unknown f_yz.
func NewSum() Component {
	return &analytic{
		params:  []Port{{Name: "y"}, {Name: "z"}},
		unknown: "f_yz",
		fn:      func(p Values) float64 { return Sum(p["y"], p["z"]) },
	}
}

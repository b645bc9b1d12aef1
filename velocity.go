/*
Copyright © 2026 the isoadvect authors.
This file is part of isoadvect.

isoadvect is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

isoadvect is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with isoadvect.  If not, see <http://www.gnu.org/licenses/>.
*/

package isoadvect

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/spatial/r3"
)

// UniformVelocity is a velocity field that is the same everywhere.
type UniformVelocity r3.Vec

// Interpolate implements VelocityField.
func (u UniformVelocity) Interpolate(r3.Vec, int) r3.Vec { return r3.Vec(u) }

// CellVelocity is a velocity field that is constant within each cell.
type CellVelocity []r3.Vec

// Interpolate implements VelocityField.
func (u CellVelocity) Interpolate(_ r3.Vec, cell int) r3.Vec { return u[cell] }

// ExprVelocity is a velocity field whose components are expressions of
// the coordinates x, y and z and the time t, for example "-(y-0.5)".
type ExprVelocity struct {
	T float64 // time at which the field is evaluated

	exprs [3]*govaluate.EvaluableExpression
}

// NewExprVelocity parses the expressions for the three velocity
// components. Empty expressions are treated as zero.
func NewExprVelocity(u, v, w string) (*ExprVelocity, error) {
	e := new(ExprVelocity)
	for i, s := range []string{u, v, w} {
		if s == "" {
			s = "0"
		}
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(s, exprFunctions)
		if err != nil {
			return nil, fmt.Errorf("isoadvect: parsing velocity component %d %q: %w", i, s, err)
		}
		e.exprs[i] = expr
	}
	return e, nil
}

// Interpolate implements VelocityField. Expressions that fail to evaluate
// give a zero component; Validate reports those failures up front.
func (e *ExprVelocity) Interpolate(x r3.Vec, _ int) r3.Vec {
	v, _ := e.eval(x)
	return v
}

// SetTime sets the time at which the field is evaluated.
func (e *ExprVelocity) SetTime(t float64) { e.T = t }

// Validate evaluates the expressions at x and returns any error.
func (e *ExprVelocity) Validate(x r3.Vec) error {
	_, err := e.eval(x)
	return err
}

func (e *ExprVelocity) eval(x r3.Vec) (r3.Vec, error) {
	params := map[string]interface{}{"x": x.X, "y": x.Y, "z": x.Z, "t": e.T}
	var out [3]float64
	for i, expr := range e.exprs {
		v, err := evalFloat(expr, params)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("isoadvect: evaluating velocity component %d: %w", i, err)
		}
		out[i] = v
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}, nil
}

// FaceFluxes returns the volumetric flux U(x_f)·S_f through every face of m.
// Faces on either side of a processor patch sample U at the same point with
// opposite area vectors, so their fluxes are exact negatives.
func FaceFluxes(m Mesh, u VelocityField) []float64 {
	phi := make([]float64, m.NumFaces())
	for f := range phi {
		phi[f] = r3.Dot(u.Interpolate(m.FaceCentre(f), m.Owner(f)), m.FaceArea(f))
	}
	return phi
}

// CellField evaluates expr, a function of x, y and z, at the centre of
// every cell of m.
func CellField(m Mesh, expr string) ([]float64, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, exprFunctions)
	if err != nil {
		return nil, fmt.Errorf("isoadvect: parsing cell field expression %q: %w", expr, err)
	}
	out := make([]float64, m.NumCells())
	for c := range out {
		x := m.CellCentre(c)
		v, err := evalFloat(e, map[string]interface{}{"x": x.X, "y": x.Y, "z": x.Z})
		if err != nil {
			return nil, fmt.Errorf("isoadvect: evaluating %q in cell %d: %w", expr, c, err)
		}
		out[c] = v
	}
	return out, nil
}

var exprFunctions = map[string]govaluate.ExpressionFunction{
	"min": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("got %d arguments for function 'min', but needs 2", len(args))
		}
		a, aok := args[0].(float64)
		b, bok := args[1].(float64)
		if !aok || !bok {
			return nil, fmt.Errorf("function 'min' needs two numbers")
		}
		if a < b {
			return a, nil
		}
		return b, nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("got %d arguments for function 'max', but needs 2", len(args))
		}
		a, aok := args[0].(float64)
		b, bok := args[1].(float64)
		if !aok || !bok {
			return nil, fmt.Errorf("function 'max' needs two numbers")
		}
		if a > b {
			return a, nil
		}
		return b, nil
	},
}

func evalFloat(e *govaluate.EvaluableExpression, params map[string]interface{}) (float64, error) {
	v, err := e.Evaluate(params)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expression %q returned %T, not a number", e.String(), v)
}

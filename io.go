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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/floats"
)

// Outputter writes cell values computed from the simulation state.
//
// outputVariables maps the names of the output columns to expressions that
// define how each value is calculated. The expressions can use the model
// variables listed in ModelVariables and the functions in the default set
// or passed to NewOutputter.
type Outputter struct {
	w               io.Writer
	outputVariables map[string]string
	outputFunctions map[string]govaluate.ExpressionFunction
	exprs           map[string]*govaluate.EvaluableExpression
}

// ModelVariables are the per-cell variables available to output
// expressions.
var ModelVariables = []string{"alpha", "x", "y", "z", "volume", "cell"}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions. Default functions include:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'sum(x)' which sums a variable across all grid cells.
//
// 'min(a, b)' and 'max(a, b)'.
func NewOutputter(w io.Writer, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	funcs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("isoadvect: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			x, ok := arg[0].(float64)
			if !ok {
				return nil, fmt.Errorf("isoadvect: function 'exp' needs a number but got %T", arg[0])
			}
			return math.Exp(x), nil
		},
		"sum": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("isoadvect: got %d arguments for function 'sum', but needs 1", len(arg))
			}
			x, ok := arg[0].([]float64)
			if !ok {
				return nil, fmt.Errorf("isoadvect: function 'sum' needs a cell variable but got %T", arg[0])
			}
			return floats.Sum(x), nil
		},
	}
	for k, v := range exprFunctions {
		funcs[k] = v
	}
	for k, v := range outputFunctions {
		funcs[k] = v
	}
	if err := checkOutputNames(outputVariables); err != nil {
		return nil, err
	}
	o := &Outputter{
		w:               w,
		outputVariables: outputVariables,
		outputFunctions: funcs,
		exprs:           make(map[string]*govaluate.EvaluableExpression),
	}
	for name, expr := range outputVariables {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, funcs)
		if err != nil {
			return nil, fmt.Errorf("isoadvect: output variable %s: %w", name, err)
		}
		for _, v := range e.Vars() {
			if !isModelVariable(v) {
				return nil, fmt.Errorf("isoadvect: output variable %s uses unknown variable %q", name, v)
			}
		}
		o.exprs[name] = e
	}
	return o, nil
}

func isModelVariable(v string) bool {
	for _, m := range ModelVariables {
		if m == v {
			return true
		}
	}
	return false
}

// checkOutputNames makes sure output names can be used as column headers.
func checkOutputNames(o map[string]string) error {
	valid := regexp.MustCompile(`^[A-Za-z]\w*$`)
	for key := range o {
		if !valid.MatchString(key) {
			return fmt.Errorf("isoadvect: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// Results evaluates the output variables in every cell of the simulation.
func (o *Outputter) Results(s *Simulation) (map[string][]float64, error) {
	m := s.Mesh()
	alpha := s.Alpha()
	n := len(alpha)
	cols := map[string][]float64{
		"alpha":  alpha,
		"x":      make([]float64, n),
		"y":      make([]float64, n),
		"z":      make([]float64, n),
		"volume": make([]float64, n),
		"cell":   make([]float64, n),
	}
	for c := 0; c < n; c++ {
		x := m.CellCentre(c)
		cols["x"][c], cols["y"][c], cols["z"][c] = x.X, x.Y, x.Z
		cols["volume"][c] = m.CellVolume(c)
		cols["cell"][c] = float64(c)
	}

	out := make(map[string][]float64, len(o.exprs))
	for name, e := range o.exprs {
		vals := make([]float64, n)
		// Expressions that reduce a whole column, such as sum(alpha),
		// are evaluated once with the columns as parameters.
		if v, err := e.Evaluate(columnParams(cols)); err == nil {
			if f, ok := v.(float64); ok {
				for c := range vals {
					vals[c] = f
				}
				out[name] = vals
				continue
			}
		}
		params := make(map[string]interface{}, len(cols))
		for c := range vals {
			for k, col := range cols {
				params[k] = col[c]
			}
			v, err := evalFloat(e, params)
			if err != nil {
				return nil, fmt.Errorf("isoadvect: evaluating output variable %s in cell %d: %w", name, c, err)
			}
			vals[c] = v
		}
		out[name] = vals
	}
	return out, nil
}

func columnParams(cols map[string][]float64) map[string]interface{} {
	p := make(map[string]interface{}, len(cols))
	for k, v := range cols {
		p[k] = v
	}
	return p
}

// Output returns a function that writes the output variables of every
// cell to the Outputter's writer as CSV, with the columns in alphabetical
// order.
func (o *Outputter) Output() DomainManipulator {
	return func(_ context.Context, s *Simulation) error {
		results, err := o.Results(s)
		if err != nil {
			return err
		}
		vars := make([]string, 0, len(results))
		for v := range results {
			vars = append(vars, v)
		}
		sort.Strings(vars)

		w := csv.NewWriter(o.w)
		if err := w.Write(vars); err != nil {
			return fmt.Errorf("isoadvect: writing output: %w", err)
		}
		row := make([]string, len(vars))
		for c := range s.Alpha() {
			for i, v := range vars {
				row[i] = strconv.FormatFloat(results[v][c], 'g', -1, 64)
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("isoadvect: writing output: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("isoadvect: writing output: %w", err)
		}
		return nil
	}
}

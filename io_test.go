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
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"math"
	"reflect"
	"strconv"
	"testing"
)

func TestOutput(t *testing.T) {
	a, _ := newTestAdvector(t, column(t, 3), UniformVelocity{X: 1}, []float64{1, 0.5, 0})
	s := &Simulation{Advector: a}
	buf := new(bytes.Buffer)
	o, err := NewOutputter(buf, map[string]string{
		"alpha": "alpha",
		"x":     "x",
		"total": "sum(alpha)",
		"twice": "2 * alpha",
		"empty": "1 - alpha",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Output()(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	recs, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Fatalf("%d rows, want 4", len(recs))
	}
	wantHeader := []string{"alpha", "empty", "total", "twice", "x"}
	if !reflect.DeepEqual(recs[0], wantHeader) {
		t.Errorf("header %v, want %v", recs[0], wantHeader)
	}
	want := [][]float64{
		{1, 0, 1.5, 2, 0.5},
		{0.5, 0.5, 1.5, 1, 1.5},
		{0, 1, 1.5, 0, 2.5},
	}
	for i, row := range recs[1:] {
		for j, field := range row {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(v-want[i][j]) > testTolerance {
				t.Errorf("row %d, %s: %g, want %g", i, wantHeader[j], v, want[i][j])
			}
		}
	}
}

func TestOutputterErrors(t *testing.T) {
	for _, vars := range []map[string]string{
		{"bad name": "alpha"},
		{"pressure": "p"},
		{"broken": "alpha +"},
	} {
		if _, err := NewOutputter(io.Discard, vars, nil); err == nil {
			t.Errorf("%v should be an error", vars)
		}
	}
}

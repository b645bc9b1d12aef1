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
	"testing"
)

func TestSaveLoad(t *testing.T) {
	buf := bytes.NewBuffer([]byte{})

	alpha := []float64{1, 1, 0.5, 0, 0}
	a, _ := newTestAdvector(t, column(t, 5), UniformVelocity{X: 1}, alpha)
	d := &Simulation{
		Advector:     a,
		Dt:           0.25,
		RunFuncs:     []DomainManipulator{AdvectStep(), RunSteps(2)},
		CleanupFuncs: []DomainManipulator{Save(buf)},
	}
	if err := d.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	a2, _ := newTestAdvector(t, column(t, 5), UniformVelocity{X: 1}, make([]float64, 5))
	d2 := &Simulation{
		Advector:  a2,
		InitFuncs: []DomainManipulator{Load(buf)},
	}
	if err := d2.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d2.TimeIndex() != 2 || d2.Time != d.Time {
		t.Errorf("restored step %d at time %g, want step 2 at time %g", d2.TimeIndex(), d2.Time, d.Time)
	}
	for c, v := range d.Alpha() {
		if d2.Alpha()[c] != v {
			t.Errorf("cell %d: %g, want %g", c, d2.Alpha()[c], v)
		}
	}
	for f, v := range d.DVf() {
		if d2.DVf()[f] != v {
			t.Errorf("face %d: %g, want %g", f, d2.DVf()[f], v)
		}
	}
}

func TestLoadWrongMesh(t *testing.T) {
	buf := new(bytes.Buffer)
	a, _ := newTestAdvector(t, column(t, 3), UniformVelocity{X: 1}, make([]float64, 3))
	if err := Save(buf)(context.Background(), &Simulation{Advector: a}); err != nil {
		t.Fatal(err)
	}
	a2, _ := newTestAdvector(t, column(t, 4), UniformVelocity{X: 1}, make([]float64, 4))
	if err := Load(buf)(context.Background(), &Simulation{Advector: a2}); err == nil {
		t.Error("loading a snapshot of a different mesh should be an error")
	}
	if err := Load(new(bytes.Buffer))(context.Background(), &Simulation{Advector: a2}); err == nil {
		t.Error("loading an empty snapshot should be an error")
	}
}

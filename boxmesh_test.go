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
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxMeshTopology(t *testing.T) {
	spacing := r3.Vec{X: 0.5, Y: 2, Z: 1}
	m, err := NewBoxMesh(r3.Vec{X: -1}, spacing, 3, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumCells() != 24 {
		t.Errorf("%d cells", m.NumCells())
	}
	wantInternal := 2*2*4 + 3*1*4 + 3*2*3
	if m.NumInternalFaces() != wantInternal {
		t.Errorf("%d internal faces, want %d", m.NumInternalFaces(), wantInternal)
	}
	wantBoundary := 2 * (2*4 + 3*4 + 3*2)
	if n := m.NumFaces() - m.NumInternalFaces(); n != wantBoundary {
		t.Errorf("%d boundary faces, want %d", n, wantBoundary)
	}
	if len(m.Patches()) != 6 {
		t.Errorf("%d patches", len(m.Patches()))
	}

	for f := 0; f < m.NumFaces(); f++ {
		own := m.Owner(f)
		// Area vectors point away from the owner.
		d := r3.Sub(m.FaceCentre(f), m.CellCentre(own))
		if r3.Dot(d, m.FaceArea(f)) <= 0 {
			t.Errorf("face %d points into its owner", f)
		}
		if m.IsInternalFace(f) != (m.Neighbour(f) >= 0) {
			t.Errorf("face %d: internal=%v, neighbour %d", f, m.IsInternalFace(f), m.Neighbour(f))
		}
		if m.IsInternalFace(f) != (m.PatchOf(f) < 0) {
			t.Errorf("face %d: internal=%v, patch %d", f, m.IsInternalFace(f), m.PatchOf(f))
		}
	}

	for c := 0; c < m.NumCells(); c++ {
		if len(m.CellFaces(c)) != 6 {
			t.Errorf("cell %d has %d faces", c, len(m.CellFaces(c)))
		}
		if len(m.CellPoints(c)) != 8 {
			t.Errorf("cell %d has %d points", c, len(m.CellPoints(c)))
		}
		// The outward area vectors of a closed cell sum to zero.
		var s r3.Vec
		for _, f := range m.CellFaces(c) {
			if m.Owner(f) == c {
				s = r3.Add(s, m.FaceArea(f))
			} else {
				s = r3.Sub(s, m.FaceArea(f))
			}
		}
		if r3.Norm(s) > testTolerance {
			t.Errorf("cell %d: open by %v", c, s)
		}
		i, j, k := m.CellIndex(c)
		if m.cellID(i, j, k) != c {
			t.Errorf("cell %d: index (%d, %d, %d)", c, i, j, k)
		}
		lo, hi := m.CellBounds(c)
		if r3.Sub(hi, lo) != spacing {
			t.Errorf("cell %d: bounds %v to %v", c, lo, hi)
		}
	}
	if v := m.CellVolume(0); different(v, 1, testTolerance) {
		t.Errorf("cell volume %g", v)
	}
	if m.PatchByName("zmax") != 5 || m.PatchByName("inlet") != -1 {
		t.Error("patch lookup by name failed")
	}
}

func TestNewBoxMeshErrors(t *testing.T) {
	if _, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 0, 1, 1); err == nil {
		t.Error("zero cells should be an error")
	}
	if _, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: -1, Z: 1}, 1, 1, 1); err == nil {
		t.Error("negative spacing should be an error")
	}
}

func TestDecompose(t *testing.T) {
	spacing := r3.Vec{X: 1, Y: 1, Z: 1}
	parts, err := Decompose(r3.Vec{}, spacing, 5, 2, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if parts[0].Nx != 3 || parts[1].Nx != 2 {
		t.Errorf("slab widths %d and %d", parts[0].Nx, parts[1].Nx)
	}
	if parts[1].Offset != 3 || parts[1].Origin.X != 3 {
		t.Errorf("second slab at offset %d, origin %v", parts[1].Offset, parts[1].Origin)
	}
	for i, m := range parts {
		var proc []Patch
		for _, p := range m.Patches() {
			if p.Processor {
				proc = append(proc, p)
			}
		}
		if len(proc) != 1 || proc[0].NeighbourRank != 1-i || proc[0].Size != 2 {
			t.Fatalf("partition %d: processor patches %+v", i, proc)
		}
		// Both sides list the shared faces at the same points.
		other := parts[1-i]
		op := other.Patches()[other.PatchByName(fmt.Sprintf("procBoundary%dto%d", 1-i, i))]
		for lf := 0; lf < proc[0].Size; lf++ {
			a, b := m.FaceCentre(proc[0].Start+lf), other.FaceCentre(op.Start+lf)
			if r3.Norm(r3.Sub(a, b)) > testTolerance {
				t.Errorf("partition %d face %d at %v, other side at %v", i, lf, a, b)
			}
		}
	}
	if _, err := Decompose(r3.Vec{}, spacing, 2, 1, 1, 3); err == nil {
		t.Error("more parts than cell columns should be an error")
	}
}

func TestGather(t *testing.T) {
	spacing := r3.Vec{X: 1, Y: 1, Z: 1}
	whole, err := NewBoxMesh(r3.Vec{}, spacing, 5, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	parts, err := Decompose(r3.Vec{}, spacing, 5, 2, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	fields := make([][]float64, len(parts))
	for i, m := range parts {
		fields[i] = make([]float64, m.NumCells())
		for c := range fields[i] {
			x := m.CellCentre(c)
			fields[i][c] = x.X + 10*x.Y + 100*x.Z
		}
	}
	got, err := Gather(parts, fields)
	if err != nil {
		t.Fatal(err)
	}
	for c, v := range got {
		x := whole.CellCentre(c)
		if want := x.X + 10*x.Y + 100*x.Z; math.Abs(v-want) > testTolerance {
			t.Errorf("cell %d: %g, want %g", c, v, want)
		}
	}
	if _, err := Gather(parts, fields[:2]); err == nil {
		t.Error("missing field should be an error")
	}
	fields[1] = fields[1][:1]
	if _, err := Gather(parts, fields); err == nil {
		t.Error("short field should be an error")
	}
}

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

import "fmt"

// BoundaryConditions completes the volume fraction field on the domain
// boundary.
type BoundaryConditions interface {
	// Value returns the volume fraction carried into the domain through
	// boundary face face.
	Value(face int, alpha []float64) float64

	// Correct is called every time alpha has been updated.
	Correct(alpha []float64)
}

// ZeroGradient boundary conditions give every boundary face the volume
// fraction of the cell that owns it.
type ZeroGradient struct {
	Mesh Mesh
}

// Value implements BoundaryConditions.
func (z ZeroGradient) Value(face int, alpha []float64) float64 {
	return alpha[z.Mesh.Owner(face)]
}

// Correct implements BoundaryConditions.
func (ZeroGradient) Correct([]float64) {}

// FixedValue boundary conditions hold the volume fraction on the named
// patches at a fixed value. Faces on other patches are zero-gradient.
type FixedValue struct {
	mesh   Mesh
	values []float64 // per patch, used where fixed is set
	fixed  []bool
}

// NewFixedValue returns boundary conditions that fix the volume fraction
// on the patches named in values.
func NewFixedValue(m Mesh, values map[string]float64) (*FixedValue, error) {
	patches := m.Patches()
	fv := &FixedValue{
		mesh:   m,
		values: make([]float64, len(patches)),
		fixed:  make([]bool, len(patches)),
	}
	for name, v := range values {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("isoadvect: fixed volume fraction %g on patch %q is outside [0, 1]", v, name)
		}
		found := false
		for i, p := range patches {
			if p.Name == name {
				if p.Processor {
					return nil, fmt.Errorf("isoadvect: cannot fix the volume fraction on processor patch %q", name)
				}
				fv.values[i] = v
				fv.fixed[i] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("isoadvect: no boundary patch named %q", name)
		}
	}
	return fv, nil
}

// Value implements BoundaryConditions.
func (fv *FixedValue) Value(face int, alpha []float64) float64 {
	if p := fv.mesh.PatchOf(face); p >= 0 && fv.fixed[p] {
		return fv.values[p]
	}
	return alpha[fv.mesh.Owner(face)]
}

// Correct implements BoundaryConditions.
func (*FixedValue) Correct([]float64) {}

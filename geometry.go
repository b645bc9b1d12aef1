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

	"gonum.org/v1/gonum/spatial/r3"
)

// CellStatus is the outcome of cutting a cell at the iso-level that
// reproduces its volume fraction.
type CellStatus int

const (
	// Below means the whole cell lies below the iso-level, so it holds
	// none of the tracked phase.
	Below CellStatus = -1
	// Cut means the iso-surface crosses the cell.
	Cut CellStatus = 0
	// Above means the whole cell lies above the iso-level.
	Above CellStatus = 1
)

func (s CellStatus) String() string {
	switch s {
	case Below:
		return "below"
	case Cut:
		return "cut"
	case Above:
		return "above"
	}
	return "unknown"
}

// IsoSurface is the planar piece of interface reconstructed inside a cell.
type IsoSurface struct {
	// Level is the iso-value that reproduces the cell's volume fraction,
	// scaled to (0, 1) across the cell.
	Level float64

	// Centre is the centroid of the iso-face.
	Centre r3.Vec

	// Area is the area vector of the iso-face. It points out of the
	// tracked phase.
	Area r3.Vec
}

// Normal returns the unit normal of the iso-face and whether the face has
// a non-zero area.
func (s IsoSurface) Normal() (r3.Vec, bool) {
	mag := r3.Norm(s.Area)
	if mag == 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/mag, s.Area), true
}

// GeometryProvider reconstructs the interface inside cells and integrates
// the tracked-phase volume that crosses a face as the interface moves.
type GeometryProvider interface {
	// Prepare is called with the current volume fraction field before
	// any cell of the step is cut. On a partitioned mesh halo reaches the
	// cells across the processor patches, and every partition calls
	// Prepare at the same point of the step. halo is nil when only local
	// values may be used.
	Prepare(ctx context.Context, alpha []float64, halo Halo) error

	// CutCell finds the iso-surface inside cell that reproduces the
	// volume fraction alpha to within tol, using at most maxIter
	// iterations.
	CutCell(cell int, alpha, tol float64, maxIter int) (CellStatus, IsoSurface)

	// TimeIntegratedFaceFlux returns the tracked-phase volume carried
	// through face during dt by an iso-surface with centre x0 and unit
	// normal n0 that moves along n0 with speed un0. phi is the signed
	// volumetric flux through face and magSf its area. The result carries
	// the sign of phi and its magnitude never exceeds |phi|·dt.
	TimeIntegratedFaceFlux(face int, x0, n0 r3.Vec, un0, f0, dt, phi, magSf float64) float64
}

// Halo swaps values held on the faces of processor patches with the
// partitions on the other side. Exchange is collective: every partition
// of a domain calls it the same number of times with the same width.
type Halo interface {
	// Exchange sends width values for every boundary face and returns
	// the values sent by the other side for the same faces. Face f is at
	// (f-NumInternalFaces())*width in both slices. Entries of faces that
	// are not on a processor patch are zero in the result.
	Exchange(ctx context.Context, send []float64, width int) ([]float64, error)
}

// VelocityField samples the velocity at an arbitrary point in a cell.
type VelocityField interface {
	Interpolate(x r3.Vec, cell int) r3.Vec
}

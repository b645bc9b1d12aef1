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

import "gonum.org/v1/gonum/spatial/r3"

// Mesh is the topology and metric information the advection core needs
// from a finite-volume mesh. Faces are numbered with all internal faces
// first, followed by boundary faces grouped contiguously by patch.
// Face area vectors point from the owner cell into the neighbour cell,
// or out of the domain for boundary faces.
type Mesh interface {
	NumCells() int
	NumFaces() int
	NumInternalFaces() int

	// IsInternalFace reports whether face has a neighbour cell.
	IsInternalFace(face int) bool

	// Owner returns the cell that owns face.
	Owner(face int) int

	// Neighbour returns the neighbour cell of face, or -1 for
	// boundary faces.
	Neighbour(face int) int

	// CellFaces returns the faces bounding cell.
	CellFaces(cell int) []int

	// CellCells returns the cells that share an internal face with cell.
	CellCells(cell int) []int

	CellVolume(cell int) float64
	CellCentre(cell int) r3.Vec
	FaceCentre(face int) r3.Vec
	FaceArea(face int) r3.Vec
	FaceAreaMag(face int) float64

	// Patches returns the boundary patches of the mesh.
	Patches() []Patch

	// PatchOf returns the index into Patches of the patch holding
	// boundary face face, or -1 if face is internal.
	PatchOf(face int) int
}

// MovingMesh is implemented by meshes whose cell volumes change between
// time steps.
type MovingMesh interface {
	Mesh

	// Moving reports whether the mesh moved during the current step.
	Moving() bool

	// OldCellVolume returns the volume cell had at the start of the step.
	OldCellVolume(cell int) float64
}

// Patch is a contiguous group of boundary faces.
type Patch struct {
	Name  string
	Start int // index of the first face in the patch
	Size  int // number of faces in the patch

	// Processor is true if the patch joins this partition to another
	// partition of the same domain, in which case NeighbourRank is the
	// rank of the other partition. Both sides of a processor patch list
	// the shared faces in the same order.
	Processor     bool
	NeighbourRank int
}

// WhichFace returns the patch-local index of mesh face face.
func (p Patch) WhichFace(face int) int { return face - p.Start }

// Contains reports whether face belongs to the patch.
func (p Patch) Contains(face int) bool {
	return face >= p.Start && face < p.Start+p.Size
}

// netFlux returns the net volume leaving cell through its faces, counting
// dVf as positive on faces the cell owns and negative on faces where it is
// the neighbour.
func netFlux(m Mesh, dVf []float64, cell int) float64 {
	var dV float64
	for _, f := range m.CellFaces(cell) {
		if m.Owner(f) == cell {
			dV += dVf[f]
		} else {
			dV -= dVf[f]
		}
	}
	return dV
}

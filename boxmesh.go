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

	"gonum.org/v1/gonum/spatial/r3"
)

// BoxMesh is a structured mesh of identical axis-aligned hexahedral cells.
// It implements Mesh and additionally exposes the point connectivity needed
// to reconstruct planar interfaces inside its cells.
//
// A BoxMesh may be one slab of a larger block that has been split along
// the x axis by Decompose, in which case the faces on the split planes form
// processor patches.
type BoxMesh struct {
	Origin     r3.Vec // lower corner of the block held by this mesh
	Spacing    r3.Vec // cell edge lengths
	Nx, Ny, Nz int    // number of cells along each axis

	// Rank is the partition rank of this mesh, and Offset is the global
	// x index of its first cell column. GlobalNx is the number of cell
	// columns in the undecomposed block.
	Rank, Offset, GlobalNx int

	lowRank, highRank int

	nInternal  int
	owner      []int
	neighbour  []int
	faceArea   []r3.Vec
	faceCentre []r3.Vec
	facePoints [][]int
	patchOf    []int

	cellFaces  [][]int
	cellCells  [][]int
	cellPoints [][]int
	pointCells [][]int
	points     []r3.Vec

	patches []Patch
}

// BoxOption configures a BoxMesh.
type BoxOption func(*BoxMesh)

// WithProcessorNeighbours turns the low-x and high-x boundaries of the mesh
// into processor patches joined to partitions low and high. A negative rank
// leaves the corresponding boundary as a physical patch.
func WithProcessorNeighbours(rank, low, high int) BoxOption {
	return func(b *BoxMesh) {
		b.Rank = rank
		b.lowRank = low
		b.highRank = high
	}
}

// WithGlobalOffset records where the mesh sits within an undecomposed block
// of globalNx cell columns.
func WithGlobalOffset(offset, globalNx int) BoxOption {
	return func(b *BoxMesh) {
		b.Offset = offset
		b.GlobalNx = globalNx
	}
}

// NewBoxMesh creates a block of nx×ny×nz cells with lower corner origin and
// cell edge lengths spacing.
func NewBoxMesh(origin, spacing r3.Vec, nx, ny, nz int, opts ...BoxOption) (*BoxMesh, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("isoadvect: BoxMesh: cell counts (%d, %d, %d) must all be >0", nx, ny, nz)
	}
	if spacing.X <= 0 || spacing.Y <= 0 || spacing.Z <= 0 {
		return nil, fmt.Errorf("isoadvect: BoxMesh: spacing %v must be >0 in every direction", spacing)
	}
	b := &BoxMesh{
		Origin:   origin,
		Spacing:  spacing,
		Nx:       nx,
		Ny:       ny,
		Nz:       nz,
		GlobalNx: nx,
		lowRank:  -1,
		highRank: -1,
	}
	for _, o := range opts {
		o(b)
	}
	b.build()
	return b, nil
}

// Decompose splits an nx×ny×nz block into parts slabs along the x axis.
// Neighbouring slabs are joined by processor patches and slab p has rank p.
func Decompose(origin, spacing r3.Vec, nx, ny, nz, parts int) ([]*BoxMesh, error) {
	if parts < 1 || parts > nx {
		return nil, fmt.Errorf("isoadvect: Decompose: cannot split %d cell columns into %d parts", nx, parts)
	}
	meshes := make([]*BoxMesh, parts)
	offset := 0
	for p := 0; p < parts; p++ {
		n := nx / parts
		if p < nx%parts {
			n++
		}
		low, high := p-1, p+1
		if high == parts {
			high = -1
		}
		o := origin
		o.X += float64(offset) * spacing.X
		m, err := NewBoxMesh(o, spacing, n, ny, nz,
			WithProcessorNeighbours(p, low, high), WithGlobalOffset(offset, nx))
		if err != nil {
			return nil, err
		}
		meshes[p] = m
		offset += n
	}
	return meshes, nil
}

// cellID numbers cells with i varying fastest.
func (b *BoxMesh) cellID(i, j, k int) int { return i + b.Nx*(j+b.Ny*k) }

func (b *BoxMesh) pointID(i, j, k int) int { return i + (b.Nx+1)*(j+(b.Ny+1)*k) }

// CellIndex returns the local (i, j, k) indices of cell.
func (b *BoxMesh) CellIndex(cell int) (i, j, k int) {
	i = cell % b.Nx
	j = (cell / b.Nx) % b.Ny
	k = cell / (b.Nx * b.Ny)
	return
}

// GlobalCell returns the index cell would have in the undecomposed block.
func (b *BoxMesh) GlobalCell(cell int) int {
	i, j, k := b.CellIndex(cell)
	return i + b.Offset + b.GlobalNx*(j+b.Ny*k)
}

func (b *BoxMesh) build() {
	nx, ny, nz := b.Nx, b.Ny, b.Nz
	h := b.Spacing

	b.points = make([]r3.Vec, (nx+1)*(ny+1)*(nz+1))
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				b.points[b.pointID(i, j, k)] = r3.Add(b.Origin,
					r3.Vec{X: float64(i) * h.X, Y: float64(j) * h.Y, Z: float64(k) * h.Z})
			}
		}
	}

	nCells := nx * ny * nz
	b.cellFaces = make([][]int, nCells)
	b.cellCells = make([][]int, nCells)
	b.cellPoints = make([][]int, nCells)
	b.pointCells = make([][]int, len(b.points))
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				c := b.cellID(i, j, k)
				b.cellPoints[c] = []int{
					b.pointID(i, j, k), b.pointID(i+1, j, k),
					b.pointID(i+1, j+1, k), b.pointID(i, j+1, k),
					b.pointID(i, j, k+1), b.pointID(i+1, j, k+1),
					b.pointID(i+1, j+1, k+1), b.pointID(i, j+1, k+1),
				}
				for _, p := range b.cellPoints[c] {
					b.pointCells[p] = append(b.pointCells[p], c)
				}
			}
		}
	}

	ax := h.Y * h.Z
	ay := h.X * h.Z
	az := h.X * h.Y

	// Faces normal to x at point column i, spanning cell row (j, k).
	xFace := func(i, j, k int) []int {
		return []int{b.pointID(i, j, k), b.pointID(i, j+1, k), b.pointID(i, j+1, k+1), b.pointID(i, j, k+1)}
	}
	yFace := func(i, j, k int) []int {
		return []int{b.pointID(i, j, k), b.pointID(i, j, k+1), b.pointID(i+1, j, k+1), b.pointID(i+1, j, k)}
	}
	zFace := func(i, j, k int) []int {
		return []int{b.pointID(i, j, k), b.pointID(i+1, j, k), b.pointID(i+1, j+1, k), b.pointID(i, j+1, k)}
	}

	addFace := func(own, nei int, area r3.Vec, pts []int) {
		f := len(b.owner)
		b.owner = append(b.owner, own)
		b.neighbour = append(b.neighbour, nei)
		b.faceArea = append(b.faceArea, area)
		b.facePoints = append(b.facePoints, pts)
		var c r3.Vec
		for _, p := range pts {
			c = r3.Add(c, b.points[p])
		}
		b.faceCentre = append(b.faceCentre, r3.Scale(1/float64(len(pts)), c))
		b.cellFaces[own] = append(b.cellFaces[own], f)
		if nei >= 0 {
			b.cellFaces[nei] = append(b.cellFaces[nei], f)
			b.cellCells[own] = append(b.cellCells[own], nei)
			b.cellCells[nei] = append(b.cellCells[nei], own)
		}
	}

	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx-1; i++ {
				addFace(b.cellID(i, j, k), b.cellID(i+1, j, k), r3.Vec{X: ax}, xFace(i+1, j, k))
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny-1; j++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, j, k), b.cellID(i, j+1, k), r3.Vec{Y: ay}, yFace(i, j+1, k))
			}
		}
	}
	for k := 0; k < nz-1; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, j, k), b.cellID(i, j, k+1), r3.Vec{Z: az}, zFace(i, j, k+1))
			}
		}
	}
	b.nInternal = len(b.owner)

	addPatch := func(name string, nbrRank int, faces func()) {
		p := Patch{Name: name, Start: len(b.owner), NeighbourRank: -1}
		if nbrRank >= 0 {
			p.Name = fmt.Sprintf("procBoundary%dto%d", b.Rank, nbrRank)
			p.Processor = true
			p.NeighbourRank = nbrRank
		}
		faces()
		p.Size = len(b.owner) - p.Start
		b.patches = append(b.patches, p)
	}
	addPatch("xmin", b.lowRank, func() {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				addFace(b.cellID(0, j, k), -1, r3.Vec{X: -ax}, xFace(0, j, k))
			}
		}
	})
	addPatch("xmax", b.highRank, func() {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				addFace(b.cellID(nx-1, j, k), -1, r3.Vec{X: ax}, xFace(nx, j, k))
			}
		}
	})
	addPatch("ymin", -1, func() {
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, 0, k), -1, r3.Vec{Y: -ay}, yFace(i, 0, k))
			}
		}
	})
	addPatch("ymax", -1, func() {
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, ny-1, k), -1, r3.Vec{Y: ay}, yFace(i, ny, k))
			}
		}
	})
	addPatch("zmin", -1, func() {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, j, 0), -1, r3.Vec{Z: -az}, zFace(i, j, 0))
			}
		}
	})
	addPatch("zmax", -1, func() {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				addFace(b.cellID(i, j, nz-1), -1, r3.Vec{Z: az}, zFace(i, j, nz))
			}
		}
	})

	b.patchOf = make([]int, len(b.owner))
	for f := range b.patchOf {
		b.patchOf[f] = -1
	}
	for pi, p := range b.patches {
		for f := p.Start; f < p.Start+p.Size; f++ {
			b.patchOf[f] = pi
		}
	}
}

// NumCells returns the number of cells in the mesh.
func (b *BoxMesh) NumCells() int { return len(b.cellFaces) }

// NumFaces returns the number of faces, internal and boundary.
func (b *BoxMesh) NumFaces() int { return len(b.owner) }

// NumInternalFaces returns the number of faces between two cells. Internal
// faces are numbered before all boundary faces.
func (b *BoxMesh) NumInternalFaces() int { return b.nInternal }

// IsInternalFace reports whether face joins two cells of this mesh.
func (b *BoxMesh) IsInternalFace(face int) bool { return face < b.nInternal }

// Owner returns the cell that face area vectors point out of.
func (b *BoxMesh) Owner(face int) int { return b.owner[face] }

// Neighbour returns the cell across an internal face from its owner.
// It is -1 for boundary faces.
func (b *BoxMesh) Neighbour(face int) int { return b.neighbour[face] }

// CellFaces returns the six faces of cell.
func (b *BoxMesh) CellFaces(cell int) []int { return b.cellFaces[cell] }

// CellCells returns the cells sharing a face with cell.
func (b *BoxMesh) CellCells(cell int) []int { return b.cellCells[cell] }

// FaceArea returns the area vector of face, normal to it and pointing
// out of its owner.
func (b *BoxMesh) FaceArea(face int) r3.Vec { return b.faceArea[face] }

// FaceCentre returns the centroid of face.
func (b *BoxMesh) FaceCentre(face int) r3.Vec { return b.faceCentre[face] }

// FaceAreaMag returns the area of face.
func (b *BoxMesh) FaceAreaMag(face int) float64 {
	return r3.Norm(b.faceArea[face])
}

// Patches returns the boundary patches in face order.
func (b *BoxMesh) Patches() []Patch { return b.patches }

// PatchOf returns the index into Patches of the patch holding face, or -1
// for internal faces.
func (b *BoxMesh) PatchOf(face int) int { return b.patchOf[face] }

// CellVolume returns the volume of a cell. All cells are the same size.
func (b *BoxMesh) CellVolume(int) float64 { return b.Spacing.X * b.Spacing.Y * b.Spacing.Z }

// CellCentre returns the centroid of cell.
func (b *BoxMesh) CellCentre(cell int) r3.Vec {
	lo, hi := b.CellBounds(cell)
	return r3.Scale(0.5, r3.Add(lo, hi))
}

// CellBounds returns the lower and upper corners of cell.
func (b *BoxMesh) CellBounds(cell int) (lo, hi r3.Vec) {
	i, j, k := b.CellIndex(cell)
	lo = r3.Add(b.Origin, r3.Vec{
		X: float64(i) * b.Spacing.X,
		Y: float64(j) * b.Spacing.Y,
		Z: float64(k) * b.Spacing.Z,
	})
	return lo, r3.Add(lo, b.Spacing)
}

// Points returns the coordinates of the mesh vertices.
func (b *BoxMesh) Points() []r3.Vec { return b.points }

// CellPoints returns the eight vertices of cell.
func (b *BoxMesh) CellPoints(cell int) []int { return b.cellPoints[cell] }

// PointCells returns the cells sharing vertex point.
func (b *BoxMesh) PointCells(point int) []int { return b.pointCells[point] }

// FacePoints returns the vertices of face in cyclic order.
func (b *BoxMesh) FacePoints(face int) []int { return b.facePoints[face] }

// PatchByName returns the index of the named patch, or -1.
func (b *BoxMesh) PatchByName(name string) int {
	for i, p := range b.patches {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Gather assembles per-partition cell fields into a single field over the
// undecomposed block.
func Gather(parts []*BoxMesh, fields [][]float64) ([]float64, error) {
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("isoadvect: Gather: %d meshes but %d fields", len(parts), len(fields))
	}
	var n int
	for i, m := range parts {
		if len(fields[i]) != m.NumCells() {
			return nil, fmt.Errorf("isoadvect: Gather: partition %d has %d cells but field length %d",
				i, m.NumCells(), len(fields[i]))
		}
		n += m.NumCells()
	}
	out := make([]float64, n)
	for i, m := range parts {
		for c, v := range fields[i] {
			out[m.GlobalCell(c)] = v
		}
	}
	return out, nil
}

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

// Package plic reconstructs piecewise-linear interfaces in meshes of
// axis-aligned hexahedral cells. Its Provider implements
// isoadvect.GeometryProvider: cell cuts are found analytically in each
// box and face fluxes are integrated exactly in time.
package plic

import (
	"context"
	"fmt"
	"math"

	"github.com/spatialmodel/isoadvect"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is a mesh of axis-aligned box cells with point connectivity.
// *isoadvect.BoxMesh implements it.
type Mesh interface {
	isoadvect.Mesh

	// CellBounds returns the lower and upper corners of cell.
	CellBounds(cell int) (lo, hi r3.Vec)

	Points() []r3.Vec
	CellPoints(cell int) []int
	PointCells(point int) []int

	// FacePoints returns the vertices of face in cyclic order.
	FacePoints(face int) []int
}

// Provider reconstructs planar interfaces from a volume fraction field.
// A Provider is not safe for concurrent use.
type Provider struct {
	mesh Mesh

	// gradAlpha selects normals from the smoothed cell gradient of the
	// volume fraction rather than from vertex-interpolated values.
	gradAlpha bool

	normals    []r3.Vec // per cell, pointing out of the tracked phase
	pointVals  []float64
	pointNorms []r3.Vec

	// pointProc lists the processor faces around each point. The cells
	// across them share the point but belong to another partition.
	pointProc [][]int

	// ghost holds, per boundary face, the volume fraction and centre of
	// the cell across it, and ghostNormals its interface normal. Only
	// processor faces are filled, and only when ghosts is set.
	ghosts       bool
	ghost        []float64
	ghostNormals []float64
	send         []float64

	// scratch for face clipping
	poly, clipped []r3.Vec
}

// ghostWidth is the number of values exchanged per face for the cell
// across it: the volume fraction and the three centre coordinates.
const ghostWidth = 4

// Option configures a Provider.
type Option func(*Provider)

// GradAlphaNormal makes the Provider take interface normals from the
// smoothed cell gradient of the volume fraction field.
func GradAlphaNormal(on bool) Option {
	return func(p *Provider) { p.gradAlpha = on }
}

// New returns a Provider for m.
func New(m Mesh, opts ...Option) *Provider {
	nb := m.NumFaces() - m.NumInternalFaces()
	p := &Provider{
		mesh:       m,
		normals:    make([]r3.Vec, m.NumCells()),
		pointVals:  make([]float64, len(m.Points())),
		pointNorms: make([]r3.Vec, len(m.Points())),
		pointProc:  make([][]int, len(m.Points())),
		send:       make([]float64, ghostWidth*nb),
	}
	for _, patch := range m.Patches() {
		if !patch.Processor {
			continue
		}
		for f := patch.Start; f < patch.Start+patch.Size; f++ {
			for _, pt := range m.FacePoints(f) {
				p.pointProc[pt] = append(p.pointProc[pt], f)
			}
		}
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Normal returns the interface normal computed for cell by the last call
// to Prepare. It is the zero vector where alpha has no gradient.
func (p *Provider) Normal(cell int) r3.Vec { return p.normals[cell] }

// Prepare implements isoadvect.GeometryProvider by computing the
// interface normal of every cell from alpha. With a halo, the cells across
// processor patches contribute to the values at the points they share
// with this partition, so normals match those of the undivided mesh.
func (p *Provider) Prepare(ctx context.Context, alpha []float64, halo isoadvect.Halo) error {
	p.ghosts = false
	if halo != nil {
		if err := p.exchangeCells(ctx, alpha, halo); err != nil {
			return err
		}
		p.ghosts = true
	}
	if p.gradAlpha {
		return p.gradientNormals(ctx, alpha, halo)
	}
	p.vertexNormals(alpha)
	return nil
}

// exchangeCells fetches the volume fraction and centre of the cell across
// every processor face.
func (p *Provider) exchangeCells(ctx context.Context, alpha []float64, halo isoadvect.Halo) error {
	m := p.mesh
	nInternal := m.NumInternalFaces()
	for b := 0; b < m.NumFaces()-nInternal; b++ {
		c := m.Owner(nInternal + b)
		x := m.CellCentre(c)
		v := p.send[ghostWidth*b : ghostWidth*(b+1)]
		v[0], v[1], v[2], v[3] = alpha[c], x.X, x.Y, x.Z
	}
	ghost, err := halo.Exchange(ctx, p.send, ghostWidth)
	if err != nil {
		return fmt.Errorf("plic: exchanging cells across processor patches: %w", err)
	}
	p.ghost = ghost
	return nil
}

// ghostCell returns the volume fraction and centre of the cell across
// processor face f.
func (p *Provider) ghostCell(f int) (float64, r3.Vec) {
	b := ghostWidth * (f - p.mesh.NumInternalFaces())
	return p.ghost[b], r3.Vec{X: p.ghost[b+1], Y: p.ghost[b+2], Z: p.ghost[b+3]}
}

// vertexNormals interpolates alpha to the mesh points and takes the
// normal in each cell from the least-squares gradient of its corner
// values.
func (p *Provider) vertexNormals(alpha []float64) {
	m := p.mesh
	pts := m.Points()
	for pi, x := range pts {
		var sum, wsum float64
		for _, c := range m.PointCells(pi) {
			w := 1 / r3.Norm(r3.Sub(x, m.CellCentre(c)))
			sum += w * alpha[c]
			wsum += w
		}
		if p.ghosts {
			for _, f := range p.pointProc[pi] {
				a, centre := p.ghostCell(f)
				w := 1 / r3.Norm(r3.Sub(x, centre))
				sum += w * a
				wsum += w
			}
		}
		if wsum > 0 {
			p.pointVals[pi] = sum / wsum
		}
	}
	for c := range p.normals {
		centre := m.CellCentre(c)
		var g, d2 r3.Vec
		for _, pi := range m.CellPoints(c) {
			d := r3.Sub(pts[pi], centre)
			v := p.pointVals[pi]
			g = r3.Add(g, r3.Vec{X: v * d.X, Y: v * d.Y, Z: v * d.Z})
			d2 = r3.Add(d2, r3.Vec{X: d.X * d.X, Y: d.Y * d.Y, Z: d.Z * d.Z})
		}
		g = r3.Vec{X: g.X / d2.X, Y: g.Y / d2.Y, Z: g.Z / d2.Z}
		p.normals[c] = unit(r3.Scale(-1, g))
	}
}

// gradientNormals takes the Gauss gradient of alpha in each cell,
// normalises it, then smooths the normals by averaging them to the mesh
// points and back. Processor faces are treated as internal faces when
// the cells across them are known; the smoothing then needs their normals
// too, which takes a second exchange.
func (p *Provider) gradientNormals(ctx context.Context, alpha []float64, halo isoadvect.Halo) error {
	m := p.mesh
	for c := range p.normals {
		var g r3.Vec
		for _, f := range m.CellFaces(c) {
			af := alpha[m.Owner(f)]
			if m.IsInternalFace(f) {
				af = 0.5 * (af + alpha[m.Neighbour(f)])
			} else if p.ghosts && m.Patches()[m.PatchOf(f)].Processor {
				a, _ := p.ghostCell(f)
				af = 0.5 * (af + a)
			}
			s := m.FaceArea(f)
			if m.Owner(f) != c {
				s = r3.Scale(-1, s)
			}
			g = r3.Add(g, r3.Scale(af, s))
		}
		p.normals[c] = unit(r3.Scale(-1/m.CellVolume(c), g))
	}

	if p.ghosts {
		nInternal := m.NumInternalFaces()
		send := p.send[:3*(m.NumFaces()-nInternal)]
		for b := range send[:len(send)/3] {
			n := p.normals[m.Owner(nInternal+b)]
			send[3*b], send[3*b+1], send[3*b+2] = n.X, n.Y, n.Z
		}
		normals, err := halo.Exchange(ctx, send, 3)
		if err != nil {
			return fmt.Errorf("plic: exchanging normals across processor patches: %w", err)
		}
		p.ghostNormals = normals
	}

	pts := m.Points()
	for pi, x := range pts {
		var n r3.Vec
		for _, c := range m.PointCells(pi) {
			w := 1 / r3.Norm(r3.Sub(x, m.CellCentre(c)))
			n = r3.Add(n, r3.Scale(w, p.normals[c]))
		}
		if p.ghosts {
			for _, f := range p.pointProc[pi] {
				_, centre := p.ghostCell(f)
				b := 3 * (f - m.NumInternalFaces())
				gn := r3.Vec{X: p.ghostNormals[b], Y: p.ghostNormals[b+1], Z: p.ghostNormals[b+2]}
				w := 1 / r3.Norm(r3.Sub(x, centre))
				n = r3.Add(n, r3.Scale(w, gn))
			}
		}
		p.pointNorms[pi] = unit(n)
	}
	for c := range p.normals {
		centre := m.CellCentre(c)
		var n r3.Vec
		for _, pi := range m.CellPoints(c) {
			w := 1 / r3.Norm(r3.Sub(pts[pi], centre))
			n = r3.Add(n, r3.Scale(w, p.pointNorms[pi]))
		}
		p.normals[c] = unit(n)
	}
	return nil
}

// zeroNorm is the length below which a vector has no direction.
const zeroNorm = 1e-12

func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < zeroNorm || math.IsNaN(n) {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

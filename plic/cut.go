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

package plic

import (
	"math"
	"sort"

	"github.com/spatialmodel/isoadvect"
	"gonum.org/v1/gonum/spatial/r3"
)

// CutCell implements isoadvect.GeometryProvider. It finds the plane with
// the cell's interface normal that leaves the fraction alpha of the cell
// on its tracked-phase side, to within tol, by bisection on the plane
// offset. If maxIter iterations are not enough the best offset found is
// used.
func (p *Provider) CutCell(cell int, alpha, tol float64, maxIter int) (isoadvect.CellStatus, isoadvect.IsoSurface) {
	switch {
	case alpha <= tol:
		return isoadvect.Below, isoadvect.IsoSurface{}
	case alpha >= 1-tol:
		return isoadvect.Above, isoadvect.IsoSurface{}
	}
	n := p.normals[cell]
	if n == (r3.Vec{}) {
		if alpha >= 0.5 {
			return isoadvect.Above, isoadvect.IsoSurface{}
		}
		return isoadvect.Below, isoadvect.IsoSurface{}
	}
	lo, hi := p.mesh.CellBounds(cell)
	h := r3.Sub(hi, lo)

	// In the unit cube the tracked phase is Σ m_i u_i <= s. Reflecting
	// the axes with m_i < 0 gives Σ a_i u_i <= t with a_i = |m_i| and
	// t = s - Σ_{m_i<0} m_i.
	m := [3]float64{n.X * h.X, n.Y * h.Y, n.Z * h.Z}
	var a [3]float64
	var shift, sum float64
	for i, v := range m {
		a[i] = math.Abs(v)
		sum += a[i]
		if v < 0 {
			shift += v
		}
	}
	t := solveLevel(a, sum, alpha, tol, maxIter)
	s := t + shift

	poly := planeBoxPolygon(lo, h, n, s)
	if len(poly) < 3 {
		if alpha >= 0.5 {
			return isoadvect.Above, isoadvect.IsoSurface{}
		}
		return isoadvect.Below, isoadvect.IsoSurface{}
	}
	centre, area := polygonCentreArea(poly, n)
	return isoadvect.Cut, isoadvect.IsoSurface{
		Level:  t / sum,
		Centre: centre,
		Area:   r3.Scale(area, n),
	}
}

// solveLevel returns the offset t in [0, sum] at which the fraction of the
// unit cube below Σ a_i u_i = t is alpha.
func solveLevel(a [3]float64, sum, alpha, tol float64, maxIter int) float64 {
	lo, hi := 0.0, sum
	best, bestErr := 0.5*sum, math.Inf(1)
	for it := 0; it < maxIter; it++ {
		t := 0.5 * (lo + hi)
		f := fraction(a, t)
		if e := math.Abs(f - alpha); e < bestErr {
			best, bestErr = t, e
		}
		if bestErr <= tol {
			break
		}
		if f < alpha {
			lo = t
		} else {
			hi = t
		}
	}
	return best
}

// flatRatio is the size, relative to the largest, below which a
// coefficient is treated as zero with a midpoint correction.
const flatRatio = 1e-5

// fraction returns the fraction of the unit cube where Σ a_i u_i <= t for
// a_i >= 0. It is the third divided difference of max(t, 0)^3/6 over
// the a_i.
func fraction(a [3]float64, t float64) float64 {
	sorted := a
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted[:])))
	a1 := sorted[0]
	if a1 == 0 {
		if t >= 0 {
			return 1
		}
		return 0
	}
	// Coefficients much smaller than a1 average the lower-dimensional
	// fraction over a thin slab, which to second order is the value at
	// the slab's midpoint.
	k := 3
	for k > 1 && sorted[k-1] < flatRatio*a1 {
		t -= 0.5 * sorted[k-1]
		k--
	}
	switch k {
	case 1:
		return clamp01(t / a1)
	case 2:
		a2 := sorted[1]
		return clamp01((sq(t) - sq(t-a1) - sq(t-a2) + sq(t-a1-a2)) / (a1 * a2))
	}
	a2, a3 := sorted[1], sorted[2]
	v := cube(t) - cube(t-a1) - cube(t-a2) - cube(t-a3) +
		cube(t-a1-a2) + cube(t-a1-a3) + cube(t-a2-a3) - cube(t-a1-a2-a3)
	return clamp01(v / (a1 * a2 * a3))
}

// sq is max(u, 0)^2/2 and cube is max(u, 0)^3/6.
func sq(u float64) float64 {
	if u <= 0 {
		return 0
	}
	return 0.5 * u * u
}

func cube(u float64) float64 {
	if u <= 0 {
		return 0
	}
	return u * u * u / 6
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// boxEdges lists the corner pairs joined by the twelve edges of a box
// whose corners are numbered by bit i = axis i.
var boxEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// planeBoxPolygon returns the polygon where the plane n·(x - lo) = s
// crosses the box with lower corner lo and edge lengths h, with its
// vertices ordered around n.
func planeBoxPolygon(lo, h, n r3.Vec, s float64) []r3.Vec {
	var corners [8]r3.Vec
	var d [8]float64
	for c := range corners {
		x := lo
		if c&1 != 0 {
			x.X += h.X
		}
		if c&2 != 0 {
			x.Y += h.Y
		}
		if c&4 != 0 {
			x.Z += h.Z
		}
		corners[c] = x
		d[c] = r3.Dot(n, r3.Sub(x, lo)) - s
	}
	eps := 1e-12 * r3.Norm(h)
	var pts []r3.Vec
	add := func(x r3.Vec) {
		for _, q := range pts {
			if r3.Norm(r3.Sub(x, q)) < eps {
				return
			}
		}
		pts = append(pts, x)
	}
	for _, e := range boxEdges {
		da, db := d[e[0]], d[e[1]]
		switch {
		case da == 0:
			add(corners[e[0]])
		case db == 0:
			add(corners[e[1]])
		case (da < 0) != (db < 0):
			w := da / (da - db)
			add(r3.Add(corners[e[0]], r3.Scale(w, r3.Sub(corners[e[1]], corners[e[0]]))))
		}
	}
	if len(pts) < 3 {
		return pts
	}
	sortAround(pts, n)
	return pts
}

// sortAround orders coplanar points counter-clockwise about n.
func sortAround(pts []r3.Vec, n r3.Vec) {
	var c r3.Vec
	for _, q := range pts {
		c = r3.Add(c, q)
	}
	c = r3.Scale(1/float64(len(pts)), c)
	e1 := unit(r3.Sub(pts[0], c))
	e2 := r3.Cross(n, e1)
	angle := func(q r3.Vec) float64 {
		d := r3.Sub(q, c)
		return math.Atan2(r3.Dot(d, e2), r3.Dot(d, e1))
	}
	sort.Slice(pts, func(i, j int) bool { return angle(pts[i]) < angle(pts[j]) })
}

// polygonCentreArea returns the centroid and the area of a planar polygon
// whose vertices are ordered about n.
func polygonCentreArea(pts []r3.Vec, n r3.Vec) (r3.Vec, float64) {
	var mean r3.Vec
	for _, q := range pts {
		mean = r3.Add(mean, q)
	}
	mean = r3.Scale(1/float64(len(pts)), mean)

	var centre r3.Vec
	var area float64
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		ta := 0.5 * r3.Dot(r3.Cross(r3.Sub(a, mean), r3.Sub(b, mean)), n)
		area += ta
		tc := r3.Scale(1.0/3, r3.Add(mean, r3.Add(a, b)))
		centre = r3.Add(centre, r3.Scale(ta, tc))
	}
	if area == 0 {
		return mean, 0
	}
	return r3.Scale(1/area, centre), math.Abs(area)
}

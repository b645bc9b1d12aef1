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

	"gonum.org/v1/gonum/spatial/r3"
)

// TimeIntegratedFaceFlux implements isoadvect.GeometryProvider. The
// interface is the plane through x0 with normal n0 moving along n0 at
// speed un0, so at time τ the tracked phase covers the part of the face
// where n0·(x - x0) <= un0·τ. That area is quadratic in τ between the
// times the plane passes face vertices and is integrated exactly on each
// interval by two-point Gauss quadrature, whose nodes stay off the
// interval ends where the area jumps if the face is parallel to the
// interface. f0 is not needed for planar interfaces.
func (p *Provider) TimeIntegratedFaceFlux(face int, x0, n0 r3.Vec, un0, f0, dt, phi, magSf float64) float64 {
	pts := p.mesh.Points()
	fp := p.mesh.FacePoints(face)
	if cap(p.poly) < len(fp) {
		p.poly = make([]r3.Vec, len(fp))
	}
	poly := p.poly[:len(fp)]
	for i, pi := range fp {
		poly[i] = pts[pi]
	}
	if magSf <= 0 {
		return 0
	}
	uf := phi / magSf

	if math.Abs(un0) < 1e-15 {
		return clampFlux(uf*p.submergedArea(poly, x0, n0, 0)*dt, phi, dt)
	}

	times := make([]float64, 0, len(poly)+2)
	times = append(times, 0, dt)
	for _, q := range poly {
		tk := r3.Dot(n0, r3.Sub(q, x0)) / un0
		if tk > 0 && tk < dt {
			times = append(times, tk)
		}
	}
	sort.Float64s(times)

	var integral float64
	for i := 1; i < len(times); i++ {
		ta, tb := times[i-1], times[i]
		if tb-ta <= 0 {
			continue
		}
		mid, half := 0.5*(ta+tb), 0.5*(tb-ta)
		a1 := p.submergedArea(poly, x0, n0, un0*(mid-half*gaussNode))
		a2 := p.submergedArea(poly, x0, n0, un0*(mid+half*gaussNode))
		integral += half * (a1 + a2)
	}
	return clampFlux(uf*integral, phi, dt)
}

// gaussNode is the two-point Gauss-Legendre node on [-1, 1].
var gaussNode = 1 / math.Sqrt(3)

func clampFlux(v, phi, dt float64) float64 {
	lim := math.Abs(phi) * dt
	return math.Max(-lim, math.Min(lim, v))
}

// submergedArea returns the area of the part of the planar polygon poly
// where n0·(x - x0) <= offset.
func (p *Provider) submergedArea(poly []r3.Vec, x0, n0 r3.Vec, offset float64) float64 {
	g := func(q r3.Vec) float64 { return r3.Dot(n0, r3.Sub(q, x0)) - offset }
	out := p.clipped[:0]
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		ga, gb := g(a), g(b)
		if ga <= 0 {
			out = append(out, a)
		}
		if (ga < 0 && gb > 0) || (ga > 0 && gb < 0) {
			w := ga / (ga - gb)
			out = append(out, r3.Add(a, r3.Scale(w, r3.Sub(b, a))))
		}
	}
	p.clipped = out
	return polygonArea(out)
}

// polygonArea returns the area of a planar polygon with ordered vertices.
func polygonArea(pts []r3.Vec) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s r3.Vec
	for i := 1; i+1 < len(pts); i++ {
		s = r3.Add(s, r3.Cross(r3.Sub(pts[i], pts[0]), r3.Sub(pts[i+1], pts[0])))
	}
	return 0.5 * r3.Norm(s)
}

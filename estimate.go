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

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// timeIntegratedFlux finds the surface cells, reconstructs the interface
// in each of them and sets dVf on their downwind faces to the volume the
// moving interface carries through the face during the step.
func (a *Advector) timeIntegratedFlux(ctx context.Context) error {
	m := a.mesh
	dt := a.dt

	a.surfCells = a.surfCells[:0]
	a.bsRecords = a.bsRecords[:0]
	a.isoFaces = a.isoFaces[:0]
	for c := range a.checkBounding {
		a.checkBounding[c] = false
		a.cellIsBounded[c] = false
	}

	for b := range a.cutMarks {
		a.cutMarks[b] = 0
	}

	var halo Halo
	if a.sync.Parallel() {
		halo = a.sync
	}
	if err := a.geom.Prepare(ctx, a.alpha, halo); err != nil {
		return err
	}

	var notCut int
	for c, alpha := range a.alpha {
		if !isSurface(alpha, a.cfg.SurfCellTol) {
			continue
		}
		a.surfCells = append(a.surfCells, c)
		a.checkBounding[c] = true

		status, iso := a.geom.CutCell(c, alpha, a.cfg.IsoFaceTol, a.cfg.MaxIter)
		if status != Cut {
			notCut++
			if a.cfg.Debug {
				a.log.WithFields(logrus.Fields{
					"cell":   c,
					"alpha":  alpha,
					"status": status,
				}).Debug("isoadvect: surface cell is not cut")
			}
			continue
		}
		n0, ok := iso.Normal()
		if !ok {
			notCut++
			continue
		}
		x0 := iso.Centre
		f0 := iso.Level
		un0 := r3.Dot(a.velocity.Interpolate(x0, c), n0)
		if a.cfg.WriteIsoFaces {
			a.isoFaces = append(a.isoFaces, IsoFace{Cell: c, Centre: x0, Area: iso.Area})
		}

		for _, f := range m.CellFaces(c) {
			if !m.IsInternalFace(f) {
				a.cutMarks[f-m.NumInternalFaces()] = 1
				a.bsRecords = append(a.bsRecords, boundaryRecord{
					face: f,
					x0:   x0,
					n0:   n0,
					un0:  un0,
					f0:   f0,
				})
				continue
			}
			if a.downwind(f, c) {
				a.dVf[f] = a.geom.TimeIntegratedFaceFlux(f, x0, n0, un0, f0, dt, a.phi[f], m.FaceAreaMag(f))
			}
			other := m.Owner(f)
			if other == c {
				other = m.Neighbour(f)
			}
			a.markForBounding(other)
		}
	}

	// A cut cell next to a processor patch flags the cell across it, as it
	// would flag an internal neighbour.
	if a.sync.Parallel() {
		marks, err := a.sync.Exchange(ctx, a.cutMarks, 1)
		if err != nil {
			return err
		}
		nInternal := m.NumInternalFaces()
		for b, mark := range marks {
			if mark != 0 {
				a.markForBounding(m.Owner(nInternal + b))
			}
		}
	}

	// Boundary faces of surface cells. Only outflow faces are recomputed;
	// inflow faces keep their seeded or received values.
	for _, r := range a.bsRecords {
		phi := a.phi[r.face]
		if phi <= downwindTol {
			continue
		}
		a.dVf[r.face] = a.geom.TimeIntegratedFaceFlux(r.face, r.x0, r.n0, r.un0, r.f0,
			dt, phi, m.FaceAreaMag(r.face))
		a.sync.Register(r.face)
	}

	if err := a.sync.Sync(ctx, a.dVf, a.phi); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{
		"surfaceCells": len(a.surfCells),
		"notCut":       notCut,
		"timeStep":     a.timeIndex,
	}).Info("isoadvect: surface cells")
	return nil
}

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
	"math"

	"github.com/sirupsen/logrus"
)

// limitFluxes adjusts dVf so that no cell ends the step with a volume
// fraction above one or below zero, by passing the surplus of an
// over-filled cell on through its downwind faces. Every pass bounds the
// tracked phase from above and then the other phase from above, which
// bounds the tracked phase from below.
func (a *Advector) limitFluxes(ctx context.Context) error {
	dt := a.dt

	if len(a.alpha) > 0 {
		lo, hi, nUnder, nOver := a.provisionalRange()
		a.log.WithFields(logrus.Fields{
			"min":         lo,
			"max - 1":     hi - 1,
			"undershoots": nUnder,
			"overshoots":  nOver,
			"timeStep":    a.timeIndex,
		}).Info("isoadvect: volume fraction before conservative bounding")
	}
	for c := range a.cellIsBounded {
		a.cellIsBounded[c] = false
	}

	for n := 0; n < a.cfg.NAlphaBounds; n++ {
		copy(a.dVfCorrected, a.dVf)
		for _, f := range a.boundFromAbove(a.alpha, a.dVfCorrected) {
			a.dVf[f] = a.dVfCorrected[f]
			a.sync.Register(f)
		}
		if err := a.sync.Sync(ctx, a.dVf, a.phi); err != nil {
			return err
		}

		// The other phase is carried by φΔt - dVf.
		for c, v := range a.alpha {
			a.alpha2[c] = 1 - v
		}
		for f, v := range a.dVf {
			a.dVfCorrected[f] = a.phi[f]*dt - v
		}
		for _, f := range a.boundFromAbove(a.alpha2, a.dVfCorrected) {
			a.dVf[f] = a.phi[f]*dt - a.dVfCorrected[f]
			a.sync.Register(f)
		}
		if err := a.sync.Sync(ctx, a.dVf, a.phi); err != nil {
			return err
		}

		if a.cfg.Debug && len(a.alpha) > 0 {
			lo, hi, nUnder, nOver := a.provisionalRange()
			a.log.WithFields(logrus.Fields{
				"pass":        n + 1,
				"min":         lo,
				"max - 1":     hi - 1,
				"undershoots": nUnder,
				"overshoots":  nOver,
			}).Debug("isoadvect: after bounding pass")
		}
	}
	return nil
}

// provisionalRange returns the extremes of the volume fraction field that
// the current dVf would produce, along with the number of cells more than
// 1e-12 below zero or above one.
func (a *Advector) provisionalRange() (lo, hi float64, nUnder, nOver int) {
	const aTol = 1e-12
	lo, hi = math.Inf(1), math.Inf(-1)
	for c, v := range a.alpha {
		v -= netFlux(a.mesh, a.dVf, c) / a.mesh.CellVolume(c)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		if v < -aTol {
			nUnder++
		}
		if v > 1+aTol {
			nOver++
		}
	}
	return lo, hi, nUnder, nOver
}

// boundFromAbove passes the surplus of every flagged cell whose volume
// fraction alpha1 would exceed one on to its downwind faces in proportion
// to their volumetric flux, never letting a face carry more than |φ|Δt.
// dVf is modified in place. The returned faces are the ones changed, each
// listed once; the slice is reused by the next call.
//
// Within a round every face's share is computed from the same surplus, so
// the result does not depend on the order of a cell's faces. Cells are
// visited in index order, and a cell sees the corrections already made by
// the cells before it.
func (a *Advector) boundFromAbove(alpha1, dVf []float64) []int {
	m := a.mesh
	dt := a.dt
	a.corrected = a.corrected[:0]

	for c, check := range a.checkBounding {
		if !check {
			continue
		}
		v := m.CellVolume(c)
		faces := m.CellFaces(c)
		overshoot := alpha1[c] - netFlux(m, dVf, c)/v - 1

		// Every round but the last caps at least one more face, so a cell
		// needs at most one round per face plus one.
		for round := 0; overshoot > boundTol && round <= len(faces); round++ {
			a.cellIsBounded[c] = true
			surplus := overshoot * v

			a.passFaces = a.passFaces[:0]
			a.passMax = a.passMax[:0]
			var dVftot float64
			for _, f := range faces {
				if !a.downwind(f, c) {
					continue
				}
				phidt := a.phi[f] * dt
				maxExtra := math.Abs(phidt - dVf[f])
				if maxExtra/v > boundTol {
					a.passFaces = append(a.passFaces, f)
					a.passMax = append(a.passMax, maxExtra)
					dVftot += math.Abs(phidt)
				}
			}
			if len(a.passFaces) == 0 {
				break
			}

			var uncapped int
			for i, f := range a.passFaces {
				share := surplus * math.Abs(a.phi[f]*dt) / dVftot
				if a.passMax[i] >= share {
					uncapped++
				}
				share = math.Min(share, a.passMax[i])
				dVf[f] += math.Copysign(share, a.phi[f])
				if !a.touched[f] {
					a.touched[f] = true
					a.corrected = append(a.corrected, f)
				}
			}

			overshoot = alpha1[c] - netFlux(m, dVf, c)/v - 1
			if a.cfg.Debug {
				a.log.WithFields(logrus.Fields{
					"cell":      c,
					"round":     round,
					"faces":     len(a.passFaces),
					"uncapped":  uncapped,
					"overshoot": overshoot,
				}).Debug("isoadvect: bounding cell")
			}
			if uncapped == 0 {
				break
			}
		}
	}

	for _, f := range a.corrected {
		a.touched[f] = false
	}
	return a.corrected
}

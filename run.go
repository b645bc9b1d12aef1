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
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ctessum/atmos/advect"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// parallel runs f for every index in [0, n) on GOMAXPROCS goroutines.
// f must only write to data belonging to its own index.
func parallel(n int, f func(i int)) {
	nprocs := runtime.GOMAXPROCS(0)
	if n < nprocs {
		nprocs = 1
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				f(ii)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

// upwindVolume returns the volume carried across a face with flux phi
// during dt when it takes the volume fraction of the cell upwind of it.
func upwindVolume(phi, alphaOwner, alphaNeighbour, dt float64) float64 {
	return advect.UpwindFlux(phi, alphaOwner, alphaNeighbour, 1) * dt
}

// AdvectStep advances the simulation by one time step.
func AdvectStep() DomainManipulator {
	return func(ctx context.Context, s *Simulation) error {
		if err := s.Advect(ctx, s.Dt); err != nil {
			return err
		}
		s.Time += s.Dt
		return nil
	}
}

// RunSteps marks the simulation as done after numSteps time steps.
func RunSteps(numSteps int) DomainManipulator {
	return func(_ context.Context, s *Simulation) error {
		if s.TimeIndex() >= numSteps {
			s.Done = true
		}
		return nil
	}
}

// TimeDependent is implemented by velocity fields that change with time.
type TimeDependent interface {
	SetTime(t float64)
}

// UpdateFlux recomputes the face fluxes from u at the current simulation
// time.
func UpdateFlux(u VelocityField) DomainManipulator {
	return func(_ context.Context, s *Simulation) error {
		if td, ok := u.(TimeDependent); ok {
			td.SetTime(s.Time)
		}
		return s.SetFlux(FaceFluxes(s.Mesh(), u))
	}
}

// Log writes the state of the simulation to l every interval steps.
func Log(l logrus.FieldLogger, interval int) DomainManipulator {
	startTime := time.Now()
	timeStepTime := time.Now()
	if interval < 1 {
		interval = 1
	}
	return func(_ context.Context, s *Simulation) error {
		if s.TimeIndex()%interval != 0 {
			return nil
		}
		m := s.Mesh()
		alpha := s.Alpha()
		vol := make([]float64, len(alpha))
		for c := range vol {
			vol[c] = m.CellVolume(c)
		}
		fields := logrus.Fields{
			"step":        s.TimeIndex(),
			"time":        s.Time,
			"walltime":    time.Since(startTime).String(),
			"Δwalltime":   time.Since(timeStepTime).String(),
			"phaseVolume": floats.Dot(alpha, vol),
		}
		if len(alpha) > 0 {
			fields["min"] = floats.Min(alpha)
			fields["max"] = floats.Max(alpha)
		}
		l.WithFields(fields).Info("isoadvect: step complete")
		timeStepTime = time.Now()
		return nil
	}
}

// RunPartitions executes the simulations of all partitions of a domain
// concurrently. If any partition fails, the others are cancelled and the
// first error is returned.
func RunPartitions(ctx context.Context, sims []*Simulation) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(sims))
	var wg sync.WaitGroup
	wg.Add(len(sims))
	for i, s := range sims {
		go func(i int, s *Simulation) {
			defer wg.Done()
			if err := s.Execute(ctx); err != nil {
				errs[i] = err
				cancel()
			}
		}(i, s)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil && err != context.Canceled {
			return fmt.Errorf("isoadvect: partition %d: %w", i, err)
		}
	}
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("isoadvect: partition %d: %w", i, err)
		}
	}
	return nil
}

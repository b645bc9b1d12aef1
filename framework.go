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
)

// Version gives the version number.
const Version = "0.3.0"

// Simulation holds the state of a multi-step run on one partition of a
// domain.
type Simulation struct {
	*Advector

	Dt   float64 // time step length
	Time float64 // simulated time
	Done bool    // set by a RunFunc to end the run

	// InitFuncs are run once before the simulation starts.
	InitFuncs []DomainManipulator

	// RunFuncs are run in order every time step until Done is set.
	RunFuncs []DomainManipulator

	// CleanupFuncs are run once after the simulation finishes.
	CleanupFuncs []DomainManipulator
}

// DomainManipulator is a function that changes the state of a simulation.
type DomainManipulator func(ctx context.Context, s *Simulation) error

// Init runs the initialization functions.
func (s *Simulation) Init(ctx context.Context) error {
	for i, f := range s.InitFuncs {
		if err := f(ctx, s); err != nil {
			return fmt.Errorf("isoadvect: running initialization function %d: %w", i, err)
		}
	}
	return nil
}

// Run runs the run functions until the simulation is done.
func (s *Simulation) Run(ctx context.Context) error {
	if s.Advector == nil {
		return fmt.Errorf("isoadvect: simulation has no advector")
	}
	for !s.Done {
		for _, f := range s.RunFuncs {
			if err := f(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup runs the cleanup functions.
func (s *Simulation) Cleanup(ctx context.Context) error {
	for i, f := range s.CleanupFuncs {
		if err := f(ctx, s); err != nil {
			return fmt.Errorf("isoadvect: running cleanup function %d: %w", i, err)
		}
	}
	return nil
}

// Execute runs Init, Run and Cleanup in turn.
func (s *Simulation) Execute(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return err
	}
	return s.Cleanup(ctx)
}

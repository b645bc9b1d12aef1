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
	"encoding/gob"
	"fmt"
	"io"
)

// Snapshot is the state of a simulation saved by Save.
type Snapshot struct {
	Step  int
	Time  float64
	Alpha []float64
	DVf   []float64
}

// Save returns a function that saves the state of the simulation to w
// in gob format (https://golang.org/pkg/encoding/gob/).
func Save(w io.Writer) DomainManipulator {
	return func(_ context.Context, s *Simulation) error {
		snap := Snapshot{
			Step:  s.TimeIndex(),
			Time:  s.Time,
			Alpha: s.Alpha(),
			DVf:   s.DVf(),
		}
		if err := gob.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("isoadvect: saving snapshot: %w", err)
		}
		return nil
	}
}

// Load returns a function that restores the volume fractions and time of
// a simulation from a snapshot written by Save. The snapshot must come
// from a mesh with the same number of cells.
func Load(r io.Reader) DomainManipulator {
	return func(_ context.Context, s *Simulation) error {
		var snap Snapshot
		if err := gob.NewDecoder(r).Decode(&snap); err != nil {
			return fmt.Errorf("isoadvect: loading snapshot: %w", err)
		}
		alpha := s.Alpha()
		if len(snap.Alpha) != len(alpha) {
			return fmt.Errorf("isoadvect: loading snapshot: snapshot has %d cells but the mesh has %d",
				len(snap.Alpha), len(alpha))
		}
		copy(alpha, snap.Alpha)
		if len(snap.DVf) == len(s.dVf) {
			copy(s.dVf, snap.DVf)
		}
		s.timeIndex = snap.Step
		s.Time = snap.Time
		return nil
	}
}

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

package isoadvectutil

import (
	"context"
	"fmt"

	"github.com/spatialmodel/isoadvect"
)

// History is a time series of volume fraction fields over a whole domain.
type History struct {
	Steps []int
	Times []float64
	Alpha [][]float64 // one field per record, in global cell order
}

// recorder keeps copies of the volume fraction field of one partition.
type recorder struct {
	every int // record every this many steps
	last  int // also record at this step

	steps []int
	times []float64
	alpha [][]float64
}

func (r *recorder) record() isoadvect.DomainManipulator {
	return func(_ context.Context, s *isoadvect.Simulation) error {
		step := s.TimeIndex()
		if n := len(r.steps); n > 0 && r.steps[n-1] == step {
			return nil
		}
		if step%r.every != 0 && step < r.last {
			return nil
		}
		r.steps = append(r.steps, step)
		r.times = append(r.times, s.Time)
		r.alpha = append(r.alpha, append([]float64(nil), s.Alpha()...))
		return nil
	}
}

// gatherHistory assembles the records of every partition into a History
// over the undecomposed domain.
func gatherHistory(meshes []*isoadvect.BoxMesh, recs []*recorder) (*History, error) {
	if len(recs) == 0 || recs[0] == nil {
		return nil, fmt.Errorf("isoadvect: no volume fraction records")
	}
	n := len(recs[0].steps)
	for i, r := range recs {
		if len(r.steps) != n {
			return nil, fmt.Errorf("isoadvect: partition %d has %d records but partition 0 has %d", i, len(r.steps), n)
		}
	}
	h := &History{
		Steps: recs[0].steps,
		Times: recs[0].times,
		Alpha: make([][]float64, n),
	}
	fields := make([][]float64, len(recs))
	for k := 0; k < n; k++ {
		for i, r := range recs {
			fields[i] = r.alpha[k]
		}
		var err error
		if h.Alpha[k], err = isoadvect.Gather(meshes, fields); err != nil {
			return nil, err
		}
	}
	return h, nil
}

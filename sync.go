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
	"math"

	"github.com/sirupsen/logrus"
)

// Synchronizer keeps the transported volumes on processor patches
// consistent between neighbouring partitions. Faces changed by one
// partition are registered, and Sync sends them to the partition on the
// other side of the patch, which stores the negated values.
type Synchronizer struct {
	mesh      Mesh
	transport Transport
	log       logrus.FieldLogger

	// Tolerance is the largest disagreement allowed between the two
	// sides of a face that both partitions changed in the same round.
	Tolerance float64

	procPatches []int   // indices into mesh.Patches()
	slot        []int   // per mesh patch: index into procPatches, or -1
	registered  [][]int // per processor patch: patch-local faces
	marked      [][]bool

	inconsistencies int
}

// NewSynchronizer returns a Synchronizer for the processor patches of m.
// t may be nil if m has no processor patches.
func NewSynchronizer(m Mesh, t Transport, log logrus.FieldLogger) (*Synchronizer, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Synchronizer{
		mesh:      m,
		transport: t,
		log:       log,
		Tolerance: 1e-12,
	}
	patches := m.Patches()
	s.slot = make([]int, len(patches))
	seen := make(map[int]string)
	for i, p := range patches {
		s.slot[i] = -1
		if !p.Processor {
			continue
		}
		if t == nil {
			return nil, fmt.Errorf("isoadvect: processor patch %q needs a transport", p.Name)
		}
		if p.NeighbourRank == t.Rank() {
			return nil, fmt.Errorf("isoadvect: processor patch %q joins partition %d to itself", p.Name, p.NeighbourRank)
		}
		if other, ok := seen[p.NeighbourRank]; ok {
			return nil, fmt.Errorf("isoadvect: processor patches %q and %q both join partition %d",
				other, p.Name, p.NeighbourRank)
		}
		seen[p.NeighbourRank] = p.Name
		s.slot[i] = len(s.procPatches)
		s.procPatches = append(s.procPatches, i)
		s.registered = append(s.registered, make([]int, 0, p.Size))
		s.marked = append(s.marked, make([]bool, p.Size))
	}
	return s, nil
}

// Parallel reports whether the mesh has any processor patches.
func (s *Synchronizer) Parallel() bool { return len(s.procPatches) > 0 }

// Register records that face changed in the current round. Faces that are
// not on a processor patch are ignored.
func (s *Synchronizer) Register(face int) {
	p := s.mesh.PatchOf(face)
	if p < 0 || s.slot[p] < 0 {
		return
	}
	slot := s.slot[p]
	local := s.mesh.Patches()[p].WhichFace(face)
	if s.marked[slot][local] {
		return
	}
	s.marked[slot][local] = true
	s.registered[slot] = append(s.registered[slot], local)
}

// Registered returns the number of faces registered in the current round.
func (s *Synchronizer) Registered() int {
	var n int
	for _, r := range s.registered {
		n += len(r)
	}
	return n
}

// Inconsistencies returns the number of parallel inconsistencies detected
// so far.
func (s *Synchronizer) Inconsistencies() int { return s.inconsistencies }

// Sync exchanges the registered faces of dVf with the neighbouring
// partitions and clears the registry. Every partition of a domain must
// call Sync the same number of times. phi is used only to check that the
// received faces carry flow into this partition and may be nil.
func (s *Synchronizer) Sync(ctx context.Context, dVf, phi []float64) error {
	defer s.clear()
	if len(s.procPatches) == 0 {
		return nil
	}
	patches := s.mesh.Patches()
	rank := s.transport.Rank()

	for slot, pi := range s.procPatches {
		p := patches[pi]
		faces := s.registered[slot]
		values := make([]float64, len(faces))
		for i, lf := range faces {
			values[i] = dVf[p.Start+lf]
		}
		msg := PatchMessage{From: rank, Faces: faces, Values: values}
		if err := s.transport.Send(ctx, p.NeighbourRank, msg); err != nil {
			return fmt.Errorf("isoadvect: sending patch %q to partition %d: %w", p.Name, p.NeighbourRank, err)
		}
	}

	for slot, pi := range s.procPatches {
		p := patches[pi]
		msg, err := s.transport.Recv(ctx, p.NeighbourRank)
		if err != nil {
			return fmt.Errorf("isoadvect: receiving patch %q from partition %d: %w", p.Name, p.NeighbourRank, err)
		}
		if len(msg.Faces) != len(msg.Values) {
			return fmt.Errorf("isoadvect: partition %d sent %d faces but %d values for patch %q",
				p.NeighbourRank, len(msg.Faces), len(msg.Values), p.Name)
		}
		for i, lf := range msg.Faces {
			if lf < 0 || lf >= p.Size {
				return fmt.Errorf("isoadvect: partition %d sent face %d for patch %q of size %d",
					p.NeighbourRank, lf, p.Name, p.Size)
			}
			f := p.Start + lf
			v := -msg.Values[i]
			if s.marked[slot][lf] && math.Abs(dVf[f]-v) > s.Tolerance {
				s.inconsistent(p, f, "both partitions changed the face and disagree", dVf[f], v)
			}
			if phi != nil && phi[f] > downwindTol {
				s.inconsistent(p, f, "received a transported volume for an outflow face", dVf[f], v)
			}
			dVf[f] = v
		}
	}
	return nil
}

// Exchange implements Halo over the processor patches of the mesh.
func (s *Synchronizer) Exchange(ctx context.Context, send []float64, width int) ([]float64, error) {
	m := s.mesh
	nInternal := m.NumInternalFaces()
	nb := m.NumFaces() - nInternal
	if width < 1 || len(send) != nb*width {
		return nil, fmt.Errorf("isoadvect: halo exchange of %d values at width %d for %d boundary faces",
			len(send), width, nb)
	}
	recv := make([]float64, len(send))
	if len(s.procPatches) == 0 {
		return recv, nil
	}
	patches := m.Patches()
	rank := s.transport.Rank()

	for _, pi := range s.procPatches {
		p := patches[pi]
		lo := (p.Start - nInternal) * width
		msg := PatchMessage{From: rank, Values: send[lo : lo+p.Size*width]}
		if err := s.transport.Send(ctx, p.NeighbourRank, msg); err != nil {
			return nil, fmt.Errorf("isoadvect: sending halo of patch %q to partition %d: %w", p.Name, p.NeighbourRank, err)
		}
	}
	for _, pi := range s.procPatches {
		p := patches[pi]
		msg, err := s.transport.Recv(ctx, p.NeighbourRank)
		if err != nil {
			return nil, fmt.Errorf("isoadvect: receiving halo of patch %q from partition %d: %w", p.Name, p.NeighbourRank, err)
		}
		if msg.Faces != nil || len(msg.Values) != p.Size*width {
			return nil, fmt.Errorf("isoadvect: partition %d sent %d halo values for patch %q, want %d",
				p.NeighbourRank, len(msg.Values), p.Name, p.Size*width)
		}
		copy(recv[(p.Start-nInternal)*width:], msg.Values)
	}
	return recv, nil
}

func (s *Synchronizer) inconsistent(p Patch, face int, msg string, local, received float64) {
	s.inconsistencies++
	s.log.WithFields(logrus.Fields{
		"patch":    p.Name,
		"face":     face,
		"local":    local,
		"received": received,
	}).Warnf("isoadvect: parallel inconsistency: %s", msg)
}

func (s *Synchronizer) clear() {
	for slot, faces := range s.registered {
		for _, lf := range faces {
			s.marked[slot][lf] = false
		}
		s.registered[slot] = faces[:0]
	}
}

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
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// DiagnosticWriter receives the cell sets and interface faces of a step
// when the configuration asks for them.
type DiagnosticWriter interface {
	// WriteCellSet writes a named set of cells, for example the surface
	// cells, for time step timeIndex.
	WriteCellSet(name string, timeIndex int, cells []int) error

	// WriteIsoFaces writes the interface faces reconstructed during time
	// step timeIndex.
	WriteIsoFaces(timeIndex int, faces []IsoFace) error
}

// Names of the cell sets written by Diagnostics.
const (
	SurfaceCellSet = "isoFaceCells"
	BoundedCellSet = "boundedCells"
)

// Diagnostics logs the state of the step and writes the configured cell
// sets and interface faces. Each partition writes only its own cells.
func Diagnostics() StepFunc {
	return func(_ context.Context, a *Advector) error {
		bounded := a.BoundedCells()
		a.log.WithFields(logrus.Fields{
			"timeStep":      a.timeIndex,
			"surfaceCells":  len(a.surfCells),
			"boundedCells":  len(bounded),
			"stepTime":      time.Since(a.stepStart).String(),
			"advectionTime": (a.advectionTime + time.Since(a.stepStart)).String(),
		}).Info("isoadvect: step diagnostics")

		if a.diag == nil {
			return nil
		}
		if a.cfg.WriteSurfCells {
			if err := a.diag.WriteCellSet(SurfaceCellSet, a.timeIndex, a.surfCells); err != nil {
				return err
			}
		}
		if a.cfg.WriteBoundedCells {
			if err := a.diag.WriteCellSet(BoundedCellSet, a.timeIndex, bounded); err != nil {
				return err
			}
		}
		if a.cfg.WriteIsoFaces {
			if err := a.diag.WriteIsoFaces(a.timeIndex, a.isoFaces); err != nil {
				return err
			}
		}
		return nil
	}
}

// DirectoryWriter writes diagnostics as text files in a directory, one
// file per set and time step. Rank distinguishes the files of different
// partitions writing to the same directory.
type DirectoryWriter struct {
	Dir  string
	Rank int
}

// NewDirectoryWriter creates dir if needed and returns a writer for it.
func NewDirectoryWriter(dir string, rank int) (*DirectoryWriter, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("isoadvect: creating diagnostics directory: %w", err)
	}
	return &DirectoryWriter{Dir: dir, Rank: rank}, nil
}

func (w *DirectoryWriter) path(name string, timeIndex int, ext string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s_%d_%d.%s", name, w.Rank, timeIndex, ext))
}

// WriteCellSet implements DiagnosticWriter. The file holds the number of
// cells on the first line followed by one cell index per line.
func (w *DirectoryWriter) WriteCellSet(name string, timeIndex int, cells []int) error {
	f, err := os.Create(w.path(name, timeIndex, "txt"))
	if err != nil {
		return fmt.Errorf("isoadvect: writing cell set %s: %w", name, err)
	}
	b := bufio.NewWriter(f)
	fmt.Fprintln(b, len(cells))
	for _, c := range cells {
		fmt.Fprintln(b, c)
	}
	if err := b.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("isoadvect: writing cell set %s: %w", name, err)
	}
	return f.Close()
}

// WriteIsoFaces implements DiagnosticWriter. Faces are written as CSV
// with the cell index, the face centre and the face area vector.
func (w *DirectoryWriter) WriteIsoFaces(timeIndex int, faces []IsoFace) error {
	f, err := os.Create(w.path("isoFaces", timeIndex, "csv"))
	if err != nil {
		return fmt.Errorf("isoadvect: writing iso-faces: %w", err)
	}
	cw := csv.NewWriter(f)
	cw.Write([]string{"cell", "x", "y", "z", "Sx", "Sy", "Sz"})
	g := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, iso := range faces {
		cw.Write([]string{
			strconv.Itoa(iso.Cell),
			g(iso.Centre.X), g(iso.Centre.Y), g(iso.Centre.Z),
			g(iso.Area.X), g(iso.Area.Y), g(iso.Area.Z),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("isoadvect: writing iso-faces: %w", err)
	}
	return f.Close()
}

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
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// Config holds the settings that control an Advector.
type Config struct {
	// NAlphaBounds is the number of conservative bounding passes run
	// each time step.
	NAlphaBounds int `toml:"nAlphaBounds"`

	// IsoFaceTol is the tolerance on the volume fraction reproduced by
	// the iso-surface in a cut cell.
	IsoFaceTol float64 `toml:"isoFaceTol"`

	// SurfCellTol sets the band of volume fractions that mark a surface
	// cell: SurfCellTol < α < 1 - SurfCellTol.
	SurfCellTol float64 `toml:"surfCellTol"`

	// MaxIter bounds the iterations used to cut a cell.
	MaxIter int `toml:"maxIter"`

	// GradAlphaNormal selects smoothed volume fraction gradients
	// instead of the iso-surface for the interface normal.
	GradAlphaNormal bool `toml:"gradAlphaNormal"`

	// SnapTol snaps volume fractions within SnapTol of 0 or 1 to 0 or 1
	// after the conservative update. Zero disables snapping.
	SnapTol float64 `toml:"snapTol"`

	// Clip clamps volume fractions to [0, 1] after the conservative
	// update.
	Clip bool `toml:"clip"`

	WriteSurfCells    bool `toml:"writeSurfCells"`
	WriteBoundedCells bool `toml:"writeBoundedCells"`
	WriteIsoFaces     bool `toml:"writeIsoFaces"`

	// Debug enables per-cell log output.
	Debug bool `toml:"debug"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		NAlphaBounds: 3,
		IsoFaceTol:   1e-10,
		SurfCellTol:  1e-8,
		MaxIter:      100,
		Clip:         true,
	}
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if c.NAlphaBounds < 0 {
		return fmt.Errorf("isoadvect: configuration: nAlphaBounds=%d but should be >=0", c.NAlphaBounds)
	}
	if c.IsoFaceTol <= 0 {
		return fmt.Errorf("isoadvect: configuration: isoFaceTol=%g but should be >0", c.IsoFaceTol)
	}
	if c.SurfCellTol <= 0 || c.SurfCellTol >= 0.5 {
		return fmt.Errorf("isoadvect: configuration: surfCellTol=%g but should be in (0, 0.5)", c.SurfCellTol)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("isoadvect: configuration: maxIter=%d but should be >0", c.MaxIter)
	}
	if c.SnapTol < 0 || c.SnapTol >= 0.5 {
		return fmt.Errorf("isoadvect: configuration: snapTol=%g but should be in [0, 0.5)", c.SnapTol)
	}
	return nil
}

// ReadConfig reads TOML settings from r. Settings missing from r keep
// their default values.
func ReadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return c, fmt.Errorf("isoadvect: reading configuration: %w", err)
	}
	return c, c.Validate()
}

// Write writes c to w in TOML format.
func (c Config) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("isoadvect: writing configuration: %w", err)
	}
	return nil
}

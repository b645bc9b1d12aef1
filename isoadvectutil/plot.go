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
	"fmt"

	"github.com/ctessum/sparse"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Profile returns the volume fraction averaged over each plane of cells
// normal to the X axis, against the X coordinate of the cell centres.
func Profile(d Domain, alpha []float64) (plotter.XYs, error) {
	if len(alpha) != d.NumCells() {
		return nil, fmt.Errorf("isoadvect: profile: field has %d cells but the domain has %d", len(alpha), d.NumCells())
	}
	a := sparse.ZerosDense(d.Nz, d.Ny, d.Nx)
	a.Elements = alpha
	xy := make(plotter.XYs, d.Nx)
	for i := range xy {
		xy[i].X = d.Origin.X + (float64(i)+0.5)*d.Spacing.X
		for k := 0; k < d.Nz; k++ {
			for j := 0; j < d.Ny; j++ {
				xy[i].Y += a.Get(k, j, i)
			}
		}
		xy[i].Y /= float64(d.Ny * d.Nz)
	}
	return xy, nil
}

// PlotProfiles saves an image of the first and last volume fraction
// profiles in h to path. The image format is chosen from the file
// extension.
func PlotProfiles(path string, d Domain, h *History) error {
	if len(h.Alpha) == 0 {
		return fmt.Errorf("isoadvect: plotting profiles: no records")
	}
	p := plot.New()
	p.Title.Text = "Volume fraction profile"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "α"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	var lines []interface{}
	for _, k := range []int{0, len(h.Alpha) - 1} {
		xy, err := Profile(d, h.Alpha[k])
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("t=%g", h.Times[k]), xy)
		if len(h.Alpha) == 1 {
			break
		}
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return fmt.Errorf("isoadvect: plotting profiles: %v", err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("isoadvect: saving profile plot: %v", err)
	}
	return nil
}

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
	"io"
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/isoadvect"
)

// WriteNetCDF writes h to a new NetCDF file at path. The volume fraction
// is stored in the record variable alpha with dimensions (time, z, y, x).
func WriteNetCDF(path string, d Domain, h *History) error {
	if len(h.Steps) != len(h.Alpha) || len(h.Times) != len(h.Alpha) {
		return fmt.Errorf("isoadvect: writing NetCDF: history has %d steps, %d times and %d fields",
			len(h.Steps), len(h.Times), len(h.Alpha))
	}
	hd := cdf.NewHeader([]string{"time", "z", "y", "x"}, []int{0, d.Nz, d.Ny, d.Nx})
	hd.AddAttribute("", "comment", "isoadvect volume fraction output file")
	hd.AddAttribute("", "version", isoadvect.Version)
	hd.AddAttribute("", "x0", []float64{d.Origin.X})
	hd.AddAttribute("", "y0", []float64{d.Origin.Y})
	hd.AddAttribute("", "z0", []float64{d.Origin.Z})
	hd.AddAttribute("", "dx", []float64{d.Spacing.X})
	hd.AddAttribute("", "dy", []float64{d.Spacing.Y})
	hd.AddAttribute("", "dz", []float64{d.Spacing.Z})

	hd.AddVariable("time", []string{"time"}, []float64{0})
	hd.AddAttribute("time", "description", "Simulation time")
	hd.AddVariable("step", []string{"time"}, []int32{0})
	hd.AddAttribute("step", "description", "Time step index")
	hd.AddVariable("alpha", []string{"time", "z", "y", "x"}, []float64{0})
	hd.AddAttribute("alpha", "description", "Volume fraction of the tracked phase")
	hd.AddAttribute("alpha", "units", "fraction")
	hd.Define()
	for _, err := range hd.Check() {
		return fmt.Errorf("isoadvect: creating NetCDF file: %v", err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("isoadvect: creating NetCDF file: %v", err)
	}
	f, err := cdf.Create(ff, hd)
	if err != nil {
		ff.Close()
		return fmt.Errorf("isoadvect: creating NetCDF file: %v", err)
	}
	for k, alpha := range h.Alpha {
		if len(alpha) != d.NumCells() {
			ff.Close()
			return fmt.Errorf("isoadvect: writing NetCDF: record %d has %d cells but the domain has %d",
				k, len(alpha), d.NumCells())
		}
		n, err := f.Writer("time", []int{k}, []int{k}).Write([]float64{h.Times[k]})
		if err := complete(n, 1, err); err != nil {
			ff.Close()
			return fmt.Errorf("isoadvect: writing NetCDF time record %d: %v", k, err)
		}
		n, err = f.Writer("step", []int{k}, []int{k}).Write([]int32{int32(h.Steps[k])})
		if err := complete(n, 1, err); err != nil {
			ff.Close()
			return fmt.Errorf("isoadvect: writing NetCDF step record %d: %v", k, err)
		}
		w := f.Writer("alpha", []int{k, 0, 0, 0}, []int{k, d.Nz - 1, d.Ny - 1, d.Nx - 1})
		n, err = w.Write(alpha)
		if err := complete(n, len(alpha), err); err != nil {
			ff.Close()
			return fmt.Errorf("isoadvect: writing NetCDF alpha record %d: %v", k, err)
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		ff.Close()
		return fmt.Errorf("isoadvect: finalizing NetCDF file: %v", err)
	}
	return ff.Close()
}

// ReadNetCDF reads a file written by WriteNetCDF.
func ReadNetCDF(path string) (*History, Domain, error) {
	var d Domain
	ff, err := os.Open(path)
	if err != nil {
		return nil, d, fmt.Errorf("isoadvect: opening NetCDF file: %v", err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, d, fmt.Errorf("isoadvect: reading NetCDF file: %v", err)
	}
	fi, err := ff.Stat()
	if err != nil {
		return nil, d, err
	}

	attr := func(name string) float64 {
		if v, ok := f.Header.GetAttribute("", name).([]float64); ok && len(v) > 0 {
			return v[0]
		}
		return 0
	}
	d.Origin.X, d.Origin.Y, d.Origin.Z = attr("x0"), attr("y0"), attr("z0")
	d.Spacing.X, d.Spacing.Y, d.Spacing.Z = attr("dx"), attr("dy"), attr("dz")
	dims := f.Header.Lengths("alpha")
	if len(dims) != 4 {
		return nil, d, fmt.Errorf("isoadvect: NetCDF variable alpha has %d dimensions but should have 4", len(dims))
	}
	d.Nz, d.Ny, d.Nx = dims[1], dims[2], dims[3]

	n := int(f.Header.NumRecs(fi.Size()))
	h := &History{
		Steps: make([]int, n),
		Times: make([]float64, n),
		Alpha: make([][]float64, n),
	}
	for k := 0; k < n; k++ {
		t := make([]float64, 1)
		n, err := f.Reader("time", []int{k}, []int{k}).Read(t)
		if err := complete(n, 1, err); err != nil {
			return nil, d, fmt.Errorf("isoadvect: reading NetCDF time record %d: %v", k, err)
		}
		s := make([]int32, 1)
		n, err = f.Reader("step", []int{k}, []int{k}).Read(s)
		if err := complete(n, 1, err); err != nil {
			return nil, d, fmt.Errorf("isoadvect: reading NetCDF step record %d: %v", k, err)
		}
		alpha := make([]float64, d.NumCells())
		r := f.Reader("alpha", []int{k, 0, 0, 0}, []int{k, d.Nz - 1, d.Ny - 1, d.Nx - 1})
		n, err = r.Read(alpha)
		if err := complete(n, len(alpha), err); err != nil {
			return nil, d, fmt.Errorf("isoadvect: reading NetCDF alpha record %d: %v", k, err)
		}
		h.Times[k], h.Steps[k], h.Alpha[k] = t[0], int(s[0]), alpha
	}
	return h, d, nil
}

// complete returns the error of a strided read or write that should have
// moved want values. The strider reports io.EOF when it reaches its end
// index, which is not an error once every value has been moved.
func complete(n, want int, err error) error {
	switch {
	case err == io.EOF && n == want:
		return nil
	case err == nil && n != want:
		return fmt.Errorf("moved %d of %d values", n, want)
	}
	return err
}

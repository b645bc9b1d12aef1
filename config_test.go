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
	"bytes"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	for name, f := range map[string]func(*Config){
		"negative bounds":  func(c *Config) { c.NAlphaBounds = -1 },
		"zero isoFaceTol":  func(c *Config) { c.IsoFaceTol = 0 },
		"zero surfCellTol": func(c *Config) { c.SurfCellTol = 0 },
		"half surfCellTol": func(c *Config) { c.SurfCellTol = 0.5 },
		"zero maxIter":     func(c *Config) { c.MaxIter = 0 },
		"negative snapTol": func(c *Config) { c.SnapTol = -1e-6 },
		"large snapTol":    func(c *Config) { c.SnapTol = 0.5 },
	} {
		c := DefaultConfig()
		f(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: should be an error", name)
		}
	}
}

func TestReadConfig(t *testing.T) {
	c, err := ReadConfig(strings.NewReader("nAlphaBounds = 5\nclip = false\nsnapTol = 1e-6\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.NAlphaBounds = 5
	want.Clip = false
	want.SnapTol = 1e-6
	if c != want {
		t.Errorf("have %+v, want %+v", c, want)
	}

	if _, err := ReadConfig(strings.NewReader("maxIter = 0\n")); err == nil {
		t.Error("invalid settings should be an error")
	}
	if _, err := ReadConfig(strings.NewReader("maxIter = \n")); err == nil {
		t.Error("malformed TOML should be an error")
	}
}

func TestConfigWrite(t *testing.T) {
	c := DefaultConfig()
	c.GradAlphaNormal = true
	c.WriteIsoFaces = true
	buf := new(bytes.Buffer)
	if err := c.Write(buf); err != nil {
		t.Fatal(err)
	}
	c2, err := ReadConfig(buf)
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c {
		t.Errorf("have %+v, want %+v", c2, c)
	}
}

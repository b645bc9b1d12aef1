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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/isoadvect"
	"github.com/spf13/cast"
	"gonum.org/v1/gonum/spatial/r3"
)

// Domain is a rectangular block of equally sized box cells.
type Domain struct {
	Origin     r3.Vec
	Spacing    r3.Vec
	Nx, Ny, Nz int
}

// Partition returns the meshes of the domain split into parts slabs.
func (d Domain) Partition(parts int) ([]*isoadvect.BoxMesh, error) {
	return isoadvect.Decompose(d.Origin, d.Spacing, d.Nx, d.Ny, d.Nz, parts)
}

// NumCells returns the number of cells in the domain.
func (d Domain) NumCells() int { return d.Nx * d.Ny * d.Nz }

// Problem holds everything needed to set up and run a simulation.
type Problem struct {
	Domain     Domain
	Partitions int

	VelocityExprs [3]string
	InitialAlpha  string
	FixedAlpha    map[string]float64

	Dt             float64
	NumSteps       int
	OutputInterval int

	Advection isoadvect.Config

	OutputFile      string
	OutputVariables map[string]string
	LogFile         string
	SnapshotFile    string
	RestartFile     string
	NetCDFFile      string
	PlotFile        string
	DiagnosticsDir  string
}

// WorkerConfig locates a worker within a distributed simulation.
type WorkerConfig struct {
	Rank    int
	Peers   []string
	RPCPort string
}

// ProblemFromConfig reads a Problem from cfg.
func ProblemFromConfig(cfg *viper.Viper) (*Problem, error) {
	cells, err := cast.ToIntSliceE(cfg.Get("Mesh.Cells"))
	if err != nil {
		return nil, fmt.Errorf("isoadvect: reading Mesh.Cells: %v", err)
	}
	if len(cells) != 3 {
		return nil, fmt.Errorf("isoadvect: Mesh.Cells should have 3 values but has %d", len(cells))
	}
	p := &Problem{
		Domain: Domain{
			Origin:  r3.Vec{X: cfg.GetFloat64("Mesh.Xo"), Y: cfg.GetFloat64("Mesh.Yo"), Z: cfg.GetFloat64("Mesh.Zo")},
			Spacing: r3.Vec{X: cfg.GetFloat64("Mesh.Dx"), Y: cfg.GetFloat64("Mesh.Dy"), Z: cfg.GetFloat64("Mesh.Dz")},
			Nx:      cells[0],
			Ny:      cells[1],
			Nz:      cells[2],
		},
		Partitions: cfg.GetInt("Partitions"),
		VelocityExprs: [3]string{
			os.ExpandEnv(cfg.GetString("Velocity.U")),
			os.ExpandEnv(cfg.GetString("Velocity.V")),
			os.ExpandEnv(cfg.GetString("Velocity.W")),
		},
		InitialAlpha:   os.ExpandEnv(cfg.GetString("InitialAlpha")),
		Dt:             cfg.GetFloat64("Dt"),
		NumSteps:       cfg.GetInt("NumSteps"),
		OutputInterval: cfg.GetInt("OutputInterval"),
		SnapshotFile:   os.ExpandEnv(cfg.GetString("SnapshotFile")),
		RestartFile:    os.ExpandEnv(cfg.GetString("RestartFile")),
		NetCDFFile:     os.ExpandEnv(cfg.GetString("NetCDFFile")),
		PlotFile:       os.ExpandEnv(cfg.GetString("PlotFile")),
		DiagnosticsDir: os.ExpandEnv(cfg.GetString("DiagnosticsDir")),
	}

	if p.Advection, err = AdvectionConfig(cfg); err != nil {
		return nil, err
	}

	fixed, err := getStringMapString("Boundary.FixedAlpha", cfg)
	if err != nil {
		return nil, err
	}
	p.FixedAlpha = make(map[string]float64, len(fixed))
	for name, v := range fixed {
		f, err := cast.ToFloat64E(os.ExpandEnv(v))
		if err != nil {
			return nil, fmt.Errorf("isoadvect: reading Boundary.FixedAlpha for patch %s: %v", name, err)
		}
		p.FixedAlpha[name] = f
	}

	if p.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile")); err != nil {
		return nil, err
	}
	vars, err := getStringMapString("OutputVariables", cfg)
	if err != nil {
		return nil, err
	}
	if p.OutputVariables, err = checkOutputVars(vars); err != nil {
		return nil, err
	}
	p.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), p.OutputFile)

	return p, p.validate()
}

func (p *Problem) validate() error {
	d := p.Domain
	if d.Nx < 1 || d.Ny < 1 || d.Nz < 1 {
		return fmt.Errorf("isoadvect: Mesh.Cells=[%d %d %d] but all values should be >0", d.Nx, d.Ny, d.Nz)
	}
	if d.Spacing.X <= 0 || d.Spacing.Y <= 0 || d.Spacing.Z <= 0 {
		return fmt.Errorf("isoadvect: Mesh.Dx, Mesh.Dy and Mesh.Dz should all be >0")
	}
	if p.Partitions < 1 || p.Partitions > d.Nx {
		return fmt.Errorf("isoadvect: Partitions=%d but should be between 1 and the number of X cells (%d)", p.Partitions, d.Nx)
	}
	if p.Dt <= 0 {
		return fmt.Errorf("isoadvect: Dt=%g but should be >0", p.Dt)
	}
	if p.NumSteps < 1 {
		return fmt.Errorf("isoadvect: NumSteps=%d but should be >0", p.NumSteps)
	}
	if p.OutputInterval < 1 {
		return fmt.Errorf("isoadvect: OutputInterval=%d but should be >0", p.OutputInterval)
	}
	return nil
}

// WorkerFromConfig reads the settings of a distributed worker from cfg.
func WorkerFromConfig(cfg *viper.Viper) (*WorkerConfig, error) {
	peers, err := cast.ToStringSliceE(cfg.Get("peers"))
	if err != nil {
		return nil, fmt.Errorf("isoadvect: reading peers: %v", err)
	}
	w := &WorkerConfig{
		Rank:    cfg.GetInt("rank"),
		Peers:   expandStringSlice(peers),
		RPCPort: cfg.GetString("rpcport"),
	}
	if w.Rank < 0 {
		return nil, fmt.Errorf("isoadvect: rank=%d but should be >=0", w.Rank)
	}
	return w, nil
}

// AdvectionConfig reads the Advection settings from cfg.
func AdvectionConfig(cfg *viper.Viper) (isoadvect.Config, error) {
	c := isoadvect.Config{
		NAlphaBounds:      cfg.GetInt("Advection.NAlphaBounds"),
		IsoFaceTol:        cfg.GetFloat64("Advection.IsoFaceTol"),
		SurfCellTol:       cfg.GetFloat64("Advection.SurfCellTol"),
		MaxIter:           cfg.GetInt("Advection.MaxIter"),
		GradAlphaNormal:   cfg.GetBool("Advection.GradAlphaNormal"),
		SnapTol:           cfg.GetFloat64("Advection.SnapTol"),
		Clip:              cfg.GetBool("Advection.Clip"),
		WriteSurfCells:    cfg.GetBool("Advection.WriteSurfCells"),
		WriteBoundedCells: cfg.GetBool("Advection.WriteBoundedCells"),
		WriteIsoFaces:     cfg.GetBool("Advection.WriteIsoFaces"),
		Debug:             cfg.GetBool("Advection.Debug"),
	}
	return c, c.Validate()
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again")
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.csv")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("isoadvect: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// rankFile adds the partition rank to a file name, before its extension.
func rankFile(path string, rank int) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), rank, ext)
}

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("isoadvect: reading %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("isoadvect: invalid type for map variable %s: %#v", varName, i)
	}
}

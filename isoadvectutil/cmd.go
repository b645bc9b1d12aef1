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

	"github.com/lnashier/viper"
	"github.com/spatialmodel/isoadvect"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	simFlags := func() []*pflag.FlagSet {
		return []*pflag.FlagSet{runCmd.Flags(), workerCmd.Flags(), configCmd.Flags()}
	}
	// Options are the configuration options available to isoadvect.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Mesh.Xo",
			usage: `
              Mesh.Xo specifies the X coordinate of the lower corner of the
              domain.`,
			defaultVal: 0.0,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Yo",
			usage: `
              Mesh.Yo specifies the Y coordinate of the lower corner of the
              domain.`,
			defaultVal: 0.0,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Zo",
			usage: `
              Mesh.Zo specifies the Z coordinate of the lower corner of the
              domain.`,
			defaultVal: 0.0,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Dx",
			usage: `
              Mesh.Dx specifies the X edge length of the grid cells.`,
			defaultVal: 0.025,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Dy",
			usage: `
              Mesh.Dy specifies the Y edge length of the grid cells.`,
			defaultVal: 1.0,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Dz",
			usage: `
              Mesh.Dz specifies the Z edge length of the grid cells.`,
			defaultVal: 1.0,
			flagsets:   simFlags(),
		},
		{
			name: "Mesh.Cells",
			usage: `
              Mesh.Cells specifies the number of grid cells in the X, Y and Z
              directions.`,
			defaultVal: []int{40, 1, 1},
			flagsets:   simFlags(),
		},
		{
			name: "Partitions",
			usage: `
              Partitions specifies the number of slabs the domain is split into
              along the X axis. Each slab is advected by its own goroutine
              with the run command, or by its own process with the worker
              command.`,
			shorthand:  "p",
			defaultVal: 1,
			flagsets:   simFlags(),
		},
		{
			name: "Velocity.U",
			usage: `
              Velocity.U is an expression of x, y, z and t giving the X
              component of the velocity field.`,
			defaultVal: "1",
			flagsets:   simFlags(),
		},
		{
			name: "Velocity.V",
			usage: `
              Velocity.V is an expression of x, y, z and t giving the Y
              component of the velocity field.`,
			defaultVal: "0",
			flagsets:   simFlags(),
		},
		{
			name: "Velocity.W",
			usage: `
              Velocity.W is an expression of x, y, z and t giving the Z
              component of the velocity field.`,
			defaultVal: "0",
			flagsets:   simFlags(),
		},
		{
			name: "InitialAlpha",
			usage: `
              InitialAlpha is an expression of x, y and z giving the initial
              volume fraction of the tracked phase at each cell centre.`,
			defaultVal: "x > 0.1 && x < 0.3 ? 1 : 0",
			flagsets:   simFlags(),
		},
		{
			name: "Boundary.FixedAlpha",
			usage: `
              Boundary.FixedAlpha maps the names of boundary patches (xmin, xmax,
              ymin, ymax, zmin, zmax) to fixed volume fractions. Patches that
              are not listed are zero-gradient.`,
			defaultVal: map[string]string{},
			flagsets:   simFlags(),
		},
		{
			name: "Dt",
			usage: `
              Dt specifies the time step length.`,
			defaultVal: 0.005,
			flagsets:   simFlags(),
		},
		{
			name: "NumSteps",
			usage: `
              NumSteps specifies the time step after which the simulation
              stops. Steps taken before a restart count towards it.`,
			shorthand:  "n",
			defaultVal: 100,
			flagsets:   simFlags(),
		},
		{
			name: "OutputInterval",
			usage: `
              OutputInterval is the number of time steps between log messages
              and records in the NetCDF output file.`,
			defaultVal: 10,
			flagsets:   simFlags(),
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the CSV file where the output
              variables of every cell are written at the end of the run. With
              the worker command the partition rank is added to the file name.`,
			defaultVal: "isoadvect_output.csv",
			flagsets:   simFlags(),
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which variables are written to
              OutputFile, as a map of column names to expressions of the cell
              variables alpha, x, y, z, volume and cell.`,
			defaultVal: map[string]string{"alpha": "alpha", "x": "x"},
			flagsets:   simFlags(),
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to the log file. If it is empty, the
              log is written next to OutputFile.`,
			defaultVal: "",
			flagsets:   simFlags(),
		},
		{
			name: "SnapshotFile",
			usage: `
              SnapshotFile, if set, is the path to which the final state of the
              simulation is saved in gob format.`,
			defaultVal: "",
			flagsets:   simFlags(),
		},
		{
			name: "RestartFile",
			usage: `
              RestartFile, if set, is the path to a snapshot written by an
              earlier run to start the simulation from.`,
			defaultVal: "",
			flagsets:   simFlags(),
		},
		{
			name: "NetCDFFile",
			usage: `
              NetCDFFile, if set, is the path to a NetCDF file where the volume
              fraction field is recorded every OutputInterval steps.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PlotFile",
			usage: `
              PlotFile, if set, is the path to an image of the initial and final
              volume fraction profiles along the X axis. The format is chosen
              from the file extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DiagnosticsDir",
			usage: `
              DiagnosticsDir specifies the directory where surface cell sets,
              bounded cell sets and interface faces are written when the
              corresponding Advection options are set.`,
			defaultVal: ".",
			flagsets:   simFlags(),
		},
		{
			name: "Advection.NAlphaBounds",
			usage: `
              Advection.NAlphaBounds is the number of flux bounding passes run
              each time step.`,
			defaultVal: isoadvect.DefaultConfig().NAlphaBounds,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.IsoFaceTol",
			usage: `
              Advection.IsoFaceTol is the tolerance on the volume fraction
              reproduced by the interface in a cut cell.`,
			defaultVal: isoadvect.DefaultConfig().IsoFaceTol,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.SurfCellTol",
			usage: `
              Advection.SurfCellTol sets the band of volume fractions that
              mark a cell as containing the interface.`,
			defaultVal: isoadvect.DefaultConfig().SurfCellTol,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.MaxIter",
			usage: `
              Advection.MaxIter is the maximum number of iterations used to
              place the interface in a cell.`,
			defaultVal: isoadvect.DefaultConfig().MaxIter,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.GradAlphaNormal",
			usage: `
              Advection.GradAlphaNormal takes interface normals from the
              smoothed gradient of the volume fraction.`,
			defaultVal: false,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.SnapTol",
			usage: `
              Advection.SnapTol snaps volume fractions within SnapTol of 0 or 1
              to 0 or 1 after each step. Zero disables snapping.`,
			defaultVal: 0.0,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.Clip",
			usage: `
              Advection.Clip clamps volume fractions to [0, 1] after each step.`,
			defaultVal: isoadvect.DefaultConfig().Clip,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.WriteSurfCells",
			usage: `
              Advection.WriteSurfCells writes the surface cells of every step
              to DiagnosticsDir.`,
			defaultVal: false,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.WriteBoundedCells",
			usage: `
              Advection.WriteBoundedCells writes the cells whose fluxes were
              bounded in every step to DiagnosticsDir.`,
			defaultVal: false,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.WriteIsoFaces",
			usage: `
              Advection.WriteIsoFaces writes the interface faces of every step
              to DiagnosticsDir.`,
			defaultVal: false,
			flagsets:   simFlags(),
		},
		{
			name: "Advection.Debug",
			usage: `
              Advection.Debug enables per-cell log messages.`,
			defaultVal: false,
			flagsets:   simFlags(),
		},
		{
			name: "rank",
			usage: `
              rank specifies the partition advected by this worker.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{workerCmd.Flags()},
		},
		{
			name: "peers",
			usage: `
              peers lists the RPC addresses of all workers, in rank order.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{workerCmd.Flags()},
		},
		{
			name: "rpcport",
			usage: `
              rpcport specifies the port this worker listens on for messages
              from the other workers.`,
			defaultVal: "6060",
			flagsets:   []*pflag.FlagSet{workerCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ISOADVECT")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				if err := json.NewEncoder(b).Encode(v); err != nil {
					panic(err)
				}
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(workerCmd)
	Root.AddCommand(configCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("isoadvect: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "isoadvect",
	Short: "A geometric volume of fluid advection model.",
	Long: `isoadvect moves a sharp interface between two phases through a mesh by
reconstructing the interface in every cell it crosses and bounding the
resulting face fluxes so that volume fractions stay within [0, 1].
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ISOADVECT_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of isoadvect.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("isoadvect v%s\n", isoadvect.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd runs every partition of a simulation in this process.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: `run advects the initial volume fraction field through the domain for
NumSteps time steps. When Partitions is greater than one, the domain is split
into slabs that are advected concurrently and exchange fluxes at their shared
faces.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ProblemFromConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd.Context(), cmd.OutOrStdout(), p)
	},
	DisableAutoGenTag: true,
}

// workerCmd runs a single partition of a simulation.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one partition of a distributed simulation.",
	Long: `worker advects partition 'rank' of a domain split into Partitions slabs,
exchanging fluxes over RPC with the workers listed in 'peers'. One worker must
be started for every partition, each with the same configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := ProblemFromConfig(Cfg)
		if err != nil {
			return err
		}
		w, err := WorkerFromConfig(Cfg)
		if err != nil {
			return err
		}
		return RunWorker(cmd.Context(), cmd.OutOrStdout(), p, w)
	},
	DisableAutoGenTag: true,
}

// configCmd prints the advection settings in TOML format.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the advection settings.",
	Long: `config prints the advection settings that result from the defaults, the
configuration file, environment variables and command-line arguments, in
TOML format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := AdvectionConfig(Cfg)
		if err != nil {
			return err
		}
		return c.Write(cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

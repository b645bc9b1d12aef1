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
	"io"
	"net"
	"os"
	"time"

	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/isoadvect"
	"github.com/spatialmodel/isoadvect/cluster"
	"github.com/spatialmodel/isoadvect/plic"
)

// Run runs every partition of p concurrently in this process, writing log
// messages to stdout and to p.LogFile. After the run, the recorded volume
// fraction fields of all partitions are gathered for the NetCDF and plot
// outputs.
func Run(ctx context.Context, stdout io.Writer, p *Problem) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	log, logfile, err := newLogger(stdout, p.LogFile, p.Advection.Debug)
	if err != nil {
		return err
	}
	defer logfile.Close()

	meshes, err := p.Domain.Partition(p.Partitions)
	if err != nil {
		return err
	}
	var network *isoadvect.ChannelNetwork
	if len(meshes) > 1 {
		network = isoadvect.NewChannelNetwork(len(meshes))
	}

	record := p.NetCDFFile != "" || p.PlotFile != ""
	sims := make([]*isoadvect.Simulation, len(meshes))
	recs := make([]*recorder, len(meshes))
	for i, m := range meshes {
		var t isoadvect.Transport
		if network != nil {
			t = network.Transport(i)
		}
		if record {
			recs[i] = &recorder{every: p.OutputInterval, last: p.NumSteps}
		}
		rank := -1
		if len(meshes) > 1 {
			rank = i
		}
		sims[i], err = p.newSimulation(m, t, log.WithField("partition", i), rank, recs[i])
		if err != nil {
			return err
		}
	}

	// A restart replaces the initial field during Init.
	var before *unit.Unit
	if p.RestartFile == "" {
		if before, err = PhaseVolume(meshes, fields(sims)); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"cells":      p.Domain.NumCells(),
		"partitions": len(meshes),
		"steps":      p.NumSteps,
	}).Info("isoadvect: starting simulation")

	if err := isoadvect.RunPartitions(ctx, sims); err != nil {
		return err
	}

	after, err := PhaseVolume(meshes, fields(sims))
	if err != nil {
		return err
	}
	vlog := log.WithField("phaseVolume", fmt.Sprintf("%.6g", after))
	if before != nil {
		vlog = vlog.WithField("change", fmt.Sprintf("%.3g", unit.Sub(after, before)))
	}
	vlog.Info("isoadvect: phase volume")

	if record {
		h, err := gatherHistory(meshes, recs)
		if err != nil {
			return err
		}
		if p.NetCDFFile != "" {
			if err := WriteNetCDF(p.NetCDFFile, p.Domain, h); err != nil {
				return err
			}
		}
		if p.PlotFile != "" {
			if err := PlotProfiles(p.PlotFile, p.Domain, h); err != nil {
				return err
			}
		}
	}
	log.WithField("walltime", time.Since(startTime).String()).Info("isoadvect: simulation complete")
	return nil
}

// RunWorker runs partition w.Rank of p, exchanging processor patch data
// with the other workers over RPC. Output files carry the rank in their
// names.
func RunWorker(ctx context.Context, stdout io.Writer, p *Problem, w *WorkerConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	meshes, err := p.Domain.Partition(p.Partitions)
	if err != nil {
		return err
	}
	if w.Rank >= len(meshes) {
		return fmt.Errorf("isoadvect: rank=%d but there are only %d partitions", w.Rank, len(meshes))
	}
	if len(meshes) > 1 && len(w.Peers) != len(meshes) {
		return fmt.Errorf("isoadvect: %d peers given for %d partitions", len(w.Peers), len(meshes))
	}

	log, logfile, err := newLogger(stdout, rankFile(p.LogFile, w.Rank), p.Advection.Debug)
	if err != nil {
		return err
	}
	defer logfile.Close()
	wlog := log.WithField("partition", w.Rank)

	node, err := cluster.NewNode(w.Rank, net.JoinHostPort("", w.RPCPort), log)
	if err != nil {
		return err
	}
	defer node.Close()
	for r, addr := range w.Peers {
		if r != w.Rank {
			node.AddPeer(r, addr)
		}
	}

	s, err := p.newSimulation(meshes[w.Rank], node, wlog, w.Rank, nil)
	if err != nil {
		return err
	}
	if err := s.Execute(ctx); err != nil {
		return fmt.Errorf("isoadvect: partition %d: %w", w.Rank, err)
	}
	wlog.WithFields(logrus.Fields{
		"walltime":        time.Since(startTime).String(),
		"inconsistencies": s.Inconsistencies(),
	}).Info("isoadvect: worker complete")
	return nil
}

// PhaseVolume returns the volume of the tracked phase summed over the
// partitions of a domain.
func PhaseVolume(meshes []*isoadvect.BoxMesh, alpha [][]float64) (*unit.Unit, error) {
	if len(alpha) != len(meshes) {
		return nil, fmt.Errorf("isoadvect: phase volume: %d fields for %d partitions", len(alpha), len(meshes))
	}
	v := unit.New(0, unit.Meter3)
	for i, m := range meshes {
		if len(alpha[i]) != m.NumCells() {
			return nil, fmt.Errorf("isoadvect: phase volume: partition %d field has %d cells but the mesh has %d",
				i, len(alpha[i]), m.NumCells())
		}
		var sum float64
		for c, a := range alpha[i] {
			sum += a * m.CellVolume(c)
		}
		v.Add(unit.New(sum, unit.Meter3))
	}
	return v, nil
}

func fields(sims []*isoadvect.Simulation) [][]float64 {
	f := make([][]float64, len(sims))
	for i, s := range sims {
		f[i] = s.Alpha()
	}
	return f
}

// newLogger returns a logger writing to stdout and to a new file at path.
func newLogger(stdout io.Writer, path string, debug bool) (*logrus.Logger, io.Closer, error) {
	logfile, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("isoadvect: problem creating log file: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.MultiWriter(stdout, logfile))
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log, logfile, nil
}

// newSimulation sets up the simulation of mesh m. Output file names get
// the rank appended unless rank is negative. rec, if not nil, records the
// volume fraction field.
func (p *Problem) newSimulation(m *isoadvect.BoxMesh, t isoadvect.Transport, log logrus.FieldLogger, rank int, rec *recorder) (*isoadvect.Simulation, error) {
	alpha, err := isoadvect.CellField(m, p.InitialAlpha)
	if err != nil {
		return nil, err
	}
	u, err := isoadvect.NewExprVelocity(p.VelocityExprs[0], p.VelocityExprs[1], p.VelocityExprs[2])
	if err != nil {
		return nil, err
	}
	if err := u.Validate(m.CellCentre(0)); err != nil {
		return nil, err
	}

	// Fixed values only apply to the patches that this partition has.
	fixed := make(map[string]float64)
	for name, v := range p.FixedAlpha {
		if m.PatchByName(name) >= 0 {
			fixed[name] = v
		} else if !isPhysicalPatch(name) {
			return nil, fmt.Errorf("isoadvect: Boundary.FixedAlpha: no boundary patch named %q", name)
		}
	}
	bc, err := isoadvect.NewFixedValue(m, fixed)
	if err != nil {
		return nil, err
	}

	opts := []isoadvect.Option{
		isoadvect.WithConfig(p.Advection),
		isoadvect.WithLogger(log),
		isoadvect.WithBoundaryConditions(bc),
	}
	if t != nil {
		opts = append(opts, isoadvect.WithTransport(t))
	}
	if p.Advection.WriteSurfCells || p.Advection.WriteBoundedCells || p.Advection.WriteIsoFaces {
		diag, err := isoadvect.NewDirectoryWriter(p.DiagnosticsDir, m.Rank)
		if err != nil {
			return nil, err
		}
		opts = append(opts, isoadvect.WithDiagnostics(diag))
	}
	geom := plic.New(m, plic.GradAlphaNormal(p.Advection.GradAlphaNormal))
	adv, err := isoadvect.New(m, geom, u, alpha, isoadvect.FaceFluxes(m, u), opts...)
	if err != nil {
		return nil, err
	}

	// Check the output expressions before the run starts.
	if _, err := isoadvect.NewOutputter(io.Discard, p.OutputVariables, nil); err != nil {
		return nil, err
	}

	name := func(path string) string {
		if rank < 0 {
			return path
		}
		return rankFile(path, rank)
	}

	s := &isoadvect.Simulation{
		Advector: adv,
		Dt:       p.Dt,
	}
	if p.RestartFile != "" {
		s.InitFuncs = append(s.InitFuncs, readFile(name(p.RestartFile), isoadvect.Load))
	}
	if rec != nil {
		s.InitFuncs = append(s.InitFuncs, rec.record())
	}
	s.RunFuncs = []isoadvect.DomainManipulator{
		isoadvect.UpdateFlux(u),
		isoadvect.AdvectStep(),
		isoadvect.Log(log, p.OutputInterval),
	}
	if rec != nil {
		s.RunFuncs = append(s.RunFuncs, rec.record())
	}
	s.RunFuncs = append(s.RunFuncs, isoadvect.RunSteps(p.NumSteps))

	outputVars := p.OutputVariables
	s.CleanupFuncs = append(s.CleanupFuncs, writeFile(name(p.OutputFile), func(w io.Writer) isoadvect.DomainManipulator {
		return func(ctx context.Context, s *isoadvect.Simulation) error {
			o, err := isoadvect.NewOutputter(w, outputVars, nil)
			if err != nil {
				return err
			}
			return o.Output()(ctx, s)
		}
	}))
	if p.SnapshotFile != "" {
		s.CleanupFuncs = append(s.CleanupFuncs, writeFile(name(p.SnapshotFile), isoadvect.Save))
	}
	return s, nil
}

func isPhysicalPatch(name string) bool {
	switch name {
	case "xmin", "xmax", "ymin", "ymax", "zmin", "zmax":
		return true
	}
	return false
}

// writeFile returns a function that creates the file at path and passes
// it to the function made by f.
func writeFile(path string, f func(io.Writer) isoadvect.DomainManipulator) isoadvect.DomainManipulator {
	return func(ctx context.Context, s *isoadvect.Simulation) error {
		w, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("isoadvect: creating %s: %v", path, err)
		}
		if err := f(w)(ctx, s); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	}
}

// readFile returns a function that opens the file at path and passes it
// to the function made by f.
func readFile(path string, f func(io.Reader) isoadvect.DomainManipulator) isoadvect.DomainManipulator {
	return func(ctx context.Context, s *isoadvect.Simulation) error {
		r, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("isoadvect: opening %s: %v", path, err)
		}
		defer r.Close()
		return f(r)(ctx, s)
	}
}

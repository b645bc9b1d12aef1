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

// Package isoadvect transports the volume fraction of one phase of a
// two-phase flow through a finite-volume mesh by reconstructing a planar
// interface in every cell the interface crosses and integrating its
// motion across the cell faces in time.
package isoadvect

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	small = 1e-15

	// downwindTol is the dead band on the face flux used to decide
	// whether a face is downwind of a cell.
	downwindTol = 10 * small

	// boundTol is the overshoot, and the spare face capacity per unit
	// cell volume, below which a cell is considered bounded.
	boundTol = 10 * small
)

// Advector moves a volume fraction field through a mesh one time step at a
// time, reconstructing a planar interface in every surface cell and
// bounding the resulting face fluxes so the field stays within [0, 1].
type Advector struct {
	mesh     Mesh
	geom     GeometryProvider
	velocity VelocityField
	bc       BoundaryConditions
	sync     *Synchronizer
	diag     DiagnosticWriter
	cfg      Config
	log      logrus.FieldLogger
	steps    []StepFunc

	transport Transport

	alpha []float64 // cell volume fractions, owned by the caller
	phi   []float64 // face volumetric fluxes
	dVf   []float64 // face transported volumes

	dt        float64
	timeIndex int
	stepStart time.Time

	surfCells     []int
	bsRecords     []boundaryRecord
	checkBounding []bool
	cellIsBounded []bool
	isoFaces      []IsoFace

	// per boundary face: 1 if the owner is a cut surface cell, for the
	// partition across a processor patch
	cutMarks []float64

	// limiter scratch space
	dVfCorrected []float64
	alpha2       []float64
	corrected    []int
	touched      []bool
	passFaces    []int
	passMax      []float64

	advectionTime time.Duration
}

// boundaryRecord holds the interface data of a surface cell for one of its
// boundary faces, whose flux is computed after the internal faces.
type boundaryRecord struct {
	face    int
	x0, n0  r3.Vec
	un0, f0 float64
}

// IsoFace is the reconstructed interface in one cell.
type IsoFace struct {
	Cell   int
	Centre r3.Vec
	Area   r3.Vec
}

// StepFunc is one phase of an advection time step.
type StepFunc func(ctx context.Context, a *Advector) error

// DefaultSteps returns the phases of a time step in the order they run.
func DefaultSteps() []StepFunc {
	return []StepFunc{
		SeedUpwind(),
		EstimateFluxes(),
		AdjustForMeshMotion(),
		LimitFluxes(),
		ApplyDivergence(),
		ApplyBruteForceBounding(),
		Diagnostics(),
	}
}

// Option configures an Advector.
type Option func(*Advector) error

// WithConfig sets the configuration.
func WithConfig(c Config) Option {
	return func(a *Advector) error {
		if err := c.Validate(); err != nil {
			return err
		}
		a.cfg = c
		return nil
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Advector) error {
		a.log = l
		return nil
	}
}

// WithBoundaryConditions sets the boundary conditions for the volume
// fraction. The default is ZeroGradient.
func WithBoundaryConditions(bc BoundaryConditions) Option {
	return func(a *Advector) error {
		a.bc = bc
		return nil
	}
}

// WithTransport sets the transport used to exchange processor patch data.
// It is required when the mesh has processor patches.
func WithTransport(t Transport) Option {
	return func(a *Advector) error {
		a.transport = t
		return nil
	}
}

// WithDiagnostics sets where cell sets and interface faces are written
// when the configuration asks for them.
func WithDiagnostics(w DiagnosticWriter) Option {
	return func(a *Advector) error {
		a.diag = w
		return nil
	}
}

// WithSteps replaces the phases run by Advect.
func WithSteps(steps ...StepFunc) Option {
	return func(a *Advector) error {
		a.steps = steps
		return nil
	}
}

// New creates an Advector for the volume fraction field alpha and the face
// flux field phi on mesh m. alpha is updated in place by Advect.
func New(m Mesh, g GeometryProvider, u VelocityField, alpha, phi []float64, opts ...Option) (*Advector, error) {
	if m == nil || g == nil || u == nil {
		return nil, fmt.Errorf("isoadvect: mesh, geometry provider and velocity field must all be set")
	}
	if len(alpha) != m.NumCells() {
		return nil, fmt.Errorf("isoadvect: alpha has %d values but the mesh has %d cells", len(alpha), m.NumCells())
	}
	a := &Advector{
		mesh:     m,
		geom:     g,
		velocity: u,
		bc:       ZeroGradient{Mesh: m},
		cfg:      DefaultConfig(),
		log:      logrus.StandardLogger(),
		steps:    DefaultSteps(),
		alpha:    alpha,
	}
	if err := a.SetFlux(phi); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if err := o(a); err != nil {
			return nil, err
		}
	}
	var err error
	a.sync, err = NewSynchronizer(m, a.transport, a.log)
	if err != nil {
		return nil, err
	}

	nCells, nFaces := m.NumCells(), m.NumFaces()
	nBoundary := nFaces - m.NumInternalFaces()
	a.dVf = make([]float64, nFaces)
	a.surfCells = make([]int, 0, nCells/5+1)
	a.bsRecords = make([]boundaryRecord, 0, nBoundary/5+1)
	a.checkBounding = make([]bool, nCells)
	a.cellIsBounded = make([]bool, nCells)
	a.dVfCorrected = make([]float64, nFaces)
	a.alpha2 = make([]float64, nCells)
	a.touched = make([]bool, nFaces)
	a.cutMarks = make([]float64, nBoundary)
	return a, nil
}

// SetFlux replaces the face flux field used by subsequent steps.
func (a *Advector) SetFlux(phi []float64) error {
	if len(phi) != a.mesh.NumFaces() {
		return fmt.Errorf("isoadvect: phi has %d values but the mesh has %d faces", len(phi), a.mesh.NumFaces())
	}
	a.phi = phi
	return nil
}

// Advect advances the volume fraction field by one time step of length dt.
// It blocks while partitions exchange processor patch data; all partitions
// of a domain must call Advect together.
func (a *Advector) Advect(ctx context.Context, dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("isoadvect: time step %g must be >0", dt)
	}
	a.stepStart = time.Now()
	a.dt = dt
	for _, f := range a.steps {
		if err := f(ctx, a); err != nil {
			return err
		}
	}
	a.advectionTime += time.Since(a.stepStart)
	a.timeIndex++
	return nil
}

// IsSurfaceCell reports whether cell holds a mixture of both phases.
func (a *Advector) IsSurfaceCell(cell int) bool {
	return isSurface(a.alpha[cell], a.cfg.SurfCellTol)
}

func isSurface(alpha, tol float64) bool {
	return alpha > tol && alpha < 1-tol
}

// downwind reports whether flow leaves cell through face.
func (a *Advector) downwind(face, cell int) bool {
	phi := a.phi[face]
	if a.mesh.Owner(face) == cell {
		return phi > downwindTol
	}
	return phi < -downwindTol
}

// markForBounding flags cell and its neighbours for the bounding passes.
func (a *Advector) markForBounding(cell int) {
	a.checkBounding[cell] = true
	for _, c := range a.mesh.CellCells(cell) {
		a.checkBounding[c] = true
	}
}

// SeedUpwind sets every face transported volume to its first-order upwind
// value. Processor faces are filled by the partition upwind of them.
func SeedUpwind() StepFunc {
	return func(ctx context.Context, a *Advector) error {
		m := a.mesh
		dt := a.dt
		parallel(m.NumInternalFaces(), func(f int) {
			a.dVf[f] = upwindVolume(a.phi[f], a.alpha[m.Owner(f)], a.alpha[m.Neighbour(f)], dt)
		})
		for _, p := range m.Patches() {
			for f := p.Start; f < p.Start+p.Size; f++ {
				phi := a.phi[f]
				switch {
				case phi > 0:
					a.dVf[f] = phi * a.alpha[m.Owner(f)] * dt
					a.sync.Register(f)
				case p.Processor:
					a.dVf[f] = 0
				default:
					a.dVf[f] = phi * a.bc.Value(f, a.alpha) * dt
				}
			}
		}
		return a.sync.Sync(ctx, a.dVf, a.phi)
	}
}

// EstimateFluxes replaces the upwind volumes on the downwind faces of
// surface cells with the volumes swept by the reconstructed interface.
func EstimateFluxes() StepFunc {
	return func(ctx context.Context, a *Advector) error {
		return a.timeIntegratedFlux(ctx)
	}
}

// AdjustForMeshMotion rescales the volume fractions by the change in cell
// volume when the mesh moves.
func AdjustForMeshMotion() StepFunc {
	return func(_ context.Context, a *Advector) error {
		mm, ok := a.mesh.(MovingMesh)
		if !ok || !mm.Moving() {
			return nil
		}
		for c := range a.alpha {
			a.alpha[c] *= mm.OldCellVolume(c) / mm.CellVolume(c)
		}
		return nil
	}
}

// LimitFluxes redistributes transported volumes so that no cell over- or
// under-fills.
func LimitFluxes() StepFunc {
	return func(ctx context.Context, a *Advector) error {
		return a.limitFluxes(ctx)
	}
}

// ApplyDivergence updates the volume fractions with the net transported
// volume of every cell.
func ApplyDivergence() StepFunc {
	return func(_ context.Context, a *Advector) error {
		m := a.mesh
		parallel(len(a.alpha), func(c int) {
			a.alpha[c] -= netFlux(m, a.dVf, c) / m.CellVolume(c)
		})
		a.bc.Correct(a.alpha)
		if len(a.alpha) > 0 {
			a.log.WithFields(logrus.Fields{
				"min":      floats.Min(a.alpha),
				"max - 1":  floats.Max(a.alpha) - 1,
				"timeStep": a.timeIndex,
			}).Info("isoadvect: volume fraction after conservative bounding")
		}
		return nil
	}
}

// ApplyBruteForceBounding snaps and clips the volume fractions as
// configured. It is the only phase that may change the total volume of
// the tracked phase.
func ApplyBruteForceBounding() StepFunc {
	return func(_ context.Context, a *Advector) error {
		if a.cfg.SnapTol > 0 || a.cfg.Clip {
			bruteForceBound(a.alpha, a.cfg.SnapTol, a.cfg.Clip)
			a.bc.Correct(a.alpha)
		}
		return nil
	}
}

// bruteForceBound sets values within snapTol of 0 or 1 to 0 or 1 and, if
// clip is true, clamps the rest to [0, 1]. Applying it twice has the same
// effect as applying it once.
func bruteForceBound(alpha []float64, snapTol float64, clip bool) {
	for i, v := range alpha {
		if snapTol > 0 {
			if v < snapTol {
				v = 0
			} else if v >= 1-snapTol {
				v = 1
			}
		}
		if clip {
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
		}
		alpha[i] = v
	}
}

// Alpha returns the volume fraction field.
func (a *Advector) Alpha() []float64 { return a.alpha }

// Phi returns the face flux field.
func (a *Advector) Phi() []float64 { return a.phi }

// DVf returns the volumes of the tracked phase transported through each
// face during the last step, relative to the face orientation.
func (a *Advector) DVf() []float64 { return a.dVf }

// Mesh returns the mesh.
func (a *Advector) Mesh() Mesh { return a.mesh }

// Config returns the configuration.
func (a *Advector) Config() Config { return a.cfg }

// TimeIndex returns the number of completed steps.
func (a *Advector) TimeIndex() int { return a.timeIndex }

// SurfaceCells returns the surface cells found at the start of the last
// step.
func (a *Advector) SurfaceCells() []int { return a.surfCells }

// BoundedCells returns the cells whose fluxes were redistributed during
// the last step.
func (a *Advector) BoundedCells() []int {
	var cells []int
	for c, b := range a.cellIsBounded {
		if b {
			cells = append(cells, c)
		}
	}
	return cells
}

// AdvectionTime returns the wall time spent in Advect.
func (a *Advector) AdvectionTime() time.Duration { return a.advectionTime }

// Inconsistencies returns the number of parallel inconsistencies found
// while synchronising processor patches.
func (a *Advector) Inconsistencies() int { return a.sync.Inconsistencies() }

// RhoPhi returns the mass flux through each face for phase densities rho1
// (tracked phase) and rho2, using the transported volumes of the last
// step.
func (a *Advector) RhoPhi(rho1, rho2 float64) []float64 {
	out := make([]float64, len(a.phi))
	for f := range out {
		out[f] = rho2 * a.phi[f]
		if a.dt > 0 {
			out[f] += (rho1 - rho2) * a.dVf[f] / a.dt
		}
	}
	return out
}

// RhoPhiFields is like RhoPhi but takes the phase densities at each face.
func (a *Advector) RhoPhiFields(rho1, rho2 []float64) ([]float64, error) {
	if len(rho1) != len(a.phi) || len(rho2) != len(a.phi) {
		return nil, fmt.Errorf("isoadvect: density fields have %d and %d values but the mesh has %d faces",
			len(rho1), len(rho2), len(a.phi))
	}
	out := make([]float64, len(a.phi))
	for f := range out {
		out[f] = rho2[f] * a.phi[f]
		if a.dt > 0 {
			out[f] += (rho1[f] - rho2[f]) * a.dVf[f] / a.dt
		}
	}
	return out, nil
}

// IsoSurface reconstructs the interface in cell from the current volume
// fractions. The second return value is false if the cell is not cut.
// The interface queries are not collective, so on a partitioned mesh they
// only see the volume fractions of this partition.
func (a *Advector) IsoSurface(cell int) (IsoSurface, bool) {
	if err := a.geom.Prepare(context.Background(), a.alpha, nil); err != nil {
		a.log.WithError(err).Warn("isoadvect: preparing interface reconstruction")
		return IsoSurface{}, false
	}
	return a.cut(cell)
}

func (a *Advector) cut(cell int) (IsoSurface, bool) {
	if !a.IsSurfaceCell(cell) {
		return IsoSurface{}, false
	}
	status, iso := a.geom.CutCell(cell, a.alpha[cell], a.cfg.IsoFaceTol, a.cfg.MaxIter)
	return iso, status == Cut
}

// CellIsCut reports whether the interface crosses cell.
func (a *Advector) CellIsCut(cell int) bool {
	_, ok := a.IsoSurface(cell)
	return ok
}

// InterfaceNormal returns the unit normal of the interface in cell,
// pointing out of the tracked phase.
func (a *Advector) InterfaceNormal(cell int) (r3.Vec, bool) {
	iso, ok := a.IsoSurface(cell)
	if !ok {
		return r3.Vec{}, false
	}
	return iso.Normal()
}

// InterfaceCentre returns the centroid of the interface in cell.
func (a *Advector) InterfaceCentre(cell int) (r3.Vec, bool) {
	iso, ok := a.IsoSurface(cell)
	return iso.Centre, ok
}

// InterfaceArea returns the area vector of the interface in cell.
func (a *Advector) InterfaceArea(cell int) (r3.Vec, bool) {
	iso, ok := a.IsoSurface(cell)
	return iso.Area, ok
}

// Interfaces reconstructs the interface in every cut cell.
func (a *Advector) Interfaces() []IsoFace {
	if err := a.geom.Prepare(context.Background(), a.alpha, nil); err != nil {
		a.log.WithError(err).Warn("isoadvect: preparing interface reconstruction")
		return nil
	}
	var out []IsoFace
	for c := range a.alpha {
		if iso, ok := a.cut(c); ok {
			out = append(out, IsoFace{Cell: c, Centre: iso.Centre, Area: iso.Area})
		}
	}
	return out
}

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
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

const testTolerance = 1e-12

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fixedFraction is a GeometryProvider that cuts every surface cell and
// lets each downwind face of a surface cell carry the fraction frac of
// its flux.
type fixedFraction struct {
	frac   float64
	normal r3.Vec
	mesh   Mesh

	prepared int
	cuts     []int
	faces    []int
}

func (g *fixedFraction) Prepare(context.Context, []float64, Halo) error {
	g.prepared++
	return nil
}

func (g *fixedFraction) CutCell(cell int, alpha, tol float64, _ int) (CellStatus, IsoSurface) {
	switch {
	case alpha <= tol:
		return Below, IsoSurface{}
	case alpha >= 1-tol:
		return Above, IsoSurface{}
	}
	g.cuts = append(g.cuts, cell)
	return Cut, IsoSurface{
		Level:  alpha,
		Centre: g.mesh.CellCentre(cell),
		Area:   g.normal,
	}
}

func (g *fixedFraction) TimeIntegratedFaceFlux(face int, _, _ r3.Vec, _, _, dt, phi, _ float64) float64 {
	g.faces = append(g.faces, face)
	return g.frac * phi * dt
}

func column(t *testing.T, n int) *BoxMesh {
	m, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, n, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newTestAdvector(t *testing.T, m Mesh, u VelocityField, alpha []float64, opts ...Option) (*Advector, *fixedFraction) {
	g := &fixedFraction{frac: 0.5, normal: r3.Vec{X: 1}, mesh: m}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	a, err := New(m, g, u, alpha, FaceFluxes(m, u), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return a, g
}

func TestNew(t *testing.T) {
	m := column(t, 3)
	u := UniformVelocity{X: 1}
	if _, err := New(m, nil, u, make([]float64, 3), FaceFluxes(m, u)); err == nil {
		t.Error("missing geometry provider should be an error")
	}
	g := &fixedFraction{mesh: m}
	if _, err := New(m, g, u, make([]float64, 2), FaceFluxes(m, u)); err == nil {
		t.Error("wrong alpha length should be an error")
	}
	if _, err := New(m, g, u, make([]float64, 3), make([]float64, 2)); err == nil {
		t.Error("wrong phi length should be an error")
	}
	bad := DefaultConfig()
	bad.MaxIter = 0
	if _, err := New(m, g, u, make([]float64, 3), FaceFluxes(m, u), WithConfig(bad)); err == nil {
		t.Error("invalid configuration should be an error")
	}
	d, err := Decompose(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 4, 1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(d[0], g, u, make([]float64, 2), FaceFluxes(d[0], u)); err == nil {
		t.Error("processor patches without a transport should be an error")
	}
}

func TestAdvectRejectsBadStep(t *testing.T) {
	a, _ := newTestAdvector(t, column(t, 3), UniformVelocity{X: 1}, make([]float64, 3))
	for _, dt := range []float64{0, -1, math.NaN()} {
		if err := a.Advect(context.Background(), dt); err == nil {
			t.Errorf("dt=%g should be an error", dt)
		}
	}
	if a.TimeIndex() != 0 {
		t.Errorf("time index %d after failed steps", a.TimeIndex())
	}
}

func TestIsSurface(t *testing.T) {
	const tol = 1e-8
	for _, test := range []struct {
		alpha float64
		want  bool
	}{
		{alpha: 0, want: false},
		{alpha: tol, want: false},
		{alpha: 2 * tol, want: true},
		{alpha: 0.5, want: true},
		{alpha: 1 - 2*tol, want: true},
		{alpha: 1 - tol, want: false},
		{alpha: 1, want: false},
		{alpha: -0.1, want: false},
		{alpha: 1.1, want: false},
	} {
		if got := isSurface(test.alpha, tol); got != test.want {
			t.Errorf("isSurface(%g) = %v, want %v", test.alpha, got, test.want)
		}
	}
}

func TestNetFlux(t *testing.T) {
	m, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 3, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	uniform := make([]float64, m.NumFaces())
	linear := make([]float64, m.NumFaces())
	for f := range uniform {
		uniform[f] = r3.Dot(r3.Vec{X: 1, Y: -2, Z: 0.5}, m.FaceArea(f))
		// u = (x, 0, 0) has unit divergence.
		linear[f] = m.FaceCentre(f).X * m.FaceArea(f).X
	}
	for c := 0; c < m.NumCells(); c++ {
		if v := netFlux(m, uniform, c); math.Abs(v) > testTolerance {
			t.Errorf("cell %d: uniform flow net flux %g", c, v)
		}
		if v := netFlux(m, linear, c); different(v, m.CellVolume(c), testTolerance) {
			t.Errorf("cell %d: linear flow net flux %g, want %g", c, v, m.CellVolume(c))
		}
	}
}

func TestNetFluxSigns(t *testing.T) {
	m, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 3, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	const centre = 13
	owned := []float64{0.1, 0.2, 0.05}
	neighbour := []float64{0.03, 0.04, 0.02}
	dVf := make([]float64, m.NumFaces())
	for _, f := range m.CellFaces(centre) {
		if m.Owner(f) == centre {
			dVf[f], owned = owned[0], owned[1:]
		} else {
			dVf[f], neighbour = neighbour[0], neighbour[1:]
		}
	}
	if len(owned) != 0 || len(neighbour) != 0 {
		t.Fatalf("centre cell should own three faces and neighbour three")
	}
	if v := netFlux(m, dVf, centre); different(v, 0.26, testTolerance) {
		t.Errorf("net flux %g, want 0.26", v)
	}
}

func TestUpwindVolume(t *testing.T) {
	if v := upwindVolume(2, 0.25, 0.75, 0.5); v != 0.25 {
		t.Errorf("outflow from owner: %g", v)
	}
	if v := upwindVolume(-2, 0.25, 0.75, 0.5); v != -0.75 {
		t.Errorf("inflow from neighbour: %g", v)
	}
	if v := upwindVolume(0, 1, 1, 1); v != 0 {
		t.Errorf("no flow: %g", v)
	}
}

func TestSeedUpwind(t *testing.T) {
	m := column(t, 4)
	alpha := []float64{1, 0.5, 0.25, 0}
	fixed, err := NewFixedValue(m, map[string]float64{"xmin": 0.5})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := newTestAdvector(t, m, UniformVelocity{X: 2}, alpha,
		WithBoundaryConditions(fixed), WithSteps(SeedUpwind()))
	if err := a.Advect(context.Background(), 0.1); err != nil {
		t.Fatal(err)
	}
	for f := 0; f < m.NumInternalFaces(); f++ {
		want := 0.2 * alpha[m.Owner(f)]
		if math.Abs(a.DVf()[f]-want) > testTolerance {
			t.Errorf("face %d: dVf %g, want %g", f, a.DVf()[f], want)
		}
	}
	in := m.Patches()[m.PatchByName("xmin")].Start
	if want := -0.2 * 0.5; different(a.DVf()[in], want, testTolerance) {
		t.Errorf("fixed inflow face: dVf %g, want %g", a.DVf()[in], want)
	}
	out := m.Patches()[m.PatchByName("xmax")].Start
	if a.DVf()[out] != 0 {
		t.Errorf("outflow of an empty cell: dVf %g", a.DVf()[out])
	}
	// The volume fractions are only changed by ApplyDivergence.
	if alpha[1] != 0.5 {
		t.Errorf("alpha changed to %g", alpha[1])
	}
}

func TestEstimateFluxes(t *testing.T) {
	m := column(t, 5)
	alpha := []float64{1, 0.6, 0, 0, 0}
	a, g := newTestAdvector(t, m, UniformVelocity{X: 1}, alpha,
		WithSteps(SeedUpwind(), EstimateFluxes()))
	if err := a.Advect(context.Background(), 0.1); err != nil {
		t.Fatal(err)
	}
	if g.prepared != 1 {
		t.Errorf("Prepare called %d times", g.prepared)
	}
	if len(a.SurfaceCells()) != 1 || a.SurfaceCells()[0] != 1 {
		t.Fatalf("surface cells %v", a.SurfaceCells())
	}
	// Face 1 joins cells 1 and 2 and is the only downwind internal face of
	// the surface cell.
	if len(g.faces) != 1 || g.faces[0] != 1 {
		t.Errorf("faces integrated: %v", g.faces)
	}
	if want := 0.5 * 0.1; different(a.DVf()[1], want, testTolerance) {
		t.Errorf("surface cell downwind face: %g, want %g", a.DVf()[1], want)
	}
	if want := 0.1; different(a.DVf()[0], want, testTolerance) {
		t.Errorf("upwind face keeps its seeded value: %g, want %g", a.DVf()[0], want)
	}
	// The neighbours of the surface cell and their neighbours.
	for c, want := range []bool{true, true, true, true, false} {
		if a.checkBounding[c] != want {
			t.Errorf("cell %d flagged for bounding = %v", c, a.checkBounding[c])
		}
	}
}

// A cut cell flags its neighbours for bounding whether or not a processor
// patch lies between them.
func TestEstimateFlagsAcrossPartitions(t *testing.T) {
	alpha := []float64{1, 1, 0.6, 0, 0, 0}
	u := UniformVelocity{X: 1}
	steps := WithSteps(SeedUpwind(), EstimateFluxes())

	serial, _ := newTestAdvector(t, column(t, 6), u, append([]float64(nil), alpha...), steps)
	if err := serial.Advect(context.Background(), 0.1); err != nil {
		t.Fatal(err)
	}

	meshes, err := Decompose(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 6, 1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	net := NewChannelNetwork(2)
	parts := make([]*Advector, 2)
	for i, m := range meshes {
		parts[i], _ = newTestAdvector(t, m, u, append([]float64(nil), alpha[3*i:3*i+3]...),
			steps, WithTransport(net.Transport(i)))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errs := make([]error, len(parts))
	var wg sync.WaitGroup
	for i, a := range parts {
		wg.Add(1)
		go func(i int, a *Advector) {
			defer wg.Done()
			errs[i] = a.Advect(ctx, 0.1)
		}(i, a)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("partition %d: %v", i, err)
		}
	}

	for i, a := range parts {
		for c, flagged := range a.checkBounding {
			g := meshes[i].GlobalCell(c)
			if flagged != serial.checkBounding[g] {
				t.Errorf("cell %d: flagged=%v on partition %d, %v in serial", g, flagged, i, serial.checkBounding[g])
			}
		}
	}
	if !parts[1].checkBounding[0] || parts[1].checkBounding[2] {
		t.Errorf("second partition flags %v", parts[1].checkBounding)
	}
}

func TestEstimateBoundaryFaces(t *testing.T) {
	m := column(t, 2)
	alpha := []float64{0, 0.6}
	a, g := newTestAdvector(t, m, UniformVelocity{X: 1}, alpha,
		WithSteps(SeedUpwind(), EstimateFluxes()))
	if err := a.Advect(context.Background(), 0.1); err != nil {
		t.Fatal(err)
	}
	out := m.Patches()[m.PatchByName("xmax")].Start
	if want := 0.05; different(a.DVf()[out], want, testTolerance) {
		t.Errorf("outflow boundary face: %g, want %g", a.DVf()[out], want)
	}
	for _, f := range g.faces {
		if f != out {
			t.Errorf("flux integrated on face %d with no outflow", f)
		}
	}
}

func TestBruteForceBound(t *testing.T) {
	for _, test := range []struct {
		name    string
		in      []float64
		snapTol float64
		clip    bool
		want    []float64
	}{
		{
			name: "off",
			in:   []float64{-0.1, 0.5, 1.1},
			want: []float64{-0.1, 0.5, 1.1},
		},
		{
			name: "clip",
			in:   []float64{-0.1, 0.5, 1.1},
			clip: true,
			want: []float64{0, 0.5, 1},
		},
		{
			name:    "snap",
			in:      []float64{1e-7, 0.5, 1 - 1e-7, 1e-5},
			snapTol: 1e-6,
			want:    []float64{0, 0.5, 1, 1e-5},
		},
		{
			name:    "snap negative",
			in:      []float64{-1e-3, 1.2},
			snapTol: 1e-6,
			want:    []float64{0, 1},
		},
		{
			name:    "snap and clip",
			in:      []float64{-1e-3, 1e-7, 0.3, 1.2},
			snapTol: 1e-6,
			clip:    true,
			want:    []float64{0, 0, 0.3, 1},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := append([]float64(nil), test.in...)
			bruteForceBound(got, test.snapTol, test.clip)
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("%d: have %g, want %g", i, got[i], test.want[i])
				}
			}
			again := append([]float64(nil), got...)
			bruteForceBound(again, test.snapTol, test.clip)
			for i := range again {
				if again[i] != got[i] {
					t.Errorf("%d: not idempotent: %g then %g", i, got[i], again[i])
				}
			}
		})
	}
}

func TestApplyDivergenceConserves(t *testing.T) {
	m, err := NewBoxMesh(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, 10, 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The phase spreads by at most one cell per step, so nothing reaches
	// the outflow boundaries.
	alpha := make([]float64, m.NumCells())
	for c := range alpha {
		i, j, _ := m.CellIndex(c)
		if i >= 3 && i <= 4 && j >= 3 && j <= 4 {
			alpha[c] = 1
		}
	}
	cfg := DefaultConfig()
	cfg.Clip = false
	a, _ := newTestAdvector(t, m, UniformVelocity{X: 0.5, Y: 0.25}, alpha, WithConfig(cfg))
	before := total(alpha)
	for i := 0; i < 3; i++ {
		if err := a.Advect(context.Background(), 0.5); err != nil {
			t.Fatal(err)
		}
	}
	if after := total(alpha); math.Abs(after-before) > testTolerance {
		t.Errorf("phase volume changed from %g to %g", before, after)
	}
	if a.TimeIndex() != 3 {
		t.Errorf("time index %d", a.TimeIndex())
	}
}

func total(alpha []float64) float64 {
	var s float64
	for _, v := range alpha {
		s += v
	}
	return s
}

func TestRhoPhi(t *testing.T) {
	m := column(t, 3)
	alpha := []float64{1, 0, 0}
	a, _ := newTestAdvector(t, m, UniformVelocity{X: 2}, alpha, WithSteps(SeedUpwind()))
	// Before any step only the second phase density is used.
	for f, v := range a.RhoPhi(1000, 1) {
		if v != a.Phi()[f] {
			t.Errorf("face %d: mass flux %g before the first step", f, v)
		}
	}
	if err := a.Advect(context.Background(), 0.25); err != nil {
		t.Fatal(err)
	}
	rp := a.RhoPhi(1000, 1)
	// Face 0 carries only the tracked phase and face 1 only the other.
	if different(rp[0], 2000, testTolerance) {
		t.Errorf("face 0: %g", rp[0])
	}
	if different(rp[1], 2, testTolerance) {
		t.Errorf("face 1: %g", rp[1])
	}
	n := m.NumFaces()
	rho1, rho2 := make([]float64, n), make([]float64, n)
	for f := range rho1 {
		rho1[f], rho2[f] = 1000, 1
	}
	rpf, err := a.RhoPhiFields(rho1, rho2)
	if err != nil {
		t.Fatal(err)
	}
	for f := range rp {
		if rp[f] != rpf[f] {
			t.Errorf("face %d: field %g, uniform %g", f, rpf[f], rp[f])
		}
	}
	if _, err := a.RhoPhiFields(rho1[:1], rho2); err == nil {
		t.Error("short density field should be an error")
	}
}

func TestInterfaceQueries(t *testing.T) {
	m := column(t, 3)
	alpha := []float64{1, 0.4, 0}
	a, _ := newTestAdvector(t, m, UniformVelocity{X: 1}, alpha)
	if a.CellIsCut(0) || a.CellIsCut(2) {
		t.Error("full and empty cells should not be cut")
	}
	if !a.CellIsCut(1) {
		t.Fatal("surface cell should be cut")
	}
	n, ok := a.InterfaceNormal(1)
	if !ok || n != (r3.Vec{X: 1}) {
		t.Errorf("normal %v, %v", n, ok)
	}
	c, ok := a.InterfaceCentre(1)
	if !ok || c != m.CellCentre(1) {
		t.Errorf("centre %v, %v", c, ok)
	}
	if _, ok := a.InterfaceArea(2); ok {
		t.Error("empty cell has no interface area")
	}
	faces := a.Interfaces()
	if len(faces) != 1 || faces[0].Cell != 1 {
		t.Errorf("interfaces %+v", faces)
	}
}

func TestCellStatusString(t *testing.T) {
	for s, want := range map[CellStatus]string{Below: "below", Cut: "cut", Above: "above", 7: "unknown"} {
		if s.String() != want {
			t.Errorf("%d: %s", int(s), s)
		}
	}
}

// shrinkingMesh is a BoxMesh whose cells were ratio times their current
// volume at the start of the step.
type shrinkingMesh struct {
	*BoxMesh
	ratio float64
}

func (m shrinkingMesh) Moving() bool { return true }

func (m shrinkingMesh) OldCellVolume(c int) float64 { return m.ratio * m.CellVolume(c) }

func TestAdjustForMeshMotion(t *testing.T) {
	m := shrinkingMesh{BoxMesh: column(t, 2), ratio: 0.5}
	alpha := []float64{1, 0.5}
	a, _ := newTestAdvector(t, m, UniformVelocity{}, alpha, WithSteps(AdjustForMeshMotion()))
	if err := a.Advect(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if alpha[0] != 0.5 || alpha[1] != 0.25 {
		t.Errorf("alpha %v", alpha)
	}
}

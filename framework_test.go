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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSimulationSteps(t *testing.T) {
	a, _ := newTestAdvector(t, column(t, 2), UniformVelocity{X: 1}, []float64{1, 0}, WithSteps())
	var inits, cleanups int
	s := &Simulation{
		Advector: a,
		Dt:       0.5,
		InitFuncs: []DomainManipulator{func(context.Context, *Simulation) error {
			inits++
			return nil
		}},
		RunFuncs: []DomainManipulator{AdvectStep(), RunSteps(3)},
		CleanupFuncs: []DomainManipulator{func(context.Context, *Simulation) error {
			cleanups++
			return nil
		}},
	}
	if err := s.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.TimeIndex() != 3 {
		t.Errorf("time index %d, want 3", s.TimeIndex())
	}
	if different(s.Time, 1.5, testTolerance) {
		t.Errorf("time %g, want 1.5", s.Time)
	}
	if inits != 1 || cleanups != 1 {
		t.Errorf("%d init and %d cleanup calls", inits, cleanups)
	}
}

func TestSimulationErrors(t *testing.T) {
	if err := (&Simulation{}).Run(context.Background()); err == nil {
		t.Error("running without an advector should be an error")
	}
	boom := errors.New("boom")
	fail := func(context.Context, *Simulation) error { return boom }
	s := &Simulation{InitFuncs: []DomainManipulator{fail}}
	if err := s.Execute(context.Background()); !errors.Is(err, boom) {
		t.Errorf("init error: %v", err)
	}
	s = &Simulation{CleanupFuncs: []DomainManipulator{fail}}
	if err := s.Cleanup(context.Background()); !errors.Is(err, boom) {
		t.Errorf("cleanup error: %v", err)
	}
}

func TestUpdateFlux(t *testing.T) {
	m := column(t, 2)
	u, err := NewExprVelocity("t", "0", "0")
	if err != nil {
		t.Fatal(err)
	}
	a, _ := newTestAdvector(t, m, u, []float64{1, 0}, WithSteps())
	s := &Simulation{Advector: a, Time: 2}
	if err := UpdateFlux(u)(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if s.Phi()[0] != 2 {
		t.Errorf("flux %g at t=2, want 2", s.Phi()[0])
	}
}

func TestLog(t *testing.T) {
	buf := new(bytes.Buffer)
	l := logrus.New()
	l.SetOutput(buf)
	a, _ := newTestAdvector(t, column(t, 2), UniformVelocity{X: 1}, []float64{1, 0.5}, WithSteps())
	s := &Simulation{Advector: a, Dt: 1}
	f := Log(l, 2)
	for i := 0; i < 3; i++ {
		if err := f(context.Background(), s); err != nil {
			t.Fatal(err)
		}
		if err := AdvectStep()(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	}
	// Steps 0 and 2 are logged.
	if n := strings.Count(buf.String(), "step complete"); n != 2 {
		t.Errorf("%d log entries, want 2:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "phaseVolume=1.5") {
		t.Errorf("missing phase volume:\n%s", buf.String())
	}
}

func TestRunPartitionsError(t *testing.T) {
	boom := errors.New("boom")
	wait := &Simulation{
		Advector: &Advector{},
		RunFuncs: []DomainManipulator{func(ctx context.Context, _ *Simulation) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}
	fail := &Simulation{
		Advector: &Advector{},
		RunFuncs: []DomainManipulator{func(context.Context, *Simulation) error { return boom }},
	}
	err := RunPartitions(context.Background(), []*Simulation{wait, fail})
	if !errors.Is(err, boom) {
		t.Fatalf("error %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "partition 1") {
		t.Errorf("error %q does not name the partition", err)
	}
}

func TestParallel(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000} {
		out := make([]int, n)
		parallel(n, func(i int) { out[i] = i + 1 })
		for i, v := range out {
			if v != i+1 {
				t.Fatalf("n=%d: index %d not visited", n, i)
			}
		}
	}
}

package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ionmd/ionmd/internal/ccd"
	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/pointcloud"
	"github.com/ionmd/ionmd/internal/sim"
	"github.com/ionmd/ionmd/internal/trajectory"
)

var ca40 = sim.Species{Mass: 40, Charge: 1}

func quiet(dir string) *Engine {
	return New(WithDir(dir), WithLogger(log.New(io.Discard)))
}

func testParams(steps int) config.Params {
	p := config.DefaultParams()
	p.NumSteps = steps
	p.BufferSize = 64
	p.CCDBins = 0
	return p
}

// closeRel compares at the precision WriteXYZ keeps.
func closeRel(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func TestRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	p := testParams(500)
	p.CCDBins = 16
	p.CCDExtent = 2000

	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{
		{Species: ca40, Position: sim.Vec3{Z: -5}},
		{Species: ca40, Position: sim.Vec3{Z: 5}},
	}}
	e := quiet(dir)
	if err := e.Run(context.Background(), snap); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if step, total := e.Progress(); step != 500 || total != 500 {
		t.Errorf("progress = %d/%d, want 500/500", step, total)
	}

	series, err := trajectory.Decode(filepath.Join(dir, p.Filename), 2, 500)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if z := series.At(0, 0, 2); math.Abs(z+5) > 1e-9 {
		t.Errorf("step 0 should hold the initial position, got z=%g", z)
	}
	if z0, z1 := series.At(499, 0, 2), series.At(499, 1, 2); !(z0 < 0 && z1 > 0) || math.Abs(z0+z1) > 1e-6 {
		t.Errorf("pair should stay symmetric about the trap centre: %g %g", z0, z1)
	}

	recs, err := pointcloud.ReadXYZ(filepath.Join(dir, p.FPosFilename))
	if err != nil {
		t.Fatalf("read fpos failed: %v", err)
	}
	if len(recs) != 2 || !closeRel(recs[1].Position.Z, series.At(499, 1, 2), 1e-8) {
		t.Errorf("final positions do not match last step: %+v", recs)
	}

	h, err := ccd.ReadHistogram(filepath.Join(dir, "ccd_1.dat"), 16)
	if err != nil {
		t.Fatalf("read histogram failed: %v", err)
	}
	var total float64
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			total += h.Grid.At(i, j)
		}
	}
	if total != 1000 {
		t.Errorf("expected every ion sample binned, got %g", total)
	}
	if _, err := os.Stat(filepath.Join(dir, "ccd_2.dat")); !os.IsNotExist(err) {
		t.Error("single species run should write one detector file")
	}
}

func TestHarmonicOscillation(t *testing.T) {
	p := testParams(400)
	p.Dt = 1e-7
	p.CoulombEnabled = false

	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{{Species: ca40, Position: sim.Vec3{X: 1}}}}
	dir := t.TempDir()
	if err := quiet(dir).Run(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	series, err := trajectory.Decode(filepath.Join(dir, p.Filename), 1, 400)
	if err != nil {
		t.Fatal(err)
	}

	// half a 30 kHz period is ~167 steps of 0.1 us
	if x := series.At(167, 0, 0); math.Abs(x+1) > 1e-2 {
		t.Errorf("expected x near -1 after half a period, got %g", x)
	}
	if y := series.At(167, 0, 1); y != 0 {
		t.Errorf("y should stay at zero, got %g", y)
	}
}

func TestCoulombEquilibrium(t *testing.T) {
	p := testParams(20000)
	p.DopplerEnabled = true

	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{
		{Species: ca40, Position: sim.Vec3{Z: -5}},
		{Species: ca40, Position: sim.Vec3{Z: 5}},
	}}
	dir := t.TempDir()
	if err := quiet(dir).Run(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	recs, err := pointcloud.ReadXYZ(filepath.Join(dir, p.FPosFilename))
	if err != nil {
		t.Fatal(err)
	}

	m := 40 * AMU
	w := 2 * math.Pi * p.SecularFreq[2]
	want := math.Cbrt(2*Coulomb*Elementary*Elementary/(m*w*w)) * 1e6
	got := recs[1].Position.Z - recs[0].Position.Z
	if math.Abs(got-want) > 0.1 {
		t.Errorf("separation %g um, want %g um", got, want)
	}
}

func TestPairReleaseConservesEnergy(t *testing.T) {
	p := testParams(2000)

	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{
		{Species: ca40, Position: sim.Vec3{Z: -5}},
		{Species: ca40, Position: sim.Vec3{Z: 5}},
	}}
	dir := t.TempDir()
	if err := quiet(dir).Run(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	series, err := trajectory.Decode(filepath.Join(dir, p.Filename), 2, 2000)
	if err != nil {
		t.Fatal(err)
	}

	// Released from 10 um apart, the turning point d solves
	// k e^2/d + m w^2 d^2/4 = k e^2/d0. For 10 kHz axial that is ~588 um.
	m := 40 * AMU
	w := 2 * math.Pi * p.SecularFreq[2]
	ke2 := Coulomb * Elementary * Elementary
	energy := ke2/10e-6 + m*w*w*10e-6*10e-6/4
	lo, hi := 10e-6, 1e-2
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if ke2/mid+m*w*w*mid*mid/4 < energy {
			lo = mid
		} else {
			hi = mid
		}
	}
	dmax := lo * 1e6

	var widest float64
	for k := 0; k < series.NumSteps; k++ {
		z0, z1 := series.At(k, 0, 2), series.At(k, 1, 2)
		if z1 <= z0 {
			t.Fatalf("ions crossed at step %d: %g %g", k, z0, z1)
		}
		widest = math.Max(widest, z1-z0)
	}
	if widest > dmax*1.03 {
		t.Errorf("separation reached %g um, energy allows %g um", widest, dmax)
	}
	if widest < dmax*0.9 {
		t.Errorf("separation only reached %g um, expected about %g um", widest, dmax)
	}
}

func TestSubstepsForClosePairs(t *testing.T) {
	p := testParams(1)
	pair := []sim.Particle{
		{Species: ca40, Position: sim.Vec3{Z: -5}},
		{Species: ca40, Position: sim.Vec3{Z: 5}},
	}
	sys := newSystem(p, pair)
	if n := sys.substeps(sys.initialState(pair), 0, p.Dt); n < 10 {
		t.Errorf("10 um apart at rest should need substeps, got %d", n)
	}

	single := pair[:1]
	sys = newSystem(p, single)
	if n := sys.substeps(sys.initialState(single), 0, p.Dt); n != 1 {
		t.Errorf("a lone ion needs no substeps, got %d", n)
	}

	p.MicromotionEnabled = true
	sys = newSystem(p, single)
	if n := sys.substeps(sys.initialState(single), 0, p.Dt); n != int(math.Ceil(p.Dt*p.RFFreq*rfSamples)) {
		t.Errorf("micromotion should sample the RF period, got %d substeps", n)
	}
}

func TestStochasticSeeded(t *testing.T) {
	run := func(seed int64) []byte {
		p := testParams(200)
		p.StochasticEnabled = true
		p.DopplerEnabled = true
		p.Seed = seed
		dir := t.TempDir()
		snap := sim.Snapshot{Params: p, Particles: []sim.Particle{{Species: ca40}}}
		if err := quiet(dir).Run(context.Background(), snap); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(filepath.Join(dir, p.Filename))
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	a, b, c := run(3), run(3), run(4)
	if !bytes.Equal(a, b) {
		t.Error("same seed should reproduce the trajectory")
	}
	if bytes.Equal(a, c) {
		t.Error("different seeds should differ")
	}
}

func TestMixedSpeciesDetectors(t *testing.T) {
	p := testParams(50)
	p.CCDBins = 8
	be9 := sim.Species{Mass: 9, Charge: 1}
	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{
		{Species: ca40, Position: sim.Vec3{Z: -20}},
		{Species: ca40, Position: sim.Vec3{Z: 0}},
		{Species: be9, Position: sim.Vec3{Z: 20}},
	}}
	dir := t.TempDir()
	if err := quiet(dir).Run(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	c := ccd.NewCompositor(8, nil)
	c.Log = log.New(io.Discard)
	img, skipped, err := c.Composite(ccd.DetectorPaths(filepath.Join(dir, p.CCDPrefix), 2))
	if err != nil || len(skipped) != 0 {
		t.Fatalf("composite failed: %v %v", err, skipped)
	}
	if img.Bins != 8 {
		t.Errorf("unexpected image size %d", img.Bins)
	}
}

func TestRunRejectsBadSnapshot(t *testing.T) {
	e := quiet(t.TempDir())
	if err := e.Run(context.Background(), sim.Snapshot{Params: testParams(10)}); !errors.Is(err, sim.ErrEmptySystem) {
		t.Errorf("expected ErrEmptySystem, got %v", err)
	}

	p := testParams(10)
	p.Dt = 0
	snap := sim.Snapshot{Params: p, Particles: []sim.Particle{{Species: ca40}}}
	if err := e.Run(context.Background(), snap); err == nil {
		t.Error("expected invalid params error")
	}
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := sim.Snapshot{Params: testParams(10), Particles: []sim.Particle{{Species: ca40}}}
	if err := quiet(t.TempDir()).Run(ctx, snap); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestControllerRun(t *testing.T) {
	dir := t.TempDir()
	ctrl := sim.New(quiet(dir), sim.WithLogger(log.New(io.Discard)))
	if err := ctrl.Configure(testParams(100)); err != nil {
		t.Fatal(err)
	}
	for _, z := range []float64{-10, 0, 10} {
		if err := ctrl.AddParticle(ca40, sim.Vec3{Z: z}); err != nil {
			t.Fatal(err)
		}
	}
	if err := ctrl.Start(); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.WaitUntilFinished(time.Millisecond, 10*time.Second); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if ctrl.PollStatus() != sim.Finished {
		t.Errorf("expected FINISHED, got %s", ctrl.PollStatus())
	}

	info, err := os.Stat(filepath.Join(dir, config.DefaultFilename))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != int64(trajectory.ExpectedSize(3, 100)) {
		t.Errorf("unexpected trajectory size %d", info.Size())
	}
}

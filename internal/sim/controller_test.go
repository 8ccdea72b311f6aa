package sim_test

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ionmd/ionmd/internal/config"
	"github.com/ionmd/ionmd/internal/sim"
)

type gatedEngine struct {
	got     chan sim.Snapshot
	release chan struct{}
	err     error
}

func newGatedEngine(err error) *gatedEngine {
	return &gatedEngine{
		got:     make(chan sim.Snapshot, 1),
		release: make(chan struct{}),
		err:     err,
	}
}

func (e *gatedEngine) Run(ctx context.Context, snap sim.Snapshot) error {
	e.got <- snap
	<-e.release
	return e.err
}

var calcium = sim.Species{Mass: 40, Charge: 1}

var _ = Describe("Controller", func() {
	var (
		engine *gatedEngine
		ctrl   *sim.Controller
	)

	BeforeEach(func() {
		engine = newGatedEngine(nil)
		ctrl = sim.New(engine, sim.WithLogger(log.New(io.Discard)))
	})

	AfterEach(func() {
		select {
		case <-engine.release:
		default:
			close(engine.release)
		}
	})

	Describe("configuration", func() {
		It("starts idle with valid default parameters", func() {
			Expect(ctrl.PollStatus()).To(Equal(sim.Idle))
			Expect(ctrl.Params().Validate()).To(Succeed())
		})

		It("rejects missing or non-positive required fields", func() {
			for _, mod := range []func(p *config.Params){
				func(p *config.Params) { p.Filename = "" },
				func(p *config.Params) { p.Dt = 0 },
				func(p *config.Params) { p.NumSteps = -3 },
			} {
				p := config.DefaultParams()
				mod(&p)
				Expect(ctrl.Configure(p)).To(MatchError(sim.ErrInvalidConfiguration))
			}
			Expect(ctrl.Params()).To(Equal(config.DefaultParams()))
		})

		It("accepts a valid configuration before start", func() {
			p := config.DefaultParams()
			p.NumSteps = 100
			Expect(ctrl.Configure(p)).To(Succeed())
			Expect(ctrl.Params().NumSteps).To(Equal(100))
		})

		It("rejects ions with non-positive mass", func() {
			err := ctrl.AddParticle(sim.Species{Mass: 0, Charge: 1}, sim.Vec3{})
			Expect(err).To(MatchError(sim.ErrInvalidConfiguration))
		})
	})

	Describe("start", func() {
		It("fails with an empty system", func() {
			Expect(ctrl.Start()).To(MatchError(sim.ErrEmptySystem))
			Expect(ctrl.PollStatus()).To(Equal(sim.Idle))
		})

		It("returns while the engine is still running", func() {
			Expect(ctrl.AddParticle(calcium, sim.Vec3{Z: -5})).To(Succeed())
			Expect(ctrl.Start()).To(Succeed())
			Expect(ctrl.PollStatus()).To(Equal(sim.Running))
			Eventually(engine.got).Should(Receive())
			Consistently(ctrl.PollStatus, 50*time.Millisecond).Should(Equal(sim.Running))
		})

		It("rejects a second start and any later mutation", func() {
			Expect(ctrl.AddParticle(calcium, sim.Vec3{})).To(Succeed())
			Expect(ctrl.Start()).To(Succeed())

			err := ctrl.Start()
			Expect(err).To(MatchError(sim.ErrInvalidState))
			var se *sim.StateError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Status).To(Equal(sim.Running))

			Expect(ctrl.AddParticle(calcium, sim.Vec3{Z: 1})).To(MatchError(sim.ErrInvalidState))
			Expect(ctrl.Configure(config.DefaultParams())).To(MatchError(sim.ErrInvalidConfiguration))
			Expect(ctrl.Particles()).To(HaveLen(1))
		})

		It("hands the engine a frozen copy in particle order", func() {
			p := config.DefaultParams()
			p.Filename = "frozen.bin"
			Expect(ctrl.Configure(p)).To(Succeed())
			Expect(ctrl.AddParticle(calcium, sim.Vec3{Z: -5})).To(Succeed())
			Expect(ctrl.AddParticle(sim.Species{Mass: 9, Charge: 1}, sim.Vec3{Z: 5})).To(Succeed())
			Expect(ctrl.Start()).To(Succeed())

			var snap sim.Snapshot
			Eventually(engine.got).Should(Receive(&snap))
			Expect(snap.Params.Filename).To(Equal("frozen.bin"))
			Expect(snap.NumIons()).To(Equal(2))
			Expect(snap.Particles[1].Species.Mass).To(Equal(9))

			snap.Particles[0].Position.Z = 100
			Expect(ctrl.Particles()[0].Position.Z).To(Equal(-5.0))
			own, ok := ctrl.Snapshot()
			Expect(ok).To(BeTrue())
			Expect(own.Particles[0].Position.Z).To(Equal(-5.0))
		})
	})

	Describe("waiting", func() {
		BeforeEach(func() {
			Expect(ctrl.AddParticle(calcium, sim.Vec3{})).To(Succeed())
		})

		It("refuses to wait on an idle controller", func() {
			Expect(ctrl.WaitUntilFinished(time.Millisecond, time.Second)).To(MatchError(sim.ErrInvalidState))
		})

		It("requires a positive poll interval", func() {
			Expect(ctrl.Start()).To(Succeed())
			Expect(ctrl.WaitUntilFinished(0, time.Second)).To(MatchError(sim.ErrInvalidConfiguration))
		})

		It("returns once the engine finishes", func() {
			Expect(ctrl.Start()).To(Succeed())
			go func() {
				time.Sleep(20 * time.Millisecond)
				close(engine.release)
			}()
			Expect(ctrl.WaitUntilFinished(5*time.Millisecond, 2*time.Second)).To(Succeed())
			Expect(ctrl.PollStatus()).To(Equal(sim.Finished))
			Expect(ctrl.Err()).NotTo(HaveOccurred())
			Eventually(ctrl.Done()).Should(BeClosed())
		})

		It("times out without stopping the engine", func() {
			Expect(ctrl.Start()).To(Succeed())

			start := time.Now()
			err := ctrl.WaitUntilFinished(20*time.Millisecond, 100*time.Millisecond)
			Expect(err).To(MatchError(sim.ErrTimeout))
			Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))

			var te *sim.TimeoutError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Last).To(Equal(sim.Running))
			Expect(te.Polls).To(BeNumerically("<=", 7))

			Expect(ctrl.PollStatus()).To(Equal(sim.Running))
			close(engine.release)
			Expect(ctrl.WaitUntilFinished(5*time.Millisecond, 0)).To(Succeed())
		})

		It("honours a timeout shorter than the poll interval", func() {
			Expect(ctrl.Start()).To(Succeed())

			start := time.Now()
			err := ctrl.WaitUntilFinished(time.Second, 50*time.Millisecond)
			waited := time.Since(start)
			Expect(err).To(MatchError(sim.ErrTimeout))
			Expect(waited).To(BeNumerically(">=", 50*time.Millisecond))
			Expect(waited).To(BeNumerically("<", 500*time.Millisecond))

			var te *sim.TimeoutError
			Expect(errors.As(err, &te)).To(BeTrue())
			Expect(te.Polls).To(Equal(1))
		})

		It("reports engine failures", func() {
			boom := errors.New("disk full")
			engine.err = boom
			Expect(ctrl.Start()).To(Succeed())
			close(engine.release)

			err := ctrl.WaitUntilFinished(time.Millisecond, time.Second)
			Expect(err).To(MatchError(sim.ErrEngine))
			Expect(err.Error()).To(ContainSubstring("disk full"))
			Expect(ctrl.PollStatus()).To(Equal(sim.Errored))
			Expect(ctrl.Err()).To(MatchError(boom))
		})
	})

	It("notifies observers of the terminal status", func() {
		results := make(chan sim.Status, 1)
		c := sim.New(sim.EngineFunc(func(ctx context.Context, snap sim.Snapshot) error { return nil }),
			sim.WithLogger(log.New(io.Discard)),
			sim.WithObserver(func(st sim.Status, err error) { results <- st }))
		Expect(c.AddParticle(calcium, sim.Vec3{})).To(Succeed())
		Expect(c.Start()).To(Succeed())
		Eventually(results).Should(Receive(Equal(sim.Finished)))
		Expect(c.Elapsed()).To(BeNumerically(">", 0))
	})
})

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cooniur/lwt/internal/config"
	"github.com/cooniur/lwt/internal/telemetry"
	"github.com/cooniur/lwt/lwt"
)

func newDemoCommand(cfg config.Config) *cobra.Command {
	var scenario string
	var iterations int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a canned scheduler scenario",
		Long:  "Runs one of the scheduler scenarios translated from the original lwt driver programs (main.c/main_backup.c): forkjoin, bounce, sequence, identity, directed-yield, channels, or all.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := telemetry.NewLogger(cmd.Flag("log-level").Value.String())
			return runDemo(logger, scenario, iterations)
		},
	}

	cmd.Flags().StringVarP(&scenario, "scenario", "s", "all",
		"forkjoin, bounce, sequence, identity, directed-yield, channels, or all")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10000, "iteration count for timing scenarios")

	return cmd
}

func runDemo(log *zap.SugaredLogger, scenario string, iterations int) error {
	scenarios := map[string]func(*zap.SugaredLogger, int){
		"forkjoin":       scenarioForkJoin,
		"bounce":         scenarioBounce,
		"sequence":       scenarioSequence,
		"identity":       scenarioIdentity,
		"directed-yield": scenarioDirectedYield,
		"channels":       scenarioChannels,
	}

	if scenario == "all" {
		for _, name := range []string{"forkjoin", "bounce", "sequence", "identity", "directed-yield", "channels"} {
			scenarios[name](log, iterations)
		}
		return nil
	}

	fn, ok := scenarios[scenario]
	if !ok {
		return fmt.Errorf("lwtctl: unknown scenario %q", scenario)
	}
	fn(log, iterations)
	return nil
}

// scenarioForkJoin measures fork/join overhead: spawn a no-op fiber and
// join it, repeated n times. Translated from main_backup.c's rdtscll
// timing loop (cycle counts replaced with wall-clock duration, since Go
// offers no portable cycle counter).
func scenarioForkJoin(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	start := time.Now()
	for i := 0; i < n; i++ {
		child := w.Spawn("forkjoin-child", lwt.FlagNone, func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
			return nil
		}, nil, nil)
		if _, err := main.Join(child); err != nil {
			log.Infow("forkjoin: join failed", "error", err)
		}
	}
	elapsed := time.Since(start)

	log.Infow("scenario: forkjoin", "iterations", n, "total", elapsed, "per_op", elapsed/time.Duration(n))
	w.Close()
}

// scenarioBounce spawns two fibers that yield in a tight loop, measuring
// per-yield overhead. Translated from main.c's fn_bounce.
func scenarioBounce(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	bounce := func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
		self.Yield(nil)
		self.Yield(nil)
		for i := 0; i < n; i++ {
			self.Yield(nil)
		}
		self.Yield(nil)
		self.Yield(nil)
		return nil
	}

	c1 := w.Spawn("bounce-1", lwt.FlagNone, bounce, nil, nil)
	c2 := w.Spawn("bounce-2", lwt.FlagNone, bounce, nil, nil)

	start := time.Now()
	if _, err := main.Join(c1); err != nil {
		log.Infow("bounce: join c1 failed", "error", err)
	}
	if _, err := main.Join(c2); err != nil {
		log.Infow("bounce: join c2 failed", "error", err)
	}
	elapsed := time.Since(start)

	log.Infow("scenario: bounce", "iterations", n, "total", elapsed)
	w.Close()
}

// scenarioSequence asserts two fibers strictly alternate execution under
// round-robin yield. Translated from main.c's fn_sequence.
func scenarioSequence(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	var sched [2]int
	curr := 0

	seq := func(val int) lwt.EntryFunc {
		return func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
			for i := 0; i < n; i++ {
				other := curr
				curr = (curr + 1) % 2
				sched[curr] = val
				if sched[other] == val {
					panic("lwt demo: sequence invariant violated")
				}
				self.Yield(nil)
			}
			return nil
		}
	}

	c1 := w.Spawn("sequence-1", lwt.FlagNone, seq(1), nil, nil)
	c2 := w.Spawn("sequence-2", lwt.FlagNone, seq(2), nil, nil)

	main.Join(c2)
	main.Join(c1)

	log.Infow("scenario: sequence", "iterations", n, "ok", true)
	w.Close()
}

// scenarioIdentity spawns a fiber that returns its argument unchanged,
// and joins it, confirming the value round trips. Translated from
// main.c's fn_identity / fn_join.
func scenarioIdentity(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	const sentinel = 0x37337

	identity := func(self *lwt.Fiber, arg any, _ *lwt.Channel) any { return arg }

	c1 := w.Spawn("identity", lwt.FlagNone, identity, sentinel, nil)

	ret, err := main.Join(c1)
	if err != nil {
		log.Infow("identity: join failed", "error", err)
		w.Close()
		return
	}
	log.Infow("scenario: identity", "expected", sentinel, "got", ret, "ok", ret == sentinel)
	w.Close()
}

// scenarioDirectedYield spawns a no-op fiber and directs the CPU to it
// immediately with Yield(target), then confirms it landed in the zombie
// queue (FINISHED, unjoined) before joining it. Translated from main.c's
// directed-yield functional test.
func scenarioDirectedYield(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	child := w.Spawn("directed-yield-child", lwt.FlagNone, func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
		return nil
	}, nil, nil)

	main.Yield(child)
	zombies := w.Info(lwt.InfoZombies)

	if _, err := main.Join(child); err != nil {
		log.Infow("directed-yield: join failed", "error", err)
	}
	log.Infow("scenario: directed-yield", "zombies_after_yield", zombies, "ok", zombies == 1)
	w.Close()
}

// scenarioChannels runs the public/private channel dance from main.c's
// fn_snd/fn_rcv: the receiver sends a reply channel over the sender's
// public channel; the sender sends a count over it, then streams that many
// values; the receiver reads them all.
func scenarioChannels(log *zap.SugaredLogger, n int) {
	w := lwt.NewRootWorker()
	main := w.Main()

	// public is the C original's global public_c: a rendezvous channel the
	// sender creates (becoming its receiver) and the receiver later sends
	// a reply channel over. A directed yield to the sender below
	// guarantees it has run far enough to assign this before the receiver
	// fiber ever looks at it — the Go equivalent of the original's
	// execution-order dependency on a shared global.
	var public *lwt.Channel

	sender := func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
		public = lwt.NewChannel(self, 0, "public")
		replyChan := public.RecvChan(self)

		count := 10
		replyChan.Send(self, count)

		for i := 0; i < count; i++ {
			replyChan.Send(self, i*2)
		}
		return nil
	}

	receiver := func(self *lwt.Fiber, arg any, _ *lwt.Channel) any {
		reply := lwt.NewChannel(self, 5, "reply")
		public.SendChan(self, reply)

		count := reply.Recv(self).(int)
		received := make([]int, 0, count)
		for i := 0; i < count; i++ {
			received = append(received, reply.Recv(self).(int))
		}
		return received
	}

	c1 := w.Spawn("sender", lwt.FlagNone, sender, nil, nil)
	c2 := w.Spawn("receiver", lwt.FlagNone, receiver, nil, nil)

	main.Yield(c1)

	ret, err := main.Join(c2)
	if err != nil {
		log.Infow("channels: join receiver failed", "error", err)
	}
	if _, err := main.Join(c1); err != nil {
		log.Infow("channels: join sender failed", "error", err)
	}

	log.Infow("scenario: channels", "received", ret)
	w.Close()
}

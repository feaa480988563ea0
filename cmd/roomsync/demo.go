package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomsync-dev/roomsync/pkg/client"
	"github.com/roomsync-dev/roomsync/pkg/protocol"
	"github.com/roomsync-dev/roomsync/pkg/transformsync"
)

// demoCmd runs two participants against a coordination server: a host that
// drives an entity in a circle and a guest that watches the smoothed remote
// pose and the latency estimate.
func demoCmd() *cobra.Command {
	var (
		addr     string
		duration time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a two-participant synchronization demo",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}

			newParticipant := func(name string) (*client.Client, *poseSpawner) {
				spawner := &poseSpawner{}
				cfg := client.DefaultConfig()
				cfg.ServerAddr = addr
				cfg.Logger = logger.With("participant", name)
				cfg.Spawner = spawner
				c := client.New(cfg, client.Callbacks{})
				spawner.latency = c.Latency
				return c, spawner
			}

			host, _ := newParticipant("host")
			defer host.Close()
			guest, guestSpawner := newParticipant("guest")
			defer guest.Close()

			if err := guest.RegisterEvent("pulse", []client.ArgKind{client.KindInt},
				func(target *client.Entity, args []any) {
					fmt.Printf("pulse %d from entity %d\n", args[0], target.ID)
				}); err != nil {
				return err
			}
			// The host raises the pulse; its own echoed copy does nothing.
			if err := host.RegisterEvent("pulse", []client.ArgKind{client.KindInt},
				func(*client.Entity, []any) {}); err != nil {
				return err
			}

			host.Connect("host")
			if err := waitFor(host, 5*time.Second, func() bool { return host.PlayerID() != "" }); err != nil {
				return fmt.Errorf("host connect: %w", err)
			}
			host.CreateOrJoinRoom("demo", 8)
			if err := waitFor(host, 5*time.Second, func() bool { return host.State() == client.StateInRoom }); err != nil {
				return fmt.Errorf("host join: %w", err)
			}

			host.Dispatch(func() {
				if err := host.Instantiate("marker", protocol.Vec3{}, protocol.Vec3{}); err != nil {
					logger.Error("instantiate marker", "error", err)
				}
			})
			if err := waitFor(host, 5*time.Second, func() bool { return host.Directory().Len() == 1 }); err != nil {
				return fmt.Errorf("marker spawn: %w", err)
			}

			guest.Connect("guest")
			if err := waitFor(guest, 5*time.Second, func() bool { return guest.PlayerID() != "" }); err != nil {
				return fmt.Errorf("guest connect: %w", err)
			}
			guest.JoinRoom("demo")
			if err := waitFor(guest, 5*time.Second, func() bool { return guest.Directory().Len() == 1 }); err != nil {
				return fmt.Errorf("guest join: %w", err)
			}

			// Drive the host's marker in a circle.
			stop := make(chan struct{})
			defer close(stop)
			go func() {
				start := time.Now()
				ticker := time.NewTicker(16 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case now := <-ticker.C:
						angle := now.Sub(start).Seconds()
						pose := transformsync.Pose{Position: protocol.Vec3{
							X: math.Cos(angle), Z: math.Sin(angle),
						}}
						host.Dispatch(func() {
							for _, e := range host.Directory().OwnedBy(host.PlayerID()) {
								if body, ok := e.Body.(*transformsync.Body); ok {
									body.SetLocal(pose)
								}
							}
						})
					}
				}
			}()

			deadline := time.After(duration)
			report := time.NewTicker(500 * time.Millisecond)
			defer report.Stop()
			pulse := time.NewTicker(2 * time.Second)
			defer pulse.Stop()
			n := 0
			for {
				select {
				case <-deadline:
					host.Disconnect()
					guest.Disconnect()
					return nil
				case <-pulse.C:
					n++
					seq := n
					host.Dispatch(func() {
						for _, e := range host.Directory().OwnedBy(host.PlayerID()) {
							if err := host.CallEvent(e.ID, "pulse", client.ServerRelayed, seq); err != nil {
								logger.Error("pulse event", "error", err)
							}
						}
					})
				case <-report.C:
					now := time.Now()
					for _, body := range guestSpawner.tracked() {
						pose := body.Smoothed(now)
						fmt.Printf("guest view: x=%+.3f z=%+.3f latency=%.1fms\n",
							pose.Position.X, pose.Position.Z, guest.Latency())
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:3000", "Coordination server address")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to run")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	return cmd
}

// waitFor polls cond on the client's dispatch goroutine until it holds.
func waitFor(c *client.Client, timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok := make(chan bool, 1)
		c.Dispatch(func() { ok <- cond() })
		select {
		case done := <-ok:
			if done {
				return nil
			}
		case <-time.After(timeout):
			return fmt.Errorf("timed out")
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out")
}

// poseSpawner vends transformsync bodies for the demo's marker template.
type poseSpawner struct {
	latency func() float64

	mu     sync.Mutex
	bodies []*transformsync.Body
}

func (s *poseSpawner) Has(template string) bool { return template == "marker" }

func (s *poseSpawner) Spawn(template string, position, rotation protocol.Vec3) (any, error) {
	body := transformsync.New(s.latency)
	body.SetLocal(transformsync.Pose{Position: position, Rotation: rotation})
	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	return body, nil
}

func (s *poseSpawner) Despawn(any) {}

func (s *poseSpawner) tracked() []*transformsync.Body {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transformsync.Body(nil), s.bodies...)
}

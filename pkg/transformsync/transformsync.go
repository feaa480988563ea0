// Package transformsync streams an entity's pose over the periodic state
// stream. The owned side publishes its position and rotation each tick; the
// foreign side reconstructs a smoothed pose, extrapolated by the measured
// one-way delay so remote entities track where their owner is now rather
// than where it was.
package transformsync

import (
	"sync"
	"time"

	"github.com/roomsync-dev/roomsync/pkg/client"
	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// Pose is a position plus an euler rotation, both in the application's
// units.
type Pose struct {
	Position protocol.Vec3
	Rotation protocol.Vec3
}

// LatencyFunc reports the current one-way delay estimate in milliseconds.
// Wire it to Client.Latency; a nil func disables lag compensation.
type LatencyFunc func() float64

// Body is an entity body implementing client.Streamer. On an owned entity
// the application calls SetLocal each frame and the body publishes the pose
// on stream ticks; on a foreign entity the body absorbs incoming poses and
// Smoothed returns the display pose.
//
// Safe for concurrent use: the application touches it from its own loop
// while the client visits it from the dispatch goroutine.
type Body struct {
	latency LatencyFunc

	// SmoothTime is the time constant for closing the gap to the target
	// pose, mirroring a critically damped follow. Zero snaps immediately.
	SmoothTime time.Duration

	mu       sync.Mutex
	local    Pose
	remote   Pose
	velocity protocol.Vec3 // units per second, derived from received poses
	smoothed Pose
	lastRecv time.Time
	received bool
}

// New returns a Body with the given lag source and a 100ms smoothing window.
func New(latency LatencyFunc) *Body {
	return &Body{latency: latency, SmoothTime: 100 * time.Millisecond}
}

// SetLocal records the pose to publish on the next stream tick.
func (b *Body) SetLocal(p Pose) {
	b.mu.Lock()
	b.local = p
	b.mu.Unlock()
}

// Local returns the pose most recently recorded with SetLocal.
func (b *Body) Local() Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.local
}

// Remote returns the last pose received from the owner, without smoothing
// or extrapolation, and whether one has arrived yet.
func (b *Body) Remote() (Pose, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remote, b.received
}

// OnStreamSend publishes the local pose as six scalars: position x, y, z,
// then rotation x, y, z.
func (b *Body) OnStreamSend(w client.StreamWriter) {
	b.mu.Lock()
	p := b.local
	b.mu.Unlock()

	w.Send(p.Position.X)
	w.Send(p.Position.Y)
	w.Send(p.Position.Z)
	w.Send(p.Rotation.X)
	w.Send(p.Rotation.Y)
	w.Send(p.Rotation.Z)
}

// OnStreamRead absorbs one received pose and updates the velocity estimate
// from the spacing between this snapshot and the previous one.
func (b *Body) OnStreamRead(r client.StreamReader) {
	pose, ok := readPose(r)
	if !ok {
		return
	}
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.received {
		if dt := now.Sub(b.lastRecv).Seconds(); dt > 0 {
			b.velocity = scale(sub(pose.Position, b.remote.Position), 1/dt)
		}
	} else {
		// First pose: snap, no history to smooth from.
		b.smoothed = pose
	}
	b.remote = pose
	b.lastRecv = now
	b.received = true
}

// Smoothed advances the display pose toward the lag-compensated target and
// returns it. Call it once per render frame with the current time.
func (b *Body) Smoothed(now time.Time) Pose {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.received {
		return b.smoothed
	}

	target := b.remote
	if b.latency != nil {
		lagSec := b.latency() / 1000
		target.Position = add(target.Position, scale(b.velocity, lagSec))
	}

	alpha := 1.0
	if b.SmoothTime > 0 {
		step := now.Sub(b.lastRecv)
		if step < 0 {
			step = 0
		}
		alpha = float64(step) / float64(b.SmoothTime)
		if alpha > 1 {
			alpha = 1
		}
	}
	b.smoothed = Pose{
		Position: lerp(b.smoothed.Position, target.Position, alpha),
		Rotation: lerp(b.smoothed.Rotation, target.Rotation, alpha),
	}
	return b.smoothed
}

// readPose pops the six scalars written by OnStreamSend. A snapshot with a
// different shape is discarded.
func readPose(r client.StreamReader) (Pose, bool) {
	vals := make([]float64, 0, 6)
	for i := 0; i < 6; i++ {
		v := r.Receive()
		f, ok := v.(float64)
		if !ok {
			return Pose{}, false
		}
		vals = append(vals, f)
	}
	return Pose{
		Position: protocol.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
		Rotation: protocol.Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
	}, true
}

func add(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func sub(a, b protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func scale(v protocol.Vec3, s float64) protocol.Vec3 {
	return protocol.Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func lerp(a, b protocol.Vec3, t float64) protocol.Vec3 {
	return add(a, scale(sub(b, a), t))
}

package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// runLoop is the dispatch goroutine. All session state is touched here:
// queued closures, batch flush ticks, and stream ticks interleave on one
// goroutine, so handlers never race each other.
func (c *Client) runLoop() {
	for {
		select {
		case fn := <-c.dispatchCh:
			fn()
		case <-c.flushC():
			c.flushBatch()
		case <-c.streamC():
			c.streamTick()
			if c.streamTimer != nil {
				c.streamTimer.Reset(c.streamInterval())
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) flushC() <-chan time.Time {
	if c.flushTicker == nil {
		return nil
	}
	return c.flushTicker.C
}

func (c *Client) streamC() <-chan time.Time {
	if c.streamTimer == nil {
		return nil
	}
	return c.streamTimer.C
}

func (c *Client) streamInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.cfg.StreamRate)
}

func (c *Client) startFlushTimer() {
	if c.flushTicker == nil {
		c.flushTicker = time.NewTicker(c.cfg.BatchInterval)
	}
}

func (c *Client) stopFlushTimer() {
	if c.flushTicker != nil {
		c.flushTicker.Stop()
		c.flushTicker = nil
	}
}

// startStreamTimer arms the first stream tick after the configured initial
// delay; runLoop re-arms it at the stream rate afterwards.
func (c *Client) startStreamTimer() {
	c.stopStreamTimer()
	c.streamTimer = time.NewTimer(c.cfg.StreamDelay)
}

func (c *Client) stopStreamTimer() {
	if c.streamTimer != nil {
		c.streamTimer.Stop()
		c.streamTimer = nil
	}
}

// joinAttempt dials the room link. It runs on the dispatch goroutine; the
// dial itself happens off-loop and reports back through Dispatch. The
// generation counter ties every close signal to the attempt that opened the
// link, so signals from an abandoned link are ignored.
func (c *Client) joinAttempt(roomName string, retriesLeft int) {
	c.connGen++
	gen := c.connGen
	c.startFlushTimer()

	socketURL := protocol.SocketURL(c.cfg.ServerAddr, c.cfg.Secure, roomName, c.playerID)
	go func() {
		// The server can start talking while the dial is still returning.
		// Frames arriving that early are held and released only after the
		// conn assignment is queued, so no handler ever observes a room
		// message before c.conn is set.
		var mu sync.Mutex
		var held [][]byte
		open := false
		onMessage := func(frame []byte) {
			mu.Lock()
			if !open {
				held = append(held, append([]byte(nil), frame...))
				mu.Unlock()
				return
			}
			mu.Unlock()
			c.handleFrame(frame)
		}

		conn, err := c.dialer.Dial(socketURL, onMessage, func(code int) {
			c.Dispatch(func() { c.linkClosed(gen, roomName, retriesLeft, code) })
		})
		c.Dispatch(func() {
			if gen != c.connGen {
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				c.logger.Error("room link dial failed", "room", roomName, "error", err)
				c.cb.failed("join-room", err)
				c.linkClosed(gen, roomName, retriesLeft, -1)
				return
			}
			c.conn = conn
			c.logger.Info("room link open", "room", roomName)
		})

		mu.Lock()
		open = true
		early := held
		held = nil
		mu.Unlock()
		for _, frame := range early {
			c.handleFrame(frame)
		}
	}()
}

// linkClosed handles the room link dying, whether from a failed dial, a
// server close, or our own LeaveRoom/Disconnect.
func (c *Client) linkClosed(gen uint64, roomName string, retriesLeft int, code int) {
	if gen != c.connGen {
		return
	}
	// Invalidate anything still tied to this link: a dial result that has
	// not landed yet must not install a dead conn.
	c.connGen++
	next := c.connGen
	c.conn = nil
	c.room = nil
	c.stopFlushTimer()
	c.stopStreamTimer()

	deliberate := c.state == StateLeaving || c.state == StateDisconnected
	c.logger.Info("room link closed", "room", roomName, "code", code)
	c.cb.disconnected()

	if deliberate || c.closed.Load() {
		if c.playerID == "" {
			c.state = StateDisconnected
		} else {
			c.state = StateConnected
		}
		return
	}

	if retriesLeft > 0 {
		c.state = StateJoining
		c.metrics.reconnects.Inc()
		c.logger.Warn("retrying room link", "room", roomName, "attempts_left", retriesLeft)
		time.AfterFunc(c.cfg.ReconnectDelay, func() {
			c.Dispatch(func() {
				if next != c.connGen || c.state != StateJoining {
					return
				}
				c.joinAttempt(roomName, retriesLeft-1)
			})
		})
		return
	}

	c.logger.Error("room link lost, reconnect attempts exhausted", "room", roomName)
	c.state = StateDisconnected
}

// handleFrame runs on the transport's read goroutine. It splits and decodes
// the frame there and hands each message to the dispatch goroutine.
func (c *Client) handleFrame(frame []byte) {
	c.metrics.framesReceived.Inc()
	for _, line := range protocol.SplitFrame(frame) {
		env, err := protocol.DecodeMessage(line)
		if err != nil {
			c.logger.Warn("dropping undecodable message", "error", err)
			c.metrics.dropped.Inc()
			continue
		}
		c.Dispatch(func() { c.route(env) })
	}
}

func (c *Client) buildRoutes() map[string]func(json.RawMessage) {
	return map[string]func(json.RawMessage){
		protocol.TypeJoinedRoom:     c.onJoinedRoom,
		protocol.TypeUpdateRoom:     c.onUpdateRoom,
		protocol.TypeLeftRoom:       c.onLeftRoom,
		protocol.TypeSyncObjects:    c.onSyncEntities,
		protocol.TypeInstantiate:    c.onInstantiate,
		protocol.TypeDestroy:        c.onDestroy,
		protocol.TypeStream:         c.onStream,
		protocol.TypePong:           c.onPong,
		protocol.TypeEventImmediate: c.onEvent,
		protocol.TypeEventRelayed:   c.onEvent,
		protocol.TypeEventBuffered:  c.onEvent,
	}
}

// route dispatches one decoded message. Unknown tags are dropped without
// error so older clients tolerate newer servers.
func (c *Client) route(env *protocol.Envelope) {
	handler, ok := c.routes[env.Type]
	if !ok {
		c.logger.Debug("unknown message type", "type", env.Type)
		c.metrics.dropped.Inc()
		return
	}
	handler(env.Data)
}

func (c *Client) onJoinedRoom(data json.RawMessage) {
	var room protocol.Room
	if err := json.Unmarshal(data, &room); err != nil {
		c.dropMalformed(protocol.TypeJoinedRoom, err)
		return
	}
	c.room = &room
	c.state = StateInRoom
	c.logger.Info("joined room",
		"room", room.Name,
		"players", room.CurrentPlayers,
		"authority", c.IsAuthority())

	if c.IsAuthority() {
		c.announceOwned()
	}
	c.cb.roomJoined(room)
	c.startStreamTimer()
}

// announceOwned pushes the locally owned entity set to the server so it can
// seed later joiners. Sent outside the batcher: the server needs it before
// anything else from this participant.
func (c *Client) announceOwned() {
	owned := c.directory.OwnedBy(c.playerID)
	refs := make([]protocol.EntityRef, 0, len(owned))
	for _, e := range owned {
		refs = append(refs, protocol.EntityRef{ID: e.ID, CreatorID: e.Owner})
	}
	if err := c.sendImmediate(protocol.TypeSyncObjects, refs); err != nil {
		c.logger.Error("announce owned entities", "error", err)
	}
}

func (c *Client) onUpdateRoom(data json.RawMessage) {
	var room protocol.Room
	if err := json.Unmarshal(data, &room); err != nil {
		c.dropMalformed(protocol.TypeUpdateRoom, err)
		return
	}
	c.room = &room
	c.logger.Info("room updated", "room", room.Name, "players", room.CurrentPlayers)
	c.cb.roomUpdated(room)
}

// onLeftRoom removes every entity owned by the departed participant and
// despawns its body.
func (c *Client) onLeftRoom(data json.RawMessage) {
	var left protocol.LeftRoom
	if err := json.Unmarshal(data, &left); err != nil {
		c.dropMalformed(protocol.TypeLeftRoom, err)
		return
	}
	removed := 0
	for _, e := range c.directory.OwnedBy(left.PlayerID) {
		c.directory.Remove(e.ID)
		c.despawn(e)
		removed++
	}
	c.logger.Info("participant left", "player_id", left.PlayerID, "entities_removed", removed)
}

func (c *Client) onSyncEntities(data json.RawMessage) {
	var states []protocol.EntityState
	if err := json.Unmarshal(data, &states); err != nil {
		c.dropMalformed(protocol.TypeSyncObjects, err)
		return
	}
	for _, state := range states {
		if _, err := c.spawnEntity(state); err != nil {
			c.logger.Error("sync entity", "entity_id", state.ID, "template", state.PrefabName, "error", err)
		}
	}
}

func (c *Client) onInstantiate(data json.RawMessage) {
	var state protocol.EntityState
	if err := json.Unmarshal(data, &state); err != nil {
		c.dropMalformed(protocol.TypeInstantiate, err)
		return
	}
	if _, err := c.spawnEntity(state); err != nil {
		c.logger.Error("instantiate entity", "entity_id", state.ID, "template", state.PrefabName, "error", err)
	}
}

// spawnEntity materializes a server-confirmed entity and adds it to the
// directory. A duplicate id means the server and this client disagree about
// the world; the spawn is rolled back and the error surfaces loudly, but the
// session keeps running.
func (c *Client) spawnEntity(state protocol.EntityState) (*Entity, error) {
	if c.cfg.Spawner == nil {
		return nil, ErrNoSpawner
	}
	if !c.cfg.Spawner.Has(state.PrefabName) {
		return nil, ErrUnknownTemplate
	}
	body, err := c.cfg.Spawner.Spawn(state.PrefabName, state.Position, state.Rotation)
	if err != nil {
		return nil, err
	}
	e := &Entity{ID: state.ID, Owner: state.CreatorID, Prefab: state.PrefabName, Body: body}
	if err := c.directory.Add(e); err != nil {
		c.cfg.Spawner.Despawn(body)
		return nil, err
	}
	c.logger.Debug("entity spawned", "entity_id", e.ID, "owner", e.Owner, "template", e.Prefab)
	return e, nil
}

func (c *Client) onDestroy(data json.RawMessage) {
	var destroy protocol.Destroy
	if err := json.Unmarshal(data, &destroy); err != nil {
		c.dropMalformed(protocol.TypeDestroy, err)
		return
	}
	e := c.directory.Remove(destroy.ID)
	if e == nil {
		c.logger.Warn("destroy for unknown entity", "entity_id", destroy.ID)
		return
	}
	c.despawn(e)
	c.logger.Debug("entity destroyed", "entity_id", e.ID, "owner", e.Owner)
}

func (c *Client) despawn(e *Entity) {
	if c.cfg.Spawner != nil && e.Body != nil {
		c.cfg.Spawner.Despawn(e.Body)
	}
}

// onStream consumes a state snapshot and answers it with a ping carrying
// the server's send time, feeding the latency estimate. The ping goes out
// even when streaming is toggled off so the estimate stays fresh.
func (c *Client) onStream(data json.RawMessage) {
	var frame protocol.StreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.dropMalformed(protocol.TypeStream, err)
		return
	}
	if c.streamOn {
		c.readStream(&frame)
	}
	ping := protocol.Latency{ServerTime: frame.ServerSentTime, ClientTime: nowMillis()}
	if err := c.sendReliable(protocol.TypePing, ping); err != nil {
		c.logger.Warn("queue ping", "error", err)
	}
}

// readStream walks the foreign entities present in the snapshot and lets
// each streaming body pop its values in FIFO order.
func (c *Client) readStream(frame *protocol.StreamFrame) {
	c.metrics.streamsRecv.Inc()
	stream := newReceiveStream(frame)
	_, foreign := c.directory.Partition(c.playerID)
	for _, e := range foreign {
		if _, ok := frame.Data[e.ID]; !ok {
			continue
		}
		s, ok := e.Body.(Streamer)
		if !ok {
			continue
		}
		stream.setCurrent(e.ID)
		s.OnStreamRead(stream)
	}
}

// streamTick assembles and sends one outgoing snapshot. Owned streaming
// entities are visited even when sending is toggled off, so producers keep
// a consistent cadence; the assembled frame is just discarded.
func (c *Client) streamTick() {
	if c.conn == nil || c.room == nil {
		return
	}
	stream := newSendStream()
	mine, _ := c.directory.Partition(c.playerID)
	for _, e := range mine {
		s, ok := e.Body.(Streamer)
		if !ok {
			continue
		}
		stream.setCurrent(e.ID)
		s.OnStreamSend(stream)
	}
	if !c.streamOn {
		return
	}
	c.metrics.streamsSent.Inc()
	if err := c.sendImmediate(protocol.TypeStream, stream.frame()); err != nil {
		c.logger.Warn("send stream", "error", err)
	}
}

func (c *Client) onPong(data json.RawMessage) {
	var pong protocol.Latency
	if err := json.Unmarshal(data, &pong); err != nil {
		c.dropMalformed(protocol.TypePong, err)
		return
	}
	estimate := protocol.EstimateDelay(pong, nowMillis())
	c.setLatency(estimate)
	c.logger.Debug("latency estimate", "ms", estimate)
}

func (c *Client) onEvent(data json.RawMessage) {
	var event protocol.Event
	if err := json.Unmarshal(data, &event); err != nil {
		c.dropMalformed("event", err)
		return
	}
	c.handleEvent(event)
}

// handleEvent resolves the handler and target entity for an event and
// executes it. Unresolvable events are logged and dropped.
func (c *Client) handleEvent(event protocol.Event) {
	reg, ok := c.registry.lookup(event.Name)
	if !ok {
		c.logger.Error("no handler for event", "event", event.Name)
		c.metrics.dropped.Inc()
		return
	}
	target := c.directory.Get(event.SenderID)
	if target == nil {
		// The sender can be destroyed between send and receipt.
		c.logger.Warn("event for unknown entity", "event", event.Name, "entity_id", event.SenderID)
		c.metrics.dropped.Inc()
		return
	}
	args, err := decodeArgs(reg.schema, event.Args)
	if err != nil {
		c.logger.Error("event argument mismatch", "event", event.Name, "error", err)
		c.metrics.dropped.Inc()
		return
	}
	c.metrics.eventsReceived.Inc()
	reg.fn(target, args)
}

func (c *Client) dropMalformed(typ string, err error) {
	c.logger.Warn("dropping malformed message", "type", typ, "error", err)
	c.metrics.dropped.Inc()
}

// sendReliable queues a message into the batcher; crossing the size
// threshold flushes the accumulated batch ahead of the timer. Without an
// open link the batch stays queued, same as the timer path.
func (c *Client) sendReliable(typ string, payload any) error {
	msg, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	flush := c.batcher.Add(msg)
	if flush == nil {
		return nil
	}
	if c.conn == nil {
		c.batcher.Requeue(flush)
		return nil
	}
	c.metrics.batchFlushes.Inc()
	return c.sendFrame(protocol.JoinFrame(flush))
}

// sendImmediate bypasses the batcher for messages with their own cadence.
func (c *Client) sendImmediate(typ string, payload any) error {
	msg, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.sendFrame(msg)
}

func (c *Client) flushBatch() {
	if c.conn == nil {
		return
	}
	pending := c.batcher.Drain()
	if len(pending) == 0 {
		return
	}
	c.metrics.batchFlushes.Inc()
	c.sendFrame(protocol.JoinFrame(pending))
}

func (c *Client) sendFrame(frame []byte) error {
	if c.conn == nil {
		return ErrNoConnection
	}
	if err := c.conn.Send(frame); err != nil {
		c.logger.Error("send frame", "error", err)
		return err
	}
	c.metrics.framesSent.Inc()
	return nil
}

func nowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}

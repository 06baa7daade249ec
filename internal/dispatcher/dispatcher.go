// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package dispatcher implements the command dispatcher: it frames
// inbound bytes into newline-delimited JSON commands, invokes the entity
// store and durable log, and pushes replies and broadcasts to the
// relevant sockets. A single mutex serializes every command's full
// execution - decode, mutation, log append, and all sends - so that two
// commands never interleave their effects.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/22388o/atom-engine/internal/dex"
	"github.com/22388o/atom-engine/internal/session"
	"github.com/22388o/atom-engine/internal/store"
	"github.com/22388o/atom-engine/internal/wire"
)

// Dispatcher owns the entity store, the durable log, and the session
// registry, and is the sole caller of all three. Construct with New.
type Dispatcher struct {
	// cmdMu is held across an entire command's decode, mutation, log
	// append, and enqueuing of every reply and broadcast it produces.
	cmdMu sync.Mutex

	store *store.Store
	wal   Appender
	sess  *session.Registry
	log   dex.Logger
}

// Appender is the subset of *walog.Log the dispatcher needs, so tests can
// substitute an in-memory fake.
type Appender interface {
	Append(cmd interface{})
}

// New returns a Dispatcher wired to the given store, log, and session
// registry.
func New(st *store.Store, wal Appender, sess *session.Registry, log dex.Logger) *Dispatcher {
	return &Dispatcher{store: st, wal: wal, sess: sess, log: log}
}

// Serve reads from nc until it errs or is closed, framing and dispatching
// one command at a time. It returns once the connection is done; the
// caller is expected to run it in its own goroutine per connection. The
// returned error is the terminal read error, nil for a clean EOF.
func (d *Dispatcher) Serve(nc net.Conn) error {
	c := d.sess.Open(nc)
	defer d.sess.Close(c)

	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			for _, line := range c.FeedLines(buf[:n]) {
				d.dispatchLine(c, line)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// dispatchLine parses one complete line and dispatches it. Parse failures
// and unknown commands are logged and otherwise ignored.
func (d *Dispatcher) dispatchLine(c *session.Conn, line []byte) {
	d.log.Debugf("client id = %d %s", c.ID, line)

	var env wire.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		d.log.Warnf("discarding unparsable line from connection %d: %s", c.ID, line)
		return
	}

	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	switch env.Command {
	case wire.CmdInit:
		d.handleInit(c, line)
	case wire.CmdRequestSwapCommission:
		d.handleRequestSwapCommission(c, line)
	case wire.CmdCreateOrder:
		d.handleCreateOrder(c, line)
	case wire.CmdDeleteOrder:
		d.handleDeleteOrder(c, line)
	case wire.CmdCreateTrade:
		d.handleCreateTrade(c, line)
	case wire.CmdUpdateTrade:
		d.handleUpdateTrade(c, line)
	default:
		d.log.Warnf("ignoring unknown command %q from connection %d", env.Command, c.ID)
	}
}

func (d *Dispatcher) handleInit(c *session.Conn, line []byte) {
	var cmd wire.InitCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed init from connection %d: %v", c.ID, err)
		return
	}
	active := make(map[string]bool)
	for _, cur := range cmd.Curs {
		for _, addr := range cur.Addrs {
			d.sess.ClaimAddress(addr, c)
			active[addr] = true
		}
	}

	orders, trades := d.store.Snapshot()
	orderJSON := marshalAll(orders, d.log)
	var relevant []*store.Trade
	for _, t := range trades {
		if active[t.MakerAddress()] || active[t.InitiatorAddress] {
			relevant = append(relevant, t)
		}
	}
	tradeJSON := marshalAll(relevant, d.log)

	reply := wire.InitSuccessReply{
		Reply:       wire.ReplyInitSuccess,
		IsActual:    true,
		Orders:      orderJSON,
		Trades:      tradeJSON,
		Commissions: []json.RawMessage{},
	}
	d.sess.ReplyTo(c, encode(reply, d.log))
}

func (d *Dispatcher) handleRequestSwapCommission(c *session.Conn, line []byte) {
	var cmd wire.RequestSwapCommissionCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed request_swap_commission from connection %d: %v", c.ID, err)
		return
	}
	for _, cur := range cmd.Curs {
		for _, addr := range cur.Addrs {
			d.sess.ClaimAddress(addr, c)
		}
	}
	reply := wire.RequestSwapCommissionSuccessReply{
		Reply:       wire.ReplyRequestSwapCommissionSuccess,
		Commissions: []json.RawMessage{},
	}
	d.sess.ReplyTo(c, encode(reply, d.log))
}

func (d *Dispatcher) handleCreateOrder(c *session.Conn, line []byte) {
	var cmd wire.CreateOrderCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed create_order from connection %d: %v", c.ID, err)
		return
	}
	var order store.Order
	if err := json.Unmarshal(cmd.Order, &order); err != nil {
		d.log.Warnf("malformed order payload from connection %d: %v", c.ID, err)
		return
	}
	created := d.store.CreateOrder(&order)
	d.sess.ClaimAddress(created.Address, c)
	d.wal.Append(compact(line))

	orderJSON := encodeRaw(created, d.log)
	d.sess.ReplyTo(c, encode(wire.OrderReply{Reply: wire.ReplyCreateOrderSuccess, Order: orderJSON}, d.log))
	d.sess.BroadcastOthers(encode(wire.OrderReply{Reply: wire.ReplyCreateOrder, Order: orderJSON}, d.log), c.ID)
}

func (d *Dispatcher) handleDeleteOrder(c *session.Conn, line []byte) {
	var cmd wire.DeleteOrderCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed delete_order from connection %d: %v", c.ID, err)
		return
	}
	deleted := d.store.DeleteOrder(cmd.ID)
	if deleted {
		d.wal.Append(compact(line))
	}
	// delete_order_success is returned unconditionally, even for an id
	// that was never present or already deleted.
	d.sess.ReplyTo(c, encode(wire.DeleteOrderReply{Reply: wire.ReplyDeleteOrderSuccess, ID: cmd.ID}, d.log))
	if !deleted {
		return
	}
	d.sess.BroadcastOthers(encode(wire.DeleteOrderReply{Reply: wire.ReplyDeleteOrder, ID: cmd.ID}, d.log), c.ID)
}

func (d *Dispatcher) handleCreateTrade(c *session.Conn, line []byte) {
	var cmd wire.CreateTradeCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed create_trade from connection %d: %v", c.ID, err)
		return
	}
	d.sess.ClaimAddress(cmd.Address, c)

	trade, ok := d.store.CreateTrade(cmd.OrderID, cmd.Address)
	if !ok {
		d.sess.ReplyTo(c, encode(wire.CreateTradeFailedReply{
			Reply:   wire.ReplyCreateTradeFailed,
			Reasone: "order out of date",
		}, d.log))
		return
	}
	d.wal.Append(compact(line))

	tradeJSON := encodeRaw(trade, d.log)
	d.sess.ReplyTo(c, encode(wire.TradeReply{Reply: wire.ReplyCreateTradeSuccess, Trade: tradeJSON}, d.log))

	makerConn, makerOpen := d.sess.ConnByAddress(trade.MakerAddress())
	makerID := c.ID // if the maker can't be resolved, exclude only the sender below
	if makerOpen {
		makerID = makerConn.ID
		if makerConn.ID != c.ID {
			d.sess.ReplyTo(makerConn, encode(wire.TradeReply{Reply: wire.ReplyCreateTrade, Trade: tradeJSON}, d.log))
		}
	}
	d.sess.BroadcastOthers(
		encode(wire.DeleteOrderReply{Reply: wire.ReplyDeleteOrder, ID: cmd.OrderID}, d.log),
		c.ID, makerID,
	)
}

func (d *Dispatcher) handleUpdateTrade(c *session.Conn, line []byte) {
	var cmd wire.UpdateTradeCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		d.log.Warnf("malformed update_trade from connection %d: %v", c.ID, err)
		return
	}
	trade, ok := d.store.UpdateTrade(cmd.Trade.ID, func(t *store.Trade) {
		t.ApplyUpdate(store.TradeUpdateFields{
			SecretHash:                       cmd.Trade.SecretHash,
			ContractInitiator:                cmd.Trade.ContractInitiator,
			ContractParticipant:              cmd.Trade.ContractParticipant,
			InitiatorContractTransaction:     cmd.Trade.InitiatorContractTransaction,
			ParticipantContractTransaction:   cmd.Trade.ParticipantContractTransaction,
			InitiatorRedemptionTransaction:   cmd.Trade.InitiatorRedemptionTransaction,
			ParticipantRedemptionTransaction: cmd.Trade.ParticipantRedemptionTransaction,
			CommissionInitiatorPaid:          cmd.Trade.CommissionInitiatorPaid,
			CommissionParticipantPaid:        cmd.Trade.CommissionParticipantPaid,
		})
	})
	if ok {
		d.wal.Append(compact(line))
	}
	// update_trade_success is returned unconditionally, whether or not the
	// trade id actually matched anything.
	d.sess.ReplyTo(c, encode(wire.UpdateTradeSuccessReply{Reply: wire.ReplyUpdateTradeSuccess}, d.log))
	if !ok {
		return
	}

	firstAddr := trade.MakerAddress()
	secondAddr := trade.InitiatorAddress
	firstConn, firstOpen := d.sess.ConnByAddress(firstAddr)
	secondConn, secondOpen := d.sess.ConnByAddress(secondAddr)
	if !firstOpen || !secondOpen {
		return
	}
	var other *session.Conn
	if firstConn.ID == c.ID {
		other = secondConn
	} else {
		other = firstConn
	}
	d.sess.ReplyTo(other, encode(wire.TradeReply{Reply: wire.ReplyUpdateTrade, Trade: encodeRaw(trade, d.log)}, d.log))
}

// Shutdown closes every open connection. The dispatcher itself has no
// background goroutines to stop beyond the per-connection Serve loops,
// which unblock as soon as their socket closes.
func (d *Dispatcher) Shutdown() {
	d.sess.CloseAll()
}

func marshalAll(items interface{}, log dex.Logger) []json.RawMessage {
	switch v := items.(type) {
	case []*store.Order:
		out := make([]json.RawMessage, 0, len(v))
		for _, o := range v {
			out = append(out, encodeRaw(o, log))
		}
		return out
	case []*store.Trade:
		out := make([]json.RawMessage, 0, len(v))
		for _, t := range v {
			out = append(out, encodeRaw(t, log))
		}
		return out
	default:
		return nil
	}
}

func encodeRaw(v interface{}, log dex.Logger) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to marshal %T: %v", v, err)
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}

func encode(v interface{}, log dex.Logger) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to marshal reply %T: %v", v, err)
		return nil
	}
	return append(b, '\n')
}

// compact strips insignificant whitespace from a client-supplied command
// line before it is written to the durable log. Returns the original
// bytes unchanged if they somehow fail to compact, which should not
// happen for a line that has already parsed as valid JSON.
func compact(line []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, line); err != nil {
		return append([]byte(nil), line...)
	}
	return buf.Bytes()
}

package dispatcher

import (
	"bufio"
	"net"
	"testing"

	"github.com/22388o/atom-engine/internal/dex"
	"github.com/22388o/atom-engine/internal/session"
	"github.com/22388o/atom-engine/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeAppender records every command it is asked to persist.
type fakeAppender struct {
	entries []interface{}
}

func (f *fakeAppender) Append(cmd interface{}) {
	f.entries = append(f.entries, cmd)
}

// peer wraps one end of a dispatcher connection: the session.Conn the
// dispatcher writes through, and a buffered reader over the other end of
// the pipe. net.Pipe is synchronous, so every line this test expects to
// receive must have a reader already blocked on it before the dispatch
// call that produces that line - see awaitLine.
type peer struct {
	conn   *session.Conn
	reader *bufio.Reader
}

func newPeer(t *testing.T, sess *session.Registry) *peer {
	t.Helper()
	server, client := net.Pipe()
	c := sess.Open(server)
	t.Cleanup(func() { client.Close() })
	return &peer{conn: c, reader: bufio.NewReader(client)}
}

// awaitLine starts reading the next line from p in the background and
// returns a channel that receives it once available. Call this before
// the dispatch call that is expected to produce the line.
func (p *peer) awaitLine(t *testing.T) <-chan string {
	t.Helper()
	ch := make(chan string, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		require.NoError(t, err)
		ch <- line
	}()
	return ch
}

func newHarness(t *testing.T) (*Dispatcher, *fakeAppender, *session.Registry) {
	st := store.New()
	wal := &fakeAppender{}
	sess := session.New(dex.Disabled)
	d := New(st, wal, sess, dex.Disabled)
	return d, wal, sess
}

func TestCreateOrderRepliesAndBroadcasts(t *testing.T) {
	d, wal, sess := newHarness(t)
	maker := newPeer(t, sess)
	other := newPeer(t, sess)

	ack := maker.awaitLine(t)
	broadcast := other.awaitLine(t)

	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))

	reply := <-ack
	require.Contains(t, reply, `"reply":"create_order_success"`)
	require.Contains(t, reply, `"id":1`)

	b := <-broadcast
	require.Contains(t, b, `"reply":"create_order"`)
	require.Len(t, wal.entries, 1)
}

func TestDeleteOrderSucceedsUnconditionallyButOnlyBroadcastsOnRemoval(t *testing.T) {
	d, wal, sess := newHarness(t)
	p := newPeer(t, sess)

	ack := p.awaitLine(t)
	d.dispatchLine(p.conn, []byte(`{"command":"delete_order","id":999}`))

	reply := <-ack
	require.Contains(t, reply, `"reply":"delete_order_success"`)
	require.Empty(t, wal.entries, "a delete of an id that was never present must not be logged")
}

func TestDeleteOrderBroadcastsOnlyWhenSomethingWasRemoved(t *testing.T) {
	d, wal, sess := newHarness(t)
	maker := newPeer(t, sess)
	other := newPeer(t, sess)

	ack := maker.awaitLine(t)
	broadcast := other.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack
	<-broadcast

	delAck := maker.awaitLine(t)
	delBroadcast := other.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"delete_order","id":1}`))

	reply := <-delAck
	require.Contains(t, reply, `"reply":"delete_order_success"`)
	b := <-delBroadcast
	require.Contains(t, b, `"reply":"delete_order"`)
	require.Len(t, wal.entries, 2)
}

func TestCreateTradeConsumesOrderAndNotifiesMaker(t *testing.T) {
	d, wal, sess := newHarness(t)
	maker := newPeer(t, sess)

	ack := maker.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack

	// The initiator connects only now, so the create_order broadcast above
	// never targeted it.
	initiator := newPeer(t, sess)

	tradeAck := initiator.awaitLine(t)
	makerNotify := maker.awaitLine(t)

	d.dispatchLine(initiator.conn, []byte(`{"command":"create_trade","orderId":1,"address":"initiator-addr"}`))

	reply := <-tradeAck
	require.Contains(t, reply, `"reply":"create_trade_success"`)

	notify := <-makerNotify
	require.Contains(t, notify, `"reply":"create_trade"`)
	require.Len(t, wal.entries, 2, "create_order and create_trade both append")
}

func TestCreateTradeOnMissingOrderFails(t *testing.T) {
	d, _, sess := newHarness(t)
	p := newPeer(t, sess)

	ack := p.awaitLine(t)
	d.dispatchLine(p.conn, []byte(`{"command":"create_trade","orderId":77,"address":"a"}`))

	reply := <-ack
	require.Contains(t, reply, `"reply":"create_trade_failed"`)
}

func TestUpdateTradeNotifiesTheOtherParty(t *testing.T) {
	d, _, sess := newHarness(t)
	maker := newPeer(t, sess)

	ack := maker.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack

	initiator := newPeer(t, sess)

	tradeAck := initiator.awaitLine(t)
	makerNotify := maker.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"create_trade","orderId":1,"address":"initiator-addr"}`))
	<-tradeAck
	<-makerNotify

	updateAck := initiator.awaitLine(t)
	otherNotify := maker.awaitLine(t)

	d.dispatchLine(initiator.conn, []byte(`{"command":"update_trade","trade":{"id":1,"secretHash":"deadbeef"}}`))

	ackLine := <-updateAck
	require.Contains(t, ackLine, `"reply":"update_trade_success"`)

	notify := <-otherNotify
	require.Contains(t, notify, `"reply":"update_trade"`)
	require.Contains(t, notify, `deadbeef`)
}

func TestUpdateTradeCommissionFlagsAreMonotonicAcrossUpdates(t *testing.T) {
	d, _, sess := newHarness(t)
	maker := newPeer(t, sess)

	ack := maker.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack

	initiator := newPeer(t, sess)
	tradeAck := initiator.awaitLine(t)
	makerNotify := maker.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"create_trade","orderId":1,"address":"initiator-addr"}`))
	<-tradeAck
	<-makerNotify

	updateAck1 := initiator.awaitLine(t)
	notify1 := maker.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"update_trade","trade":{"id":1,"commissionInitiatorPaid":true}}`))
	<-updateAck1
	n1 := <-notify1
	require.Contains(t, n1, `"initiatorCommissionPaid":true`)

	updateAck2 := initiator.awaitLine(t)
	notify2 := maker.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"update_trade","trade":{"id":1,"commissionInitiatorPaid":false}}`))
	<-updateAck2
	n2 := <-notify2
	require.Contains(t, n2, `"initiatorCommissionPaid":true`, "a paid commission flag must never revert to false")
}

func TestUpdateTradeUnknownIDStillAcksButNoBroadcast(t *testing.T) {
	d, _, sess := newHarness(t)
	p := newPeer(t, sess)

	ack := p.awaitLine(t)
	d.dispatchLine(p.conn, []byte(`{"command":"update_trade","trade":{"id":42}}`))

	reply := <-ack
	require.Contains(t, reply, `"reply":"update_trade_success"`)
}

func TestInitReturnsAllOrdersRegardlessOfThisCallsAddresses(t *testing.T) {
	d, _, sess := newHarness(t)
	maker := newPeer(t, sess)

	ack := maker.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack

	viewer := newPeer(t, sess)
	initAck := viewer.awaitLine(t)
	d.dispatchLine(viewer.conn, []byte(`{"command":"init","curs":[{"addrs":["unrelated-addr"]}]}`))

	reply := <-initAck
	require.Contains(t, reply, `"reply":"init_success"`)
	require.Contains(t, reply, `"isActual":true`)
	require.Contains(t, reply, `"getAddress_":"maker-addr"`, "orders are returned unfiltered by the addresses named in this init call")
}

// TestInitTradeFilterUsesOnlyThisCallsAddresses exercises the trade-relevance
// filter's address-scoping behavior: it considers only the addresses named
// in the init call being answered, not every address the connection has
// ever claimed. A trade visible in one init reply can drop out of the next
// one on the same connection if that connection's later init call doesn't
// re-list the address that made it relevant.
func TestInitTradeFilterUsesOnlyThisCallsAddresses(t *testing.T) {
	d, _, sess := newHarness(t)
	maker := newPeer(t, sess)

	ack := maker.awaitLine(t)
	d.dispatchLine(maker.conn, []byte(`{"command":"create_order","order":{"getAddress_":"maker-addr","amount":"1"}}`))
	<-ack

	initiator := newPeer(t, sess)
	tradeAck := initiator.awaitLine(t)
	makerNotify := maker.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"create_trade","orderId":1,"address":"initiator-addr"}`))
	<-tradeAck
	<-makerNotify

	firstInitAck := initiator.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"init","curs":[{"addrs":["initiator-addr"]}]}`))
	firstReply := <-firstInitAck
	require.Contains(t, firstReply, `"initiatorAddress":"initiator-addr"`, "the trade is relevant because this call names initiator-addr")

	secondInitAck := initiator.awaitLine(t)
	d.dispatchLine(initiator.conn, []byte(`{"command":"init","curs":[{"addrs":["other-addr"]}]}`))
	secondReply := <-secondInitAck
	require.NotContains(t, secondReply, `"initiatorAddress"`, "the same connection's earlier claim of initiator-addr must not carry over into this call's filter")
	require.Contains(t, secondReply, `"trades":[]`)
}

func TestRequestSwapCommissionClaimsAddressesAndRepliesEmpty(t *testing.T) {
	d, _, sess := newHarness(t)
	p := newPeer(t, sess)

	ack := p.awaitLine(t)
	d.dispatchLine(p.conn, []byte(`{"command":"request_swap_commission","curs":[{"addrs":["some-addr"]}]}`))

	reply := <-ack
	require.Contains(t, reply, `"reply":"request_swap_commission_success"`)
	require.Contains(t, reply, `"commissions":[]`)

	conn, ok := sess.ConnByAddress("some-addr")
	require.True(t, ok)
	require.Equal(t, p.conn.ID, conn.ID)
}

func TestMalformedLineIsIgnored(t *testing.T) {
	d, wal, sess := newHarness(t)
	p := newPeer(t, sess)

	d.dispatchLine(p.conn, []byte(`not json`))
	d.dispatchLine(p.conn, []byte(`{"command":"nonexistent_command"}`))
	require.Empty(t, wal.entries)
}

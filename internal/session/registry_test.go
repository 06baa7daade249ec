package session

import (
	"net"
	"testing"

	"github.com/22388o/atom-engine/internal/dex"
	"github.com/stretchr/testify/require"
)

func TestFeedLinesBuffersPartialLine(t *testing.T) {
	c := &Conn{}
	require.Nil(t, c.FeedLines([]byte(`{"command":"i`)))
	lines := c.FeedLines([]byte("nit\"}\n"))
	require.Len(t, lines, 1)
	require.Equal(t, `{"command":"init"}`, string(lines[0]))
}

func TestFeedLinesSkipsEmptyLines(t *testing.T) {
	c := &Conn{}
	lines := c.FeedLines([]byte("\n\n{\"a\":1}\n\n"))
	require.Len(t, lines, 1)
}

func TestFeedLinesDoesNotCorruptCompleteLinesWithATrailingPartial(t *testing.T) {
	c := &Conn{}
	lines := c.FeedLines([]byte("{\"cmd\":\"one\"}\n{\"cmd\":\"tw"))
	require.Len(t, lines, 1)
	require.Equal(t, `{"cmd":"one"}`, string(lines[0]), "the completed line must survive even though the buffer is reset and rewritten with the trailing partial right after it's sliced out")

	rest := c.FeedLines([]byte("o\"}\n"))
	require.Len(t, rest, 1)
	require.Equal(t, `{"cmd":"two"}`, string(rest[0]))
}

func TestFeedLinesReturnsMultipleCompleteLines(t *testing.T) {
	c := &Conn{}
	lines := c.FeedLines([]byte("{\"a\":1}\n{\"a\":2}\n"))
	require.Len(t, lines, 2)
	require.Equal(t, `{"a":1}`, string(lines[0]))
	require.Equal(t, `{"a":2}`, string(lines[1]))
}

func TestClaimAddressLastWriterWins(t *testing.T) {
	r := New(dex.Disabled)
	c1, s1 := pipeConn(r)
	defer s1.Close()
	c2, s2 := pipeConn(r)
	defer s2.Close()

	r.ClaimAddress("shared", c1)
	got, ok := r.ConnByAddress("shared")
	require.True(t, ok)
	require.Equal(t, c1.ID, got.ID)

	r.ClaimAddress("shared", c2)
	got, ok = r.ConnByAddress("shared")
	require.True(t, ok)
	require.Equal(t, c2.ID, got.ID)
}

func TestCloseRemovesAddressClaims(t *testing.T) {
	r := New(dex.Disabled)
	c, s := pipeConn(r)
	defer s.Close()

	r.ClaimAddress("addr", c)
	r.Close(c)

	_, ok := r.ConnByAddress("addr")
	require.False(t, ok)
}

func TestBroadcastOthersExcludesGivenIDs(t *testing.T) {
	r := New(dex.Disabled)
	a, sa := pipeConn(r)
	defer sa.Close()
	_, sb := pipeConn(r)
	defer sb.Close()

	read := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := sb.Read(buf)
		require.NoError(t, err)
		read <- string(buf[:n])
	}()

	r.BroadcastOthers([]byte("hi\n"), a.ID)
	require.Equal(t, "hi\n", <-read)
}

// pipeConn opens a Registry connection backed by an in-memory net.Pipe,
// returning the registry-side Conn and the peer side the test can read
// from or write to.
func pipeConn(r *Registry) (*Conn, net.Conn) {
	server, peer := net.Pipe()
	return r.Open(server), peer
}

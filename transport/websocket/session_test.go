package websocket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-session/internal/client"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-session/internal/session"
)

// events flattens stream and session callbacks into one ordered feed.
type events chan string

func (that events) OnGameJoined(symbol entity.Cell, opponent string) {
	that <- fmt.Sprintf("joined %s %q", symbol, opponent)
}

func (that events) OnGameMove(symbol entity.Cell, row, col int, isGameOver bool) {
	that <- fmt.Sprintf("move %s %d %d %t", symbol, row, col, isGameOver)
}

func (that events) OnGameEnd(endState entity.EndState, location entity.WinningLocation, abandoned bool) {
	that <- fmt.Sprintf("end %s %s %t", endState, location, abandoned)
}

func (that events) OnGameBoardLayout(_ entity.Layout) { that <- "board" }

func (that events) OnGameError(message string, isFull bool) {
	that <- fmt.Sprintf("error %t", isFull)
}

func (that events) OnSessionStarted()              { that <- "started" }
func (that events) OnSessionStartFailed(err error) { that <- "start failed" }
func (that events) OnSessionEnded(err error)       { that <- fmt.Sprintf("ended %v", err) }

func (that events) expect(t *testing.T, want ...string) {
	t.Helper()

	for _, w := range want {
		select {
		case got := <-that:
			require.Equal(t, w, got)
		case <-time.After(waitFor):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

type remotePlayer struct {
	stream  *client.Stream
	session *session.Session
	events  events
}

func newRemotePlayer(t *testing.T, url, name string) *remotePlayer {
	t.Helper()

	codec := protocol.NewJSONCodec()
	ev := make(events, 32)

	stream := client.NewStream(discard(), codec, ev, 16)
	sess := session.New(discard(), NewDialer(discard(), url, false, 16), stream, ev, name)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)

	go func() { _ = stream.Run(ctx); done <- struct{}{} }()
	go func() { _ = sess.Run(ctx); done <- struct{}{} }()

	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	return &remotePlayer{stream: stream, session: sess, events: ev}
}

func TestSessionOverWebsocket(t *testing.T) {
	url := startHost(t, protocol.NewJSONCodec())

	// Given: two players starting sessions against the host
	alice := newRemotePlayer(t, url, "Alice")
	bob := newRemotePlayer(t, url, "Bob")

	require.NoError(t, alice.session.Start(context.Background()))
	alice.events.expect(t, "started", "board", `joined X ""`)

	require.NoError(t, bob.session.Start(context.Background()))
	bob.events.expect(t, "started", "board", `joined O "Alice"`)
	alice.events.expect(t, `joined X "Bob"`)

	// When: alice moves
	require.NoError(t, alice.stream.Move(1, 1))

	// Then: both see the move
	alice.events.expect(t, "move X 1 1 false")
	bob.events.expect(t, "move X 1 1 false")

	// When: bob ends the session
	require.NoError(t, bob.session.End(context.Background()))

	// Then: bob's session is released and alice sees an abandoned game
	bob.events.expect(t, "ended <nil>")
	assert.Equal(t, session.StateIdle, bob.session.State())
	assert.False(t, bob.stream.Attached())

	alice.events.expect(t, "end abandoned none true")
}

func TestSessionOverWebsocket_GameFull(t *testing.T) {
	url := startHost(t, protocol.NewJSONCodec())

	alice := newRemotePlayer(t, url, "Alice")
	bob := newRemotePlayer(t, url, "Bob")
	carol := newRemotePlayer(t, url, "Carol")

	require.NoError(t, alice.session.Start(context.Background()))
	alice.events.expect(t, "started", "board", `joined X ""`)

	require.NoError(t, bob.session.Start(context.Background()))
	bob.events.expect(t, "started", "board", `joined O "Alice"`)

	// When: a third player starts a session
	require.NoError(t, carol.session.Start(context.Background()))

	// Then: it is told the game is full and resyncs as an observer
	carol.events.expect(t, "started", "error true", "board")
	assert.True(t, carol.stream.IsObserver())
}

func TestSessionOverWebsocket_EndSendsLeave(t *testing.T) {
	codec := protocol.NewJSONCodec()
	url, kinds := recordingHost(t, codec)

	alice := newRemotePlayer(t, url, "Alice")

	for range 10 {
		// Given: an active session that has joined
		require.NoError(t, alice.session.Start(context.Background()))
		alice.events.expect(t, "started")
		expectKind(t, kinds, protocol.KindJoin)

		// When: ending it
		require.NoError(t, alice.session.End(context.Background()))
		alice.events.expect(t, "ended <nil>")

		// Then: the leave reached the host before the socket closed
		expectKind(t, kinds, protocol.KindLeave)
	}
}

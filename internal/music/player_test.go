package music

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"miyako-bot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeConn struct {
	sent         atomic.Int64
	disconnected atomic.Bool
}

func (c *fakeConn) Speaking(bool) error { return nil }

func (c *fakeConn) Send(ctx context.Context, _ []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
	}
	c.sent.Add(1)
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.disconnected.Store(true)
	return nil
}

type fakeJoiner struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (j *fakeJoiner) JoinVoice(string, string) (VoiceConn, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	c := &fakeConn{}
	j.conns = append(j.conns, c)
	return c, nil
}

func (j *fakeJoiner) joined() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.conns)
}

// fakeSource yields frames until its limit; a limit of 0 never ends
type fakeSource struct {
	limit int
	n     int
}

func (s *fakeSource) NextFrame() ([]byte, error) {
	if s.limit > 0 && s.n >= s.limit {
		return nil, io.EOF
	}
	s.n++
	return []byte{0xF8, 0xFF, 0xFE}, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeStreamer struct {
	frames map[string]int
	opened atomic.Int64
}

func (f *fakeStreamer) Open(_ context.Context, t *Track) (FrameSource, error) {
	f.opened.Add(1)
	if t.URL == "broken" {
		return nil, errors.New("stream unavailable")
	}
	return &fakeSource{limit: f.frames[t.URL]}, nil
}

func newTestPlayer(t *testing.T, idle time.Duration, frames map[string]int) (*Player, *fakeJoiner, *fakeStreamer) {
	joiner := &fakeJoiner{}
	streamer := &fakeStreamer{frames: frames}
	p := NewPlayer(config.MusicConfig{IdleTimeout: idle}, joiner, streamer, zaptest.NewLogger(t))
	t.Cleanup(p.Shutdown)
	return p, joiner, streamer
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func currentTitle(p *Player, guild string) string {
	st, ok := p.Snapshot(guild)
	if !ok || st.Current == nil {
		return ""
	}
	return st.Current.Title
}

func TestPlayQueuesAndAdvances(t *testing.T) {
	p, joiner, _ := newTestPlayer(t, time.Hour, map[string]int{"a": 0, "b": 5})
	ctx := context.Background()

	pos, err := p.Play(ctx, "g1", "vc", &Track{Title: "A", URL: "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	eventually(t, func() bool { return currentTitle(p, "g1") == "A" })

	pos, err = p.Play(ctx, "g1", "vc", &Track{Title: "B", URL: "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Equal(t, 1, joiner.joined(), "second play must reuse the voice session")

	st, _ := p.Snapshot("g1")
	require.Len(t, st.Upcoming, 1)
	assert.Equal(t, "B", st.Upcoming[0].Title)

	require.NoError(t, p.Skip("g1"))
	eventually(t, func() bool { return currentTitle(p, "g1") == "B" })

	// B ends after five frames and the queue runs dry
	eventually(t, func() bool {
		st, ok := p.Snapshot("g1")
		return ok && !st.Playing()
	})

	assert.ErrorIs(t, p.Skip("g1"), ErrNothingPlaying)
}

func TestRepeatReplaysUntilSkipped(t *testing.T) {
	p, _, streamer := newTestPlayer(t, time.Hour, map[string]int{"a": 50, "b": 0})
	ctx := context.Background()

	_, err := p.Play(ctx, "g1", "vc", &Track{Title: "A", URL: "a"})
	require.NoError(t, err)
	eventually(t, func() bool { return currentTitle(p, "g1") == "A" })

	on, err := p.ToggleRepeat("g1")
	require.NoError(t, err)
	assert.True(t, on)

	_, err = p.Play(ctx, "g1", "vc", &Track{Title: "B", URL: "b"})
	require.NoError(t, err)

	eventually(t, func() bool { return streamer.opened.Load() >= 3 })
	assert.Equal(t, "A", currentTitle(p, "g1"))

	require.NoError(t, p.Skip("g1"))
	eventually(t, func() bool { return currentTitle(p, "g1") == "B" })
}

func TestTogglePause(t *testing.T) {
	p, joiner, _ := newTestPlayer(t, time.Hour, map[string]int{"a": 0})

	_, err := p.TogglePause("g1")
	assert.ErrorIs(t, err, ErrNothingPlaying)

	_, err = p.Play(context.Background(), "g1", "vc", &Track{Title: "A", URL: "a"})
	require.NoError(t, err)
	eventually(t, func() bool { return currentTitle(p, "g1") == "A" })

	paused, err := p.TogglePause("g1")
	require.NoError(t, err)
	assert.True(t, paused)

	conn := joiner.conns[0]
	time.Sleep(20 * time.Millisecond)
	frozen := conn.sent.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, conn.sent.Load(), "no frames while paused")

	paused, err = p.TogglePause("g1")
	require.NoError(t, err)
	assert.False(t, paused)
	eventually(t, func() bool { return conn.sent.Load() > frozen })
}

func TestBrokenTrackIsSkipped(t *testing.T) {
	p, _, _ := newTestPlayer(t, time.Hour, map[string]int{"b": 0})
	ctx := context.Background()

	_, err := p.Play(ctx, "g1", "vc", &Track{Title: "Broken", URL: "broken"})
	require.NoError(t, err)
	_, err = p.Play(ctx, "g1", "vc", &Track{Title: "B", URL: "b"})
	require.NoError(t, err)

	eventually(t, func() bool { return currentTitle(p, "g1") == "B" })
}

func TestIdleSessionLeaves(t *testing.T) {
	p, joiner, _ := newTestPlayer(t, 30*time.Millisecond, map[string]int{"a": 2})

	var changes atomic.Int64
	p.OnChange(func(string) { changes.Add(1) })

	_, err := p.Play(context.Background(), "g1", "vc", &Track{Title: "A", URL: "a"})
	require.NoError(t, err)

	eventually(t, func() bool { return !p.Connected("g1") })
	assert.True(t, joiner.conns[0].disconnected.Load())
	assert.GreaterOrEqual(t, changes.Load(), int64(2))
}

func TestJoinFailure(t *testing.T) {
	p, joiner, _ := newTestPlayer(t, time.Hour, nil)
	joiner.err = errors.New("missing permissions")

	_, err := p.Play(context.Background(), "g1", "vc", &Track{Title: "A", URL: "a"})
	assert.Error(t, err)
	assert.False(t, p.Connected("g1"))
}

func TestNextKeepsSkipForNewTrack(t *testing.T) {
	p, _, _ := newTestPlayer(t, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		guildID: "g1",
		conn:    &fakeConn{},
		ctx:     ctx,
		cancel:  cancel,
		skip:    make(chan struct{}, 1),
		resume:  make(chan struct{}, 1),
		running: true,
	}
	s.queue.Add(&Track{Title: "A"})
	s.queue.Add(&Track{Title: "B"})
	s.queue.Add(&Track{Title: "C"})
	s.queue.Advance(false)
	s.queue.SetRepeat(true)
	p.sessions["g1"] = s

	// A was skipped: its pending signal is consumed with the advance
	require.NoError(t, p.Skip("g1"))
	next := p.next(s)
	require.NotNil(t, next)
	assert.Equal(t, "B", next.Title)
	assert.False(t, s.skipped)
	assert.Len(t, s.skip, 0)

	// A skip for B that lands right after the advance stays pending
	require.NoError(t, p.Skip("g1"))
	assert.Len(t, s.skip, 1)

	// B ends through the skip, so repeat does not replay it
	next = p.next(s)
	require.NotNil(t, next)
	assert.Equal(t, "C", next.Title)

	// C ends normally and repeats
	next = p.next(s)
	require.NotNil(t, next)
	assert.Equal(t, "C", next.Title)
}

package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/dto"
	"github.com/matheusnogalha/draft-os/internal/hub"
	redisstate "github.com/matheusnogalha/draft-os/internal/infra/state/redis"
	"github.com/matheusnogalha/draft-os/internal/repository"
	"github.com/matheusnogalha/draft-os/internal/tasks"
	"github.com/matheusnogalha/draft-os/internal/testutil"
)

var (
	t0      = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	quiet   = 2 * time.Second
	initial = json.RawMessage(`{"type":"doc","content":[]}`)
)

// memStore 是内存中的 autosave.Store
type memStore struct {
	mu     sync.Mutex
	docs   map[string]json.RawMessage
	saves  int
	result error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]json.RawMessage)}
}

func (s *memStore) PersistDocument(_ context.Context, _ uint, documentID string, content json.RawMessage, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.result != nil {
		return s.result
	}
	s.docs[documentID] = append(json.RawMessage(nil), content...)
	return nil
}

func (s *memStore) get(id string) (json.RawMessage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id], s.saves
}

type recordingFlusher struct {
	mu       sync.Mutex
	payloads []tasks.ChapterFlushPayload
}

func (f *recordingFlusher) EnqueueChapterFlush(_ context.Context, p tasks.ChapterFlushPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *recordingFlusher) Payloads() []tasks.ChapterFlushPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.ChapterFlushPayload(nil), f.payloads...)
}

type env struct {
	hub     *hub.Hub
	clock   *testutil.FakeClock
	store   *memStore
	state   repository.StateRepository
	mr      *miniredis.Miniredis
	flusher *recordingFlusher
}

func newEnv(t *testing.T, flushOnClose bool) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		clock:   testutil.NewFakeClock(t0),
		store:   newMemStore(),
		state:   redisstate.NewRedisStateRepository(client, "test:"),
		mr:      mr,
		flusher: &recordingFlusher{},
	}
	e.hub = hub.NewHub(e.store, e.state, hub.Config{
		QuietPeriod:  quiet,
		LeaseTTL:     time.Minute,
		FlushOnClose: flushOnClose,
	}, hub.WithClock(e.clock), hub.WithFlushEnqueuer(e.flusher))
	go e.hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.hub.Shutdown(ctx)
	})
	return e
}

// dial 启动一个把连接交给 Hub 的测试服务器并建立连接
func (e *env) dial(t *testing.T, userID uint, chapterID string, tokenExp time.Time) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := e.hub.OpenSession(r.Context(), userID, chapterID, tokenExp, initial)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			session.Close()
			return
		}
		client := hub.NewClient(e.hub, conn, session)
		if !e.hub.Register(client) {
			session.Close()
			_ = conn.Close()
			return
		}
		client.Run()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type message struct {
	Type      string          `json:"type"`
	ChapterID string          `json:"chapter_id"`
	Status    string          `json:"status"`
	Content   json.RawMessage `json:"content"`
	Message   string          `json:"message"`
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

// readUntil 读取消息直到满足条件
func readUntil(t *testing.T, conn *websocket.Conn, match func(message) bool) message {
	t.Helper()
	for {
		m := readMessage(t, conn)
		if match(m) {
			return m
		}
	}
}

func statusIs(status string) func(message) bool {
	return func(m message) bool { return m.Type == dto.TypeStatus && m.Status == status }
}

func sendEdit(t *testing.T, conn *websocket.Conn, content string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.TypeEdit, Content: json.RawMessage(content)}))
}

func TestSession_EditIsSavedAfterQuietPeriod(t *testing.T) {
	e := newEnv(t, false)
	conn := e.dial(t, 7, "chapter-1", time.Time{})

	doc := readMessage(t, conn)
	assert.Equal(t, dto.TypeDocument, doc.Type)
	assert.Equal(t, "chapter-1", doc.ChapterID)
	assert.JSONEq(t, string(initial), string(doc.Content))
	assert.Equal(t, string(autosave.StatusSaved), doc.Status)

	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"a"}]}`)
	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"ab"}]}`)
	// Hub 按顺序处理消息，收到这条的回复时两个编辑都已进入引擎
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	readUntil(t, conn, func(m message) bool { return m.Type == dto.TypeError })
	e.clock.Advance(quiet)

	readUntil(t, conn, statusIs(string(autosave.StatusSaved)))
	saved, saves := e.store.get("chapter-1")
	assert.Equal(t, 1, saves)
	assert.JSONEq(t, `{"type":"doc","content":[{"type":"text","text":"ab"}]}`, string(saved))
}

func TestSession_StatusIsPublishedToRedis(t *testing.T) {
	e := newEnv(t, false)
	sub := e.mr.NewSubscriber()
	t.Cleanup(sub.Close)
	sub.Subscribe("test:chapter:chapter-2:status")

	conn := e.dial(t, 7, "chapter-2", time.Time{})
	readMessage(t, conn)
	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"x"}]}`)

	select {
	case msg := <-sub.Messages():
		var m message
		require.NoError(t, json.Unmarshal([]byte(msg.Message), &m))
		assert.Equal(t, string(autosave.StatusUnsaved), m.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("status was not published")
	}
}

func TestSession_FatalErrorClosesConnection(t *testing.T) {
	e := newEnv(t, false)
	e.store.result = autosave.ErrNotFound
	conn := e.dial(t, 7, "chapter-3", time.Time{})
	readMessage(t, conn)

	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"gone"}]}`)
	readUntil(t, conn, statusIs(string(autosave.StatusUnsaved)))
	e.clock.Advance(quiet)

	m := readUntil(t, conn, func(m message) bool { return m.Type == dto.TypeError })
	assert.Equal(t, string(autosave.StatusFailed), m.Status)
	assert.Equal(t, "this chapter no longer exists", m.Message)

	// 随后收到关闭帧
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	require.Eventually(t, func() bool { return e.hub.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_ExpiredTokenStopsAutosave(t *testing.T) {
	e := newEnv(t, false)
	conn := e.dial(t, 7, "chapter-4", t0.Add(time.Second))
	readMessage(t, conn)

	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"late"}]}`)
	readUntil(t, conn, statusIs(string(autosave.StatusUnsaved)))
	e.clock.Advance(quiet)

	m := readUntil(t, conn, func(m message) bool { return m.Type == dto.TypeError })
	assert.Equal(t, "session expired, please sign in again", m.Message)
	_, saves := e.store.get("chapter-4")
	assert.Zero(t, saves)
}

func TestSession_InvalidMessagesAreReported(t *testing.T) {
	e := newEnv(t, false)
	conn := e.dial(t, 7, "chapter-5", time.Time{})
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	m := readMessage(t, conn)
	assert.Equal(t, dto.TypeError, m.Type)
	assert.Equal(t, "invalid message", m.Message)

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.TypeEdit}))
	m = readMessage(t, conn)
	assert.Equal(t, "edit without content", m.Message)

	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: "draw"}))
	m = readMessage(t, conn)
	assert.Equal(t, "unknown message type", m.Message)
}

func TestSession_RetrySavesImmediately(t *testing.T) {
	e := newEnv(t, false)
	conn := e.dial(t, 7, "chapter-6", time.Time{})
	readMessage(t, conn)

	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"now"}]}`)
	readUntil(t, conn, statusIs(string(autosave.StatusUnsaved)))
	require.NoError(t, conn.WriteJSON(dto.ClientMessage{Type: dto.TypeRetry}))

	readUntil(t, conn, statusIs(string(autosave.StatusSaved)))
	_, saves := e.store.get("chapter-6")
	assert.Equal(t, 1, saves)
}

func TestHub_OpenSessionHoldsLease(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	first, err := e.hub.OpenSession(ctx, 7, "chapter-7", time.Time{}, initial)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID())
	assert.Equal(t, uint(7), first.UserID())
	assert.Equal(t, "chapter-7", first.ChapterID())

	_, err = e.hub.OpenSession(ctx, 7, "chapter-7", time.Time{}, initial)
	assert.ErrorIs(t, err, repository.ErrLeaseHeld)

	first.Close()
	require.Eventually(t, func() bool {
		s, err := e.hub.OpenSession(ctx, 7, "chapter-7", time.Time{}, initial)
		if err != nil {
			return false
		}
		s.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSession_LeaseLostDisconnects(t *testing.T) {
	e := newEnv(t, false)
	conn := e.dial(t, 7, "chapter-8", time.Time{})
	readMessage(t, conn)

	// 租约被其他会话取得
	e.mr.Set("test:chapter:chapter-8:lease", "other-session")
	e.clock.Advance(30 * time.Second)

	sendEdit(t, conn, `{"type":"doc","content":[{"type":"text","text":"mine"}]}`)
	m := readUntil(t, conn, func(m message) bool { return m.Type == dto.TypeError })
	assert.Equal(t, "this chapter was opened in another session", m.Message)
	require.Eventually(t, func() bool { return e.hub.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_CloseFlushesUnsavedChanges(t *testing.T) {
	e := newEnv(t, true)
	s, err := e.hub.OpenSession(context.Background(), 7, "chapter-9", time.Time{}, initial)
	require.NoError(t, err)

	content := json.RawMessage(`{"type":"doc","content":[{"type":"text","text":"unsaved"}]}`)
	_, err = s.Engine().Edit(content)
	require.NoError(t, err)
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.hub.Shutdown(ctx)

	payloads := e.flusher.Payloads()
	require.Len(t, payloads, 1)
	assert.Equal(t, "chapter-9", payloads[0].ChapterID)
	assert.Equal(t, uint(7), payloads[0].UserID)
	assert.JSONEq(t, string(content), string(payloads[0].Content))
	assert.True(t, payloads[0].ClosedAt.Equal(t0))
	_, saves := e.store.get("chapter-9")
	assert.Zero(t, saves, "pending save is cancelled on close")
	assert.False(t, e.mr.Exists("test:chapter:chapter-9:lease"))
}

func TestSession_CloseWithoutChangesDoesNotFlush(t *testing.T) {
	e := newEnv(t, true)
	s, err := e.hub.OpenSession(context.Background(), 7, "chapter-10", time.Time{}, initial)
	require.NoError(t, err)
	s.Close()
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.hub.Shutdown(ctx)
	assert.Empty(t, e.flusher.Payloads())
}

func TestSession_FlushDisabledDiscardsUnsaved(t *testing.T) {
	e := newEnv(t, false)
	s, err := e.hub.OpenSession(context.Background(), 7, "chapter-11", time.Time{}, initial)
	require.NoError(t, err)
	_, err = s.Engine().Edit(json.RawMessage(`{"type":"doc","content":[{"type":"text","text":"lost"}]}`))
	require.NoError(t, err)
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.hub.Shutdown(ctx)
	assert.Empty(t, e.flusher.Payloads())
}

func TestNewHub_PanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() { hub.NewHub(nil, nil, hub.Config{}) })
	assert.Panics(t, func() { hub.NewHub(newMemStore(), nil, hub.Config{}) })
}

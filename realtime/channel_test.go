package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restomate/restokit/domain"
	"github.com/restomate/restokit/notify"
	"github.com/restomate/restokit/ordercache"
	"github.com/restomate/restokit/session"
)

type serverConn struct {
	conn       *websocket.Conn
	authHeader string
}

// fakeBackend upgrades incoming websocket connections and hands them to the
// test.
type fakeBackend struct {
	srv   *httptest.Server
	conns chan *serverConn
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{conns: make(chan *serverConn, 4)}
	upgrader := websocket.Upgrader{}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- &serverConn{conn: conn, authHeader: auth}
	}))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBackend) accept(t *testing.T) *serverConn {
	t.Helper()

	select {
	case sc := <-b.conns:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func (b *fakeBackend) noConnection(t *testing.T) {
	t.Helper()

	select {
	case <-b.conns:
		t.Fatal("unexpected websocket connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var msg wireMessage
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "expected no further frames, got %q", msg.Event)
}

type recorder struct {
	connected    chan string
	disconnected chan string
	created      chan domain.Order
	updated      chan domain.Order
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
		created:      make(chan domain.Order, 8),
		updated:      make(chan domain.Order, 8),
	}
}

func (r *recorder) OnConnected(room string)             { r.connected <- room }
func (r *recorder) OnDisconnected(room string, _ error) { r.disconnected <- room }
func (r *recorder) OnOrderCreated(order domain.Order)   { r.created <- order }
func (r *recorder) OnOrderUpdated(order domain.Order)   { r.updated <- order }

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func seededStore(t *testing.T) session.Store {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), signed, "refresh-1"))

	return store
}

func newTestChannel(t *testing.T, b *fakeBackend) (*Channel, *recorder, *ordercache.Store, *notify.Queue) {
	t.Helper()

	store := seededStore(t)
	cache := ordercache.NewStore()
	t.Cleanup(cache.Close)
	toasts := notify.NewQueue()
	t.Cleanup(toasts.Close)

	rec := newRecorder()
	ch := NewChannel(b.url(), store, cache, toasts, WithHandler(rec))
	t.Cleanup(ch.Close)

	return ch, rec, cache, toasts
}

func TestJoinRoom_ConnectsAndJoinsOnce(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))

	sc := b.accept(t)
	assert.True(t, strings.HasPrefix(sc.authHeader, "Bearer "), "handshake must carry the access token")

	join := readFrame(t, sc.conn)
	assert.Equal(t, eventJoinRoom, join.Event)

	var room string
	require.NoError(t, json.Unmarshal(join.Data, &room))
	assert.Equal(t, "resto-1", room)

	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, "resto-1", recv(t, rec.connected))

	// No second join on the same connection.
	expectSilence(t, sc.conn)
}

func TestJoinRoom_SameRoomIsNoOp(t *testing.T) {
	b := newFakeBackend(t)
	ch, _, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	b.accept(t)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	b.noConnection(t)
}

func TestJoinRoom_RoomChangeTearsDownAndRejoins(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	first := b.accept(t)
	readFrame(t, first.conn) // join for resto-1
	recv(t, rec.connected)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-2"))

	// Exactly one teardown: the first connection dies...
	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var discarded wireMessage
	assert.Error(t, first.conn.ReadJSON(&discarded), "old connection should be closed")

	// ...and exactly one new connection with exactly one join.
	second := b.accept(t)
	join := readFrame(t, second.conn)
	assert.Equal(t, eventJoinRoom, join.Event)

	var room string
	require.NoError(t, json.Unmarshal(join.Data, &room))
	assert.Equal(t, "resto-2", room)
	expectSilence(t, second.conn)

	assert.Equal(t, "resto-2", recv(t, rec.connected))
	assert.Equal(t, "resto-2", ch.Room())

	// A deliberate teardown is not a connection drop: no disconnect event
	// may leak from the stale reader.
	select {
	case room := <-rec.disconnected:
		t.Fatalf("unexpected disconnect event for room %s", room)
	case <-time.After(100 * time.Millisecond):
	}

	b.noConnection(t)
}

func TestJoinRoom_NoCredential(t *testing.T) {
	b := newFakeBackend(t)

	cache := ordercache.NewStore()
	t.Cleanup(cache.Close)
	toasts := notify.NewQueue()
	t.Cleanup(toasts.Close)

	ch := NewChannel(b.url(), session.NewMemoryStore(), cache, toasts)
	t.Cleanup(ch.Close)

	err := ch.JoinRoom(context.Background(), "resto-1")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, ch.State())
	b.noConnection(t)
}

func TestJoinRoom_EmptyRoomTearsDown(t *testing.T) {
	b := newFakeBackend(t)
	ch, _, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	b.accept(t)

	require.NoError(t, ch.JoinRoom(context.Background(), ""))
	assert.Equal(t, StateTornDown, ch.State())

	err := ch.JoinRoom(context.Background(), "resto-1")
	assert.Error(t, err, "a torn-down channel stays down")
}

func TestNewOrderEvent_MergesNotifiesAndForwards(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, cache, toasts := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	sc := b.accept(t)
	readFrame(t, sc.conn)

	order := domain.Order{
		ID:     "o-1",
		Number: 42,
		Status: domain.OrderStatusPending,
		Total:  decimal.NewFromFloat(12.50),
	}
	data, err := json.Marshal(order)
	require.NoError(t, err)
	require.NoError(t, sc.conn.WriteJSON(wireMessage{Event: eventNewOrder, Data: data}))

	got := recv(t, rec.created)
	assert.Equal(t, "o-1", got.ID)

	cached := cache.List(context.Background(), ordercache.Key{Room: "resto-1"})
	require.Len(t, cached, 1)
	assert.Equal(t, "o-1", cached[0].ID)

	active := toasts.Active()
	require.Len(t, active, 1)
	assert.Equal(t, notify.SeveritySuccess, active[0].Severity)
	assert.Contains(t, active[0].Message, "#42")
}

func TestOrderUpdateEvent_ReplacesAndToasts(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, cache, toasts := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	sc := b.accept(t)
	readFrame(t, sc.conn)

	created := domain.Order{ID: "o-1", Number: 42, Status: domain.OrderStatusPending, Total: decimal.NewFromInt(10)}
	data, err := json.Marshal(created)
	require.NoError(t, err)
	require.NoError(t, sc.conn.WriteJSON(wireMessage{Event: eventNewOrder, Data: data}))
	recv(t, rec.created)

	updated := created
	updated.Status = domain.OrderStatusReady
	updated.Total = decimal.NewFromInt(15)
	data, err = json.Marshal(updated)
	require.NoError(t, err)
	require.NoError(t, sc.conn.WriteJSON(wireMessage{Event: eventOrderUpdate, Data: data}))

	got := recv(t, rec.updated)
	assert.Equal(t, domain.OrderStatusReady, got.Status)

	cached := cache.List(context.Background(), ordercache.Key{Room: "resto-1"})
	require.Len(t, cached, 1, "update must replace, not append")
	assert.Equal(t, domain.OrderStatusReady, cached[0].Status)
	assert.True(t, decimal.NewFromInt(15).Equal(cached[0].Total))

	active := toasts.Active()
	require.Len(t, active, 2)
	assert.Contains(t, active[1].Message, "ready")
}

func TestConnectionDrop_EmitsDisconnected(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	sc := b.accept(t)
	readFrame(t, sc.conn)
	recv(t, rec.connected)

	require.NoError(t, sc.conn.Close())

	assert.Equal(t, "resto-1", recv(t, rec.disconnected))

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != StateDisconnected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestUnknownEventIgnored(t *testing.T) {
	b := newFakeBackend(t)
	ch, rec, _, _ := newTestChannel(t, b)

	require.NoError(t, ch.JoinRoom(context.Background(), "resto-1"))
	sc := b.accept(t)
	readFrame(t, sc.conn)

	require.NoError(t, sc.conn.WriteJSON(wireMessage{Event: "somethingElse"}))

	order := domain.Order{ID: "o-9", Number: 9}
	data, err := json.Marshal(order)
	require.NoError(t, err)
	require.NoError(t, sc.conn.WriteJSON(wireMessage{Event: eventNewOrder, Data: data}))

	// The unknown event is skipped, the next one still lands.
	got := recv(t, rec.created)
	assert.Equal(t, "o-9", got.ID)
}

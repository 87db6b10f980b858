// Package wsbridge carries commands to connected browser extensions and
// routes their responses back to the waiting caller.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/protocol"
)

var (
	ErrNoActiveSession = errors.New("no active browser session")
	ErrSessionNotFound = errors.New("browser session not found")
	ErrSessionClosed   = errors.New("browser session closed")
)

// Bridge manages websocket sessions and command/response routing.
type Bridge struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	activeID  string
	pending   map[string]chan protocol.Response
	upgrader  websocket.Upgrader
	writeWait time.Duration
	logger    *zap.Logger
	onChange  func(count int)
}

// Options configures the websocket bridge.
type Options struct {
	CheckOrigin     func(*http.Request) bool
	ReadBufferSize  int
	WriteBufferSize int
	WriteWait       time.Duration
	Logger          *zap.Logger
	// OnSessionsChanged is called with the new session count after a
	// connect or disconnect.
	OnSessionsChanged func(count int)
}

// Session represents a connected browser extension.
type Session struct {
	ID          string
	Conn        *websocket.Conn
	mu          sync.Mutex
	RemoteAddr  string
	UserAgent   string
	ConnectedAt time.Time
	LastSeen    time.Time
	done        chan struct{}
}

func NewBridge(opts Options) *Bridge {
	up := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     opts.CheckOrigin,
	}
	if up.ReadBufferSize == 0 {
		up.ReadBufferSize = 2048
	}
	if up.WriteBufferSize == 0 {
		up.WriteBufferSize = 2048
	}
	writeWait := opts.WriteWait
	if writeWait == 0 {
		writeWait = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bridge{
		sessions:  make(map[string]*Session),
		pending:   make(map[string]chan protocol.Response),
		upgrader:  up,
		writeWait: writeWait,
		logger:    logger.Named("wsbridge"),
		onChange:  opts.OnSessionsChanged,
	}
}

func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		b.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	id := uuid.New().String()
	now := time.Now()
	session := &Session{
		ID:          id,
		Conn:        conn,
		RemoteAddr:  r.RemoteAddr,
		UserAgent:   r.UserAgent(),
		ConnectedAt: now,
		LastSeen:    now,
		done:        make(chan struct{}),
	}

	b.mu.Lock()
	b.sessions[id] = session
	b.activeID = id
	count := len(b.sessions)
	b.mu.Unlock()
	b.notify(count)

	b.logger.Info("ws connected", zap.String("session", id), zap.String("remote", r.RemoteAddr))
	b.readLoop(session)

	b.mu.Lock()
	delete(b.sessions, id)
	if b.activeID == id {
		b.activeID = ""
		for sid := range b.sessions {
			b.activeID = sid
			break
		}
	}
	count = len(b.sessions)
	b.mu.Unlock()
	close(session.done)
	b.notify(count)

	conn.Close()
	b.logger.Info("ws disconnected", zap.String("session", id))
}

func (b *Bridge) notify(count int) {
	if b.onChange != nil {
		b.onChange(count)
	}
}

func (b *Bridge) readLoop(session *Session) {
	for {
		_, message, err := session.Conn.ReadMessage()
		if err != nil {
			return
		}
		session.mu.Lock()
		session.LastSeen = time.Now()
		session.mu.Unlock()
		var resp protocol.Response
		if err := json.Unmarshal(message, &resp); err != nil {
			b.logger.Warn("ws invalid message", zap.String("session", session.ID), zap.Error(err))
			continue
		}
		if resp.ID == "" {
			continue
		}
		b.logger.Debug("ws response", zap.String("session", session.ID), zap.String("id", resp.ID), zap.Bool("ok", resp.OK))
		b.deliver(resp)
	}
}

func (b *Bridge) deliver(resp protocol.Response) {
	b.mu.Lock()
	ch := b.pending[resp.ID]
	if ch != nil {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()

	if ch != nil {
		ch <- resp
		close(ch)
	}
}

func (b *Bridge) activeSession() (*Session, error) {
	b.mu.RLock()
	id := b.activeID
	session := b.sessions[id]
	b.mu.RUnlock()
	if session == nil {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

func (b *Bridge) sessionByID(id string) (*Session, error) {
	if id == "" {
		return b.activeSession()
	}
	b.mu.RLock()
	session := b.sessions[id]
	b.mu.RUnlock()
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	Active      bool      `json:"active"`
}

func (b *Bridge) ListSessions() []SessionInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SessionInfo, 0, len(b.sessions))
	for id, s := range b.sessions {
		s.mu.Lock()
		info := SessionInfo{
			ID:          id,
			RemoteAddr:  s.RemoteAddr,
			UserAgent:   s.UserAgent,
			ConnectedAt: s.ConnectedAt,
			LastSeen:    s.LastSeen,
			Active:      id == b.activeID,
		}
		s.mu.Unlock()
		out = append(out, info)
	}
	return out
}

func (b *Bridge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// DisconnectSession closes the websocket of one session. Commands waiting
// on it fail with ErrSessionClosed.
func (b *Bridge) DisconnectSession(id string) error {
	b.mu.RLock()
	session := b.sessions[id]
	b.mu.RUnlock()
	if session == nil {
		return ErrSessionNotFound
	}
	session.mu.Lock()
	_ = session.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by admin"),
		time.Now().Add(b.writeWait))
	session.mu.Unlock()
	return session.Conn.Close()
}

// SendCommand sends a command to the addressed session, or the active one,
// and waits for its response.
func (b *Bridge) SendCommand(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	session, err := b.sessionByID(cmd.SessionID)
	if err != nil {
		return protocol.Response{}, err
	}

	msg, err := json.Marshal(cmd)
	if err != nil {
		return protocol.Response{}, err
	}

	ch := make(chan protocol.Response, 1)
	b.mu.Lock()
	b.pending[cmd.ID] = ch
	b.mu.Unlock()

	session.mu.Lock()
	_ = session.Conn.SetWriteDeadline(time.Now().Add(b.writeWait))
	err = session.Conn.WriteMessage(websocket.TextMessage, msg)
	session.mu.Unlock()
	if err != nil {
		b.forget(cmd.ID)
		return protocol.Response{}, err
	}
	b.logger.Debug("ws command", zap.String("session", session.ID), zap.String("id", cmd.ID), zap.String("type", string(cmd.Type)))

	select {
	case resp := <-ch:
		return resp, nil
	case <-session.done:
		b.forget(cmd.ID)
		return protocol.Response{}, ErrSessionClosed
	case <-ctx.Done():
		b.forget(cmd.ID)
		return protocol.Response{}, ctx.Err()
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

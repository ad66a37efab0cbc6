package collab

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"

	"github.com/oklog/ulid/v2"
)

const sendBufferSize = 32
const receiveBufferSize = 32

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionConnected
	SessionClosed
	SessionFailed
)

func (self SessionState) String() string {
	switch self {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	case SessionFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

type SessionManagerSettings struct {
	WsHandshakeTimeout time.Duration
	// bounds the whole dial, so a connect that never resolves cannot
	// leave the manager permanently non-reentrant
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	WriteTimeout   time.Duration
}

func DefaultSessionManagerSettings() *SessionManagerSettings {
	return &SessionManagerSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ConnectTimeout:     10 * time.Second,
		PingTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
	}
}

// ConnectionSession is one attempt to establish and maintain a real-time
// connection to a room, from join request to close or failure. Never
// shared across two connect attempts.
type ConnectionSession struct {
	sessionId string
	url       string
	token     string
	cancel    context.CancelFunc

	// guarded by the owning manager's mutex
	state SessionState
}

func (self *ConnectionSession) SessionId() string {
	return self.sessionId
}

// SessionManager owns the lifecycle of a single real-time connection. The
// handshake and read pump run off the calling thread; inbound events are
// relayed into the shared event log in arrival order; binary payloads
// (remote document ops) are additionally delivered on Receive. At most
// one live connection per manager.
type SessionManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	eventLog *EventLog
	settings *SessionManagerSettings

	send    chan []byte
	receive chan []byte

	mu      sync.Mutex
	session *ConnectionSession
}

func NewSessionManager(ctx context.Context, eventLog *EventLog) *SessionManager {
	return NewSessionManagerWithSettings(ctx, eventLog, DefaultSessionManagerSettings())
}

func NewSessionManagerWithSettings(ctx context.Context, eventLog *EventLog, settings *SessionManagerSettings) *SessionManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &SessionManager{
		ctx:      cancelCtx,
		cancel:   cancel,
		eventLog: eventLog,
		settings: settings,
		send:     make(chan []byte, sendBufferSize),
		receive:  make(chan []byte, receiveBufferSize),
	}
}

// StartSession transitions to connecting and performs the handshake on a
// background goroutine, so the caller never blocks. Returns false without
// side effects while a session is already connecting or connected.
func (self *SessionManager) StartSession(rawUrl string, token string) bool {
	self.mu.Lock()
	if self.session != nil {
		switch self.session.state {
		case SessionConnecting, SessionConnected:
			self.mu.Unlock()
			glog.V(1).Infof("[session]join rejected, already %s\n", self.session.state)
			return false
		}
	}
	sessionCtx, sessionCancel := context.WithCancel(self.ctx)
	session := &ConnectionSession{
		sessionId: ulid.Make().String(),
		url:       NormalizeWsUrl(rawUrl),
		token:     token,
		cancel:    sessionCancel,
		state:     SessionConnecting,
	}
	self.session = session
	self.mu.Unlock()

	go self.run(sessionCtx, session)
	return true
}

// State never blocks beyond the critical section of a read.
func (self *SessionManager) State() SessionState {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.session == nil {
		return SessionIdle
	}
	return self.session.state
}

// DrainEvents returns pending event log entries in arrival order. Called
// from the poll loop every frame.
func (self *SessionManager) DrainEvents() []string {
	return self.eventLog.Drain()
}

// Receive delivers inbound binary payloads, i.e. remote document ops for
// DocBackend.ApplyRemote.
func (self *SessionManager) Receive() <-chan []byte {
	return self.receive
}

// Send queues a payload for the live connection. Non-blocking; returns
// false when there is no room in the send buffer.
func (self *SessionManager) Send(payload []byte) bool {
	select {
	case self.send <- payload:
		return true
	default:
		return false
	}
}

// Close cancels the live session, if any, and any future one.
func (self *SessionManager) Close() {
	self.cancel()
}

func (self *SessionManager) setState(session *ConnectionSession, state SessionState) {
	self.mu.Lock()
	defer self.mu.Unlock()
	glog.V(1).Infof("[session]%s %s -> %s\n", session.sessionId, session.state, state)
	session.state = state
}

func (self *SessionManager) run(ctx context.Context, session *ConnectionSession) {
	defer session.cancel()

	connectUrl := ConnectUrl(session.url, session.token)

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	header := http.Header{}
	header.Add("Authorization", fmt.Sprintf("Bearer %s", session.token))

	dialCtx, dialCancel := context.WithTimeout(ctx, self.settings.ConnectTimeout)
	ws, _, err := dialer.DialContext(dialCtx, connectUrl, header)
	dialCancel()
	if err != nil {
		self.setState(session, SessionFailed)
		transportErr := &TransportError{Op: "connect", Cause: err}
		self.eventLog.Append("connect error: %s", transportErr)
		glog.Infof("[session]%s connect error = %s\n", session.sessionId, err)
		return
	}
	defer ws.Close()

	self.setState(session, SessionConnected)
	self.eventLog.Append("connected to %s (%s)", session.url, redactToken(session.token))

	handleCtx, handleCancel := context.WithCancel(ctx)
	defer handleCancel()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case payload := <-self.send:
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
					glog.Infof("[session]%s-> error = %s\n", session.sessionId, err)
					return
				}
				glog.V(2).Infof("[session]%s->\n", session.sessionId)
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// read pump. Every inbound event appends one entry in arrival order,
	// until the remote end closes the stream or the session is canceled.
	go func() {
		defer handleCancel()

		for {
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				select {
				case <-handleCtx.Done():
				default:
					self.eventLog.Append("stream ended: %s", err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage:
				self.eventLog.Append("event: %s", string(message))
			case websocket.BinaryMessage:
				self.eventLog.Append("data: %d bytes", len(message))
				select {
				case <-handleCtx.Done():
					return
				case self.receive <- message:
					glog.V(2).Infof("[session]%s<-\n", session.sessionId)
				}
			default:
				glog.V(2).Infof("[session]%s<- other=%d\n", session.sessionId, messageType)
			}
		}
	}()

	<-handleCtx.Done()
	self.setState(session, SessionClosed)
	self.eventLog.Append("session closed")
}

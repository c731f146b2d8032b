package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

const TransportBufferSize = 32

// the state machine is permanently re-entrant:
// Disconnected -> Connecting -> Open -> Closing -> Disconnected -> Connecting ...
type ConnectionState int

const (
	Disconnected ConnectionState = 0
	Connecting   ConnectionState = 1
	Open         ConnectionState = 2
	Closing      ConnectionState = 3
)

func (self ConnectionState) String() string {
	switch self {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(self))
	}
}

var ErrTransportClosed = errors.New("transport closed")

var ErrStaleHandle = errors.New("stale connection handle")

// use of a `*StatsConn` after the open period it was issued for ended
type StaleHandleError struct {
	ConnectionId Id
}

func (self *StaleHandleError) Error() string {
	return fmt.Sprintf("connection %s is no longer open", self.ConnectionId)
}

func (self *StaleHandleError) Is(target error) bool {
	return target == ErrStaleHandle
}

// `Conn` is set if and only if `State` is `Open`
type ConnectionStatus struct {
	State ConnectionState
	Conn  *StatsConn
}

type StatsTransportSettings struct {
	// 0 means no timeout. A stalled handshake then depends on the network stack to fail.
	HandshakeTimeout time.Duration
	// minimum time between the start of consecutive connect attempts
	// 0 retries immediately, with no backoff
	ReconnectTimeout time.Duration
	// period of the liveness probe while open
	PingInterval time.Duration
	PingPayload  string
	WriteTimeout time.Duration
	// 0 means reads never time out. A silently dead peer is then only detected
	// when a probe write fails.
	ReadTimeout time.Duration
}

func DefaultStatsTransportSettings() *StatsTransportSettings {
	return &StatsTransportSettings{
		HandshakeTimeout: 0,
		ReconnectTimeout: 0,
		PingInterval:     30 * time.Second,
		PingPayload:      PingPayload,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      0,
	}
}

// Handle to one open period of the transport.
// Once the transport leaves `Open` every call returns a `*StaleHandleError`.
type StatsConn struct {
	connectionId Id
	ctx          context.Context

	send    chan string
	receive chan []byte
}

func newStatsConn(ctx context.Context) *StatsConn {
	return &StatsConn{
		connectionId: NewId(),
		ctx:          ctx,
		send:         make(chan string),
		receive:      make(chan []byte, TransportBufferSize),
	}
}

func (self *StatsConn) Id() Id {
	return self.connectionId
}

func (self *StatsConn) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *StatsConn) IsClosed() bool {
	return self.ctx.Err() != nil
}

func (self *StatsConn) staleError() error {
	return &StaleHandleError{
		ConnectionId: self.connectionId,
	}
}

// queues a text frame for the writer. Returns once the writer took it.
func (self *StatsConn) Send(ctx context.Context, text string) error {
	if self.IsClosed() {
		return self.staleError()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-self.ctx.Done():
		return self.staleError()
	case self.send <- text:
		return nil
	}
}

// the next inbound text frame, in arrival order
func (self *StatsConn) Receive(ctx context.Context) ([]byte, error) {
	if self.IsClosed() {
		return nil, self.staleError()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-self.ctx.Done():
		return nil, self.staleError()
	case message := <-self.receive:
		return message, nil
	}
}

// Keeps one logical stream connection alive. Connect failures and drops are
// never fatal, every one loops back to `Connecting`.
type StatsTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	settings *StatsTransportSettings

	stateLock    sync.Mutex
	status       ConnectionStatus
	stateMonitor *Monitor

	done chan struct{}
}

func NewStatsTransportWithDefaults(ctx context.Context, url string) *StatsTransport {
	return NewStatsTransport(ctx, url, DefaultStatsTransportSettings())
}

func NewStatsTransport(ctx context.Context, url string, settings *StatsTransportSettings) *StatsTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &StatsTransport{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		settings: settings,
		status: ConnectionStatus{
			State: Disconnected,
		},
		stateMonitor: NewMonitor(),
		done:         make(chan struct{}),
	}
	go transport.run()
	return transport
}

func (self *StatsTransport) State() ConnectionStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.status
}

// closed on the next state change
func (self *StatsTransport) NotifyChannel() chan struct{} {
	return self.stateMonitor.NotifyChannel()
}

// blocks until the transport is open and returns the live handle
func (self *StatsTransport) WaitOpen(ctx context.Context) (*StatsConn, error) {
	for {
		notify := self.stateMonitor.NotifyChannel()
		status := self.State()
		if status.State == Open && !status.Conn.IsClosed() {
			return status.Conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-self.done:
			return nil, ErrTransportClosed
		case <-notify:
		}
	}
}

func (self *StatsTransport) setStatus(state ConnectionState, conn *StatsConn) {
	self.stateLock.Lock()
	changed := self.status.State != state || self.status.Conn != conn
	self.status = ConnectionStatus{
		State: state,
		Conn:  conn,
	}
	self.stateLock.Unlock()

	if changed {
		connectionStateGauge.Set(float64(state))
		if conn != nil {
			glog.V(1).Infof("[st]%s c(%s)\n", state, conn.Id())
		} else {
			glog.V(1).Infof("[st]%s\n", state)
		}
		self.stateMonitor.NotifyAll()
	}
}

func (self *StatsTransport) run() {
	defer func() {
		self.setStatus(Disconnected, nil)
		close(self.done)
	}()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		self.setStatus(Connecting, nil)

		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: self.settings.HandshakeTimeout,
			}
			ws, _, err := dialer.DialContext(self.ctx, self.url, nil)
			return ws, err
		}

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = TraceWithReturnError(fmt.Sprintf("[st]connect %s", self.url), connect)
		} else {
			ws, err = connect()
		}
		if err != nil {
			connectAttemptsTotal.WithLabelValues("error").Inc()
			if self.ctx.Err() == nil {
				glog.Infof("[st]connect error %s = %s\n", self.url, err)
			}
			self.setStatus(Disconnected, nil)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}
		connectAttemptsTotal.WithLabelValues("success").Inc()

		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		self.handle(ws)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

// runs one open period. Returns after the socket is closed and both the
// writer and the reader have exited.
func (self *StatsTransport) handle(ws *websocket.Conn) {
	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	conn := newStatsConn(handleCtx)
	log := LogFn(LogLevelTrace, fmt.Sprintf("st c(%s)", conn.Id()))

	write := func(text string) error {
		if 0 < self.settings.WriteTimeout {
			ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
		}
		return ws.WriteMessage(websocket.TextMessage, []byte(text))
	}

	writerDone := make(chan struct{})
	go func() {
		defer func() {
			handleCancel()
			close(writerDone)
		}()

		// the probe timer belongs to this open period only
		pingTicker := time.NewTicker(self.settings.PingInterval)
		defer pingTicker.Stop()

		for {
			select {
			case <-handleCtx.Done():
				return
			case text := <-conn.send:
				if err := write(text); err != nil {
					// note that for websocket a deadline timeout cannot be recovered
					glog.Infof("[st]c(%s)-> error = %s\n", conn.Id(), err)
					return
				}
				log("-> %s", text)
			case <-pingTicker.C:
				if handleCtx.Err() != nil {
					return
				}
				if err := write(self.settings.PingPayload); err != nil {
					glog.Infof("[st]c(%s)ping-> error = %s\n", conn.Id(), err)
					return
				}
				probesSentTotal.Inc()
				log("ping->")
			}
		}
	}()

	readerDone := make(chan struct{})
	go func() {
		defer func() {
			handleCancel()
			close(readerDone)
		}()

		for {
			if 0 < self.settings.ReadTimeout {
				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
			}
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				if handleCtx.Err() == nil {
					glog.Infof("[st]c(%s)<- error = %s\n", conn.Id(), err)
				}
				return
			}

			switch messageType {
			case websocket.TextMessage:
				select {
				case <-handleCtx.Done():
					return
				case conn.receive <- message:
					log("<- %d bytes", len(message))
				}
			default:
				log("<- drop other=%d", messageType)
			}
		}
	}()

	self.setStatus(Open, conn)

	<-handleCtx.Done()
	self.setStatus(Closing, nil)

	// no probe can be written once the writer has exited
	<-writerDone
	if self.ctx.Err() != nil {
		// shutting down. tell the peer
		closeTimeout := self.settings.WriteTimeout
		if closeTimeout <= 0 {
			closeTimeout = 1 * time.Second
		}
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout),
		)
	}
	ws.Close()
	<-readerDone

	connectionDropsTotal.Inc()
	self.setStatus(Disconnected, nil)
}

// stops the transport and waits for the open period, if any, to end
func (self *StatsTransport) Close() {
	self.cancel()
	<-self.done
}

package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Consumes the transport on a single goroutine: wait for an open connection,
// request a snapshot with `InitCommand`, then apply every message in arrival
// order. Message N is fully applied before message N+1 is received.
type StatsClient struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport *StatsTransport
	store     *StatsStore

	done chan struct{}
}

func NewStatsClient(ctx context.Context, transport *StatsTransport, store *StatsStore) *StatsClient {
	cancelCtx, cancel := context.WithCancel(ctx)
	client := &StatsClient{
		ctx:       cancelCtx,
		cancel:    cancel,
		transport: transport,
		store:     store,
		done:      make(chan struct{}),
	}
	go client.run()
	return client
}

func (self *StatsClient) Store() *StatsStore {
	return self.store
}

func (self *StatsClient) run() {
	defer close(self.done)

	for {
		conn, err := self.transport.WaitOpen(self.ctx)
		if err != nil {
			glog.V(1).Infof("[sc]exit = %s\n", err)
			return
		}
		self.consume(conn)
	}
}

// returns when the connection is no longer open or the client is closed
func (self *StatsClient) consume(conn *StatsConn) {
	log := LogFn(LogLevelDebug, fmt.Sprintf("sc c(%s)", conn.Id()))

	if err := conn.Send(self.ctx, InitCommand); err != nil {
		log("init error = %s", err)
		return
	}
	log("init")

	for {
		message, err := conn.Receive(self.ctx)
		if err != nil {
			if errors.Is(err, ErrStaleHandle) {
				log("closed")
			}
			return
		}
		// protocol errors are reported inside and the message is dropped
		self.HandleMessage(message)
	}
}

// decodes and applies one inbound payload
// A payload of neither message shape is logged and dropped and the store is not touched.
func (self *StatsClient) HandleMessage(data []byte) error {
	message, err := DecodeMessage(data)
	if err != nil {
		protocolErrorsTotal.Inc()
		glog.Infof("[sc]drop malformed message (%d bytes) = %s\n", len(data), err)
		return err
	}
	messagesTotal.WithLabelValues(message.Kind()).Inc()

	return HandleError(func() {
		switch v := message.(type) {
		case *Increment:
			applied := self.store.ApplyIncrement(v)
			incrementsTotal.WithLabelValues(v.Category.String(), fmt.Sprintf("%t", applied)).Inc()
		default:
			self.store.Apply(message)
		}
		aggregateCellsGauge.Set(float64(self.store.Len()))
	})
}

// stops consuming. The store keeps its last state.
func (self *StatsClient) Close() {
	self.cancel()
	<-self.done
}

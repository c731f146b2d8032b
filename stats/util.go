package stats

import (
	"sync"
	"time"
)

// broadcasts "something changed" to any number of waiters
// take `NotifyChannel` before reading the guarded state, then wait on it
type Monitor struct {
	mutex  sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.update
}

// close the update channel and create a new one
func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}

// holds the earliest time of the next connect attempt
type Reconnect struct {
	reconnectTime time.Time
}

func NewReconnect(reconnectTimeout time.Duration) *Reconnect {
	return &Reconnect{
		reconnectTime: time.Now().Add(reconnectTimeout),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	timeout := self.reconnectTime.Sub(time.Now())
	if timeout <= 0 {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(timeout)
}

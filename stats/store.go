package stats

import (
	"math"
	"sync"
	"time"

	"github.com/golang/glog"
)

type StatCell struct {
	Quantity  uint64
	FirstSeen time.Time
	LastSeen  time.Time
	// local wall clock time of the last local mutation
	// freshness is computed from this, never from the remote timestamps
	ReceivedAt time.Time

	// creation order of the cell in the store. Orders ties in the views.
	sequenceNumber uint64
}

// subject -> object -> cell
// values returned from the store are copies and are safe to read without locking
type StatsAggregate map[SubjectId]map[ObjectId]StatCell

func (self StatsAggregate) Cell(subject SubjectId, object ObjectId) (StatCell, bool) {
	objects, ok := self[subject]
	if !ok {
		return StatCell{}, false
	}
	cell, ok := objects[object]
	return cell, ok
}

func (self StatsAggregate) Len() int {
	n := 0
	for _, objects := range self {
		n += len(objects)
	}
	return n
}

func (self StatsAggregate) Clone() StatsAggregate {
	clone := make(StatsAggregate, len(self))
	for subject, objects := range self {
		objectsClone := make(map[ObjectId]StatCell, len(objects))
		for object, cell := range objects {
			objectsClone[object] = cell
		}
		clone[subject] = objectsClone
	}
	return clone
}

// The store is the only writer of the aggregate.
// All mutation goes through `ApplySnapshot` and `ApplyIncrement`.
type StatsStore struct {
	now func() time.Time

	mutex          sync.RWMutex
	aggregate      StatsAggregate
	sequenceNumber uint64
}

func NewStatsStore() *StatsStore {
	return NewStatsStoreWithClock(time.Now)
}

func NewStatsStoreWithClock(now func() time.Time) *StatsStore {
	return &StatsStore{
		now:       now,
		aggregate: StatsAggregate{},
	}
}

func (self *StatsStore) Apply(message Message) {
	switch v := message.(type) {
	case *Snapshot:
		self.ApplySnapshot(v)
	case *Increment:
		self.ApplyIncrement(v)
	default:
		// `Message` is sealed to the two variants above
		panic(protocolError(nil, "unknown message %T", message))
	}
}

// replaces the aggregate wholesale
func (self *StatsStore) ApplySnapshot(snapshot *Snapshot) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	receivedAt := self.now()

	// sequence numbers restart with each snapshot so that applying the same
	// snapshot twice yields the same aggregate
	var sequenceNumber uint64
	aggregate := StatsAggregate{}
	for _, entry := range snapshot.Entries {
		objects, ok := aggregate[entry.Subject]
		if !ok {
			objects = map[ObjectId]StatCell{}
			aggregate[entry.Subject] = objects
		}
		cell, ok := objects[entry.Object]
		if !ok {
			sequenceNumber += 1
			cell.sequenceNumber = sequenceNumber
		}
		cell.Quantity = entry.Quantity
		cell.FirstSeen = entry.FirstSeen
		cell.LastSeen = entry.LastSeen
		cell.ReceivedAt = receivedAt
		objects[entry.Object] = cell
	}
	self.aggregate = aggregate
	self.sequenceNumber = sequenceNumber

	glog.V(1).Infof("[ss]snapshot subjects = %d cells = %d\n", len(aggregate), aggregate.Len())
}

// merges a farm increment into the aggregate. Other categories are not folded
// and return false.
func (self *StatsStore) ApplyIncrement(increment *Increment) bool {
	if increment.Category != CategoryFarm {
		glog.V(2).Infof("[ss]skip %s %s/%s\n", increment.Category, increment.Subject, increment.Object)
		return false
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	objects, ok := self.aggregate[increment.Subject]
	if !ok {
		objects = map[ObjectId]StatCell{}
		self.aggregate[increment.Subject] = objects
	}
	cell, ok := objects[increment.Object]
	if ok {
		cell.Quantity = saturatingAdd(cell.Quantity, increment.Quantity)
	} else {
		self.sequenceNumber += 1
		cell = StatCell{
			Quantity:       increment.Quantity,
			FirstSeen:      increment.Timestamp,
			sequenceNumber: self.sequenceNumber,
		}
	}
	cell.LastSeen = increment.Timestamp
	cell.ReceivedAt = self.now()
	objects[increment.Object] = cell

	glog.V(2).Infof("[ss]+%d %s/%s = %d\n", increment.Quantity, increment.Subject, increment.Object, cell.Quantity)
	return true
}

// a consistent point in time copy of the aggregate
func (self *StatsStore) SnapshotView() StatsAggregate {
	self.mutex.RLock()
	defer self.mutex.RUnlock()

	return self.aggregate.Clone()
}

func (self *StatsStore) Cell(subject SubjectId, object ObjectId) (StatCell, bool) {
	self.mutex.RLock()
	defer self.mutex.RUnlock()

	return self.aggregate.Cell(subject, object)
}

func (self *StatsStore) Len() int {
	self.mutex.RLock()
	defer self.mutex.RUnlock()

	return self.aggregate.Len()
}

// quantities only grow within a connection
func saturatingAdd(a uint64, b uint64) uint64 {
	if math.MaxUint64-a < b {
		return math.MaxUint64
	}
	return a + b
}

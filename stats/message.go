package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// sent once after the transport opens to request a full snapshot
const InitCommand = "init"

// sent periodically while open only to generate traffic
// the peer does not interpret it. It must never equal `InitCommand`.
const PingPayload = "keepalive"

// see the activity socket plugin and the stats sink for the enum values
type Category int

const (
	CategoryPvP   Category = 0
	CategoryPvE   Category = 1
	CategoryFarm  Category = 2
	CategoryWorld Category = 3
)

func (self Category) String() string {
	switch self {
	case CategoryPvP:
		return "pvp"
	case CategoryPvE:
		return "pve"
	case CategoryFarm:
		return "farm"
	case CategoryWorld:
		return "world"
	default:
		return fmt.Sprintf("category(%d)", int(self))
	}
}

var ErrProtocol = errors.New("protocol error")

// a payload that is not json, or is json of neither message shape
type ProtocolError struct {
	Reason string
	Err    error
}

func protocolError(err error, format string, a ...any) *ProtocolError {
	return &ProtocolError{
		Reason: fmt.Sprintf(format, a...),
		Err:    err,
	}
}

func (self *ProtocolError) Error() string {
	if self.Err != nil {
		return fmt.Sprintf("protocol error: %s (%s)", self.Reason, self.Err)
	}
	return fmt.Sprintf("protocol error: %s", self.Reason)
}

func (self *ProtocolError) Unwrap() error {
	return self.Err
}

func (self *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// closed over `*Snapshot` and `*Increment`
type Message interface {
	Kind() string
	sealedMessage()
}

type SnapshotEntry struct {
	Subject   SubjectId
	Object    ObjectId
	Quantity  uint64
	FirstSeen time.Time
	LastSeen  time.Time
}

// full replacement of the aggregate
// entries are in document order
type Snapshot struct {
	Entries []SnapshotEntry
}

func (self *Snapshot) Kind() string {
	return "snapshot"
}

func (self *Snapshot) sealedMessage() {}

// a single quantity change for one (subject, object) pair
type Increment struct {
	Category  Category
	Timestamp time.Time
	Subject   SubjectId
	Object    ObjectId
	Quantity  uint64
}

func (self *Increment) Kind() string {
	return "increment"
}

func (self *Increment) sealedMessage() {}

type incrementJson struct {
	Category  *json.Number `json:"category"`
	Timestamp *json.Number `json:"timestamp"`
	IdSubject *string      `json:"id_subject"`
	IdObject  *string      `json:"id_object"`
	Quantity  *json.Number `json:"quantity"`
}

type snapshotCellJson struct {
	Quantity               *json.Number `json:"Quantity"`
	TimestampUnixSecInit   *json.Number `json:"Timestamp_unix_sec_init"`
	TimestampUnixSecLatest *json.Number `json:"Timestamp_unix_sec_latest"`
}

// Messages are discriminated structurally: an object with a `category` key is
// an increment, any other object is a snapshot. Everything else is a `*ProtocolError`.
func DecodeMessage(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if !json.Valid(data) {
		return nil, protocolError(nil, "payload is not json")
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, protocolError(nil, "payload is not a json object")
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, protocolError(err, "payload is not a json object")
	}

	if _, ok := fields["category"]; ok {
		return decodeIncrement(data)
	}
	return decodeSnapshot(data)
}

func decodeIncrement(data []byte) (*Increment, error) {
	var raw incrementJson
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, protocolError(err, "malformed increment")
	}

	switch {
	case raw.Category == nil:
		return nil, protocolError(nil, "increment missing category")
	case raw.Timestamp == nil:
		return nil, protocolError(nil, "increment missing timestamp")
	case raw.IdSubject == nil || *raw.IdSubject == "":
		return nil, protocolError(nil, "increment missing id_subject")
	case raw.IdObject == nil || *raw.IdObject == "":
		return nil, protocolError(nil, "increment missing id_object")
	case raw.Quantity == nil:
		return nil, protocolError(nil, "increment missing quantity")
	}

	category, err := strconv.ParseInt(raw.Category.String(), 10, 64)
	if err != nil {
		return nil, protocolError(err, "increment category is not an integer")
	}
	if category < int64(CategoryPvP) || int64(CategoryWorld) < category {
		return nil, protocolError(nil, "increment category %d out of range", category)
	}
	timestamp, err := parseUnixSec(*raw.Timestamp)
	if err != nil {
		return nil, protocolError(err, "increment timestamp")
	}
	quantity, err := parseQuantity(*raw.Quantity)
	if err != nil {
		return nil, protocolError(err, "increment quantity")
	}

	return &Increment{
		Category:  Category(category),
		Timestamp: timestamp,
		Subject:   SubjectId(*raw.IdSubject),
		Object:    ObjectId(*raw.IdObject),
		Quantity:  quantity,
	}, nil
}

// walks the token stream so that entries keep document order
// (a go map would lose the order tie breaking relies on)
func decodeSnapshot(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, protocolError(err, "snapshot is not an object")
	}

	snapshot := &Snapshot{}
	for dec.More() {
		subject, err := nextKey(dec)
		if err != nil {
			return nil, protocolError(err, "malformed snapshot")
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, protocolError(err, "snapshot subject %s is not an object", subject)
		}
		for dec.More() {
			object, err := nextKey(dec)
			if err != nil {
				return nil, protocolError(err, "malformed snapshot subject %s", subject)
			}
			var cell snapshotCellJson
			if err := dec.Decode(&cell); err != nil {
				return nil, protocolError(err, "malformed snapshot cell %s/%s", subject, object)
			}
			entry, err := cell.entry(SubjectId(subject), ObjectId(object))
			if err != nil {
				return nil, protocolError(err, "malformed snapshot cell %s/%s", subject, object)
			}
			snapshot.Entries = append(snapshot.Entries, entry)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, protocolError(err, "malformed snapshot subject %s", subject)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, protocolError(err, "malformed snapshot")
	}
	return snapshot, nil
}

func (self *snapshotCellJson) entry(subject SubjectId, object ObjectId) (SnapshotEntry, error) {
	switch {
	case self.Quantity == nil:
		return SnapshotEntry{}, errors.New("missing Quantity")
	case self.TimestampUnixSecInit == nil:
		return SnapshotEntry{}, errors.New("missing Timestamp_unix_sec_init")
	case self.TimestampUnixSecLatest == nil:
		return SnapshotEntry{}, errors.New("missing Timestamp_unix_sec_latest")
	}
	quantity, err := parseQuantity(*self.Quantity)
	if err != nil {
		return SnapshotEntry{}, err
	}
	firstSeen, err := parseUnixSec(*self.TimestampUnixSecInit)
	if err != nil {
		return SnapshotEntry{}, err
	}
	lastSeen, err := parseUnixSec(*self.TimestampUnixSecLatest)
	if err != nil {
		return SnapshotEntry{}, err
	}
	return SnapshotEntry{
		Subject:   subject,
		Object:    object,
		Quantity:  quantity,
		FirstSeen: firstSeen,
		LastSeen:  lastSeen,
	}, nil
}

func expectDelim(dec *json.Decoder, delim json.Delim) error {
	token, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := token.(json.Delim); !ok || d != delim {
		return fmt.Errorf("expected %s but found %v", delim, token)
	}
	return nil
}

func nextKey(dec *json.Decoder) (string, error) {
	token, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := token.(string)
	if !ok {
		return "", fmt.Errorf("expected key but found %v", token)
	}
	return key, nil
}

func parseQuantity(n json.Number) (uint64, error) {
	quantity, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quantity %s is not an unsigned integer", n)
	}
	return quantity, nil
}

// whole or fractional unix seconds
func parseUnixSec(n json.Number) (time.Time, error) {
	if sec, err := n.Int64(); err == nil {
		return time.Unix(sec, 0), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("timestamp %s is not a number", n)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
}

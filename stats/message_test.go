package stats

import (
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func init() {
	initGlog()
}

func initGlog() {
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func TestDecodeSnapshot(t *testing.T) {
	data := []byte(`{
		"76561198000000002": {
			"stones": {"Quantity": 40, "Timestamp_unix_sec_init": 900, "Timestamp_unix_sec_latest": 990},
			"wood": {"Quantity": 10, "Timestamp_unix_sec_init": 950, "Timestamp_unix_sec_latest": 960}
		},
		"76561198000000001": {
			"wood": {"Quantity": 100, "Timestamp_unix_sec_init": 1000, "Timestamp_unix_sec_latest": 1000}
		}
	}`)

	message, err := DecodeMessage(data)
	assert.Equal(t, err, nil)
	assert.Equal(t, message.Kind(), "snapshot")

	snapshot, ok := message.(*Snapshot)
	assert.Equal(t, ok, true)
	// document order
	assert.Equal(t, snapshot.Entries, []SnapshotEntry{
		{
			Subject:   "76561198000000002",
			Object:    "stones",
			Quantity:  40,
			FirstSeen: time.Unix(900, 0),
			LastSeen:  time.Unix(990, 0),
		},
		{
			Subject:   "76561198000000002",
			Object:    "wood",
			Quantity:  10,
			FirstSeen: time.Unix(950, 0),
			LastSeen:  time.Unix(960, 0),
		},
		{
			Subject:   "76561198000000001",
			Object:    "wood",
			Quantity:  100,
			FirstSeen: time.Unix(1000, 0),
			LastSeen:  time.Unix(1000, 0),
		},
	})
}

func TestDecodeEmptySnapshot(t *testing.T) {
	message, err := DecodeMessage([]byte(` {} `))
	assert.Equal(t, err, nil)
	snapshot, ok := message.(*Snapshot)
	assert.Equal(t, ok, true)
	assert.Equal(t, len(snapshot.Entries), 0)
}

func TestDecodeIncrement(t *testing.T) {
	data := []byte(`{"category": 2, "timestamp": 1050, "id_subject": "76561198000000001", "id_object": "wood", "quantity": 25}`)

	message, err := DecodeMessage(data)
	assert.Equal(t, err, nil)
	assert.Equal(t, message.Kind(), "increment")

	increment, ok := message.(*Increment)
	assert.Equal(t, ok, true)
	assert.Equal(t, *increment, Increment{
		Category:  CategoryFarm,
		Timestamp: time.Unix(1050, 0),
		Subject:   "76561198000000001",
		Object:    "wood",
		Quantity:  25,
	})
}

func TestDecodeIncrementFractionalTimestamp(t *testing.T) {
	data := []byte(`{"category": 0, "timestamp": 1050.5, "id_subject": "a", "id_object": "b", "quantity": 1}`)

	message, err := DecodeMessage(data)
	assert.Equal(t, err, nil)
	increment := message.(*Increment)
	assert.Equal(t, increment.Category, CategoryPvP)
	assert.Equal(t, increment.Timestamp, time.Unix(1050, int64(500*time.Millisecond)))
}

func TestDecodeMalformed(t *testing.T) {
	malformed := []string{
		`not json`,
		``,
		`"init"`,
		`[1, 2, 3]`,
		`42`,
		`null`,
		`{"category": 2, "timestamp": 1050, "id_subject": "a", "id_object": "wood"}`,
		`{"category": 2, "timestamp": 1050, "id_object": "wood", "quantity": 1}`,
		`{"category": 2, "timestamp": 1050, "id_subject": "", "id_object": "wood", "quantity": 1}`,
		`{"category": 4, "timestamp": 1050, "id_subject": "a", "id_object": "wood", "quantity": 1}`,
		`{"category": -1, "timestamp": 1050, "id_subject": "a", "id_object": "wood", "quantity": 1}`,
		`{"category": 1.5, "timestamp": 1050, "id_subject": "a", "id_object": "wood", "quantity": 1}`,
		`{"category": 2, "timestamp": 1050, "id_subject": "a", "id_object": "wood", "quantity": -3}`,
		`{"category": 2, "timestamp": 1050, "id_subject": "a", "id_object": "wood", "quantity": 2.5}`,
		`{"category": 2, "timestamp": "yesterday", "id_subject": "a", "id_object": "wood", "quantity": 1}`,
		`{"category": 2, "timestamp": 1050, "id_subject": 7, "id_object": "wood", "quantity": 1}`,
		`{"76561198000000001": 5}`,
		`{"76561198000000001": {"wood": 5}}`,
		`{"76561198000000001": {"wood": {"Quantity": 5}}}`,
		`{"76561198000000001": {"wood": {"Quantity": -5, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1}}}`,
		`{"76561198000000001": {"wood": null}}`,
		`{"76561198000000001": [1]}`,
	}

	for _, m := range malformed {
		message, err := DecodeMessage([]byte(m))
		assert.Equal(t, message, nil)
		assert.NotEqual(t, err, nil)
		assert.Equal(t, errors.Is(err, ErrProtocol), true)

		var protocolErr *ProtocolError
		assert.Equal(t, errors.As(err, &protocolErr), true)
		assert.NotEqual(t, protocolErr.Reason, "")
	}
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, CategoryFarm.String(), "farm")
	assert.Equal(t, Category(9).String(), "category(9)")
}

func TestPingPayloadIsNotACommand(t *testing.T) {
	assert.NotEqual(t, PingPayload, InitCommand)
	assert.NotEqual(t, PingPayload, "")
}

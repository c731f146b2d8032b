package stats

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func testAggregate(t *testing.T, clock *testClock) *StatsStore {
	store := NewStatsStoreWithClock(clock.Now)
	store.Apply(requireDecode(t, `{
		"p1": {"wood": {"Quantity": 50, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1},
		       "stones": {"Quantity": 5, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1}},
		"p2": {"wood": {"Quantity": 80, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1}},
		"p3": {"wood": {"Quantity": 50, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1},
		       "stones": {"Quantity": 70, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1}},
		"p4": {"wood": {"Quantity": 50, "Timestamp_unix_sec_init": 1, "Timestamp_unix_sec_latest": 1}}
	}`))
	return store
}

func subjectsOf(subjectQuantities []SubjectQuantity) []SubjectId {
	subjects := []SubjectId{}
	for _, subjectQuantity := range subjectQuantities {
		subjects = append(subjects, subjectQuantity.Subject)
	}
	return subjects
}

func TestTopSubjectsByObject(t *testing.T) {
	clock := newTestClock()
	store := testAggregate(t, clock)

	top := TopSubjectsByObject(store.SnapshotView())
	assert.Equal(t, len(top), 2)

	// ties (p1, p3, p4 at 50) keep creation order
	assert.Equal(t, subjectsOf(top["wood"]), []SubjectId{"p2", "p1", "p3", "p4"})
	assert.Equal(t, subjectsOf(top["stones"]), []SubjectId{"p3", "p1"})

	for _, subjectQuantities := range top {
		for i := 1; i < len(subjectQuantities); i += 1 {
			assert.Equal(t, subjectQuantities[i].Quantity <= subjectQuantities[i-1].Quantity, true)
		}
	}
	assert.Equal(t, top["wood"][0].Quantity, uint64(80))
	assert.Equal(t, top["wood"][0].ReceivedAt, clock.Now())
}

func TestTopSubjectsTiesFollowIncrementArrival(t *testing.T) {
	store := NewStatsStoreWithClock(newTestClock().Now)
	for _, subject := range []SubjectId{"z", "a", "m"} {
		store.ApplyIncrement(&Increment{
			Category: CategoryFarm,
			Subject:  subject,
			Object:   "wood",
			Quantity: 10,
		})
	}
	store.ApplyIncrement(&Increment{
		Category: CategoryFarm,
		Subject:  "m",
		Object:   "wood",
		Quantity: 1,
	})

	top := TopSubjectsByObject(store.SnapshotView())
	assert.Equal(t, subjectsOf(top["wood"]), []SubjectId{"m", "z", "a"})
}

func TestTopSubjectsForObject(t *testing.T) {
	store := testAggregate(t, newTestClock())
	aggregate := store.SnapshotView()

	assert.Equal(t, subjectsOf(TopSubjectsForObject(aggregate, "wood", 2)), []SubjectId{"p2", "p1"})
	assert.Equal(t, subjectsOf(TopSubjectsForObject(aggregate, "wood", -1)), []SubjectId{"p2", "p1", "p3", "p4"})
	assert.Equal(t, subjectsOf(TopSubjectsForObject(aggregate, "wood", 10)), []SubjectId{"p2", "p1", "p3", "p4"})
	assert.Equal(t, len(TopSubjectsForObject(aggregate, "sulfur.ore", 10)), 0)
}

func TestObjectsForSubject(t *testing.T) {
	store := testAggregate(t, newTestClock())
	aggregate := store.SnapshotView()

	objectQuantities := ObjectsForSubject(aggregate, "p3")
	assert.Equal(t, len(objectQuantities), 2)
	assert.Equal(t, objectQuantities[0].Object, ObjectId("stones"))
	assert.Equal(t, objectQuantities[0].Quantity, uint64(70))
	assert.Equal(t, objectQuantities[1].Object, ObjectId("wood"))
	assert.Equal(t, objectQuantities[1].Quantity, uint64(50))

	assert.Equal(t, len(ObjectsForSubject(aggregate, "nobody")), 0)
}

func TestViewsDoNotMutate(t *testing.T) {
	store := testAggregate(t, newTestClock())
	aggregate := store.SnapshotView()
	before := aggregate.Clone()

	TopSubjectsByObject(aggregate)
	ObjectsForSubject(aggregate, "p1")
	SortedObjects(aggregate)
	SortedSubjects(aggregate)

	assert.Equal(t, aggregate, before)
}

func TestFilterBySubstring(t *testing.T) {
	objects := []ObjectId{"wood", "metal.ore", "sulfur.ore", "Wood"}
	assert.Equal(t, FilterBySubstring(objects, "ore"), []ObjectId{"metal.ore", "sulfur.ore"})
	// case sensitive
	assert.Equal(t, FilterBySubstring(objects, "wood"), []ObjectId{"wood"})
	assert.Equal(t, FilterBySubstring(objects, ""), objects)
	assert.Equal(t, FilterBySubstring(objects, "gold"), []ObjectId{})

	subjects := []SubjectId{"76561198000000001", "76561198000000002"}
	assert.Equal(t, FilterBySubstring(subjects, "02"), []SubjectId{"76561198000000002"})
}

func TestIsRecentlyChanged(t *testing.T) {
	clock := newTestClock()
	store := NewStatsStoreWithClock(clock.Now)
	store.ApplyIncrement(&Increment{
		Category: CategoryFarm,
		Subject:  "s",
		Object:   "wood",
		Quantity: 1,
	})
	cell, _ := store.Cell("s", "wood")

	assert.Equal(t, IsRecentlyChanged(cell, clock.Now(), DefaultFreshnessWindow), true)
	assert.Equal(t, IsRecentlyChanged(cell, clock.Now().Add(2999*time.Millisecond), DefaultFreshnessWindow), true)
	assert.Equal(t, IsRecentlyChanged(cell, clock.Now().Add(3000*time.Millisecond), DefaultFreshnessWindow), false)
	assert.Equal(t, IsRecentlyChanged(cell, clock.Now().Add(time.Minute), DefaultFreshnessWindow), false)
	// skewed clocks count by distance
	assert.Equal(t, IsRecentlyChanged(cell, clock.Now().Add(-time.Second), DefaultFreshnessWindow), true)
}

func TestSortedKeys(t *testing.T) {
	store := testAggregate(t, newTestClock())
	aggregate := store.SnapshotView()

	assert.Equal(t, SortedSubjects(aggregate), []SubjectId{"p1", "p2", "p3", "p4"})
	assert.Equal(t, SortedObjects(aggregate), []ObjectId{"wood", "stones"})
}

func TestObjectLabel(t *testing.T) {
	assert.Equal(t, ObjectLabel("wood"), "wood")
	assert.Equal(t, ObjectLabel("assets/bundled/prefabs/autospawn/resource/ores/metal-ore.prefab"), "metal-ore.prefab")
	assert.Equal(t, ObjectLabel("a/b/"), "b")
	assert.Equal(t, ObjectLabel(""), "")
}

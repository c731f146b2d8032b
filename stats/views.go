package stats

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// views are recomputed from a `StatsAggregate` on every call and never mutate it

const DefaultFreshnessWindow = 3 * time.Second

// how often "recently changed" must be re-evaluated so highlights expire
// without new messages
const FreshnessTickInterval = 1 * time.Second

type SubjectQuantity struct {
	Subject    SubjectId
	Quantity   uint64
	ReceivedAt time.Time

	sequenceNumber uint64
}

type ObjectQuantity struct {
	Object     ObjectId
	Quantity   uint64
	ReceivedAt time.Time

	sequenceNumber uint64
}

// object -> subjects by quantity descending
// equal quantities keep the order in which their cells were created
func TopSubjectsByObject(aggregate StatsAggregate) map[ObjectId][]SubjectQuantity {
	top := map[ObjectId][]SubjectQuantity{}
	for subject, objects := range aggregate {
		for object, cell := range objects {
			top[object] = append(top[object], SubjectQuantity{
				Subject:        subject,
				Quantity:       cell.Quantity,
				ReceivedAt:     cell.ReceivedAt,
				sequenceNumber: cell.sequenceNumber,
			})
		}
	}
	for _, subjectQuantities := range top {
		slices.SortFunc(subjectQuantities, func(a SubjectQuantity, b SubjectQuantity) int {
			return compareRank(a.Quantity, a.sequenceNumber, b.Quantity, b.sequenceNumber)
		})
	}
	return top
}

// at most `n` leading subjects for one object. `n < 0` means all.
func TopSubjectsForObject(aggregate StatsAggregate, object ObjectId, n int) []SubjectQuantity {
	subjectQuantities := []SubjectQuantity{}
	for subject, objects := range aggregate {
		if cell, ok := objects[object]; ok {
			subjectQuantities = append(subjectQuantities, SubjectQuantity{
				Subject:        subject,
				Quantity:       cell.Quantity,
				ReceivedAt:     cell.ReceivedAt,
				sequenceNumber: cell.sequenceNumber,
			})
		}
	}
	slices.SortFunc(subjectQuantities, func(a SubjectQuantity, b SubjectQuantity) int {
		return compareRank(a.Quantity, a.sequenceNumber, b.Quantity, b.sequenceNumber)
	})
	if 0 <= n && n < len(subjectQuantities) {
		subjectQuantities = subjectQuantities[:n]
	}
	return subjectQuantities
}

// objects of one subject by quantity descending
func ObjectsForSubject(aggregate StatsAggregate, subject SubjectId) []ObjectQuantity {
	objectQuantities := []ObjectQuantity{}
	for object, cell := range aggregate[subject] {
		objectQuantities = append(objectQuantities, ObjectQuantity{
			Object:         object,
			Quantity:       cell.Quantity,
			ReceivedAt:     cell.ReceivedAt,
			sequenceNumber: cell.sequenceNumber,
		})
	}
	slices.SortFunc(objectQuantities, func(a ObjectQuantity, b ObjectQuantity) int {
		return compareRank(a.Quantity, a.sequenceNumber, b.Quantity, b.sequenceNumber)
	})
	return objectQuantities
}

// quantity descending, then creation order ascending
// sequence numbers are unique within a store so the order is total
func compareRank(aQuantity uint64, aSequenceNumber uint64, bQuantity uint64, bSequenceNumber uint64) int {
	if aQuantity != bQuantity {
		if bQuantity < aQuantity {
			return -1
		}
		return 1
	}
	if aSequenceNumber < bSequenceNumber {
		return -1
	} else if bSequenceNumber < aSequenceNumber {
		return 1
	}
	return 0
}

// case sensitive substring filter. Preserves the order of `keys`.
func FilterBySubstring[K ~string](keys []K, needle string) []K {
	filtered := make([]K, 0, len(keys))
	for _, key := range keys {
		if strings.Contains(string(key), needle) {
			filtered = append(filtered, key)
		}
	}
	return filtered
}

func IsRecentlyChanged(cell StatCell, now time.Time, window time.Duration) bool {
	d := now.Sub(cell.ReceivedAt)
	if d < 0 {
		d = -d
	}
	return d < window
}

// objects in first seen creation order, for stable rendering
func SortedObjects(aggregate StatsAggregate) []ObjectId {
	firstSequenceNumbers := map[ObjectId]uint64{}
	for _, objects := range aggregate {
		for object, cell := range objects {
			if s, ok := firstSequenceNumbers[object]; !ok || cell.sequenceNumber < s {
				firstSequenceNumbers[object] = cell.sequenceNumber
			}
		}
	}
	return sortKeysBySequenceNumber(firstSequenceNumbers)
}

// subjects in first seen creation order, for stable rendering
func SortedSubjects(aggregate StatsAggregate) []SubjectId {
	firstSequenceNumbers := map[SubjectId]uint64{}
	for subject, objects := range aggregate {
		for _, cell := range objects {
			if s, ok := firstSequenceNumbers[subject]; !ok || cell.sequenceNumber < s {
				firstSequenceNumbers[subject] = cell.sequenceNumber
			}
		}
	}
	return sortKeysBySequenceNumber(firstSequenceNumbers)
}

func sortKeysBySequenceNumber[K ~string](sequenceNumbers map[K]uint64) []K {
	keys := make([]K, 0, len(sequenceNumbers))
	for key := range sequenceNumbers {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a K, b K) int {
		aSequenceNumber := sequenceNumbers[a]
		bSequenceNumber := sequenceNumbers[b]
		if aSequenceNumber < bSequenceNumber {
			return -1
		} else if bSequenceNumber < aSequenceNumber {
			return 1
		}
		return strings.Compare(string(a), string(b))
	})
	return keys
}

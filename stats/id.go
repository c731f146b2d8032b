package stats

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// identifies one Open period of the transport
// ulids are ordered by create time, so a later connection always compares greater
// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) LessThan(b Id) bool {
	return ulid.ULID(self).Compare(ulid.ULID(b)) < 0
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// e.g. a 17-digit steam id
type SubjectId string

// e.g. "wood", or a path such as "assets/bundled/prefabs/ores/metal-ore.prefab"
type ObjectId string

// the display label of an object id is its final path segment
func ObjectLabel(objectId ObjectId) string {
	s := strings.TrimRight(string(objectId), "/")
	if i := strings.LastIndex(s, "/"); 0 <= i {
		return s[i+1:]
	}
	return s
}

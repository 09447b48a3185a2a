package shared

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Identifier is implemented by every identity value object
type Identifier interface {
	Value() string
	String() string
}

// ID is the base identity value object. Concrete identifiers embed it and
// validate the value before constructing it.
type ID struct {
	value string
}

// Value returns the raw identifier
func (id ID) Value() string {
	return id.value
}

// String implements fmt.Stringer
func (id ID) String() string {
	return id.value
}

// IsZero returns true if the identifier is empty
func (id ID) IsZero() bool {
	return id.value == ""
}

// Equals compares against another identifier or a raw string
func (id ID) Equals(other any) bool {
	switch o := other.(type) {
	case nil:
		return false
	case string:
		return id.value == o
	case Identifier:
		return id.value == o.Value()
	}
	return false
}

// GenerateUUID returns a random, globally unique, opaque identifier string
func GenerateUUID() string {
	return uuid.NewString()
}

// UUID is an ID holding an RFC 4122 UUID. Generated values are version 7 so
// the creation time can be read back from the identifier.
type UUID struct {
	ID
}

// NilUUID is the zero UUID value
var NilUUID = UUID{}

// NewUUID generates a new time-ordered (version 7) UUID
func NewUUID() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		u = uuid.New()
	}
	return UUIDFrom(u)
}

// canonicalUUIDLen is the length of the hyphenated 8-4-4-4-12 form
const canonicalUUIDLen = 36

// ParseUUID builds a UUID from its hyphenated 8-4-4-4-12 form and keeps the
// string as given, so the result equals value. Braced, URN and unhyphenated
// spellings are rejected as wrong format. The nil UUID is a valid value here.
func ParseUUID(value string) (UUID, error) {
	if value == "" {
		return NilUUID, InvalidIDBecauseEmpty()
	}
	if len(value) != canonicalUUIDLen {
		return NilUUID, InvalidIDBecauseWrongFormat(value)
	}
	if _, err := uuid.Parse(value); err != nil {
		return NilUUID, InvalidIDBecauseWrongFormat(value)
	}
	return UUID{ID: ID{value: value}}, nil
}

// MustParseUUID is like ParseUUID but panics on invalid input
func MustParseUUID(value string) UUID {
	u, err := ParseUUID(value)
	if err != nil {
		panic(err)
	}
	return u
}

// UUIDFrom adapts a github.com/google/uuid value
func UUIDFrom(u uuid.UUID) UUID {
	if u == uuid.Nil {
		return NilUUID
	}
	return UUID{ID: ID{value: u.String()}}
}

// UUID returns the github.com/google/uuid representation
func (u UUID) UUID() uuid.UUID {
	if u.value == "" {
		return uuid.Nil
	}
	return uuid.MustParse(u.value)
}

// UnixMilli reads the leading 48 bits as a millisecond Unix timestamp
// (version 7 layout)
func (u UUID) UnixMilli() int64 {
	raw := u.UUID()
	var buf [8]byte
	copy(buf[2:], raw[:6])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// Time returns the creation time encoded in a version 7 UUID
func (u UUID) Time() time.Time {
	return time.UnixMilli(u.UnixMilli()).UTC()
}

// YearMonth formats the creation time as YYYY-MM
func (u UUID) YearMonth() string {
	return u.Time().Format("2006-01")
}

// MarshalText implements encoding.TextMarshaler
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (u *UUID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*u = NilUUID
		return nil
	}
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

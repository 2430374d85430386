// Package field implements the versioned field codecs of the pwsafe file
// format.
//
// A field is a tagged value: a type id, the file version it belongs to and its
// raw bytes. The raw bytes are canonical; the decoded value is always derived
// from them through the codec registered for (version, type id). Type ids a
// version does not know decode as opaque bytes so they survive a load/save
// cycle unchanged.
package field

import "fmt"

// Version is an on-disk file format version.
type Version int

// Supported format versions.
const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
)

// String returns the version name.
func (v Version) String() string {
	switch v {
	case V1, V2, V3:
		return fmt.Sprintf("V%d", int(v))
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// Valid reports whether v is a supported version.
func (v Version) Valid() bool {
	return v == V1 || v == V2 || v == V3
}

// TypeID identifies a field within a record. Numbering is shared across
// versions; which ids are meaningful depends on the version.
type TypeID uint8

// Field type ids.
const (
	TypeVersionString          TypeID = 0x00
	TypeUUID                   TypeID = 0x01
	TypeGroup                  TypeID = 0x02
	TypeTitle                  TypeID = 0x03
	TypeUsername               TypeID = 0x04
	TypeNotes                  TypeID = 0x05
	TypePassword               TypeID = 0x06
	TypeCreationTime           TypeID = 0x07
	TypePasswordModTime        TypeID = 0x08
	TypeLastAccessTime         TypeID = 0x09
	TypePasswordLifetime       TypeID = 0x0a
	TypePasswordPolicyLegacy   TypeID = 0x0b
	TypeLastModTime            TypeID = 0x0c
	TypeURL                    TypeID = 0x0d
	TypeAutotype               TypeID = 0x0e
	TypePasswordHistory        TypeID = 0x0f
	TypePasswordPolicy         TypeID = 0x10
	TypePasswordExpiryInterval TypeID = 0x11
	TypeEndOfRecord            TypeID = 0xff
)

var typeNames = map[TypeID]string{
	TypeVersionString:          "version",
	TypeUUID:                   "uuid",
	TypeGroup:                  "group",
	TypeTitle:                  "title",
	TypeUsername:               "username",
	TypeNotes:                  "notes",
	TypePassword:               "password",
	TypeCreationTime:           "ctime",
	TypePasswordModTime:        "pmtime",
	TypeLastAccessTime:         "atime",
	TypePasswordLifetime:       "ltime",
	TypePasswordPolicyLegacy:   "policy",
	TypeLastModTime:            "rmtime",
	TypeURL:                    "url",
	TypeAutotype:               "autotype",
	TypePasswordHistory:        "history",
	TypePasswordPolicy:         "policy-string",
	TypePasswordExpiryInterval: "expiry-interval",
	TypeEndOfRecord:            "end",
}

// String returns a short display name for the type id.
func (t TypeID) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type-0x%02x", uint8(t))
}

// registry maps each version's known type ids to their codec kind.
var registry = map[Version]map[TypeID]Kind{
	V1: {
		TypeTitle:    KindString,
		TypeUsername: KindString,
		TypeNotes:    KindString,
		TypePassword: KindString,
	},
	V2: {
		TypeVersionString:        KindString,
		TypeUUID:                 KindUUID,
		TypeGroup:                KindString,
		TypeTitle:                KindString,
		TypeUsername:             KindString,
		TypeNotes:                KindString,
		TypePassword:             KindString,
		TypeCreationTime:         KindTime,
		TypePasswordModTime:      KindTime,
		TypeLastAccessTime:       KindTime,
		TypePasswordLifetime:     KindTime,
		TypePasswordPolicyLegacy: KindInteger,
	},
	V3: {
		TypeUUID:                   KindUUID,
		TypeGroup:                  KindWideString,
		TypeTitle:                  KindWideString,
		TypeUsername:               KindWideString,
		TypeNotes:                  KindWideString,
		TypePassword:               KindWideString,
		TypeCreationTime:           KindTime,
		TypePasswordModTime:        KindTime,
		TypeLastAccessTime:         KindTime,
		TypePasswordLifetime:       KindTime,
		TypePasswordPolicyLegacy:   KindInteger,
		TypeLastModTime:            KindTime,
		TypeURL:                    KindWideString,
		TypeAutotype:               KindWideString,
		TypePasswordHistory:        KindWideString,
		TypePasswordPolicy:         KindWideString,
		TypePasswordExpiryInterval: KindInteger,
	},
}

// KindOf returns the codec kind registered for t in version v. Unknown ids
// report KindOpaque and false.
func KindOf(v Version, t TypeID) (Kind, bool) {
	k, ok := registry[v][t]
	if !ok {
		return KindOpaque, false
	}
	return k, true
}

// Known reports whether t is a registered field type for version v.
func Known(v Version, t TypeID) bool {
	_, ok := registry[v][t]
	return ok
}

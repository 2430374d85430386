package datastore

import (
	"slices"
	"strings"

	"github.com/forest6511/pwsafe/pkg/field"
	"github.com/forest6511/pwsafe/pkg/record"
)

// GroupSeparator delimits the levels of a group path such as "Work.Email".
const GroupSeparator = "."

// Entry is the sparse projection of a record used for listings. It never
// carries the password or notes.
type Entry struct {
	StoreIndex int
	Version    field.Version
	Group      string
	Title      string
	Username   string
	HasURL     bool
}

func project(i int, rec *record.Record) Entry {
	return Entry{
		StoreIndex: i,
		Version:    rec.Version(),
		Group:      rec.Group(),
		Title:      rec.Title(),
		Username:   rec.Username(),
		HasURL:     rec.Has(field.TypeURL),
	}
}

// ElementKind distinguishes the members of a group listing.
type ElementKind int

const (
	ElementGroup ElementKind = iota
	ElementRecord
)

func (k ElementKind) String() string {
	if k == ElementGroup {
		return "group"
	}
	return "record"
}

// Element is one member of a group listing: either an immediate child group
// or a record that sits directly in the listed group.
type Element struct {
	Kind ElementKind
	// Name is the child group's own name or the record title.
	Name string
	// Path is the full group path of a child group, or the group of a record.
	Path string
	// Entry is set for records.
	Entry Entry
}

// Elements lists the top level: every first-level group and every record
// without a group.
func (d *Datastore) Elements() []Element {
	return d.GroupsUnder("")
}

// GroupsUnder lists the immediate child groups of prefix, sorted by name,
// followed by the records whose group is exactly prefix, in store order.
// The empty prefix denotes the root.
func (d *Datastore) GroupsUnder(prefix string) []Element {
	seen := make(map[string]bool)
	var groups []string
	var records []Element

	for _, e := range d.entries {
		rest, ok := relativeGroup(e.Group, prefix)
		if !ok {
			continue
		}
		if rest == "" {
			records = append(records, Element{Kind: ElementRecord, Name: e.Title, Path: e.Group, Entry: e})
			continue
		}
		child, _, _ := strings.Cut(rest, GroupSeparator)
		if !seen[child] {
			seen[child] = true
			groups = append(groups, child)
		}
	}

	slices.Sort(groups)
	out := make([]Element, 0, len(groups)+len(records))
	for _, g := range groups {
		out = append(out, Element{Kind: ElementGroup, Name: g, Path: joinGroup(prefix, g)})
	}
	return append(out, records...)
}

// Groups returns every distinct group path, including intermediate levels,
// in sorted order.
func (d *Datastore) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range d.entries {
		g := e.Group
		for g != "" && !seen[g] {
			seen[g] = true
			out = append(out, g)
			i := strings.LastIndex(g, GroupSeparator)
			if i < 0 {
				break
			}
			g = g[:i]
		}
	}
	slices.Sort(out)
	return out
}

// relativeGroup returns the part of group below prefix and whether group is
// prefix itself or one of its descendants.
func relativeGroup(group, prefix string) (string, bool) {
	if prefix == "" {
		return group, true
	}
	if group == prefix {
		return "", true
	}
	rest, ok := strings.CutPrefix(group, prefix+GroupSeparator)
	return rest, ok
}

func joinGroup(prefix, child string) string {
	if prefix == "" {
		return child
	}
	return prefix + GroupSeparator + child
}

package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/pwsafe/pkg/datastore"
)

// DuplicateGroup represents a set of records sharing the same password.
type DuplicateGroup struct {
	// StoreIndexes lists the records with the shared password, in store order.
	StoreIndexes []int `json:"store_indexes"`
	// Titles holds the record titles, parallel to StoreIndexes.
	Titles []string `json:"titles"`
	// Count is the number of duplicates.
	Count int `json:"count"`
}

// duplicateEntry tracks a single password occurrence for grouping.
type duplicateEntry struct {
	index int
	title string
	hash  string
}

// FindDuplicates groups records whose passwords are equal after
// normalisation. Groups are sorted by count, most duplicated first.
//
// Passwords are compared through HMAC-SHA256 under the calculator's
// session-local key; the hashes are never persisted. Values are normalised by
// trimming surrounding whitespace and applying Unicode NFC.
func (c *Calculator) FindDuplicates(ds *datastore.Datastore) []DuplicateGroup {
	// Collect all passwords with their hashes
	var entries []duplicateEntry
	for i, rec := range ds.Records() {
		value := normalizeValue(rec.Password())
		if value == "" {
			continue
		}
		entries = append(entries, duplicateEntry{
			index: i,
			title: rec.Title(),
			hash:  computeValueHash(value, c.hmacKey),
		})
	}

	// Group by hash, remembering first occurrence for a stable order
	hashGroups := make(map[string][]duplicateEntry)
	var order []string
	for _, entry := range entries {
		if _, ok := hashGroups[entry.hash]; !ok {
			order = append(order, entry.hash)
		}
		hashGroups[entry.hash] = append(hashGroups[entry.hash], entry)
	}

	var groups []DuplicateGroup
	for _, hash := range order {
		members := hashGroups[hash]
		if len(members) <= 1 {
			continue // Not a duplicate
		}
		group := DuplicateGroup{Count: len(members)}
		for _, m := range members {
			group.StoreIndexes = append(group.StoreIndexes, m.index)
			group.Titles = append(group.Titles, m.title)
		}
		groups = append(groups, group)
	}

	// Sort by count (descending)
	slices.SortStableFunc(groups, func(a, b DuplicateGroup) int {
		return b.Count - a.Count
	})
	return groups
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue normalizes a password value for comparison.
func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

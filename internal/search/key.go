package search

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"slices"
	"strconv"

	"github.com/Iron-Ham/taskscope/internal/taskstate"
)

// CacheKey returns the canonical cache key of q.
//
// Determinism rules:
//   - Filter lists are treated as sets: sorted and de-duplicated.
//   - A nil and an empty list hash the same.
//   - Result totals (TotalItems, TotalPages) are not part of the key; they
//     describe a response, not the request.
//   - Every field is length-prefixed to avoid ambiguity.
func CacheKey(q Query) string {
	h := sha256.New()

	writeField(h, "text", q.Text)
	writeSet(h, "status", statusStrings(q.Filter.Status))
	writeSet(h, "priority", q.Filter.Priority)
	writeSet(h, "assignee", q.Filter.Assignee)

	var from, to string
	if !q.Filter.DateRange.IsZero() {
		from, to = q.Filter.DateRange.From, q.Filter.DateRange.To
	}
	writeField(h, "date_from", from)
	writeField(h, "date_to", to)

	sort := q.Sort
	if sort.Field == "" {
		sort.Field = DefaultSortField
	}
	if !sort.Direction.IsValid() {
		sort.Direction = Desc
	}
	writeField(h, "sort_field", sort.Field)
	writeField(h, "sort_direction", string(sort.Direction))

	pageSize := q.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	writeField(h, "page", strconv.Itoa(max(q.Pagination.Page, 1)))
	writeField(h, "page_size", strconv.Itoa(pageSize))

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, name, value string) {
	writeBytes(h, []byte(name))
	writeBytes(h, []byte(value))
}

func writeSet(h hash.Hash, name string, values []string) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	writeBytes(h, []byte(name))
	writeBytes(h, []byte(strconv.Itoa(len(sorted))))
	for _, v := range sorted {
		writeBytes(h, []byte(v))
	}
}

func writeBytes(h hash.Hash, data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	h.Write(length[:])
	h.Write(data)
}

func statusStrings(states []taskstate.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

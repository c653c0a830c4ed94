// =============================================================================
// Price Sync - Catalog Index
// =============================================================================
//
// The index maps a vendor product code to the ERP template ids carrying that
// code. It is built once per process by paginated parallel fetch and is
// read-only afterwards; a rescan requires a new run.
//
// =============================================================================

package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrAmbiguousTemplate is returned when a code maps to several templates and
// the policy refuses to choose.
var ErrAmbiguousTemplate = errors.New("product code maps to more than one template")

// Policy decides how a code with several templates resolves.
type Policy string

const (
	// PolicyReject fails the record. Duplicate default codes are a data
	// quality problem in the catalog.
	PolicyReject Policy = "reject"

	// PolicyFirst picks the lowest template id.
	PolicyFirst Policy = "first"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReject, PolicyFirst:
		return p, nil
	}
	return "", fmt.Errorf("unknown ambiguous template policy %q", s)
}

// Index is an immutable code -> template ids map. The zero value and a nil
// *Index are empty.
type Index struct {
	codes map[string][]int64
}

// NewIndex copies entries, dropping zero ids and duplicate ids per code.
func NewIndex(entries map[string][]int64) *Index {
	ix := &Index{codes: make(map[string][]int64, len(entries))}
	for code, ids := range entries {
		for _, id := range ids {
			if id > 0 {
				ix.codes[code] = addID(ix.codes[code], id)
			}
		}
	}
	return ix
}

// addID inserts id keeping the slice sorted and unique.
func addID(ids []int64, id int64) []int64 {
	if id <= 0 {
		return ids
	}
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// Lookup returns the template ids for code in ascending order.
func (ix *Index) Lookup(code string) []int64 {
	if ix == nil {
		return nil
	}
	return ix.codes[code]
}

// Resolve returns the template id for code, or 0 when the code is unknown.
func (ix *Index) Resolve(code string, policy Policy) (int64, error) {
	ids := ix.Lookup(code)
	switch {
	case len(ids) == 0:
		return 0, nil
	case len(ids) == 1 || policy == PolicyFirst:
		return ids[0], nil
	}
	return 0, fmt.Errorf("%w: %s -> %v", ErrAmbiguousTemplate, code, ids)
}

// Len returns the number of distinct codes.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.codes)
}

// Duplicates lists codes with more than one template, sorted.
func (ix *Index) Duplicates() []string {
	if ix == nil {
		return nil
	}
	var out []string
	for code, ids := range ix.codes {
		if len(ids) > 1 {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// Package erptest provides an in-memory erp.Client for tests.
package erptest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dealerops/pricesync/internal/erp"
)

// Call records one client invocation.
type Call struct {
	Method string
	Model  string
	Domain erp.Domain
	Page   erp.Page
	IDs    []int64
	Values []erp.Values
	Err    error
}

// Fake is a thread-safe in-memory ERP. Records are stored per model and
// searched in id order.
type Fake struct {
	mu     sync.Mutex
	data   map[string]map[int64]erp.Values
	nextID int64
	calls  []Call
	faults map[string][]error

	// Hook, when set, runs before every call; a non-nil error fails it.
	Hook func(c Call) error
}

var _ erp.Client = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		data:   make(map[string]map[int64]erp.Values),
		faults: make(map[string][]error),
	}
}

// Seed inserts rows into model and returns their ids.
func (f *Fake) Seed(model string, rows ...erp.Values) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insert(model, rows)
}

// Inject queues errors returned by the next calls of method on model, one per
// call.
func (f *Fake) Inject(method, model string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + model
	f.faults[key] = append(f.faults[key], errs...)
}

// Calls returns recorded calls filtered by method and model; empty strings
// match anything.
func (f *Fake) Calls(method, model string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if (method == "" || c.Method == method) && (model == "" || c.Model == model) {
			out = append(out, c)
		}
	}
	return out
}

// Succeeded counts calls of method on model that returned no error.
func (f *Fake) Succeeded(method, model string) int {
	n := 0
	for _, c := range f.Calls(method, model) {
		if c.Err == nil {
			n++
		}
	}
	return n
}

// Records returns copies of every stored row of model in id order.
func (f *Fake) Records(model string) []erp.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.sortedIDs(model)
	out := make([]erp.Values, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyValues(f.data[model][id]))
	}
	return out
}

// Count returns the number of stored rows of model.
func (f *Fake) Count(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[model])
}

// =============================================================================
// erp.Client
// =============================================================================

func (f *Fake) SearchRead(ctx context.Context, model string, domain erp.Domain, fields []string, page erp.Page) ([]erp.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "search_read", Model: model, Domain: domain, Page: page}); err != nil {
		return nil, err
	}
	ids := paginate(f.match(model, domain), page)
	return f.project(model, ids, fields), nil
}

func (f *Fake) Search(ctx context.Context, model string, domain erp.Domain, page erp.Page) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "search", Model: model, Domain: domain, Page: page}); err != nil {
		return nil, err
	}
	return paginate(f.match(model, domain), page), nil
}

func (f *Fake) Read(ctx context.Context, model string, ids []int64, fields []string) ([]erp.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "read", Model: model, IDs: ids}); err != nil {
		return nil, err
	}
	return f.project(model, ids, fields), nil
}

func (f *Fake) Create(ctx context.Context, model string, records []erp.Values) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "create", Model: model, Values: records}); err != nil {
		return nil, err
	}
	return f.insert(model, records), nil
}

func (f *Fake) Write(ctx context.Context, model string, ids []int64, values erp.Values) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "write", Model: model, IDs: ids, Values: []erp.Values{values}}); err != nil {
		return false, err
	}
	for _, id := range ids {
		row, ok := f.data[model][id]
		if !ok {
			continue
		}
		for k, v := range values {
			row[k] = v
		}
	}
	return true, nil
}

func (f *Fake) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "unlink", Model: model, IDs: ids}); err != nil {
		return false, err
	}
	for _, id := range ids {
		delete(f.data[model], id)
	}
	return true, nil
}

func (f *Fake) SearchCount(ctx context.Context, model string, domain erp.Domain) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(Call{Method: "search_count", Model: model, Domain: domain}); err != nil {
		return 0, err
	}
	return len(f.match(model, domain)), nil
}

// =============================================================================
// INTERNALS (callers hold f.mu)
// =============================================================================

// begin records the call and returns an injected or hooked fault.
func (f *Fake) begin(c Call) error {
	key := c.Method + " " + c.Model
	if q := f.faults[key]; len(q) > 0 {
		c.Err = q[0]
		f.faults[key] = q[1:]
	}
	if c.Err == nil && f.Hook != nil {
		c.Err = f.Hook(c)
	}
	f.calls = append(f.calls, c)
	return c.Err
}

func (f *Fake) insert(model string, rows []erp.Values) []int64 {
	if f.data[model] == nil {
		f.data[model] = make(map[int64]erp.Values)
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		f.nextID++
		row := copyValues(r)
		row["id"] = f.nextID
		f.data[model][f.nextID] = row
		ids = append(ids, f.nextID)
	}
	return ids
}

func (f *Fake) sortedIDs(model string) []int64 {
	ids := make([]int64, 0, len(f.data[model]))
	for id := range f.data[model] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *Fake) match(model string, domain erp.Domain) []int64 {
	var out []int64
	for _, id := range f.sortedIDs(model) {
		if matches(f.data[model][id], domain) {
			out = append(out, id)
		}
	}
	return out
}

func (f *Fake) project(model string, ids []int64, fields []string) []erp.Values {
	out := make([]erp.Values, 0, len(ids))
	for _, id := range ids {
		row, ok := f.data[model][id]
		if !ok {
			continue
		}
		if len(fields) == 0 {
			out = append(out, copyValues(row))
			continue
		}
		p := erp.Values{"id": id}
		for _, name := range fields {
			if v, ok := row[name]; ok {
				p[name] = v
			} else {
				p[name] = false
			}
		}
		out = append(out, p)
	}
	return out
}

func paginate(ids []int64, page erp.Page) []int64 {
	if page.Offset >= len(ids) {
		return nil
	}
	ids = ids[page.Offset:]
	if page.Limit > 0 && page.Limit < len(ids) {
		ids = ids[:page.Limit]
	}
	return ids
}

func matches(row erp.Values, domain erp.Domain) bool {
	for _, c := range domain {
		if !evaluate(row[c.Field], c) {
			return false
		}
	}
	return true
}

func evaluate(v interface{}, c erp.Cond) bool {
	switch c.Op {
	case "=":
		return equal(v, c.Value)
	case "!=":
		return !equal(v, c.Value)
	case "in":
		return member(v, c.Value)
	case "not in":
		return !member(v, c.Value)
	case "ilike":
		s, _ := v.(string)
		if id, name, ok := erp.Many2One(v); ok && id > 0 {
			s = name
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(c.Value)))
	}
	panic(fmt.Sprintf("erptest: unsupported operator %q", c.Op))
}

func equal(a, b interface{}) bool {
	if x, ok := erp.AsInt64(a); ok {
		if y, ok := erp.AsInt64(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func member(v, set interface{}) bool {
	switch s := set.(type) {
	case []string:
		for _, x := range s {
			if equal(v, x) {
				return true
			}
		}
	case []int64:
		for _, x := range s {
			if equal(v, x) {
				return true
			}
		}
	case []interface{}:
		for _, x := range s {
			if equal(v, x) {
				return true
			}
		}
	}
	return false
}

func copyValues(v erp.Values) erp.Values {
	out := make(erp.Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

package panel

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"transitcausal/domain/core"
)

// Panel is an immutable entity×time table. Rows are keyed by
// (entity, period); values are float64 with NaN marking a missing cell.
// All derived views (complete-case slices, resamples, column swaps)
// return fresh copies - the source panel is never mutated, so it is safe
// to share across parallel workers.
type Panel struct {
	entities []core.EntityID
	periods  []int
	order    []core.VariableKey
	columns  map[core.VariableKey][]float64
}

// Builder accumulates rows and enforces the (entity, period) uniqueness
// invariant before a Panel is materialized.
type Builder struct {
	order    []core.VariableKey
	colSet   map[core.VariableKey]bool
	seen     map[string]bool
	entities []core.EntityID
	periods  []int
	values   map[core.VariableKey][]float64
}

// NewBuilder creates a builder for a panel with the given column contract.
func NewBuilder(columns ...core.VariableKey) (*Builder, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: panel requires at least one column", core.ErrColumnContract)
	}
	b := &Builder{
		colSet: make(map[core.VariableKey]bool, len(columns)),
		seen:   make(map[string]bool),
		values: make(map[core.VariableKey][]float64, len(columns)),
	}
	for _, c := range columns {
		if b.colSet[c] {
			return nil, fmt.Errorf("%w: duplicate column %q", core.ErrColumnContract, c)
		}
		b.colSet[c] = true
		b.order = append(b.order, c)
		b.values[c] = []float64{}
	}
	return b, nil
}

// AddRow appends one observation. Columns absent from values are recorded
// as missing (NaN). Unknown columns and duplicate (entity, period) keys
// are rejected.
func (b *Builder) AddRow(entity core.EntityID, period int, values map[core.VariableKey]float64) error {
	key := fmt.Sprintf("%s@%d", entity, period)
	if b.seen[key] {
		return fmt.Errorf("%w: %s period %d", core.ErrDuplicateRow, entity, period)
	}
	for k := range values {
		if !b.colSet[k] {
			return fmt.Errorf("%w: %q", core.ErrUnknownColumn, k)
		}
	}
	b.seen[key] = true
	b.entities = append(b.entities, entity)
	b.periods = append(b.periods, period)
	for _, c := range b.order {
		v, ok := values[c]
		if !ok {
			v = math.NaN()
		}
		b.values[c] = append(b.values[c], v)
	}
	return nil
}

// Build materializes the immutable panel.
func (b *Builder) Build() (*Panel, error) {
	if len(b.entities) == 0 {
		return nil, fmt.Errorf("%w: panel has no rows", core.ErrInsufficientData)
	}
	cols := make(map[core.VariableKey][]float64, len(b.values))
	for k, v := range b.values {
		c := make([]float64, len(v))
		copy(c, v)
		cols[k] = c
	}
	order := make([]core.VariableKey, len(b.order))
	copy(order, b.order)
	entities := make([]core.EntityID, len(b.entities))
	copy(entities, b.entities)
	periods := make([]int, len(b.periods))
	copy(periods, b.periods)
	return &Panel{entities: entities, periods: periods, order: order, columns: cols}, nil
}

// NumRows returns the number of observations.
func (p *Panel) NumRows() int { return len(p.entities) }

// Columns returns the column contract in declaration order.
func (p *Panel) Columns() []core.VariableKey {
	out := make([]core.VariableKey, len(p.order))
	copy(out, p.order)
	return out
}

// HasColumn reports whether the panel carries the named column.
func (p *Panel) HasColumn(key core.VariableKey) bool {
	_, ok := p.columns[key]
	return ok
}

// Column returns a copy of the named column vector.
func (p *Panel) Column(key core.VariableKey) ([]float64, error) {
	col, ok := p.columns[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownColumn, key)
	}
	out := make([]float64, len(col))
	copy(out, col)
	return out, nil
}

// Value returns the cell at row i for the named column; ok is false when
// the cell is missing or the column unknown.
func (p *Panel) Value(i int, key core.VariableKey) (float64, bool) {
	col, colOK := p.columns[key]
	if !colOK || i < 0 || i >= len(col) {
		return 0, false
	}
	v := col[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Entity returns the entity ID of row i.
func (p *Panel) Entity(i int) core.EntityID { return p.entities[i] }

// Period returns the time period of row i.
func (p *Panel) Period(i int) int { return p.periods[i] }

// EntityIDs returns the distinct entities in order of first appearance.
func (p *Panel) EntityIDs() []core.EntityID {
	seen := make(map[core.EntityID]bool)
	var out []core.EntityID
	for _, e := range p.entities {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// CompleteCases returns a fresh panel holding only rows with no missing
// value in any of the listed columns. Missing-value rows are excluded,
// never imputed.
func (p *Panel) CompleteCases(keys ...core.VariableKey) (*Panel, error) {
	for _, k := range keys {
		if !p.HasColumn(k) {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownColumn, k)
		}
	}
	var idx []int
	for i := 0; i < p.NumRows(); i++ {
		ok := true
		for _, k := range keys {
			if math.IsNaN(p.columns[k][i]) {
				ok = false
				break
			}
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return p.selectRows(idx), nil
}

// SelectRows returns a fresh panel with only the given row indices.
func (p *Panel) SelectRows(idx []int) *Panel {
	return p.selectRows(idx)
}

func (p *Panel) selectRows(idx []int) *Panel {
	cols := make(map[core.VariableKey][]float64, len(p.columns))
	for _, c := range p.order {
		src := p.columns[c]
		dst := make([]float64, len(idx))
		for j, i := range idx {
			dst[j] = src[i]
		}
		cols[c] = dst
	}
	entities := make([]core.EntityID, len(idx))
	periods := make([]int, len(idx))
	for j, i := range idx {
		entities[j] = p.entities[i]
		periods[j] = p.periods[i]
	}
	order := make([]core.VariableKey, len(p.order))
	copy(order, p.order)
	return &Panel{entities: entities, periods: periods, order: order, columns: cols}
}

// WithColumn returns a fresh panel with the named column replaced (or
// appended). The replacement must have one value per row.
func (p *Panel) WithColumn(key core.VariableKey, values []float64) (*Panel, error) {
	if len(values) != p.NumRows() {
		return nil, fmt.Errorf("%w: column %q has %d values for %d rows",
			core.ErrColumnContract, key, len(values), p.NumRows())
	}
	cols := make(map[core.VariableKey][]float64, len(p.columns)+1)
	for k, v := range p.columns {
		c := make([]float64, len(v))
		copy(c, v)
		cols[k] = c
	}
	vc := make([]float64, len(values))
	copy(vc, values)
	cols[key] = vc

	order := make([]core.VariableKey, len(p.order))
	copy(order, p.order)
	if !p.HasColumn(key) {
		order = append(order, key)
	}
	entities := make([]core.EntityID, len(p.entities))
	copy(entities, p.entities)
	periods := make([]int, len(p.periods))
	copy(periods, p.periods)
	return &Panel{entities: entities, periods: periods, order: order, columns: cols}, nil
}

// ResampleEntities draws entities with replacement and returns the
// concatenation of their rows - the bootstrap replica. Replicas are
// ephemeral and deliberately allowed to repeat (entity, period) keys.
func (p *Panel) ResampleEntities(rng *rand.Rand) *Panel {
	ids := p.EntityIDs()
	rowsByEntity := make(map[core.EntityID][]int, len(ids))
	for i, e := range p.entities {
		rowsByEntity[e] = append(rowsByEntity[e], i)
	}
	var idx []int
	for range ids {
		pick := ids[rng.Intn(len(ids))]
		idx = append(idx, rowsByEntity[pick]...)
	}
	return p.selectRows(idx)
}

// Fingerprint derives a deterministic hash of the panel's column contract
// and row keys.
func (p *Panel) Fingerprint() core.PanelHash {
	cols := make([]string, len(p.order))
	for i, c := range p.order {
		cols[i] = c.String()
	}
	keys := make([]string, p.NumRows())
	for i := range p.entities {
		keys[i] = fmt.Sprintf("%s@%d", p.entities[i], p.periods[i])
	}
	sort.Strings(keys)
	return core.ComputePanelHash(cols, keys)
}

package panel

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"transitcausal/domain/core"
)

const (
	colX core.VariableKey = "x"
	colY core.VariableKey = "y"
)

func buildTestPanel(t *testing.T) *Panel {
	t.Helper()
	b, err := NewBuilder(colX, colY)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	rows := []struct {
		entity core.EntityID
		period int
		values map[core.VariableKey]float64
	}{
		{"a", 2020, map[core.VariableKey]float64{colX: 1, colY: 10}},
		{"a", 2021, map[core.VariableKey]float64{colX: 2, colY: 20}},
		{"b", 2020, map[core.VariableKey]float64{colX: 3}}, // y missing
		{"b", 2021, map[core.VariableKey]float64{colX: 4, colY: 40}},
	}
	for _, r := range rows {
		if err := b.AddRow(r.entity, r.period, r.values); err != nil {
			t.Fatalf("AddRow: %v", err)
		}
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func TestBuilderRejectsDuplicateRow(t *testing.T) {
	b, _ := NewBuilder(colX)
	if err := b.AddRow("a", 2020, map[core.VariableKey]float64{colX: 1}); err != nil {
		t.Fatalf("first AddRow: %v", err)
	}
	err := b.AddRow("a", 2020, map[core.VariableKey]float64{colX: 2})
	if !errors.Is(err, core.ErrDuplicateRow) {
		t.Fatalf("expected duplicate row error, got %v", err)
	}
}

func TestBuilderRejectsUnknownColumn(t *testing.T) {
	b, _ := NewBuilder(colX)
	err := b.AddRow("a", 2020, map[core.VariableKey]float64{"mystery": 1})
	if !errors.Is(err, core.ErrUnknownColumn) {
		t.Fatalf("expected unknown column error, got %v", err)
	}
}

func TestValueReportsMissingCells(t *testing.T) {
	p := buildTestPanel(t)
	if _, ok := p.Value(2, colY); ok {
		t.Error("missing cell should report ok=false")
	}
	v, ok := p.Value(2, colX)
	if !ok || v != 3 {
		t.Errorf("expected (3, true), got (%v, %v)", v, ok)
	}
}

func TestCompleteCasesExcludesMissingRows(t *testing.T) {
	p := buildTestPanel(t)
	cc, err := p.CompleteCases(colX, colY)
	if err != nil {
		t.Fatalf("CompleteCases: %v", err)
	}
	if cc.NumRows() != 3 {
		t.Fatalf("expected 3 complete rows, got %d", cc.NumRows())
	}
	// source panel untouched
	if p.NumRows() != 4 {
		t.Errorf("source panel mutated: %d rows", p.NumRows())
	}
}

func TestWithColumnDoesNotMutateSource(t *testing.T) {
	p := buildTestPanel(t)
	replaced, err := p.WithColumn(colX, []float64{9, 9, 9, 9})
	if err != nil {
		t.Fatalf("WithColumn: %v", err)
	}
	orig, _ := p.Column(colX)
	if orig[0] != 1 {
		t.Error("source column mutated by WithColumn")
	}
	next, _ := replaced.Column(colX)
	if next[0] != 9 {
		t.Error("replacement column not applied")
	}
}

func TestWithColumnAppendsNewColumn(t *testing.T) {
	p := buildTestPanel(t)
	added, err := p.WithColumn("noise", []float64{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("WithColumn: %v", err)
	}
	if !added.HasColumn("noise") {
		t.Error("new column not present")
	}
	if p.HasColumn("noise") {
		t.Error("source panel gained a column")
	}
	for _, c := range added.Columns() {
		col, err := added.Column(c)
		if err != nil {
			t.Fatalf("Column(%s): %v", c, err)
		}
		if len(col) != added.NumRows() {
			t.Errorf("column %s length mismatch", c)
		}
	}
}

func TestResampleEntitiesIsDeterministicPerSeed(t *testing.T) {
	p := buildTestPanel(t)
	a := p.ResampleEntities(rand.New(rand.NewSource(7)))
	b := p.ResampleEntities(rand.New(rand.NewSource(7)))
	if a.NumRows() != b.NumRows() {
		t.Fatalf("row counts differ: %d vs %d", a.NumRows(), b.NumRows())
	}
	for i := 0; i < a.NumRows(); i++ {
		if a.Entity(i) != b.Entity(i) || a.Period(i) != b.Period(i) {
			t.Fatalf("row %d differs between identical seeds", i)
		}
	}
}

func TestFingerprintIgnoresRowOrder(t *testing.T) {
	build := func(reversed bool) *Panel {
		b, _ := NewBuilder(colX)
		periods := []int{2020, 2021}
		if reversed {
			periods = []int{2021, 2020}
		}
		for _, pd := range periods {
			_ = b.AddRow("a", pd, map[core.VariableKey]float64{colX: 1})
		}
		p, _ := b.Build()
		return p
	}
	if build(false).Fingerprint() != build(true).Fingerprint() {
		t.Error("fingerprint should not depend on insertion order")
	}
}

func TestValueNaNLiteralTreatedAsMissing(t *testing.T) {
	b, _ := NewBuilder(colX)
	_ = b.AddRow("a", 2020, map[core.VariableKey]float64{colX: math.NaN()})
	p, _ := b.Build()
	if _, ok := p.Value(0, colX); ok {
		t.Error("NaN value should be reported as missing")
	}
}

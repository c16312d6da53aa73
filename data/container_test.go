package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

var testTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func link(saltID string) entities.CompositionLink {
	v := decimal.NewFromInt(500)
	return entities.CompositionLink{SaltID: saltID, SaltName: saltID, StrengthValue: &v, StrengthUnit: "mg"}
}

func seeded() *DrugContainer {
	dc := NewDrugContainer(clock.NewMockClock(testTime))
	dc.LoadData([]entities.Drug{
		{ID: "d1", StoreID: "s1", Status: entities.StatusActive, Links: []entities.CompositionLink{link("para")}},
		{ID: "d2", StoreID: "s1", Status: entities.StatusActive, Links: []entities.CompositionLink{link("para"), link("caf")}},
		{ID: "d3", StoreID: "s1", Status: entities.StatusSaltPending, Links: []entities.CompositionLink{link("para")}},
		{ID: "d4", StoreID: "s2", Status: entities.StatusActive, Links: []entities.CompositionLink{link("para")}},
		{ID: "d5", StoreID: "s1", Status: entities.StatusActive, Links: []entities.CompositionLink{link("ibu")}},
	}, []entities.Salt{
		{ID: "para", Name: "Paracetamol", Aliases: []string{"Acetaminophen"}},
		{ID: "caf", Name: "Caffeine"},
		{ID: "ibu", Name: "Ibuprofen"},
	})
	return dc
}

func TestNewDrugContainer(t *testing.T) {
	dc := NewDrugContainer(nil)

	if dc.IsUpdating() {
		t.Error("NewDrugContainer should not be updating")
	}
	if !dc.GetLastUpdated().IsZero() {
		t.Error("NewDrugContainer should have zero lastUpdated time")
	}
	if dc.Len() != 0 {
		t.Error("NewDrugContainer should be empty")
	}
}

func TestGetDrug(t *testing.T) {
	dc := seeded()
	ctx := context.Background()

	d, err := dc.GetDrug(ctx, "d2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Links) != 2 {
		t.Errorf("expected 2 links, got %d", len(d.Links))
	}

	// Mutating the returned copy must not leak into the store
	d.Links[0].SaltID = "changed"
	again, _ := dc.GetDrug(ctx, "d2")
	if again.Links[0].SaltID != "para" {
		t.Error("GetDrug must return a copy")
	}

	_, err = dc.GetDrug(ctx, "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFindCandidates(t *testing.T) {
	dc := seeded()
	ctx := context.Background()

	got, err := dc.FindCandidates(ctx, interfaces.CandidateQuery{
		StoreID:       "s1",
		ExcludeDrugID: "d1",
		Status:        entities.StatusActive,
		SaltIDs:       []string{"para"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// d3 is not active, d4 is another store, d5 shares no salt
	if len(got) != 1 || got[0].ID != "d2" {
		t.Errorf("expected only d2, got %+v", got)
	}

	if err := dc.SoftDelete(ctx, "d2", testTime); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, _ = dc.FindCandidates(ctx, interfaces.CandidateQuery{
		StoreID: "s1", ExcludeDrugID: "d1", Status: entities.StatusActive, SaltIDs: []string{"para"},
	})
	if len(got) != 0 {
		t.Errorf("soft-deleted drugs must not be candidates, got %+v", got)
	}
}

func TestCountActive(t *testing.T) {
	dc := seeded()
	ctx := context.Background()

	n, _ := dc.CountActive(ctx, "s1")
	if n != 3 {
		t.Errorf("expected 3 active drugs in s1, got %d", n)
	}

	_ = dc.SoftDelete(ctx, "d5", testTime)
	n, _ = dc.CountActive(ctx, "s1")
	if n != 2 {
		t.Errorf("expected 2 after soft delete, got %d", n)
	}
}

func TestResolveSalt(t *testing.T) {
	dc := seeded()
	ctx := context.Background()

	s, err := dc.ResolveSalt(ctx, "  PARACETAMOL ")
	if err != nil || s.ID != "para" {
		t.Errorf("expected existing salt para, got %+v, %v", s, err)
	}

	s, _ = dc.ResolveSalt(ctx, "acetaminophen")
	if s.ID != "para" {
		t.Errorf("expected alias to resolve to para, got %+v", s)
	}

	created, err := dc.ResolveSalt(ctx, "Domperidone")
	if err != nil || created.ID == "" {
		t.Fatalf("expected new salt, got %+v, %v", created, err)
	}
	again, _ := dc.ResolveSalt(ctx, "domperidone")
	if again.ID != created.ID {
		t.Errorf("expected the same salt on second lookup, got %s vs %s", again.ID, created.ID)
	}

	if _, err := dc.ResolveSalt(ctx, "  "); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestCreateAndReplaceComposition(t *testing.T) {
	dc := NewDrugContainer(clock.NewMockClock(testTime))
	ctx := context.Background()

	d, err := dc.CreateDrug(ctx, entities.Drug{Name: "Crocin", StoreID: "s1", Status: entities.StatusSaltPending})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.ID == "" || !d.UpdatedAt.Equal(testTime) {
		t.Errorf("unexpected created drug: %+v", d)
	}

	if _, err := dc.CreateDrug(ctx, d); err == nil {
		t.Error("expected duplicate id to fail")
	}

	updated, err := dc.ReplaceComposition(ctx, d.ID, []entities.CompositionLink{link("para")}, entities.StatusActive)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.Status != entities.StatusActive || len(updated.Links) != 1 {
		t.Errorf("unexpected updated drug: %+v", updated)
	}

	if _, err := dc.ReplaceComposition(ctx, "missing", nil, entities.StatusSaltPending); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := dc.SetStatus(ctx, d.ID, entities.StatusInactive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := dc.GetDrug(ctx, d.ID)
	if got.Status != entities.StatusInactive {
		t.Errorf("expected INACTIVE, got %s", got.Status)
	}
}

func TestAddBatch(t *testing.T) {
	dc := seeded()

	err := dc.AddBatch(context.Background(), "d1", entities.Batch{Quantity: 10, MRP: decimal.NewFromInt(20), ExpiryDate: testTime.AddDate(1, 0, 0)})
	if err != nil {
		t.Fatalf("add batch: %v", err)
	}
	d, _ := dc.GetDrug(context.Background(), "d1")
	if len(d.Batches) != 1 || d.Batches[0].ID == "" {
		t.Errorf("expected one batch with id, got %+v", d.Batches)
	}

	if err := dc.AddBatch(context.Background(), "missing", entities.Batch{}); err == nil {
		t.Error("expected error for missing drug")
	}
}

func TestBeginEndUpdate(t *testing.T) {
	dc := NewDrugContainer(nil)

	if !dc.BeginUpdate() {
		t.Fatal("first BeginUpdate should succeed")
	}
	if dc.BeginUpdate() {
		t.Error("second BeginUpdate should fail while updating")
	}
	dc.EndUpdate()
	if dc.IsUpdating() {
		t.Error("EndUpdate should clear the flag")
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	dc := seeded()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = dc.FindCandidates(ctx, interfaces.CandidateQuery{StoreID: "s1", SaltIDs: []string{"para"}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = dc.ReplaceComposition(ctx, "d1", []entities.CompositionLink{link("para")}, entities.StatusActive)
			}
		}()
	}
	wg.Wait()

	if dc.Len() != 5 {
		t.Errorf("expected 5 drugs, got %d", dc.Len())
	}
}

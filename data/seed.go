package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

// ErrLoadInProgress is returned when a catalogue load starts while another runs.
var ErrLoadInProgress = errors.New("a catalogue load is already in progress")

// Seed is the JSON catalogue accepted by LoadSeedFile. Drug links may name a
// salt by id or by name/alias; inventory rows attach batches to seeded drugs.
type Seed struct {
	Salts     []entities.Salt `json:"salts"`
	Drugs     []entities.Drug `json:"drugs"`
	Inventory []SeedBatch     `json:"inventory"`
}

// SeedBatch is one inventory batch of a seeded drug.
type SeedBatch struct {
	DrugID string `json:"drugId"`
	entities.Batch
}

// SeedSummary counts what a seed load installed.
type SeedSummary struct {
	Salts   int
	Drugs   int
	Batches int
}

// LoadSeedFile replaces the catalogue with the contents of a JSON seed file.
// The file is validated as a whole before anything is replaced.
func (dc *DrugContainer) LoadSeedFile(ctx context.Context, path string) (SeedSummary, error) {
	if !dc.BeginUpdate() {
		return SeedSummary{}, ErrLoadInProgress
	}
	defer dc.EndUpdate()

	f, err := os.Open(path)
	if err != nil {
		return SeedSummary{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var seed Seed
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return SeedSummary{}, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}

	drugs, err := seed.resolve()
	if err != nil {
		return SeedSummary{}, fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	dc.LoadData(drugs, seed.Salts)
	for _, b := range seed.Inventory {
		if err := dc.AddBatch(ctx, b.DrugID, b.Batch); err != nil {
			return SeedSummary{}, fmt.Errorf("failed to add batch for drug %s: %w", b.DrugID, err)
		}
	}

	summary := SeedSummary{Salts: len(seed.Salts), Drugs: len(drugs), Batches: len(seed.Inventory)}
	logging.Info("Catalogue seeded", "path", path, "salts", summary.Salts, "drugs", summary.Drugs, "batches", summary.Batches)
	return summary, nil
}

// resolve checks ids and salt references and fills in link order, role and a
// status derived from the composition when none is given.
func (s Seed) resolve() ([]entities.Drug, error) {
	saltIDs := make(map[string]string, len(s.Salts))
	byName := make(map[string]string, len(s.Salts))
	for _, salt := range s.Salts {
		if salt.ID == "" || salt.Name == "" {
			return nil, fmt.Errorf("salt %q needs an id and a name", salt.Name)
		}
		if _, dup := saltIDs[salt.ID]; dup {
			return nil, fmt.Errorf("duplicate salt id %s", salt.ID)
		}
		saltIDs[salt.ID] = salt.Name
		byName[entities.NormalizeSaltName(salt.Name)] = salt.ID
		for _, alias := range salt.Aliases {
			if key := entities.NormalizeSaltName(alias); key != "" {
				if _, taken := byName[key]; !taken {
					byName[key] = salt.ID
				}
			}
		}
	}

	drugs := make([]entities.Drug, 0, len(s.Drugs))
	seen := make(map[string]bool, len(s.Drugs))
	for _, d := range s.Drugs {
		if d.ID == "" || d.StoreID == "" {
			return nil, fmt.Errorf("drug %q needs an id and a storeId", d.Name)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate drug id %s", d.ID)
		}
		seen[d.ID] = true

		d = d.Clone()
		for i := range d.Links {
			l := &d.Links[i]
			if l.SaltID == "" {
				l.SaltID = byName[entities.NormalizeSaltName(l.SaltName)]
			}
			name, ok := saltIDs[l.SaltID]
			if !ok {
				return nil, fmt.Errorf("drug %s links unknown salt %q", d.ID, l.SaltName)
			}
			l.SaltName = name
			l.StrengthUnit = entities.NormalizeUnit(l.StrengthUnit)
			if l.Order == 0 {
				l.Order = i
			}
			if l.Role == "" {
				l.Role = entities.RoleSecondary
				if i == 0 {
					l.Role = entities.RolePrimary
				}
			}
		}
		if d.Status == "" {
			d.Status = entities.StatusSaltPending
			if len(d.Links) > 0 {
				d.Status = entities.StatusActive
			}
		}
		drugs = append(drugs, d)
	}

	for _, b := range s.Inventory {
		if !seen[b.DrugID] {
			return nil, fmt.Errorf("inventory batch %s references unknown drug %s", b.ID, b.DrugID)
		}
		if b.Quantity < 0 {
			return nil, fmt.Errorf("inventory batch %s of drug %s has negative quantity", b.ID, b.DrugID)
		}
	}
	return drugs, nil
}

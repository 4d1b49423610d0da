// Package reference reads the AKVEG reference tables used to validate and
// resolve processed data: the taxonomic checklist and controlled
// vocabularies. Sources are read-only except for the local snapshot cache.
package reference

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/vegplot-etl/internal/domain"
)

// Ground element types.
const (
	ElementAbiotic = "abiotic"
	ElementBiotic  = "biotic"
	ElementBoth    = "both"
)

// GroundElement is one entry of the ground element vocabulary.
type GroundElement struct {
	Name string
	Code string
	Type string
}

// DictionaryEntry is one allowed value of a constrained field.
type DictionaryEntry struct {
	Field     string
	Attribute string
}

// Source provides reference tables.
type Source interface {
	Taxa(ctx context.Context) ([]domain.Taxon, error)
	GroundElements(ctx context.Context) ([]GroundElement, error)
	Personnel(ctx context.Context) ([]string, error)
	StructuralClasses(ctx context.Context) ([]string, error)
	Dictionary(ctx context.Context) ([]DictionaryEntry, error)
}

// Snapshot holds every reference table fetched at once.
type Snapshot struct {
	Taxa              []domain.Taxon
	GroundElements    []GroundElement
	Personnel         []string
	StructuralClasses []string
	Dictionary        []DictionaryEntry
}

// Fetch reads all reference tables from src concurrently.
func Fetch(ctx context.Context, src Source) (*Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		taxa, err := src.Taxa(ctx)
		if err != nil {
			return fmt.Errorf("taxa: %w", err)
		}
		snap.Taxa = taxa
		return nil
	})
	g.Go(func() error {
		elements, err := src.GroundElements(ctx)
		if err != nil {
			return fmt.Errorf("ground elements: %w", err)
		}
		snap.GroundElements = elements
		return nil
	})
	g.Go(func() error {
		people, err := src.Personnel(ctx)
		if err != nil {
			return fmt.Errorf("personnel: %w", err)
		}
		snap.Personnel = people
		return nil
	})
	g.Go(func() error {
		classes, err := src.StructuralClasses(ctx)
		if err != nil {
			return fmt.Errorf("structural classes: %w", err)
		}
		snap.StructuralClasses = classes
		return nil
	})
	g.Go(func() error {
		dict, err := src.Dictionary(ctx)
		if err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		snap.Dictionary = dict
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Checklist indexes the snapshot's taxa.
func (s *Snapshot) Checklist() *domain.Checklist {
	if s == nil {
		return nil
	}
	return domain.NewChecklist(s.Taxa)
}

// ElementNames returns the sorted names of ground elements whose type is
// one of types.
func (s *Snapshot) ElementNames(types ...string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, e := range s.GroundElements {
		if slices.Contains(types, e.Type) {
			out = append(out, e.Name)
		}
	}
	slices.Sort(out)
	return out
}

// AbioticElements returns the elements allowed in abiotic top cover.
func (s *Snapshot) AbioticElements() []string {
	return s.ElementNames(ElementAbiotic, ElementBoth)
}

// Attributes returns the allowed values of a dictionary field.
func (s *Snapshot) Attributes(field string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, d := range s.Dictionary {
		if d.Field == field {
			out = append(out, d.Attribute)
		}
	}
	return out
}

// Counts reports row counts per reference table.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		"taxon_all":        len(s.Taxa),
		"ground_element":   len(s.GroundElements),
		"personnel":        len(s.Personnel),
		"structural_class": len(s.StructuralClasses),
		"dictionary":       len(s.Dictionary),
	}
}

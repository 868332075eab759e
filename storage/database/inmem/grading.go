package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/grading"
)

var seqCount int // creation order across tables

type gradingRepository struct {
	db *gradingTables

	compSeq map[string]int // component ID -> creation order
	itemSeq map[string]int // item ID -> creation order
}

var _ grading.Repository = (*gradingRepository)(nil)

func NewGradingRepository(db *DB) *gradingRepository {
	return &gradingRepository{
		db:      db.grading,
		compSeq: make(map[string]int),
		itemSeq: make(map[string]int),
	}
}

// materialize assembles the schema with components and items in creation order.
func (repo *gradingRepository) materialize(sch grading.Schema) grading.Schema {
	comps := make([]grading.Component, 0)
	for _, c := range repo.db.components {
		if c.SchemaID != sch.ID {
			continue
		}
		comp := *c
		comp.Items = make([]grading.Item, 0)
		for _, it := range repo.db.items {
			if it.ComponentID == comp.ID {
				comp.Items = append(comp.Items, *it)
			}
		}
		sort.Slice(comp.Items, func(i, j int) bool {
			return repo.itemSeq[comp.Items[i].ID] < repo.itemSeq[comp.Items[j].ID]
		})
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool {
		return repo.compSeq[comps[i].ID] < repo.compSeq[comps[j].ID]
	})
	sch.Components = comps
	return sch
}

func (repo *gradingRepository) GetSchema(ctx context.Context, subjectID string) (grading.Schema, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sch, ok := repo.db.schemas[subjectID]
	if !ok {
		return grading.Schema{}, grading.ErrNoSchema
	}
	return repo.materialize(*sch), nil
}

func (repo *gradingRepository) SchemaForItem(ctx context.Context, itemID string) (grading.Schema, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	it, ok := repo.db.items[itemID]
	if !ok {
		return grading.Schema{}, grading.ErrItemNotFound
	}
	comp, ok := repo.db.components[it.ComponentID]
	if !ok {
		return grading.Schema{}, grading.ErrItemNotFound
	}
	for _, sch := range repo.db.schemas {
		if sch.ID == comp.SchemaID {
			return repo.materialize(*sch), nil
		}
	}
	return grading.Schema{}, grading.ErrItemNotFound
}

func (repo *gradingRepository) ReplaceComponents(ctx context.Context, subjectID, teacherID string, defs []grading.ComponentDef) (grading.Schema, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	sch, ok := repo.db.schemas[subjectID]
	if !ok {
		sch = &grading.Schema{
			ID:        uuid.New().String(),
			SubjectID: subjectID,
			TeacherID: teacherID,
			CreatedAt: now,
		}
		repo.db.schemas[subjectID] = sch
	}

	retained := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		retained[def.Name] = struct{}{}
	}

	// removed components cascade to their items and scores
	byName := make(map[string]*grading.Component)
	for id, comp := range repo.db.components {
		if comp.SchemaID != sch.ID {
			continue
		}
		if _, keep := retained[comp.Name]; keep {
			byName[comp.Name] = comp
			continue
		}
		repo.deleteComponent(id)
	}

	for _, def := range defs {
		if comp, ok := byName[def.Name]; ok {
			comp.Weight = def.Weight // items and scores survive
			continue
		}
		seqCount++
		comp := &grading.Component{
			ID:        uuid.New().String(),
			SchemaID:  sch.ID,
			Name:      def.Name,
			Weight:    def.Weight,
			CreatedAt: now,
		}
		repo.db.components[comp.ID] = comp
		repo.compSeq[comp.ID] = seqCount
	}

	return repo.materialize(*sch), nil
}

func (repo *gradingRepository) DeleteSchema(ctx context.Context, subjectID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	sch, ok := repo.db.schemas[subjectID]
	if !ok {
		return grading.ErrNoSchema
	}
	for id, comp := range repo.db.components {
		if comp.SchemaID == sch.ID {
			repo.deleteComponent(id)
		}
	}
	delete(repo.db.schemas, subjectID)
	return nil
}

func (repo *gradingRepository) CreateItem(ctx context.Context, it grading.Item) (grading.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.components[it.ComponentID]; !ok {
		return grading.Item{}, grading.ErrComponentNotFound
	}
	seqCount++
	it.ID = uuid.New().String()
	it.CreatedAt = time.Now().UTC()
	repo.db.items[it.ID] = &it
	repo.itemSeq[it.ID] = seqCount
	return it, nil
}

func (repo *gradingRepository) DeleteItem(ctx context.Context, itemID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.items[itemID]; !ok {
		return grading.ErrItemNotFound
	}
	repo.deleteItem(itemID)
	return nil
}

func (repo *gradingRepository) UpsertScore(ctx context.Context, sc grading.Score) (grading.Score, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// the item may have been removed by a concurrent schema replace
	if _, ok := repo.db.items[sc.ItemID]; !ok {
		return grading.Score{}, grading.ErrConflict
	}

	key := scoreKey{itemID: sc.ItemID, studentID: sc.StudentID}
	sc.UpdatedAt = time.Now().UTC()
	if orig, ok := repo.db.scores[key]; ok {
		sc.ID = orig.ID
	} else {
		sc.ID = uuid.New().String()
	}
	repo.db.scores[key] = &sc
	return sc, nil
}

func (repo *gradingRepository) DeleteScore(ctx context.Context, itemID, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := scoreKey{itemID: itemID, studentID: studentID}
	if _, ok := repo.db.scores[key]; !ok {
		return grading.ErrScoreNotFound
	}
	delete(repo.db.scores, key)
	return nil
}

func (repo *gradingRepository) StudentScores(ctx context.Context, subjectID, studentID string) (map[string]float64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	scores := make(map[string]float64)
	for itemID := range repo.subjectItems(subjectID) {
		if sc, ok := repo.db.scores[scoreKey{itemID: itemID, studentID: studentID}]; ok {
			scores[itemID] = sc.Value
		}
	}
	return scores, nil
}

func (repo *gradingRepository) SubjectScores(ctx context.Context, subjectID string) (map[string]map[string]float64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := repo.subjectItems(subjectID)
	scores := make(map[string]map[string]float64)
	for key, sc := range repo.db.scores {
		if _, ok := items[key.itemID]; !ok {
			continue
		}
		byItem, ok := scores[key.studentID]
		if !ok {
			byItem = make(map[string]float64)
			scores[key.studentID] = byItem
		}
		byItem[key.itemID] = sc.Value
	}
	return scores, nil
}

// subjectItems returns the IDs of all items under the subject's schema.
// Callers must hold the lock.
func (repo *gradingRepository) subjectItems(subjectID string) map[string]struct{} {
	items := make(map[string]struct{})
	sch, ok := repo.db.schemas[subjectID]
	if !ok {
		return items
	}
	for compID, comp := range repo.db.components {
		if comp.SchemaID != sch.ID {
			continue
		}
		for itemID, it := range repo.db.items {
			if it.ComponentID == compID {
				items[itemID] = struct{}{}
			}
		}
	}
	return items
}

// deleteComponent cascades to items and scores. Callers must hold the lock.
func (repo *gradingRepository) deleteComponent(compID string) {
	for itemID, it := range repo.db.items {
		if it.ComponentID == compID {
			repo.deleteItem(itemID)
		}
	}
	delete(repo.db.components, compID)
	delete(repo.compSeq, compID)
}

// deleteItem cascades to scores. Callers must hold the lock.
func (repo *gradingRepository) deleteItem(itemID string) {
	for key := range repo.db.scores {
		if key.itemID == itemID {
			delete(repo.db.scores, key)
		}
	}
	delete(repo.db.items, itemID)
	delete(repo.itemSeq, itemID)
}

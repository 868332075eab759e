package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/grading"
)

const pqForeignKeyViolation = "23503"

type gradingRepository struct {
	db *sqlx.DB
}

var _ grading.Repository = (*gradingRepository)(nil)

func NewGradingRepository(db *sqlx.DB) *gradingRepository {
	return &gradingRepository{db: db}
}

type (
	schemaRow struct {
		ID        string    `db:"id"`
		SubjectID string    `db:"subject_id"`
		TeacherID string    `db:"teacher_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	componentRow struct {
		ID        string    `db:"id"`
		SystemID  string    `db:"system_id"`
		Name      string    `db:"name"`
		Weight    int       `db:"weight"`
		CreatedAt time.Time `db:"created_at"`
	}

	itemRow struct {
		ID          string    `db:"id"`
		ComponentID string    `db:"component_id"`
		Title       string    `db:"title"`
		MaxScore    float64   `db:"max_score"`
		CreatedAt   time.Time `db:"created_at"`
	}
)

func (repo *gradingRepository) GetSchema(ctx context.Context, subjectID string) (grading.Schema, error) {
	var row schemaRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT id, subject_id, teacher_id, created_at FROM grading_systems WHERE subject_id = $1`, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.Schema{}, grading.ErrNoSchema
		}
		return grading.Schema{}, errors.Wrap(err, "querying grading system")
	}
	return repo.loadSchema(ctx, row)
}

func (repo *gradingRepository) SchemaForItem(ctx context.Context, itemID string) (grading.Schema, error) {
	var row schemaRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT s.id, s.subject_id, s.teacher_id, s.created_at
		   FROM grading_systems s
		   JOIN grading_components c ON c.system_id = s.id
		   JOIN gradable_items i ON i.component_id = c.id
		  WHERE i.id = $1`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.Schema{}, grading.ErrItemNotFound
		}
		return grading.Schema{}, errors.Wrap(err, "resolving item's grading system")
	}
	return repo.loadSchema(ctx, row)
}

// loadSchema attaches components and items, both in creation order.
func (repo *gradingRepository) loadSchema(ctx context.Context, row schemaRow) (grading.Schema, error) {
	creationOrder := core.DBOrdering{Field: "created_at", Ascending: true}

	var compRows []componentRow
	err := repo.db.SelectContext(ctx, &compRows,
		`SELECT id, system_id, name, weight, created_at FROM grading_components
		  WHERE system_id = $1 ORDER BY `+creationOrder.String()+`, id`, row.ID)
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "querying grading components")
	}

	var itemRows []itemRow
	err = repo.db.SelectContext(ctx, &itemRows,
		`SELECT i.id, i.component_id, i.title, i.max_score, i.created_at
		   FROM gradable_items i
		   JOIN grading_components c ON c.id = i.component_id
		  WHERE c.system_id = $1 ORDER BY i.created_at, i.id`, row.ID)
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "querying gradable items")
	}

	itemsByComp := make(map[string][]grading.Item, len(compRows))
	for _, it := range itemRows {
		itemsByComp[it.ComponentID] = append(itemsByComp[it.ComponentID], grading.Item(it))
	}

	sch := grading.Schema{
		ID:         row.ID,
		SubjectID:  row.SubjectID,
		TeacherID:  row.TeacherID,
		Components: make([]grading.Component, 0, len(compRows)),
		CreatedAt:  row.CreatedAt,
	}
	for _, c := range compRows {
		sch.Components = append(sch.Components, grading.Component{
			ID:        c.ID,
			SchemaID:  c.SystemID,
			Name:      c.Name,
			Weight:    c.Weight,
			Items:     itemsByComp[c.ID],
			CreatedAt: c.CreatedAt,
		})
	}
	return sch, nil
}

func (repo *gradingRepository) ReplaceComponents(ctx context.Context, subjectID, teacherID string, defs []grading.ComponentDef) (grading.Schema, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// get-or-create the system row; the conflict update is a no-op but takes
	// the row lock, serializing concurrent replaces for the subject.
	var systemID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO grading_systems (id, subject_id, teacher_id, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id) DO UPDATE SET subject_id = grading_systems.subject_id
		 RETURNING id`,
		uuid.New().String(), subjectID, teacherID, now,
	).Scan(&systemID)
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "upserting grading system")
	}

	// removed components cascade to their items and scores, explicitly and in
	// this order so no orphan rows survive a partial failure
	retained := make([]string, 0, len(defs))
	for _, def := range defs {
		retained = append(retained, def.Name)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM student_scores WHERE item_id IN (
		   SELECT i.id FROM gradable_items i
		     JOIN grading_components c ON c.id = i.component_id
		    WHERE c.system_id = $1 AND c.name <> ALL($2))`,
		systemID, pq.Array(retained))
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "deleting scores of removed components")
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM gradable_items WHERE component_id IN (
		   SELECT id FROM grading_components WHERE system_id = $1 AND name <> ALL($2))`,
		systemID, pq.Array(retained))
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "deleting items of removed components")
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM grading_components WHERE system_id = $1 AND name <> ALL($2)`,
		systemID, pq.Array(retained))
	if err != nil {
		return grading.Schema{}, errors.Wrap(err, "deleting removed components")
	}

	// retained names keep their rows (and items and scores); only the weight
	// moves. New names insert fresh empty components.
	for _, def := range defs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO grading_components (id, system_id, name, weight, created_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (system_id, name) DO UPDATE SET weight = EXCLUDED.weight`,
			uuid.New().String(), systemID, def.Name, def.Weight, now)
		if err != nil {
			return grading.Schema{}, errors.Wrapf(err, "upserting component %q", def.Name)
		}
	}

	if err = tx.Commit(); err != nil {
		return grading.Schema{}, errors.Wrap(err, "committing transaction")
	}
	return repo.GetSchema(ctx, subjectID)
}

func (repo *gradingRepository) DeleteSchema(ctx context.Context, subjectID string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	var systemID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM grading_systems WHERE subject_id = $1 FOR UPDATE`, subjectID,
	).Scan(&systemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.ErrNoSchema
		}
		return errors.Wrap(err, "locking grading system")
	}

	if err = deleteSystemRows(ctx, tx, systemID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// deleteSystemRows cascades a system delete, scores first so no orphan rows
// survive a partial failure.
func deleteSystemRows(ctx context.Context, ex core.DBExecutor, systemID string) error {
	for _, query := range []string{
		`DELETE FROM student_scores WHERE item_id IN (
		   SELECT i.id FROM gradable_items i
		     JOIN grading_components c ON c.id = i.component_id
		    WHERE c.system_id = $1)`,
		`DELETE FROM gradable_items WHERE component_id IN (
		   SELECT id FROM grading_components WHERE system_id = $1)`,
		`DELETE FROM grading_components WHERE system_id = $1`,
		`DELETE FROM grading_systems WHERE id = $1`,
	} {
		if _, err := ex.ExecContext(ctx, query, systemID); err != nil {
			return errors.Wrap(err, "cascading grading system delete")
		}
	}
	return nil
}

func (repo *gradingRepository) CreateItem(ctx context.Context, it grading.Item) (grading.Item, error) {
	it.ID = uuid.New().String()
	it.CreatedAt = time.Now().UTC()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO gradable_items (id, component_id, title, max_score, created_at) VALUES ($1, $2, $3, $4, $5)`,
		it.ID, it.ComponentID, it.Title, it.MaxScore, it.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return grading.Item{}, grading.ErrComponentNotFound
		}
		return grading.Item{}, errors.Wrap(err, "inserting gradable item")
	}
	return it, nil
}

func (repo *gradingRepository) DeleteItem(ctx context.Context, itemID string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM student_scores WHERE item_id = $1`, itemID); err != nil {
		return errors.Wrap(err, "deleting item scores")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM gradable_items WHERE id = $1`, itemID)
	if err != nil {
		return errors.Wrap(err, "deleting gradable item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return grading.ErrItemNotFound
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *gradingRepository) UpsertScore(ctx context.Context, sc grading.Score) (grading.Score, error) {
	sc.UpdatedAt = time.Now().UTC()
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO student_scores (id, item_id, student_id, value, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (item_id, student_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		uuid.New().String(), sc.ItemID, sc.StudentID, sc.Value, sc.UpdatedAt,
	).Scan(&sc.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			// the item lost a race with a schema redefinition
			return grading.Score{}, grading.ErrConflict
		}
		return grading.Score{}, errors.Wrap(err, "upserting student score")
	}
	return sc, nil
}

func (repo *gradingRepository) DeleteScore(ctx context.Context, itemID, studentID string) error {
	res, err := repo.db.ExecContext(ctx,
		`DELETE FROM student_scores WHERE item_id = $1 AND student_id = $2`, itemID, studentID)
	if err != nil {
		return errors.Wrap(err, "deleting student score")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return grading.ErrScoreNotFound
	}
	return nil
}

func (repo *gradingRepository) StudentScores(ctx context.Context, subjectID, studentID string) (map[string]float64, error) {
	return repo.queryScores(ctx,
		`SELECT sc.item_id, sc.student_id, sc.value
		   FROM student_scores sc
		   JOIN gradable_items i ON i.id = sc.item_id
		   JOIN grading_components c ON c.id = i.component_id
		   JOIN grading_systems s ON s.id = c.system_id
		  WHERE s.subject_id = $1 AND sc.student_id = $2`, subjectID, studentID)
}

func (repo *gradingRepository) SubjectScores(ctx context.Context, subjectID string) (map[string]map[string]float64, error) {
	flat, err := repo.queryScoreRows(ctx,
		`SELECT sc.item_id, sc.student_id, sc.value
		   FROM student_scores sc
		   JOIN gradable_items i ON i.id = sc.item_id
		   JOIN grading_components c ON c.id = i.component_id
		   JOIN grading_systems s ON s.id = c.system_id
		  WHERE s.subject_id = $1`, subjectID)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]map[string]float64)
	for _, row := range flat {
		byItem, ok := scores[row.StudentID]
		if !ok {
			byItem = make(map[string]float64)
			scores[row.StudentID] = byItem
		}
		byItem[row.ItemID] = row.Value
	}
	return scores, nil
}

type scoreRow struct {
	ItemID    string  `db:"item_id"`
	StudentID string  `db:"student_id"`
	Value     float64 `db:"value"`
}

func (repo *gradingRepository) queryScores(ctx context.Context, query string, args ...interface{}) (map[string]float64, error) {
	flat, err := repo.queryScoreRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(flat))
	for _, row := range flat {
		scores[row.ItemID] = row.Value
	}
	return scores, nil
}

func (repo *gradingRepository) queryScoreRows(ctx context.Context, query string, args ...interface{}) ([]scoreRow, error) {
	var rows []scoreRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying student scores")
	}
	return rows, nil
}

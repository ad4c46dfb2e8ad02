package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskmaster/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,raw_input,processed_text,status,priority_score,category,notes,is_life_critical,is_quick_win,is_interesting,pinned,recurring,recurring_pattern,created_at,touched_at,due_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var processed, category, notes, pattern, dueBy sql.NullString
	err := row.Scan(&t.ID, &t.RawInput, &processed, &t.Status, &t.PriorityScore, &category, &notes,
		&t.IsLifeCritical, &t.IsQuickWin, &t.IsInteresting, &t.Pinned, &t.Recurring, &pattern,
		&t.CreatedAt, &t.TouchedAt, &dueBy)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if processed.Valid {
		t.ProcessedText = &processed.String
	}
	if category.Valid {
		t.Category = &category.String
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	if pattern.Valid {
		t.RecurringPattern = &pattern.String
	}
	if dueBy.Valid {
		t.DueBy = &dueBy.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.RawInput, nullableStringPtr(t.ProcessedText), t.Status, t.PriorityScore,
		nullableStringPtr(t.Category), nullableStringPtr(t.Notes),
		t.IsLifeCritical, t.IsQuickWin, t.IsInteresting, t.Pinned, t.Recurring,
		nullableStringPtr(t.RecurringPattern), t.CreatedAt, t.TouchedAt, nullableStringPtr(t.DueBy))
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// UpdateTask writes every mutable column of t. RawInput and CreatedAt are
// immutable once set and never touched here.
func (r Repo) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET processed_text=?, status=?, priority_score=?, category=?, notes=?, is_life_critical=?, is_quick_win=?, is_interesting=?, pinned=?, recurring=?, recurring_pattern=?, touched_at=?, due_by=? WHERE id=?`,
		nullableStringPtr(t.ProcessedText), t.Status, t.PriorityScore,
		nullableStringPtr(t.Category), nullableStringPtr(t.Notes),
		t.IsLifeCritical, t.IsQuickWin, t.IsInteresting, t.Pinned, t.Recurring,
		nullableStringPtr(t.RecurringPattern), t.TouchedAt, nullableStringPtr(t.DueBy), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	Status string
	Limit  int
}

// ListTasks returns tasks ordered by priority (desc) then recency (desc).
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY priority_score DESC, touched_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ClaimCaptured atomically flips all captured tasks to processing and returns
// them in creation order. At most one enrichment pass owns a claimed task;
// a concurrent claim sees an empty set.
func (r Repo) ClaimCaptured(ctx context.Context, now string) ([]domain.Task, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status=? ORDER BY created_at ASC, id ASC`, domain.StatusCaptured)
	if err != nil {
		return nil, err
	}
	var claimed []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(claimed) == 0 {
		return nil, tx.Commit()
	}
	for i := range claimed {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, touched_at=? WHERE id=? AND status=?`,
			domain.StatusProcessing, now, claimed[i].ID, domain.StatusCaptured)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("task %s claimed concurrently", claimed[i].ID)
		}
		claimed[i].Status = domain.StatusProcessing
		claimed[i].TouchedAt = now
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseStaleClaims returns processing tasks claimed before cutoff to
// captured so a failed pass cannot strand them.
func (r Repo) ReleaseStaleClaims(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=? WHERE status=? AND touched_at < ?`,
		domain.StatusCaptured, domain.StatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReleaseClaims returns the given processing tasks to captured, used when a
// cycle fails after claiming.
func (r Repo) ReleaseClaims(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=? AND status=?`,
			domain.StatusCaptured, id, domain.StatusProcessing); err != nil {
			return err
		}
	}
	return nil
}

// Stats computes the overview counters in one scan.
func (r Repo) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ByStatus: map[string]int{}}
	rows, err := r.DB.QueryContext(ctx, `SELECT status, priority_score, is_life_critical, is_quick_win FROM tasks`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var score float64
		var critical, quick bool
		if err := rows.Scan(&status, &score, &critical, &quick); err != nil {
			return stats, err
		}
		stats.Total++
		stats.ByStatus[status]++
		if status != domain.StatusActive {
			continue
		}
		if critical {
			stats.LifeCriticalActive++
		}
		if quick {
			stats.QuickWins++
		}
		if score >= 0.7 {
			stats.HighPriority++
		}
	}
	return stats, rows.Err()
}

// LatestEvents returns the most recent events, optionally filtered by task.
func (r Repo) LatestEvents(ctx context.Context, limit int, taskID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if taskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, taskID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,task_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var tid sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &tid, &e.Payload); err != nil {
			return nil, err
		}
		if tid.Valid {
			e.TaskID = tid.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

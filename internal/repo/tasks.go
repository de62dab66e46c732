package repo

import (
	"context"
	"database/sql"
	"strings"

	"obraline/internal/domain"
)

const taskColumns = `t.id,t.project_id,t.title,COALESCE(t.description,''),t.assignee_id,t.priority,t.due_date,t.status,t.created_by,t.created_at,COALESCE(t.completion_comment,''),COALESCE(t.evidence_url,''),t.completed_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var completedAt sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.AssigneeID, &t.Priority, &t.DueDate, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.CompletionComment, &t.EvidenceURL, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,assignee_id,priority,due_date,status,created_by,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.AssigneeID, t.Priority, t.DueDate, t.Status, t.CreatedBy, t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	if t.Materials, err = r.ListTaskMaterials(ctx, t.ID); err != nil {
		return t, err
	}
	if t.DueDateHistory, err = r.ListDueDateChanges(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ProjectID  string
	Status     domain.TaskStatus
	Priority   domain.Priority
	AssigneeID string
}

// ListTasks returns tasks matching the filters joined with the assignee
// username, newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "t.assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + `,COALESCE(u.username,'') FROM tasks t LEFT JOIN users u ON u.id=t.assignee_id ` + where + ` ORDER BY t.created_at DESC, t.id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.AssigneeID, &t.Priority, &t.DueDate, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.CompletionComment, &t.EvidenceURL, &completedAt, &t.AssigneeName); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListOpenTasksForUser returns non-completed tasks assigned to the user in
// projects that are not finalized. Feeds the notification feed.
func (r Repo) ListOpenTasksForUser(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks t
JOIN projects p ON p.id=t.project_id
WHERE t.assignee_id=? AND t.status!=? AND p.state!=? ORDER BY t.created_at DESC`,
		userID, domain.TaskCompletada, domain.ProjectFinalizado)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CompleteTask(ctx context.Context, tx *sql.Tx, id, comment, evidenceURL, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, completion_comment=?, evidence_url=?, completed_at=? WHERE id=?`,
		domain.TaskCompletada, comment, evidenceURL, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id string, status domain.TaskStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskDueDate(ctx context.Context, tx *sql.Tx, id, dueDate string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET due_date=? WHERE id=?`, dueDate, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertTaskMaterial(ctx context.Context, tx *sql.Tx, taskID string, m domain.MaterialAllocation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_materials(task_id,material_id,name,quantity) VALUES (?,?,?,?)`,
		taskID, m.MaterialID, m.Name, m.Quantity)
	return err
}

func (r Repo) ListTaskMaterials(ctx context.Context, taskID string) ([]domain.MaterialAllocation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT material_id,name,quantity FROM task_materials WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MaterialAllocation
	for rows.Next() {
		var m domain.MaterialAllocation
		if err := rows.Scan(&m.MaterialID, &m.Name, &m.Quantity); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertDueDateChange(ctx context.Context, tx *sql.Tx, taskID string, c domain.DueDateChange) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO due_date_changes(task_id,previous_date,new_date,reason,actor_id,changed_at) VALUES (?,?,?,?,?,?)`,
		taskID, c.PreviousDate, c.NewDate, nullable(c.Reason), c.ActorID, c.ChangedAt)
	return err
}

func (r Repo) ListDueDateChanges(ctx context.Context, taskID string) ([]domain.DueDateChange, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT previous_date,new_date,COALESCE(reason,''),actor_id,changed_at FROM due_date_changes WHERE task_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DueDateChange
	for rows.Next() {
		var c domain.DueDateChange
		if err := rows.Scan(&c.PreviousDate, &c.NewDate, &c.Reason, &c.ActorID, &c.ChangedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

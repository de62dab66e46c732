package repo

import (
	"context"
	"database/sql"
	"fmt"

	"obraline/internal/domain"
)

const materialColumns = `id,project_id,name,COALESCE(unit,''),quantity,COALESCE(description,''),created_by,created_at,updated_at`

func scanMaterial(scan func(...any) error) (domain.Material, error) {
	var m domain.Material
	err := scan(&m.ID, &m.ProjectID, &m.Name, &m.Unit, &m.Quantity, &m.Description, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMaterial(ctx context.Context, tx *sql.Tx, m domain.Material) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO materials(id,project_id,name,unit,quantity,description,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Name, nullable(m.Unit), m.Quantity, nullable(m.Description), m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=?`, id)
	return scanMaterial(row.Scan)
}

func (r Repo) GetMaterialTx(ctx context.Context, tx *sql.Tx, id string) (domain.Material, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=?`, id)
	return scanMaterial(row.Scan)
}

func (r Repo) ListMaterials(ctx context.Context, projectID string) ([]domain.Material, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE project_id=? ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) SetMaterialQuantity(ctx context.Context, tx *sql.Tx, id string, quantity int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE materials SET quantity=?, updated_at=? WHERE id=?`, quantity, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementMaterial atomically subtracts units from stock; it fails when the
// remaining quantity would go negative.
func (r Repo) DecrementMaterial(ctx context.Context, tx *sql.Tx, id string, units int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE materials SET quantity=quantity-?, updated_at=? WHERE id=? AND quantity>=?`,
		units, updatedAt, id, units)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("material %s: insufficient stock", id)
	}
	return nil
}

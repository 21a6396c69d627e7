package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// InstanceRepository implements domain.InstanceRepository using SQLite.
// The uniqueness guarantees (primary key on instance_id, one USER row per
// organization, a single ADMIN row) live in the schema, so a concurrent
// saga losing the race surfaces as a domain.ConflictError.
type InstanceRepository struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*InstanceRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*InstanceRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &InstanceRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *InstanceRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (r *InstanceRepository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

const instanceColumns = `instance_id, organization_id, space_id, plan_id, owner,
	 dashboard_type, status, namespace, account_name, account_token, dashboard_url,
	 created_at, updated_at`

func (r *InstanceRepository) Create(ctx context.Context, inst domain.Instance) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO instances (`+instanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.InstanceID, inst.OrganizationID, inst.SpaceID, inst.PlanID, inst.Owner,
		string(inst.DashboardType), string(inst.Status), inst.Namespace,
		inst.AccountName, inst.AccountToken, inst.DashboardURL,
		inst.CreatedAt.Format(timeFormat),
		inst.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{InstanceID: inst.InstanceID}
		}
		return fmt.Errorf("inserting instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, instanceID string) (domain.Instance, error) {
	return r.scanInstance(r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE instance_id = ?`, instanceID,
	))
}

func (r *InstanceRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any

	if filter.DashboardType != nil {
		query += ` WHERE dashboard_type = ?`
		args = append(args, string(*filter.DashboardType))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		inst, err := r.scanInstanceFromRows(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

func (r *InstanceRepository) Update(ctx context.Context, inst domain.Instance) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE instances SET plan_id = ?, status = ?, account_name = ?,
		 account_token = ?, dashboard_url = ?, updated_at = ?
		 WHERE instance_id = ?`,
		inst.PlanID, string(inst.Status), inst.AccountName,
		inst.AccountToken, inst.DashboardURL,
		time.Now().UTC().Format(timeFormat), inst.InstanceID,
	)
	if err != nil {
		return fmt.Errorf("updating instance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrInstanceNotFound
	}

	return nil
}

func (r *InstanceRepository) Delete(ctx context.Context, instanceID string) error {
	// Deleting an absent row is not an error: teardown is idempotent.
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM instances WHERE instance_id = ?`, instanceID,
	)
	if err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) ExistsByOrganization(ctx context.Context, organizationID string, t domain.DashboardType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM instances WHERE organization_id = ? AND dashboard_type = ?)`,
		organizationID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking organization: %w", err)
	}
	return exists, nil
}

func (r *InstanceRepository) ExistsByType(ctx context.Context, t domain.DashboardType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM instances WHERE dashboard_type = ?)`,
		string(t),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking dashboard type: %w", err)
	}
	return exists, nil
}

// scanInstance scans a single row from QueryRow into a domain.Instance.
func (r *InstanceRepository) scanInstance(row *sql.Row) (domain.Instance, error) {
	var inst domain.Instance
	var dashboardType, status, createdAt, updatedAt string

	err := row.Scan(&inst.InstanceID, &inst.OrganizationID, &inst.SpaceID, &inst.PlanID,
		&inst.Owner, &dashboardType, &status, &inst.Namespace,
		&inst.AccountName, &inst.AccountToken, &inst.DashboardURL, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Instance{}, domain.ErrInstanceNotFound
		}
		return domain.Instance{}, fmt.Errorf("scanning instance: %w", err)
	}

	inst.DashboardType = domain.DashboardType(dashboardType)
	inst.Status = domain.Status(status)
	inst.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	inst.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return inst, nil
}

// scanInstanceFromRows scans a single row from Rows (used in List).
func (r *InstanceRepository) scanInstanceFromRows(rows *sql.Rows) (domain.Instance, error) {
	var inst domain.Instance
	var dashboardType, status, createdAt, updatedAt string

	err := rows.Scan(&inst.InstanceID, &inst.OrganizationID, &inst.SpaceID, &inst.PlanID,
		&inst.Owner, &dashboardType, &status, &inst.Namespace,
		&inst.AccountName, &inst.AccountToken, &inst.DashboardURL, &createdAt, &updatedAt)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("scanning instance row: %w", err)
	}

	inst.DashboardType = domain.DashboardType(dashboardType)
	inst.Status = domain.Status(status)
	inst.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	inst.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return inst, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/atriumhq/atrium/pkg/airlock"
	"github.com/atriumhq/atrium/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore holds the control plane documents in SQLite. It implements
// engine.ResourceStore, engine.TemplateStore, engine.OperationStore and
// airlock.Store.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, engine.NewValidationError("database path is required", nil)
	}

	return &SQLiteStore{
		path: cfg.Path,
		now:  time.Now,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return engine.NewInternalError("failed to open database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return engine.NewInternalError("failed to ping database", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return engine.NewInternalError("failed to enable foreign keys", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return engine.NewInternalError("database not initialized", nil)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return engine.NewInternalError("failed to create migration source", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return engine.NewInternalError("failed to create database driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return engine.NewInternalError("failed to create migration instance", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return engine.NewInternalError("failed to run migrations", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return engine.NewInternalError("database not initialized", nil)
	}
	return s.db.PingContext(ctx)
}

func marshalDocument(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", engine.NewInternalError("failed to serialize document", err)
	}
	return string(raw), nil
}

func unmarshalDocument[T any](raw string) (*T, error) {
	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, engine.NewInternalError("failed to deserialize document", err)
	}
	return out, nil
}

// --- resources (engine.ResourceStore) ---

// GetResourceByID returns the resource document with the given id.
func (s *SQLiteStore) GetResourceByID(ctx context.Context, resourceID string) (*engine.Resource, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM resources WHERE id = ?`, resourceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError("resource not found: "+resourceID, nil)
	}
	if err != nil {
		return nil, engine.NewInternalError("failed to get resource", err)
	}
	return unmarshalDocument[engine.Resource](raw)
}

// GetResourceByTemplateName returns the enabled resource instantiated from
// the named template. Used to resolve shared-service pipeline targets, which
// are singletons per template name.
func (s *SQLiteStore) GetResourceByTemplateName(ctx context.Context, templateName string) (*engine.Resource, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM resources WHERE template_name = ? AND is_enabled = 1 ORDER BY updated_at DESC LIMIT 1`,
		templateName).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError("no enabled resource for template: "+templateName, nil)
	}
	if err != nil {
		return nil, engine.NewInternalError("failed to get resource by template name", err)
	}
	return unmarshalDocument[engine.Resource](raw)
}

// SaveResource inserts a new resource document with a fresh etag.
func (s *SQLiteStore) SaveResource(ctx context.Context, resource *engine.Resource) error {
	resource.ETag = uuid.New().String()
	resource.UpdatedWhen = s.now().UTC()

	raw, err := marshalDocument(resource)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resources (id, template_name, resource_type, workspace_id, is_enabled, etag, document, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resource.ID, resource.TemplateName, resource.ResourceType, resource.WorkspaceID,
		boolToInt(resource.IsEnabled), resource.ETag, raw, resource.UpdatedWhen)
	if err != nil {
		return engine.NewInternalError("failed to save resource", err)
	}
	return nil
}

// PatchResource swaps a resource's properties under optimistic concurrency.
// The prior state is appended to the document's history, the resource
// version is bumped and a new etag is issued. A stale etag yields a
// conflict error and leaves the row unchanged.
func (s *SQLiteStore) PatchResource(ctx context.Context, resource *engine.Resource, properties map[string]any, etag string, user engine.User) (*engine.Resource, error) {
	updated := *resource
	updated.History = append(updated.History, engine.ResourceHistoryItem{
		Properties:      resource.Properties,
		IsEnabled:       resource.IsEnabled,
		ResourceVersion: resource.ResourceVersion,
		UpdatedWhen:     resource.UpdatedWhen,
		User:            resource.User,
	})
	updated.Properties = properties
	updated.ResourceVersion++
	updated.UpdatedWhen = s.now().UTC()
	updated.User = user
	updated.ETag = uuid.New().String()

	raw, err := marshalDocument(&updated)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET is_enabled = ?, etag = ?, document = ?, updated_at = ? WHERE id = ? AND etag = ?`,
		boolToInt(updated.IsEnabled), updated.ETag, raw, updated.UpdatedWhen, updated.ID, etag)
	if err != nil {
		return nil, engine.NewInternalError("failed to patch resource", err)
	}

	if err := s.requireSwap(ctx, result, "resources", updated.ID); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateResource overwrites a resource document under optimistic
// concurrency, for mutations beyond a properties patch (e.g. toggling
// isEnabled).
func (s *SQLiteStore) UpdateResource(ctx context.Context, resource *engine.Resource, etag string) (*engine.Resource, error) {
	updated := *resource
	updated.UpdatedWhen = s.now().UTC()
	updated.ETag = uuid.New().String()

	raw, err := marshalDocument(&updated)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET is_enabled = ?, etag = ?, document = ?, updated_at = ? WHERE id = ? AND etag = ?`,
		boolToInt(updated.IsEnabled), updated.ETag, raw, updated.UpdatedWhen, updated.ID, etag)
	if err != nil {
		return nil, engine.NewInternalError("failed to update resource", err)
	}

	if err := s.requireSwap(ctx, result, "resources", updated.ID); err != nil {
		return nil, err
	}
	return &updated, nil
}

// requireSwap distinguishes a CAS miss from a missing row after an UPDATE
// matched zero rows.
func (s *SQLiteStore) requireSwap(ctx context.Context, result sql.Result, table, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewInternalError("failed to get rows affected", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return engine.NewInternalError("failed to check document existence", err)
	}
	if exists == 0 {
		return engine.NewNotFoundError("document not found: "+id, nil)
	}
	return engine.NewConflictError("document changed concurrently: "+id, nil)
}

// --- resource templates (engine.TemplateStore) ---

// FindCurrentTemplates returns templates marked current for the key.
func (s *SQLiteStore) FindCurrentTemplates(ctx context.Context, name string, resourceType engine.ResourceType, parentServiceName string) ([]*engine.ResourceTemplate, error) {
	return s.queryTemplates(ctx,
		`SELECT document FROM resource_templates WHERE name = ? AND resource_type = ? AND parent_service = ? AND current = 1`,
		name, resourceType, parentServiceName)
}

// FindTemplateVersions returns templates matching name and version for the key.
func (s *SQLiteStore) FindTemplateVersions(ctx context.Context, name, version string, resourceType engine.ResourceType, parentServiceName string) ([]*engine.ResourceTemplate, error) {
	return s.queryTemplates(ctx,
		`SELECT document FROM resource_templates WHERE name = ? AND version = ? AND resource_type = ? AND parent_service = ?`,
		name, version, resourceType, parentServiceName)
}

// ListCurrentTemplates returns every template marked current for a resource
// type.
func (s *SQLiteStore) ListCurrentTemplates(ctx context.Context, resourceType engine.ResourceType) ([]*engine.ResourceTemplate, error) {
	return s.queryTemplates(ctx,
		`SELECT document FROM resource_templates WHERE resource_type = ? AND current = 1 ORDER BY name`,
		resourceType)
}

func (s *SQLiteStore) queryTemplates(ctx context.Context, query string, args ...any) ([]*engine.ResourceTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engine.NewInternalError("failed to query templates", err)
	}
	defer rows.Close()

	templates := []*engine.ResourceTemplate{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, engine.NewInternalError("failed to scan template", err)
		}
		template, err := unmarshalDocument[engine.ResourceTemplate](raw)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.NewInternalError("error iterating templates", err)
	}
	return templates, nil
}

// SaveTemplate inserts a new template version.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, template *engine.ResourceTemplate) error {
	raw, err := marshalDocument(template)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO resource_templates (id, name, version, resource_type, parent_service, current, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		template.ID, template.Name, template.Version, template.ResourceType,
		template.ParentWorkspaceService, boolToInt(template.Current), raw)
	if err != nil {
		return engine.NewInternalError("failed to save template", err)
	}
	return nil
}

// UpdateTemplate overwrites an existing template document, keyed by id.
// Used to demote the previously current version during registration.
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, template *engine.ResourceTemplate) error {
	raw, err := marshalDocument(template)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE resource_templates SET current = ?, document = ? WHERE id = ?`,
		boolToInt(template.Current), raw, template.ID)
	if err != nil {
		return engine.NewInternalError("failed to update template", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError("template not found: "+template.ID, nil)
	}
	return nil
}

// --- operations (engine.OperationStore) ---

// SaveOperation inserts an operation and its full step plan as one document.
func (s *SQLiteStore) SaveOperation(ctx context.Context, operation *engine.Operation) error {
	raw, err := marshalDocument(operation)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO operations (id, resource_id, action, status, document, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		operation.ID, operation.ResourceID, operation.Action, operation.Status, raw, operation.UpdatedWhen)
	if err != nil {
		return engine.NewInternalError("failed to save operation", err)
	}
	return nil
}

// GetOperationByID returns the operation document with the given id.
func (s *SQLiteStore) GetOperationByID(ctx context.Context, operationID string) (*engine.Operation, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM operations WHERE id = ?`, operationID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError("operation not found: "+operationID, nil)
	}
	if err != nil {
		return nil, engine.NewInternalError("failed to get operation", err)
	}
	return unmarshalDocument[engine.Operation](raw)
}

// ListOperationsByResourceID returns all operations targeting a resource,
// oldest first.
func (s *SQLiteStore) ListOperationsByResourceID(ctx context.Context, resourceID string) ([]*engine.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM operations WHERE resource_id = ? ORDER BY updated_at ASC`, resourceID)
	if err != nil {
		return nil, engine.NewInternalError("failed to list operations", err)
	}
	defer rows.Close()

	operations := []*engine.Operation{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, engine.NewInternalError("failed to scan operation", err)
		}
		operation, err := unmarshalDocument[engine.Operation](raw)
		if err != nil {
			return nil, err
		}
		operations = append(operations, operation)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.NewInternalError("error iterating operations", err)
	}
	return operations, nil
}

// UpdateOperation overwrites an operation document, keyed by id.
func (s *SQLiteStore) UpdateOperation(ctx context.Context, operation *engine.Operation) error {
	raw, err := marshalDocument(operation)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE operations SET status = ?, document = ?, updated_at = ? WHERE id = ?`,
		operation.Status, raw, operation.UpdatedWhen, operation.ID)
	if err != nil {
		return engine.NewInternalError("failed to update operation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewInternalError("failed to get rows affected", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError("operation not found: "+operation.ID, nil)
	}
	return nil
}

// ResourceHasDeployedOperation reports whether any install operation on the
// resource reached deployed status.
func (s *SQLiteStore) ResourceHasDeployedOperation(ctx context.Context, resourceID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM operations WHERE resource_id = ? AND action = ? AND status = ?`,
		resourceID, engine.ActionInstall, engine.StatusDeployed).Scan(&count)
	if err != nil {
		return false, engine.NewInternalError("failed to query deployed operations", err)
	}
	return count > 0, nil
}

// --- airlock requests (airlock.Store) ---

// GetRequestByID returns the airlock request document with the given id.
func (s *SQLiteStore) GetRequestByID(ctx context.Context, requestID string) (*airlock.AirlockRequest, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM airlock_requests WHERE id = ?`, requestID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError("airlock request not found: "+requestID, nil)
	}
	if err != nil {
		return nil, engine.NewInternalError("failed to get airlock request", err)
	}
	return unmarshalDocument[airlock.AirlockRequest](raw)
}

// SaveRequest inserts a new airlock request with a fresh etag.
func (s *SQLiteStore) SaveRequest(ctx context.Context, request *airlock.AirlockRequest) error {
	request.ETag = uuid.New().String()

	raw, err := marshalDocument(request)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO airlock_requests (id, workspace_id, status, etag, document, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		request.ID, request.WorkspaceID, request.Status, request.ETag, raw, request.UpdatedWhen)
	if err != nil {
		return engine.NewInternalError("failed to save airlock request", err)
	}
	return nil
}

// UpdateRequest overwrites an airlock request under optimistic concurrency.
// This is what serializes concurrent status transitions per request: of two
// racing transitions one gets a conflict error back.
func (s *SQLiteStore) UpdateRequest(ctx context.Context, request *airlock.AirlockRequest, etag string) (*airlock.AirlockRequest, error) {
	updated := *request
	updated.ETag = uuid.New().String()

	raw, err := marshalDocument(&updated)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE airlock_requests SET status = ?, etag = ?, document = ?, updated_at = ? WHERE id = ? AND etag = ?`,
		updated.Status, updated.ETag, raw, updated.UpdatedWhen, updated.ID, etag)
	if err != nil {
		return nil, engine.NewInternalError("failed to update airlock request", err)
	}

	if err := s.requireSwap(ctx, result, "airlock_requests", updated.ID); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListRequestsByWorkspaceID returns a workspace's airlock requests, oldest
// first.
func (s *SQLiteStore) ListRequestsByWorkspaceID(ctx context.Context, workspaceID string) ([]*airlock.AirlockRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM airlock_requests WHERE workspace_id = ? ORDER BY updated_at ASC`, workspaceID)
	if err != nil {
		return nil, engine.NewInternalError("failed to list airlock requests", err)
	}
	defer rows.Close()

	requests := []*airlock.AirlockRequest{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, engine.NewInternalError("failed to scan airlock request", err)
		}
		request, err := unmarshalDocument[airlock.AirlockRequest](raw)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.NewInternalError("error iterating airlock requests", err)
	}
	return requests, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package service implements the document store behind the gate. Every
// operation arrives as one path-addressed Execute call; the store trusts its
// bearer tokens and applies no tenant policy of its own.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	dsapi "github.com/pathwaylabs/commandgate/pkg/docstore/api"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Config struct {
	DatabaseURL string
	AuthTokens  []string
}

type Service struct {
	db     *sql.DB
	logger *slog.Logger
	tokens map[string]struct{}
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	if len(cfg.AuthTokens) == 0 {
		return nil, errors.New("at least one auth token is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(2 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}

	svc := newWithDB(db, cfg.AuthTokens, logger)
	if err := svc.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return svc, nil
}

func newWithDB(db *sql.DB, authTokens []string, logger *slog.Logger) *Service {
	tokens := make(map[string]struct{}, len(authTokens))
	for _, token := range authTokens {
		token = strings.TrimSpace(token)
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	return &Service{db: db, logger: logger, tokens: tokens}
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Service) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS containers (
			database_name TEXT NOT NULL,
			namespace TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (database_name, namespace)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			database_name TEXT NOT NULL,
			namespace TEXT NOT NULL,
			entity TEXT NOT NULL,
			document_id TEXT NOT NULL,
			body JSONB NOT NULL,
			tags JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (database_name, namespace, entity, document_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_entity
			ON documents(database_name, namespace, entity, updated_at DESC)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(dsapi.ProcedureExecute, connect.NewUnaryHandler(dsapi.ProcedureExecute, s.handleExecute, connect.WithCodec(dsapi.JSONCodec{})))
	return mux
}

func (s *Service) handleExecute(ctx context.Context, req *connect.Request[dsapi.ExecuteRequest]) (*connect.Response[dsapi.ExecuteResponse], error) {
	if err := s.authenticate(req.Header()); err != nil {
		return nil, err
	}
	if err := req.Msg.Path.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	response, err := s.execute(ctx, req.Msg)
	if err != nil {
		return nil, err
	}

	s.logger.Info("docstore operation",
		"verb", string(req.Msg.Verb),
		"path", req.Msg.Path.String())
	return connect.NewResponse(response), nil
}

func (s *Service) authenticate(headers http.Header) error {
	authorization := strings.TrimSpace(headers.Get("Authorization"))
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("bearer token is required"))
	}
	if _, ok := s.tokens[strings.TrimSpace(token)]; !ok {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("unknown token"))
	}
	return nil
}

func (s *Service) execute(ctx context.Context, req *dsapi.ExecuteRequest) (*dsapi.ExecuteResponse, error) {
	path := req.Path
	switch req.Verb {
	case dsapi.VerbSet:
		if path.Entity == "" {
			return s.createContainer(ctx, path)
		}
		return s.setDocument(ctx, path, req.Payload)
	case dsapi.VerbGet:
		if path.ID == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("get requires a document id"))
		}
		return s.getDocument(ctx, path)
	case dsapi.VerbList, dsapi.VerbSearch:
		if path.Namespace == "" {
			return s.listNamespaces(ctx, path.Database)
		}
		filter := dsapi.Filter{}
		if req.Filter != nil {
			filter = *req.Filter
		}
		return s.listDocuments(ctx, path, filter, req.Verb == dsapi.VerbSearch)
	case dsapi.VerbRemove:
		return s.removeDocument(ctx, path)
	case dsapi.VerbTag:
		return s.retagDocument(ctx, path, req.Payload, true)
	case dsapi.VerbUntag:
		return s.retagDocument(ctx, path, req.Payload, false)
	case dsapi.VerbDrop:
		return s.dropContainer(ctx, path)
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unsupported verb: %s", req.Verb))
	}
}

func (s *Service) createContainer(ctx context.Context, path dsapi.Path) (*dsapi.ExecuteResponse, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO containers (database_name, namespace)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, path.Database, path.Namespace); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("insert container: %w", err))
	}
	return &dsapi.ExecuteResponse{}, nil
}

func (s *Service) setDocument(ctx context.Context, path dsapi.Path, payload json.RawMessage) (*dsapi.ExecuteResponse, error) {
	if path.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("set requires a document id"))
	}
	if len(payload) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("set requires a payload"))
	}
	tags, err := extractTags(payload)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO containers (database_name, namespace)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, path.Database, path.Namespace); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("ensure container: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents (database_name, namespace, entity, document_id, body, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (database_name, namespace, entity, document_id)
		DO UPDATE SET body = excluded.body, tags = excluded.tags, updated_at = NOW()`,
		path.Database, path.Namespace, path.Entity, path.ID, string(payload), tags); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("upsert document: %w", err))
	}
	return &dsapi.ExecuteResponse{Document: payload}, nil
}

func (s *Service) getDocument(ctx context.Context, path dsapi.Path) (*dsapi.ExecuteResponse, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents
		WHERE database_name = $1 AND namespace = $2 AND entity = $3 AND document_id = $4`,
		path.Database, path.Namespace, path.Entity, path.ID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, connect.NewError(connect.CodeNotFound, errors.New("document not found"))
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("query document: %w", err))
	}
	return &dsapi.ExecuteResponse{Document: body}, nil
}

func (s *Service) listNamespaces(ctx context.Context, database string) (*dsapi.ExecuteResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace FROM containers
		WHERE database_name = $1 AND namespace <> '' ORDER BY namespace ASC`, database)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("query namespaces: %w", err))
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("scan namespace: %w", err))
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("iterate namespaces: %w", err))
	}
	return &dsapi.ExecuteResponse{Names: names}, nil
}

func (s *Service) listDocuments(ctx context.Context, path dsapi.Path, filter dsapi.Filter, filtered bool) (*dsapi.ExecuteResponse, error) {
	query := `SELECT body FROM documents
		WHERE database_name = $1 AND namespace = $2 AND entity = $3`
	args := []any{path.Database, path.Namespace, path.Entity}

	if filtered {
		if name := strings.TrimSpace(filter.Name); name != "" {
			args = append(args, "%"+name+"%")
			query += fmt.Sprintf(" AND body->>'name' ILIKE $%d", len(args))
		}
		if len(filter.Tags) > 0 {
			encoded, err := json.Marshal(filter.Tags)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("encode tag filter: %w", err))
			}
			args = append(args, string(encoded))
			query += fmt.Sprintf(" AND tags @> $%d", len(args))
		}
	}

	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, int(limit))
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("query documents: %w", err))
	}
	defer rows.Close()

	documents := []json.RawMessage{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("scan document: %w", err))
		}
		documents = append(documents, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("iterate documents: %w", err))
	}
	return &dsapi.ExecuteResponse{Documents: documents}, nil
}

func (s *Service) removeDocument(ctx context.Context, path dsapi.Path) (*dsapi.ExecuteResponse, error) {
	if path.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("remove requires a document id"))
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents
		WHERE database_name = $1 AND namespace = $2 AND entity = $3 AND document_id = $4`,
		path.Database, path.Namespace, path.Entity, path.ID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("delete document: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("count deleted rows: %w", err))
	}
	if affected == 0 {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("document not found"))
	}
	return &dsapi.ExecuteResponse{}, nil
}

func (s *Service) retagDocument(ctx context.Context, path dsapi.Path, payload json.RawMessage, add bool) (*dsapi.ExecuteResponse, error) {
	if path.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tag operations require a document id"))
	}
	var tagPayload struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(payload, &tagPayload); err != nil || strings.TrimSpace(tagPayload.Tag) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tag payload must carry a tag name"))
	}

	response, err := s.getDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(response.Document, &body); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("decode document body: %w", err))
	}

	tags := decodeTagList(body["tags"])
	if add {
		tags = appendUnique(tags, tagPayload.Tag)
	} else {
		tags = removeTag(tags, tagPayload.Tag)
	}
	if len(tags) == 0 {
		delete(body, "tags")
	} else {
		body["tags"] = tags
	}

	updated, err := json.Marshal(body)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode document body: %w", err))
	}
	return s.setDocument(ctx, path, updated)
}

func (s *Service) dropContainer(ctx context.Context, path dsapi.Path) (*dsapi.ExecuteResponse, error) {
	if path.Entity != "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("drop applies to databases and namespaces"))
	}

	var docsQuery, containersQuery string
	args := []any{path.Database}
	if path.Namespace == "" {
		docsQuery = `DELETE FROM documents WHERE database_name = $1`
		containersQuery = `DELETE FROM containers WHERE database_name = $1`
	} else {
		docsQuery = `DELETE FROM documents WHERE database_name = $1 AND namespace = $2`
		containersQuery = `DELETE FROM containers WHERE database_name = $1 AND namespace = $2`
		args = append(args, path.Namespace)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("begin drop transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, docsQuery, args...); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("delete documents: %w", err))
	}
	if _, err := tx.ExecContext(ctx, containersQuery, args...); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("delete containers: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("commit drop transaction: %w", err))
	}
	return &dsapi.ExecuteResponse{}, nil
}

// extractTags mirrors the document's tags field into the indexed column so
// tag search stays in SQL.
func extractTags(payload json.RawMessage) (string, error) {
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if body.Tags == nil {
		body.Tags = []string{}
	}
	encoded, err := json.Marshal(body.Tags)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeTagList(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, entry := range raw {
		if tag, ok := entry.(string); ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func appendUnique(tags []string, tag string) []string {
	for _, existing := range tags {
		if existing == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func removeTag(tags []string, tag string) []string {
	kept := tags[:0]
	for _, existing := range tags {
		if existing != tag {
			kept = append(kept, existing)
		}
	}
	return kept
}

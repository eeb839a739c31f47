package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/petrijr/orchestra/pkg/api"
)

// sqlStore holds the statements shared by the database/sql backends. The
// queries are written with '?' placeholders and rebound for drivers that
// number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) initSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind turns '?' placeholders into $1, $2, ... when the driver needs it.
func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) SaveSession(ctx context.Context, sess *api.Session) error {
	meta, err := EncodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, name, description, status, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), sess.ID, sess.Name, sess.Description, string(sess.Status),
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(), meta)
	return err
}

func (s *sqlStore) UpdateSession(ctx context.Context, sess *api.Session) error {
	meta, err := EncodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sessions
		SET name = ?, description = ?, status = ?, updated_at = ?, metadata = ?
		WHERE id = ?
	`), sess.Name, sess.Description, string(sess.Status), sess.UpdatedAt.UnixNano(), meta, sess.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sessionNotFound(sess.ID)
	}
	return nil
}

func (s *sqlStore) GetSession(ctx context.Context, id string) (*api.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, description, status, created_at, updated_at, metadata
		FROM sessions
		WHERE id = ?
	`), id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessionNotFound(id)
	}
	return sess, err
}

func (s *sqlStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error) {
	query := `
		SELECT id, name, description, status, created_at, updated_at, metadata
		FROM sessions`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*api.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sessionNotFound(id)
	}
	return nil
}

func (s *sqlStore) SaveProject(ctx context.Context, p *api.Project) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO projects (name, description, session_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`), p.Name, p.Description, p.SessionID, p.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return projectExists(p.Name)
	}
	return nil
}

func (s *sqlStore) GetProject(ctx context.Context, name string) (*api.Project, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT name, description, session_id, created_at
		FROM projects
		WHERE name = ?
	`), name)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projectNotFound(name)
	}
	return p, err
}

func (s *sqlStore) ListProjects(ctx context.Context) ([]*api.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, session_id, created_at
		FROM projects
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*api.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*api.Session, error) {
	var (
		id, name, desc, status string
		created, updated       int64
		meta                   []byte
	)
	if err := row.Scan(&id, &name, &desc, &status, &created, &updated, &meta); err != nil {
		return nil, err
	}
	md, err := DecodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	sess := api.NewSession(id)
	sess.Name = name
	sess.Description = desc
	if status != "" {
		sess.Status = api.SessionStatus(status)
	}
	sess.CreatedAt = fromUnixNano(created)
	sess.UpdatedAt = fromUnixNano(updated)
	sess.Metadata = md
	return sess, nil
}

func scanProject(row rowScanner) (*api.Project, error) {
	var (
		p       api.Project
		created int64
	)
	if err := row.Scan(&p.Name, &p.Description, &p.SessionID, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = fromUnixNano(created)
	return &p, nil
}

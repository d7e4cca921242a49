package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"harvestlink/internal/domain"
)

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps sessions in the ussd_sessions table.
type SQLiteStore struct {
	DB  *sql.DB
	TTL time.Duration
	Now func() time.Time
}

func NewSQLiteStore(db *sql.DB, ttl time.Duration) *SQLiteStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteStore{DB: db, TTL: ttl, Now: time.Now}
}

func (s *SQLiteStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Session, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT session_id,COALESCE(phone_number,''),current_step,state_json,token_offset,created_at,updated_at FROM ussd_sessions WHERE session_id=?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Fresh(id), nil
	}
	if err != nil {
		return domain.Session{}, unavailable("get", err)
	}
	if s.expired(sess) {
		if _, err := s.DB.ExecContext(ctx, `DELETE FROM ussd_sessions WHERE session_id=? AND updated_at=?`, id, sess.UpdatedAt.UTC().Format(timeLayout)); err != nil {
			return domain.Session{}, unavailable("expire", err)
		}
		return Fresh(id), nil
	}
	return sess, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sess domain.Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return unavailable("encode", err)
	}
	now := s.now().Format(timeLayout)
	created := now
	if !sess.CreatedAt.IsZero() {
		created = sess.CreatedAt.UTC().Format(timeLayout)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO ussd_sessions(session_id,phone_number,current_step,state_json,token_offset,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(session_id) DO UPDATE SET
  phone_number=excluded.phone_number,
  current_step=excluded.current_step,
  state_json=excluded.state_json,
  token_offset=excluded.token_offset,
  updated_at=excluded.updated_at`,
		sess.ID, sess.PhoneNumber, sess.CurrentStep, string(state), sess.TokenOffset, created, now)
	if err != nil {
		return unavailable("put", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM ussd_sessions WHERE session_id=?`, id); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.TTL).Format(timeLayout)
	res, err := s.DB.ExecContext(ctx, `DELETE FROM ussd_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, unavailable("purge", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT session_id,COALESCE(phone_number,''),current_step,state_json,token_offset,created_at,updated_at FROM ussd_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, unavailable("list", err)
		}
		if s.expired(sess) {
			continue
		}
		res = append(res, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return res, nil
}

func (s *SQLiteStore) expired(sess domain.Session) bool {
	return s.now().Sub(sess.UpdatedAt) > s.TTL
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		sess             domain.Session
		state            string
		created, updated string
	)
	if err := row.Scan(&sess.ID, &sess.PhoneNumber, &sess.CurrentStep, &state, &sess.TokenOffset, &created, &updated); err != nil {
		return domain.Session{}, err
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return domain.Session{}, err
	}
	var err error
	if sess.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return domain.Session{}, err
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

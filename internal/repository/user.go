package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nezbut/tgmailer/internal/entity"
)

// ErrNotFound is returned when the requested user does not exist.
var ErrNotFound = errors.New("repository: user not found")

// UserRepository stores known bot users in Postgres.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(connStr string) (*UserRepository, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	r := &UserRepository{db: db}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *UserRepository) init() error {
	_, err := r.db.Exec(`
        CREATE TABLE IF NOT EXISTS users (
            id BIGINT PRIMARY KEY,
            first_name TEXT NOT NULL DEFAULT '',
            username TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            joined_us TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
	return err
}

func (r *UserRepository) Close() error { return r.db.Close() }

// Upsert inserts the user or refreshes their profile fields. The original
// join timestamp is preserved across updates.
func (r *UserRepository) Upsert(ctx context.Context, user entity.User) (entity.User, error) {
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO users (id, first_name, username, last_name)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            first_name=EXCLUDED.first_name,
            username=EXCLUDED.username,
            last_name=EXCLUDED.last_name
        RETURNING id, first_name, username, last_name, joined_us
    `, user.ID, user.FirstName, user.Username, user.LastName)
	return scanUser(row)
}

// GetByID looks one user up.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (entity.User, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, first_name, username, last_name, joined_us
        FROM users WHERE id=$1
    `, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return u, err
}

// GetAll returns every known user; with ids given, only those.
func (r *UserRepository) GetAll(ctx context.Context, ids ...int64) ([]entity.User, error) {
	query := `SELECT id, first_name, username, last_name, joined_us FROM users ORDER BY joined_us`
	var args []any
	if len(ids) > 0 {
		ph := make([]string, len(ids))
		args = make([]any, len(ids))
		for i, id := range ids {
			ph[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query = fmt.Sprintf(
			`SELECT id, first_name, username, last_name, joined_us FROM users WHERE id IN (%s) ORDER BY joined_us`,
			strings.Join(ph, ","))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.Username, &u.LastName, &u.JoinedUs); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count reports how many users the bot knows.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row *sql.Row) (entity.User, error) {
	var u entity.User
	err := row.Scan(&u.ID, &u.FirstName, &u.Username, &u.LastName, &u.JoinedUs)
	return u, err
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"rtchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, username, nickname, avatar, bio, hashed_password, is_online, suspended, last_seen, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, nickname, avatar, bio, hashed_password, is_online, suspended, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Username, u.Nickname, u.Avatar, u.Bio, u.HashedPassword, u.IsOnline, u.Suspended)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE suspended = 0
		ORDER BY created_at ASC
		LIMIT ? OFFSET ?
	`
	return r.listUsers(ctx, query, limit, offset)
}

func (r *UserRepo) ListOnline(ctx context.Context) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE suspended = 0 AND is_online = 1
		ORDER BY last_seen DESC
	`
	return r.listUsers(ctx, query)
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	query := `
		UPDATE users
		SET is_online = ?, last_seen = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	val := 0
	if isOnline {
		val = 1
	}
	if _, err := r.db.ExecContext(ctx, query, val, id); err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

func (r *UserRepo) Block(ctx context.Context, userID, blockedID string) error {
	query := `INSERT OR IGNORE INTO user_blocks (user_id, blocked_id) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, blockedID); err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (r *UserRepo) Unblock(ctx context.Context, userID, blockedID string) error {
	query := `DELETE FROM user_blocks WHERE user_id = ? AND blocked_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID, blockedID); err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Nickname,
		&u.Avatar,
		&u.Bio,
		&u.HashedPassword,
		&u.IsOnline,
		&u.Suspended,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if err := r.loadBlocked(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) listUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		if err := rows.Scan(
			&u.ID,
			&u.Username,
			&u.Nickname,
			&u.Avatar,
			&u.Bio,
			&u.HashedPassword,
			&u.IsOnline,
			&u.Suspended,
			&u.LastSeen,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) loadBlocked(ctx context.Context, u *domain.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT blocked_id FROM user_blocks WHERE user_id = ?`, u.ID)
	if err != nil {
		return fmt.Errorf("load blocked: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan blocked id: %w", err)
		}
		u.BlockedUserIDs = append(u.BlockedUserIDs, id)
	}
	return rows.Err()
}

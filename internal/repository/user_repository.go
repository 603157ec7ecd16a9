package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/model"
)

const mysqlDuplicateEntry = 1062

const usersDDL = `CREATE TABLE IF NOT EXISTS users (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	email VARCHAR(255) NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	reset_token VARCHAR(128) NULL,
	reset_token_expires_at DATETIME NULL,
	cart JSON NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uq_users_email (email),
	KEY idx_users_reset_token (reset_token)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const userColumns = "id,email,password_hash,reset_token,reset_token_expires_at,cart,created_at,updated_at"

// UserRepo is the MySQL credential store.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// EnsureSchema creates the users table when missing.
func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, usersDDL)
	return errors.Wrap(err, "create users table")
}

// Create inserts u and sets its ID. The email is expected normalized.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	cart, err := json.Marshal(u.Cart)
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, cart, created_at, updated_at) VALUES (?,?,?,?,?)",
		u.Email, u.PasswordHash, cart, now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "last insert id")
	}
	u.ID = strconv.FormatInt(id, 10)
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// FindByID fetches a user by id. Non-numeric ids cannot exist.
func (r *UserRepo) FindByID(ctx context.Context, id string) (model.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return model.User{}, ErrUserNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", n)
	return scanUser(row)
}

// FindByResetToken fetches the user owning a reset token that is still
// valid at now.
func (r *UserRepo) FindByResetToken(ctx context.Context, token string, now time.Time) (model.User, error) {
	if token == "" {
		return model.User{}, ErrUserNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token=? AND reset_token_expires_at > ? LIMIT 1",
		token, now.UTC())
	return scanUser(row)
}

// SetResetToken stores a reset token and its expiry on the user.
func (r *UserRepo) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token=?, reset_token_expires_at=? WHERE id=?",
		token, expiresAt.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "set reset token")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeResetToken replaces the password hash and clears the reset token
// in one conditional update, so a token can be used once.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, token string, now time.Time, passwordHash string) error {
	if token == "" {
		return ErrResetTokenInvalid
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token=NULL, reset_token_expires_at=NULL
		 WHERE id=? AND reset_token=? AND reset_token_expires_at > ?`,
		passwordHash, id, token, now.UTC())
	if err != nil {
		return errors.Wrap(err, "consume reset token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u       model.User
		id      uint64
		token   sql.NullString
		expires sql.NullTime
		cart    []byte
	)
	err := row.Scan(&id, &u.Email, &u.PasswordHash, &token, &expires, &cart, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, errors.Wrap(err, "scan user")
	}
	u.ID = strconv.FormatUint(id, 10)
	u.ResetToken = token.String
	if expires.Valid {
		t := expires.Time
		u.ResetTokenExpiresAt = &t
	}
	if len(cart) > 0 {
		if err := json.Unmarshal(cart, &u.Cart); err != nil {
			return model.User{}, errors.Wrap(err, "unmarshal cart")
		}
	}
	return u, nil
}

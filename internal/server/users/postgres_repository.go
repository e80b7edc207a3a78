package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
)

// SQLDB is what PostgresRepository needs from *sql.DB.
type SQLDB interface {
	dbx.DBTX
	dbx.Beginner
}

// PostgresRepository stores users in the "users" table created by the
// migrations package. Uniqueness is enforced by the schema and re-checked
// under a table lock so the duplicate error follows the email-first order.
type PostgresRepository struct {
	db SQLDB
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db SQLDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectUserColumns = `SELECT id, name, email, mobile, password_hash, company_name, provider, created_at FROM users`

const uniqueViolation = "23505"

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}

		taken, err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, u.Email)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}

		if u.Mobile != "" {
			taken, err := exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM users WHERE mobile = $1)`, u.Mobile)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateMobile
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email, mobile, password_hash, company_name, provider, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			u.ID, u.Name, u.Email, nullable(u.Mobile), nullable(u.PasswordHash), nullable(u.CompanyName),
			string(u.Provider), u.CreatedAt)
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateMobile):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrDuplicateEmail
		case "users_mobile_key":
			return ErrDuplicateMobile
		}
	}
	return storageError("insert user", err)
}

func (r *PostgresRepository) All(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, selectUserColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, storageError("select users", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storageError("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterate users", err)
	}
	return users, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByMobile(ctx context.Context, mobile string) (*User, error) {
	if mobile == "" {
		return nil, common.ErrorNotFound
	}
	return r.getOne(ctx, selectUserColumns+` WHERE mobile = $1`, mobile)
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, storageError("count users", err)
	}
	return n, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, storageError("select user", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u                     User
		mobile, hash, company sql.NullString
		provider              string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &mobile, &hash, &company, &provider, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Mobile = mobile.String
	u.PasswordHash = hash.String
	u.CompanyName = company.String
	u.Provider = Provider(provider)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func exists(ctx context.Context, tx dbx.DBTX, query string, arg string) (bool, error) {
	var ok bool
	if err := tx.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package postgres

import (
	"context"
	"fmt"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

const userColumns = `id, phone, name, role, password_hash, is_active, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &role, &u.PasswordHash, &u.IsActive, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

const createUser = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *Queries) CreateUser(ctx context.Context, u domain.User) error {
	_, err := q.db.Exec(ctx, createUser, u.ID, u.Phone, u.Name, string(u.Role), u.PasswordHash, u.IsActive, u.CreatedAt)
	return mapError(err)
}

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, getUser, id))
	if err != nil {
		return domain.User{}, notFound(err, "user", id)
	}
	return u, nil
}

const getUserByPhone = `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

func (q *Queries) GetUserByPhone(ctx context.Context, phone string) (domain.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, getUserByPhone, phone))
	if err != nil {
		return domain.User{}, notFound(err, "user with phone", phone)
	}
	return u, nil
}

const countUsersByRole = `SELECT count(*) FROM users WHERE role = $1`

func (q *Queries) CountUsersByRole(ctx context.Context, role domain.Role) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, countUsersByRole, string(role)).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

const updateUser = `UPDATE users SET name = $2, is_active = $3 WHERE id = $1`

func (q *Queries) UpdateUser(ctx context.Context, u domain.User) error {
	tag, err := q.db.Exec(ctx, updateUser, u.ID, u.Name, u.IsActive)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, u.ID)
	}
	return nil
}

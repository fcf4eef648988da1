package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type principals struct {
	db *bun.DB
}

// NewPrincipalsRepository returns the bun backed credential store
func NewPrincipalsRepository(db *bun.DB) Principals {
	return &principals{db: db}
}

func (r *principals) FindByEmail(ctx context.Context, kind PrincipalKind, email string) (Principal, error) {
	return r.FindByEmailTx(ctx, r.db, kind, email)
}

func (r *principals) FindByEmailTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, email string) (Principal, error) {
	switch kind {
	case KindAdmin, KindStudent:
		u := new(User)
		err := tx.NewSelect().
			Model(u).
			Where("email = ?", email).
			Where("user_role = ?", kind.Role()).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "find by email")
		}
		return wrapUser(u), nil
	case KindTeacher:
		t := new(Teacher)
		err := tx.NewSelect().
			Model(t).
			Where("email = ?", email).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "find by email")
		}
		return TeacherAccount{Teacher: t}, nil
	default:
		return nil, ErrUnknownKind
	}
}

func (r *principals) FindByID(ctx context.Context, kind PrincipalKind, id uuid.UUID) (Principal, error) {
	switch kind {
	case KindAdmin, KindStudent:
		u := new(User)
		err := r.db.NewSelect().
			Model(u).
			Where("id = ?", id).
			Where("user_role = ?", kind.Role()).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "find by id")
		}
		return wrapUser(u), nil
	case KindTeacher:
		t := new(Teacher)
		err := r.db.NewSelect().
			Model(t).
			Relation("Subjects").
			Where("tch.id = ?", id).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "find by id")
		}
		return TeacherAccount{Teacher: t}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// FindForUpdateTx reads a record by id inside tx. On Postgres the row stays
// locked until tx ends; SQLite serializes writers on its own.
func (r *principals) FindForUpdateTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID) (Principal, error) {
	lock := func(q *bun.SelectQuery) *bun.SelectQuery {
		if tx.Dialect().Name() == dialect.PG {
			return q.For("UPDATE")
		}
		return q
	}

	switch kind {
	case KindAdmin, KindStudent:
		u := new(User)
		err := lock(tx.NewSelect().
			Model(u).
			Where("id = ?", id).
			Where("user_role = ?", kind.Role())).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "lock by id")
		}
		return wrapUser(u), nil
	case KindTeacher:
		t := new(Teacher)
		err := lock(tx.NewSelect().
			Model(t).
			Where("id = ?", id)).
			Scan(ctx)
		if err != nil {
			return nil, notFoundOr(err, kind, "lock by id")
		}
		return TeacherAccount{Teacher: t}, nil
	default:
		return nil, ErrUnknownKind
	}
}

func (r *principals) List(ctx context.Context, kind PrincipalKind) ([]Principal, error) {
	var out []Principal
	switch kind {
	case KindAdmin, KindStudent:
		var users []*User
		err := r.db.NewSelect().
			Model(&users).
			Where("user_role = ?", kind.Role()).
			Order("last_name ASC", "first_name ASC").
			Scan(ctx)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list "+string(kind)+" accounts")
		}
		for _, u := range users {
			out = append(out, wrapUser(u))
		}
	case KindTeacher:
		var teachers []*Teacher
		err := r.db.NewSelect().
			Model(&teachers).
			Order("last_name ASC", "first_name ASC").
			Scan(ctx)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list teacher accounts")
		}
		for _, t := range teachers {
			out = append(out, TeacherAccount{Teacher: t})
		}
	default:
		return nil, ErrUnknownKind
	}
	return out, nil
}

// EmailTaken checks the table that backs kind. Admins and students share a
// table, so an admin email also blocks a student with the same address.
func (r *principals) EmailTaken(ctx context.Context, tx bun.IDB, kind PrincipalKind, email string, exclude uuid.UUID) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	var q *bun.SelectQuery
	switch kind {
	case KindAdmin, KindStudent:
		q = tx.NewSelect().Model((*User)(nil))
	case KindTeacher:
		q = tx.NewSelect().Model((*Teacher)(nil))
	default:
		return false, ErrUnknownKind
	}

	q = q.Where("email = ?", email)
	if exclude != uuid.Nil {
		q = q.Where("id != ?", exclude)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}
	return exists, nil
}

func (r *principals) CreateTx(ctx context.Context, tx bun.IDB, principal Principal) error {
	now := time.Now().UTC()

	var err error
	switch p := principal.(type) {
	case AdminAccount:
		p.User.Role = RoleAdmin
		p.User.CreatedAt, p.User.UpdatedAt = &now, &now
		_, err = tx.NewInsert().Model(p.User).Exec(ctx)
	case StudentAccount:
		p.User.Role = RoleStudent
		p.User.CreatedAt, p.User.UpdatedAt = &now, &now
		_, err = tx.NewInsert().Model(p.User).Exec(ctx)
	case TeacherAccount:
		p.Teacher.CreatedAt, p.Teacher.UpdatedAt = &now, &now
		_, err = tx.NewInsert().Model(p.Teacher).Exec(ctx)
	default:
		return ErrUnknownKind
	}

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create "+string(principal.Kind())+" account")
	}
	return nil
}

var profileColumns = []string{
	"email",
	"first_name",
	"last_name",
	"is_active",
	"password_hash",
	"password_reset_token",
	"password_reset_token_expiry",
	"updated_at",
}

func (r *principals) UpdateProfileTx(ctx context.Context, tx bun.IDB, principal Principal) error {
	now := time.Now().UTC()

	var res sql.Result
	var err error
	switch p := principal.(type) {
	case AdminAccount:
		p.User.UpdatedAt = &now
		res, err = tx.NewUpdate().Model(p.User).Column(profileColumns...).WherePK().Exec(ctx)
	case StudentAccount:
		p.User.UpdatedAt = &now
		res, err = tx.NewUpdate().Model(p.User).Column(profileColumns...).WherePK().Exec(ctx)
	case TeacherAccount:
		p.Teacher.UpdatedAt = &now
		res, err = tx.NewUpdate().Model(p.Teacher).Column(profileColumns...).WherePK().Exec(ctx)
	default:
		return ErrUnknownKind
	}

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update "+string(principal.Kind())+" account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// ConsumeResetTokenTx stores the new hash, clears the token and activates the
// account, but only while the stored token digest still equals digest. It
// reports false when another request consumed or replaced the token first.
func (r *principals) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID, digest, passwordHash string, at time.Time) (bool, error) {
	var q *bun.UpdateQuery
	switch kind {
	case KindAdmin, KindStudent:
		q = tx.NewUpdate().Model((*User)(nil)).Where("user_role = ?", kind.Role())
	case KindTeacher:
		q = tx.NewUpdate().Model((*Teacher)(nil))
	default:
		return false, ErrUnknownKind
	}

	res, err := q.
		Set("password_hash = ?", passwordHash).
		Set("password_reset_token = NULL").
		Set("password_reset_token_expiry = NULL").
		Set("is_active = ?", true).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("password_reset_token = ?", digest).
		Exec(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume setup token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	return n == 1, nil
}

func (r *principals) TrackLoginAttemptTx(ctx context.Context, tx bun.IDB, principal Principal, success bool, at time.Time) error {
	var q *bun.UpdateQuery
	switch principal.Kind() {
	case KindAdmin, KindStudent:
		q = tx.NewUpdate().Model((*User)(nil))
	case KindTeacher:
		q = tx.NewUpdate().Model((*Teacher)(nil))
	default:
		return ErrUnknownKind
	}

	if success {
		q = q.Set("login_attempts = 0").Set("loggedin_at = ?", at.UTC())
	} else {
		q = q.Set("login_attempts = login_attempts + 1").Set("login_attempt_at = ?", at.UTC())
	}

	if _, err := q.Where("id = ?", principal.UUID()).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login attempt")
	}
	return nil
}

func (r *principals) DeleteTx(ctx context.Context, tx bun.IDB, kind PrincipalKind, id uuid.UUID) error {
	var res sql.Result
	var err error

	switch kind {
	case KindAdmin, KindStudent:
		res, err = tx.NewDelete().
			Model((*User)(nil)).
			Where("id = ?", id).
			Where("user_role = ?", kind.Role()).
			Exec(ctx)
	case KindTeacher:
		if _, err = tx.NewDelete().
			Model((*TeacherSubject)(nil)).
			Where("teacher_id = ?", id).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete teacher subjects")
		}
		res, err = tx.NewDelete().
			Model((*Teacher)(nil)).
			Where("id = ?", id).
			Exec(ctx)
	default:
		return ErrUnknownKind
	}

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete "+string(kind)+" account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func wrapUser(u *User) Principal {
	if u.Role == RoleAdmin {
		return AdminAccount{User: u}
	}
	return StudentAccount{User: u}
}

func notFoundOr(err error, kind PrincipalKind, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPrincipalNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to "+op+" for "+string(kind))
}

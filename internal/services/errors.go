package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/taskpulse/pkg/errors"
)

type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintUnique
	constraintForeignKey
)

// ErrDanglingReference reports a write pointing at a user or task that no longer exists.
var ErrDanglingReference = apperrors.NewBadRequest("Referenced record does not exist")

// classifyConstraint maps vendor constraint failures onto one vocabulary. SQLite only
// reports them in the message text.
func classifyConstraint(err error) constraintKind {
	if err == nil {
		return constraintNone
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return constraintUnique
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return constraintForeignKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		switch pgErr.Code {
		case "23505":
			return constraintUnique
		case "23503":
			return constraintForeignKey
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		switch myErr.Number {
		case 1062:
			return constraintUnique
		case 1451, 1452:
			return constraintForeignKey
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unique constraint"), strings.Contains(lower, "duplicate"):
		return constraintUnique
	case strings.Contains(lower, "foreign key constraint"):
		return constraintForeignKey
	}
	return constraintNone
}

// translateWriteError turns a failed insert or update into an AppError clients can act
// on. conflict is returned for uniqueness violations; anything unrecognised is wrapped
// with op for the logs.
func translateWriteError(err error, op string, conflict *apperrors.AppError) error {
	switch classifyConstraint(err) {
	case constraintUnique:
		if conflict != nil {
			return conflict
		}
		return apperrors.ErrConflict
	case constraintForeignKey:
		return ErrDanglingReference
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

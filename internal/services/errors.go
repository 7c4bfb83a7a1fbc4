package services

import (
	"errors"
	"fmt"

	domain "github.com/marketstall/api/internal/domain"
	"github.com/marketstall/api/internal/repositories"
)

var (
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrNotFound indicates the referenced order, item, or refund request does not exist.
	ErrNotFound = errors.New("order: not found")
	// ErrForbidden indicates a role or ownership mismatch for the attempted operation.
	ErrForbidden = errors.New("order: forbidden")
	// ErrConflict indicates an illegal transition, a terminal state, a concurrent-write
	// race, or a duplicate open refund. Callers may retry after re-reading.
	ErrConflict = errors.New("order: conflict")
	// ErrDependencyFailure indicates an inventory or payment adapter failure. The
	// attempted transition was fully aborted; callers can retry safely.
	ErrDependencyFailure = errors.New("order: dependency failure")
)

// transitionConflict wraps ErrConflict with the item id and attempted transition
// so callers have enough detail for audit logging and retry decisions.
func transitionConflict(itemID string, from, to domain.ItemStatus, detail string) error {
	return fmt.Errorf("%w: item %s: %s to %s: %s", ErrConflict, itemID, from, to, detail)
}

func transitionForbidden(itemID string, actor domain.Actor, to domain.ItemStatus) error {
	return fmt.Errorf("%w: item %s: %s %s may not set %s", ErrForbidden, itemID, actor.Role, actor.UserID, to)
}

// mapRepositoryError translates persistence failures into the service taxonomy.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDependencyFailure, err)
		}
	}

	return err
}

package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

// ErrRowPolicy mirrors the hosted backend's owner-only insert rule.
var ErrRowPolicy = errors.New("new row violates row-level security policy")

// CheckOwner applies the owner rule self-hosted backends enforce on insert:
// user_id must be set and must be the caller.
func CheckOwner(caller Caller, rec core.Record) error {
	owner := rec.Base().UserID
	if owner == "" {
		return fmt.Errorf("insert %s: user_id is required", rec.Kind())
	}
	if owner != caller.User.ID {
		return fmt.Errorf("insert %s: %w", rec.Kind(), ErrRowPolicy)
	}
	return nil
}

// SortNewestFirst orders records by creation time, newest first, breaking
// ties by descending id.
func SortNewestFirst[T core.Record](recs []T) {
	slices.SortStableFunc(recs, func(a, b T) int {
		ma, mb := a.Base(), b.Base()
		if c := mb.Created().Compare(ma.Created()); c != 0 {
			return c
		}
		switch {
		case ma.ID > mb.ID:
			return -1
		case ma.ID < mb.ID:
			return 1
		}
		return 0
	})
}

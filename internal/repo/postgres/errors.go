package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diagnosis/tourbook/internal/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
	invalidText         = "22P02"
)

// Unique constraints name the API field that clashed.
var uniqueFields = map[string]string{
	"users_email_key":                  "email",
	"tours_name_key":                   "name",
	"tours_slug_key":                   "slug",
	"reviews_tour_id_user_id_key":      "tour, user",
	"bookings_checkout_session_id_key": "checkoutSessionId",
}

// Foreign keys name the referenced resource.
var foreignKeys = map[string]string{
	"reviews_tour_id_fkey":  "tour",
	"reviews_user_id_fkey":  "user",
	"bookings_tour_id_fkey": "tour",
	"bookings_user_id_fkey": "user",
}

var checkMessages = map[string]string{
	"tours_price_discount_check": "Discount price should be below regular price",
	"tours_difficulty_check":     "Difficulty is either: easy, medium, difficult",
	"users_role_check":           "Role is either: user, guide, lead-guide or admin",
	"reviews_rating_check":       "Rating must be between 1 and 5",
}

// mapError turns constraint violations into ValidationErrors. Anything else
// is returned unchanged.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case uniqueViolation:
		field, ok := uniqueFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ColumnName
		}
		if field == "" {
			field = "value"
		}
		return apperr.Duplicate(field)
	case foreignKeyViolation:
		ref, ok := foreignKeys[pgErr.ConstraintName]
		if !ok {
			ref = "record"
		}
		// Deleting a parent and inserting an orphan both land here.
		if strings.HasPrefix(pgErr.Message, "update or delete") {
			return apperr.Validation("Invalid "+ref+": referenced by existing records", apperr.Field(ref, "still referenced"))
		}
		return apperr.Validation("Invalid "+ref+": no such record", apperr.Field(ref, "does not exist"))
	case checkViolation:
		msg, ok := checkMessages[pgErr.ConstraintName]
		if !ok {
			msg = "Invalid input data"
		}
		return apperr.Validation("Invalid input data. "+msg, apperr.Field(pgErr.ConstraintName, msg))
	case invalidText:
		return apperr.Validation("Invalid input data. "+pgErr.Message, apperr.Field("input", pgErr.Message))
	}
	return err
}

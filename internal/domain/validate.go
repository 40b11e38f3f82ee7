package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"

	"github.com/diagnosis/tourbook/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateGeoPoint, GeoPoint{})
	return v
}

func validateGeoPoint(sl validator.StructLevel) {
	p := sl.Current().Interface().(GeoPoint)
	if len(p.Coordinates) != 2 {
		sl.ReportError(p.Coordinates, "coordinates", "Coordinates", "lnglat", "")
		return
	}
	if p.Lng() < -180 || p.Lng() > 180 || p.Lat() < -90 || p.Lat() > 90 {
		sl.ReportError(p.Coordinates, "coordinates", "Coordinates", "lnglat", "")
	}
}

type message func(fe validator.FieldError) string

func text(s string) message {
	return func(validator.FieldError) string { return s }
}

// Lookup is "Struct.Field|tag" first, then "Field|tag".
var messages = map[string]message{
	"Name|required":            text("Please tell us your name!"),
	"Name|min":                 text("A name must have more or equal than 3 characters"),
	"Name|max":                 text("A name must have less or equal than 30 characters"),
	"Email|required":           text("Please provide your email"),
	"Email|email":              text("Please provide a valid email"),
	"Role|required":            text("A user must have a role"),
	"Role|oneof":               text("Role is either: user, guide, lead-guide or admin"),
	"Password|required":        text("Please provide a password"),
	"Password|min":             text("Your password must have at least 8 characters!"),
	"PasswordConfirm|required": text("Please confirm your password"),
	"PasswordConfirm|eqfield":  text("Passwords are not the same!"),

	"Tour.Name|required":         text("A tour must have a name"),
	"Tour.Name|min":              text("A tour name must have more or equal than 10 characters"),
	"Tour.Name|max":              text("A tour name must have less or equal than 40 characters"),
	"Tour.Duration|required":     text("A tour must have a duration"),
	"Tour.Duration|gt":           text("A tour duration must be positive"),
	"Tour.MaxGroupSize|required": text("A tour must have a group size"),
	"Tour.MaxGroupSize|gt":       text("A tour group size must be positive"),
	"Tour.Difficulty|required":   text("A tour must have a difficulty"),
	"Tour.Difficulty|oneof":      text("Difficulty is either: easy, medium, difficult"),
	"Tour.RatingsAverage|gte":    text("Rating must be above 1.0"),
	"Tour.RatingsAverage|lte":    text("Rating must be below 5.0"),
	"Tour.RatingsQuantity|gte":   text("Ratings quantity cannot be negative"),
	"Tour.Price|required":        text("A tour must have a price"),
	"Tour.Price|gt":              text("A tour price must be positive"),
	"Tour.PriceDiscount|gte":     text("A discount cannot be negative"),
	"Tour.PriceDiscount|ltfield": func(fe validator.FieldError) string {
		return fmt.Sprintf("Discount price (%v) should be below regular price", deref(fe.Value()))
	},
	"Tour.Summary|required":    text("A tour must have a summary"),
	"Tour.ImageCover|required": text("A tour must have a cover image"),
	"Coordinates|lnglat":       text("Coordinates must be [longitude, latitude]"),

	"Review.Review|required": text("Review can not be empty!"),
	"Review.Rating|required": text("A review must have a rating"),
	"Review.Rating|min":      text("Rating must be between 1 and 5"),
	"Review.Rating|max":      text("Rating must be between 1 and 5"),
	"Review.Tour|required":   text("Review must belong to a tour."),
	"Review.User|required":   text("Review must belong to a user."),

	"Booking.Tour|required":  text("Booking must belong to a Tour!"),
	"Booking.User|required":  text("Booking must belong to a User!"),
	"Booking.Price|required": text("Booking must have a price."),
	"Booking.Price|gt":       text("Booking price must be positive."),
}

var indexes = regexp.MustCompile(`\[\d+\]`)

func describe(fe validator.FieldError) string {
	ns := indexes.ReplaceAllString(fe.StructNamespace(), "")
	parts := strings.Split(ns, ".")
	if len(parts) >= 2 {
		owner, field := parts[len(parts)-2], parts[len(parts)-1]
		if m, ok := messages[owner+"."+field+"|"+fe.Tag()]; ok {
			return m(fe)
		}
	}
	if m, ok := messages[fe.StructField()+"|"+fe.Tag()]; ok {
		return m(fe)
	}
	return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
}

// fieldPath drops the root type from the namespace: "Tour.startLocation.coordinates"
// becomes "startLocation.coordinates".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}

// Validate checks v against its struct tags and reports every violation in
// one ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal(err, "validation failed")
	}

	msgs := make([]string, 0, len(verrs))
	fields := make([]goerrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := describe(fe)
		msgs = append(msgs, msg)
		fields = append(fields, apperr.Field(fieldPath(fe), msg))
	}
	return apperr.Validation("Invalid input data. "+strings.Join(msgs, ". "), fields...)
}

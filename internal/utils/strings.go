package utils

import (
	"errors"
	"strconv"
	"strings"
)

// NormalizeString trims the ends and collapses inner runs of whitespace.
func NormalizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var ErrLatLng = errors.New("expected lat,lng")

// ParseLatLng reads "lat,lng" and checks both are in range.
func ParseLatLng(s string) (lat, lng float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, ErrLatLng
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, ErrLatLng
	}
	lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, ErrLatLng
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, ErrLatLng
	}
	return lat, lng, nil
}

package server

import (
	"strconv"
	"strings"
)

const (
	defaultUsageWindowDays = 30
	defaultPage            = 1
	defaultPageLimit       = 20
)

// parseIntQuery returns def for an empty value.
func parseIntQuery(value string, def int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	return strconv.Atoi(trimmed)
}

type pageQuery struct {
	Page  int
	Limit int
}

func parsePageQuery(page, limit string) (pageQuery, error) {
	p, err := parseIntQuery(page, defaultPage)
	if err != nil {
		return pageQuery{}, newValidationError("page", "invalid_page", "page must be an integer")
	}
	l, err := parseIntQuery(limit, defaultPageLimit)
	if err != nil {
		return pageQuery{}, newValidationError("limit", "invalid_limit", "limit must be an integer")
	}
	return pageQuery{Page: p, Limit: l}, nil
}

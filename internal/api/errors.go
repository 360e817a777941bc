package api

import (
	"errors"
	"fmt"
)

var (
	errInvalidBody = errors.New(`body must be {"symbols": [...]} or a JSON array of symbols`)
	errNoSymbols   = errors.New("no symbols given")
)

type queryError struct {
	key string
}

func (e *queryError) Error() string {
	return fmt.Sprintf("query parameter %q must be a positive integer", e.key)
}

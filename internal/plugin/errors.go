package plugin

import "fmt"

// ParseError reports a single malformed declaration file. It is a value,
// not a failure: the registry logs it and excludes the file from the
// snapshot while every other file proceeds.
type ParseError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func parseErrorf(path, format string, args ...interface{}) *ParseError {
	return &ParseError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

package vocab

import (
	"errors"
	"fmt"
)

// ErrVocabularyLoad is matched by every error returned while building a
// Vocabulary. No partial vocabulary is ever returned alongside it.
var ErrVocabularyLoad = errors.New("vocabulary load error")

// LoadError describes malformed vocabulary source data.
type LoadError struct {
	Source string
	Line   int
	Msg    string
	Err    error
}

func (e *LoadError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("vocab: %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("vocab: %s: %s", loc, e.Msg)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrVocabularyLoad}
	}
	return []error{ErrVocabularyLoad, e.Err}
}

func loadErr(source string, line int, err error, format string, args ...any) error {
	return &LoadError{
		Source: source,
		Line:   line,
		Msg:    fmt.Sprintf(format, args...),
		Err:    err,
	}
}

package partition

import "fmt"

// TemplateError is returned when a directory template cannot be resolved for a record,
// e.g. because a referenced field is missing or null.
type TemplateError struct {
	Template string
	Err      error
}

func NewTemplateError(template string, err error) *TemplateError {
	return &TemplateError{
		Template: template,
		Err:      err,
	}
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("failed to resolve template %q: %s", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

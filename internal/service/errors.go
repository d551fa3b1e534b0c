package service

import "errors"

var (
	// ErrTodoNotFound is returned when a todo does not exist, is soft-deleted,
	// or belongs to another user. The three cases are deliberately
	// indistinguishable so ids cannot be enumerated across users.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrAttachmentNotFound is returned when a todo has no attachment or the
	// backing file is missing from the store.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrInvalidCredentials is returned on any login mismatch.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering with an email that is
	// already in use.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidToken is returned when an access token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError carries field-level messages for rejected input. It is
// produced before anything is persisted or written to storage.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	for _, msgs := range e.Fields {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "the given data was invalid"
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) ok() bool {
	return len(e.Fields) == 0
}

// AsValidationError unwraps err into a *ValidationError, or nil.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

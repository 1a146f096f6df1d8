package assessment

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Module identifies the LMS activity type an assessment belongs to.
type Module string

const (
	ModuleQuiz   Module = "quiz"
	ModuleAssign Module = "assign"
)

// Valid reports whether m is a module type the engine knows how to track.
func (m Module) Valid() bool {
	return m == ModuleQuiz || m == ModuleAssign
}

// ErrInvalidWindow is returned for windows that cannot be tracked.
var ErrInvalidWindow = errors.New("invalid assessment window")

// Window is the base schedule of one assessment as configured in the LMS.
// ID is the course module id, unique across module types; Instance is the id
// within the module's own table. A zero Open means the assessment has no
// configured start.
type Window struct {
	ID            int64         `validate:"gt=0"`
	Instance      int64         `validate:"gte=0"`
	Module        Module        `validate:"required"`
	CourseID      int64         `validate:"gt=0"`
	ContextID     int64         `validate:"gte=0"`
	Name          string
	Open          time.Time
	Close         time.Time
	TimeLimit     time.Duration `validate:"gte=0"`
	CourseVisible bool
}

// Tracked reports whether the window has a configured start.
func (w Window) Tracked() bool {
	return !w.Open.IsZero() && w.Open.Unix() != 0
}

// Override is a per-user schedule change. Nil fields fall back to the base window.
type Override struct {
	AssessmentID int64
	UserID       int64
	Open         *time.Time
	Close        *time.Time
	TimeLimit    *time.Duration
}

// HasOpen reports whether the override sets a usable open time.
// An explicit epoch is treated the same as no value.
func (o Override) HasOpen() bool {
	return o.Open != nil && !o.Open.IsZero() && o.Open.Unix() != 0
}

// HasClose reports whether the override sets a usable close time.
func (o Override) HasClose() bool {
	return o.Close != nil && !o.Close.IsZero() && o.Close.Unix() != 0
}

var validate = validator.New()

// Validate checks the structural fields of w and that Close does not precede Open.
func (w Window) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %d: %v", ErrInvalidWindow, w.ID, err)
	}
	if !w.Module.Valid() {
		return fmt.Errorf("%w: %d: unknown module %q", ErrInvalidWindow, w.ID, w.Module)
	}
	if w.Tracked() && !w.Close.IsZero() && w.Close.Before(w.Open) {
		return fmt.Errorf("%w: %d: close %s before open %s", ErrInvalidWindow, w.ID,
			w.Close.UTC().Format(time.RFC3339), w.Open.UTC().Format(time.RFC3339))
	}
	return nil
}

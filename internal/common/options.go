package common

import (
	"errors"
	"fmt"

	"github.com/fatih/structs"
	"github.com/rs/zerolog"
)

// Option sets a named field on a package's Options struct. Options structs
// only need to carry the field for the setters they support.
type Option func(options interface{}) error

var ErrBadOption = errors.New("bad option")

// Set assigns a named Options field by reflection. Packages defining their
// own option constructors build them on top of this.
func Set(options interface{}, name string, value interface{}) error {
	s := structs.New(options)
	field, ok := s.FieldOk(name)
	if !ok {
		return ErrBadOption
	}
	if err := field.Set(value); err != nil {
		return fmt.Errorf("%w: %s", ErrBadOption, err)
	}
	return nil
}

func OptionLogger(logger zerolog.Logger) Option {
	return func(options interface{}) error {
		return Set(options, "Logger", logger)
	}
}

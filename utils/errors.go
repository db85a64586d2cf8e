package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected interface{}, actual interface{}) error {
	return errors.Errorf("expected %s but got %s", typeName(expected), typeName(actual))
}

// NewUnimplementedInterfaceError is used when there is a failed interface check.
func NewUnimplementedInterfaceError(expected string, actual interface{}) error {
	return errors.Errorf("expected implementation of %s but got %s", expected, typeName(actual))
}

func typeName(v interface{}) string {
	if v == nil {
		return "<unknown (nil interface)>"
	}
	return fmt.Sprintf("%T", v)
}

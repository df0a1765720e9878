package activity

import (
	"errors"
	"fmt"
	"strings"
)

const keySeparator = "|"

// ErrMalformedKey is returned when a serialized ActiveProgramKey cannot be parsed.
var ErrMalformedKey = errors.New("activity: malformed active program key")

// ProgramKey identifies an open program by its normalized name.
type ProgramKey struct {
	Program string
}

// NewProgramKey builds a ProgramKey from a raw process name.
func NewProgramKey(rawProcess string) ProgramKey {
	return ProgramKey{Program: Normalize(rawProcess)}
}

// String returns the program name.
func (k ProgramKey) String() string {
	return k.Program
}

// MarshalText implements encoding.TextMarshaler.
func (k ProgramKey) MarshalText() ([]byte, error) {
	return []byte(k.Program), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ProgramKey) UnmarshalText(text []byte) error {
	k.Program = string(text)
	return nil
}

// ActiveProgramKey identifies what the user is focused on: a program plus an
// optional subprogram such as a website or project. An empty Subprogram means
// there is none.
//
// The textual form is "program" or "program|subprogram", so neither part may
// contain '|'.
type ActiveProgramKey struct {
	Program    string
	Subprogram string
}

// NewActiveProgramKey validates both parts and returns the key.
func NewActiveProgramKey(program, subprogram string) (ActiveProgramKey, error) {
	if strings.Contains(program, keySeparator) {
		return ActiveProgramKey{}, fmt.Errorf("%w: program %q contains %q", ErrMalformedKey, program, keySeparator)
	}
	if strings.Contains(subprogram, keySeparator) {
		return ActiveProgramKey{}, fmt.Errorf("%w: subprogram %q contains %q", ErrMalformedKey, subprogram, keySeparator)
	}
	return ActiveProgramKey{Program: program, Subprogram: subprogram}, nil
}

// ParseActiveProgramKey decodes the textual form produced by String.
// A trailing separator with no subprogram decodes as no subprogram.
func ParseActiveProgramKey(s string) (ActiveProgramKey, error) {
	parts := strings.Split(s, keySeparator)
	switch len(parts) {
	case 1:
		return ActiveProgramKey{Program: parts[0]}, nil
	case 2:
		return ActiveProgramKey{Program: parts[0], Subprogram: parts[1]}, nil
	default:
		return ActiveProgramKey{}, fmt.Errorf("%w: %q contains more than one %q", ErrMalformedKey, s, keySeparator)
	}
}

// HasSubprogram reports whether the key carries a subprogram label.
func (k ActiveProgramKey) HasSubprogram() bool {
	return k.Subprogram != ""
}

// Coarse drops the subprogram.
func (k ActiveProgramKey) Coarse() ProgramKey {
	return ProgramKey{Program: k.Program}
}

func (k ActiveProgramKey) String() string {
	if k.Subprogram == "" {
		return k.Program
	}
	return k.Program + keySeparator + k.Subprogram
}

// MarshalText implements encoding.TextMarshaler.
func (k ActiveProgramKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActiveProgramKey) UnmarshalText(text []byte) error {
	parsed, err := ParseActiveProgramKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

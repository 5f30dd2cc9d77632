package cpu

import (
	"errors"

	"github.com/ezrec/avc2/translate"
)

var f = translate.From

var (
	// Machine faults
	ErrDivideByZero = errors.New(f("divide by zero"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrMacroRecursion     = errors.New(f(".macro expansion too deep"))
	ErrLabelSyntax        = errors.New(f("label syntax"))
	ErrStringSyntax       = errors.New(f(".string syntax"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
	ErrValueRange         = errors.New(f("value out of range"))
	ErrRelativeRange      = errors.New(f("relative target out of range"))
	ErrRelativeWide       = errors.New(f("relative label in a 16-bit literal"))
	ErrAbsoluteNarrow     = errors.New(f("absolute label in an 8-bit literal"))
	ErrProgramTooLarge    = errors.New(f("program too large"))
)

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

// ErrOpcode identifies the opcode that faulted.
type ErrOpcode struct {
	Pc   uint16
	Code Code
}

func (eo ErrOpcode) Error() string {
	return f("opcode 0x%02x %v at 0x%04x", uint8(eo.Code), eo.Code.String(), eo.Pc)
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseCharacter string

func (err ErrParseCharacter) Error() string {
	return f("'%v' is not a character", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err ErrMacro) Unwrap() error {
	return err.Err
}

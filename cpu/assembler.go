// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/avc2/internal"
	"github.com/ezrec/avc2/memory"

	device "github.com/ezrec/avc2/io"
)

const (
	MACRO_DEPTH = 16 // Maximum nesting of macro expansions.
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

var (
	reCharacter = regexp.MustCompile(`'\\?[^']'`)
	reParen     = regexp.MustCompile(`\$\([^\$]*\)`)
	reQuoted    = regexp.MustCompile(`"(?:\\.|[^"\\])*"`)
	reWord      = regexp.MustCompile(`"(?:\\.|[^"\\])*"|\S+`)
	reLabel     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// sysEquate returns the predefined system equates.
func sysEquate() (equate map[string]string) {
	equate = maps.Collect(internal.IterSeq2Concat(Defines(), device.Defines()))
	equate["LINENO"] = "0"
	return
}

// Assembler is a single pass macro assembler for the processor.
// Label references are resolved by a link pass after the last line.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Opcode  []Opcode // List of generated opcodes.

	predefine map[string]string   // Predefines
	Label     map[string]uint16   // Map of labels to addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	expansions int // Macro expansions so far, for local labels.
	depth      int // Current macro nesting.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value int, err error) {
	invert := false
	if word[0] == '~' && len(word) > 1 {
		invert = true
		word = word[1:]
	}
	if word[0] == '\'' {
		// Character quotes should have been expanded into
		// values in parseLine()
		err = ErrParseCharacter(word)
		return
	}
	v64, err := strconv.ParseInt(word, 0, 32)
	if err != nil {
		err = ErrParseNumber(word)
		return
	}

	value = int(v64)
	if invert {
		value = ^value
	}

	return
}

// valueIn returns the value of a word, checked against a bit width.
// Negative values are accepted as two's complement.
func (asm *Assembler) valueIn(word string, bits int) (value uint16, err error) {
	v, err := asm.valueOf(word)
	if err != nil {
		return
	}

	limit := 1 << bits
	if v < -(limit/2) || v >= limit {
		err = ErrValueRange
		return
	}

	value = uint16(v) & uint16(limit-1)
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var v int
		v, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates.
			continue
		}
		pred[key] = starlark.MakeInt(v)
	}
	err = nil
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = int(st_int64)
	return
}

// character replaces a quoted character with its value.
func character(word string) string {
	str := word[1 : len(word)-1]
	if str[0] == '\\' {
		switch str[1:] {
		case "\\":
			str = "\\"
		case "0":
			str = "\000"
		case "n":
			str = "\n"
		case "r":
			str = "\r"
		case "t":
			str = "\t"
		case "e":
			str = "\033"
		default:
			return word
		}
	} else if len(str) != 1 {
		return word
	}
	return fmt.Sprintf("%v", str[0])
}

// outsideQuotes applies edit to the text of a line that is not within
// a double quoted string.
func outsideQuotes(line string, edit func(text string) string) string {
	var out strings.Builder

	last := 0
	for _, loc := range reQuoted.FindAllStringIndex(line, -1) {
		out.WriteString(edit(line[last:loc[0]]))
		out.WriteString(line[loc[0]:loc[1]])
		last = loc[1]
	}
	out.WriteString(edit(line[last:]))

	return out.String()
}

// stripComment removes a ';' comment, ignoring quoted semicolons.
func stripComment(text string) string {
	var quote byte
	for n := 0; n < len(text); n++ {
		c := text[n]
		switch {
		case quote != 0 && c == '\\':
			n++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '"' || c == '\'':
			quote = c
		case c == ';':
			return text[:n]
		}
	}

	return text
}

// parseLine parses a single line into words, handling equates, labels
// and macro expansion.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	line = outsideQuotes(line, func(text string) string {
		// Do 'x' evaluations
		text = reCharacter.ReplaceAllStringFunc(text, character)

		// Do $() evaluations
		return reParen.ReplaceAllStringFunc(text, func(str string) string {
			value, _err := asm.parenEval(str[2 : len(str)-1])
			if _err != nil {
				err = _err
			}
			return fmt.Sprintf("%v", value)
		})
	})
	if err != nil {
		return
	}

	words = reWord.FindAllString(line, -1)
	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		value := words[2]
		equate, ok := asm.Equate[value]
		if ok {
			value = equate
		}
		asm.Equate[words[1]] = value
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		if !reLabel.MatchString(label) {
			err = ErrLabelSyntax
			return
		}
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]uint16, 16)
		}
		asm.Label[label] = asm.currentAddress()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		if asm.depth >= MACRO_DEPTH {
			err = ErrMacroRecursion
			return
		}

		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = args[n]
		}
		asm.depth++
		defer func() {
			asm.Equate = old_equate
			asm.depth--
		}()

		// '$$' in a macro body makes a label local to the expansion.
		asm.expansions++
		local := fmt.Sprintf("%v_%v_", name, asm.expansions)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "$$", local)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentAddress gets the address of the next opcode.
func (asm *Assembler) currentAddress() uint16 {
	if len(asm.Opcode) == 0 {
		return memory.LOAD_ADDRESS
	}

	return asm.Opcode[len(asm.Opcode)-1].End()
}

// size is the number of bytes assembled so far.
func (asm *Assembler) size() (size int) {
	for _, op := range asm.Opcode {
		size += len(op.Bytes)
	}
	return
}

// Parse parses an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = sysEquate()
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}
	asm.expansions = 0
	asm.depth = 0

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line = strings.TrimSpace(stripComment(text))
		words := reWord.FindAllString(line, -1)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	if asm.size() > memory.ROM_LIMIT {
		err = ErrProgramTooLarge
		return
	}

	// Final linking of labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		for _, link := range op.Links {
			err = asm.link(op, link)
			if err != nil {
				lineno = op.LineNo
				line = strings.Join(op.Words, " ")
				return
			}
		}
	}

	prog = &Program{
		Opcodes: slices.Clone(asm.Opcode),
	}

	return
}

// link resolves a label reference into the bytes of an opcode.
func (asm *Assembler) link(op *Opcode, link Link) (err error) {
	addr, ok := asm.Label[link.Label]
	if !ok {
		err = ErrLabelMissing(link.Label)
		return
	}

	if !link.Relative {
		op.Bytes[link.Offset] = internal.HighByte(addr)
		op.Bytes[link.Offset+1] = internal.LowByte(addr)
		return
	}

	// Relative to the instruction following the literal.
	offset := int(addr) - int(op.End())
	if offset < -128 || offset > 127 {
		err = ErrRelativeRange
		return
	}
	op.Bytes[link.Offset] = uint8(int8(offset))

	return
}

// operand encodes a literal operand, which may be a label reference.
func (asm *Assembler) operand(word string, wide bool, offset int) (data []byte, links []Link, err error) {
	if label, ok := strings.CutPrefix(word, "@"); ok {
		if wide {
			err = ErrRelativeWide
			return
		}
		if !reLabel.MatchString(label) {
			err = ErrLabelSyntax
			return
		}
		data = []byte{0}
		links = []Link{{Offset: offset, Label: label, Relative: true}}
		return
	}

	if reLabel.MatchString(word) {
		if !wide {
			err = ErrAbsoluteNarrow
			return
		}
		data = []byte{0, 0}
		links = []Link{{Offset: offset, Label: word}}
		return
	}

	if wide {
		var value uint16
		value, err = asm.valueIn(word, 16)
		if err != nil {
			return
		}
		data = []byte{internal.HighByte(value), internal.LowByte(value)}
		return
	}

	value, err := asm.valueIn(word, 8)
	if err != nil {
		return
	}
	data = []byte{uint8(value)}

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var data []byte
	var links []Link

	// no-op
	if len(words) == 0 {
		return
	}

	defer func() {
		if err != nil || len(data) == 0 {
			return
		}
		opcode := Opcode{LineNo: lineno, Address: asm.currentAddress(), Words: words, Bytes: data, Links: links}
		asm.Opcode = append(asm.Opcode, opcode)
	}()

	args := words[1:]

	switch words[0] {
	case ".byte":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, arg := range args {
			var value uint16
			value, err = asm.valueIn(arg, 8)
			if err != nil {
				return
			}
			data = append(data, uint8(value))
		}
	case ".word":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, arg := range args {
			var word []byte
			var link []Link
			word, link, err = asm.operand(arg, true, len(data))
			if err != nil {
				return
			}
			data = append(data, word...)
			links = append(links, link...)
		}
	case ".string":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, arg := range args {
			var str string
			str, err = strconv.Unquote(arg)
			if err != nil || arg[0] != '"' {
				err = ErrStringSyntax
				return
			}
			data = append(data, str...)
		}
	default:
		var code Code
		code, err = ParseCode(words[0])
		if err != nil {
			return
		}

		data = []byte{byte(code)}
		if !code.IsLiteral() {
			if len(args) > 0 {
				err = ErrOpcodeExtraArgs
			}
			return
		}

		switch {
		case len(args) == 0:
			err = ErrOpcodeValueMissing
			return
		case len(args) > 1:
			err = ErrOpcodeExtraArgs
			return
		}

		var operand []byte
		operand, links, err = asm.operand(args[0], code.Wide(), 1)
		if err != nil {
			return
		}
		data = append(data, operand...)
	}

	return
}

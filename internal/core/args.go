package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Args holds parsed arguments by parameter name.
type Args map[string]any

// String returns a string argument, or "" when absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Int returns an int argument and whether it was given.
func (a Args) Int(name string) (int, bool) {
	n, ok := a[name].(int)
	return n, ok
}

// Has reports whether an optional argument was given.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// ParseArgs parses raw according to params.
func ParseArgs(cmd string, params []Param, raw string) (Args, error) {
	args := Args{}
	v := &argView{s: raw}

	for _, p := range params {
		if p.Kind == ParamRest {
			rest := v.rest()
			if rest == "" {
				if p.Optional {
					return args, nil
				}
				return nil, missing(p)
			}
			args[p.Name] = rest
			return args, nil
		}

		tok, ok, err := v.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if p.Optional {
				continue
			}
			return nil, missing(p)
		}

		switch p.Kind {
		case ParamInt:
			n, err := strconv.Atoi(tok)
			if err != nil {
				return nil, &UserInputError{
					Param:  p.Name,
					Reason: fmt.Sprintf("Converting to \"int\" failed for parameter %q.", p.Name),
				}
			}
			args[p.Name] = n
		default:
			args[p.Name] = tok
		}
	}

	if v.rest() != "" {
		return nil, &UserInputError{Reason: fmt.Sprintf("Too many arguments passed to %s", cmd)}
	}
	return args, nil
}

func missing(p Param) error {
	return &UserInputError{
		Param:  p.Name,
		Reason: fmt.Sprintf("%s is a required argument that is missing.", p.Name),
	}
}

// argView walks a raw argument string word by word.
type argView struct {
	s   string
	pos int
}

func (v *argView) skipSpace() {
	for v.pos < len(v.s) && isASCIISpace(v.s[v.pos]) {
		v.pos++
	}
}

// next returns the next word. Double quotes group words; \" escapes a quote
// inside a quoted word.
func (v *argView) next() (string, bool, error) {
	v.skipSpace()
	if v.pos >= len(v.s) {
		return "", false, nil
	}

	if v.s[v.pos] != '"' {
		start := v.pos
		for v.pos < len(v.s) && !isASCIISpace(v.s[v.pos]) {
			v.pos++
		}
		return v.s[start:v.pos], true, nil
	}

	var b strings.Builder
	v.pos++ // opening quote
	for v.pos < len(v.s) {
		ch := v.s[v.pos]
		switch {
		case ch == '\\' && v.pos+1 < len(v.s) && v.s[v.pos+1] == '"':
			b.WriteByte('"')
			v.pos += 2
		case ch == '"':
			v.pos++
			if v.pos < len(v.s) && !isASCIISpace(v.s[v.pos]) {
				return "", false, &UserInputError{Reason: "Expected space after closing quotation"}
			}
			return b.String(), true, nil
		default:
			b.WriteByte(ch)
			v.pos++
		}
	}
	return "", false, &UserInputError{Reason: "Expected closing \"."}
}

func (v *argView) rest() string {
	v.skipSpace()
	return strings.TrimRightFunc(v.s[v.pos:], unicode.IsSpace)
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

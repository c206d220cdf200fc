// Copyright 2023 The mergetool Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package deps

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/android-webview/mergetool/internal/errors"
)

// The manifest is written as a sequence of Python assignments, but only a
// declarative subset is accepted: object, array, string and number
// literals, string concatenation with "+", and exactly two call forms,
// Var("name") and From("module"). Anything else is a parse error. This
// avoids evaluating the manifest as a program while staying compatible
// with the subset upstream actually uses.

type token int

const (
	tokEOF token = iota
	tokIdent
	tokString
	tokNumber
	tokLBrace
	tokRBrace
	tokLBrack
	tokRBrack
	tokLParen
	tokRParen
	tokComma
	tokColon
	tokPlus
	tokAssign
)

func (t token) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBrack:
		return "'['"
	case tokRBrack:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokColon:
		return "':'"
	case tokPlus:
		return "'+'"
	case tokAssign:
		return "'='"
	}
	return "unknown token"
}

type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

// next returns the next token and its literal text.
func (l *lexer) next() (token, string, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return tokEOF, "", nil
	}
	c := l.src[l.pos]
	switch {
	case c == '{':
		l.pos++
		return tokLBrace, "{", nil
	case c == '}':
		l.pos++
		return tokRBrace, "}", nil
	case c == '[':
		l.pos++
		return tokLBrack, "[", nil
	case c == ']':
		l.pos++
		return tokRBrack, "]", nil
	case c == '(':
		l.pos++
		return tokLParen, "(", nil
	case c == ')':
		l.pos++
		return tokRParen, ")", nil
	case c == ',':
		l.pos++
		return tokComma, ",", nil
	case c == ':':
		l.pos++
		return tokColon, ":", nil
	case c == '+':
		l.pos++
		return tokPlus, "+", nil
	case c == '=':
		l.pos++
		return tokAssign, "=", nil
	case c == '\'' || c == '"':
		return l.scanString(c)
	case c >= '0' && c <= '9' || c == '-':
		return l.scanNumber()
	case isIdentStart(rune(c)):
		return l.scanIdent()
	}
	return tokEOF, "", l.errorf("unexpected character %q", c)
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) scanString(quote byte) (token, string, error) {
	l.pos++ // consume the opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.pos++
			return tokString, b.String(), nil
		case '\\':
			l.pos++
			if l.pos >= len(l.src) {
				return tokEOF, "", l.errorf("unterminated string")
			}
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				return tokEOF, "", l.errorf("unsupported escape \\%c", e)
			}
			l.pos++
		case '\n':
			return tokEOF, "", l.errorf("unterminated string")
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return tokEOF, "", l.errorf("unterminated string")
}

func (l *lexer) scanNumber() (token, string, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.pos++
	}
	if l.pos == start || (l.pos == start+1 && l.src[start] == '-') {
		return tokEOF, "", l.errorf("malformed number")
	}
	return tokNumber, l.src[start:l.pos], nil
}

func (l *lexer) scanIdent() (token, string, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	return tokIdent, l.src[start:l.pos], nil
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", l.line, fmt.Sprintf(format, args...))
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// parser evaluates the restricted manifest grammar. Values are one of
// string, int, Value (a From reference), map[string]interface{} or
// []interface{}.
type parser struct {
	lex *lexer
	tok token
	lit string

	// locals holds the top-level assignments evaluated so far. Var()
	// lookups consult customVars first, then the "vars" entry of locals.
	locals     map[string]interface{}
	customVars map[string]string
}

func newParser(src string, customVars map[string]string) (*parser, error) {
	p := &parser{
		lex:        newLexer(src),
		locals:     map[string]interface{}{},
		customVars: customVars,
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, lit, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok, p.lit = tok, lit
	return nil
}

func (p *parser) expect(tok token) (string, error) {
	if p.tok != tok {
		return "", p.lex.errorf("expected %s, found %s", tok, p.tok)
	}
	lit := p.lit
	if err := p.advance(); err != nil {
		return "", err
	}
	return lit, nil
}

// parseFile parses the whole manifest: a sequence of "name = expr"
// assignments.
func (p *parser) parseFile() error {
	for p.tok != tokEOF {
		name, err := p.expect(tokIdent)
		if err != nil {
			return err
		}
		if _, err := p.expect(tokAssign); err != nil {
			return err
		}
		v, err := p.parseExpr()
		if err != nil {
			return err
		}
		p.locals[name] = v
	}
	return nil
}

// parseExpr parses a term optionally followed by "+" concatenations. Only
// strings concatenate.
func (p *parser) parseExpr() (interface{}, error) {
	v, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok == tokPlus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		ls, lok := v.(string)
		rs, rok := rhs.(string)
		if !lok || !rok {
			return nil, p.lex.errorf("'+' is only defined for strings")
		}
		v = ls + rs
	}
	return v, nil
}

func (p *parser) parseTerm() (interface{}, error) {
	switch p.tok {
	case tokString:
		lit := p.lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		return lit, nil
	case tokNumber:
		lit := p.lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(lit)
		if err != nil {
			return nil, p.lex.errorf("malformed number %q", lit)
		}
		return n, nil
	case tokLBrace:
		return p.parseDict()
	case tokLBrack:
		return p.parseList()
	case tokIdent:
		return p.parseCall()
	}
	return nil, p.lex.errorf("unexpected %s in expression", p.tok)
}

// parseCall handles the only two callable forms, Var(name) and
// From(module). Any other identifier is rejected.
func (p *parser) parseCall() (interface{}, error) {
	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if name != "Var" && name != "From" {
		return nil, p.lex.errorf("unknown name %q; only Var(...) and From(...) may be called", name)
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	arg, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if name == "From" {
		return FromRef(arg), nil
	}
	return p.lookupVar(arg)
}

// lookupVar implements the Var syntax: the caller-supplied override wins,
// then the manifest's own vars table, else the variable is undefined.
func (p *parser) lookupVar(name string) (interface{}, error) {
	if v, ok := p.customVars[name]; ok {
		return v, nil
	}
	if vars, ok := p.locals["vars"].(map[string]interface{}); ok {
		if v, ok := vars[name]; ok {
			return v, nil
		}
	}
	return nil, p.lex.errorf("var is not defined: %s", name)
}

func (p *parser) parseDict() (interface{}, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	d := map[string]interface{}{}
	for p.tok != tokRBrace {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, p.lex.errorf("dict keys must be strings")
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		d[ks] = val
		if p.tok == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *parser) parseList() (interface{}, error) {
	if _, err := p.expect(tokLBrack); err != nil {
		return nil, err
	}
	var items []interface{}
	for p.tok != tokRBrack {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.tok == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokRBrack); err != nil {
		return nil, err
	}
	return items, nil
}

// Parse evaluates the manifest text and extracts the tables this tool
// needs. customVars overrides the manifest's own vars table during Var()
// lookup and is normally empty.
func Parse(src string, customVars map[string]string) (*Manifest, error) {
	const op errors.Op = "deps.Parse"
	p, err := newParser(src, customVars)
	if err != nil {
		return nil, errors.E(op, errors.Manifest, err)
	}
	if err := p.parseFile(); err != nil {
		return nil, errors.E(op, errors.Manifest, err)
	}

	m := &Manifest{
		Vars:   map[string]string{},
		Deps:   map[string]Value{},
		DepsOS: map[string]map[string]Value{},
	}
	if vars, ok := p.locals["vars"].(map[string]interface{}); ok {
		for k, v := range vars {
			if s, ok := v.(string); ok {
				m.Vars[k] = s
			}
		}
	}
	deps, err := toDepsTable(p.locals["deps"])
	if err != nil {
		return nil, errors.E(op, errors.Manifest, err)
	}
	m.Deps = deps
	if depsOS, ok := p.locals["deps_os"].(map[string]interface{}); ok {
		for osName, t := range depsOS {
			table, err := toDepsTable(t)
			if err != nil {
				return nil, errors.E(op, errors.Manifest,
					fmt.Errorf("deps_os[%q]: %w", osName, err))
			}
			m.DepsOS[osName] = table
		}
	}
	return m, nil
}

// toDepsTable converts an evaluated dict into a deps table. Entries must
// be pinned "url@sha1" strings or opaque From references.
func toDepsTable(v interface{}) (map[string]Value, error) {
	table := map[string]Value{}
	if v == nil {
		return table, nil
	}
	d, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("deps table must be a dict, got %T", v)
	}
	for path, entry := range d {
		switch e := entry.(type) {
		case string:
			table[path] = PinnedValue(e)
		case Value:
			table[path] = e
		default:
			return nil, fmt.Errorf("entry %q must be a string or From(...), got %T", path, entry)
		}
	}
	return table, nil
}

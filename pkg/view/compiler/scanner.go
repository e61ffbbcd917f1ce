package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

var builtinDirectives = map[string]struct{}{
	"if": {}, "elseif": {}, "else": {}, "endif": {},
	"unless": {}, "endunless": {},
	"foreach": {}, "empty": {}, "endforeach": {},
	"section": {}, "endsection": {}, "stop": {},
	"yield": {}, "extends": {}, "include": {}, "json": {},
	"verbatim": {}, "endverbatim": {},
}

// Directives that never take arguments; a following "(" is plain text.
var bareDirectives = map[string]struct{}{
	"else": {}, "endif": {}, "endunless": {}, "empty": {}, "endforeach": {},
	"endsection": {}, "stop": {}, "verbatim": {}, "endverbatim": {},
}

var foreachExpr = regexp.MustCompile(`(?s)^(.+?)\s+as\s+(\$\w+)(?:\s*=>\s*(\$\w+))?\s*$`)

type block struct {
	kind string
	line int
}

type scanner struct {
	path       string
	src        string
	pos        int
	line       int
	out        strings.Builder
	stack      []block
	extends    string
	directives map[string]DirectiveHandler
}

func (s *scanner) run() (string, error) {
	for s.pos < len(s.src) {
		rest := s.src[s.pos:]

		switch {
		case strings.HasPrefix(rest, "{{--"):
			end := strings.Index(rest[4:], "--}}")
			if end < 0 {
				return "", s.errorf(s.line, "unterminated comment")
			}
			s.advance(4 + end + 4)

		case strings.HasPrefix(rest, "@{{"):
			s.out.WriteString(`{{"{{"}}`)
			s.advance(3)

		case strings.HasPrefix(rest, "@@"):
			s.out.WriteByte('@')
			s.advance(2)
			s.emit(identLen(s.src[s.pos:]))

		case strings.HasPrefix(rest, "{!!"):
			end := strings.Index(rest[3:], "!!}")
			if end < 0 {
				return "", s.errorf(s.line, "unterminated raw echo")
			}
			expr := strings.TrimSpace(rest[3 : 3+end])
			if expr == "" {
				return "", s.errorf(s.line, "empty raw echo")
			}
			s.out.WriteString("{{raw (" + expr + ")}}")
			s.advance(3 + end + 3)

		case strings.HasPrefix(rest, "{{"):
			end := strings.Index(rest[2:], "}}")
			if end < 0 {
				return "", s.errorf(s.line, "unterminated echo")
			}
			s.emit(2 + end + 2)

		case rest[0] == '@' && s.atWordBoundary() && identLen(rest[1:]) > 0:
			if err := s.directive(); err != nil {
				return "", err
			}

		default:
			s.emit(1)
		}
	}

	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		return "", s.errorf(top.line, "unclosed @%s", top.kind)
	}

	compiled := s.out.String()
	if s.extends != "" {
		compiled = extendsPrefix + strconv.Quote(s.extends) + extendsSuffix + compiled
	}
	return compiled, nil
}

func (s *scanner) directive() error {
	rest := s.src[s.pos:]
	line := s.line
	name := rest[1 : 1+identLen(rest[1:])]
	consumed := 1 + len(name)

	_, builtin := builtinDirectives[name]
	handler, custom := s.directives[name]
	if !builtin && !custom {
		s.emit(consumed)
		return nil
	}

	var args string
	hasArgs := false
	if _, bare := bareDirectives[name]; !bare {
		j := consumed
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
			j++
		}
		if j < len(rest) && rest[j] == '(' {
			end, ok := matchParen(rest, j)
			if !ok {
				return s.errorf(line, "unbalanced parentheses in @%s", name)
			}
			args = strings.TrimSpace(rest[j+1 : end])
			hasArgs = true
			consumed = end + 1
		}
	}

	if custom && !builtin {
		s.out.WriteString(handler(args))
		s.advance(consumed)
		return nil
	}

	if name == "verbatim" {
		return s.verbatim(consumed, line)
	}

	if err := s.builtin(name, args, hasArgs, line); err != nil {
		return err
	}
	s.advance(consumed)
	return nil
}

func (s *scanner) builtin(name, args string, hasArgs bool, line int) error {
	needsArgs := func() error {
		if !hasArgs || args == "" {
			return s.errorf(line, "@%s requires an argument", name)
		}
		return nil
	}

	switch name {
	case "if":
		if err := needsArgs(); err != nil {
			return err
		}
		s.push("if", line)
		s.out.WriteString("{{if " + args + "}}")

	case "elseif":
		if err := needsArgs(); err != nil {
			return err
		}
		if err := s.expectTop(line, name, "if"); err != nil {
			return err
		}
		s.out.WriteString("{{else if " + args + "}}")

	case "else":
		if err := s.expectTop(line, name, "if", "unless"); err != nil {
			return err
		}
		s.out.WriteString("{{else}}")

	case "endif":
		if err := s.pop(line, name, "if"); err != nil {
			return err
		}
		s.out.WriteString("{{end}}")

	case "unless":
		if err := needsArgs(); err != nil {
			return err
		}
		s.push("unless", line)
		s.out.WriteString("{{if not (" + args + ")}}")

	case "endunless":
		if err := s.pop(line, name, "unless"); err != nil {
			return err
		}
		s.out.WriteString("{{end}}")

	case "foreach":
		if err := needsArgs(); err != nil {
			return err
		}
		s.push("foreach", line)
		s.out.WriteString(foreachAction(args))

	case "empty":
		if err := s.expectTop(line, name, "foreach"); err != nil {
			return err
		}
		s.out.WriteString("{{else}}")

	case "endforeach":
		if err := s.pop(line, name, "foreach"); err != nil {
			return err
		}
		s.out.WriteString("{{end}}")

	case "section":
		parts, err := s.nameAndArgs(name, args, hasArgs, line)
		if err != nil {
			return err
		}
		if len(parts) > 1 {
			s.out.WriteString("{{define " + parts[0] + "}}{{" + exprArg(parts[1]) + "}}{{end}}")
			return nil
		}
		s.push("section", line)
		s.out.WriteString("{{define " + parts[0] + "}}")

	case "endsection", "stop":
		if err := s.pop(line, name, "section"); err != nil {
			return err
		}
		s.out.WriteString("{{end}}")

	case "yield":
		parts, err := s.nameAndArgs(name, args, hasArgs, line)
		if err != nil {
			return err
		}
		s.out.WriteString("{{block " + parts[0] + " $}}")
		if len(parts) > 1 {
			s.out.WriteString("{{" + exprArg(parts[1]) + "}}")
		}
		s.out.WriteString("{{end}}")

	case "extends":
		parts, err := s.nameAndArgs(name, args, hasArgs, line)
		if err != nil {
			return err
		}
		if s.extends != "" {
			return s.errorf(line, "@extends may only appear once")
		}
		s.extends, _ = strconv.Unquote(parts[0])

	case "include":
		parts, err := s.nameAndArgs(name, args, hasArgs, line)
		if err != nil {
			return err
		}
		action := "{{include " + parts[0] + " $"
		if len(parts) > 1 {
			action += " (" + exprArg(parts[1]) + ")"
		}
		s.out.WriteString(action + "}}")

	case "json":
		if err := needsArgs(); err != nil {
			return err
		}
		s.out.WriteString("{{json (" + args + ")}}")

	case "endverbatim":
		return s.errorf(line, "@endverbatim without @verbatim")
	}

	return nil
}

func (s *scanner) verbatim(consumed, line int) error {
	body := s.src[s.pos+consumed:]
	end := strings.Index(body, "@endverbatim")
	if end < 0 {
		return s.errorf(line, "unclosed @verbatim")
	}
	s.out.WriteString(strings.ReplaceAll(body[:end], "{{", `{{"{{"}}`))
	s.advance(consumed + end + len("@endverbatim"))
	return nil
}

func (s *scanner) nameAndArgs(directive, args string, hasArgs bool, line int) ([]string, error) {
	if !hasArgs || args == "" {
		return nil, s.errorf(line, "@%s requires a name", directive)
	}
	parts := splitArgs(args)
	if len(parts) > 2 {
		return nil, s.errorf(line, "@%s takes at most two arguments", directive)
	}
	name, ok := quotedName(parts[0])
	if !ok {
		return nil, s.errorf(line, "@%s expects a quoted name, got %s", directive, parts[0])
	}
	parts[0] = name
	return parts, nil
}

func (s *scanner) push(kind string, line int) {
	s.stack = append(s.stack, block{kind: kind, line: line})
}

func (s *scanner) expectTop(line int, directive string, kinds ...string) error {
	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1].kind
		for _, kind := range kinds {
			if top == kind {
				return nil
			}
		}
	}
	return s.errorf(line, "@%s outside of @%s", directive, strings.Join(kinds, " or @"))
}

func (s *scanner) pop(line int, directive, kind string) error {
	if len(s.stack) == 0 {
		return s.errorf(line, "@%s without matching @%s", directive, kind)
	}
	top := s.stack[len(s.stack)-1]
	if top.kind != kind {
		return s.errorf(line, "@%s closes @%s opened at line %d", directive, top.kind, top.line)
	}
	s.stack = s.stack[:len(s.stack)-1]
	return nil
}

func (s *scanner) emit(n int) {
	s.out.WriteString(s.src[s.pos : s.pos+n])
	s.advance(n)
}

func (s *scanner) advance(n int) {
	s.line += strings.Count(s.src[s.pos:s.pos+n], "\n")
	s.pos += n
}

func (s *scanner) atWordBoundary() bool {
	if s.pos == 0 {
		return true
	}
	return !isIdentByte(s.src[s.pos-1])
}

func (s *scanner) errorf(line int, format string, args ...interface{}) error {
	return viewerrors.ErrSyntax(s.path, line, fmt.Sprintf(format, args...))
}

func foreachAction(args string) string {
	m := foreachExpr.FindStringSubmatch(args)
	if m == nil {
		return "{{range " + args + "}}"
	}
	if m[3] != "" {
		return "{{range " + m[2] + ", " + m[3] + " := " + strings.TrimSpace(m[1]) + "}}"
	}
	return "{{range " + m[2] + " := " + strings.TrimSpace(m[1]) + "}}"
}

// quotedName accepts 'name' or "name" and returns it as a Go string literal.
func quotedName(arg string) (string, bool) {
	if len(arg) < 2 {
		return "", false
	}
	switch arg[0] {
	case '\'':
		if arg[len(arg)-1] != '\'' {
			return "", false
		}
		return strconv.Quote(strings.ReplaceAll(arg[1:len(arg)-1], `\'`, `'`)), true
	case '"':
		value, err := strconv.Unquote(arg)
		if err != nil {
			return "", false
		}
		return strconv.Quote(value), true
	}
	return "", false
}

// exprArg rewrites single-quoted string literals into Go string literals and
// leaves every other expression alone.
func exprArg(arg string) string {
	if len(arg) >= 2 && arg[0] == '\'' {
		if quoted, ok := quotedName(arg); ok {
			return quoted
		}
	}
	return arg
}

// splitArgs splits on top-level commas, ignoring commas inside quotes and
// parentheses.
func splitArgs(args string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0

	for i := 0; i < len(args); i++ {
		ch := args[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(args[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(args[start:]))
}

// matchParen returns the index of the ')' closing the '(' at open.
func matchParen(s string, open int) (int, bool) {
	depth := 0
	var quote byte

	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func identLen(s string) int {
	n := 0
	for n < len(s) && isIdentByte(s[n]) {
		if n == 0 && s[n] >= '0' && s[n] <= '9' {
			return 0
		}
		n++
	}
	return n
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

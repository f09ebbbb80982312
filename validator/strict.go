package validator

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// tree-sitter recovers from indentation and some grammar errors without
// leaving an ERROR node. The checks below reject what the interpreter's
// own compiler would reject before running a single line.

const tabSize = 8

type indentLevel struct {
	col int
	// alt counts a tab as one column, a mismatch with col means tabs and
	// spaces were mixed ambiguously.
	alt int
}

type bracket struct {
	open      byte
	line, col int
	commas    int
	hasFor    bool
	inTarget  bool
}

// scanner is a minimal Python tokenizer that tracks logical lines,
// indentation and bracket nesting
type scanner struct {
	src       []byte
	pos       int
	line      int
	lineStart int

	indents      []indentLevel
	brackets     []*bracket
	expectIndent bool
}

func syntaxIssue(line, col int, msg string) *Issue {
	return &Issue{Kind: KindSyntax, Message: "syntax error: " + msg, Line: line, Column: col}
}

// checkTokens reports the first indentation, string or bracket error in src
func checkTokens(src []byte) *Issue {
	s := &scanner{
		src:     src,
		line:    1,
		indents: []indentLevel{{}},
	}
	if len(src) >= 3 && src[0] == 0xEF && src[1] == 0xBB && src[2] == 0xBF {
		s.pos, s.lineStart = 3, 3
	}

	for s.pos < len(s.src) {
		if issue := s.logicalLine(); issue != nil {
			return issue
		}
	}
	if s.expectIndent {
		return syntaxIssue(s.line, 1, "expected an indented block")
	}
	return nil
}

func (s *scanner) column() int {
	return s.pos - s.lineStart + 1
}

func (s *scanner) newline() {
	if s.src[s.pos] == '\r' {
		s.pos++
		if s.pos < len(s.src) && s.src[s.pos] == '\n' {
			s.pos++
		}
	} else {
		s.pos++
	}
	s.line++
	s.lineStart = s.pos
}

func (s *scanner) atNewline() bool {
	return s.pos < len(s.src) && (s.src[s.pos] == '\n' || s.src[s.pos] == '\r')
}

func (s *scanner) logicalLine() *Issue {
	col, alt := 0, 0
measure:
	for ; s.pos < len(s.src); s.pos++ {
		switch s.src[s.pos] {
		case ' ':
			col++
			alt++
		case '\t':
			col = (col/tabSize + 1) * tabSize
			alt++
		case '\f':
			col, alt = 0, 0
		default:
			break measure
		}
	}

	if s.pos >= len(s.src) {
		return nil
	}
	switch s.src[s.pos] {
	case '#':
		s.skipComment()
		fallthrough
	case '\n', '\r':
		if s.atNewline() {
			s.newline()
		}
		return nil
	}

	if issue := s.indent(col, alt); issue != nil {
		return issue
	}

	last, issue := s.statement()
	if issue != nil {
		return issue
	}
	s.expectIndent = last == ":"
	return nil
}

func (s *scanner) indent(col, alt int) *Issue {
	top := s.indents[len(s.indents)-1]
	switch {
	case col > top.col:
		if !s.expectIndent {
			return syntaxIssue(s.line, s.column(), "unexpected indent")
		}
		if alt <= top.alt {
			return syntaxIssue(s.line, s.column(), "inconsistent use of tabs and spaces in indentation")
		}
		s.indents = append(s.indents, indentLevel{col: col, alt: alt})
	case s.expectIndent:
		return syntaxIssue(s.line, s.column(), "expected an indented block")
	default:
		for len(s.indents) > 1 && col < s.indents[len(s.indents)-1].col {
			s.indents = s.indents[:len(s.indents)-1]
		}
		top = s.indents[len(s.indents)-1]
		if col != top.col {
			return syntaxIssue(s.line, s.column(), "unindent does not match any outer indentation level")
		}
		if alt != top.alt {
			return syntaxIssue(s.line, s.column(), "inconsistent use of tabs and spaces in indentation")
		}
	}
	return nil
}

// statement consumes one logical line and returns its last token
func (s *scanner) statement() (string, *Issue) {
	last := ""
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n' || c == '\r':
			s.newline()
			if len(s.brackets) == 0 {
				return last, nil
			}
		case c == ' ' || c == '\t' || c == '\f':
			s.pos++
		case c == '#':
			s.skipComment()
		case c == '\\':
			s.pos++
			if !s.atNewline() {
				return "", syntaxIssue(s.line, s.column(), "unexpected character after line continuation character")
			}
			s.newline()
		case c == '"' || c == '\'':
			if issue := s.str(); issue != nil {
				return "", issue
			}
			last = "string"
		case isIdentStart(c):
			word := s.ident()
			if s.pos < len(s.src) && (s.src[s.pos] == '"' || s.src[s.pos] == '\'') && isStringPrefix(word) {
				if issue := s.str(); issue != nil {
					return "", issue
				}
				last = "string"
				continue
			}
			s.word(word)
			last = word
		case isDigit(c) || (c == '.' && s.pos+1 < len(s.src) && isDigit(s.src[s.pos+1])):
			s.number()
			last = "number"
		case c == '(' || c == '[' || c == '{':
			s.brackets = append(s.brackets, &bracket{open: c, line: s.line, col: s.column()})
			s.pos++
			last = string(c)
		case c == ')' || c == ']' || c == '}':
			if issue := s.closeBracket(c); issue != nil {
				return "", issue
			}
			s.pos++
			last = string(c)
		case c == ',':
			if b := s.top(); b != nil && !b.inTarget {
				b.commas++
			}
			s.pos++
			last = ","
		default:
			s.pos++
			last = string(c)
		}
	}

	if b := s.top(); b != nil {
		return "", syntaxIssue(b.line, b.col, fmt.Sprintf("'%c' was never closed", b.open))
	}
	return last, nil
}

func (s *scanner) top() *bracket {
	if len(s.brackets) == 0 {
		return nil
	}
	return s.brackets[len(s.brackets)-1]
}

// word tracks comprehension clauses: a comma between "for" and "in" belongs
// to the loop target, any other comma next to a bare generator is an error.
func (s *scanner) word(w string) {
	b := s.top()
	if b == nil || b.open != '(' {
		return
	}
	switch w {
	case "for":
		b.hasFor = true
		b.inTarget = true
	case "in":
		b.inTarget = false
	}
}

func (s *scanner) closeBracket(c byte) *Issue {
	b := s.top()
	if b == nil {
		return syntaxIssue(s.line, s.column(), fmt.Sprintf("unmatched '%c'", c))
	}
	if matching(b.open) != c {
		return syntaxIssue(s.line, s.column(),
			fmt.Sprintf("closing parenthesis '%c' does not match opening parenthesis '%c'", c, b.open))
	}
	s.brackets = s.brackets[:len(s.brackets)-1]
	if b.hasFor && b.commas > 0 {
		return syntaxIssue(b.line, b.col, "generator expression must be parenthesized")
	}
	return nil
}

func matching(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

func (s *scanner) skipComment() {
	for s.pos < len(s.src) && !s.atNewline() {
		s.pos++
	}
}

func (s *scanner) ident() string {
	start := s.pos
	for s.pos < len(s.src) && (isIdentStart(s.src[s.pos]) || isDigit(s.src[s.pos])) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) number() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if !isDigit(c) && !isIdentStart(c) && c != '.' {
			return
		}
		s.pos++
	}
}

// str consumes a string literal starting at its opening quote. A backslash
// always escapes the next character, raw strings included.
func (s *scanner) str() *Issue {
	q := s.src[s.pos]
	line, col := s.line, s.column()
	triple := s.pos+2 < len(s.src) && s.src[s.pos+1] == q && s.src[s.pos+2] == q
	if triple {
		s.pos += 3
	} else {
		s.pos++
	}

	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if s.atNewline() {
				s.newline()
			} else if s.pos < len(s.src) {
				s.pos++
			}
		case c == '\n' || c == '\r':
			if !triple {
				return syntaxIssue(line, col, "unterminated string literal")
			}
			s.newline()
		case c == q:
			if !triple {
				s.pos++
				return nil
			}
			if s.pos+2 < len(s.src) && s.src[s.pos+1] == q && s.src[s.pos+2] == q {
				s.pos += 3
				return nil
			}
			s.pos++
		default:
			s.pos++
		}
	}

	if triple {
		return syntaxIssue(line, col, "unterminated triple-quoted string literal")
	}
	return syntaxIssue(line, col, "unterminated string literal")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isStringPrefix(w string) bool {
	switch len(w) {
	case 1:
		return stringPrefix(w[0])
	case 2:
		return stringPrefix(w[0]) && stringPrefix(w[1]) && lower(w[0]) != lower(w[1]) &&
			lower(w[0]) != 'u' && lower(w[1]) != 'u'
	}
	return false
}

func stringPrefix(c byte) bool {
	switch lower(c) {
	case 'r', 'u', 'b', 'f':
		return true
	}
	return false
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// blockScope tracks which enclosing constructs allow return, yield, break
// and continue
type blockScope struct {
	function bool
	loop     bool
}

// checkStatements reports the first statement that is only legal inside a
// function or loop, or a del of something that is not a name, attribute or
// subscript.
func (a *analysis) checkStatements(n *sitter.Node, sc blockScope) bool {
	switch n.Type() {
	case "function_definition", "lambda":
		sc = blockScope{function: true}
	case "class_definition":
		sc = blockScope{}
	case "return_statement":
		if !sc.function {
			a.addIssue(KindSyntax, n, "syntax error: 'return' outside function")
			return true
		}
	case "yield":
		if !sc.function {
			a.addIssue(KindSyntax, n, "syntax error: 'yield' outside function")
			return true
		}
	case "break_statement":
		if !sc.loop {
			a.addIssue(KindSyntax, n, "syntax error: 'break' outside loop")
			return true
		}
	case "continue_statement":
		if !sc.loop {
			a.addIssue(KindSyntax, n, "syntax error: 'continue' not properly in loop")
			return true
		}
	case "delete_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			target := n.NamedChild(i)
			if what := undeletable(target); what != "" {
				a.addIssue(KindSyntax, target, "syntax error: cannot delete "+what)
				return true
			}
		}
		return false
	case "for_statement", "while_statement":
		body := n.ChildByFieldName("body")
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			inner := sc
			if body != nil && c.StartByte() == body.StartByte() && c.Type() == body.Type() {
				inner.loop = true
			}
			if a.checkStatements(c, inner) {
				return true
			}
		}
		return false
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if a.checkStatements(n.Child(i), sc) {
			return true
		}
	}
	return false
}

// undeletable describes a del target the compiler rejects, "" when valid
func undeletable(n *sitter.Node) string {
	switch n.Type() {
	case "identifier", "keyword_identifier", "attribute", "subscript", "comment":
		return ""
	case "tuple", "list", "expression_list", "parenthesized_expression":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if what := undeletable(n.NamedChild(i)); what != "" {
				return what
			}
		}
		return ""
	case "call":
		return "function call"
	case "string", "concatenated_string", "integer", "float", "true", "false", "none":
		return "literal"
	default:
		return "expression"
	}
}

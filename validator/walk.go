package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

const maxSnippetLen = 30

// analysis accumulates findings for one Validate call
type analysis struct {
	src     []byte
	allowed map[string]bool

	issues     []Issue
	imports    []string
	operations []string
	seenImport map[string]bool
	seenOp     map[string]bool
}

func newAnalysis(src []byte, allowed map[string]bool) *analysis {
	return &analysis{
		src:        src,
		allowed:    allowed,
		seenImport: make(map[string]bool),
		seenOp:     make(map[string]bool),
	}
}

func (a *analysis) addIssue(kind IssueKind, n *sitter.Node, msg string) {
	issue := Issue{Kind: kind, Message: msg}
	if n != nil {
		p := n.StartPoint()
		issue.Line = int(p.Row) + 1
		issue.Column = int(p.Column) + 1
	}
	a.issues = append(a.issues, issue)
}

func (a *analysis) blockImport(module string, n *sitter.Node, msg string) {
	a.addIssue(KindImport, n, msg)
	if !a.seenImport[module] {
		a.seenImport[module] = true
		a.imports = append(a.imports, module)
	}
}

func (a *analysis) blockOperation(kind IssueKind, name string, n *sitter.Node, msg string) {
	a.addIssue(kind, n, msg)
	if !a.seenOp[name] {
		a.seenOp[name] = true
		a.operations = append(a.operations, name)
	}
}

func (a *analysis) text(n *sitter.Node) string {
	return n.Content(a.src)
}

// collectSyntaxErrors reports the outermost ERROR and MISSING nodes
func (a *analysis) collectSyntaxErrors(n *sitter.Node) {
	if n.IsMissing() {
		a.addIssue(KindSyntax, n, fmt.Sprintf("syntax error: missing %q", n.Type()))
		return
	}
	if n.Type() == "ERROR" {
		a.addIssue(KindSyntax, n, fmt.Sprintf("syntax error near %q", snippet(a.text(n))))
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		a.collectSyntaxErrors(n.Child(i))
	}
}

func (a *analysis) visit(n *sitter.Node) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if name, ok := importedModule(n.NamedChild(i), a.src); ok {
				a.checkModule(name, n.NamedChild(i))
			}
		}
		return

	case "import_from_statement":
		mod := n.ChildByFieldName("module_name")
		if mod == nil {
			return
		}
		if mod.Type() == "relative_import" {
			a.blockImport(a.text(mod), mod, fmt.Sprintf("relative import %q is not allowed", a.text(mod)))
			return
		}
		a.checkModule(a.text(mod), mod)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.StartByte() == mod.StartByte() {
				continue
			}
			if name, ok := importedModule(c, a.src); ok {
				a.checkMember(strings.SplitN(name, ".", 2)[0], nil, c)
			}
		}
		return

	case "future_import_statement":
		return

	case "print_statement":
		a.addIssue(KindSyntax, n, "Python 2 print statement is not supported, use print()")

	case "exec_statement":
		a.blockOperation(KindCall, "exec", n, "exec is not allowed (dynamic evaluation)")
		return

	case "call":
		fn := n.ChildByFieldName("function")
		if fn != nil && fn.Type() == "identifier" {
			name := a.text(fn)
			if reason, ok := blockedBuiltins[name]; ok {
				a.blockOperation(KindCall, name, fn, fmt.Sprintf("call to %s() is not allowed (%s)", name, reason))
				a.visit(n.ChildByFieldName("arguments"))
				return
			}
		}

	case "attribute":
		obj := n.ChildByFieldName("object")
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			a.checkMember(a.text(attr), obj, attr)
		}
		a.visit(obj)
		return

	case "keyword_argument":
		a.visit(n.ChildByFieldName("value"))
		return

	case "identifier":
		name := a.text(n)
		if reason, ok := blockedBuiltins[name]; ok {
			a.blockOperation(KindName, name, n, fmt.Sprintf("reference to %s is not allowed (%s)", name, reason))
		} else if blockedNames[name] {
			a.blockOperation(KindName, name, n, fmt.Sprintf("reference to %s is not allowed", name))
		}
		return
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		a.visit(n.Child(i))
	}
}

func (a *analysis) checkModule(name string, n *sitter.Node) {
	name = strings.Join(strings.Fields(name), "")
	top := strings.SplitN(name, ".", 2)[0]
	if top == allowedFutureModule {
		return
	}

	if reason, denied := deniedModules[top]; denied {
		a.blockImport(top, n, fmt.Sprintf("import of module %q is not allowed (%s)", name, reason))
		return
	}

	if !a.allowed[top] {
		a.blockImport(top, n, fmt.Sprintf("module %q is not in the list of allowed modules", name))
	}
}

// checkMember rejects member names that lead to interpreter internals or to
// a denied module re-exported by an allowed one. obj is the object the
// member is read from, nil for names pulled in by "from m import name".
func (a *analysis) checkMember(name string, obj, n *sitter.Node) {
	if blockedAttributes[name] || blockedNames[name] {
		a.blockOperation(KindAttribute, name, n, fmt.Sprintf("access to attribute %s is not allowed", name))
		return
	}
	if isDunder(name) {
		return
	}

	private := strings.HasPrefix(name, "_")
	onInstance := obj != nil && obj.Type() == "identifier" && instanceNames[a.text(obj)]

	if private {
		if reason, ok := deniedModules[strings.TrimLeft(name, "_")]; ok {
			a.blockOperation(KindAttribute, name, n, fmt.Sprintf("access to attribute %s is not allowed (%s)", name, reason))
			return
		}
		if reason, ok := deniedModules[name]; ok {
			a.blockOperation(KindAttribute, name, n, fmt.Sprintf("access to attribute %s is not allowed (%s)", name, reason))
			return
		}
		if !onInstance {
			a.blockOperation(KindAttribute, name, n, fmt.Sprintf("access to private attribute %s is only allowed on self or cls", name))
		}
		return
	}

	if moduleHandles[name] && !onInstance {
		a.blockOperation(KindAttribute, name, n, fmt.Sprintf("access to attribute %s is not allowed (%s)", name, deniedModules[name]))
	}
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// scanPatterns is the text pass. Names already blocked by the tree walk
// are not reported twice.
func (a *analysis) scanPatterns() {
	text := string(a.src)
	for _, p := range sourcePatterns {
		if a.seenImport[p.name] || a.seenOp[p.name] {
			continue
		}
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}

		line, col := position(a.src, loc[0])
		a.issues = append(a.issues, Issue{
			Kind:    KindPattern,
			Message: fmt.Sprintf("suspicious reference to %q found in source", text[loc[0]:loc[1]]),
			Line:    line,
			Column:  col,
		})
		a.seenOp[p.name] = true
		a.operations = append(a.operations, p.name)
	}
}

// importedModule returns the module named by one entry of an import list
func importedModule(n *sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "dotted_name":
		return n.Content(src), true
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src), true
		}
	}
	return "", false
}

// position converts a byte offset into a 1-based line and column
func position(src []byte, offset int) (int, int) {
	line, col := 1, 1
	for _, b := range src[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// snippet shortens s to at most maxSnippetLen runes
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxSnippetLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSnippetLen]) + "..."
}

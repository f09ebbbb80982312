package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/isdmx/codegrader/config"
)

// IssueKind classifies a validation issue
type IssueKind string

// Issue kinds
const (
	KindSyntax    IssueKind = "syntax"
	KindImport    IssueKind = "import"
	KindCall      IssueKind = "call"
	KindName      IssueKind = "name"
	KindAttribute IssueKind = "attribute"
	KindPattern   IssueKind = "pattern"
	KindSize      IssueKind = "size"
	KindInternal  IssueKind = "internal"
)

// DefaultMaxCodeBytes bounds the size of a submission
const DefaultMaxCodeBytes = 64 * 1024

// Issue is a single finding. Line and Column are 1-based, zero when the
// issue is not tied to a position.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
}

// ValidationResult is the verdict for one piece of source code
type ValidationResult struct {
	Safe              bool     `json:"safe"`
	Issues            []Issue  `json:"issues"`
	BlockedImports    []string `json:"blocked_imports"`
	BlockedOperations []string `json:"blocked_operations"`
}

// Message renders a one-line, user-facing summary of the verdict
func (r ValidationResult) Message() string {
	if r.Safe {
		return "code passed validation"
	}

	var parts []string
	if len(r.BlockedImports) > 0 {
		parts = append(parts, "blocked imports: "+strings.Join(r.BlockedImports, ", "))
	}
	if len(r.BlockedOperations) > 0 {
		parts = append(parts, "blocked operations: "+strings.Join(r.BlockedOperations, ", "))
	}
	if len(parts) == 0 && len(r.Issues) > 0 {
		parts = append(parts, r.Issues[0].Message)
	}
	return "code rejected: " + strings.Join(parts, "; ")
}

// Validator statically checks Python source before it is executed. It holds
// only immutable configuration and is safe for concurrent use.
type Validator struct {
	allowed      map[string]bool
	maxCodeBytes int
}

// Option configures a Validator
type Option func(*Validator)

// WithMaxCodeBytes overrides the maximum accepted source size
func WithMaxCodeBytes(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxCodeBytes = n
		}
	}
}

// New creates a Validator that accepts imports of the given modules.
// Denied modules stay denied even when listed.
func New(allowedModules []string, opts ...Option) *Validator {
	v := &Validator{
		allowed:      make(map[string]bool, len(allowedModules)),
		maxCodeBytes: DefaultMaxCodeBytes,
	}
	for _, m := range allowedModules {
		v.allowed[strings.TrimSpace(m)] = true
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// NewFromConfig creates a Validator from the validator section
func NewFromConfig(cfg *config.Config) *Validator {
	return New(cfg.AllowedModules(), WithMaxCodeBytes(cfg.Validator.MaxCodeBytes))
}

// Validate parses code and reports every unsafe construct it finds.
// Validation never panics: internal failures produce an unsafe verdict.
func (v *Validator) Validate(code string) ValidationResult {
	return guard(func() ValidationResult {
		return v.validate(code)
	})
}

// guard converts a panic in fn into a fail-closed verdict
func guard(fn func() ValidationResult) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = newResult([]Issue{{
				Kind:    KindInternal,
				Message: fmt.Sprintf("validator failure: %v", r),
			}}, nil, nil)
		}
	}()
	return fn()
}

func (v *Validator) validate(code string) ValidationResult {
	if len(code) > v.maxCodeBytes {
		return newResult([]Issue{{
			Kind:    KindSize,
			Message: fmt.Sprintf("source is %d bytes, the limit is %d bytes", len(code), v.maxCodeBytes),
		}}, nil, nil)
	}

	src := []byte(code)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return newResult([]Issue{{
			Kind:    KindInternal,
			Message: fmt.Sprintf("failed to parse source: %v", err),
		}}, nil, nil)
	}
	defer tree.Close()

	a := newAnalysis(src, v.allowed)
	root := tree.RootNode()
	if root.HasError() {
		a.collectSyntaxErrors(root)
	} else if issue := checkTokens(src); issue != nil {
		a.issues = append(a.issues, *issue)
	} else {
		a.checkStatements(root, blockScope{})
	}
	a.visit(root)
	a.scanPatterns()

	return newResult(a.issues, a.imports, a.operations)
}

func newResult(issues []Issue, imports, operations []string) ValidationResult {
	if issues == nil {
		issues = []Issue{}
	}
	if imports == nil {
		imports = []string{}
	}
	if operations == nil {
		operations = []string{}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		return issues[i].Column < issues[j].Column
	})

	return ValidationResult{
		Safe:              len(issues) == 0,
		Issues:            issues,
		BlockedImports:    imports,
		BlockedOperations: operations,
	}
}

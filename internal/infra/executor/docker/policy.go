package docker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultAllowedImports are the only modules generated code may import.
var DefaultAllowedImports = []string{
	"pandas", "numpy", "math", "statistics", "datetime",
	"collections", "itertools", "functools", "re", "json",
}

// DefaultDenyPatterns block builtins and pandas calls that reach outside the
// two bound tables. They run over the source with string literals and
// comments blanked, and builtins only match as bare calls, so re.compile(...)
// or print("open (x)") pass. The harness repeats the import and builtin
// checks on the parsed tree.
var DefaultDenyPatterns = []string{
	`(?:^|[^.\w])(open|eval|exec|compile|input|breakpoint|globals|locals|vars|getattr|setattr|delattr|__import__)\s*\(`,
	`__\w+__`,
	`\bpd\.read_\w+\s*\(`,
	`\.to_(csv|excel|pickle|parquet|sql|hdf|feather|clipboard|stata|orc)\s*\(`,
	`\bsys\.modules\b`,
}

// an import statement may follow a line start, ';' or a compound header's ':'
var (
	importRe     = regexp.MustCompile(`(?:^|[;:])\s*import\s+([^;]+)`)
	fromImportRe = regexp.MustCompile(`(?:^|[;:])\s*from\s+(\S+)\s+import\b`)
)

// Policy is a static check over generated source.
type Policy struct {
	allowed map[string]bool
	deny    []*regexp.Regexp
}

// NewPolicy compiles a policy. Empty lists fall back to the defaults.
func NewPolicy(allowedImports, denyPatterns []string) (*Policy, error) {
	if len(allowedImports) == 0 {
		allowedImports = DefaultAllowedImports
	}
	if len(denyPatterns) == 0 {
		denyPatterns = DefaultDenyPatterns
	}
	p := &Policy{allowed: make(map[string]bool, len(allowedImports))}
	for _, m := range allowedImports {
		p.allowed[m] = true
	}
	for _, pat := range denyPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, eris.Wrapf(err, "sandbox policy: compile %q", pat)
		}
		p.deny = append(p.deny, re)
	}
	return p, nil
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(nil, nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Check returns a descriptive error for the first violation found.
func (p *Policy) Check(code string) error {
	src := stripLiterals(code)
	for i, line := range strings.Split(src, "\n") {
		for _, m := range fromImportRe.FindAllStringSubmatch(line, -1) {
			if err := p.checkModule(m[1], i+1); err != nil {
				return err
			}
		}
		for _, m := range importRe.FindAllStringSubmatch(line, -1) {
			for _, part := range strings.Split(m[1], ",") {
				name := strings.TrimSpace(part)
				if f := strings.Fields(name); len(f) > 0 {
					name = f[0]
				}
				if err := p.checkModule(name, i+1); err != nil {
					return err
				}
			}
		}
	}
	for _, re := range p.deny {
		if loc := re.FindStringIndex(src); loc != nil {
			op := strings.TrimLeft(src[loc[0]:loc[1]], " \t\n=(,[{:;+-*/%<>!&|^~")
			return fmt.Errorf("disallowed operation %q", op)
		}
	}
	return nil
}

// AllowedImports lists the importable top-level modules, sorted.
func (p *Policy) AllowedImports() []string {
	out := make([]string, 0, len(p.allowed))
	for m := range p.allowed {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// stripLiterals blanks the contents of string literals and drops comments.
// Quotes and newlines stay, so line numbers still match the source.
func stripLiterals(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == '#':
			for i < len(code) && code[i] != '\n' {
				i++
			}
		case c == '\'' || c == '"':
			delim := string(c)
			if strings.HasPrefix(code[i:], strings.Repeat(delim, 3)) {
				delim = strings.Repeat(delim, 3)
			}
			b.WriteString(delim)
			i += len(delim)
			for i < len(code) {
				if strings.HasPrefix(code[i:], delim) {
					i += len(delim)
					break
				}
				if code[i] == '\n' {
					if len(delim) == 1 {
						break // unterminated, resume at the newline
					}
					b.WriteByte('\n')
				}
				if code[i] == '\\' && i+1 < len(code) {
					i++
					if code[i] == '\n' {
						b.WriteByte('\n')
					}
				}
				i++
			}
			b.WriteString(delim)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func (p *Policy) checkModule(name string, line int) error {
	root := strings.SplitN(name, ".", 2)[0]
	if root == "" || !p.allowed[root] {
		return fmt.Errorf("import of %q is not allowed (line %d)", name, line)
	}
	return nil
}

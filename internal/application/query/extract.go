package query

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
)

// ExtractStatus is the outcome of pulling the code field out of a reply.
type ExtractStatus string

const (
	ExtractFound     ExtractStatus = "found"
	ExtractNotFound  ExtractStatus = "not_found"
	ExtractMalformed ExtractStatus = "malformed"
)

// Extraction is the parsed reply. Strict is true when the reply was a valid
// JSON object; otherwise fields were recovered by pattern.
type Extraction struct {
	Status   ExtractStatus
	Strict   bool
	Response domain.ModelResponse
	Reason   string
}

var (
	fieldKeyRe = map[string]*regexp.Regexp{
		"thought": regexp.MustCompile(`"thought"\s*:`),
		"code":    regexp.MustCompile(`"code"\s*:`),
		"answer":  regexp.MustCompile(`"answer"\s*:`),
	}
	// string value honouring escaped quotes; (?s) lets raw newlines through
	fieldValueRe = map[string]*regexp.Regexp{
		"thought": regexp.MustCompile(`(?s)"thought"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"code":    regexp.MustCompile(`(?s)"code"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"answer":  regexp.MustCompile(`(?s)"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
)

// Extract recovers {thought, code, answer} from free model text. It first
// tries the reply as a JSON object, then falls back to a best-effort pattern
// match of each field. Only a Found extraction may be executed.
func Extract(raw string) Extraction {
	body := stripFences(raw)

	if obj, ok := outermostObject(body); ok && gjson.Valid(obj) {
		return extractStrict(obj)
	}
	return extractLenient(body)
}

func extractStrict(obj string) Extraction {
	ex := Extraction{Strict: true}
	ex.Response.Thought = stringField(obj, "thought")
	ex.Response.Answer = stringField(obj, "answer")

	code := gjson.Get(obj, "code")
	switch {
	case !code.Exists():
		ex.Status = ExtractNotFound
		ex.Reason = "response has no code field"
	case code.Type != gjson.String:
		ex.Status = ExtractMalformed
		ex.Reason = "code field is not a string"
	case strings.TrimSpace(code.String()) == "":
		ex.Status = ExtractMalformed
		ex.Reason = "code field is empty"
	default:
		ex.Status = ExtractFound
		ex.Response.Code = code.String()
	}
	return ex
}

func extractLenient(body string) Extraction {
	ex := Extraction{}
	if m := fieldValueRe["thought"].FindStringSubmatch(body); m != nil {
		ex.Response.Thought = unescape(m[1])
	}
	if m := fieldValueRe["answer"].FindStringSubmatch(body); m != nil {
		ex.Response.Answer = unescape(m[1])
	}

	m := fieldValueRe["code"].FindStringSubmatch(body)
	switch {
	case m != nil && strings.TrimSpace(m[1]) != "":
		ex.Status = ExtractFound
		ex.Response.Code = unescape(m[1])
	case m != nil:
		ex.Status = ExtractMalformed
		ex.Reason = "code field is empty"
	case fieldKeyRe["code"].MatchString(body):
		ex.Status = ExtractMalformed
		ex.Reason = "code field is not a terminated string"
	default:
		ex.Status = ExtractNotFound
		ex.Reason = "response has no code field"
	}
	return ex
}

func stringField(obj, key string) string {
	r := gjson.Get(obj, key)
	if r.Type != gjson.String {
		return ""
	}
	return r.String()
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// outermostObject returns the text between the first '{' and the last '}'.
func outermostObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// unescape turns JSON-style escapes in a captured string back into source
// text. Unknown escapes are kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '"', '\\', '/', '\'':
			b.WriteByte(s[i])
		case 'u':
			if i+4 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					var buf [utf8.UTFMax]byte
					w := utf8.EncodeRune(buf[:], rune(n))
					b.Write(buf[:w])
					i += 4
					continue
				}
			}
			b.WriteString(`\u`)
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

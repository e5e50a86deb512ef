package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus ExtractStatus
		wantStrict bool
		wantCode   string
		wantAnswer string
	}{
		{
			name:       "plain json",
			raw:        `{"thought":"sum it","code":"print(sales_df['sales_amount'].sum())","answer":"Total sales"}`,
			wantStatus: ExtractFound,
			wantStrict: true,
			wantCode:   "print(sales_df['sales_amount'].sum())",
			wantAnswer: "Total sales",
		},
		{
			name:       "fenced json with prose",
			raw:        "Here you go:\n```json\n{\"thought\": \"t\", \"code\": \"x = 1\\nprint(x)\", \"answer\": \"a\"}\n```",
			wantStatus: ExtractFound,
			wantStrict: true,
			wantCode:   "x = 1\nprint(x)",
			wantAnswer: "a",
		},
		{
			name:       "fence only",
			raw:        "```\n{\"code\": \"print(1)\"}\n```",
			wantStatus: ExtractFound,
			wantStrict: true,
			wantCode:   "print(1)",
		},
		{
			name:       "missing code field",
			raw:        `{"thought":"hmm","answer":"I cannot answer"}`,
			wantStatus: ExtractNotFound,
			wantStrict: true,
			wantAnswer: "I cannot answer",
		},
		{
			name:       "code is not a string",
			raw:        `{"code": ["print(1)"]}`,
			wantStatus: ExtractMalformed,
			wantStrict: true,
		},
		{
			name:       "empty code",
			raw:        `{"code": "   "}`,
			wantStatus: ExtractMalformed,
			wantStrict: true,
		},
		{
			name:       "invalid json with raw newline recovered leniently",
			raw:        "{\"thought\": \"t\", \"code\": \"df = sales_df\nprint(df.shape)\", \"answer\": \"shape\",}",
			wantStatus: ExtractFound,
			wantCode:   "df = sales_df\nprint(df.shape)",
			wantAnswer: "shape",
		},
		{
			name:       "escaped quotes in lenient mode",
			raw:        `{'thought': 'x', "code": "print(\"hi\")\tprint('\u00e9')" trailing garbage`,
			wantStatus: ExtractFound,
			wantCode:   "print(\"hi\")\tprint('é')",
		},
		{
			name:       "unterminated code string",
			raw:        `{"thought": "t", "code": "print(1)`,
			wantStatus: ExtractMalformed,
		},
		{
			name:       "free text",
			raw:        "Sales went up in March.",
			wantStatus: ExtractNotFound,
		},
		{
			name:       "empty reply",
			raw:        "",
			wantStatus: ExtractNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := Extract(tt.raw)
			assert.Equal(t, tt.wantStatus, ex.Status)
			assert.Equal(t, tt.wantStrict, ex.Strict)
			assert.Equal(t, tt.wantCode, ex.Response.Code)
			if tt.wantAnswer != "" {
				assert.Equal(t, tt.wantAnswer, ex.Response.Answer)
			}
			if tt.wantStatus != ExtractFound {
				assert.NotEmpty(t, ex.Reason)
				assert.Empty(t, ex.Response.Code)
			}
		})
	}
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "a\nb", unescape(`a\nb`))
	assert.Equal(t, `say "hi"`, unescape(`say \"hi\"`))
	assert.Equal(t, `C:\dir`, unescape(`C:\\dir`))
	assert.Equal(t, "a/b", unescape(`a\/b`))
	assert.Equal(t, "é", unescape(`\u00e9`))
	assert.Equal(t, `\d+`, unescape(`\d+`))
	assert.Equal(t, `\u12`, unescape(`\u12`))
	assert.Equal(t, "plain", unescape("plain"))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```{\"a\":1}```"))
	assert.Equal(t, "text", stripFences("  text  "))
}

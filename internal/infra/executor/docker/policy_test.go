package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Check(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"plain pandas", "import pandas as pd\nprint(sales_df['sales_amount'].sum())", ""},
		{"numpy and from-import", "import numpy as np\nfrom datetime import timedelta\nprint(np.mean([1, 2]))", ""},
		{"submodule", "import pandas.api.types as t\nprint(1)", ""},
		{"os import", "import os", "not allowed"},
		{"subprocess in list", "import json, subprocess", "not allowed"},
		{"from socket", "from socket import socket", "not allowed"},
		{"relative import", "from . import x", "not allowed"},
		{"open call", "print(open('/etc/passwd').read())", "disallowed operation"},
		{"eval", "eval('1+1')", "disallowed operation"},
		{"dunder escape", "print(().__class__.__bases__)", "disallowed operation"},
		{"read file", "pd.read_csv('/etc/hosts')", "disallowed operation"},
		{"write file", "sales_df.to_csv('out.csv')", "disallowed operation"},
		{"to_string is fine", "print(sales_df.head().to_string())", ""},
		{"import after semicolon", "x = 1; import os\nprint(os.listdir('/'))", "not allowed"},
		{"import after colon", "if True: import subprocess\nprint(1)", "not allowed"},
		{"from-import after colon", "for _ in [1]: from os import path", "not allowed"},
		{"re.compile is a method", "import re\nprint(re.compile(r'A').pattern)", ""},
		{"open inside a literal", `print("store open (weekends)")`, ""},
		{"eval inside a comment", "print(1)  # eval(x) would be bad", ""},
		{"dunder inside a literal", `print("__main__")`, ""},
		{"import inside a literal", `print("x; import os")`, ""},
		{"triple-quoted literal", "s = \"\"\"\nopen(x)\nimport os\n\"\"\"\nprint(s)", ""},
		{"escaped quote", `print("say \"open(\" now")`, ""},
		{"open after literal", `x = "a"; open("b")`, "disallowed operation"},
		{"dunder import call", "m = __import__('os')", "disallowed operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.code)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewPolicy_Custom(t *testing.T) {
	p, err := NewPolicy([]string{"pandas"}, []string{`\bprint\b`})
	require.NoError(t, err)
	assert.Error(t, p.Check("import numpy"))
	assert.Error(t, p.Check("print(1)"))
	assert.NoError(t, p.Check("x = 1"))

	_, err = NewPolicy(nil, []string{"("})
	assert.Error(t, err)
}

func TestStripLiterals(t *testing.T) {
	assert.Equal(t, `print("")`, stripLiterals(`print("open(x)")`))
	assert.Equal(t, "x = 1  \ny = ''", stripLiterals("x = 1  # import os\ny = 'eval('"))
	assert.Equal(t, "s = \"\"\"\n\n\"\"\"", stripLiterals("s = \"\"\"\nopen()\n\"\"\""))
	// unterminated literals stop at the end of the line
	assert.Equal(t, "x = \"\"\nimport os", stripLiterals("x = \"abc\nimport os"))
}

func TestPolicy_AllowedImports(t *testing.T) {
	p, err := NewPolicy([]string{"numpy", "pandas"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"numpy", "pandas"}, p.AllowedImports())
}

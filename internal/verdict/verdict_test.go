package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyDiagnostic, p)

	p, err = ParsePolicy(" EXIT_CODE ")
	require.NoError(t, err)
	require.Equal(t, PolicyExitCode, p)

	_, err = ParsePolicy("warning-substring")
	require.Error(t, err)
}

func TestHasErrorDiagnostics(t *testing.T) {
	cases := map[string]bool{
		"": false,
		"main.c:3:5: error: expected ';' before '}' token":             true,
		"Main.java:4: error: ';' expected":                             true,
		"cc1: fatal error: main.c: No such file or directory":          true,
		"main.c:2:7: warning: unused variable 'x' [-Wunused-variable]": false,
		"Note: Main.java uses unchecked or unsafe operations.":         false,
		"ld: error: undefined symbol: foo":                             true,
		"error: linker command failed with exit code 1":                true,
		"main.c:9:1: fatal error: stdio.hh: No such file":              true,
		"    7 |   fprintf(stderr, \"error: %s\\n\", msg);":            false,
	}
	for stderr, want := range cases {
		assert.Equal(t, want, HasErrorDiagnostics(stderr), stderr)
	}

	quoted := "main.c:3:12: warning: overflow in conversion [-Woverflow]\n" +
		"    3 |   char c = 300; printf(\"result: error %d\\n\", c);\n" +
		"      |            ^~~\n"
	assert.False(t, HasErrorDiagnostics(quoted))
}

func TestIsBenign(t *testing.T) {
	assert.True(t, IsBenign(""))
	assert.True(t, IsBenign("\n  \n"))
	assert.True(t, IsBenign("script.py:3: DeprecationWarning: the imp module is deprecated\n  import imp\n"))
	assert.True(t, IsBenign("main.c:2:7: warning: unused variable 'x'\n    2 |   int x;\n      |       ^\n"))

	assert.True(t, IsBenign("main.c: In function 'main':\n"+
		"main.c:3:12: warning: overflow in conversion from 'int' to 'char' changes value from '300' to '44' [-Woverflow]\n"+
		"    3 |   char c = 300; printf(\"result: error %d\\n\", c);\n"+
		"      |            ^~~\n"))

	assert.False(t, IsBenign("debug: value=3"))
	assert.False(t, IsBenign("Traceback (most recent call last):\n  File \"a.py\", line 1\nZeroDivisionError: division by zero"))
	assert.False(t, IsBenign("warning: low disk\nValueError: bad input"))
	assert.False(t, IsBenign("Exception in thread \"main\" java.lang.RuntimeException: boom"))
}

func TestPolicyFailures(t *testing.T) {
	assert.True(t, PolicyExitCode.CompileFailed(1, ""))
	assert.False(t, PolicyExitCode.CompileFailed(0, "x.c:1:1: error: nope"))
	assert.True(t, PolicyDiagnostic.CompileFailed(0, "x.c:1:1: error: nope"))
	assert.False(t, PolicyDiagnostic.CompileFailed(0, "x.c:1:1: warning: unused"))

	assert.True(t, PolicyExitCode.RunFailed(2, ""))
	assert.False(t, PolicyExitCode.RunFailed(0, "debug output"))
	assert.True(t, PolicyDiagnostic.RunFailed(0, "debug output"))
	assert.False(t, PolicyDiagnostic.RunFailed(0, "UserWarning: careful"))
	assert.False(t, PolicyDiagnostic.RunFailed(0, ""))
}

package wderror

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCodes(t *testing.T) {
	t.Parallel()

	tests := map[Kind]int{
		KindWebDriver:               500,
		KindUnknownCommand:          9,
		KindElementNotVisible:       11,
		KindInvalidElementState:     12,
		KindUnknown:                 13,
		KindJavaScript:              17,
		KindTimeout:                 21,
		KindScriptTimeout:           28,
		KindFrameSendNotInitialized: 54,
		KindFrameSendFailure:        55,
		KindNoSuchElement:           7,
		KindNoSuchFrame:             8,
		KindNoSuchWindow:            23,
	}
	for k, code := range tests {
		assert.Equal(t, code, k.Code(), k.String())
		assert.Equal(t, k, KindForCode(code), k.String())
	}
	assert.Equal(t, KindWebDriver, KindForCode(4242))
}

func TestErrorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		k := k
		t.Run(k.String(), func(t *testing.T) {
			t.Parallel()

			orig := New(k, "something went wrong")
			b, err := json.Marshal(ToJSON(orig))
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, orig.Code(), got.Code())
			assert.Equal(t, orig.Message(), got.Message())
			assert.Equal(t, k, got.Kind())
		})
	}
}

func TestToJSON(t *testing.T) {
	t.Parallel()

	t.Run("fields", func(t *testing.T) {
		t.Parallel()

		e := New(KindScriptTimeout, "timed out").WithField("extra", "yes")
		m := ToJSON(e)
		assert.Equal(t, "timed out", m["message"])
		assert.Equal(t, 28, m["status"])
		assert.Equal(t, "yes", m["extra"])

		frames, ok := m["stacktrace"].([]Frame)
		require.True(t, ok)
		require.NotEmpty(t, frames)
		assert.Equal(t, "TestToJSON.func1", frames[0].MethodName)
		assert.Equal(t, "error_test.go", frames[0].FileName)
		assert.Positive(t, frames[0].LineNumber)
	})
	t.Run("foreign_error", func(t *testing.T) {
		t.Parallel()

		m := ToJSON(errors.New("dom exception"))
		assert.Equal(t, StatusUnknown, m["status"])
		assert.Equal(t, "dom exception", m["message"])
	})
	t.Run("foreign_error_with_stack", func(t *testing.T) {
		t.Parallel()

		m := ToJSON(fmt.Errorf("wrapped: %w", pkgerrors.New("boom")))
		assert.Equal(t, StatusUnknown, m["status"])
		frames, ok := m["stacktrace"].([]Frame)
		require.True(t, ok)
		require.NotEmpty(t, frames)
		assert.Equal(t, "error_test.go", frames[0].FileName)
	})
}

func TestParseStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stack string
		want  []Frame
	}{
		{
			name:  "js",
			stack: "foo@chrome://marionette/content/listener.js:42\n@file.js:7",
			want: []Frame{
				{MethodName: "foo", FileName: "chrome://marionette/content/listener.js", LineNumber: 42},
				{MethodName: "", FileName: "file.js", LineNumber: 7},
			},
		},
		{
			name:  "goja",
			stack: "at bar (script.js:3:5(12))\nat script.js:9:1(4)",
			want: []Frame{
				{MethodName: "bar", FileName: "script.js", LineNumber: 3},
				{MethodName: "", FileName: "script.js", LineNumber: 9},
			},
		},
		{
			name:  "script_message",
			stack: StackMessage(ScriptOrigin{Function: "test_foo", File: "test_foo.py", Line: 10}, "var a;\nfoo();", 2),
			want: []Frame{
				{MethodName: "test_foo", FileName: "test_foo.py", LineNumber: 10},
				{MethodName: "inline javascript", LineNumber: 2},
				{MethodName: `src: "foo();"`},
			},
		},
		{name: "empty", stack: "", want: []Frame{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseStack(tt.stack))
		})
	}
}

func TestFromJSON(t *testing.T) {
	t.Parallel()

	e := FromJSON(map[string]any{
		"message": "gone",
		"status":  float64(10),
		"stacktrace": []any{
			map[string]any{"methodName": "f", "fileName": "a.js", "lineNumber": float64(3)},
		},
		"selector": "#x",
	})
	assert.Equal(t, KindStaleElementReference, e.Kind())
	assert.Equal(t, "gone", e.Message())
	assert.Equal(t, "f@a.js:3", e.Stack())
	assert.Equal(t, map[string]any{"selector": "#x"}, e.Extra())

	assert.Equal(t, KindWebDriver, FromJSON(nil).Kind())
}

func TestIsKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("switching: %w", New(KindNoSuchFrame, "Unable to locate frame: x"))
	assert.True(t, IsKind(err, KindNoSuchFrame))
	assert.False(t, IsKind(err, KindNoSuchWindow))
	assert.ErrorIs(t, err, New(KindNoSuchFrame, ""))
	assert.Equal(t, 8, Code(err))
	assert.Equal(t, StatusUnknown, Code(errors.New("x")))
}

func TestScriptError(t *testing.T) {
	t.Parallel()

	e := ScriptError("ReferenceError: foo is not defined",
		ScriptOrigin{Function: "test_it", File: "test_it.py", Line: 4}, "let x = 1;\n  foo();\n", 2)
	assert.Equal(t, 17, e.Code())
	assert.Equal(t,
		"test_it @test_it.py, line 4\ninline javascript, line 2\nsrc: \"foo();\"",
		e.Stack())
}

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v3"

	"github.com/grafana/xk6-marionette/protocol"
)

func TestScriptFinished(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    any
		want bool
	}{
		{name: "undefined", v: nil},
		{name: "not_a_result", v: "done"},
		{name: "no_passed", v: map[string]any{"failed": 0}},
		{name: "null_passed", v: map[string]any{"passed": nil, "failed": 0}},
		{name: "zero_passed", v: map[string]any{"passed": 0, "failed": 1}, want: true},
		{name: "passed", v: map[string]any{"passed": 2, "failed": 0}, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, finished(tt.v))
		})
	}
}

func TestParseScriptRequestTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params protocol.Params
		want   null.Int
	}{
		{name: "absent", params: protocol.Params{}},
		{name: "null", params: protocol.Params{"timeout": nil}},
		{name: "not_a_number", params: protocol.Params{"timeout": "soon"}},
		{name: "zero", params: protocol.Params{"timeout": 0.0}, want: null.IntFrom(0)},
		{name: "negative", params: protocol.Params{"timeout": -1.0}, want: null.IntFrom(-1)},
		{name: "forwarded", params: protocol.Params{"timeout": int64(250)}, want: null.IntFrom(250)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := ParseScriptRequest(tt.params, "timeout")
			assert.Equal(t, tt.want, r.Timeout)

			args := r.listenerArgs()
			if tt.want.Valid {
				assert.Equal(t, tt.want.Int64, args["timeout"])
			} else {
				assert.Nil(t, args["timeout"])
			}
		})
	}
}

package protocol

import (
	"encoding/json"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	_ easyjson.Unmarshaler = (*Command)(nil)
	_ easyjson.Marshaler   = (*Command)(nil)
	_ easyjson.Marshaler   = (*Reply)(nil)
	_ easyjson.Unmarshaler = (*Reply)(nil)
	_ easyjson.Marshaler   = (*Hello)(nil)
	_ easyjson.Marshaler   = (*Emulator)(nil)
)

func writeAny(out *jwriter.Writer, v any) {
	switch m := v.(type) {
	case nil:
		out.RawString("null")
	case easyjson.Marshaler:
		m.MarshalEasyJSON(out)
	case json.Marshaler:
		out.Raw(m.MarshalJSON())
	default:
		out.Raw(json.Marshal(v))
	}
}

func readParams(in *jlexer.Lexer) Params {
	if in.IsNull() {
		in.Skip()
		return nil
	}
	p := make(Params)
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		p[key] = in.Interface()
		in.WantComma()
	}
	in.Delim('}')
	return p
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (c *Command) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			c.Name = in.String()
		case "parameters":
			c.Parameters = readParams(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (c *Command) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"name":`)
	out.String(c.Name)
	out.RawString(`,"parameters":`)
	if c.Parameters == nil {
		out.RawString("{}")
	} else {
		writeAny(out, map[string]any(c.Parameters))
	}
	out.RawByte('}')
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Command) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	c.UnmarshalEasyJSON(&r)
	return r.Error()
}

// MarshalJSON implements json.Marshaler.
func (c *Command) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	c.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (r *Reply) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"from":`)
	out.String(r.From)
	if r.SessionID != "" {
		out.RawString(`,"sessionId":`)
		out.String(r.SessionID)
	}
	switch {
	case r.Error != nil:
		out.RawString(`,"error":`)
		writeAny(out, r.Error)
	case r.OK:
		out.RawString(`,"ok":true`)
	default:
		out.RawString(`,"value":`)
		writeAny(out, r.Value)
	}
	out.RawByte('}')
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (r *Reply) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "from":
			r.From = in.String()
		case "sessionId":
			r.SessionID = in.String()
		case "ok":
			r.OK = in.Bool()
		case "value":
			r.Value = in.Interface()
		case "error":
			if m, ok := in.Interface().(map[string]any); ok {
				r.Error = m
			}
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalJSON implements json.Marshaler.
func (r *Reply) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	r.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reply) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	r.UnmarshalEasyJSON(&l)
	return l.Error()
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (h *Hello) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"from":`)
	out.String(h.From)
	out.RawString(`,"applicationType":`)
	out.String(h.ApplicationType)
	out.RawString(`,"traits":[`)
	for i, t := range h.Traits {
		if i > 0 {
			out.RawByte(',')
		}
		out.String(t)
	}
	out.RawString("]}")
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (e *Emulator) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"from":`)
	out.String(e.From)
	if e.Cmd != "" {
		out.RawString(`,"emulator_cmd":`)
		out.String(e.Cmd)
	}
	if e.Shell != "" {
		out.RawString(`,"emulator_shell":`)
		out.String(e.Shell)
	}
	out.RawString(`,"id":`)
	out.Int(e.ID)
	out.RawByte('}')
}

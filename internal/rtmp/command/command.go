// Package command decodes and encodes the AMF0 command/data payloads
// carried inside INVOKE, FLEX_MESSAGE, and DATA messages — the RPC
// dialect layered on top of the chunk stream.
package command

import (
	"github.com/nodewire-systems/rtmp-relay/internal/amf0"
)

// FlexPrefixLength is the single byte FLEX_MESSAGE (and FLEX_STREAM)
// payloads carry before the AMF0 stream proper; it must be skipped on
// decode and re-emitted on encode.
const FlexPrefixLength = 1

// Command is a decoded INVOKE/FLEX_MESSAGE payload: a name, a
// transaction id, an optional command object, and zero or more
// positional arguments.
type Command struct {
	Name          string
	TransactionID float64
	CmdObj        *amf0.Value
	Args          []*amf0.Value
}

// Arg returns the i-th positional argument, or an AMF0 undefined value
// if it is absent — callers never need a bounds check.
func (c *Command) Arg(i int) *amf0.Value {
	if i < 0 || i >= len(c.Args) {
		return amf0.Undefined()
	}
	return c.Args[i]
}

func (c *Command) ToString() string {
	return c.Name + "(" + c.CmdObj.ToString("") + ")"
}

// Decode reads a command payload. isFlex skips/restores the
// FLEX_MESSAGE prefix byte.
func Decode(payload []byte, isFlex bool) *Command {
	s := amf0.NewDecodingStream(payload)
	if isFlex {
		s.Skip(FlexPrefixLength)
	}

	c := &Command{}

	if !s.IsEnded() {
		c.Name = s.ReadOne().GetString()
	}
	if !s.IsEnded() {
		c.TransactionID = s.ReadOne().GetDouble()
	}
	if !s.IsEnded() {
		c.CmdObj = s.ReadOne()
	} else {
		c.CmdObj = amf0.Null()
	}

	for !s.IsEnded() {
		c.Args = append(c.Args, s.ReadOne())
	}

	return c
}

// Encode serializes the command back into an AMF0 payload, optionally
// prefixed with the FLEX_MESSAGE marker byte.
func (c *Command) Encode(isFlex bool) []byte {
	var out []byte
	if isFlex {
		out = append(out, 0x00)
	}

	out = append(out, amf0.EncodeOne(amf0.String(c.Name))...)
	out = append(out, amf0.EncodeOne(amf0.Number(c.TransactionID))...)

	cmdObj := c.CmdObj
	if cmdObj == nil {
		cmdObj = amf0.Null()
	}
	out = append(out, amf0.EncodeOne(cmdObj)...)

	for _, arg := range c.Args {
		out = append(out, amf0.EncodeOne(arg)...)
	}

	return out
}

// Data is a decoded DATA message payload (an AMF0-only, name-tagged
// value sequence — used for @setDataFrame/onMetaData and similar
// out-of-band data events).
type Data struct {
	Tag    string
	Values []*amf0.Value
}

func DecodeData(payload []byte) *Data {
	s := amf0.NewDecodingStream(payload)
	d := &Data{}

	if !s.IsEnded() {
		d.Tag = s.ReadOne().GetString()
	}
	for !s.IsEnded() {
		d.Values = append(d.Values, s.ReadOne())
	}

	return d
}

func (d *Data) Encode() []byte {
	var out []byte
	out = append(out, amf0.EncodeOne(amf0.String(d.Tag))...)
	for _, v := range d.Values {
		out = append(out, amf0.EncodeOne(v)...)
	}
	return out
}

func (d *Data) ToString() string {
	return d.Tag
}

// BuildMetadataPayload re-tags a decoded "@setDataFrame" message (whose
// second field names the frame "onMetaData" and whose third field
// carries the actual metadata object) as a standalone "onMetaData" DATA
// payload, ready to latch and replay to players. Returns nil if d does
// not carry the expected object argument.
func BuildMetadataPayload(d *Data) []byte {
	if len(d.Values) < 2 {
		return nil
	}
	out := &Data{Tag: "onMetaData", Values: []*amf0.Value{d.Values[1]}}
	return out.Encode()
}

package command

import (
	"testing"

	"github.com/nodewire-systems/rtmp-relay/internal/amf0"
)

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	obj := amf0.NewObject()
	obj.Set("app", amf0.String("live"))

	cmd := &Command{
		Name:          "connect",
		TransactionID: 1,
		CmdObj:        amf0.NewObjectValue(obj),
		Args:          []*amf0.Value{amf0.String("extra")},
	}

	encoded := cmd.Encode(false)
	decoded := Decode(encoded, false)

	if decoded.Name != "connect" {
		t.Fatalf("Name = %q, want connect", decoded.Name)
	}
	if decoded.TransactionID != 1 {
		t.Fatalf("TransactionID = %v, want 1", decoded.TransactionID)
	}
	if decoded.CmdObj.GetProperty("app").GetString() != "live" {
		t.Fatalf("app = %q, want live", decoded.CmdObj.GetProperty("app").GetString())
	}
	if len(decoded.Args) != 1 || decoded.Args[0].GetString() != "extra" {
		t.Fatalf("Args = %+v, want one arg 'extra'", decoded.Args)
	}
}

func TestCommandFlexPrefixRoundTrip(t *testing.T) {
	cmd := &Command{Name: "onBWDone", TransactionID: 0, CmdObj: amf0.Null()}

	encoded := cmd.Encode(true)
	if encoded[0] != 0x00 {
		t.Fatalf("flex-prefixed encoding should start with 0x00 marker byte")
	}

	decoded := Decode(encoded, true)
	if decoded.Name != "onBWDone" {
		t.Fatalf("Name = %q, want onBWDone", decoded.Name)
	}
}

func TestCommandArgOutOfRangeIsUndefined(t *testing.T) {
	cmd := &Command{Name: "play", Args: []*amf0.Value{amf0.String("only-one")}}

	if !cmd.Arg(5).IsUndefined() {
		t.Fatalf("out-of-range Arg should be undefined")
	}
	if cmd.Arg(0).GetString() != "only-one" {
		t.Fatalf("Arg(0) = %q, want only-one", cmd.Arg(0).GetString())
	}
}

func TestDecodeDataAndBuildMetadataPayload(t *testing.T) {
	meta := amf0.NewObject()
	meta.Set("width", amf0.Number(1920))
	meta.Set("height", amf0.Number(1080))

	d := &Data{
		Tag:    "@setDataFrame",
		Values: []*amf0.Value{amf0.String("onMetaData"), amf0.NewObjectValue(meta)},
	}

	payload := BuildMetadataPayload(d)
	if payload == nil {
		t.Fatalf("BuildMetadataPayload returned nil")
	}

	decoded := DecodeData(payload)
	if decoded.Tag != "onMetaData" {
		t.Fatalf("Tag = %q, want onMetaData", decoded.Tag)
	}
	if len(decoded.Values) != 1 {
		t.Fatalf("Values = %+v, want one metadata object", decoded.Values)
	}
	if decoded.Values[0].GetProperty("width").GetDouble() != 1920 {
		t.Fatalf("width = %v, want 1920", decoded.Values[0].GetProperty("width").GetDouble())
	}
}

func TestBuildMetadataPayloadMissingArgsReturnsNil(t *testing.T) {
	d := &Data{Tag: "@setDataFrame", Values: []*amf0.Value{amf0.String("onMetaData")}}
	if BuildMetadataPayload(d) != nil {
		t.Fatalf("expected nil when @setDataFrame lacks its object argument")
	}
}

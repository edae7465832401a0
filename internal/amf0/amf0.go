// Package amf0 implements Action Message Format 0: the typed,
// self-describing binary value language RTMP command and metadata
// messages are built from.
package amf0

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/nodewire-systems/rtmp-relay/internal/amf3"
)

const (
	TypeNumber     = 0x00
	TypeBool       = 0x01
	TypeString     = 0x02
	TypeObject     = 0x03
	TypeNull       = 0x05
	TypeUndefined  = 0x06
	TypeRef        = 0x07
	TypeArray      = 0x08
	TypeStrictArr  = 0x0A
	TypeDate       = 0x0B
	TypeLongString = 0x0C
	TypeXMLDoc     = 0x0F
	TypeTypedObj   = 0x10
	TypeSwitchAMF3 = 0x11

	ObjectTermCode = 0x09
)

// Object is an insertion-ordered string-keyed map: Go's map type has no
// defined iteration order, and the wire format requires keys to be
// written back out in the order they were set.
type Object struct {
	keys   []string
	values map[string]*Value
}

func NewObject() *Object {
	return &Object{values: make(map[string]*Value)}
}

func (o *Object) Set(key string, v *Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Get(key string) *Value {
	if v, ok := o.values[key]; ok {
		return v
	}
	undef := create(TypeUndefined)
	return &undef
}

func (o *Object) Keys() []string {
	return o.keys
}

func (o *Object) Len() int {
	return len(o.keys)
}

type Value struct {
	amfType  byte
	boolVal  bool
	strVal   string
	intVal   int64
	floatVal float64
	objVal   *Object
	arrVal   []*Value
	amf3Val  *amf3.Value
}

func create(t byte) Value {
	return Value{amfType: t, objVal: NewObject(), arrVal: make([]*Value, 0)}
}

/* Constructors */

func Number(n float64) *Value {
	v := create(TypeNumber)
	v.SetFloat(n)
	return &v
}

func Bool(b bool) *Value {
	v := create(TypeBool)
	v.boolVal = b
	return &v
}

func String(s string) *Value {
	v := create(TypeString)
	v.strVal = s
	return &v
}

func LongString(s string) *Value {
	v := create(TypeLongString)
	v.strVal = s
	return &v
}

func Null() *Value {
	v := create(TypeNull)
	return &v
}

func Undefined() *Value {
	v := create(TypeUndefined)
	return &v
}

func NewObjectValue(o *Object) *Value {
	v := create(TypeObject)
	v.objVal = o
	return &v
}

func NewArrayValue(o *Object) *Value {
	v := create(TypeArray)
	v.objVal = o
	return &v
}

func NewStrictArray(items []*Value) *Value {
	v := create(TypeStrictArr)
	v.arrVal = items
	return &v
}

func (v *Value) SetFloat(val float64) {
	v.floatVal = val
	v.intVal = int64(val)
}

func (v *Value) SetInteger(val int64) {
	v.intVal = val
	v.floatVal = float64(val)
}

func (v *Value) ToString(tabs string) string {
	if v.IsAMF3() {
		return "AMF3()"
	}
	switch v.amfType {
	case TypeNull:
		return "NULL"
	case TypeUndefined:
		return "UNDEFINED"
	case TypeBool:
		if v.boolVal {
			return "TRUE"
		}
		return "FALSE"
	case TypeString:
		return "'" + v.strVal + "'"
	case TypeLongString:
		return "L'" + v.strVal + "'"
	case TypeXMLDoc:
		return "XML'" + v.strVal + "'"
	case TypeNumber:
		return fmt.Sprintf("%f", v.floatVal)
	case TypeDate:
		return fmt.Sprintf("DATE(%f)", v.floatVal)
	case TypeRef:
		return "REF#" + strconv.Itoa(int(v.intVal))
	case TypeObject, TypeTypedObj, TypeArray:
		str := "{\n"
		for _, key := range v.objVal.Keys() {
			str += tabs + "    '" + key + "' = " + v.objVal.Get(key).ToString(tabs+"    ") + "\n"
		}
		str += tabs + "}"
		return str
	case TypeStrictArr:
		str := " STRICT_ARRAY [\n"
		for i := 0; i < len(v.arrVal); i++ {
			str += tabs + "    " + v.arrVal[i].ToString(tabs+"    ") + "\n"
		}
		str += tabs + "]"
		return str
	default:
		return "UNKNOWN_TYPE"
	}
}

func (v *Value) IsAMF3() bool {
	return v.amfType == TypeSwitchAMF3 && v.amf3Val != nil
}

func (v *Value) IsUndefined() bool {
	if v.IsAMF3() {
		return v.amf3Val.Type == amf3.TypeUndefined
	}
	return v.amfType == TypeUndefined
}

func (v *Value) IsNull() bool {
	if v.IsAMF3() {
		return v.amf3Val.Type == amf3.TypeNull
	}
	return v.amfType == TypeNull
}

func (v *Value) GetBool() bool {
	switch {
	case v.IsAMF3():
		return v.amf3Val.GetBool()
	case v.amfType == TypeBool:
		return v.boolVal
	case v.amfType == TypeNumber:
		return v.floatVal != 0
	default:
		return false
	}
}

func (v *Value) GetInteger() int64 {
	if v.IsAMF3() {
		return int64(v.amf3Val.Int)
	}
	return v.intVal
}

func (v *Value) GetDouble() float64 {
	if v.IsAMF3() {
		return v.amf3Val.Float
	}
	return v.floatVal
}

func (v *Value) GetString() string {
	if v.IsAMF3() {
		return v.amf3Val.Str
	}
	return v.strVal
}

func (v *Value) GetByteArray() []byte {
	if v.IsAMF3() {
		return v.amf3Val.Bytes
	}
	return []byte(v.strVal)
}

func (v *Value) GetObject() *Object {
	if v.IsAMF3() {
		return NewObject()
	}
	return v.objVal
}

func (v *Value) GetProperty(name string) *Value {
	return v.GetObject().Get(name)
}

func (v *Value) GetArray() []*Value {
	if v.IsAMF3() {
		return nil
	}
	return v.arrVal
}

/* Encoding */

func EncodeOne(val *Value) []byte {
	result := []byte{val.amfType}

	switch val.amfType {
	case TypeNumber:
		result = append(result, encodeNumber(val.floatVal)...)
	case TypeBool:
		result = append(result, encodeBool(val.boolVal)...)
	case TypeDate:
		result = append(result, encodeDate(val.floatVal)...)
	case TypeString, TypeXMLDoc:
		result = append(result, encodeString(val.strVal)...)
	case TypeLongString:
		result = append(result, encodeLongString(val.strVal)...)
	case TypeObject:
		result = append(result, encodeObject(val.objVal)...)
	case TypeRef:
		result = append(result, encodeRef(uint16(val.intVal))...)
	case TypeArray:
		result = append(result, encodeArray(val.objVal)...)
	case TypeStrictArr:
		result = append(result, encodeStrictArray(val.arrVal)...)
	case TypeTypedObj:
		result = append(result, encodeTypedObject(val.strVal, val.objVal)...)
	case TypeSwitchAMF3:
		result = append(result, amf3.EncodeOne(*val.amf3Val)...)
	}

	return result
}

func encodeNumber(num float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(num))
	return b
}

func encodeBool(b bool) []byte {
	if b {
		return []byte{0x01}
	}
	return []byte{0x00}
}

func encodeDate(date float64) []byte {
	return append([]byte{0x00, 0x00}, encodeNumber(date)...)
}

func encodeString(str string) []byte {
	b := []byte(str)
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	return append(l, b...)
}

func encodeLongString(str string) []byte {
	b := []byte(str)
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(b)))
	return append(l, b...)
}

// encodeObject writes properties in insertion order, per the wire
// requirement — never sorted, since a Go map iteration would otherwise
// pick an unspecified order.
func encodeObject(o *Object) []byte {
	r := make([]byte, 0)

	for _, key := range o.Keys() {
		r = append(r, encodeString(key)...)
		r = append(r, EncodeOne(o.Get(key))...)
	}

	r = append(r, encodeString("")...)
	r = append(r, byte(ObjectTermCode))

	return r
}

func encodeArray(o *Object) []byte {
	r := make([]byte, 4)
	binary.BigEndian.PutUint32(r, uint32(o.Len()))
	return append(r, encodeObject(o)...)
}

func encodeStrictArray(array []*Value) []byte {
	r := make([]byte, 4)
	binary.BigEndian.PutUint32(r, uint32(len(array)))
	for i := 0; i < len(array); i++ {
		r = append(r, EncodeOne(array[i])...)
	}
	return r
}

func encodeRef(index uint16) []byte {
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, index)
	return l
}

func encodeTypedObject(className string, o *Object) []byte {
	r := encodeString(className)
	return append(r, encodeObject(o)...)
}

/* Decoding */

type DecodingStream struct {
	buffer []byte
	pos    int
}

func NewDecodingStream(buf []byte) *DecodingStream {
	return &DecodingStream{buffer: buf}
}

func (s *DecodingStream) Read(n int) []byte {
	r := s.buffer[s.pos:(s.pos + n)]
	s.pos += n
	return r
}

func (s *DecodingStream) Look(n int) []byte {
	return s.buffer[s.pos:(s.pos + n)]
}

func (s *DecodingStream) Skip(n int) {
	s.pos += n
}

func (s *DecodingStream) IsEnded() bool {
	return s.pos >= len(s.buffer)
}

func (s *DecodingStream) ReadOne() *Value {
	t := s.Read(1)[0]
	r := create(t)
	switch t {
	case TypeNumber:
		r.SetFloat(s.ReadNumber())
	case TypeBool:
		r.boolVal = s.ReadBool()
	case TypeDate:
		s.Skip(2)
		r.SetFloat(s.ReadNumber())
	case TypeString, TypeXMLDoc:
		r.strVal = s.ReadString()
	case TypeLongString:
		r.strVal = s.ReadLongString()
	case TypeObject:
		r.objVal = s.ReadObject()
	case TypeTypedObj:
		r.strVal, r.objVal = s.ReadTypedObject()
	case TypeRef:
		s.Skip(2)
	case TypeArray:
		r.objVal = s.ReadArray()
	case TypeStrictArr:
		r.arrVal = s.ReadStrictArray()
	case TypeSwitchAMF3:
		o3 := amf3.ReadValue(s)
		r.amf3Val = &o3
	}
	return &r
}

func (s *DecodingStream) ReadNumber() float64 {
	buf := s.Read(8)
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

func (s *DecodingStream) ReadBool() bool {
	return s.Read(1)[0] != 0x00
}

func (s *DecodingStream) ReadString() string {
	l := binary.BigEndian.Uint16(s.Read(2))
	return string(s.Read(int(l)))
}

func (s *DecodingStream) ReadLongString() string {
	l := binary.BigEndian.Uint32(s.Read(4))
	return string(s.Read(int(l)))
}

func (s *DecodingStream) ReadObject() *Object {
	o := NewObject()

	for !s.IsEnded() && s.Look(1)[0] != ObjectTermCode {
		propName := s.ReadString()

		if s.Look(1)[0] != ObjectTermCode {
			propVal := s.ReadOne()
			o.Set(propName, propVal)
		}
	}
	if !s.IsEnded() {
		s.Skip(1)
	}

	return o
}

func (s *DecodingStream) ReadArray() *Object {
	s.Skip(4)
	return s.ReadObject()
}

func (s *DecodingStream) ReadStrictArray() []*Value {
	r := make([]*Value, 0)

	l := binary.BigEndian.Uint32(s.Read(4))

	for i := uint32(0); i < l && !s.IsEnded(); i++ {
		v := s.ReadOne()
		r = append(r, v)
	}

	return r
}

func (s *DecodingStream) ReadTypedObject() (string, *Object) {
	className := s.ReadString()
	o := s.ReadObject()
	return className, o
}

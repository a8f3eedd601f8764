// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package table

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind of the Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "null"
}

// Value of a table cell which is a union of null, string, number (float64) or
// bool. The zero value is null.
type Value struct {
	Kind   Kind // which field to use as a value
	str    string
	number float64
	flag   bool
}

func String(s string) Value {
	return Value{Kind: KindString, str: s}
}

func Number(n float64) Value {
	return Value{Kind: KindNumber, number: n}
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, flag: b}
}

// ValueOf converts a generic JSON value as decoded by encoding/json. Nested
// objects and arrays are kept as their JSON text.
func ValueOf(js interface{}) Value {
	switch v := js.(type) {
	case nil:
		return Value{}
	case string:
		return String(v)
	case float64:
		return Number(v)
	case bool:
		return Bool(v)
	case json.Number:
		if n, err := v.Float64(); err == nil {
			return Number(n)
		}
		return String(v.String())
	}
	b, err := json.Marshal(js)
	if err != nil {
		return String(fmt.Sprintf("%v", js))
	}
	return String(string(b))
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Str returns the string value, if the Value is a string.
func (v Value) Str() (string, bool) { return v.str, v.Kind == KindString }

// Float returns the numeric value, if the Value is a number.
func (v Value) Float() (float64, bool) { return v.number, v.Kind == KindNumber }

// Flag returns the boolean value, if the Value is a bool.
func (v Value) Flag() (bool, bool) { return v.flag, v.Kind == KindBool }

// String representation of the value, as used in CSV and text output. Null is
// an empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindBool:
		if v.flag {
			return "TRUE"
		}
		return "FALSE"
	}
	return ""
}

// key is the join key of a non-null value. Values of different kinds never
// match, e.g. "20" and 20.
func (v Value) key() string {
	return fmt.Sprintf("%d:%s", v.Kind, v.String())
}

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

package message

import (
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/stockparfait/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Message is the building block of a YAML-based configuration. It typically
// represents a YAML mapping, and is implemented by a struct pointer holding
// the expected fields, e.g.:
//
//	type Period struct {
//	  Start int `yaml:"start" required:"true"`
//	  Stop  int `yaml:"stop" required:"true"`
//	}
//
//	type Params struct {
//	  Period   Period `yaml:"period" required:"true"`
//	  LogLevel string `yaml:"log_level" default:"info" choices:"debug,info"`
//	  Workers  int    `yaml:"workers" default:"1"`
//	  Ignored  int    `yaml:"-"`
//	}
//
//	func (p *Period) InitMessage(js interface{}) error {
//	  return message.Init(p, js)
//	}
//
// A field type whose pointer implements Message is initialized recursively.
type Message interface {
	// InitMessage converts a generic value decoded by yaml.v3 or encoding/json
	// into the specific message. Typically, it applies the defaults and rejects
	// missing required fields or unknown keys.
	InitMessage(js interface{}) error
}

var rMessage = reflect.TypeOf((*Message)(nil)).Elem()

func convertToMessage(jv interface{}, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t.Kind() != reflect.Ptr {
		return Nil, errors.Reason(
			"type %s implements Message but is not a pointer", t.Name())
	}
	ptr := reflect.New(t.Elem())
	if err := ptr.Interface().(Message).InitMessage(jv); err != nil {
		return Nil, errors.Annotate(err, "%s.InitMessage() failed", t.Elem().Name())
	}
	return ptr, nil
}

// toFloat accepts any numeric type produced by the YAML or JSON decoders.
func toFloat(jv interface{}) (float64, bool) {
	switch v := jv.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// toInt accepts integral numbers only, so that a year of 2020.5 is an error.
func toInt(jv interface{}) (int, bool) {
	switch v := jv.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// convertToType recursively converts a decoded value to basic types, slices and
// map[string]* of the target type. Types whose pointer implements Message are
// initialized with InitMessage(). If jv == nil, the result is the zero value,
// or the default Message value, as appropriate.
func convertToType(jv interface{}, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t.Implements(rMessage) {
		if jv == nil {
			return reflect.Zero(t), nil
		}
		return convertToMessage(jv, t)
	}
	if ptrTp := reflect.PtrTo(t); ptrTp.Implements(rMessage) {
		if jv == nil {
			jv = make(map[string]interface{}) // force default values for t
		}
		ptr, err := convertToMessage(jv, ptrTp)
		if err != nil {
			return Nil, err
		}
		return reflect.Indirect(ptr), nil
	}
	if jv == nil {
		return reflect.Zero(t), nil
	}
	switch t.Kind() {
	case reflect.Ptr:
		v, err := convertToType(jv, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil

	case reflect.Bool:
		v, ok := jv.(bool)
		if !ok {
			return Nil, errors.Reason("not a bool: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.Int:
		v, ok := toInt(jv)
		if !ok {
			return Nil, errors.Reason("not an integer: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.Float64:
		v, ok := toFloat(jv)
		if !ok {
			return Nil, errors.Reason("not a number: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.String:
		v, ok := jv.(string)
		if !ok {
			return Nil, errors.Reason("not a string: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Nil, errors.Reason(
				"map[%s] is not supported", t.Key().Kind().String())
		}
		m, ok := jv.(map[string]interface{})
		if !ok {
			return Nil, errors.Reason("not a map with string keys: %v", jv)
		}
		res := reflect.MakeMap(t)
		for k, v := range m {
			el, err := convertToType(v, t.Elem())
			if err != nil {
				return Nil, errors.Annotate(err, "key %s", k)
			}
			res.SetMapIndex(reflect.ValueOf(k), el)
		}
		return res, nil

	case reflect.Slice:
		s, ok := jv.([]interface{})
		if !ok {
			return Nil, errors.Reason("not a list: %v", jv)
		}
		res := reflect.MakeSlice(t, len(s), len(s))
		for i, v := range s {
			el, err := convertToType(v, t.Elem())
			if err != nil {
				return Nil, errors.Annotate(err, "element %d", i)
			}
			res.Index(i).Set(el)
		}
		return res, nil
	}
	return Nil, errors.Reason("unsupported type: %s", t.String())
}

// fromString converts a default value from a struct tag to the type t.
func fromString(s string, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	switch t.Kind() {
	case reflect.Ptr:
		v, err := fromString(s, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid bool value: %s", s)
		}
		return reflect.ValueOf(v), nil
	case reflect.Int:
		v, err := strconv.Atoi(s)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid int value: %s", s)
		}
		return reflect.ValueOf(v), nil
	case reflect.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid float64 value: %s", s)
		}
		return reflect.ValueOf(v), nil
	case reflect.String:
		return reflect.ValueOf(s), nil
	}
	return Nil, errors.Reason("type %s is not supported", t.String())
}

// checkSet sets the value fv of a struct field f to the value v after checking
// its `choices` tag, if any.
func checkSet(f reflect.StructField, fv reflect.Value, v reflect.Value) error {
	if choices, ok := f.Tag.Lookup("choices"); ok {
		if f.Type.Kind() != reflect.String {
			return errors.Reason(
				"choices tag applied to a non-string field: %s", f.Name)
		}
		s := v.String()
		if !slices.Contains(strings.Split(choices, ","), s) {
			return errors.Reason(
				"value for %s is not in its choice list: '%s'", f.Name, s)
		}
	}
	fv.Set(v)
	return nil
}

// fieldKey is the mapping key of the struct field: the name from the `yaml`
// tag, else the `json` tag, else the field name. Returns false if the field is
// excluded with "-".
func fieldKey(f reflect.StructField) (string, bool) {
	for _, tag := range []string{"yaml", "json"} {
		v, ok := f.Tag.Lookup(tag)
		if !ok {
			continue
		}
		name := strings.Split(v, ",")[0]
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return f.Name, true
}

// Init is a generic method to be used by most Message.InitMessage
// implementations. It expects m to be a struct pointer, and js to be a non-nil
// map[string]interface{}. It uses struct tags to know if a field is required or
// if it has a simple default value (such as a string, number or bool), and
// rejects unrecognized keys.
//
// Recognized struct tags:
// `yaml:"field_name" required:"true" default:"value" choices:"one,two,three"`
//
// The `yaml:` tag is compatible with gopkg.in/yaml.v3, and `json:` is used when
// `yaml:` is absent. Only exported fields are part of a message. The "choices"
// tag is supported only for string fields.
func Init(m Message, js interface{}) error {
	rt := reflect.TypeOf(m)
	if !(rt.Kind() == reflect.Ptr && rt.Elem().Kind() == reflect.Struct) {
		return errors.Reason(
			"expected Message instance to be a struct pointer, but got %s", rt.String())
	}
	if js == nil {
		return errors.Reason("message value is nil")
	}
	jsMap, ok := js.(map[string]interface{})
	if !ok {
		return errors.Reason("message value is not a mapping: %v", js)
	}

	rt = rt.Elem()
	rv := reflect.ValueOf(m).Elem()
	found := make(map[string]struct{})
	missingRequired := []string{}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		firstChar, _ := utf8.DecodeRuneInString(f.Name)
		if !unicode.IsUpper(firstChar) {
			continue
		}
		key, ok := fieldKey(f)
		if !ok {
			continue
		}
		rfv := rv.Field(i)
		if jv, ok := jsMap[key]; ok {
			found[key] = struct{}{}
			v, err := convertToType(jv, f.Type)
			if err != nil {
				return errors.Annotate(err, "error assigning field %s", key)
			}
			if err := checkSet(f, rfv, v); err != nil {
				return err
			}
			continue
		}
		if f.Tag.Get("required") == "true" {
			missingRequired = append(missingRequired, key)
			continue
		}
		if defaultVal, ok := f.Tag.Lookup("default"); ok {
			v, err := fromString(defaultVal, f.Type)
			if err != nil {
				return errors.Annotate(err, "error setting default value for %s", key)
			}
			if err := checkSet(f, rfv, v); err != nil {
				return err
			}
			continue
		}
		// The zero value still goes through checkSet for its `choices` tag.
		v, err := convertToType(nil, f.Type)
		if err != nil {
			return errors.Annotate(err, "error creating zero value for %s", key)
		}
		if err := checkSet(f, rfv, v); err != nil {
			return errors.Annotate(err, "error setting zero value for %s", key)
		}
	}
	if len(missingRequired) != 0 {
		return errors.Reason(
			"missing required fields: %s", strings.Join(missingRequired, ", "))
	}
	extra := []string{}
	for k := range jsMap {
		if _, ok := found[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) != 0 {
		sort.Strings(extra)
		return errors.Reason(
			"unsupported fields for %s: %s", rt.Name(), strings.Join(extra, ", "))
	}
	return nil
}

// FromYAML decodes a YAML document and initializes m from it. An empty document
// is an empty mapping, so that all the defaults apply.
func FromYAML(m Message, data []byte) error {
	var js interface{}
	if err := yaml.Unmarshal(data, &js); err != nil {
		return errors.Annotate(err, "failed to parse YAML")
	}
	if js == nil {
		js = make(map[string]interface{})
	}
	if err := m.InitMessage(js); err != nil {
		return errors.Annotate(err, "failed to initialize message")
	}
	return nil
}

// FromYAMLFile reads the YAML file and initializes m from it.
func FromYAMLFile(m Message, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotate(err, "failed to read %s", path)
	}
	if err := FromYAML(m, data); err != nil {
		return errors.Annotate(err, "failed to load %s", path)
	}
	return nil
}

// Package schema derives the model-facing JSON Schema from the canonical
// domain.BillOfLading type and validates model output against it.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"docai/internal/domain"
)

// resourceName is absolute so validation errors never carry a file path.
const resourceName = "mem://docai/bill_of_lading.json"

// Definition holds the derived schema for domain.BillOfLading.
type Definition struct {
	raw      []byte
	compiled *jsonschema.Schema
	validate *validator.Validate
}

// New derives and compiles the schema.
func New() (*Definition, error) {
	root, err := objectSchema(reflect.TypeOf(domain.BillOfLading{}))
	if err != nil {
		return nil, fmt.Errorf("schema.New: %w", err)
	}
	root["title"] = "BillOfLading"

	raw, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("schema.New marshal: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema.New add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema.New compile: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return sf.Name
		}
		return name
	})

	return &Definition{raw: raw, compiled: compiled, validate: v}, nil
}

// MustNew is New for package-level initialization.
func MustNew() *Definition {
	d, err := New()
	if err != nil {
		panic(err)
	}
	return d
}

// JSONSchema returns a fresh copy of the schema as a map.
func (d *Definition) JSONSchema() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(d.raw, &m)
	return m
}

// Raw returns the compact JSON encoding of the schema.
func (d *Definition) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// FormatInstructions renders the schema as prompt text telling the model how to shape its answer.
func (d *Definition) FormatInstructions() string {
	var pretty bytes.Buffer
	_ = json.Indent(&pretty, d.raw, "", "  ")

	var sb strings.Builder
	sb.WriteString("Respond with a single JSON object that conforms to the JSON Schema below. ")
	sb.WriteString("Use exactly the property names shown, include every required property, ")
	sb.WriteString("and do not add properties that are not in the schema.\n\n")
	sb.WriteString("```json\n")
	sb.Write(pretty.Bytes())
	sb.WriteString("\n```")
	return sb.String()
}

// Parse decodes raw model output, checks it against the schema and returns the typed record.
func (d *Definition) Parse(output string) (*domain.BillOfLading, error) {
	body := StripCodeFence(output)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("output is a JSON %s, expected an object", jsonKind(doc))
	}
	s := d.JSONSchema()
	pruneOptional(obj, s)
	coerceScalars(obj, s)

	if err := d.compiled.Validate(obj); err != nil {
		return nil, fmt.Errorf("output does not match schema: %w", err)
	}

	normalized, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encoding output: %w", err)
	}
	var bol domain.BillOfLading
	if err := json.Unmarshal(normalized, &bol); err != nil {
		return nil, fmt.Errorf("decoding output: %w", err)
	}

	if err := d.Validate(&bol); err != nil {
		return nil, err
	}
	return &bol, nil
}

// Validate runs struct-level rules on an already decoded record.
func (d *Definition) Validate(bol *domain.BillOfLading) error {
	err := d.validate.Struct(bol)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validating output: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fieldPath(e.Namespace())+" "+formatValidationError(e))
	}
	return fmt.Errorf("output failed validation: %s", strings.Join(msgs, "; "))
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func objectSchema(t reflect.Type) (map[string]any, error) {
	props := make(map[string]any, t.NumField())
	required := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, omitempty := jsonName(sf)
		if name == "-" {
			continue
		}

		prop, err := typeSchema(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if desc := sf.Tag.Get("description"); desc != "" {
			prop["description"] = desc
		}
		applyValidateTag(prop, sf.Tag.Get("validate"))

		props[name] = prop
		if !omitempty && sf.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s, nil
}

func typeSchema(t reflect.Type) (map[string]any, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Slice:
		items, err := typeSchema(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Struct:
		return objectSchema(t)
	default:
		return nil, fmt.Errorf("unsupported kind %v", t.Kind())
	}
}

// applyValidateTag mirrors the numeric validator rules that JSON Schema can express.
func applyValidateTag(prop map[string]any, tag string) {
	if tag == "" {
		return
	}
	for _, rule := range strings.Split(tag, ",") {
		if rule == "dive" {
			break
		}
		key, val, _ := strings.Cut(rule, "=")
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch {
		case key == "gte" && prop["type"] == "integer":
			prop["minimum"] = n
		case key == "min" && prop["type"] == "array":
			prop["minItems"] = n
		}
	}
}

func jsonName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name, false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = sf.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			return name, true
		}
	}
	return name, false
}

// pruneOptional drops optional properties the model left null, empty or "Unknown".
func pruneOptional(obj map[string]any, s map[string]any) {
	props, _ := s["properties"].(map[string]any)
	required := map[string]bool{}
	if req, ok := s["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	for key, val := range obj {
		sub, _ := props[key].(map[string]any)
		if !required[key] && isBlank(val) {
			delete(obj, key)
			continue
		}
		switch v := val.(type) {
		case map[string]any:
			if sub != nil {
				pruneOptional(v, sub)
			}
		case []any:
			items, _ := sub["items"].(map[string]any)
			if items == nil {
				continue
			}
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					pruneOptional(m, items)
				}
			}
		}
	}
}

// coerceScalars converts scalar values to the type their property declares:
// numbers and booleans become strings for string properties, numeric strings
// become numbers for integer and number properties. A blank integer becomes 0.
// NUL characters are dropped from strings.
// Values that cannot be converted are left for the schema check to reject.
func coerceScalars(obj map[string]any, s map[string]any) {
	props, _ := s["properties"].(map[string]any)
	for key, val := range obj {
		sub, _ := props[key].(map[string]any)
		if sub == nil {
			continue
		}
		obj[key] = coerceValue(val, sub)
	}
}

func coerceValue(val any, s map[string]any) any {
	switch s["type"] {
	case "object":
		if m, ok := val.(map[string]any); ok {
			coerceScalars(m, s)
		}
	case "array":
		items, _ := s["items"].(map[string]any)
		if list, ok := val.([]any); ok && items != nil {
			for i, item := range list {
				list[i] = coerceValue(item, items)
			}
		}
	case "string":
		switch v := val.(type) {
		case string:
			return strings.ReplaceAll(v, "\x00", "")
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	case "integer":
		switch v := val.(type) {
		case string:
			if isBlank(v) {
				return float64(0)
			}
			if f, ok := parseNumber(v); ok && f == math.Trunc(f) {
				return f
			}
		case float64:
			if v == math.Trunc(v) {
				return v
			}
		}
	case "number":
		if v, ok := val.(string); ok {
			if f, ok := parseNumber(v); ok {
				return f
			}
		}
	}
	return val
}

// parseNumber accepts plain numerals with optional thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		t := strings.TrimSpace(s)
		return t == "" || strings.EqualFold(t, "unknown")
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return "value"
}

func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

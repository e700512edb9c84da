package promptkit

import (
	"reflect"
	"sync"
)

type payloadField struct {
	index int
	tag   string
}

type payloadSchema struct {
	fields []payloadField
}

var payloadCache sync.Map // reflect.Type -> *payloadSchema

// VariablesFromStruct reads fields tagged `prompt:"name"` into a variables map.
// payload must be a struct or a pointer to one with at least one tagged field.
func VariablesFromStruct(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, ErrInvalidPayload
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, ErrInvalidPayload
	}
	typ := v.Type()
	var schema *payloadSchema
	if cached, ok := payloadCache.Load(typ); ok {
		schema = cached.(*payloadSchema)
	} else {
		schema = &payloadSchema{}
		for i := range typ.NumField() {
			f := typ.Field(i)
			tag := f.Tag.Get("prompt")
			if tag == "" || tag == "-" || !f.IsExported() {
				continue
			}
			schema.fields = append(schema.fields, payloadField{index: i, tag: tag})
		}
		if len(schema.fields) == 0 {
			return nil, ErrInvalidPayload
		}
		payloadCache.Store(typ, schema)
	}
	vars := make(map[string]any, len(schema.fields))
	for _, fi := range schema.fields {
		vars[fi.tag] = v.Field(fi.index).Interface()
	}
	return vars, nil
}

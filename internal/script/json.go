package script

import (
	"encoding/json"
	"fmt"
)

// jsonValue is the persisted form of a portable value. Closures and builtin
// references are not persistable; values containing them fail to marshal.
type jsonValue struct {
	Nil  bool                  `json:"nil,omitempty"`
	Bool *bool                 `json:"bool,omitempty"`
	Num  *float64              `json:"num,omitempty"`
	Str  *string               `json:"str,omitempty"`
	Arr  []*jsonValue          `json:"arr,omitempty"`
	Map  map[string]*jsonValue `json:"map,omitempty"`
	Tbl  bool                  `json:"tbl,omitempty"`
}

// MarshalValue serializes a portable value for persistence.
func MarshalValue(v Value) ([]byte, error) {
	jv, err := toJSONValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jv)
}

// UnmarshalValue restores a persisted portable value.
func UnmarshalValue(data []byte) (Value, error) {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return nil, err
	}
	return fromJSONValue(&jv), nil
}

func toJSONValue(v Value) (*jsonValue, error) {
	switch val := v.(type) {
	case nil:
		return &jsonValue{Nil: true}, nil
	case bool:
		return &jsonValue{Bool: &val}, nil
	case float64:
		return &jsonValue{Num: &val}, nil
	case int:
		f := float64(val)
		return &jsonValue{Num: &f}, nil
	case string:
		return &jsonValue{Str: &val}, nil
	case *Table:
		jv := &jsonValue{Tbl: true}
		for _, el := range val.Arr {
			sub, err := toJSONValue(el)
			if err != nil {
				return nil, err
			}
			jv.Arr = append(jv.Arr, sub)
		}
		if len(val.Map) > 0 {
			jv.Map = make(map[string]*jsonValue, len(val.Map))
			for k, el := range val.Map {
				sub, err := toJSONValue(el)
				if err != nil {
					return nil, err
				}
				jv.Map[k] = sub
			}
		}
		return jv, nil
	default:
		return nil, fmt.Errorf("value of type %T is not persistable", v)
	}
}

func fromJSONValue(jv *jsonValue) Value {
	switch {
	case jv == nil || jv.Nil:
		return nil
	case jv.Bool != nil:
		return *jv.Bool
	case jv.Num != nil:
		return *jv.Num
	case jv.Str != nil:
		return *jv.Str
	case jv.Tbl || jv.Arr != nil || jv.Map != nil:
		t := NewTable()
		for _, el := range jv.Arr {
			t.Arr = append(t.Arr, fromJSONValue(el))
		}
		for k, el := range jv.Map {
			t.Map[k] = fromJSONValue(el)
		}
		return t
	default:
		return nil
	}
}

package flake

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Wire form of a value: a two-element tagged shape so decoding never
// depends on JSON's single number type. Sentinel kinds are not
// serializable; they exist only as in-memory range bounds.
type valueWire struct {
	K ValueKind       `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	switch v.Kind {
	case KindNull:
		return json.Marshal(valueWire{K: KindNull})
	case KindMin, KindMax:
		return nil, fmt.Errorf("cannot serialize sentinel value kind %d", v.Kind)
	case KindInt, KindRef:
		raw, err = json.Marshal(v.Int)
	case KindFloat:
		raw, err = json.Marshal(v.Flt)
	case KindDecimal, KindString, KindJSON:
		raw, err = json.Marshal(v.Str)
	case KindBool:
		raw, err = json.Marshal(v.Bool)
	case KindBytes:
		raw, err = json.Marshal(base64.StdEncoding.EncodeToString(v.Byt))
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueWire{K: v.Kind, V: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.Kind = w.K
	switch w.K {
	case KindNull:
		return nil
	case KindInt, KindRef:
		return json.Unmarshal(w.V, &v.Int)
	case KindFloat:
		return json.Unmarshal(w.V, &v.Flt)
	case KindDecimal, KindString, KindJSON:
		return json.Unmarshal(w.V, &v.Str)
	case KindBool:
		return json.Unmarshal(w.V, &v.Bool)
	case KindBytes:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		v.Byt = b
		return nil
	default:
		return fmt.Errorf("unknown value kind %d", w.K)
	}
}

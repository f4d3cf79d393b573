package workflow

import "encoding/json"

// Values carries a run's named inputs and outputs between stages. Each
// stage receives the merge of the run's initial inputs and every earlier
// stage's outputs, keyed by name.
//
// Values must survive a JSON round trip when a run is parked, so stages
// that only ever run post-resume may hold richer types, but anything
// present at suspension time has to be JSON-representable.
type Values map[string]any

func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge returns a copy of v with other's entries layered on top.
func (v Values) Merge(other Values) Values {
	out := v.Clone()
	for k, val := range other {
		out[k] = val
	}
	return out
}

// String reads a string value; missing or mistyped keys yield "".
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// StringSlice reads a []string value. It also accepts []any holding
// strings, which is what a JSON round trip of a parked run produces.
func (v Values) StringSlice(key string) []string {
	switch x := v[key].(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (v Values) marshal() ([]byte, error) { return json.Marshal(v) }

func unmarshalValues(b []byte) (Values, error) {
	var v Values
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = Values{}
	}
	return v, nil
}

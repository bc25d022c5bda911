package store

import (
	"encoding/json"
	"fmt"
	"math"
)

// jsonValues encodes non-finite values as the strings "Inf", "-Inf" and
// "NaN", which encoding/json cannot represent as numbers.
type jsonValues map[string]float64

func (v jsonValues) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(v))
	for k, x := range v {
		switch {
		case math.IsInf(x, 1):
			out[k] = "Inf"
		case math.IsInf(x, -1):
			out[k] = "-Inf"
		case math.IsNaN(x):
			out[k] = "NaN"
		default:
			out[k] = x
		}
	}
	return json.Marshal(out)
}

func (v *jsonValues) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make(jsonValues, len(raw))
	for k, x := range raw {
		switch x := x.(type) {
		case float64:
			out[k] = x
		case string:
			switch x {
			case "Inf", "+Inf":
				out[k] = math.Inf(1)
			case "-Inf":
				out[k] = math.Inf(-1)
			case "NaN":
				out[k] = math.NaN()
			default:
				return fmt.Errorf("value %s: invalid number %q", k, x)
			}
		default:
			return fmt.Errorf("value %s: unexpected %T", k, x)
		}
	}
	*v = out
	return nil
}

// caseJSON shadows the value maps of Case with their non-finite safe form.
type caseJSON struct {
	*plainCase
	Params   jsonValues `json:"params,omitempty"`
	Unknowns jsonValues `json:"unknowns"`
}

type plainCase Case

func (c Case) MarshalJSON() ([]byte, error) {
	pc := plainCase(c)
	return json.Marshal(caseJSON{
		plainCase: &pc,
		Params:    jsonValues(c.Params),
		Unknowns:  jsonValues(c.Unknowns),
	})
}

func (c *Case) UnmarshalJSON(data []byte) error {
	aux := caseJSON{plainCase: (*plainCase)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Params = map[string]float64(aux.Params)
	c.Unknowns = map[string]float64(aux.Unknowns)
	return nil
}

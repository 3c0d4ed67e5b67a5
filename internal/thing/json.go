package thing

import (
	"bytes"
	"encoding/json"
)

// object is a JSON object that keeps insertion order. Descriptions and
// value maps are keyed by item id and must list items in declared order,
// which map[string]any cannot do.
type object []member

type member struct {
	key string
	val any
}

func (o *object) set(key string, val any) {
	*o = append(*o, member{key: key, val: val})
}

// MarshalJSON writes the members in insertion order.
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.val)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

package thing

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Context is the JSON-LD context advertised in every description.
const Context = "https://iot.mozilla.org/schemas"

// Describe encodes the device description document. wsBase, when set
// (e.g. "ws://lamp.local:8080"), adds an alternate link to the device's
// live-update channel.
func Describe(d *Device, wsBase string) ([]byte, error) {
	return json.Marshal(description(d, wsBase, false))
}

// DescribeAll encodes the descriptions of every device as an array, each
// with an href to its own resource.
func DescribeAll(devices []*Device, wsBase string) ([]byte, error) {
	out := make([]object, 0, len(devices))
	for _, d := range devices {
		out = append(out, description(d, wsBase, true))
	}
	return json.Marshal(out)
}

func description(d *Device, wsBase string, withHref bool) object {
	base := "/things/" + d.ID

	o := object{}
	o.set("id", d.ID)
	o.set("title", d.Title)
	o.set("@context", Context)
	types := d.Types
	if types == nil {
		types = []string{}
	}
	o.set("@type", types)
	if d.Description != "" {
		o.set("description", d.Description)
	}
	o.set("securityDefinitions", object{{key: "nosec_sc", val: object{{key: "scheme", val: "nosec"}}}})
	o.set("security", "nosec_sc")
	if withHref {
		o.set("href", base)
	}

	props := object{}
	for _, p := range d.Properties() {
		schema := itemSchema(&p.Item, base+"/properties/"+p.ID)
		if len(p.Enum) > 0 {
			schema = insertBefore(schema, "links", member{key: "enum", val: p.Enum})
		}
		props.set(p.ID, schema)
	}
	o.set("properties", props)

	actions := object{}
	for _, a := range d.Actions() {
		schema := object{}
		if a.Title != "" {
			schema.set("title", a.Title)
		}
		if a.Description != "" {
			schema.set("description", a.Description)
		}
		if a.SemanticType != "" {
			schema.set("@type", a.SemanticType)
		}
		if len(bytes.TrimSpace(a.Input)) > 0 {
			schema.set("input", a.Input)
		}
		schema.set("links", []object{{{key: "href", val: base + "/actions/" + a.ID}}})
		actions.set(a.ID, schema)
	}
	o.set("actions", actions)

	events := object{}
	for _, e := range d.Events() {
		events.set(e.ID, itemSchema(&e.Item, base+"/events/"+e.ID))
	}
	o.set("events", events)

	links := []object{
		{{key: "rel", val: "properties"}, {key: "href", val: base + "/properties"}},
		{{key: "rel", val: "actions"}, {key: "href", val: base + "/actions"}},
		{{key: "rel", val: "events"}, {key: "href", val: base + "/events"}},
	}
	if wsBase != "" {
		links = append(links, object{
			{key: "rel", val: "alternate"},
			{key: "href", val: strings.TrimRight(wsBase, "/") + base},
		})
	}
	o.set("links", links)
	return o
}

// itemSchema builds the schema block for a property or event. Range
// constraints are emitted only when Minimum < Maximum.
func itemSchema(it *Item, href string) object {
	s := object{}
	if it.Type != TypeNone {
		s.set("type", it.Type.String())
	}
	if it.Title != "" {
		s.set("title", it.Title)
	}
	if it.Description != "" {
		s.set("description", it.Description)
	}
	if it.SemanticType != "" {
		s.set("@type", it.SemanticType)
	}
	if it.Unit != "" {
		s.set("unit", it.Unit)
	}
	if it.ReadOnly {
		s.set("readOnly", true)
	}
	if it.HasRange() {
		s.set("minimum", it.Minimum)
		s.set("maximum", it.Maximum)
	}
	if it.MultipleOf > 0 {
		s.set("multipleOf", it.MultipleOf)
	}
	s.set("links", []object{{{key: "href", val: href}}})
	return s
}

func insertBefore(o object, key string, m member) object {
	for i := range o {
		if o[i].key == key {
			out := make(object, 0, len(o)+1)
			out = append(out, o[:i]...)
			out = append(out, m)
			return append(out, o[i:]...)
		}
	}
	return append(o, m)
}

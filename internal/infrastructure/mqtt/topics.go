package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots every topic when no prefix is configured.
const DefaultTopicPrefix = "webthing"

// Topic kinds below {prefix}/things/{id}/.
const (
	KindProperties = "properties"
	KindEvents     = "events"
	KindActions    = "actions"
)

// Topics builds the topic hierarchy under one prefix:
//
//	{prefix}/things/{id}/properties/{name}          retained value
//	{prefix}/things/{id}/properties/{name}/set      inbound write
//	{prefix}/things/{id}/events/{name}              event instance
//	{prefix}/things/{id}/actions/{name}/status      invocation status
//	{prefix}/things/{id}/actions/{name}/request     inbound request
//	{prefix}/system/status                          online/offline (LWT)
type Topics struct {
	Prefix string
}

// NewTopics returns builders for prefix, falling back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// SystemStatus returns the retained online/offline topic.
//
// Example: webthing/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Prefix)
}

// Property returns the retained value topic of a property.
//
// Example: webthing/things/lamp/properties/on
func (t Topics) Property(thingID, name string) string {
	return fmt.Sprintf("%s/things/%s/%s/%s", t.Prefix, thingID, KindProperties, name)
}

// PropertySet returns the inbound write topic of a property.
//
// Example: webthing/things/lamp/properties/on/set
func (t Topics) PropertySet(thingID, name string) string {
	return t.Property(thingID, name) + "/set"
}

// Event returns the topic an event instance is published on.
//
// Example: webthing/things/lamp/events/overheated
func (t Topics) Event(thingID, name string) string {
	return fmt.Sprintf("%s/things/%s/%s/%s", t.Prefix, thingID, KindEvents, name)
}

// ActionStatus returns the invocation status topic of an action.
//
// Example: webthing/things/lamp/actions/fade/status
func (t Topics) ActionStatus(thingID, name string) string {
	return fmt.Sprintf("%s/things/%s/%s/%s/status", t.Prefix, thingID, KindActions, name)
}

// ActionRequest returns the inbound request topic of an action.
//
// Example: webthing/things/lamp/actions/fade/request
func (t Topics) ActionRequest(thingID, name string) string {
	return fmt.Sprintf("%s/things/%s/%s/%s/request", t.Prefix, thingID, KindActions, name)
}

// AllPropertySets matches every property write topic.
//
// Pattern: webthing/things/+/properties/+/set
func (t Topics) AllPropertySets() string {
	return fmt.Sprintf("%s/things/+/%s/+/set", t.Prefix, KindProperties)
}

// AllActionRequests matches every action request topic.
//
// Pattern: webthing/things/+/actions/+/request
func (t Topics) AllActionRequests() string {
	return fmt.Sprintf("%s/things/+/%s/+/request", t.Prefix, KindActions)
}

// ThingTopic is a parsed {prefix}/things/{id}/{kind}/{name}[/{verb}] topic.
type ThingTopic struct {
	ThingID string
	Kind    string
	Name    string
	Verb    string
}

// Parse splits a thing topic under this prefix. ok is false for topics
// outside {prefix}/things/ or with the wrong number of levels.
func (t Topics) Parse(topic string) (ThingTopic, bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/things/")
	if !found {
		return ThingTopic{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || len(parts) > 4 {
		return ThingTopic{}, false
	}
	for _, p := range parts {
		if p == "" {
			return ThingTopic{}, false
		}
	}
	tt := ThingTopic{ThingID: parts[0], Kind: parts[1], Name: parts[2]}
	if len(parts) == 4 {
		tt.Verb = parts[3]
	}
	return tt, true
}

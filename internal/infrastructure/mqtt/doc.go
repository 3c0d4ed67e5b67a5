// Package mqtt provides the MQTT client used to mirror things onto a
// broker.
//
// The client reconnects automatically, restores its subscriptions and
// maintains a retained online/offline flag on {prefix}/system/status,
// with the broker's Last Will publishing "offline" after a crash.
//
// Topics builds the per-thing hierarchy:
//
//	topics := mqtt.NewTopics("webthing")
//	topics.Property("lamp", "on")        // webthing/things/lamp/properties/on
//	topics.AllPropertySets()             // webthing/things/+/properties/+/set
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllActionRequests(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt

package bridge

import (
	"fmt"
	"strings"
)

// TopicPrefixAppSubscriptions is the namespace for per-device update
// topics. Inbound messages on prd/app_subscriptions/<device_id> carry a
// device identifier; other topic shapes do not.
const TopicPrefixAppSubscriptions = "prd/app_subscriptions"

// Topics provides builders for broker topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceSubscription returns the update topic for a device.
//
// Example: prd/app_subscriptions/dev123
func (Topics) DeviceSubscription(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAppSubscriptions, deviceID)
}

// ParseDeviceID extracts the device identifier from an update topic.
//
// Only topics under prd/app_subscriptions carry one; for any other topic
// shape the second return value is false and the identifier is empty.
//
// Example: "prd/app_subscriptions/dev123" → ("dev123", true)
func ParseDeviceID(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "prd" || parts[1] != "app_subscriptions" {
		return "", false
	}
	if parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// Package mqtt provides the broadcast pub/sub transport: any pub/sub
// broker offering prefix-equivalent filtering, non-blocking poll, and
// multipart-equivalent framing fits this role equally well. The broker
// dispatches by topic match instead of a raw byte prefix, so the
// 2-byte filter prefix used elsewhere in this module is carried as a
// three-segment topic path instead of a wire prefix (see
// topicFor/parseTopic).
package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentmesh/agentmesh/internal/message"
)

const topicRoot = "agentmesh"

// tagSegment maps a filter tag to its topic-path segment name.
func tagSegment(tag message.Tag) string {
	switch tag {
	case message.SendToAgent:
		return "agent"
	case message.BroadcastToSystem:
		return "bsys"
	default:
		return "ball"
	}
}

func segmentTag(seg string) (message.Tag, bool) {
	switch seg {
	case "agent":
		return message.SendToAgent, true
	case "bsys":
		return message.BroadcastToSystem, true
	case "ball":
		return message.BroadcastToAll, true
	default:
		return 0, false
	}
}

// topicFor returns the publish topic for prefix, e.g.
// "agentmesh/agent/3" or "agentmesh/ball/0".
func topicFor(prefix message.FilterPrefix) string {
	return fmt.Sprintf("%s/%s/%d", topicRoot, tagSegment(prefix.Tag), prefix.SystemByte)
}

// parseTopic reverses topicFor, used by a Subscriber to recover the
// FilterPrefix of a received frame from its topic string.
func parseTopic(topic string) (message.FilterPrefix, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != topicRoot {
		return message.FilterPrefix{}, fmt.Errorf("mqtt: unrecognized topic %q", topic)
	}
	tag, ok := segmentTag(parts[1])
	if !ok {
		return message.FilterPrefix{}, fmt.Errorf("mqtt: unrecognized topic tag %q", parts[1])
	}
	sysByte, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return message.FilterPrefix{}, fmt.Errorf("mqtt: unrecognized topic system byte %q: %w", parts[2], err)
	}
	return message.FilterPrefix{Tag: tag, SystemByte: message.SystemId(sysByte)}, nil
}

// subscriptionTopics returns the topic filters a Subscriber for system
// s must install to receive exactly its traffic: unicast to s,
// system-targeted broadcast to s, and the global broadcast. The
// single-byte legacy filter [s] from message.SubscriptionFilters has no
// topic-path equivalent under MQTT and is intentionally dropped — see
// DESIGN.md.
func subscriptionTopics(s message.SystemId) []string {
	return []string{
		fmt.Sprintf("%s/agent/%d", topicRoot, s),
		fmt.Sprintf("%s/bsys/%d", topicRoot, s),
		fmt.Sprintf("%s/ball/0", topicRoot),
	}
}

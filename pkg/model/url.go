package model

import (
	"net/url"
	"strings"
)

// TopicURL returns the canonical URL of a topic, e.g.
// "https://ntfy.sh/mytopic".
func TopicURL(baseURL, topic string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + topic
}

// TopicURLUp returns the push-delivery endpoint handed to external apps
// during registration.
func TopicURLUp(baseURL, topic string) string {
	return TopicURL(baseURL, topic) + "?up=1"
}

// TopicURLStream returns the event-stream URL for a topic. An empty since
// cursor subscribes to new messages only.
func TopicURLStream(baseURL, topic, since string) string {
	u := TopicURL(baseURL, topic) + "/sse"
	if since != "" {
		u += "?since=" + url.QueryEscape(since)
	}
	return u
}

// TopicURLPoll returns the one-shot poll URL for a topic. An empty since
// cursor fetches all cached messages.
func TopicURLPoll(baseURL, topic, since string) string {
	if since == "" {
		since = "all"
	}
	return TopicURL(baseURL, topic) + "/json?poll=1&since=" + url.QueryEscape(since)
}

package broadcast

import "strings"

// TopicBroadcast is the topic every connection is subscribed to on open.
const TopicBroadcast = "broadcast"

// PathTopic returns the topic a connection opened on path is subscribed to.
func PathTopic(path string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "path:" + path
}

// topicTable maps topic names to subscribers. It is owned by the event loop.
type topicTable struct {
	topics map[string]map[*subscriber]struct{}
}

func newTopicTable() *topicTable {
	return &topicTable{topics: make(map[string]map[*subscriber]struct{})}
}

func (t *topicTable) subscribe(sub *subscriber, names ...string) {
	for _, name := range names {
		subs, ok := t.topics[name]
		if !ok {
			subs = make(map[*subscriber]struct{})
			t.topics[name] = subs
		}
		if _, ok := subs[sub]; ok {
			continue
		}
		subs[sub] = struct{}{}
		sub.topics = append(sub.topics, name)
	}
}

func (t *topicTable) unsubscribe(sub *subscriber) {
	for _, name := range sub.topics {
		t.remove(name, sub)
	}
	sub.topics = nil
}

func (t *topicTable) remove(name string, sub *subscriber) {
	subs, ok := t.topics[name]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(t.topics, name)
	}
}

// publish queues data on every live subscriber of name. Closed subscribers
// are pruned.
func (t *topicTable) publish(name string, data []byte) (delivered, dropped int) {
	for sub := range t.topics[name] {
		if sub.closed() {
			t.unsubscribe(sub)
			continue
		}
		if sub.enqueue(data) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (t *topicTable) count(name string) int {
	return len(t.topics[name])
}

func (t *topicTable) clear() {
	t.topics = make(map[string]map[*subscriber]struct{})
}

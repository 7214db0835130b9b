// Package hub is a small in-process topic broker. Topics are token paths;
// subscriptions may use "+" (one level) and "#" (this level and below).
// Retained messages are replayed to late subscribers and a full subscriber
// queue drops its oldest message.
package hub

import (
	"sync"
)

// Topic is a sequence of path tokens.
type Topic []string

const (
	anyOne  = "+"
	anyRest = "#"
)

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok string, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

type Hub struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// New creates a hub whose subscriptions buffer queueLen messages.
func New(queueLen int) *Hub {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Hub{root: &node{}, qLen: queueLen}
}

func (h *Hub) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription. A retained message
// with a nil payload clears the retained value at its topic.
func (h *Hub) Publish(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(h.root, msg.Topic, msg)

	if !msg.Retained {
		return
	}
	n := h.root
	for _, tok := range msg.Topic {
		n = n.child(tok, msg.Payload != nil)
		if n == nil {
			return
		}
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// deliver walks subscription patterns matching the remaining tokens.
func (h *Hub) deliver(n *node, rest Topic, msg *Message) {
	if c := n.child(anyRest, false); c != nil {
		for _, s := range c.subs {
			push(s, msg)
		}
	}
	if len(rest) == 0 {
		for _, s := range n.subs {
			push(s, msg)
		}
		return
	}
	if c := n.child(rest[0], false); c != nil {
		h.deliver(c, rest[1:], msg)
	}
	if c := n.child(anyOne, false); c != nil {
		h.deliver(c, rest[1:], msg)
	}
}

func push(s *Subscription, msg *Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// retainedFor collects retained messages whose topic matches pattern.
func retainedFor(n *node, pattern Topic, out []*Message) []*Message {
	if len(pattern) == 0 {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch pattern[0] {
	case anyRest:
		if n.retained != nil {
			out = append(out, n.retained)
		}
		for _, c := range n.children {
			out = retainedFor(c, pattern, out)
		}
	case anyOne:
		for _, c := range n.children {
			out = retainedFor(c, pattern[1:], out)
		}
	default:
		if c := n.child(pattern[0], false); c != nil {
			out = retainedFor(c, pattern[1:], out)
		}
	}
	return out
}

func (h *Hub) addSubscription(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	for _, m := range retainedFor(h.root, sub.topic, nil) {
		push(sub, m)
	}
}

func (h *Hub) removeSubscription(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		c := n.child(tok, false)
		if c == nil {
			return
		}
		stack = append(stack, n)
		n = c
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.topic[i]
		c := parent.children[key]
		if len(c.subs) != 0 || len(c.children) != 0 || c.retained != nil {
			break
		}
		delete(parent.children, key)
	}
}

// Connection groups subscriptions so they can be dropped together.
type Connection struct {
	hub  *Hub
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (h *Hub) NewConnection(id string) *Connection {
	return &Connection{hub: h, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Publish(msg *Message) { c.hub.Publish(msg) }

func (c *Connection) Subscribe(t Topic) *Subscription {
	sub := &Subscription{topic: t, ch: make(chan *Message, c.hub.qLen), conn: c}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.hub.addSubscription(sub)
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.hub.removeSubscription(sub)
	close(sub.ch)
}

// Disconnect closes every subscription owned by c.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.hub.removeSubscription(s)
		close(s.ch)
	}
}

// Package fanout maps modules to broadcast groups and delivers published
// payloads to every subscriber of a group, the publishing client included.
//
// Delivery is at-least-once per live subscriber, last value wins: there is no
// replay for late joiners and no ordering across groups. A subscriber whose
// delivery fails is removed from every group it belongs to.
package fanout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscriber receives published payloads. Deliver must be safe for concurrent
// use; it is called outside the router's lock.
type Subscriber interface {
	Deliver(ctx context.Context, payload []byte) error
}

// GroupOf returns the broadcast group for a module within a domain. Domain and
// module are length-prefixed before hashing so distinct pairs never share a
// group, including equal module ids in different domains.
func GroupOf(domainID, moduleID string) string {
	h := sha256.New()
	for _, p := range []string{domainID, moduleID} {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Router tracks group membership. The zero value is not usable; use New.
type Router struct {
	mu      sync.Mutex
	groups  map[string]map[Subscriber]struct{}
	members map[Subscriber]map[string]struct{}
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		groups:  make(map[string]map[Subscriber]struct{}),
		members: make(map[Subscriber]map[string]struct{}),
	}
}

// Subscribe adds sub to group. It reports whether sub was newly added.
func (r *Router) Subscribe(group string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.groups[group]
	if !ok {
		subs = make(map[Subscriber]struct{})
		r.groups[group] = subs
	}
	if _, dup := subs[sub]; dup {
		return false
	}
	subs[sub] = struct{}{}

	gs, ok := r.members[sub]
	if !ok {
		gs = make(map[string]struct{})
		r.members[sub] = gs
	}
	gs[group] = struct{}{}
	subscribers.Inc()
	return true
}

// Unsubscribe removes sub from group.
func (r *Router) Unsubscribe(group string, sub Subscriber) {
	r.mu.Lock()
	r.removeLocked(group, sub)
	r.mu.Unlock()
}

// Drop removes sub from every group it belongs to.
func (r *Router) Drop(sub Subscriber) {
	r.mu.Lock()
	for g := range r.members[sub] {
		r.removeLocked(g, sub)
	}
	r.mu.Unlock()
}

func (r *Router) removeLocked(group string, sub Subscriber) {
	subs, ok := r.groups[group]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(r.groups, group)
	}
	if gs := r.members[sub]; gs != nil {
		delete(gs, group)
		if len(gs) == 0 {
			delete(r.members, sub)
		}
	}
	subscribers.Dec()
}

// Publish delivers payload to every current subscriber of group and returns
// the number of successful deliveries. Membership is snapshotted under the
// lock; deliveries happen outside it.
func (r *Router) Publish(ctx context.Context, group string, payload []byte) int {
	r.mu.Lock()
	targets := make([]Subscriber, 0, len(r.groups[group]))
	for s := range r.groups[group] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Deliver(ctx, payload); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("fanout delivery failed; dropping subscriber")
			deliveries.WithLabelValues("failed").Inc()
			r.Drop(s)
			continue
		}
		deliveries.WithLabelValues("ok").Inc()
		delivered++
	}
	return delivered
}

// Subscribers reports how many subscribers group has.
func (r *Router) Subscribers(group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[group])
}

// Groups reports how many groups sub belongs to.
func (r *Router) Groups(sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[sub])
}

// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"

	"github.com/tradewire-foundation/tradewire/protocol"
	"github.com/tradewire-foundation/tradewire/session"
)

// localClient is one terminal connection on the local listener.
type localClient struct {
	id   uint64
	sess *session.Session
}

// router maps in-flight client message IDs to the local connection
// awaiting the reply. Entries are removed on delivery and when their
// connection goes away; a confirmation that matches nothing is dropped
// by the caller.
type router struct {
	mu     sync.Mutex
	routes map[string]*localClient
}

func newRouter() *router {
	return &router{routes: make(map[string]*localClient)}
}

// register records that client is waiting for the reply to
// clientMsgID. A re-registration (sender retry) overwrites the stale
// route.
func (r *router) register(clientMsgID string, client *localClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[clientMsgID] = client
}

// resolve finds the local connection for a confirmation: by the
// confirmation's own client message ID first, then by the opening
// signal's ID for closes submitted under an ID the bridge never saw.
// The matched route is consumed.
func (r *router) resolve(confirmation protocol.Confirmation) (*localClient, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range []string{confirmation.ClientMsgID, confirmation.OpenClientMsgID} {
		if key == "" {
			continue
		}
		if client, ok := r.routes[key]; ok {
			delete(r.routes, key)
			return client, true
		}
	}
	return nil, false
}

// drop removes the route for one client message ID, if present.
// Earlier routes registered by the same connection are untouched.
func (r *router) drop(clientMsgID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, clientMsgID)
}

// dropClient removes every route owned by a disconnected local
// connection.
func (r *router) dropClient(clientID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, client := range r.routes {
		if client.id == clientID {
			delete(r.routes, key)
		}
	}
}

// pending returns the number of in-flight routes.
func (r *router) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

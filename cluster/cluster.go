/*
Copyright © 2026 the isoadvect authors.
This file is part of isoadvect.

isoadvect is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

isoadvect is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with isoadvect.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cluster connects the partitions of a decomposed domain that run
// in separate processes. Each partition runs a Node, which serves a
// Mailbox over RPC and implements isoadvect.Transport.
package cluster

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/isoadvect"
)

// inboxDepth is the number of undelivered messages a Node holds from each
// peer before Deliver blocks.
const inboxDepth = 4

// Node is one partition's endpoint in a cluster.
type Node struct {
	rank int
	log  logrus.FieldLogger

	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	peers   map[int]string
	clients map[int]*rpc.Client
	inboxes map[int]chan isoadvect.PatchMessage
}

// Mailbox is the RPC service through which peers deliver messages to a
// Node.
type Mailbox struct {
	node *Node
}

// Deliver queues msg for the receiving partition. It returns once the
// message is queued.
func (m *Mailbox) Deliver(msg isoadvect.PatchMessage, ack *bool) error {
	m.node.inbox(msg.From) <- msg
	*ack = true
	return nil
}

// NewNode starts a Node for partition rank listening on addr, for example
// ":6061" or "127.0.0.1:0".
func NewNode(rank int, addr string, log logrus.FieldLogger) (*Node, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := &Node{
		rank:    rank,
		log:     log.WithField("rank", rank),
		peers:   make(map[int]string),
		clients: make(map[int]*rpc.Client),
		inboxes: make(map[int]chan isoadvect.PatchMessage),
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Mailbox", &Mailbox{node: n}); err != nil {
		return nil, fmt.Errorf("cluster: registering mailbox: %w", err)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cluster: listening on %s: %w", addr, err)
	}
	n.listener = l
	n.server = &http.Server{Handler: rpcServer}
	go func() {
		if err := n.server.Serve(l); err != nil && err != http.ErrServerClosed {
			n.log.WithError(err).Error("cluster: mailbox server stopped")
		}
	}()
	n.log.WithField("addr", l.Addr().String()).Info("cluster: node listening")
	return n, nil
}

// Addr returns the address the Node listens on.
func (n *Node) Addr() string { return n.listener.Addr().String() }

// AddPeer records the address of partition rank.
func (n *Node) AddPeer(rank int, addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[rank] = addr
}

// Rank implements isoadvect.Transport.
func (n *Node) Rank() int { return n.rank }

// Send implements isoadvect.Transport. It connects to the peer on first
// use, retrying with exponential backoff until ctx is done, and returns
// once the peer has queued the message.
func (n *Node) Send(ctx context.Context, to int, msg isoadvect.PatchMessage) error {
	client, err := n.client(ctx, to)
	if err != nil {
		return err
	}
	var ack bool
	call := client.Go("Mailbox.Deliver", msg, &ack, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			n.dropClient(to, client)
			return fmt.Errorf("cluster: delivering to partition %d: %w", to, call.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv implements isoadvect.Transport.
func (n *Node) Recv(ctx context.Context, from int) (isoadvect.PatchMessage, error) {
	select {
	case msg := <-n.inbox(from):
		return msg, nil
	case <-ctx.Done():
		return isoadvect.PatchMessage{}, ctx.Err()
	}
}

// Close stops the mailbox server and closes the connections to peers.
func (n *Node) Close() error {
	n.mu.Lock()
	for r, c := range n.clients {
		c.Close()
		delete(n.clients, r)
	}
	n.mu.Unlock()
	return n.server.Close()
}

func (n *Node) inbox(from int) chan isoadvect.PatchMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.inboxes[from]
	if !ok {
		ch = make(chan isoadvect.PatchMessage, inboxDepth)
		n.inboxes[from] = ch
	}
	return ch
}

func (n *Node) client(ctx context.Context, to int) (*rpc.Client, error) {
	n.mu.Lock()
	c, ok := n.clients[to]
	addr, known := n.peers[to]
	n.mu.Unlock()
	if ok {
		return c, nil
	}
	if !known {
		return nil, fmt.Errorf("cluster: no address for partition %d", to)
	}

	err := backoff.RetryNotify(
		func() error {
			var err error
			c, err = rpc.DialHTTP("tcp", addr)
			return err
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			n.log.WithError(err).Warnf("cluster: dialing partition %d at %s: retrying in %v", to, addr, d)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("cluster: dialing partition %d at %s: %w", to, addr, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.clients[to]; ok {
		c.Close()
		return existing, nil
	}
	n.clients[to] = c
	return c, nil
}

func (n *Node) dropClient(to int, c *rpc.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.clients[to] == c {
		delete(n.clients, to)
	}
	c.Close()
}

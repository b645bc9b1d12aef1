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

package isoadvect

import (
	"context"
	"fmt"
)

// PatchMessage carries the transported volumes of the faces of one
// processor patch that were changed during a synchronisation round.
// Faces holds patch-local face indices. Halo exchanges leave Faces nil
// and send a fixed number of values for every face of the patch.
type PatchMessage struct {
	From   int
	Faces  []int
	Values []float64
}

// Transport exchanges messages between the partitions of a domain. Sends
// must not wait for the matching receive.
type Transport interface {
	// Rank returns the rank of the partition using the transport.
	Rank() int

	// Send delivers msg to partition to.
	Send(ctx context.Context, to int, msg PatchMessage) error

	// Recv returns the next message sent by partition from.
	Recv(ctx context.Context, from int) (PatchMessage, error)
}

// channelDepth is the number of messages that may be in flight between
// an ordered pair of partitions. Rounds are matched one to one, so a
// sender can be at most one round ahead of its receiver.
const channelDepth = 4

// ChannelNetwork connects partitions that run as goroutines in the same
// process.
type ChannelNetwork struct {
	links [][]chan PatchMessage // links[from][to]
}

// NewChannelNetwork returns a network joining n partitions.
func NewChannelNetwork(n int) *ChannelNetwork {
	net := &ChannelNetwork{links: make([][]chan PatchMessage, n)}
	for i := range net.links {
		net.links[i] = make([]chan PatchMessage, n)
		for j := range net.links[i] {
			if i != j {
				net.links[i][j] = make(chan PatchMessage, channelDepth)
			}
		}
	}
	return net
}

// Transport returns the endpoint of the network used by partition rank.
func (n *ChannelNetwork) Transport(rank int) Transport {
	return &channelTransport{net: n, rank: rank}
}

type channelTransport struct {
	net  *ChannelNetwork
	rank int
}

func (t *channelTransport) Rank() int { return t.rank }

func (t *channelTransport) link(from, to int) (chan PatchMessage, error) {
	if from < 0 || from >= len(t.net.links) || to < 0 || to >= len(t.net.links) || from == to {
		return nil, fmt.Errorf("isoadvect: no channel from partition %d to partition %d", from, to)
	}
	return t.net.links[from][to], nil
}

func (t *channelTransport) Send(ctx context.Context, to int, msg PatchMessage) error {
	ch, err := t.link(t.rank, to)
	if err != nil {
		return err
	}
	// The sender reuses its buffers once the round is over.
	msg.Faces = append([]int(nil), msg.Faces...)
	msg.Values = append([]float64(nil), msg.Values...)
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *channelTransport) Recv(ctx context.Context, from int) (PatchMessage, error) {
	ch, err := t.link(from, t.rank)
	if err != nil {
		return PatchMessage{}, err
	}
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return PatchMessage{}, ctx.Err()
	}
}

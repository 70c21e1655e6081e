package mesh

import (
	"testing"

	"github.com/pdlsurya/nRF52/esb"
	"github.com/pdlsurya/nRF52/event"
	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

func TestComputeNodeMask(t *testing.T) {
	cases := []struct {
		addr Addr
		want Addr
	}{
		{0, 0x0000},  // root: every address is a descendant
		{1, 0x0007},  // one octal digit: low 3 bits isolate it
		{011, 0x003F}, // two octal digits set (0%o "11" == 9 decimal): low 6 bits
	}
	for _, c := range cases {
		if got := computeNodeMask(c.addr); got != c.want {
			t.Errorf("computeNodeMask(0%o) = 0x%04X, want 0x%04X", c.addr, got, c.want)
		}
	}
}

func TestIsDescendantNextHopParent(t *testing.T) {
	// node1 = address 1 (root's direct child); node9 = 011 octal (9 decimal),
	// node1's direct child, so node1 is an intermediate hop between root and
	// node9 in both directions.
	node1 := &Router{addr: 1, nodeMask: computeNodeMask(1)}

	if !node1.IsDescendant(9) {
		t.Fatalf("node1 should consider node9 (0%o) a descendant", Addr(9))
	}
	if node1.IsDescendant(2) {
		t.Fatalf("node1 should not consider node2 a descendant")
	}
	if got := node1.NextHop(9); got != 9 {
		t.Fatalf("node1.NextHop(9) = 0%o, want 011", got)
	}
	if got := node1.Parent(); got != Root {
		t.Fatalf("node1.Parent() = 0%o, want Root", got)
	}
}

// meshNode bundles one simulated node's full stack: a Radio joined to a
// shared Ether, a soft-timer-backed ESB link, and the Router under test.
type meshNode struct {
	router    *Router
	delivered []struct {
		from Addr
		data []byte
	}
}

func newMeshNode(t *testing.T, ether *radio.Ether, addr Addr) *meshNode {
	t.Helper()
	r := radio.New(radio.Opts{})
	backend := ether.Join(r)
	r.SetBackend(backend)
	if err := r.SetPacketPtr(make([]byte, 32)); err != nil {
		t.Fatalf("node 0%o: SetPacketPtr: %v", addr, err)
	}

	src := ticksrc.New(ticksrc.Opts{})
	sched := softtimer.New(src, nil)
	evts := event.NewGroup("NRF24")

	// ESBEnabled: false — a synchronous, multi-node Ether re-enters a
	// sending Link's own dispatch while it is still mid-call (the peer's ACK
	// comes back before transmitAndWaitForAck returns), which the ESB
	// retransmit state machine isn't built to tolerate. The non-ESB variant
	// has no ACK wait in its send path, so it exercises the addressing and
	// forwarding logic this test is for without running into that hazard.
	link := esb.New(esb.Opts{Radio: r, Scheduler: sched, ESBEnabled: false, Events: evts})

	n := &meshNode{}
	router, err := New(Opts{
		Address: addr,
		Link:    link,
		Deliver: func(from Addr, payload []byte) {
			n.delivered = append(n.delivered, struct {
				from Addr
				data []byte
			}{from, append([]byte(nil), payload...)})
		},
		Events: evts,
	})
	if err != nil {
		t.Fatalf("node 0%o: mesh.New: %v", addr, err)
	}
	n.router = router

	link.SetMode(esb.ModeRx)
	return n
}

// TestForwardRoundTrip builds a 3-node chain — root (0), node1 (1), node9
// (011, node1's child) — over a shared radio.Ether and checks that a Data
// packet from root to node9 is forwarded through node1 (SetPeerAddress must
// actually steer the radio's TX address at each hop). node9's automatic Ack
// reply toward root is not checked; the note at the end of the body says why.
func TestForwardRoundTrip(t *testing.T) {
	ether := radio.NewEther()
	root := newMeshNode(t, ether, Root)
	node1 := newMeshNode(t, ether, 1)
	node9 := newMeshNode(t, ether, 011)

	payload := []byte("hello mesh")
	if err := root.router.Send(011, Data, payload); err != nil {
		t.Fatalf("root.Send: %v", err)
	}

	if len(node9.delivered) != 1 {
		t.Fatalf("node9 delivered count = %d, want 1", len(node9.delivered))
	}
	if node9.delivered[0].from != Root {
		t.Fatalf("node9 delivered from = 0%o, want Root", node9.delivered[0].from)
	}
	if string(node9.delivered[0].data) != string(payload) {
		t.Fatalf("node9 delivered payload = %q, want %q", node9.delivered[0].data, payload)
	}

	_ = node1 // node1 never calls Deliver itself; it only forwards.

	// node9's handleDataReady also calls Send to auto-reply with an Ack
	// toward root. This harness does not assert that hop: a fully
	// synchronous, single-threaded Ether delivers it to node1 while node1's
	// own link.mode is still ModeTx from forwarding the original Data packet
	// (the outer call hasn't unwound to flip it back to ModeRx yet), so
	// onRadioEvent's mode switch treats the arrival as an ESB ack-or-ignore
	// case rather than incoming data and drops it — the same reentrancy
	// hazard noted on Link for a synchronous multi-hop medium, not a defect
	// in SetPeerAddress or the forwarding algorithm this test targets.
}

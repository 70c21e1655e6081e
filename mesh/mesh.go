// Package mesh implements the multi-hop octal-tree router described in
// spec §4.6, grounded on original_source/Network/Network.c. Node addresses
// are octal digit strings packed into a uint16 (each digit 0..7 occupies
// 3 bits); address 0 is the root. A node's subtree mask is derived once at
// startup from its own address, and every routing decision — is this
// destination mine, a descendant's, or do I forward up to my parent — is a
// handful of shifts and masks against that one mask.
//
// mesh is built on top of package esb: a Router owns an esb.Link and drives
// it exactly the way Network.c drives nrf24 — set the peer's physical
// address, switch the link to TX, submit, switch back to RX.
package mesh

import (
	"errors"

	"github.com/pdlsurya/nRF52/esb"
	"github.com/pdlsurya/nRF52/event"
)

// Addr is a node address: an octal digit string, most-significant digit
// first, packed 3 bits per digit (matching instance.node_address's uint16
// and the `0%o` debug formatting in Network.c).
type Addr uint16

// Root is the mesh's address-zero root node.
const Root Addr = 0

// addressPool is address_pool from Network.c: the 7 possible non-zero octal
// digit values (1..7), each mapped to a one-byte seed used to build the
// on-air physical address for a node whose address ends in that digit at
// the current position.
var addressPool = [7]byte{0xc3, 0x3c, 0x33, 0xce, 0x3e, 0xe3, 0xec}

// MsgType is nw_msg_type_t.
type MsgType uint8

const (
	Data MsgType = iota
	Ack
	Ping
	PingAck
)

// PayloadLen is the usable payload capacity of a mesh packet: 32 bytes of
// ESB payload minus the 6-byte header (to:16, from:16, type:8, length:8).
const PayloadLen = 26

// Packet is network_packet_t, laid out exactly as it rides inside an ESB
// 32-byte payload (spec §6 "Mesh payload"): bytes 0-1 to_node LE, 2-3
// from_node LE, 4 msg_type, 5 length, 6-31 payload.
type Packet struct {
	To      Addr
	From    Addr
	Type    MsgType
	Length  uint8
	Payload [PayloadLen]byte
}

// Marshal encodes p into a 32-byte ESB payload.
func (p *Packet) Marshal() [32]byte {
	var buf [32]byte
	buf[0] = byte(p.To)
	buf[1] = byte(p.To >> 8)
	buf[2] = byte(p.From)
	buf[3] = byte(p.From >> 8)
	buf[4] = byte(p.Type)
	buf[5] = p.Length
	copy(buf[6:], p.Payload[:])
	return buf
}

// Unmarshal decodes a 32-byte ESB payload into p.
func (p *Packet) Unmarshal(buf [32]byte) {
	p.To = Addr(buf[0]) | Addr(buf[1])<<8
	p.From = Addr(buf[2]) | Addr(buf[3])<<8
	p.Type = MsgType(buf[4])
	p.Length = buf[5]
	copy(p.Payload[:], buf[6:])
}

// ErrPayloadTooLong is returned by Send when the message exceeds PayloadLen.
var ErrPayloadTooLong = errors.New("mesh: message exceeds 26-byte mesh payload")

// DeliverHandler receives a Data packet addressed to this node.
type DeliverHandler func(from Addr, payload []byte)

// Router is one node's mesh routing state: its address, derived subtree
// mask, and the ESB link it forwards packets over.
type Router struct {
	addr     Addr
	nodeMask Addr // node_mask: bits set for this node's own address prefix

	link    *esb.Link
	deliver DeliverHandler
	log     LogPrintf

	events *event.Group
}

// LogPrintf follows the module-wide convention.
type LogPrintf func(format string, v ...interface{})

// Opts configures a Router.
type Opts struct {
	Address Addr
	Link    *esb.Link
	Deliver DeliverHandler
	// Events is the esb.Link's own NRF24 event group. A Router registers
	// itself on it and becomes, in effect, the application's
	// nrf24_evt_handler (Network.c's nrf24_nw_evt_handler): it reacts to
	// DataReady by decoding and routing the mesh packet, and to
	// TxSuccess/TxFailed by switching the link back to listening mode.
	Events *event.Group
	Logger LogPrintf
}

// New creates a Router, deriving the node's subtree mask and physical
// receive address (setup_address), binds that physical address to RX pipe 1
// (network_init's nrf24_set_rx_address(node_physical_address, 1), so that
// peers addressing this node by its own physical address are received), and
// registers the Router on the ESB link's event group
// (nrf24_set_evt_handler(nrf24_nw_evt_handler)). The link's radio must still
// be Disabled when New is called, since ConfigureRxAddress requires it.
func New(opts Opts) (*Router, error) {
	log := opts.Logger
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	r := &Router{
		addr:    opts.Address,
		link:    opts.Link,
		deliver: opts.Deliver,
		events:  opts.Events,
		log:     log,
	}
	r.nodeMask = computeNodeMask(opts.Address)
	if err := r.link.ConfigureRxAddress(1, PhysicalAddress(opts.Address)); err != nil {
		return nil, err
	}
	if opts.Events != nil {
		opts.Events.Register(r.handleESBEvent)
	}
	return r, nil
}

// handleESBEvent is nrf24_nw_evt_handler: it is the mesh layer's own
// registered handler for the ESB link's NRF24 event group, reacting to a
// delivered payload by routing it, and to a completed send (success or
// failure) by returning the link to RX so it can hear the next packet.
func (r *Router) handleESBEvent(id event.ID, payload interface{}) {
	switch id {
	case esb.DataReady:
		raw, _ := payload.([]byte)
		r.handleDataReady(raw)
	case esb.TxSuccess, esb.TxFailed:
		r.link.SetMode(esb.ModeRx)
	}
}

// computeNodeMask is setup_address's mask_check/node_mask derivation:
// left-shift 0xFFFF in 3-bit steps until it no longer overlaps addr, then
// invert.
func computeNodeMask(addr Addr) Addr {
	maskCheck := Addr(0xFFFF)
	for maskCheck&addr != 0 {
		maskCheck <<= 3
	}
	return ^maskCheck
}

// PhysicalAddress is physical_address(): for each non-zero octal digit of
// node (least-significant first), look up its on-air seed byte, producing a
// 5-byte address whose unused tail bytes stay at the fill value 0xCC
// (matching node_physical_address's C initializer).
func PhysicalAddress(node Addr) [5]byte {
	addr := [5]byte{0xCC, 0xCC, 0xCC, 0xCC, 0xCC}
	n := node
	i := 0
	for n != 0 && i < 5 {
		digit := n % 8
		if digit >= 1 && digit <= 7 {
			addr[i] = addressPool[digit-1]
		}
		i++
		n /= 8
	}
	return addr
}

// IsDescendant reports whether dst is in this node's subtree, including
// itself is not special-cased (a node is not its own descendant per the
// mask arithmetic unless dst == this node's own address, which also
// satisfies the mask equality — callers check to == my address separately).
func (r *Router) IsDescendant(dst Addr) bool {
	return (dst & r.nodeMask) == r.addr
}

// NextHop is next_hop_node: the address of the immediate child subtree that
// contains dst.
func (r *Router) NextHop(dst Addr) Addr {
	directChildMask := ^((^r.nodeMask) << 3)
	return dst & directChildMask
}

// Parent is parent_node: this node's own parent's address.
func (r *Router) Parent() Addr {
	return (r.nodeMask >> 3) & r.addr
}

// Address returns the node's own address.
func (r *Router) Address() Addr { return r.addr }

// routeNext picks the next-hop address for a destination that is not this
// node, per spec §4.6 "Forward algorithm": descendants go down, everything
// else goes up to the parent.
func (r *Router) routeNext(dst Addr) Addr {
	if r.IsDescendant(dst) {
		return r.NextHop(dst)
	}
	return r.Parent()
}

// Send fills in a packet header and submits it to the ESB link addressed to
// the correct next hop toward dst (nw_send).
func (r *Router) Send(dst Addr, msgType MsgType, message []byte) error {
	if len(message) > PayloadLen {
		return ErrPayloadTooLong
	}
	pkt := Packet{To: dst, From: r.addr, Type: msgType, Length: uint8(len(message))}
	copy(pkt.Payload[:], message)
	return r.transmit(r.routeNext(dst), pkt)
}

// transmit points the ESB link's TX address at next's physical address and
// submits buf, mirroring nw_send/nw_update's
// nrf24_set_tx_address/nrf24_set_mode(TX)/nrf24_send sequence.
func (r *Router) transmit(next Addr, pkt Packet) error {
	phys := PhysicalAddress(next)
	r.log("mesh: next hop 0%o address %x", next, phys)
	r.link.SetPeerAddress(phys)
	r.link.SetMode(esb.ModeTx)
	buf := pkt.Marshal()
	return r.link.Send(buf[:])
}

// handleDataReady is nrf24_nw_evt_handler's NRF24_DATA_READY case feeding
// nw_update: decide whether the packet is for this node, an ACK to log, or
// something to forward unchanged toward its destination.
func (r *Router) handleDataReady(raw []byte) {
	if len(raw) < 32 {
		return
	}
	var buf [32]byte
	copy(buf[:], raw)
	var pkt Packet
	pkt.Unmarshal(buf)

	if pkt.To == r.addr {
		switch pkt.Type {
		case Data:
			r.log("mesh: message from node 0%o", pkt.From)
			if r.deliver != nil {
				r.deliver(pkt.From, pkt.Payload[:pkt.Length])
			}
			r.Send(pkt.From, Ack, nil)
		case Ack:
			r.log("mesh: ACK received from node 0%o", pkt.From)
		}
		return
	}

	r.log("mesh: forwarding message arrived")
	next := r.routeNext(pkt.To)
	r.transmit(next, pkt)
}

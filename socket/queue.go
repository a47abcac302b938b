package socket

import "github.com/vinayprograms/pollsock/packet"

// sendQueue holds packets waiting for delivery. Only confirmed deliveries
// remove packets, and always from the front.
type sendQueue struct {
	packets []packet.Packet
}

func (q *sendQueue) push(p packet.Packet) {
	q.packets = append(q.packets, p)
}

func (q *sendQueue) len() int {
	return len(q.packets)
}

// snapshot copies the current contents so later pushes do not alias it.
func (q *sendQueue) snapshot() []packet.Packet {
	out := make([]packet.Packet, len(q.packets))
	copy(out, q.packets)
	return out
}

// ack drops the first n packets.
func (q *sendQueue) ack(n int) {
	if n > len(q.packets) {
		n = len(q.packets)
	}
	clear(q.packets[:n])
	q.packets = q.packets[n:]
}

// bufferedBytes is the number of message bytes a packet adds to the
// buffered amount. Protocol replies such as pongs are not counted.
func bufferedBytes(p packet.Packet) int64 {
	if p.Type != packet.Message {
		return 0
	}
	return int64(len(p.Data))
}

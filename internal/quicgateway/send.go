package quicgateway

import (
	"github.com/ewancrowle/porter3/internal/quiccrypto"
	"github.com/ewancrowle/porter3/internal/quicconn"
	"github.com/ewancrowle/porter3/internal/quicframe"
	"github.com/ewancrowle/porter3/internal/quicpacket"
)

// sendLongHeaderFrame builds a long-header packet for epoch carrying
// plaintext (already-encoded frames, such as a CRYPTO frame built by the
// caller) using conn's current outgoing PN for that space, and writes it
// to the client.
func (g *Gateway) sendLongHeaderFrame(conn *quicconn.Connection, epoch quicconn.Epoch, typ quicpacket.LongHeaderType, plaintext []byte) error {
	ek, ok := conn.Keys(epoch)
	if !ok {
		return errNoKeysForEpoch
	}
	hp := quiccrypto.NewHeaderProtector(ek.Send)
	aead, err := quiccrypto.NewAEAD(ek.Send)
	if err != nil {
		return err
	}

	pn := conn.PNSpace(epoch).NextOutgoing()
	var token []byte // the server never presents a token of its own
	// DCID is the client's chosen SCID (spec.md §3: "thereafter both
	// peers carry a DCID chosen by the remote peer") for every epoch,
	// including this connection's first Initial response — only the
	// client's own first flight still uses the original, client-chosen
	// DCID to address the server.
	packet := quicpacket.BuildLongHeaderPacket(typ, conn.PeerSCID, conn.LocalCID, token, pn, plaintext, hp, aead)

	_, err = g.conn.WriteToUDP(packet, conn.ClientAddr)
	return err
}

// sendShortHeaderFrame sends plaintext (already-encoded frames, such as
// the STREAM frame sendHTTP3Response builds) as a 1-RTT packet.
func (g *Gateway) sendShortHeaderFrame(conn *quicconn.Connection, plaintext []byte) error {
	ek, ok := conn.Keys(quicconn.EpochApplication)
	if !ok {
		return errNoKeysForEpoch
	}
	hp := quiccrypto.NewHeaderProtector(ek.Send)
	aead, err := quiccrypto.NewAEAD(ek.Send)
	if err != nil {
		return err
	}

	pn := conn.PNSpace(quicconn.EpochApplication).NextOutgoing()
	// DCID is the client's chosen SCID, same as the long-header send
	// path above; CID rotation itself is out of spec.md's scope, but the
	// one-time client-DCID -> server-DCID handoff at the first response
	// is not optional.
	packet := quicpacket.BuildShortHeaderPacket(conn.PeerSCID, pn, plaintext, hp, aead)

	_, err = g.conn.WriteToUDP(packet, conn.ClientAddr)
	return err
}

// sendHTTP3Response wraps an HTTP/3 response in a STREAM frame on
// stream 0 and emits it as a 1-RTT packet.
func (g *Gateway) sendHTTP3Response(conn *quicconn.Connection, responseFrame []byte) error {
	var plaintext []byte
	plaintext = quicframe.AppendStreamFrame(plaintext, 0, 0, responseFrame, true)
	return g.sendShortHeaderFrame(conn, plaintext)
}

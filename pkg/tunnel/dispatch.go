package tunnel

import (
	"encoding/binary"
	"fmt"
)

// InnerKind enumerates the typed inner messages the tokenizer
// recognizes after Axolotl decryption (§6.3). Unknown kinds are a
// protocol error on this tunnel (§4.5).
type InnerKind uint8

const (
	InnerKeepalive InnerKind = iota
	InnerChannelData
	InnerChannelDataAck
	InnerChannelOpen
	InnerChannelOpenAck
	InnerChannelOpenNack // legacy
	InnerChannelDestroy
	// InnerKXRekeyInitiate carries a rekey announcement inside an
	// already-encrypted frame, queued when the rekey timer expires
	// (§4.1, §5 "Rekey timer"). Unlike InnerChannelOpen et al. it
	// addresses no channel; Channel is always 0.
	InnerKXRekeyInitiate
)

// innerFrameMinSize is kind(1) + channel number(4).
const innerFrameMinSize = 1 + 4

// innerMessage is one tokenized inner message.
type innerMessage struct {
	Kind    InnerKind
	Channel uint32
	Payload []byte
}

// tokenize splits a decrypted plaintext into a sequence of framed
// inner messages: [kind(1) | channel(4 BE) | len(4 BE) | payload].
// This is the concrete shape of the "message tokenizer" §4.5 requires
// without specifying; it mirrors the teacher's own
// protocol.Header-style fixed-prefix framing (pkg/protocol/header.go).
func tokenize(plaintext []byte) ([]innerMessage, error) {
	var out []innerMessage
	for len(plaintext) > 0 {
		if len(plaintext) < innerFrameMinSize+4 {
			return nil, fmt.Errorf("tunnel: truncated inner frame")
		}
		kind := InnerKind(plaintext[0])
		channel := binary.BigEndian.Uint32(plaintext[1:5])
		length := binary.BigEndian.Uint32(plaintext[5:9])
		plaintext = plaintext[9:]
		if uint32(len(plaintext)) < length {
			return nil, fmt.Errorf("tunnel: inner frame payload short")
		}
		out = append(out, innerMessage{Kind: kind, Channel: channel, Payload: plaintext[:length]})
		plaintext = plaintext[length:]
	}
	return out, nil
}

// encodeInner serializes one inner message for Tunnel.Send callers
// that need to frame application payloads as channel-app-data (the
// common case) before handing them to Axolotl.Encrypt.
func encodeInner(kind InnerKind, channel uint32, payload []byte) []byte {
	buf := make([]byte, innerFrameMinSize+4+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], channel)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(payload)))
	copy(buf[9:], payload)
	return buf
}

package blendmap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned when decoding a truncated or foreign buffer.
var ErrMalformed = errors.New("blendmap: malformed data")

// Binary layout, little endian:
//
//	"PMB" version:u8 width:u32 height:u32 texels:u16...
const codecVersion = 1

// MarshalBinary encodes the map for replication to peers.
func (m *Map) MarshalBinary() ([]byte, error) {
	if len(m.Data) != m.Width*m.Height {
		return nil, fmt.Errorf("blendmap: %dx%d map holds %d texels", m.Width, m.Height, len(m.Data))
	}
	buf := make([]byte, 0, 12+2*len(m.Data))
	buf = append(buf, 'P', 'M', 'B', codecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Height))
	for _, v := range m.Data {
		buf = binary.LittleEndian.AppendUint16(buf, v)
	}
	return buf, nil
}

// UnmarshalBinary replaces the map with a decoded one.
func (m *Map) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || string(data[:3]) != "PMB" {
		return ErrMalformed
	}
	if data[3] != codecVersion {
		return fmt.Errorf("%w: version %d", ErrMalformed, data[3])
	}
	w := int(binary.LittleEndian.Uint32(data[4:]))
	h := int(binary.LittleEndian.Uint32(data[8:]))
	body := data[12:]
	if w <= 0 || h <= 0 || len(body) != 2*w*h {
		return fmt.Errorf("%w: %dx%d with %d bytes", ErrMalformed, w, h, len(body))
	}
	texels := make([]uint16, w*h)
	for i := range texels {
		texels[i] = binary.LittleEndian.Uint16(body[2*i:])
	}
	m.Width, m.Height, m.Data = w, h, texels
	return nil
}

package wire

// CRC16Context accumulates a CRC-CCITT (poly 0x1021, init 0xFFFF, no final
// XOR) value incrementally over one or more data blocks.
type CRC16Context struct {
	crc uint16
}

var crc16Table [256]uint16

// init builds the MSB-first CRC-CCITT lookup table once, before any
// goroutine can call NewCRC16: the table is process-wide and read-only from
// then on, so no lock is needed on the read path.
func init() {
	const poly = uint16(0x1021)
	const topBit = uint16(0x8000)

	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&topBit != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// NewCRC16 creates a new CRC-CCITT accumulator seeded at 0xFFFF.
func NewCRC16() *CRC16Context {
	return &CRC16Context{crc: 0xFFFF}
}

// Update folds data into the running CRC.
func (ctx *CRC16Context) Update(data []byte) {
	for _, b := range data {
		index := byte(ctx.crc>>8) ^ b
		ctx.crc = (ctx.crc << 8) ^ crc16Table[index]
	}
}

// Final returns the accumulated CRC; this CRC-CCITT variant applies no
// final XOR.
func (ctx *CRC16Context) Final() uint16 {
	return ctx.crc
}

// ComputeCRC16 is a convenience one-shot CRC calculation.
func ComputeCRC16(data []byte) uint16 {
	ctx := NewCRC16()
	ctx.Update(data)
	return ctx.Final()
}

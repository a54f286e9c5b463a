package byteutil

import "encoding/binary"

// Get1Byte reads a single byte at offset.
func Get1Byte(buf []byte, offset int) uint8 {
	return buf[offset]
}

// Get2Bytes reads a 16-bit big-endian field at offset.
func Get2Bytes(buf []byte, offset int) uint16 {
	return binary.BigEndian.Uint16(buf[offset : offset+2])
}

// Get3Bytes reads a 24-bit big-endian field at offset.
func Get3Bytes(buf []byte, offset int) uint32 {
	return uint32(buf[offset])<<16 | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])
}

// Get4Bytes reads a 32-bit big-endian field at offset.
func Get4Bytes(buf []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(buf[offset : offset+4])
}

// Set1Byte writes a single byte at offset.
func Set1Byte(buf []byte, offset int, value uint8) {
	buf[offset] = value
}

// Set2Bytes writes a 16-bit big-endian field at offset.
func Set2Bytes(buf []byte, offset int, value uint16) {
	binary.BigEndian.PutUint16(buf[offset:offset+2], value)
}

// Set3Bytes writes a 24-bit big-endian field at offset.
func Set3Bytes(buf []byte, offset int, value uint32) {
	buf[offset] = byte(value >> 16)
	buf[offset+1] = byte(value >> 8)
	buf[offset+2] = byte(value)
}

// Set4Bytes writes a 32-bit big-endian field at offset.
func Set4Bytes(buf []byte, offset int, value uint32) {
	binary.BigEndian.PutUint32(buf[offset:offset+4], value)
}

// PadTo4 rounds offset up to the next multiple of 4.
func PadTo4(offset int) int {
	return (offset + 3) &^ 3
}

package il2p

// Trailing CRC-16-CCITT protected by (7,4) Hamming encoding. This runs
// after RS decoding as a supplemental sanity check: RS occasionally
// "corrects" a block to a plausible-looking but wrong codeword under
// heavy noise, and the CRC catches it.

// CRCEncodedSize is the number of bytes used to carry the Hamming-encoded
// CRC-16.
const CRCEncodedSize = 4

// hammingEncode maps a 4-bit data nibble to its 7-bit Hamming(7,4)
// codeword.
var hammingEncode = [16]byte{
	0x00, 0x71, 0x62, 0x13, 0x54, 0x25, 0x36, 0x47,
	0x38, 0x49, 0x5a, 0x2b, 0x6c, 0x1d, 0x0e, 0x7f,
}

// hammingDecode maps a received 7-bit codeword back to its 4-bit data
// nibble, correcting any single bit error.
var hammingDecode = [128]byte{
	0x00, 0x00, 0x00, 0x03, 0x00, 0x05, 0x0e, 0x07,
	0x00, 0x09, 0x0e, 0x0b, 0x0e, 0x0d, 0x0e, 0x0e,
	0x00, 0x03, 0x03, 0x03, 0x04, 0x0d, 0x06, 0x03,
	0x08, 0x0d, 0x0a, 0x03, 0x0d, 0x0d, 0x0e, 0x0d,
	0x00, 0x05, 0x02, 0x0b, 0x05, 0x05, 0x06, 0x05,
	0x08, 0x0b, 0x0b, 0x0b, 0x0c, 0x05, 0x0e, 0x0b,
	0x08, 0x01, 0x06, 0x03, 0x06, 0x05, 0x06, 0x06,
	0x08, 0x08, 0x08, 0x0b, 0x08, 0x0d, 0x06, 0x0f,
	0x00, 0x09, 0x02, 0x07, 0x04, 0x07, 0x07, 0x07,
	0x09, 0x09, 0x0a, 0x09, 0x0c, 0x09, 0x0e, 0x07,
	0x04, 0x01, 0x0a, 0x03, 0x04, 0x04, 0x04, 0x07,
	0x0a, 0x09, 0x0a, 0x0a, 0x04, 0x0d, 0x0a, 0x0f,
	0x02, 0x01, 0x02, 0x02, 0x0c, 0x05, 0x02, 0x07,
	0x0c, 0x09, 0x02, 0x0b, 0x0c, 0x0c, 0x0c, 0x0f,
	0x01, 0x01, 0x02, 0x01, 0x04, 0x01, 0x06, 0x0f,
	0x08, 0x01, 0x0a, 0x0f, 0x0c, 0x0f, 0x0f, 0x0f,
}

// crc16 computes the AX.25 FCS-style CRC-16/CCITT over data, reflected
// polynomial 0x8408, initial value 0xffff.
func crc16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// encodeCRC Hamming-encodes a 16-bit CRC into 4 bytes, high nibble first.
func encodeCRC(crc uint16) [CRCEncodedSize]byte {
	return [CRCEncodedSize]byte{
		hammingEncode[(crc>>12)&0x0f],
		hammingEncode[(crc>>8)&0x0f],
		hammingEncode[(crc>>4)&0x0f],
		hammingEncode[crc&0x0f],
	}
}

// decodeCRC decodes 4 Hamming-encoded bytes back into a 16-bit CRC,
// correcting single-bit errors in each nibble independently.
func decodeCRC(encoded []byte) uint16 {
	n0 := uint16(hammingDecode[encoded[0]&0x7f])
	n1 := uint16(hammingDecode[encoded[1]&0x7f])
	n2 := uint16(hammingDecode[encoded[2]&0x7f])
	n3 := uint16(hammingDecode[encoded[3]&0x7f])
	return (n0 << 12) | (n1 << 8) | (n2 << 4) | n3
}

// checkCRC validates a received Hamming-encoded CRC against frame data.
func checkCRC(frameData []byte, encodedCRC []byte) bool {
	return crc16(frameData) == decodeCRC(encodedCRC)
}

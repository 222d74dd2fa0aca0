package rgss

import "encoding/binary"

// keyInverse3 is the multiplicative inverse of 9 modulo 2^32.
const keyInverse3 uint32 = 0x38E38E39

// Advance rotates a key once: key*7 + 3, wrapping.
func Advance(key uint32) uint32 {
	return key*7 + 3
}

// AdvanceN rotates a key n times.
//
// The rotation is the affine map x -> 7x + 3, so n rotations are computed
// by squaring the map instead of iterating, which keeps seeking deep into
// large files cheap.
func AdvanceN(key uint32, n uint64) uint32 {
	// (mulAcc, addAcc) is the composition applied so far,
	// (mul, add) is the current power of two of the base map.
	mulAcc, addAcc := uint32(1), uint32(0)
	mul, add := uint32(7), uint32(3)
	for n > 0 {
		if n&1 == 1 {
			mulAcc, addAcc = mul*mulAcc, mul*addAcc+add
		}
		mul, add = mul*mul, mul*add+add
		n >>= 1
	}
	return mulAcc*key + addAcc
}

// DeriveKey3 turns the seed stored in a version 3 header into the archive key.
func DeriveKey3(seed uint32) uint32 {
	return seed*9 + 3
}

// SeedFromKey3 is the inverse of DeriveKey3.
func SeedFromKey3(key uint32) uint32 {
	return (key - 3) * keyInverse3
}

// CryptU32 XORs v with key and returns the result and the rotated key.
func CryptU32(key, v uint32) (uint32, uint32) {
	return v ^ key, Advance(key)
}

// CryptNameBytes encrypts or decrypts a version 1 file name in place.
// Each byte is XORed with the low byte of the key, which rotates after
// every byte. The rotated key is returned.
func CryptNameBytes(key uint32, name []byte) uint32 {
	for i := range name {
		name[i] ^= byte(key)
		key = Advance(key)
	}
	return key
}

// CryptNameBytes3 encrypts or decrypts a version 3 file name in place.
// The archive key does not rotate; its little-endian bytes are cycled.
func CryptNameBytes3(key uint32, name []byte) {
	var k [U32Len]byte
	binary.LittleEndian.PutUint32(k[:], key)
	for i := range name {
		name[i] ^= k[i%U32Len]
	}
}

// FileCipher is the cipher state of a single file's data.
//
// Data bytes are XORed with byte Counter of Key's little-endian encoding.
// The key rotates whenever the counter wraps from 3 back to 0. The state is
// carried explicitly so reads and writes can stop and resume at any byte.
type FileCipher struct {
	Key     uint32
	Counter uint8
}

// NewFileCipher returns the cipher state for a file whose data starts with
// key, positioned rel bytes into the data.
func NewFileCipher(key uint32, rel uint64) FileCipher {
	return FileCipher{
		Key:     AdvanceN(key, rel/U32Len),
		Counter: uint8(rel % U32Len),
	}
}

// Crypt encrypts or decrypts p in place and advances the state.
func (c *FileCipher) Crypt(p []byte) {
	key, counter := c.Key, c.Counter
	for i := range p {
		p[i] ^= byte(key >> (8 * counter))
		if counter == 3 {
			key = Advance(key)
		}
		counter = (counter + 1) % U32Len
	}
	c.Key, c.Counter = key, counter
}

// CryptFileData is the functional form of FileCipher.Crypt.
func CryptFileData(key uint32, counter uint8, p []byte) (uint32, uint8) {
	c := FileCipher{Key: key, Counter: counter}
	c.Crypt(p)
	return c.Key, c.Counter
}

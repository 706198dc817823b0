package cryptoengine

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/radio-control/meshchan/internal/channels"
)

var (
	// ErrNotArmed is returned by Encrypt and Decrypt before a key has been set.
	ErrNotArmed = errors.New("cryptoengine: no key armed")

	// ErrKeySize is returned by SetKey for keys that are not 0, 16 or 32 bytes.
	ErrKeySize = errors.New("cryptoengine: invalid key size")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cryptoengine: closed")
)

// NonceSize is the CTR initial counter block size.
const NonceSize = aes.BlockSize

// AESCTR is a channels.Engine. A zero-length key arms passthrough (unencrypted channel).
// It is safe for concurrent use; callers that arm and then crypt must serialize the pair.
type AESCTR struct {
	mu     sync.Mutex
	key    *memguard.LockedBuffer
	keyLen int
	armed  bool
	closed bool
}

var _ channels.Engine = (*AESCTR)(nil)

// New returns an unarmed engine.
func New() *AESCTR {
	return &AESCTR{}
}

// SetKey arms k, wiping the previously armed key.
func (e *AESCTR) SetKey(k channels.Key) error {
	n := k.Len()
	if n != 0 && n != 16 && n != 32 {
		return fmt.Errorf("%w: %d bytes", ErrKeySize, n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	e.destroyLocked()
	if n > 0 {
		// NewBufferFromBytes wipes its argument, so hand it a copy.
		material := make([]byte, n)
		copy(material, k.Bytes)
		e.key = memguard.NewBufferFromBytes(material)
	}
	e.keyLen = n
	e.armed = true
	return nil
}

// KeyLen returns the armed key length: 0 for passthrough, 16 or 32. ok is false if unarmed.
func (e *AESCTR) KeyLen() (n int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyLen, e.armed
}

// Encrypt encrypts buf in place.
func (e *AESCTR) Encrypt(fromNode uint32, packetID uint64, buf []byte) error {
	return e.crypt(fromNode, packetID, buf)
}

// Decrypt decrypts buf in place. CTR mode is symmetric.
func (e *AESCTR) Decrypt(fromNode uint32, packetID uint64, buf []byte) error {
	return e.crypt(fromNode, packetID, buf)
}

func (e *AESCTR) crypt(fromNode uint32, packetID uint64, buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if !e.armed {
		return ErrNotArmed
	}
	if e.keyLen == 0 {
		return nil
	}

	block, err := aes.NewCipher(e.key.Bytes())
	if err != nil {
		return fmt.Errorf("cryptoengine: new cipher: %w", err)
	}
	nonce := Nonce(fromNode, packetID)
	cipher.NewCTR(block, nonce[:]).XORKeyStream(buf, buf)
	return nil
}

// Close wipes the armed key. The engine cannot be re-armed afterwards.
func (e *AESCTR) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.destroyLocked()
	e.armed = false
	e.closed = true
	return nil
}

func (e *AESCTR) destroyLocked() {
	if e.key != nil {
		e.key.Destroy()
		e.key = nil
	}
	e.keyLen = 0
}

// Nonce builds the initial counter block: packet id (little endian, 8 bytes), sender node
// number (little endian, 4 bytes), then zeros.
func Nonce(fromNode uint32, packetID uint64) [NonceSize]byte {
	var n [NonceSize]byte
	binary.LittleEndian.PutUint64(n[0:8], packetID)
	binary.LittleEndian.PutUint32(n[8:12], fromNode)
	return n
}

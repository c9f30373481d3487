// Package tunnel implements the CADET tunnel core: the double-ratchet
// cryptographic state machine, the redundant connection set, the send
// queue, and the channel table that together carry multiplexed,
// forward-secret application traffic over one or more routed
// connections to a peer.
package tunnel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32 // RootKey/ChainKey/MessageKey/HeaderKey width, §3.

	rootKDFInfo = "axolotl ratchet"
	ckKDFInfo   = "axolotl derive key"
)

// DHPrivateKey and DHPublicKey are X25519 scalars/points, matching the
// teacher's curve25519-based ratchet (pkg/protocol/ratchet.go).
type DHPrivateKey [32]byte
type DHPublicKey [32]byte

// keyMaterial is any of RootKey/ChainKey/MessageKey/HeaderKey: a fixed
// 32-byte secret that must be zeroed on supersession (§5 Memory).
type keyMaterial [keySize]byte

func (k *keyMaterial) wipe() {
	for i := range k {
		k[i] = 0
	}
}

// generateDHKeyPair creates a fresh X25519 ratchet key pair.
func generateDHKeyPair() (DHPrivateKey, DHPublicKey, error) {
	var priv DHPrivateKey
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return DHPrivateKey{}, DHPublicKey{}, fmt.Errorf("tunnel: generate DH key: %w", err)
	}
	var pub DHPublicKey
	curve25519.ScalarBaseMult((*[32]byte)(&pub), (*[32]byte)(&priv))
	return priv, pub, nil
}

func dh(priv DHPrivateKey, pub DHPublicKey) ([]byte, error) {
	var shared [32]byte
	curve25519.ScalarMult(&shared, (*[32]byte)(&priv), (*[32]byte)(&pub))
	return shared[:], nil
}

// kdfRatchet implements the ratchet-step KDF: (RK', NHK', CK') =
// KDF("axolotl ratchet", HMAC_HASH(RK, dh)) as three consecutive
// 32-byte subkeys.
func kdfRatchet(rk keyMaterial, dhOut []byte) (rk2, nhk2, ck2 keyMaterial, err error) {
	prk := hmacHash(rk[:], dhOut)
	r := hkdf.New(sha256.New, prk, nil, []byte(rootKDFInfo))
	buf := make([]byte, 3*keySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return keyMaterial{}, keyMaterial{}, keyMaterial{}, fmt.Errorf("tunnel: ratchet kdf: %w", err)
	}
	copy(rk2[:], buf[0:keySize])
	copy(nhk2[:], buf[keySize:2*keySize])
	copy(ck2[:], buf[2*keySize:3*keySize])
	return rk2, nhk2, ck2, nil
}

// kdfChain implements the per-message chain step: MK = KDF("axolotl
// derive key", HMAC_HASH(CK, "0")); CK' = KDF("axolotl derive key",
// HMAC_HASH(CK, "1")).
func kdfChain(ck keyMaterial) (ck2, mk keyMaterial) {
	mkSeed := hmacHash(ck[:], []byte("0"))
	ckSeed := hmacHash(ck[:], []byte("1"))

	r := hkdf.New(sha256.New, mkSeed, nil, []byte(ckKDFInfo))
	io.ReadFull(r, mk[:])

	r2 := hkdf.New(sha256.New, ckSeed, nil, []byte(ckKDFInfo))
	io.ReadFull(r2, ck2[:])
	return ck2, mk
}

func hmacHash(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// streamFor returns an AES-CTR keystream keyed by key, with an IV
// derived from key and the supplied context label. Header and payload
// encryption share this construction; the frame's outer MAC (computed
// over both ciphertexts) is what authenticates the frame, so this
// layer only needs to provide confidentiality.
func streamFor(key [32]byte, context string) (cipher.Stream, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("tunnel: aes cipher: %w", err)
	}
	iv := hmacHash(key[:], []byte(context))[:aes.BlockSize]
	return cipher.NewCTR(block, iv), nil
}

func cryptBytes(key [32]byte, context string, in []byte) ([]byte, error) {
	stream, err := streamFor(key, context)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}

// State is the Axolotl ratchet state attached to one Tunnel (§3).
// State is owned exclusively by its Tunnel (§5); nothing outside
// pkg/tunnel may mutate it directly.
type State struct {
	RK keyMaterial

	CKs, CKr keyMaterial
	HKs, HKr keyMaterial
	NHKs     keyMaterial
	NHKr     keyMaterial

	DHRs    DHPrivateKey
	DHRsPub DHPublicKey
	DHRr    DHPublicKey

	kx0 *DHPrivateKey // ephemeral handshake key, cleared post-KX

	Ns, Nr uint32
	PNs    uint32

	ratchetFlag       bool
	ratchetAllowed    bool
	ratchetCounter    uint32
	ratchetExpiration time.Time

	skipped *skippedKeyStore

	cfg Config
}

// NewInitiatorState creates Axolotl state for the side that sends the
// first post-KX message (Alice's role in the teacher's
// NewRatchetState). sharedSecret is the SK negotiated by the
// out-of-scope KX exchange; remoteDHPub is the peer's initial ratchet
// public key; localHKs/localNHKs/remoteHKr/remoteNHKr are the initial
// header keys the KX layer derived alongside SK.
func NewInitiatorState(cfg Config, sharedSecret []byte, remoteDHPub DHPublicKey, hks, nhks, hkr, nhkr [32]byte) (*State, error) {
	priv, pub, err := generateDHKeyPair()
	if err != nil {
		return nil, err
	}
	s := &State{
		DHRs:      priv,
		DHRsPub:   pub,
		DHRr:      remoteDHPub,
		skipped:   newSkippedKeyStore(cfg.MaxSkippedKeys),
		cfg:       cfg,
		HKs:       keyMaterial(hks),
		NHKs:      keyMaterial(nhks),
		HKr:       keyMaterial(hkr),
		NHKr:      keyMaterial(nhkr),
		ratchetExpiration: time.Now().Add(cfg.RatchetTime),
	}
	copy(s.RK[:], sharedSecret[:keySize])

	dhOut, err := dh(s.DHRs, s.DHRr)
	if err != nil {
		return nil, err
	}
	rk2, nhk2, ck2, err := kdfRatchet(s.RK, dhOut)
	if err != nil {
		return nil, err
	}
	s.RK, s.NHKs, s.CKs = rk2, nhk2, ck2
	return s, nil
}

// NewResponderState creates Axolotl state for the side that receives
// the first post-KX message (Bob's role). The sending chain key is
// left unset until this side's first send-side DH ratchet step, which
// is only permitted after a frame from the initiator has been received.
func NewResponderState(cfg Config, sharedSecret []byte, localPriv DHPrivateKey, localPub DHPublicKey, hks, nhks, hkr, nhkr [32]byte) *State {
	s := &State{
		DHRs:    localPriv,
		DHRsPub: localPub,
		skipped: newSkippedKeyStore(cfg.MaxSkippedKeys),
		cfg:     cfg,
		HKs:     keyMaterial(hks),
		NHKs:    keyMaterial(nhks),
		HKr:     keyMaterial(hkr),
		NHKr:    keyMaterial(nhkr),
		ratchetExpiration: time.Now().Add(cfg.RatchetTime),
	}
	copy(s.RK[:], sharedSecret[:keySize])
	return s
}

// Wipe zeroes all key material (§5 Memory, Tunnel destruction).
func (s *State) Wipe() {
	s.RK.wipe()
	s.CKs.wipe()
	s.CKr.wipe()
	s.HKs.wipe()
	s.HKr.wipe()
	s.NHKs.wipe()
	s.NHKr.wipe()
	for i := range s.DHRs {
		s.DHRs[i] = 0
	}
	if s.kx0 != nil {
		for i := range s.kx0 {
			s.kx0[i] = 0
		}
	}
	s.skipped.wipe()
}

// maybeAdvanceRatchet implements encrypt-path step 1-3: decide whether
// to set ratchetFlag (I4) and, if so, perform the DH ratchet step
// (I5).
func (s *State) maybeAdvanceRatchet() error {
	s.ratchetCounter++
	if s.ratchetAllowed && (s.ratchetCounter >= s.cfg.RatchetMessages || !s.ratchetExpiration.After(time.Now())) {
		s.ratchetFlag = true
	}
	if !s.ratchetFlag {
		return nil
	}

	newPriv, newPub, err := generateDHKeyPair()
	if err != nil {
		return err
	}

	s.HKs = s.NHKs

	dhOut, err := dh(newPriv, s.DHRr)
	if err != nil {
		return err
	}
	rk2, nhks2, cks2, err := kdfRatchet(s.RK, dhOut)
	if err != nil {
		return err
	}

	s.RK = rk2
	s.NHKs = nhks2
	s.CKs = cks2
	s.DHRs = newPriv
	s.DHRsPub = newPub
	s.PNs = s.Ns
	s.Ns = 0
	s.ratchetFlag = false
	s.ratchetAllowed = false
	s.ratchetCounter = 0
	s.ratchetExpiration = time.Now().Add(s.cfg.RatchetTime)
	return nil
}

// Encrypt implements the encrypt path (§4.1 "send"). It is infallible
// given valid state; the only error paths are generator/KDF failures.
func (s *State) Encrypt(plaintext []byte) (Frame, error) {
	if err := s.maybeAdvanceRatchet(); err != nil {
		return Frame{}, err
	}

	cks2, mk := kdfChain(s.CKs)

	h := axHeader{Ns: s.Ns, PNs: s.PNs, DHRPub: [32]byte(s.DHRsPub)}
	headerPlain := h.encode()

	headerCipher, err := cryptBytes([32]byte(s.HKs), "header", headerPlain)
	if err != nil {
		return Frame{}, err
	}
	payloadCipher, err := cryptBytes([32]byte(mk), "payload", plaintext)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{HeaderCipher: headerCipher, PayloadCipher: payloadCipher}
	mac := hmacHash(s.HKs[:], f.macInput())
	copy(f.MAC[:], mac[:macSize])

	s.CKs = cks2
	s.Ns++
	mk.wipe()
	return f, nil
}

// Decrypt implements the decrypt path (§4.1 "handle_encrypted"),
// trying current HKr (Step A), NHKr (Step B), then the
// SkippedKeyStore (Step C) in that strict order.
func (s *State) Decrypt(f Frame) ([]byte, error) {
	if len(f.HeaderCipher) != axHeaderSize {
		return nil, ErrFrameTooShort
	}

	// Step A: current HKr.
	if macMatches(s.HKr, f) {
		headerPlain, err := cryptBytes([32]byte(s.HKr), "header", f.HeaderCipher)
		if err != nil {
			return nil, err
		}
		h, err := decodeAxHeader(headerPlain)
		if err != nil {
			return nil, err
		}
		if h.Ns < s.Nr {
			// Delayed message: its key was already staged into the
			// SkippedKeyStore when a later message advanced Nr past
			// it. Fall through to Step C instead of re-deriving.
			return s.tryDecryptSkipped(f)
		}
		if h.Ns > s.Nr {
			if err := s.stageSkippedUntil(h.Ns); err != nil {
				return nil, err
			}
		}
		return s.finishDecrypt(f, h.Ns)
	}

	// Step B: NHKr — the peer has ratcheted.
	if macMatches(s.NHKr, f) {
		headerPlain, err := cryptBytes([32]byte(s.NHKr), "header", f.HeaderCipher)
		if err != nil {
			return nil, err
		}
		h, err := decodeAxHeader(headerPlain)
		if err != nil {
			return nil, err
		}

		// Stage skipped keys for the tail of the OLD receiving chain
		// before we roll it over (messages in flight under the peer's
		// previous sending chain).
		if s.CKr != (keyMaterial{}) {
			if err := s.stageSkippedUntil(h.PNs); err != nil {
				return nil, err
			}
		}

		s.HKr = s.NHKr
		dhOut, err := dh(s.DHRs, h.DHRPub)
		if err != nil {
			return nil, err
		}
		rk2, nhkr2, ckr2, err := kdfRatchet(s.RK, dhOut)
		if err != nil {
			return nil, err
		}
		s.RK = rk2
		s.NHKr = nhkr2
		s.CKr = ckr2
		s.DHRr = h.DHRPub
		s.Nr = 0
		s.ratchetAllowed = true

		if h.Ns != s.Nr {
			if err := s.stageSkippedUntil(h.Ns); err != nil {
				return nil, err
			}
		}
		return s.finishDecrypt(f, h.Ns)
	}

	// Step C: skipped keys.
	return s.tryDecryptSkipped(f)
}

// tryDecryptSkipped implements Step C (§4.1): find a stored header key
// whose MAC matches, decrypt the header under it to recover the
// message number, look up the message key stored for that (HK, Kn)
// pair, decrypt the payload, and consume the entry.
func (s *State) tryDecryptSkipped(f Frame) ([]byte, error) {
	hk, ok := s.skipped.matchingHK(f)
	if !ok {
		return nil, ErrMacMismatch
	}
	headerPlain, err := cryptBytes([32]byte(hk), "header", f.HeaderCipher)
	if err != nil {
		return nil, err
	}
	h, err := decodeAxHeader(headerPlain)
	if err != nil {
		return nil, err
	}
	entry, ok := s.skipped.lookup(hk, h.Ns)
	if !ok {
		return nil, ErrMacMismatch
	}
	plaintext, err := cryptBytes([32]byte(entry.MK), "payload", f.PayloadCipher)
	if err != nil {
		return nil, err
	}
	s.skipped.remove(entry)
	return plaintext, nil
}

// finishDecrypt derives the message key for Np, decrypts the payload,
// advances CKr, and sets Nr = Np+1 (I1).
func (s *State) finishDecrypt(f Frame, np uint32) ([]byte, error) {
	ckr2, mk := kdfChain(s.CKr)
	plaintext, err := cryptBytes([32]byte(mk), "payload", f.PayloadCipher)
	if err != nil {
		return nil, err
	}
	s.CKr = ckr2
	s.Nr = np + 1
	mk.wipe()
	return plaintext, nil
}

// stageSkippedUntil stages skipped keys for [Nr, np) against the
// current HKr and sets Nr = np (store_ax_keys, §4.1).
func (s *State) stageSkippedUntil(np uint32) error {
	if np < s.Nr {
		// Delayed message: handled by the caller falling through to
		// Step C, not by staging.
		return nil
	}
	if np-s.Nr > s.cfg.MaxKeyGap {
		return ErrGapExceeded
	}
	for s.Nr < np {
		ckr2, mk := kdfChain(s.CKr)
		s.skipped.store(s.HKr, mk, s.Nr)
		s.CKr = ckr2
		s.Nr++
	}
	return nil
}

// macMatches reports whether hk authenticates f under HMAC_HASH.
func macMatches(hk keyMaterial, f Frame) bool {
	if hk == (keyMaterial{}) {
		return false
	}
	mac := hmacHash(hk[:], f.macInput())
	return subtle.ConstantTimeCompare(mac[:macSize], f.MAC[:]) == 1
}

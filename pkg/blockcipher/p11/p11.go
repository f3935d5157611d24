//go:build pkcs11

// Package p11 runs the block cipher engine on a PKCS#11 token (SoftHSM or a
// hardware module). Enable it with the pkcs11 build tag so the default build does
// not need a PKCS#11 library.
package p11

import (
	"errors"
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

// ErrModeNotOffered is returned for modes the token path does not drive, so the
// engine moves on to its fallback.
var ErrModeNotOffered = errors.New("p11: mode not offered by token path")

// Path is a blockcipher.Path backed by a logged-in PKCS#11 session. Keys are
// imported as session objects per call and destroyed afterwards.
type Path struct {
	libPath string
	slotID  uint
	pin     string

	mu   sync.Mutex
	ctx  *pkcs11.Ctx
	sess pkcs11.SessionHandle
}

var _ blockcipher.Path = (*Path)(nil)

// New returns an unopened token path.
func New(libPath string, slotID uint, pin string) *Path {
	return &Path{libPath: libPath, slotID: slotID, pin: pin}
}

// Name identifies the path in logs.
func (p *Path) Name() string { return "pkcs11" }

// Open loads the module, opens a session on the slot and logs in.
func (p *Path) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = pkcs11.New(p.libPath)
	if p.ctx == nil {
		return fmt.Errorf("p11: load pkcs11 library %q failed", p.libPath)
	}
	if err := p.ctx.Initialize(); err != nil {
		return fmt.Errorf("p11: initialize: %w", err)
	}

	sess, err := p.ctx.OpenSession(pkcs11.SlotID(p.slotID), pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		_ = p.ctx.Finalize()
		return fmt.Errorf("p11: open session: %w", err)
	}
	p.sess = sess

	if err := p.ctx.Login(p.sess, pkcs11.CKU_USER, p.pin); err != nil {
		_ = p.ctx.CloseSession(p.sess)
		_ = p.ctx.Finalize()
		return fmt.Errorf("p11: login: %w", err)
	}

	return nil
}

// Close logs out and releases the module.
func (p *Path) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return
	}
	if p.sess != 0 {
		_ = p.ctx.Logout(p.sess)
		_ = p.ctx.CloseSession(p.sess)
	}
	_ = p.ctx.Finalize()
	p.ctx.Destroy()
	p.ctx = nil
}

// Encrypt encrypts data on the token.
func (p *Path) Encrypt(alg blockcipher.Algorithm, mode blockcipher.Mode, key, iv, data []byte) ([]byte, error) {
	return p.crypt(true, alg, mode, key, iv, data)
}

// Decrypt decrypts data on the token.
func (p *Path) Decrypt(alg blockcipher.Algorithm, mode blockcipher.Mode, key, iv, data []byte) ([]byte, error) {
	return p.crypt(false, alg, mode, key, iv, data)
}

func mechanism(alg blockcipher.Algorithm, mode blockcipher.Mode, iv []byte) (*pkcs11.Mechanism, uint, error) {
	switch {
	case alg == blockcipher.TDES && mode == blockcipher.ECB:
		return pkcs11.NewMechanism(pkcs11.CKM_DES3_ECB, nil), pkcs11.CKK_DES3, nil
	case alg == blockcipher.TDES && mode == blockcipher.CBC:
		return pkcs11.NewMechanism(pkcs11.CKM_DES3_CBC, iv), pkcs11.CKK_DES3, nil
	case alg == blockcipher.AES && mode == blockcipher.ECB:
		return pkcs11.NewMechanism(pkcs11.CKM_AES_ECB, nil), pkcs11.CKK_AES, nil
	case alg == blockcipher.AES && mode == blockcipher.CBC:
		return pkcs11.NewMechanism(pkcs11.CKM_AES_CBC, iv), pkcs11.CKK_AES, nil
	default:
		return nil, 0, fmt.Errorf("%w: %s/%s", ErrModeNotOffered, alg, mode)
	}
}

func (p *Path) crypt(
	encrypt bool,
	alg blockcipher.Algorithm,
	mode blockcipher.Mode,
	key, iv, data []byte,
) ([]byte, error) {
	mech, keyType, err := mechanism(alg, mode, iv)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		return nil, errors.New("p11: session not open")
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, keyType),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, key),
	}
	obj, err := p.ctx.CreateObject(p.sess, template)
	if err != nil {
		return nil, fmt.Errorf("p11: import key: %w", err)
	}
	defer func() { _ = p.ctx.DestroyObject(p.sess, obj) }()

	mechs := []*pkcs11.Mechanism{mech}
	if encrypt {
		if err := p.ctx.EncryptInit(p.sess, mechs, obj); err != nil {
			return nil, fmt.Errorf("p11: encrypt init: %w", err)
		}

		return p.ctx.Encrypt(p.sess, data)
	}

	if err := p.ctx.DecryptInit(p.sess, mechs, obj); err != nil {
		return nil, fmt.Errorf("p11: decrypt init: %w", err)
	}

	return p.ctx.Decrypt(p.sess, data)
}

// Package credential turns ticket codes into scannable credentials. The QR
// image encodes "<code>.<mac>" where mac is a keyed BLAKE2b-256 digest of
// the code, so a scanner can reject forged codes before any lookup.
package credential

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidToken = errors.New("invalid credential token")

// Issuer signs and renders ticket credentials. It is safe for concurrent use.
type Issuer struct {
	key   []byte
	size  int
	level qrcode.RecoveryLevel
}

type Option func(*Issuer)

// WithSize sets the QR image edge length in pixels.
func WithSize(px int) Option { return func(i *Issuer) { i.size = px } }

// WithRecoveryLevel sets the QR error correction level.
func WithRecoveryLevel(l qrcode.RecoveryLevel) Option { return func(i *Issuer) { i.level = l } }

// NewIssuer requires a key of 16 to 64 bytes.
func NewIssuer(key []byte, opts ...Option) (*Issuer, error) {
	if len(key) < 16 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("credential key must be 16..%d bytes, got %d", blake2b.Size, len(key))
	}
	i := &Issuer{key: append([]byte(nil), key...), size: 256, level: qrcode.Medium}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// Token returns the signed form of code.
func (i *Issuer) Token(code string) string {
	return code + "." + base64.RawURLEncoding.EncodeToString(i.mac(code))
}

// Verify checks a token produced by Token and returns its code.
func (i *Issuer) Verify(token string) (string, error) {
	code, sig, ok := strings.Cut(token, ".")
	if !ok || code == "" {
		return "", ErrInvalidToken
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrInvalidToken
	}
	if subtle.ConstantTimeCompare(got, i.mac(code)) != 1 {
		return "", ErrInvalidToken
	}
	return code, nil
}

// Render returns the base64 PNG of a QR code carrying the signed token.
func (i *Issuer) Render(code string) (string, error) {
	png, err := qrcode.Encode(i.Token(code), i.level, i.size)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func (i *Issuer) mac(code string) []byte {
	h, err := blake2b.New256(i.key)
	if err != nil {
		// key length is checked in NewIssuer
		panic(err)
	}
	h.Write([]byte(code))
	return h.Sum(nil)
}

package checkin

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const (
	tokenVersion byte = 1

	// MaxFieldLen bounds every string field so tokens stay QR sized.
	MaxFieldLen = 256

	nonceBytes = 16
)

var errMalformed = errors.New("malformed token")

// Claims is the signed content of a check-in token.
type Claims struct {
	EventID     string
	OrganizerID string
	IssuedAt    time.Time
	Nonce       string
}

// payload is the canonical byte string the MAC covers: a version byte, then
// each string field as uvarint length followed by its bytes, with the issue
// time as 8 big-endian bytes of Unix milliseconds. Length prefixes make the
// encoding injective whatever characters the identities contain.
func (c Claims) payload() []byte {
	buf := make([]byte, 0, 1+3*binary.MaxVarintLen64+len(c.EventID)+len(c.OrganizerID)+len(c.Nonce)+8)
	buf = append(buf, tokenVersion)
	buf = appendField(buf, c.EventID)
	buf = appendField(buf, c.OrganizerID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.IssuedAt.UnixMilli()))
	buf = appendField(buf, c.Nonce)
	return buf
}

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// encodeToken renders the wire form: base64url(payload ‖ uvarint(len(mac)) ‖ mac).
func encodeToken(c Claims, mac []byte) string {
	raw := c.payload()
	raw = binary.AppendUvarint(raw, uint64(len(mac)))
	raw = append(raw, mac...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeToken parses the wire form. It never panics; every structural defect
// (bad base64, unknown version, empty or oversized field, non-canonical
// length prefix, trailing bytes) yields errMalformed. The returned payload is
// the canonical signed byte string.
func decodeToken(s string) (Claims, []byte, []byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return Claims{}, nil, nil, errMalformed
	}
	if raw[0] != tokenVersion {
		return Claims{}, nil, nil, errMalformed
	}

	r := fieldReader{buf: raw, off: 1}
	var c Claims
	c.EventID = string(r.field())
	c.OrganizerID = string(r.field())
	ms := r.millis()
	c.Nonce = string(r.field())
	end := r.off
	mac := r.field()
	if r.err != nil || r.off != len(raw) {
		return Claims{}, nil, nil, errMalformed
	}
	if int64(ms) <= 0 {
		return Claims{}, nil, nil, errMalformed
	}
	c.IssuedAt = time.UnixMilli(int64(ms)).UTC()

	payload := c.payload()
	if !bytes.Equal(payload, raw[:end]) {
		return Claims{}, nil, nil, errMalformed
	}
	return c, payload, mac, nil
}

type fieldReader struct {
	buf []byte
	off int
	err error
}

func (r *fieldReader) field() []byte {
	if r.err != nil {
		return nil
	}
	n, k := binary.Uvarint(r.buf[r.off:])
	if k <= 0 || n == 0 || n > MaxFieldLen {
		r.err = errMalformed
		return nil
	}
	r.off += k
	if uint64(len(r.buf)-r.off) < n {
		r.err = errMalformed
		return nil
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b
}

func (r *fieldReader) millis() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf)-r.off < 8 {
		r.err = errMalformed
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func validIdentity(s string) bool {
	return s != "" && len(s) <= MaxFieldLen
}

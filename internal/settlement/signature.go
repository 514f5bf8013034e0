package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SirClappington/rightsguard/internal/domain"
)

// SignatureHeader carries "t=<unix>,v1=<hex>" where the hex value is
// HMAC-SHA256(secret, "<t>.<payload>"). Several v1 entries may be present
// while the sender rotates secrets.
const SignatureHeader = "Stripe-Signature"

const DefaultTolerance = 5 * time.Minute

type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance}
}

// Verify checks header against payload. Any doubt is a rejection: no secret,
// a malformed header, a stale timestamp or a mismatch all return
// domain.ErrUnauthentic.
func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no signing secret configured", domain.ErrUnauthentic)
	}
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}
	if d := now.Sub(time.Unix(ts, 0)); d > v.tolerance || d < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrUnauthentic)
	}
	want := v.mac(ts, payload)
	for _, sig := range sigs {
		if hmac.Equal(sig, want) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", domain.ErrUnauthentic)
}

// Sign produces a header value for payload at ts.
func (v *Verifier) Sign(payload []byte, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(v.mac(ts.Unix(), payload)))
}

func (v *Verifier) mac(ts int64, payload []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte{'.'})
	m.Write(payload)
	return m.Sum(nil)
}

func parseHeader(header string) (int64, [][]byte, error) {
	var (
		ts    int64
		hasTS bool
		sigs  [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", domain.ErrUnauthentic)
			}
			ts, hasTS = n, true
		case "v1":
			b, err := hex.DecodeString(val)
			if err != nil {
				continue
			}
			sigs = append(sigs, b)
		}
	}
	if !hasTS || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed signature header", domain.ErrUnauthentic)
	}
	return ts, sigs, nil
}

// Package identity derives certificate identifiers, display numbers, verification
// codes and the integrity hash recomputed at verification time.
//
// Integrity hash canonical form (schema 1.0): SHA-256 over the compact JSON object
//
//	{"schemaVersion":…,"studentName":…,"courseName":…,"completionDate":…,"certificateNumber":…,"issuer":…}
//
// with keys in exactly that order, completionDate rendered in UTC as
// 2006-01-02T15:04:05Z (sub-second precision dropped), standard encoding/json
// string escaping, no trailing newline. The digest is lowercase hex.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"certify/internal/certificate/models"
	dErrors "certify/pkg/domain-errors"
)

const (
	certificateIDLength    = 12
	verificationCodeLength = 16
	completionDateLayout   = "2006-01-02T15:04:05Z"
)

// Deriver produces identities bound to one verification secret and issuer.
type Deriver struct {
	secret string
	issuer string
	now    func() time.Time
	random io.Reader
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithClock overrides the time source used for identifiers.
func WithClock(now func() time.Time) Option {
	return func(d *Deriver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRandom overrides the entropy source. Tests only.
func WithRandom(r io.Reader) Option {
	return func(d *Deriver) {
		if r != nil {
			d.random = r
		}
	}
}

// New builds a Deriver. An empty secret is a configuration error.
func New(secret, issuer string, opts ...Option) (*Deriver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration, "verification secret is required")
	}
	if issuer == "" {
		issuer = models.DefaultIssuer
	}
	d := &Deriver{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Issuer returns the issuer name bound to this deriver.
func (d *Deriver) Issuer() string {
	return d.issuer
}

// NewCertificateID returns 12 uppercase alphanumerics: the last six base-36
// digits of the current millisecond timestamp followed by six random hex digits.
func (d *Deriver) NewCertificateID() (string, error) {
	ts := strconv.FormatInt(d.now().UnixMilli(), 36)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	suffix, err := d.randomHex(3)
	if err != nil {
		return "", err
	}
	id := strings.ToUpper(ts + suffix)
	if len(id) < certificateIDLength {
		id = strings.Repeat("0", certificateIDLength-len(id)) + id
	}
	return id[:certificateIDLength], nil
}

// NewCertificateNumber returns CERT-YYYYMM-XXXXXXXX.
func (d *Deriver) NewCertificateNumber() (string, error) {
	suffix, err := d.randomHex(4)
	if err != nil {
		return "", err
	}
	now := d.now().UTC()
	return fmt.Sprintf("CERT-%d%02d-%s", now.Year(), int(now.Month()), strings.ToUpper(suffix)), nil
}

// VerificationCode derives the manual lookup code for a certificate ID.
func (d *Deriver) VerificationCode(certificateID string) string {
	code, _ := VerificationCode(certificateID, d.secret)
	return code
}

// ContentHash computes the integrity hash with this deriver's issuer.
func (d *Deriver) ContentHash(subject models.Subject) string {
	return ContentHash(subject, d.issuer)
}

// VerificationCode returns the first 16 uppercase hex characters of
// SHA-256(certificateID || secret).
func VerificationCode(certificateID, secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeConfiguration, "verification secret is required")
	}
	sum := sha256.Sum256([]byte(certificateID + secret))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:verificationCodeLength], nil
}

type canonicalSubject struct {
	SchemaVersion     string `json:"schemaVersion"`
	StudentName       string `json:"studentName"`
	CourseName        string `json:"courseName"`
	CompletionDate    string `json:"completionDate"`
	CertificateNumber string `json:"certificateNumber"`
	Issuer            string `json:"issuer"`
}

// CanonicalBytes returns the exact byte string hashed by ContentHash.
func CanonicalBytes(subject models.Subject, issuer string) []byte {
	// Marshal of a flat struct of strings cannot fail.
	b, _ := json.Marshal(canonicalSubject{
		SchemaVersion:     models.SchemaVersion,
		StudentName:       subject.StudentName,
		CourseName:        subject.CourseName,
		CompletionDate:    FormatCompletionDate(subject.CompletionDate),
		CertificateNumber: subject.CertificateNumber,
		Issuer:            issuer,
	})
	return b
}

// ContentHash is the lowercase hex SHA-256 of CanonicalBytes.
func ContentHash(subject models.Subject, issuer string) string {
	sum := sha256.Sum256(CanonicalBytes(subject, issuer))
	return hex.EncodeToString(sum[:])
}

// FormatCompletionDate renders a completion timestamp in the canonical layout.
func FormatCompletionDate(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(completionDateLayout)
}

func (d *Deriver) randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Package metadata builds the QR payload and the canonical metadata document
// for a certificate and uploads the document to content-addressed storage.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"certify/internal/certificate/identity"
	"certify/internal/certificate/models"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/sentinel"
)

const documentContentType = "application/json"

// ContentStore is the subset of the content store the packager needs.
type ContentStore interface {
	Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// QRPayload is the JSON encoded into certificate QR codes.
type QRPayload struct {
	CertificateID    string `json:"certificateId"`
	VerificationURL  string `json:"verificationUrl"`
	VerificationCode string `json:"verificationCode"`
	IssueTimestamp   int64  `json:"issueTimestamp"`
	Issuer           string `json:"issuer"`
}

// Issuer identifies who signed off on a certificate.
type Issuer struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Subject carries the holder-facing fields of the metadata document.
type Subject struct {
	StudentName         string   `json:"studentName"`
	CourseID            string   `json:"courseId"`
	CourseName          string   `json:"courseName"`
	InstructorName      string   `json:"instructorName,omitempty"`
	CompletionDate      string   `json:"completionDate"`
	CertificateNumber   string   `json:"certificateNumber"`
	Grade               string   `json:"grade"`
	Score               int      `json:"score"`
	Achievements        []string `json:"achievements"`
	CompletionTimeHours float64  `json:"completionTimeHours,omitempty"`
}

// Ledger names where the certificate is expected to be anchored.
type Ledger struct {
	Network         string `json:"network"`
	ContractAddress string `json:"contractAddress"`
}

// Document is the metadata uploaded to the content store. Its address is what
// the ledger mint references.
type Document struct {
	SchemaVersion string  `json:"schemaVersion"`
	CertificateID string  `json:"certificateId"`
	Issuer        Issuer  `json:"issuer"`
	Subject       Subject `json:"subject"`
	IntegrityHash string  `json:"integrityHash"`
	Ledger        Ledger  `json:"ledger"`
	IssuedAt      string  `json:"issuedAt"`
}

// Input is everything the packager needs from a certificate in the making.
type Input struct {
	Certificate *models.Certificate
	IssuedAt    time.Time
}

// Result is the outcome of Package.
type Result struct {
	QRPayload           string
	MetadataContentHash string
	IntegrityHash       string
	Document            Document
}

// Packager builds and uploads metadata documents.
type Packager struct {
	store           ContentStore
	verifyBaseURL   string
	issuer          Issuer
	network         string
	contractAddress string
}

// Option configures a Packager.
type Option func(*Packager)

// WithLedger records the network name and contract address in documents.
// An empty contract address stays as a placeholder.
func WithLedger(network, contractAddress string) Option {
	return func(p *Packager) {
		p.network = network
		p.contractAddress = contractAddress
	}
}

// WithIssuerURL sets the issuer's public URL.
func WithIssuerURL(url string) Option {
	return func(p *Packager) {
		p.issuer.URL = url
	}
}

// NewPackager builds a packager. verifyBaseURL is the public verification
// endpoint prefix; the certificate ID is appended to it.
func NewPackager(store ContentStore, verifyBaseURL, issuerName string, opts ...Option) *Packager {
	if issuerName == "" {
		issuerName = models.DefaultIssuer
	}
	p := &Packager{
		store:           store,
		verifyBaseURL:   strings.TrimRight(verifyBaseURL, "/"),
		issuer:          Issuer{Name: issuerName},
		network:         "none",
		contractAddress: "0x0000000000000000000000000000000000000000",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VerificationURL returns the public verification link for a certificate.
func (p *Packager) VerificationURL(certificateID string) string {
	return p.verifyBaseURL + "/" + certificateID
}

// BuildQRPayload renders the QR JSON. Field order is fixed by the struct.
func (p *Packager) BuildQRPayload(cert *models.Certificate, issuedAt time.Time) (string, error) {
	b, err := json.Marshal(QRPayload{
		CertificateID:    cert.CertificateID,
		VerificationURL:  p.VerificationURL(cert.CertificateID),
		VerificationCode: cert.VerificationCode,
		IssueTimestamp:   issuedAt.UTC().Unix(),
		Issuer:           p.issuer.Name,
	})
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(b), nil
}

// BuildDocument assembles the metadata document without uploading it.
func (p *Packager) BuildDocument(cert *models.Certificate, issuedAt time.Time) Document {
	achievements := cert.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return Document{
		SchemaVersion: models.SchemaVersion,
		CertificateID: cert.CertificateID,
		Issuer:        p.issuer,
		Subject: Subject{
			StudentName:         cert.StudentName,
			CourseID:            cert.CourseID,
			CourseName:          cert.CourseName,
			InstructorName:      cert.InstructorName,
			CompletionDate:      identity.FormatCompletionDate(cert.CompletionDate),
			CertificateNumber:   cert.CertificateNumber,
			Grade:               cert.Grade,
			Score:               cert.Score,
			Achievements:        achievements,
			CompletionTimeHours: cert.CompletionTimeHours,
		},
		IntegrityHash: identity.ContentHash(cert.Subject(), p.issuer.Name),
		Ledger: Ledger{
			Network:         p.network,
			ContractAddress: p.contractAddress,
		},
		IssuedAt: issuedAt.UTC().Format(time.RFC3339),
	}
}

// Package builds the QR payload and uploads the metadata document.
// Upload failures surface as metadata_upload_failed; nothing may be minted
// without the resulting address.
func (p *Packager) Package(ctx context.Context, in Input) (*Result, error) {
	if in.Certificate == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "certificate is required")
	}
	if p.store == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "content store not configured")
	}
	issuedAt := in.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	qr, err := p.BuildQRPayload(in.Certificate, issuedAt)
	if err != nil {
		return nil, err
	}

	doc := p.BuildDocument(in.Certificate, issuedAt)
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata document: %w", err)
	}

	address, err := p.store.Put(ctx, body, documentContentType, map[string]string{
		"name":           in.Certificate.CertificateID + ".json",
		"certificate_id": in.Certificate.CertificateID,
		"kind":           "metadata",
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMetadataUploadFailed, "metadata upload failed")
	}

	return &Result{
		QRPayload:           qr,
		MetadataContentHash: address,
		IntegrityHash:       doc.IntegrityHash,
		Document:            doc,
	}, nil
}

// Load fetches and decodes a metadata document by content address.
func (p *Packager) Load(ctx context.Context, address string) (*Document, error) {
	if p.store == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "content store not configured")
	}
	data, err := p.store.Get(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "metadata document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "metadata document unavailable")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "metadata document malformed")
	}
	return &doc, nil
}

// ParseQRPayload extracts a certificate ID from a scanned QR blob.
func ParseQRPayload(raw string) (*QRPayload, error) {
	var payload QRPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "qr payload is not valid JSON")
	}
	payload.CertificateID = strings.TrimSpace(payload.CertificateID)
	if payload.CertificateID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "qr payload has no certificateId")
	}
	return &payload, nil
}

// Package render turns a certificate into a downloadable HTML document and
// stores it in the content store.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"

	"certify/internal/certificate/models"
	dErrors "certify/pkg/domain-errors"
)

const contentType = "text/html; charset=utf-8"

//go:embed templates/*.tmpl
var templates embed.FS

var documentTemplate = template.Must(template.ParseFS(templates, "templates/certificate.html.tmpl"))

// ContentStore is the subset of the content store the renderer writes to.
type ContentStore interface {
	Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error)
	URL(address string) string
}

// Artifact locates a rendered document.
type Artifact struct {
	Address string
	URL     string
}

// Renderer produces certificate documents.
type Renderer struct {
	store  ContentStore
	issuer string
}

// New returns a renderer that stores documents in store.
func New(store ContentStore, issuer string) *Renderer {
	if issuer == "" {
		issuer = models.DefaultIssuer
	}
	return &Renderer{store: store, issuer: issuer}
}

type view struct {
	CertificateID     string
	CertificateNumber string
	StudentName       string
	CourseName        string
	InstructorName    string
	CompletionDate    string
	Grade             string
	Score             int
	Achievements      []string
	Issuer            string
	VerificationURL   string
	VerificationCode  string
	QRPayload         json.RawMessage
}

// Render writes the document for cert. qrPayload is the JSON produced by the
// metadata packager and verificationURL its public link.
func (r *Renderer) Render(ctx context.Context, cert *models.Certificate, qrPayload, verificationURL string) (*Artifact, error) {
	if !json.Valid([]byte(qrPayload)) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "qr payload is not valid JSON")
	}
	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, view{
		CertificateID:     cert.CertificateID,
		CertificateNumber: cert.CertificateNumber,
		StudentName:       cert.StudentName,
		CourseName:        cert.CourseName,
		InstructorName:    cert.InstructorName,
		CompletionDate:    cert.CompletionDate.UTC().Format("January 2, 2006"),
		Grade:             cert.Grade,
		Score:             cert.Score,
		Achievements:      cert.Achievements,
		Issuer:            r.issuer,
		VerificationURL:   verificationURL,
		VerificationCode:  cert.VerificationCode,
		QRPayload:         json.RawMessage(qrPayload),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "render certificate document")
	}

	address, err := r.store.Put(ctx, buf.Bytes(), contentType, map[string]string{
		"name":           cert.CertificateNumber + ".html",
		"certificate_id": cert.CertificateID,
		"kind":           "document",
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMetadataUploadFailed, "store certificate document")
	}
	return &Artifact{Address: address, URL: r.store.URL(address)}, nil
}

package metadata_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/certificate/identity"
	"certify/internal/certificate/metadata"
	"certify/internal/certificate/models"
	"certify/internal/contentstore"
	dErrors "certify/pkg/domain-errors"
)

type PackagerSuite struct {
	suite.Suite
	store    *contentstore.InMemoryStore
	packager *metadata.Packager
	cert     *models.Certificate
	issuedAt time.Time
}

func TestPackagerSuite(t *testing.T) {
	suite.Run(t, new(PackagerSuite))
}

func (s *PackagerSuite) SetupTest() {
	s.store = contentstore.NewInMemoryStore()
	s.packager = metadata.NewPackager(s.store, "https://certs.example/verify/", "Certify Academy",
		metadata.WithLedger("sepolia", "0xAbC0000000000000000000000000000000000001"))
	s.issuedAt = time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)
	s.cert = &models.Certificate{
		CertificateID:     "LX3K9A0102AB",
		CertificateNumber: "CERT-202403-0A1B2C3D",
		VerificationCode:  "0123456789ABCDEF",
		UserID:            "u1",
		CourseID:          "c1",
		StudentName:       "Ada Lovelace",
		CourseName:        "Analytical Engines 101",
		InstructorName:    "Charles Babbage",
		CompletionDate:    time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
		Grade:             "A+",
		Score:             96,
		Achievements:      []string{"Excellence Award"},
	}
}

func (s *PackagerSuite) TestPackageUploadsDocument() {
	res, err := s.packager.Package(context.Background(), metadata.Input{Certificate: s.cert, IssuedAt: s.issuedAt})
	s.Require().NoError(err)

	s.NotEmpty(res.MetadataContentHash)
	s.Equal(identity.ContentHash(s.cert.Subject(), "Certify Academy"), res.IntegrityHash)

	doc, err := s.packager.Load(context.Background(), res.MetadataContentHash)
	s.Require().NoError(err)
	s.Equal(models.SchemaVersion, doc.SchemaVersion)
	s.Equal(res.IntegrityHash, doc.IntegrityHash)
	s.Equal("sepolia", doc.Ledger.Network)
	s.Equal("Ada Lovelace", doc.Subject.StudentName)
	s.Equal("2024-03-01T12:00:00Z", doc.Subject.CompletionDate)
}

func (s *PackagerSuite) TestPackageIsDeterministic() {
	a, err := s.packager.Package(context.Background(), metadata.Input{Certificate: s.cert, IssuedAt: s.issuedAt})
	s.Require().NoError(err)
	b, err := s.packager.Package(context.Background(), metadata.Input{Certificate: s.cert, IssuedAt: s.issuedAt})
	s.Require().NoError(err)

	s.Equal(a.MetadataContentHash, b.MetadataContentHash)
	s.Equal(a.QRPayload, b.QRPayload)
	s.Equal(1, s.store.Len())
}

func (s *PackagerSuite) TestQRPayloadRoundTrip() {
	res, err := s.packager.Package(context.Background(), metadata.Input{Certificate: s.cert, IssuedAt: s.issuedAt})
	s.Require().NoError(err)

	var raw map[string]any
	s.Require().NoError(json.Unmarshal([]byte(res.QRPayload), &raw))
	s.Equal("https://certs.example/verify/LX3K9A0102AB", raw["verificationUrl"])
	s.Equal("0123456789ABCDEF", raw["verificationCode"])
	s.EqualValues(s.issuedAt.Unix(), raw["issueTimestamp"])
	s.Equal("Certify Academy", raw["issuer"])

	payload, err := metadata.ParseQRPayload(res.QRPayload)
	s.Require().NoError(err)
	s.Equal("LX3K9A0102AB", payload.CertificateID)
}

func (s *PackagerSuite) TestUploadFailure() {
	s.store.FailPuts(errors.New("connection refused"))
	_, err := s.packager.Package(context.Background(), metadata.Input{Certificate: s.cert})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMetadataUploadFailed))
}

func (s *PackagerSuite) TestLoadMissingDocument() {
	_, err := s.packager.Load(context.Background(), "deadbeef")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *PackagerSuite) TestParseQRPayloadRejectsGarbage() {
	for name, raw := range map[string]string{
		"not json":   "LX3K9A0102AB",
		"missing id": `{"issuer":"Certify Academy"}`,
		"blank id":   `{"certificateId":"   "}`,
	} {
		s.Run(name, func() {
			_, err := metadata.ParseQRPayload(raw)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		})
	}
}

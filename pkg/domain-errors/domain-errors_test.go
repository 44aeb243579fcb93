package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "certificate not found"}
		s.Equal("certificate not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeMetadataUploadFailed}
		s.Equal("metadata_upload_failed", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.True(errors.Is(New(CodeIneligible, "score below threshold"), &Error{Code: CodeIneligible}))
	s.False(errors.Is(New(CodeIneligible, "x"), &Error{Code: CodeConflict}))
	s.False((&Error{Code: CodeNotFound}).Is(errors.New("not found")))

	inner := New(CodeNotFound, "job missing")
	outer := fmt.Errorf("load job: %w", inner)
	s.True(errors.Is(outer, &Error{Code: CodeNotFound}))
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code", func() {
		wrapped := Wrap(New(CodeNotFound, "certificate not found"), CodeInternal, "verify certificate")
		s.True(HasCode(wrapped, CodeNotFound))
		s.Equal("verify certificate", wrapped.Error())
	})

	s.Run("applies code to foreign errors and keeps the chain", func() {
		root := errors.New("connection refused")
		wrapped := Wrap(root, CodeMetadataUploadFailed, "upload metadata")
		s.True(HasCode(wrapped, CodeMetadataUploadFailed))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeUnsupportedMethod, CodeOf(New(CodeUnsupportedMethod, "verification code lookup")))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
	s.Equal(CodeInternal, CodeOf(nil))
	s.False(HasCode(nil, CodeNotFound))
}

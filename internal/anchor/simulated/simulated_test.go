package simulated_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/anchor"
	"certify/internal/anchor/simulated"
)

type LedgerSuite struct {
	suite.Suite
	ledger *simulated.Ledger
	req    anchor.MintRequest
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ledger = simulated.New(simulated.WithClock(func() time.Time {
		return time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)
	}))
	s.req = anchor.MintRequest{
		CertificateID:       "LX3K9A0102AB",
		RecipientAddress:    "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa",
		CourseID:            "c1",
		CourseName:          "Analytical Engines 101",
		CompletionEpoch:     1709294400,
		MetadataContentHash: "bafymeta",
		IntegrityHash:       "abc123",
	}
}

func (s *LedgerSuite) TestMintThenVerify() {
	ctx := context.Background()
	receipt, err := s.ledger.Mint(ctx, s.req)
	s.Require().NoError(err)
	s.Equal("1", receipt.OnChainID)
	s.Greater(receipt.BlockNumber, uint64(0))
	s.Len(receipt.TransactionID, 66)

	rec, err := s.ledger.Verify(ctx, receipt.OnChainID)
	s.Require().NoError(err)
	s.True(rec.IsValid)
	s.Equal("bafymeta", rec.MetadataContentHash)
	s.Equal(int64(1709294400), rec.CompletionEpoch)

	total, err := s.ledger.TotalIssued(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), total)

	owned, err := s.ledger.CertificatesOf(ctx, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	s.Require().NoError(err)
	s.Equal([]string{"1"}, owned)
}

func (s *LedgerSuite) TestRecordFor() {
	receipt, err := s.ledger.Mint(context.Background(), s.req)
	s.Require().NoError(err)
	rec := anchor.RecordFor(s.req, receipt, s.ledger.Network())
	s.True(rec.Confirmed())
	s.Equal("abc123", rec.ContentHash)
	s.Equal("31337", rec.NetworkID)
	s.True(s.ledger.Network().Simulated)
}

func (s *LedgerSuite) TestFaultInjection() {
	ctx := context.Background()

	s.ledger.SetConnected(false)
	_, err := s.ledger.Mint(ctx, s.req)
	s.ErrorIs(err, anchor.ErrNetwork)
	state, err := s.ledger.WalletState(ctx)
	s.Require().NoError(err)
	s.False(state.Connected)

	s.ledger.SetConnected(true)
	s.ledger.SetAuthorized(false)
	_, err = s.ledger.Mint(ctx, s.req)
	s.ErrorIs(err, anchor.ErrNotAuthorized)
	ok, err := s.ledger.CanMint(ctx, state.Address)
	s.Require().NoError(err)
	s.False(ok)

	s.ledger.SetAuthorized(true)
	s.ledger.FailMints(anchor.NewError(anchor.KindMintFailed, "mint", "execution reverted", nil))
	_, err = s.ledger.Mint(ctx, s.req)
	s.ErrorIs(err, anchor.ErrMintFailed)

	s.ledger.FailMints(nil)
	_, err = s.ledger.Mint(ctx, s.req)
	s.NoError(err)
}

func (s *LedgerSuite) TestInvalidInputIsPermanent() {
	s.req.MetadataContentHash = ""
	_, err := s.ledger.Mint(context.Background(), s.req)
	s.ErrorIs(err, anchor.ErrInvalidInput)
	s.False(anchor.IsRetryable(err))
}

func (s *LedgerSuite) TestVerifyUnknownAndRevoked() {
	ctx := context.Background()
	_, err := s.ledger.Verify(ctx, "999")
	s.ErrorIs(err, anchor.ErrNotFound)

	receipt, err := s.ledger.Mint(ctx, s.req)
	s.Require().NoError(err)
	s.True(s.ledger.Revoke(receipt.OnChainID))
	rec, err := s.ledger.Verify(ctx, receipt.OnChainID)
	s.Require().NoError(err)
	s.False(rec.IsValid)
}

func (s *LedgerSuite) TestStalledMintIsConfirmedOnceMined() {
	ctx := context.Background()
	s.ledger.StallMints(true)

	_, err := s.ledger.Mint(ctx, s.req)
	s.Require().ErrorIs(err, anchor.ErrUnconfirmed)
	txID := anchor.TxIDOf(err)
	s.Require().NotEmpty(txID)

	_, err = s.ledger.Confirm(ctx, txID)
	s.ErrorIs(err, anchor.ErrUnconfirmed)
	total, err := s.ledger.TotalIssued(ctx)
	s.Require().NoError(err)
	s.Zero(total)

	s.Equal(1, s.ledger.MinePending())
	receipt, err := s.ledger.Confirm(ctx, txID)
	s.Require().NoError(err)
	s.Equal("1", receipt.OnChainID)
	s.Equal(txID, receipt.TransactionID)
	s.Equal(1, s.ledger.Broadcasts())
}

func (s *LedgerSuite) TestDroppedMintIsUnknown() {
	ctx := context.Background()
	s.ledger.StallMints(true)
	_, err := s.ledger.Mint(ctx, s.req)
	txID := anchor.TxIDOf(err)

	s.ledger.DropPending()
	_, err = s.ledger.Confirm(ctx, txID)
	s.ErrorIs(err, anchor.ErrNotFound)

	_, err = s.ledger.Confirm(ctx, "0x"+strings.Repeat("ab", 32))
	s.ErrorIs(err, anchor.ErrNotFound)

	_, err = s.ledger.Confirm(ctx, "0xnever")
	s.ErrorIs(err, anchor.ErrInvalidInput)
}

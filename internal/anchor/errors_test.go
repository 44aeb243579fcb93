package anchor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind      Kind
		retryable bool
	}{
		{KindMintFailed, true},
		{KindInsufficientFunds, true},
		{KindNotAuthorized, true},
		{KindNetwork, true},
		{KindUnconfirmed, true},
		{KindInvalidInput, false},
		{KindNotFound, false},
		{KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.kind, "mint", "boom", nil))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestErrorMatchesKindTargets(t *testing.T) {
	err := NewError(KindNotFound, "verify", "no such token", errors.New("execution reverted"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestUnconfirmedCarriesTransaction(t *testing.T) {
	err := fmt.Errorf("worker: %w", NewUnconfirmed("wait_mined", "0xabc", "not mined in time", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrUnconfirmed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "0xabc", TxIDOf(err))
	assert.Empty(t, TxIDOf(NewError(KindNetwork, "mint", "rpc down", nil)))
	assert.Empty(t, TxIDOf(errors.New("plain")))
}

func TestMintRequestValidate(t *testing.T) {
	valid := MintRequest{
		CertificateID:       "LX3K9A0102AB",
		CourseID:            "c1",
		CompletionEpoch:     1709294400,
		MetadataContentHash: "bafy...",
	}
	assert.NoError(t, valid.Validate())

	noHash := valid
	noHash.MetadataContentHash = ""
	assert.ErrorIs(t, noHash.Validate(), ErrInvalidInput)

	noDate := valid
	noDate.CompletionEpoch = 0
	assert.ErrorIs(t, noDate.Validate(), ErrInvalidInput)
}

func TestNetworkInfoTxURL(t *testing.T) {
	n := NetworkInfo{ExplorerBaseURL: "https://sepolia.etherscan.io/"}
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", n.TxURL("0xabc"))
	assert.Empty(t, NetworkInfo{}.TxURL("0xabc"))
}

package main

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/etherfund-dashboard/internal/forms"
	"github.com/smartdevs17/etherfund-dashboard/internal/models"
)

func testTx() *types.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Gas: 21000, GasPrice: big.NewInt(1)})
}

func TestPromptApproval(t *testing.T) {
	var out bytes.Buffer
	approve := promptApproval(strings.NewReader("y\nno\n"), &out)

	ok, err := approve(context.Background(), testTx())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "nonce 3")

	ok, err = approve(context.Background(), testTx())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = approve(context.Background(), testTx())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrintView(t *testing.T) {
	ether := big.NewInt(1_000_000_000_000_000_000)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	view := &models.DashboardView{
		CampaignID: big.NewInt(4),
		Snapshot: models.CampaignSnapshot{
			Owner:  common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678"),
			Goal:   new(big.Int).Mul(big.NewInt(3), ether),
			Raised: ether,
		},
		ProgressRatio: 1.0 / 3,
		AuditLog: []models.AuditEntry{
			{Kind: models.AuditDonation, Counterparty: "0xabcdefabcdefabcdefabcdefabcdefabcdef9999", Amount: ether, OccurredAt: at, TxHash: "0xd1"},
		},
		DroppedUpdates: []models.DroppedUpdate{{TxHash: "0xu2", Reason: "NOT_FOUND"}},
	}

	var out bytes.Buffer
	printView(&out, view, "https://explorer.test/tx/")

	text := out.String()
	assert.Contains(t, text, "Campaign 4")
	assert.Contains(t, text, "1 / 3 ETH (33.33%)")
	assert.Contains(t, text, "0xabcd...9999")
	assert.Contains(t, text, "https://explorer.test/tx/0xd1")
	assert.Contains(t, text, "1 updates could not be loaded")
}

func TestPrintNotice(t *testing.T) {
	var out bytes.Buffer
	printNotice(&out, &forms.Result{Notice: forms.Notice{Status: forms.NoticeWarning, Title: "Signature declined", Detail: "USER_REJECTED"}})
	assert.Equal(t, "[warning] Signature declined\n  USER_REJECTED\n", out.String())

	out.Reset()
	printNotice(&out, nil)
	assert.Empty(t, out.String())
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"kycnet/internal/registry/metrics"
	"kycnet/internal/registry/service/mocks"
	"kycnet/internal/registry/store/memory"
	dErrors "kycnet/pkg/domain-errors"
	"kycnet/pkg/requestcontext"
)

// Audit emission is fail-closed: when the auditor cannot persist an event the
// whole operation must roll back, leaving no trace of the mutation.
func TestService_AuditFailureRollsBackMutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.New()
	auditor := mocks.NewMockAuditor(ctrl)
	svc, err := New(memory.NewTxRunner(store), adminID, auditor, nil, nil)
	require.NoError(t, err)

	ctx := requestcontext.WithCallerID(context.Background(), adminID)

	auditor.EXPECT().
		Emit(gomock.Any(), gomock.Any()).
		Return(errors.New("outbox write failed"))

	err = svc.AddBank(ctx, "Bank A", "bank-a", "REG-1")
	require.Error(t, err)

	// The bank never materialized and the counter never moved.
	_, err = svc.ViewBankDetails(ctx, "bank-a")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	total, err := store.TotalBanks(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

// The banks-total gauge reflects committed state only. A registration rolled
// back by an audit failure must leave the gauge where it was.
func TestService_BanksTotalGaugeUntouchedByRollback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := memory.New()
	auditor := mocks.NewMockAuditor(ctrl)
	m := metrics.New()
	svc, err := New(memory.NewTxRunner(store), adminID, auditor, nil, m)
	require.NoError(t, err)

	ctx := requestcontext.WithCallerID(context.Background(), adminID)

	auditor.EXPECT().
		Emit(gomock.Any(), gomock.Any()).
		Return(nil)
	require.NoError(t, svc.AddBank(ctx, "Bank A", "bank-a", "REG-1"))
	require.Equal(t, float64(1), testutil.ToFloat64(m.BanksTotal))

	auditor.EXPECT().
		Emit(gomock.Any(), gomock.Any()).
		Return(errors.New("outbox write failed"))
	require.Error(t, svc.AddBank(ctx, "Bank B", "bank-b", "REG-2"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BanksTotal))
}

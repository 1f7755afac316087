package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhase_Advances(t *testing.T) {
	assert.True(t, PhasePending.Advances(PhasePaymentReceived))
	assert.True(t, PhaseProvisioningVPS.Advances(PhaseWaitingForVPS))
	assert.False(t, PhaseWaitingForVPS.Advances(PhaseProvisioningVPS))
	assert.False(t, PhaseCompleted.Advances(PhaseSendingWelcome))
	assert.True(t, PhaseDeployingWOPR.Advances(PhaseFailed))
	assert.False(t, PhaseCompleted.Advances(PhaseFailed))
}

func TestJob_CanRetry(t *testing.T) {
	j := &Job{Phase: PhaseFailed, RetryCount: 2}
	assert.True(t, j.CanRetry())

	j.RetryCount = MaxRetries
	assert.False(t, j.CanRetry())

	j.Phase = PhasePending
	j.RetryCount = 0
	assert.False(t, j.CanRetry())
}

func TestJob_Validate_CompletedRequiresInstanceFields(t *testing.T) {
	j := &Job{Phase: PhaseCompleted}
	assert.Error(t, j.Validate())

	j.InstanceID = "i-1"
	j.InstanceIP = "1.2.3.4"
	j.WOPRSubdomain = "tenant.wopr.systems"
	assert.NoError(t, j.Validate())
}

func TestJob_Validate_RetryCountExceedsMax(t *testing.T) {
	j := &Job{Phase: PhasePending, RetryCount: MaxRetries + 1}
	assert.Error(t, j.Validate())
}

func TestPaymentFailure_GraceDaysAndSuspend(t *testing.T) {
	pf := PaymentFailure{FailureCount: 0}
	assert.Equal(t, 7, pf.GraceDays())
	assert.False(t, pf.ShouldSuspend())

	pf.FailureCount = 2
	assert.Equal(t, 3, pf.GraceDays())
	assert.False(t, pf.ShouldSuspend())

	pf.FailureCount = 3
	assert.Equal(t, 1, pf.GraceDays())
	assert.True(t, pf.ShouldSuspend())

	pf.FailureCount = 5
	assert.Equal(t, 0, pf.GraceDays())
}

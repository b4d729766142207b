package deposit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status DepositStatus
		want   bool
	}{
		{"accepted is terminal", DepositStatusAccepted, true},
		{"rejected is terminal", DepositStatusRejected, true},
		{"submitted is intermediate", DepositStatusSubmitted, false},
		{"failed is intermediate", DepositStatusFailed, false},
		{"absent is intermediate", DepositStatus(""), false},
		{"unknown is intermediate", DepositStatus("ARCHIVED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
			assert.Equal(t, !tt.want, tt.status.IsIntermediate())
		})
	}
}

func TestAggregatedDepositStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status AggregatedDepositStatus
		want   bool
	}{
		{"accepted is terminal", AggregatedAccepted, true},
		{"rejected is terminal", AggregatedRejected, true},
		{"not started is intermediate", AggregatedNotStarted, false},
		{"in progress is intermediate", AggregatedInProgress, false},
		{"failed is intermediate", AggregatedFailed, false},
		{"absent is intermediate", AggregatedDepositStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
			assert.Equal(t, !tt.want, tt.status.IsIntermediate())
		})
	}
}

func TestClassifier_Totality(t *testing.T) {
	for _, s := range AllDepositStatuses() {
		assert.NotEqual(t, s.IsTerminal(), s.IsIntermediate(), "status %s", s)
	}
	for _, s := range AllAggregatedDepositStatuses() {
		assert.NotEqual(t, s.IsTerminal(), s.IsIntermediate(), "status %s", s)
	}
}

func TestIsTerminalDepositStatus_Nil(t *testing.T) {
	assert.False(t, IsTerminalDepositStatus(nil))
	assert.False(t, IsTerminalAggregatedStatus(nil))

	accepted := DepositStatusAccepted
	assert.True(t, IsTerminalDepositStatus(&accepted))
	rejected := AggregatedRejected
	assert.True(t, IsTerminalAggregatedStatus(&rejected))
}

func TestEntityPredicates(t *testing.T) {
	assert.True(t, DepositIntermediate(nil))
	assert.False(t, DepositTerminal(nil))
	assert.True(t, SubmissionIntermediate(nil))
	assert.False(t, SubmissionTerminal(nil))

	d := &Deposit{Status: DepositStatusSubmitted}
	assert.True(t, DepositIntermediate(d))
	d.Status = DepositStatusAccepted
	assert.True(t, DepositTerminal(d))

	s := &Submission{}
	assert.True(t, SubmissionIntermediate(s))
	s.AggregatedStatus = AggregatedRejected
	assert.True(t, SubmissionTerminal(s))
}

func TestDepositStatus_Scan(t *testing.T) {
	var s DepositStatus

	require.NoError(t, s.Scan("accepted"))
	assert.Equal(t, DepositStatusAccepted, s)

	require.NoError(t, s.Scan([]byte("FAILED")))
	assert.Equal(t, DepositStatusFailed, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, DepositStatus(""), s)

	assert.Error(t, s.Scan(42))
	assert.Error(t, s.Scan("archived"))
}

func TestDepositStatus_Value(t *testing.T) {
	v, err := DepositStatusSubmitted.Value()
	require.NoError(t, err)
	assert.Equal(t, "SUBMITTED", v)

	v, err = DepositStatus("").Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseDepositStatus(t *testing.T) {
	s, err := ParseDepositStatus(" rejected ")
	require.NoError(t, err)
	assert.Equal(t, DepositStatusRejected, s)

	_, err = ParseDepositStatus("withdrawn")
	assert.Error(t, err)
}

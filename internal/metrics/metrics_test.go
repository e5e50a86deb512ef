package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordModelCall(t *testing.T) {
	before := testutil.CollectAndCount(ModelCallDuration)
	RecordModelCall("metrics-test", 150*time.Millisecond, nil)
	RecordModelCall("metrics-test", time.Second, errors.New("boom"))

	// one series per (provider, status)
	assert.Equal(t, before+2, testutil.CollectAndCount(ModelCallDuration))
}

func TestRecordSandboxRun(t *testing.T) {
	RecordSandboxRun(10*time.Millisecond, nil)
	RecordSandboxRun(10*time.Millisecond, errors.New("exit 1"))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(SandboxDuration), 2)
}

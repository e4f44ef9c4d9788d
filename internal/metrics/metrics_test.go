// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.CollectAndCount(DBQueryErrors)

	RecordDBQuery("insert", "events", 5*time.Millisecond, nil)
	RecordDBQuery("insert", "events", 5*time.Millisecond, errors.New("boom"))

	errCount := testutil.ToFloat64(DBQueryErrors.WithLabelValues("insert", "events"))
	if errCount != 1 {
		t.Errorf("expected 1 query error, got %v", errCount)
	}
	if after := testutil.CollectAndCount(DBQueryErrors); after <= before {
		t.Errorf("expected error counter series to be registered")
	}
}

func TestRecordPollCycle(t *testing.T) {
	RecordPollCycle("ok", 100*time.Millisecond)
	RecordPollCycle("error", time.Second)

	if got := testutil.ToFloat64(PollCycles.WithLabelValues("ok")); got < 1 {
		t.Errorf("expected ok cycle count >= 1, got %v", got)
	}
	if got := testutil.ToFloat64(PollCycles.WithLabelValues("error")); got < 1 {
		t.Errorf("expected error cycle count >= 1, got %v", got)
	}
}

func TestWarningsFlaggedLabels(t *testing.T) {
	WarningsFlagged.WithLabelValues("push to default branch").Inc()
	WarningsFlagged.WithLabelValues("push to default branch").Inc()

	if got := testutil.ToFloat64(WarningsFlagged.WithLabelValues("push to default branch")); got < 2 {
		t.Errorf("expected flagged count >= 2, got %v", got)
	}
}

func TestStreamClientGauge(t *testing.T) {
	StreamClients.Set(0)
	StreamClients.Inc()
	StreamClients.Inc()
	StreamClients.Dec()

	if got := testutil.ToFloat64(StreamClients); got != 1 {
		t.Errorf("expected 1 stream client, got %v", got)
	}
}

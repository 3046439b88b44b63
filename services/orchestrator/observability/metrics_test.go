// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitMetrics verifies that metrics register once and the helper
// methods record against the expected label sets.
func TestInitMetrics(t *testing.T) {
	m := InitMetrics()
	require.NotNil(t, m)
	require.Same(t, m, DefaultMetrics)

	m.RecordTurn("customer", TurnStatusOK, 0.5)
	m.RecordTurn("customer", TurnStatusDegraded, 1.5)
	m.RecordClassification("customer", false)
	m.RecordClassification("unknown", true)
	m.RecordToolCall("intent_classifier", 0.2, true)
	m.RecordToolCall("database_access", 0.1, false)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.TurnsTotal.WithLabelValues("customer", TurnStatusOK)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.TurnsTotal.WithLabelValues("customer", TurnStatusDegraded)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("unknown", "fallback")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("database_access", "error")))
}

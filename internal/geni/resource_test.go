// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package geni

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoadmURNRoundTrip(t *testing.T) {
	urn := RoadmURN("roadmA", "ep1", "l1")
	require.Equal(t, "roadmA:ep1:l1", urn)

	name, endpoint, label, err := ParseRoadmURN(urn)
	require.NoError(t, err)
	assert.Equal(t, "roadmA", name)
	assert.Equal(t, "ep1", endpoint)
	assert.Equal(t, "l1", label)
	assert.Equal(t, urn, RoadmURN(name, endpoint, label))
}

func TestParseRoadmURN(t *testing.T) {
	tests := []struct {
		name    string
		urn     string
		wantErr bool
	}{
		{name: "valid", urn: "roadmA:ep1:l1"},
		{name: "missing label", urn: "roadmA:ep1", wantErr: true},
		{name: "empty part", urn: "roadmA::l1", wantErr: true},
		{name: "label with colon", urn: "roadmA:ep1:l1:extra", wantErr: true},
		{name: "empty", urn: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParseRoadmURN(tt.urn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestXConnID(t *testing.T) {
	assert.Equal(t, "ep1:l1::ep2:l2", XConnID("ep1", "l1", "ep2", "l2"))
}

func TestResourceAvailable(t *testing.T) {
	assert.True(t, Resource{Allocation: AllocationFree}.Available())
	assert.False(t, Resource{Allocation: AllocationAllocated}.Available())
	assert.False(t, Resource{Allocation: AllocationAuditTrans}.Available())
}

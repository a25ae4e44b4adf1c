// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package geni holds the value objects the aggregate manager hands to the
// GENI delegate: flattened resource views, allocation and operational states,
// and the codecs for ROADM URNs and cross-connect identifiers.
package geni

import (
	"strings"
	"time"

	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

// Allocation is the GENI allocation state of a ROADM endpoint.
type Allocation string

const (
	// AllocationFree marks an endpoint eligible for reservation.
	AllocationFree Allocation = "FREE"
	// AllocationAllocated marks an endpoint claimed by a connection.
	AllocationAllocated Allocation = "ALLOCATED"
	// AllocationProvisioned marks an endpoint provisioned on the device.
	AllocationProvisioned Allocation = "PROVISIONED"
	// AllocationAuditTrans is the transient state of a freshly discovered
	// endpoint. The audit-terminated sweep promotes survivors to FREE.
	AllocationAuditTrans Allocation = "AUDIT_TRANS"
)

// Operational is the GENI operational state of an endpoint or connection.
type Operational string

const (
	OperationalReady     Operational = "READY"
	OperationalReadyBusy Operational = "READY_BUSY"
	OperationalFailed    Operational = "FAILED"
)

// Resource is the flattened per-endpoint view returned to the delegate.
type Resource struct {
	URN         string        `json:"urn"`
	SliceURN    string        `json:"slice_urn,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Type        string        `json:"type"`
	Allocation  Allocation    `json:"allocation"`
	Operational Operational   `json:"operational"`
	Details     *RoadmDetails `json:"details,omitempty"`
}

// Available reports whether the resource can still be reserved.
func (r Resource) Available() bool {
	return r.Allocation == AllocationFree
}

// RoadmDetails carries the requester identity and the peer endpoint URNs of a
// reserved cross-connect.
type RoadmDetails struct {
	ClientName      string `json:"client_name"`
	ClientID        string `json:"client_id"`
	ClientEmail     string `json:"client_email"`
	ConnectedInURN  string `json:"connected_in_urn,omitempty"`
	ConnectedOutURN string `json:"connected_out_urn,omitempty"`
}

// RoadmURN builds the URN of a labeled endpoint: "name:endpoint:label".
func RoadmURN(name, endpoint, label string) string {
	return name + ":" + endpoint + ":" + label
}

// ParseRoadmURN splits a ROADM URN into its device name, endpoint and label
// parts. URNs carry exactly two colons; labels with embedded colons are
// rejected rather than silently truncated.
func ParseRoadmURN(urn string) (name, endpoint, label string, err error) {
	parts := strings.Split(urn, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", onserr.Errorf("malformed roadm urn %q", urn)
	}
	return parts[0], parts[1], parts[2], nil
}

// XConnID derives the deterministic cross-connect identifier from its four
// defining coordinates. The double-colon separator is significant: OpenNaaS
// addresses the cross-connect by this exact string.
func XConnID(srcEndpoint, srcLabel, dstEndpoint, dstLabel string) string {
	return srcEndpoint + ":" + srcLabel + "::" + dstEndpoint + ":" + dstLabel
}

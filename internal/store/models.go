// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/ironcore-dev/opennaas-am/internal/geni"
)

// Resource is one device managed by OpenNaaS.
type Resource struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	AuditTime time.Time `db:"audit_time"`
}

// Endpoint is one labeled port on a device.
type Endpoint struct {
	ID          int64            `db:"id"`
	ResourceID  int64            `db:"resource_id"`
	Endpoint    string           `db:"endpoint"`
	Label       string           `db:"label"`
	Allocation  geni.Allocation  `db:"allocation"`
	Operational geni.Operational `db:"operational"`
	AuditTime   time.Time        `db:"audit_time"`
}

// Connection is one reserved or active cross-connect. Its ingress and egress
// each claim one endpoint exclusively for the lifetime of the row.
type Connection struct {
	Ingress     int64            `db:"ingress"`
	Egress      int64            `db:"egress"`
	XConnID     string           `db:"xconn_id"`
	SliceURN    string           `db:"slice_urn"`
	EndTime     time.Time        `db:"end_time"`
	Operational geni.Operational `db:"operational"`
	ClientName  string           `db:"client_name"`
	ClientID    string           `db:"client_id"`
	ClientEmail string           `db:"client_email"`
	AuditTime   time.Time        `db:"audit_time"`
}

// ClientInfo identifies the requesting experimenter.
type ClientInfo struct {
	Name  string
	ID    string
	Email string
}

// ConnectionValues carries the reservation attributes of a new connection.
type ConnectionValues struct {
	SliceURN string
	EndTime  time.Time
	Client   ClientInfo
}

// ResourceRow is the flattened endpoint view returned by GetResources. Slice
// and end time are set only for endpoints claimed by a connection.
type ResourceRow struct {
	Name        string           `db:"name"`
	Type        string           `db:"type"`
	EndpointID  int64            `db:"endpoint_id"`
	Endpoint    string           `db:"endpoint"`
	Label       string           `db:"label"`
	Allocation  geni.Allocation  `db:"allocation"`
	Operational geni.Operational `db:"operational"`
	SliceURN    *string          `db:"slice_urn"`
	EndTime     *time.Time       `db:"end_time"`
}

// EndpointView is one side of a connection as returned by GetSlice.
type EndpointView struct {
	ID           int64            `db:"id"`
	Endpoint     string           `db:"endpoint"`
	Label        string           `db:"label"`
	Allocation   geni.Allocation  `db:"allocation"`
	Operational  geni.Operational `db:"operational"`
	ResourceName string           `db:"resource_name"`
	ResourceType string           `db:"resource_type"`
}

// SliceEntry pairs the two endpoint views of a connection.
type SliceEntry struct {
	Ingress    EndpointView
	Egress     EndpointView
	Connection Connection
}

// AuditResource is one reconciler-observed device.
type AuditResource struct {
	Type string
	Name string
}

// AuditRoadm is one reconciler-observed labeled endpoint.
type AuditRoadm struct {
	Type     string
	Name     string
	Endpoint string
	Label    string
}

// AuditConnection is one reconciler-observed cross-connect.
type AuditConnection struct {
	Type        string
	Name        string
	InstanceID  string
	SrcEndpoint string
	SrcLabel    string
	DstEndpoint string
	DstLabel    string
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/ironcore-dev/opennaas-am/internal/geni"
	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

// Session is one transaction on the store. Sessions are created by
// [Store.WithSession] and are not safe for concurrent use.
type Session struct {
	ctx context.Context
	tx  *sqlx.Tx
	now func() time.Time
	log logr.Logger
}

// CheckToReserve resolves the named resource and both endpoints of a
// requested cross-connect and verifies that both endpoints are FREE. It
// returns the endpoint row ids together with the deterministic cross-connect
// identifier the upstream controller will use.
func (s *Session) CheckToReserve(name, rtype, inEndpoint, inLabel, outEndpoint, outLabel string) (ingress, egress int64, xconnID string, err error) {
	var resource Resource
	err = s.tx.GetContext(s.ctx, &resource,
		`SELECT id, name, type, audit_time FROM resources WHERE name = ? AND type = ?`, name, rtype)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, "", onserr.NotFoundf("resource %s/%s", rtype, name)
	}
	if err != nil {
		return 0, 0, "", onserr.Wrap(err, "failed to resolve resource")
	}

	in, err := s.freeEndpoint(resource.ID, inEndpoint, inLabel)
	if err != nil {
		return 0, 0, "", err
	}
	out, err := s.freeEndpoint(resource.ID, outEndpoint, outLabel)
	if err != nil {
		return 0, 0, "", err
	}
	return in.ID, out.ID, geni.XConnID(inEndpoint, inLabel, outEndpoint, outLabel), nil
}

func (s *Session) freeEndpoint(resourceID int64, endpoint, label string) (*Endpoint, error) {
	var ep Endpoint
	err := s.tx.GetContext(s.ctx, &ep,
		`SELECT id, resource_id, endpoint, label, allocation, operational, audit_time
		 FROM endpoints WHERE resource_id = ? AND endpoint = ? AND label = ?`,
		resourceID, endpoint, label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onserr.NotFoundf("endpoint %s:%s on resource %d", endpoint, label, resourceID)
	}
	if err != nil {
		return nil, onserr.Wrap(err, "failed to resolve endpoint")
	}
	if ep.Allocation != geni.AllocationFree {
		return nil, onserr.NotAvailablef("endpoint %s:%s is %s", endpoint, label, ep.Allocation)
	}
	return &ep, nil
}

// MakeConnection inserts the connection row and claims both endpoints.
func (s *Session) MakeConnection(ingress, egress int64, xconnID string, values ConnectionValues) error {
	_, err := s.tx.ExecContext(s.ctx,
		`INSERT INTO connections (ingress, egress, xconn_id, slice_urn, end_time, operational,
		                          client_name, client_id, client_email, audit_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ingress, egress, xconnID, values.SliceURN, values.EndTime.UTC(), geni.OperationalReady,
		values.Client.Name, values.Client.ID, values.Client.Email, s.now())
	if err != nil {
		return onserr.Wrap(err, "failed to insert connection")
	}
	return s.setAllocation(geni.AllocationAllocated, ingress, egress)
}

func (s *Session) setAllocation(allocation geni.Allocation, ids ...int64) error {
	query, args, err := sqlx.In(`UPDATE endpoints SET allocation = ? WHERE id IN (?)`, allocation, ids)
	if err != nil {
		return onserr.Wrap(err, "failed to build allocation update")
	}
	if _, err := s.tx.ExecContext(s.ctx, query, args...); err != nil {
		return onserr.Wrap(err, "failed to update endpoint allocation")
	}
	return nil
}

// GetResources returns every endpoint joined with its resource and, when
// claimed, its connection.
func (s *Session) GetResources() ([]ResourceRow, error) {
	var rows []ResourceRow
	err := s.tx.SelectContext(s.ctx, &rows,
		`SELECT r.name AS name, r.type AS type, e.id AS endpoint_id, e.endpoint AS endpoint,
		        e.label AS label, e.allocation AS allocation, e.operational AS operational,
		        c.slice_urn AS slice_urn, c.end_time AS end_time
		 FROM endpoints e
		 JOIN resources r ON r.id = e.resource_id
		 LEFT JOIN connections c ON c.ingress = e.id OR c.egress = e.id
		 ORDER BY r.name, e.endpoint, e.label`)
	if err != nil {
		return nil, onserr.Wrap(err, "failed to list resources")
	}
	return rows, nil
}

// GetSlice returns the connections of a slice with both endpoint views.
func (s *Session) GetSlice(sliceURN string) ([]SliceEntry, error) {
	var conns []Connection
	err := s.tx.SelectContext(s.ctx, &conns,
		`SELECT ingress, egress, xconn_id, slice_urn, end_time, operational,
		        client_name, client_id, client_email, audit_time
		 FROM connections WHERE slice_urn = ? ORDER BY ingress`, sliceURN)
	if err != nil {
		return nil, onserr.Wrap(err, "failed to list slice connections")
	}
	return s.resolveEntries(conns)
}

func (s *Session) resolveEntries(conns []Connection) ([]SliceEntry, error) {
	entries := make([]SliceEntry, 0, len(conns))
	for _, conn := range conns {
		in, err := s.endpointView(conn.Ingress)
		if err != nil {
			return nil, err
		}
		out, err := s.endpointView(conn.Egress)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SliceEntry{Ingress: *in, Egress: *out, Connection: conn})
	}
	return entries, nil
}

func (s *Session) endpointView(id int64) (*EndpointView, error) {
	var view EndpointView
	err := s.tx.GetContext(s.ctx, &view,
		`SELECT e.id AS id, e.endpoint AS endpoint, e.label AS label,
		        e.allocation AS allocation, e.operational AS operational,
		        r.name AS resource_name, r.type AS resource_type
		 FROM endpoints e JOIN resources r ON r.id = e.resource_id
		 WHERE e.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onserr.NotFoundf("endpoint %d", id)
	}
	if err != nil {
		return nil, onserr.Wrap(err, "failed to resolve endpoint view")
	}
	return &view, nil
}

// RenewSlice moves the end time of every connection in the slice and
// refreshes the client identity.
func (s *Session) RenewSlice(sliceURN string, endTime time.Time, client ClientInfo) error {
	res, err := s.tx.ExecContext(s.ctx,
		`UPDATE connections SET end_time = ?, client_name = ?, client_id = ?, client_email = ?
		 WHERE slice_urn = ?`,
		endTime.UTC(), client.Name, client.ID, client.Email, sliceURN)
	if err != nil {
		return onserr.Wrap(err, "failed to renew slice")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onserr.NotFoundf("slice %s", sliceURN)
	}
	return nil
}

// OperConnection moves the operational state of a connection and of both of
// its endpoints.
func (s *Session) OperConnection(ingress, egress int64, operational geni.Operational) error {
	res, err := s.tx.ExecContext(s.ctx,
		`UPDATE connections SET operational = ? WHERE ingress = ? AND egress = ?`,
		operational, ingress, egress)
	if err != nil {
		return onserr.Wrap(err, "failed to update connection state")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onserr.NotFoundf("connection %d->%d", ingress, egress)
	}
	query, args, err := sqlx.In(`UPDATE endpoints SET operational = ? WHERE id IN (?)`,
		operational, []int64{ingress, egress})
	if err != nil {
		return onserr.Wrap(err, "failed to build endpoint state update")
	}
	if _, err := s.tx.ExecContext(s.ctx, query, args...); err != nil {
		return onserr.Wrap(err, "failed to update endpoint state")
	}
	return nil
}

// DestroyConnection deletes the connection row and releases both endpoints.
func (s *Session) DestroyConnection(ingress, egress int64) error {
	res, err := s.tx.ExecContext(s.ctx,
		`DELETE FROM connections WHERE ingress = ? AND egress = ?`, ingress, egress)
	if err != nil {
		return onserr.Wrap(err, "failed to delete connection")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return onserr.NotFoundf("connection %d->%d", ingress, egress)
	}
	return s.releaseEndpoints(ingress, egress)
}

func (s *Session) releaseEndpoints(ids ...int64) error {
	query, args, err := sqlx.In(
		`UPDATE endpoints SET allocation = ?, operational = ? WHERE id IN (?)`,
		geni.AllocationFree, geni.OperationalReady, ids)
	if err != nil {
		return onserr.Wrap(err, "failed to build endpoint release")
	}
	if _, err := s.tx.ExecContext(s.ctx, query, args...); err != nil {
		return onserr.Wrap(err, "failed to release endpoints")
	}
	return nil
}

// AuditResources upserts a batch of observed devices, reseeding audit_time on
// rows that already exist.
func (s *Session) AuditResources(batch []AuditResource) error {
	now := s.now()
	for _, r := range batch {
		_, err := s.tx.ExecContext(s.ctx,
			`INSERT INTO resources (name, type, audit_time) VALUES (?, ?, ?)
			 ON CONFLICT (name, type) DO UPDATE SET audit_time = excluded.audit_time`,
			r.Name, r.Type, now)
		if err != nil {
			return onserr.Wrapf(err, "failed to audit resource %s/%s", r.Type, r.Name)
		}
	}
	return nil
}

// AuditRoadms upserts a batch of observed endpoints. New endpoints enter as
// AUDIT_TRANS; the audit-terminated sweep promotes survivors to FREE.
func (s *Session) AuditRoadms(batch []AuditRoadm) error {
	now := s.now()
	for _, r := range batch {
		_, err := s.tx.ExecContext(s.ctx,
			`INSERT INTO endpoints (resource_id, endpoint, label, allocation, operational, audit_time)
			 SELECT r.id, ?, ?, ?, ?, ? FROM resources r WHERE r.name = ? AND r.type = ?
			 ON CONFLICT (endpoint, label, resource_id) DO UPDATE SET audit_time = excluded.audit_time`,
			r.Endpoint, r.Label, geni.AllocationAuditTrans, geni.OperationalReady, now, r.Name, r.Type)
		if err != nil {
			return onserr.Wrapf(err, "failed to audit endpoint %s:%s on %s/%s", r.Endpoint, r.Label, r.Type, r.Name)
		}
	}
	return nil
}

// AuditConnections upserts a batch of device-reported cross-connects. Observed
// connections reseed audit_time; unknown ones enter with slice "unknown" and
// flip their endpoints from AUDIT_TRANS to ALLOCATED. Cross-connects naming
// endpoints the store does not know yet are skipped; a later cycle picks them
// up once the endpoint audit has landed. Cross-connects pairing an endpoint
// that another connection already claims are skipped too: failing the batch
// would wedge the reconciler on the same snapshot every tick.
func (s *Session) AuditConnections(batch []AuditConnection) error {
	now := s.now()
	for _, c := range batch {
		ingress, err := s.auditEndpointID(c.Type, c.Name, c.SrcEndpoint, c.SrcLabel)
		if err != nil {
			return err
		}
		egress, err := s.auditEndpointID(c.Type, c.Name, c.DstEndpoint, c.DstLabel)
		if err != nil {
			return err
		}
		if ingress == 0 || egress == 0 {
			s.log.Info("skipping cross-connect audit, endpoints unknown",
				"resource", c.Name, "instanceID", c.InstanceID)
			continue
		}

		res, err := s.tx.ExecContext(s.ctx,
			`UPDATE connections SET audit_time = ? WHERE ingress = ? AND egress = ?`,
			now, ingress, egress)
		if err != nil {
			return onserr.Wrapf(err, "failed to audit cross-connect %s", c.InstanceID)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			continue
		}

		var claimed int
		err = s.tx.GetContext(s.ctx, &claimed,
			`SELECT COUNT(*) FROM connections WHERE ingress IN (?, ?) OR egress IN (?, ?)`,
			ingress, egress, ingress, egress)
		if err != nil {
			return onserr.Wrapf(err, "failed to audit cross-connect %s", c.InstanceID)
		}
		if claimed > 0 {
			s.log.Info("skipping cross-connect audit, endpoint claimed by another connection",
				"resource", c.Name, "instanceID", c.InstanceID)
			continue
		}

		_, err = s.tx.ExecContext(s.ctx,
			`INSERT INTO connections (ingress, egress, xconn_id, slice_urn, end_time, operational, audit_time)
			 VALUES (?, ?, ?, 'unknown', ?, ?, ?)`,
			ingress, egress, c.InstanceID, now.Add(auditHorizon), geni.OperationalReadyBusy, now)
		if err != nil {
			return onserr.Wrapf(err, "failed to audit cross-connect %s", c.InstanceID)
		}
		_, err = s.tx.ExecContext(s.ctx,
			`UPDATE endpoints SET allocation = ? WHERE id IN (?, ?) AND allocation = ?`,
			geni.AllocationAllocated, ingress, egress, geni.AllocationAuditTrans)
		if err != nil {
			return onserr.Wrapf(err, "failed to claim endpoints of cross-connect %s", c.InstanceID)
		}
	}
	return nil
}

// auditEndpointID resolves an endpoint row id, returning 0 when absent.
func (s *Session) auditEndpointID(rtype, name, endpoint, label string) (int64, error) {
	var id int64
	err := s.tx.GetContext(s.ctx, &id,
		`SELECT e.id FROM endpoints e JOIN resources r ON r.id = e.resource_id
		 WHERE r.name = ? AND r.type = ? AND e.endpoint = ? AND e.label = ?`,
		name, rtype, endpoint, label)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, onserr.Wrap(err, "failed to resolve audited endpoint")
	}
	return id, nil
}

// AuditTerminated reaps every row not observed within the audit horizon and
// promotes surviving AUDIT_TRANS endpoints to FREE. Endpoints claimed by a
// reaped connection are released so that no claim outlives its connection.
func (s *Session) AuditTerminated() error {
	cutoff := s.now().Add(-auditHorizon)

	var stale []Connection
	err := s.tx.SelectContext(s.ctx, &stale,
		`SELECT ingress, egress, xconn_id, slice_urn, end_time, operational,
		        client_name, client_id, client_email, audit_time
		 FROM connections WHERE audit_time < ?`, cutoff)
	if err != nil {
		return onserr.Wrap(err, "failed to list stale connections")
	}
	for _, conn := range stale {
		if err := s.DestroyConnection(conn.Ingress, conn.Egress); err != nil {
			return err
		}
	}

	if _, err := s.tx.ExecContext(s.ctx, `DELETE FROM endpoints WHERE audit_time < ?`, cutoff); err != nil {
		return onserr.Wrap(err, "failed to reap stale endpoints")
	}
	if _, err := s.tx.ExecContext(s.ctx, `DELETE FROM resources WHERE audit_time < ?`, cutoff); err != nil {
		return onserr.Wrap(err, "failed to reap stale resources")
	}
	if _, err := s.tx.ExecContext(s.ctx,
		`UPDATE endpoints SET allocation = ? WHERE allocation = ?`,
		geni.AllocationFree, geni.AllocationAuditTrans); err != nil {
		return onserr.Wrap(err, "failed to promote audited endpoints")
	}
	return nil
}

// ExpiredConnections returns every connection whose reservation end time lies
// before asOf, with both endpoint views resolved. Connections expire
// individually: slice-mates with a later end time are not returned.
func (s *Session) ExpiredConnections(asOf time.Time) ([]SliceEntry, error) {
	var conns []Connection
	err := s.tx.SelectContext(s.ctx, &conns,
		`SELECT ingress, egress, xconn_id, slice_urn, end_time, operational,
		        client_name, client_id, client_email, audit_time
		 FROM connections WHERE end_time < ? ORDER BY ingress`, asOf.UTC())
	if err != nil {
		return nil, onserr.Wrap(err, "failed to list expired connections")
	}
	return s.resolveEntries(conns)
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package manager is the public façade the GENI delegate calls. It composes
// store transactions with cross-connect activations on the OpenNaaS
// controller and returns flattened resource views. Every entry point runs in
// its own store session; a failure anywhere rolls the whole operation back.
package manager

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/ironcore-dev/opennaas-am/internal/geni"
	"github.com/ironcore-dev/opennaas-am/internal/metrics"
	"github.com/ironcore-dev/opennaas-am/internal/onserr"
	"github.com/ironcore-dev/opennaas-am/internal/opennaas"
	"github.com/ironcore-dev/opennaas-am/internal/store"
)

// ReserveRequest names one cross-connect to reserve on one device.
type ReserveRequest struct {
	Name        string
	Type        string
	InEndpoint  string
	InLabel     string
	OutEndpoint string
	OutLabel    string
}

// Manager coordinates the store and the controller client.
type Manager struct {
	store          *store.Store
	client         opennaas.Client
	reservationTTL time.Duration
	log            logr.Logger
	now            func() time.Time
}

// New creates a Manager. reservationTTL is the default reservation lifetime
// applied when a reservation carries no explicit end time.
func New(st *store.Store, client opennaas.Client, reservationTTL time.Duration, log logr.Logger) *Manager {
	return &Manager{
		store:          st,
		client:         client,
		reservationTTL: reservationTTL,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GetResources returns one flattened view per endpoint in the inventory.
func (m *Manager) GetResources(ctx context.Context) ([]geni.Resource, error) {
	var result []geni.Resource
	err := m.store.WithSession(ctx, func(s *store.Session) error {
		rows, err := s.GetResources()
		if err != nil {
			return err
		}
		result = make([]geni.Resource, 0, len(rows))
		for _, row := range rows {
			res := geni.Resource{
				URN:         geni.RoadmURN(row.Name, row.Endpoint, row.Label),
				Type:        row.Type,
				Allocation:  row.Allocation,
				Operational: row.Operational,
				EndTime:     row.EndTime,
			}
			if row.SliceURN != nil {
				res.SliceURN = *row.SliceURN
			}
			result = append(result, res)
		}
		return nil
	})
	return result, err
}

// ReserveResources reserves the requested cross-connects for a slice. The
// effective end time is the given one, or now plus the default reservation
// lifetime when absent; end times in the past are rejected. All requests
// commit as one transaction: partial reservations are not observable.
func (m *Manager) ReserveResources(ctx context.Context, requests []ReserveRequest, sliceURN string, endTime *time.Time, client store.ClientInfo) ([]geni.Resource, error) {
	effective := m.now().Add(m.reservationTTL)
	if endTime != nil {
		effective = endTime.UTC()
	}
	if !effective.After(m.now()) {
		metrics.Reservations.WithLabelValues("rejected").Inc()
		return nil, onserr.Errorf("end time %s is in the past", effective)
	}

	var manifest []geni.Resource
	err := m.store.WithSession(ctx, func(s *store.Session) error {
		for _, req := range requests {
			ingress, egress, xconnID, err := s.CheckToReserve(
				req.Name, req.Type, req.InEndpoint, req.InLabel, req.OutEndpoint, req.OutLabel)
			if err != nil {
				return err
			}
			err = s.MakeConnection(ingress, egress, xconnID, store.ConnectionValues{
				SliceURN: sliceURN,
				EndTime:  effective,
				Client:   client,
			})
			if err != nil {
				return err
			}
			manifest = append(manifest,
				m.reservedView(req.Name, req.InEndpoint, req.InLabel, req.Type, sliceURN, effective, client),
				m.reservedView(req.Name, req.OutEndpoint, req.OutLabel, req.Type, sliceURN, effective, client))
		}
		return nil
	})
	if err != nil {
		metrics.Reservations.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.Reservations.WithLabelValues("reserved").Inc()
	return manifest, nil
}

func (m *Manager) reservedView(name, endpoint, label, rtype, sliceURN string, endTime time.Time, client store.ClientInfo) geni.Resource {
	return geni.Resource{
		URN:         geni.RoadmURN(name, endpoint, label),
		SliceURN:    sliceURN,
		EndTime:     &endTime,
		Type:        rtype,
		Allocation:  geni.AllocationAllocated,
		Operational: geni.OperationalReady,
		Details: &geni.RoadmDetails{
			ClientName:  client.Name,
			ClientID:    client.ID,
			ClientEmail: client.Email,
		},
	}
}

// GetSliceResources returns the detailed manifest of one slice: two entries
// per connection, cross-linked through the peer endpoint URNs.
func (m *Manager) GetSliceResources(ctx context.Context, sliceURN string) ([]geni.Resource, error) {
	var manifest []geni.Resource
	err := m.store.WithSession(ctx, func(s *store.Session) error {
		entries, err := s.GetSlice(sliceURN)
		if err != nil {
			return err
		}
		manifest = sliceManifest(entries)
		return nil
	})
	return manifest, err
}

func sliceManifest(entries []store.SliceEntry) []geni.Resource {
	manifest := make([]geni.Resource, 0, 2*len(entries))
	for _, entry := range entries {
		inURN := geni.RoadmURN(entry.Ingress.ResourceName, entry.Ingress.Endpoint, entry.Ingress.Label)
		outURN := geni.RoadmURN(entry.Egress.ResourceName, entry.Egress.Endpoint, entry.Egress.Label)
		conn := entry.Connection
		endTime := conn.EndTime
		details := geni.RoadmDetails{
			ClientName:  conn.ClientName,
			ClientID:    conn.ClientID,
			ClientEmail: conn.ClientEmail,
		}

		in := geni.Resource{
			URN:         inURN,
			SliceURN:    conn.SliceURN,
			EndTime:     &endTime,
			Type:        entry.Ingress.ResourceType,
			Allocation:  entry.Ingress.Allocation,
			Operational: entry.Ingress.Operational,
		}
		inDetails := details
		inDetails.ConnectedOutURN = outURN
		in.Details = &inDetails

		out := geni.Resource{
			URN:         outURN,
			SliceURN:    conn.SliceURN,
			EndTime:     &endTime,
			Type:        entry.Egress.ResourceType,
			Allocation:  entry.Egress.Allocation,
			Operational: entry.Egress.Operational,
		}
		outDetails := details
		outDetails.ConnectedInURN = inURN
		out.Details = &outDetails

		manifest = append(manifest, in, out)
	}
	return manifest
}

// RenewSlices is the strict renew. The reference delegate never wired it;
// callers use ForceRenewSlices.
func (m *Manager) RenewSlices(context.Context, []string, time.Time, store.ClientInfo) ([]geni.Resource, error) {
	return nil, onserr.New("strict renew is not supported, use force renew")
}

// ForceRenewSlices renews every given slice best-effort: per-slice failures
// are logged and skipped, the remaining slices are still renewed.
func (m *Manager) ForceRenewSlices(ctx context.Context, slices []string, endTime time.Time, client store.ClientInfo) ([]geni.Resource, error) {
	if !endTime.After(m.now()) {
		return nil, onserr.Errorf("end time %s is in the past", endTime)
	}
	var manifest []geni.Resource
	for _, sliceURN := range slices {
		err := m.store.WithSession(ctx, func(s *store.Session) error {
			if err := s.RenewSlice(sliceURN, endTime, client); err != nil {
				return err
			}
			entries, err := s.GetSlice(sliceURN)
			if err != nil {
				return err
			}
			manifest = append(manifest, sliceManifest(entries)...)
			return nil
		})
		if err != nil {
			m.log.Error(err, "skipping slice renewal", "sliceURN", sliceURN)
		}
	}
	return manifest, nil
}

// StartSlices activates every connection of the given slices on the devices.
func (m *Manager) StartSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.startConn}, false)
}

// StopSlices deactivates every connection of the given slices, keeping the
// reservations.
func (m *Manager) StopSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.stopConn}, false)
}

// DeleteSlices releases every connection of the given slices locally and on
// the devices.
func (m *Manager) DeleteSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.releaseConn, releases: true}, false)
}

// ForceStartSlices is the best-effort variant of StartSlices.
func (m *Manager) ForceStartSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.startConn}, true)
}

// ForceStopSlices is the best-effort variant of StopSlices.
func (m *Manager) ForceStopSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.stopConn}, true)
}

// ForceDeleteSlices is the best-effort variant of DeleteSlices.
func (m *Manager) ForceDeleteSlices(ctx context.Context, slices []string) ([]geni.Resource, error) {
	return m.applySlices(ctx, slices, sliceAction{apply: m.releaseConn, releases: true}, true)
}

// sliceAction is one per-connection mutation. releases marks actions that
// remove the connection row, whose manifest reports the freed endpoints.
type sliceAction struct {
	apply    func(ctx context.Context, s *store.Session, entry store.SliceEntry) error
	releases bool
}

// applySlices resolves the connections of every slice, applies the action per
// connection and then executes the device queue exactly once per distinct
// device touched. Each slice runs in its own session.
func (m *Manager) applySlices(ctx context.Context, slices []string, action sliceAction, force bool) ([]geni.Resource, error) {
	var manifest []geni.Resource
	for _, sliceURN := range slices {
		err := m.store.WithSession(ctx, func(s *store.Session) error {
			entries, err := s.GetSlice(sliceURN)
			if err != nil {
				return err
			}
			devices := make(map[opennaas.Resource]struct{})
			for _, entry := range entries {
				if entry.Ingress.ResourceName != entry.Egress.ResourceName ||
					entry.Ingress.ResourceType != entry.Egress.ResourceType {
					return onserr.Errorf("connection %s spans devices %s and %s",
						entry.Connection.XConnID, entry.Ingress.ResourceName, entry.Egress.ResourceName)
				}
				if err := action.apply(ctx, s, entry); err != nil {
					return err
				}
				devices[opennaas.Resource{Type: entry.Ingress.ResourceType, Name: entry.Ingress.ResourceName}] = struct{}{}
			}
			for dev := range devices {
				if err := m.client.ExecuteQueue(ctx, dev.Type, dev.Name); err != nil {
					return err
				}
			}
			if action.releases {
				manifest = append(manifest, releasedManifest(entries)...)
				return nil
			}
			// re-read so the manifest reflects the new states
			entries, err = s.GetSlice(sliceURN)
			if err != nil {
				return err
			}
			manifest = append(manifest, sliceManifest(entries)...)
			return nil
		})
		if err != nil {
			if !force {
				return nil, err
			}
			m.log.Error(err, "skipping slice", "sliceURN", sliceURN)
		}
	}
	return manifest, nil
}

// releasedManifest reports the endpoints freed by a releasing action.
func releasedManifest(entries []store.SliceEntry) []geni.Resource {
	manifest := make([]geni.Resource, 0, 2*len(entries))
	for _, entry := range entries {
		for _, view := range []store.EndpointView{entry.Ingress, entry.Egress} {
			manifest = append(manifest, geni.Resource{
				URN:         geni.RoadmURN(view.ResourceName, view.Endpoint, view.Label),
				Type:        view.ResourceType,
				Allocation:  geni.AllocationFree,
				Operational: geni.OperationalReady,
			})
		}
	}
	return manifest
}

// startConn flips the pair to READY_BUSY and stages the cross-connect
// creation on the device.
func (m *Manager) startConn(ctx context.Context, s *store.Session, entry store.SliceEntry) error {
	if err := s.OperConnection(entry.Ingress.ID, entry.Egress.ID, geni.OperationalReadyBusy); err != nil {
		return err
	}
	return m.client.CreateXConnection(ctx, entry.Ingress.ResourceType, entry.Ingress.ResourceName, opennaas.XConnection{
		InstanceID:  entry.Connection.XConnID,
		SrcEndpoint: entry.Ingress.Endpoint,
		SrcLabel:    entry.Ingress.Label,
		DstEndpoint: entry.Egress.Endpoint,
		DstLabel:    entry.Egress.Label,
	})
}

// stopConn flips the pair back to READY and stages the cross-connect removal.
func (m *Manager) stopConn(ctx context.Context, s *store.Session, entry store.SliceEntry) error {
	if err := s.OperConnection(entry.Ingress.ID, entry.Egress.ID, geni.OperationalReady); err != nil {
		return err
	}
	return m.client.DeleteXConnection(ctx, entry.Ingress.ResourceType, entry.Ingress.ResourceName, entry.Connection.XConnID)
}

// releaseConn removes the connection row, frees both endpoints and stages the
// cross-connect removal.
func (m *Manager) releaseConn(ctx context.Context, s *store.Session, entry store.SliceEntry) error {
	if err := s.DestroyConnection(entry.Ingress.ID, entry.Egress.ID); err != nil {
		return err
	}
	return m.client.DeleteXConnection(ctx, entry.Ingress.ResourceType, entry.Ingress.ResourceName, entry.Connection.XConnID)
}

// CheckExpiration reaps every connection whose reservation end time passed:
// the row is deleted, its endpoints are freed and the device cross-connect is
// removed, with the queue executed once per touched device. Connections expire
// individually, so a slice-mate with a later end time survives the sweep.
// Per-device failures are logged and skipped so one stuck device cannot block
// the sweep.
func (m *Manager) CheckExpiration(ctx context.Context) error {
	var expired []store.SliceEntry
	err := m.store.WithSession(ctx, func(s *store.Session) error {
		var err error
		expired, err = s.ExpiredConnections(m.now())
		return err
	})
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}
	m.log.Info("reaping expired connections", "count", len(expired))

	byDevice := make(map[opennaas.Resource][]store.SliceEntry)
	for _, entry := range expired {
		dev := opennaas.Resource{Type: entry.Ingress.ResourceType, Name: entry.Ingress.ResourceName}
		byDevice[dev] = append(byDevice[dev], entry)
	}
	for dev, entries := range byDevice {
		err := m.store.WithSession(ctx, func(s *store.Session) error {
			for _, entry := range entries {
				if err := m.releaseConn(ctx, s, entry); err != nil {
					return err
				}
			}
			return m.client.ExecuteQueue(ctx, dev.Type, dev.Name)
		})
		if err != nil {
			m.log.Error(err, "skipping expiration reap", "resource", dev.Name, "type", dev.Type)
			continue
		}
		metrics.ExpiredConnections.Add(float64(len(entries)))
	}
	return nil
}

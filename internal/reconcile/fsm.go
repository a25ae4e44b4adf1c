// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile mirrors the upstream ROADM inventory into the store. A
// three-state machine (get, update, clean) advances one step per external
// tick: get pulls the full inventory into drain buffers, update writes it out
// in fixed-size audit batches, clean reaps everything the cycle did not
// observe. Bounding each tick to one batch keeps the worker responsive no
// matter how large the inventory grows.
package reconcile

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/ironcore-dev/opennaas-am/internal/metrics"
	"github.com/ironcore-dev/opennaas-am/internal/opennaas"
	"github.com/ironcore-dev/opennaas-am/internal/store"
)

// State is one of the three reconciler states.
type State string

const (
	// StateGet pulls the inventory from the controller.
	StateGet State = "get"
	// StateUpdate drains the inventory buffers into the store.
	StateUpdate State = "update"
	// StateClean reaps rows the last cycle did not observe.
	StateClean State = "clean"
)

var stateValue = map[State]float64{StateGet: 0, StateUpdate: 1, StateClean: 2}

// FSM is the reconciliation state machine. It is driven from a single worker
// goroutine; nothing else touches its buffers.
type FSM struct {
	client opennaas.Client
	store  *store.Store
	step   int
	log    logr.Logger

	state     State
	resources []store.AuditResource
	roadms    []store.AuditRoadm
	xconns    []store.AuditConnection
}

// New creates an FSM writing at most step items per update tick.
func New(client opennaas.Client, st *store.Store, step int, log logr.Logger) *FSM {
	return &FSM{
		client: client,
		store:  st,
		step:   step,
		log:    log,
		state:  StateGet,
	}
}

// State returns the current state.
func (f *FSM) State() State {
	return f.state
}

// Step advances the machine by one tick. Errors leave the state unchanged so
// the next tick retries; the caller only needs to log them.
func (f *FSM) Step(ctx context.Context) error {
	defer func() { metrics.ReconcilerState.Set(stateValue[f.state]) }()
	switch f.state {
	case StateUpdate:
		return f.update(ctx)
	case StateClean:
		return f.clean(ctx)
	default:
		return f.get(ctx)
	}
}

// get pulls the complete inventory. The buffers are replaced only when every
// fetch succeeded; a partial snapshot must never feed a destructive sweep.
func (f *FSM) get(ctx context.Context) error {
	devices, err := f.client.Resources(ctx)
	if err != nil {
		return err
	}

	resources := make([]store.AuditResource, 0, len(devices))
	var roadms []store.AuditRoadm
	var xconns []store.AuditConnection
	for _, dev := range devices {
		resources = append(resources, store.AuditResource{Type: dev.Type, Name: dev.Name})

		endpoints, err := f.client.Endpoints(ctx, dev.Type, dev.Name)
		if err != nil {
			return err
		}
		for _, ep := range endpoints {
			labels, err := f.client.Labels(ctx, dev.Type, dev.Name, ep)
			if err != nil {
				return err
			}
			for _, label := range labels {
				roadms = append(roadms, store.AuditRoadm{Type: dev.Type, Name: dev.Name, Endpoint: ep, Label: label})
			}
		}

		ids, err := f.client.XConnections(ctx, dev.Type, dev.Name)
		if err != nil {
			return err
		}
		for _, id := range ids {
			xc, err := f.client.XConnection(ctx, dev.Type, dev.Name, id)
			if err != nil {
				return err
			}
			if xc == nil {
				continue
			}
			xconns = append(xconns, store.AuditConnection{
				Type:        dev.Type,
				Name:        dev.Name,
				InstanceID:  xc.InstanceID,
				SrcEndpoint: xc.SrcEndpoint,
				SrcLabel:    xc.SrcLabel,
				DstEndpoint: xc.DstEndpoint,
				DstLabel:    xc.DstLabel,
			})
		}
	}

	if len(resources) == 0 && len(roadms) == 0 && len(xconns) == 0 {
		f.log.V(1).Info("upstream inventory empty, staying in get")
		return nil
	}

	f.resources, f.roadms, f.xconns = resources, roadms, xconns
	f.state = StateUpdate
	f.log.Info("inventory snapshot taken",
		"resources", len(resources), "endpoints", len(roadms), "crossConnects", len(xconns))
	return nil
}

// update drains one batch off the tail of the first non-empty buffer, in the
// order resources, endpoints, cross-connects. The state advances only once
// every buffer is empty.
func (f *FSM) update(ctx context.Context) error {
	switch {
	case len(f.resources) > 0:
		cut := len(f.resources) - min(f.step, len(f.resources))
		err := f.store.WithSession(ctx, func(s *store.Session) error {
			return s.AuditResources(f.resources[cut:])
		})
		if err != nil {
			return err
		}
		f.resources = f.resources[:cut]
		metrics.AuditBatches.WithLabelValues("resources").Inc()

	case len(f.roadms) > 0:
		cut := len(f.roadms) - min(f.step, len(f.roadms))
		err := f.store.WithSession(ctx, func(s *store.Session) error {
			return s.AuditRoadms(f.roadms[cut:])
		})
		if err != nil {
			return err
		}
		f.roadms = f.roadms[:cut]
		metrics.AuditBatches.WithLabelValues("roadms").Inc()

	case len(f.xconns) > 0:
		cut := len(f.xconns) - min(f.step, len(f.xconns))
		err := f.store.WithSession(ctx, func(s *store.Session) error {
			return s.AuditConnections(f.xconns[cut:])
		})
		if err != nil {
			return err
		}
		f.xconns = f.xconns[:cut]
		metrics.AuditBatches.WithLabelValues("connections").Inc()
	}

	if len(f.resources) == 0 && len(f.roadms) == 0 && len(f.xconns) == 0 {
		f.state = StateClean
	}
	return nil
}

// clean drops the buffers and reaps every row the cycle did not reseed. The
// sweep is idempotent; on error the state is retained and the next tick
// retries it.
func (f *FSM) clean(ctx context.Context) error {
	f.resources, f.roadms, f.xconns = nil, nil, nil
	err := f.store.WithSession(ctx, func(s *store.Session) error {
		return s.AuditTerminated()
	})
	if err != nil {
		return err
	}
	f.state = StateGet
	return nil
}

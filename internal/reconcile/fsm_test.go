// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironcore-dev/opennaas-am/internal/geni"
	"github.com/ironcore-dev/opennaas-am/internal/onserr"
	"github.com/ironcore-dev/opennaas-am/internal/opennaas"
	"github.com/ironcore-dev/opennaas-am/internal/store"
)

type fakeDevice struct {
	rtype     string
	name      string
	endpoints map[string][]string // endpoint -> labels
	xconns    []opennaas.XConnection
}

type fakeClient struct {
	devices []fakeDevice
	err     error // injected transport failure
}

var _ opennaas.Client = (*fakeClient)(nil)

func (f *fakeClient) ResourceTypes(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var types []string
	for _, d := range f.devices {
		types = append(types, d.rtype)
	}
	return types, nil
}

func (f *fakeClient) ResourceNames(_ context.Context, rtype string) ([]string, error) {
	var names []string
	for _, d := range f.devices {
		if d.rtype == rtype {
			names = append(names, d.name)
		}
	}
	return names, nil
}

func (f *fakeClient) Resources(ctx context.Context) ([]opennaas.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	var resources []opennaas.Resource
	for _, d := range f.devices {
		resources = append(resources, opennaas.Resource{Type: d.rtype, Name: d.name})
	}
	return resources, nil
}

func (f *fakeClient) device(rtype, name string) *fakeDevice {
	for i := range f.devices {
		if f.devices[i].rtype == rtype && f.devices[i].name == name {
			return &f.devices[i]
		}
	}
	return nil
}

func (f *fakeClient) Endpoints(_ context.Context, rtype, name string) ([]string, error) {
	dev := f.device(rtype, name)
	if dev == nil {
		return nil, onserr.NotFoundf("device %s/%s", rtype, name)
	}
	var eps []string
	for ep := range dev.endpoints {
		eps = append(eps, ep)
	}
	return eps, nil
}

func (f *fakeClient) Labels(_ context.Context, rtype, name, endpoint string) ([]string, error) {
	dev := f.device(rtype, name)
	if dev == nil {
		return nil, onserr.NotFoundf("device %s/%s", rtype, name)
	}
	return dev.endpoints[endpoint], nil
}

func (f *fakeClient) XConnections(_ context.Context, rtype, name string) ([]string, error) {
	dev := f.device(rtype, name)
	if dev == nil {
		return nil, onserr.NotFoundf("device %s/%s", rtype, name)
	}
	var ids []string
	for _, xc := range dev.xconns {
		ids = append(ids, xc.InstanceID)
	}
	return ids, nil
}

func (f *fakeClient) XConnection(_ context.Context, rtype, name, id string) (*opennaas.XConnection, error) {
	dev := f.device(rtype, name)
	if dev == nil {
		return nil, onserr.NotFoundf("device %s/%s", rtype, name)
	}
	for _, xc := range dev.xconns {
		if xc.InstanceID == id {
			return &xc, nil
		}
	}
	return nil, nil
}

func (f *fakeClient) CreateXConnection(_ context.Context, rtype, name string, xc opennaas.XConnection) error {
	dev := f.device(rtype, name)
	if dev == nil {
		return onserr.NotFoundf("device %s/%s", rtype, name)
	}
	dev.xconns = append(dev.xconns, xc)
	return nil
}

func (f *fakeClient) DeleteXConnection(_ context.Context, rtype, name, id string) error {
	dev := f.device(rtype, name)
	if dev == nil {
		return onserr.NotFoundf("device %s/%s", rtype, name)
	}
	for i, xc := range dev.xconns {
		if xc.InstanceID == id {
			dev.xconns = append(dev.xconns[:i], dev.xconns[i+1:]...)
			return nil
		}
	}
	return onserr.NotFoundf("cross-connect %s", id)
}

func (f *fakeClient) ExecuteQueue(context.Context, string, string) error {
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(t.Context()))
	return st
}

func roadmA() fakeDevice {
	return fakeDevice{
		rtype: "roadm",
		name:  "roadmA",
		endpoints: map[string][]string{
			"ep1": {"l1", "l2"},
			"ep2": {"l1", "l2"},
		},
	}
}

// runCycle ticks the FSM through exactly one full get/update/clean cycle.
func runCycle(t *testing.T, fsm *FSM) {
	t.Helper()
	require.Equal(t, StateGet, fsm.State())
	for {
		require.NoError(t, fsm.Step(t.Context()))
		if fsm.State() == StateClean {
			break
		}
	}
	require.NoError(t, fsm.Step(t.Context()))
	require.Equal(t, StateGet, fsm.State())
}

func TestFullCycleSeedsEmptyDatabase(t *testing.T) {
	st := newTestStore(t)
	client := &fakeClient{devices: []fakeDevice{roadmA()}}
	fsm := New(client, st, 100, logr.Discard())

	runCycle(t, fsm)

	require.NoError(t, st.WithSession(t.Context(), func(s *store.Session) error {
		rows, err := s.GetResources()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		for _, row := range rows {
			assert.Equal(t, "roadmA", row.Name)
			assert.Equal(t, geni.AllocationFree, row.Allocation)
		}
		return nil
	}))
}

func TestEmptyGetStaysInGet(t *testing.T) {
	st := newTestStore(t)
	fsm := New(&fakeClient{}, st, 100, logr.Discard())

	for range 3 {
		require.NoError(t, fsm.Step(t.Context()))
		assert.Equal(t, StateGet, fsm.State())
	}
}

func TestTransportErrorRetainsState(t *testing.T) {
	st := newTestStore(t)
	client := &fakeClient{err: onserr.New("upstream down")}
	fsm := New(client, st, 100, logr.Discard())

	require.Error(t, fsm.Step(t.Context()))
	assert.Equal(t, StateGet, fsm.State())

	// upstream recovers, the next tick makes progress
	client.err = nil
	client.devices = []fakeDevice{roadmA()}
	require.NoError(t, fsm.Step(t.Context()))
	assert.Equal(t, StateUpdate, fsm.State())
}

func TestUpdateDrainsInBoundedBatches(t *testing.T) {
	st := newTestStore(t)
	fsm := New(&fakeClient{devices: []fakeDevice{roadmA()}}, st, 1, logr.Discard())

	require.NoError(t, fsm.Step(t.Context())) // get
	require.Equal(t, StateUpdate, fsm.State())

	// 1 resource + 4 endpoints at step=1: five ticks before leaving update
	for range 4 {
		require.NoError(t, fsm.Step(t.Context()))
		assert.Equal(t, StateUpdate, fsm.State())
	}
	require.NoError(t, fsm.Step(t.Context()))
	assert.Equal(t, StateClean, fsm.State())
}

func TestCycleSurvivesConflictingCrossConnect(t *testing.T) {
	st := newTestStore(t)
	client := &fakeClient{devices: []fakeDevice{roadmA()}}
	fsm := New(client, st, 100, logr.Discard())
	runCycle(t, fsm)

	require.NoError(t, st.WithSession(t.Context(), func(s *store.Session) error {
		ingress, egress, xconnID, err := s.CheckToReserve("roadmA", "roadm", "ep1", "l1", "ep2", "l2")
		if err != nil {
			return err
		}
		return s.MakeConnection(ingress, egress, xconnID, store.ConnectionValues{
			SliceURN: "urn:slice:s1", EndTime: time.Now().Add(time.Hour),
		})
	}))

	// the device pairs the reserved ingress with a different peer; the cycle
	// must still run to completion instead of retrying the same batch forever
	client.devices[0].xconns = []opennaas.XConnection{{
		InstanceID:  "ep1:l1::ep2:l1",
		SrcEndpoint: "ep1",
		SrcLabel:    "l1",
		DstEndpoint: "ep2",
		DstLabel:    "l1",
	}}
	runCycle(t, fsm)

	require.NoError(t, st.WithSession(t.Context(), func(s *store.Session) error {
		entries, err := s.GetSlice("urn:slice:s1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "ep1:l1::ep2:l2", entries[0].Connection.XConnID)

		entries, err = s.GetSlice("unknown")
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	}))
}

func TestCycleObservesActiveCrossConnect(t *testing.T) {
	st := newTestStore(t)
	dev := roadmA()
	dev.xconns = []opennaas.XConnection{{
		InstanceID:  "ep1:l1::ep2:l2",
		SrcEndpoint: "ep1",
		SrcLabel:    "l1",
		DstEndpoint: "ep2",
		DstLabel:    "l2",
	}}
	fsm := New(&fakeClient{devices: []fakeDevice{dev}}, st, 100, logr.Discard())

	runCycle(t, fsm)

	require.NoError(t, st.WithSession(t.Context(), func(s *store.Session) error {
		entries, err := s.GetSlice("unknown")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "ep1:l1::ep2:l2", entries[0].Connection.XConnID)
		assert.Equal(t, geni.AllocationAllocated, entries[0].Ingress.Allocation)
		assert.Equal(t, geni.AllocationAllocated, entries[0].Egress.Allocation)
		return nil
	}))
}

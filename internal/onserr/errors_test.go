// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package onserr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	notFound := NotFoundf("resource %s", "roadmA")
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotAvailable(notFound))
	assert.Contains(t, notFound.Error(), "roadmA")

	notAvailable := NotAvailablef("endpoint %s/%s", "ep1", "l1")
	assert.True(t, IsNotAvailable(notAvailable))
	assert.False(t, IsNotFound(notAvailable))

	general := Errorf("queue execution failed (actionID=%s)", "a17")
	assert.False(t, IsNotFound(general))
	assert.False(t, IsNotAvailable(general))
	assert.Contains(t, general.Error(), "ons: ")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestWrapKeepsKind(t *testing.T) {
	err := Wrap(NotFoundf("slice %s", "s1"), "renew failed")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "renew failed")
}

// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
opennaas:
  server_address: opennaas.example.net
  server_port: 18888
  user: admin
  password: secret
  db_dir: /var/lib/opennaas-am
  reservation_timeout: 15
  update_step: 25
listen_address: ":9090"
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "opennaas.example.net", cfg.OpenNaaS.ServerAddress)
	assert.Equal(t, 18888, cfg.OpenNaaS.ServerPort)
	assert.Equal(t, "/var/lib/opennaas-am", cfg.OpenNaaS.DBDir)
	assert.Equal(t, 15*time.Minute, cfg.OpenNaaS.ReservationTTL())
	assert.Equal(t, 25, cfg.OpenNaaS.UpdateStep)
	// defaults survive a partial file
	assert.Equal(t, 30*time.Second, cfg.OpenNaaS.UpdateInterval())
	assert.Equal(t, 60*time.Second, cfg.OpenNaaS.ExpireInterval())
	assert.Equal(t, ":9090", cfg.ListenAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing server address",
			content: `
opennaas:
  db_dir: /tmp/db
`,
		},
		{
			name: "bad port",
			content: `
opennaas:
  server_address: opennaas.example.net
  server_port: 123456
  db_dir: /tmp/db
`,
		},
		{
			name: "bad log level",
			content: `
opennaas:
  server_address: opennaas.example.net
  db_dir: /tmp/db
log_level: chatty
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

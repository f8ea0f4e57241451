package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/restarter"
)

func writeTempConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleConfig = `
listen:
  notify_socket: /tmp/notify.sock
  admin_addr: 127.0.0.1:9000
services:
  - name: db
    unit_type: forks
    methods:
      start:
        path: /usr/bin/dbd
  - name: web
    groups:
      - kind: require_all
        restart_on: restart
        targets: ["db"]
    instances:
      - name: "1"
        methods:
          start:
            path: /usr/bin/webd
            args: ["--port", "8080"]
      - name: "2"
        unit_type: oneshot
`

func TestLoadAppliesDefaultsAndParses(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/notify.sock", cfg.Listen.NotifySocketPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen.AdminAddr)
	assert.Equal(t, defaultControlSocket, cfg.Listen.ControlSocket)

	require.Len(t, cfg.Services, 2)
	db := cfg.Services[0]
	assert.Equal(t, "forks", db.UnitType)
	assert.True(t, *db.Enabled)

	web := cfg.Services[1]
	require.Len(t, web.Instances, 2)
	assert.Equal(t, string(restarter.TypeSimple), web.Instances[0].UnitType, "inherits service default")
	assert.Equal(t, "oneshot", web.Instances[1].UnitType, "explicit override kept")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsUnknownUnitType(t *testing.T) {
	cfg := &Config{Services: []ServiceConfig{{Name: "x", UnitType: "bogus"}}}
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateServiceNames(t *testing.T) {
	cfg := &Config{Services: []ServiceConfig{
		{Name: "dup", UnitType: "simple"},
		{Name: "dup", UnitType: "simple"},
	}}
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownGroupKind(t *testing.T) {
	cfg := &Config{Services: []ServiceConfig{{
		Name: "x", UnitType: "simple",
		Groups: []GroupConfig{{Kind: "nonsense", Targets: []string{"y"}}},
	}}}
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestBuildRepositoryPopulatesServiceAndInstances(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	repo := BuildRepository(cfg)

	svcDesc, err := repo.Lookup(domain.ServicePath{Service: "web"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, svcDesc.Instances)
	require.Len(t, svcDesc.Groups, 1)
	assert.Equal(t, domain.GroupRequireAll, svcDesc.Groups[0].Kind)
	assert.Equal(t, domain.SeverityRestart, svcDesc.Groups[0].RestartOn)
	assert.Equal(t, []domain.ServicePath{{Service: "db"}}, svcDesc.Groups[0].Targets)

	instDesc, err := repo.Lookup(domain.ServicePath{Service: "web", Instance: "1"})
	require.NoError(t, err)
	assert.True(t, instDesc.IsEnabled)
}

func TestBuildUnitsRegistersOneUnitPerInstance(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	core := restarter.NewCore(nil, nil, nil, nil, cfg.Listen.NotifySocketPath)
	BuildUnits(cfg, core)

	dbUnit, ok := core.Lookup(domain.ServicePath{Service: "db"})
	require.True(t, ok)
	assert.Equal(t, restarter.TypeForks, dbUnit.Type)
	require.NotNil(t, dbUnit.Methods[restarter.MethodStart])
	assert.Equal(t, "/usr/bin/dbd", dbUnit.Methods[restarter.MethodStart].Path)

	web1, ok := core.Lookup(domain.ServicePath{Service: "web", Instance: "1"})
	require.True(t, ok)
	require.NotNil(t, web1.Methods[restarter.MethodStart])
	assert.Equal(t, []string{"--port", "8080"}, web1.Methods[restarter.MethodStart].Args)

	// "web" itself (the service path with no instance) never gets a unit:
	// only its concrete instances run methods.
	_, ok = core.Lookup(domain.ServicePath{Service: "web"})
	assert.False(t, ok)
}

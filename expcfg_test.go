package simbricks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameter(t *testing.T) {
	tests := []struct {
		name      string
		paramObj  string
		attribute string
		param     string
		valid     bool
	}{
		{name: "wildcard", paramObj: "Host", attribute: "*", param: "cores", valid: true},
		{name: "named", paramObj: "NIC", attribute: "name%%client.1.nic", param: "logFile", valid: true},
		{name: "attributes", paramObj: "Host", attribute: "client,gem5", param: "memory", valid: true},
		{name: "node kind", paramObj: "Host", attribute: "i40e-linux", param: "mtu", valid: true},
		{name: "unknown object", paramObj: "Switch", attribute: "*", param: "cores"},
		{name: "unknown attribute", paramObj: "Network", attribute: "wireless", param: "opt"},
		{name: "wildcard not alone", paramObj: "Host", attribute: "*,server", param: "cores"},
		{name: "param of other object", paramObj: "NIC", attribute: "*", param: "cores"},
		{name: "address not offered", paramObj: "Host", attribute: "*", param: "ip"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateParameter(tc.paramObj, tc.attribute, tc.param)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMostSpecificParameterWins(t *testing.T) {
	cfg := CreateBuildCfg("prec")
	cfg.Pairs = 2
	ef, err := BuildExperiment(cfg)
	require.NoError(t, err)

	// added narrowest first, applied broadest first
	expcfg := CreateExpCfg("prec")
	require.NoError(t, expcfg.AddParameter("Host", "name%%client.2", "cores", "8"))
	require.NoError(t, expcfg.AddParameter("Host", "client", "cores", "4"))
	require.NoError(t, expcfg.AddParameter("Host", "*", "cores", "2"))
	require.NoError(t, expcfg.AddParameter("Network", "switch", "opt", "--Mtu=9000"))
	require.NoError(t, expcfg.AddParameter("NIC", "*", "ethLatency", "1000"))

	require.NoError(t, ApplyExpCfg(ef, expcfg))

	cores := map[string]int{}
	for _, host := range ef.Hosts {
		cores[host.Name] = host.Node.Cores
	}
	assert.Equal(t, map[string]int{"server.1": 2, "server.2": 2, "client.1": 4, "client.2": 8}, cores)
	assert.Equal(t, "--Mtu=9000", ef.Networks[0].Opt)
	for _, nic := range ef.NICs {
		assert.Equal(t, 1000, nic.EthLatency)
	}
}

func TestApplyExpCfgLeavesAddresses(t *testing.T) {
	ef, err := BuildExperiment(CreateBuildCfg("addr"))
	require.NoError(t, err)
	before := ef.Hosts[0].Node.IP

	expcfg := CreateExpCfg("addr")
	require.NoError(t, expcfg.AddParameter("Host", "*", "nockp", "true"))
	require.NoError(t, expcfg.AddParameter("Host", "server", "cpuFreq", "2GHz"))
	require.NoError(t, expcfg.AddParameter("Host", "name%%client.1", "sysClock", "2GHz"))
	require.NoError(t, expcfg.AddParameter("Host", "client", "extraArgs", "--debug-file out/c.log"))
	require.NoError(t, ApplyExpCfg(ef, expcfg))

	assert.Equal(t, "2GHz", ef.Hosts[1].SysClock)
	assert.Equal(t, "1GHz", ef.Hosts[0].SysClock)
	assert.Equal(t, []string{"--debug-file", "out/c.log"}, ef.Hosts[1].ExtraArgs)
	assert.Empty(t, ef.Hosts[0].ExtraArgs)

	assert.Equal(t, before, ef.Hosts[0].Node.IP)
	assert.True(t, ef.Hosts[0].Node.NoCheckpoint)
	assert.Equal(t, "2GHz", ef.Hosts[0].CPUFreq)
	assert.Equal(t, "4GHz", ef.Hosts[1].CPUFreq)
}

func TestApplyExpCfgReportsBadValues(t *testing.T) {
	ef, err := BuildExperiment(CreateBuildCfg("bad"))
	require.NoError(t, err)

	// parameters read from a file skip AddParameter, so ApplyExpCfg validates too
	expcfg := &ExpCfg{Name: "bad", Parameters: []ExpParameter{
		{ParamObj: "Host", Attribute: "*", Param: "memory", Value: "lots"},
		{ParamObj: "Host", Attribute: "*", Param: "ip", Value: "10.9.9.9"},
	}}
	err = ApplyExpCfg(ef, expcfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lots")
	assert.Contains(t, err.Error(), "ip")
	assert.Equal(t, "192.168.64.1", ef.Hosts[0].Node.IP)
}

func TestExpCfgFile(t *testing.T) {
	expcfg := CreateExpCfg("file")
	require.NoError(t, expcfg.AddParameter("NIC", "i40e", "syncMode", "0"))

	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, expcfg.WriteToFile(path))

	back, err := ReadExpCfg(path, true, []byte{})
	require.NoError(t, err)
	assert.Equal(t, expcfg, back)

	inline, err := ReadExpCfg("", false,
		[]byte(`{"expname":"inline","parameters":[{"paramObj":"Network","attribute":"*","param":"opt","value":"-x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "-x", inline.Parameters[0].Value)
}

func TestReorderExpParams(t *testing.T) {
	params := []ExpParameter{
		{ParamObj: "Host", Attribute: "name%%a", Param: "cores", Value: "1"},
		{ParamObj: "Host", Attribute: "server", Param: "cores", Value: "2"},
		{ParamObj: "Host", Attribute: "*", Param: "cores", Value: "3"},
		{ParamObj: "Host", Attribute: "client", Param: "cores", Value: "4"},
	}
	ordered := reorderExpParams(params)

	values := []string{}
	for _, p := range ordered {
		values = append(values, p.Value)
	}
	assert.Equal(t, []string{"3", "2", "4", "1"}, values)
	assert.Equal(t, "1", params[0].Value)
}

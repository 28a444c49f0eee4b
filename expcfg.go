package simbricks

// expcfg.go lets an experiment be tuned after it is built, without touching the
// build procedure: parameters name a class of hosts, NICs or networks and a
// value to give one of their attributes.  Addresses are not among the
// parameters, they are fixed once the build procedure assigns them.

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// An ExpParameter struct describes an input to experiment configuration.  It specifies
//   - ParamObj identifies the kind of thing being configured : Host, NIC, or Network
//   - Attribute identifies a class of objects of that type to which the configuration parameter should apply.
//     May be "*" for a wild-card, may be "name%%xxyy" where "xxyy" is the object's name, may be
//     a comma-separated list of other attributes, all of which the object must carry
type ExpParameter struct {
	// Type of thing being configured
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attribute identifier for this parameter
	Attribute string `json:"attribute" yaml:"attribute"`

	// ParameterType, e.g., "cores", "ethLatency", "opt"
	Param string `json:"param" yaml:"param"`

	// string-encoded value associated with type
	Value string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor.  Completely fills in the struct with the [ExpParameter] attributes.
func CreateExpParameter(paramObj, attribute, param, value string) *ExpParameter {
	return &ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}
}

// An ExpCfg structure holds all of the ExpParameters for a named experiment
type ExpCfg struct {
	// Name is an identifier for a group of [ExpParameters].  No particular interpretation of this string is
	// used, except as a referencing label when logging
	Name string `json:"expname" yaml:"expname"`

	// Parameters is a list of all the [ExpParameter] objects applied to an experiment
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor. Saves the offered Name and initializes the slice of ExpParameters.
func CreateExpCfg(name string) *ExpCfg {
	return &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}
}

// ExpParamObjs, ExpAttributes, and ExpParams hold descriptions of the types of objects
// that are configured by an exp file, for each the attributes of the object that can be tested for to determine
// whether the object is to receive the configuration parameter, and the parameter types defined for each object type
var ExpParamObjs = []string{"Host", "NIC", "Network"}

var ExpAttributes = map[string][]string{
	"Host":    {"server", "client", SimQemu, SimGem5, "*"},
	"NIC":     {"i40e", "e1000", "corundum", "*"},
	"Network": {"switch", "ns3-dumbbell", "ns3-bridge", "*"},
}

var ExpParams = map[string][]string{
	"Host":    {"cores", "threads", "memory", "mtu", "diskImage", "kcmdAppend", "cpuFreq", "sysClock", "variant", "extraArgs", "nockp"},
	"NIC":     {"ethLatency", "syncMode", "logFile"},
	"Network": {"ethLatency", "syncMode", "syncPeriod", "opt"},
}

// hostAttributes are the attributes a host answers to: its role, its simulator, and its node kind
func hostAttributes(host *HostFrame) []string {
	attrbs := []string{host.Role, host.Sim}
	if host.Node != nil {
		attrbs = append(attrbs, host.Node.KindName())
	}
	return attrbs
}

// validAttribute accepts the listed attributes, plus every registered node kind for hosts
func validAttribute(paramObj, attrb string) bool {
	if slices.Contains(ExpAttributes[paramObj], attrb) {
		return true
	}
	_, isKind := nodeKinds[attrb]
	return paramObj == "Host" && isKind
}

// ValidateParameter returns an error if the paramObj, attribute, and param values don't
// make sense taken together within an ExpParameter.
func ValidateParameter(paramObj, attribute, param string) error {
	// the paramObj string has to be recognized as one of the permitted ones
	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized", paramObj)
	}

	attrbList := strings.Split(attribute, ",")

	for _, attrb := range attrbList {
		// a name or a wildcard must stand alone
		if strings.HasPrefix(attrb, "name%%") || attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("parameter attribute %s for paramObj %s is included with more attributes", attrb, paramObj)
			}
			continue
		}

		if !validAttribute(paramObj, attrb) {
			return fmt.Errorf("parameter attribute %s is not recognized for paramObj %s", attrb, paramObj)
		}
	}

	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param, paramObj)
	}

	return nil
}

// AddParameter accepts the four values in an ExpParameter, creates one, and adds to the ExpCfg's list.
// Returns an error if the parameters are not validated.
func (expcfg *ExpCfg) AddParameter(paramObj, attribute, param, value string) error {
	err := ValidateParameter(paramObj, attribute, param)
	if err != nil {
		return err
	}

	expcfg.Parameters = append(expcfg.Parameters, *CreateExpParameter(paramObj, attribute, param, value))
	return nil
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (expcfg *ExpCfg) WriteToFile(filename string) error {
	return writeDescFile(filename, *expcfg)
}

// ReadExpCfg deserializes a byte slice holding a representation of an ExpCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	example := ExpCfg{}
	if err := readDescFile(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}

// paramRank orders parameters from broadest to narrowest reach
func paramRank(param ExpParameter) int {
	switch {
	case param.Attribute == "*":
		return 0
	case strings.HasPrefix(param.Attribute, "name%%"):
		return 2
	default:
		return 1
	}
}

// reorderExpParams puts the parameters in an order such that the earlier elements
// have a broader range of application than later ones.  Applying them in this order
// lets the most specific setting of an attribute win: wildcards first, named objects last.
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	ordered := make([]ExpParameter, len(pL))
	copy(ordered, pL)

	// the sort is stable, so parameters of equal reach keep their file order
	sort.SliceStable(ordered, func(i, j int) bool { return paramRank(ordered[i]) < paramRank(ordered[j]) })

	return ordered
}

// matches reports whether an object with the given name and attributes is selected by attribute
func matches(attribute, name string, attrbs []string) bool {
	if attribute == "*" {
		return true
	}
	if strings.HasPrefix(attribute, "name%%") {
		return strings.TrimPrefix(attribute, "name%%") == name
	}
	for _, attrb := range strings.Split(attribute, ",") {
		if !slices.Contains(attrbs, attrb) {
			return false
		}
	}
	return true
}

// ApplyExpCfg sets the parameters of expcfg on the objects of the experiment they select.
// Every parameter is validated and applied; all failures are reported together.
func ApplyExpCfg(ef *ExperimentFrame, expcfg *ExpCfg) error {
	if expcfg == nil {
		return nil
	}
	errs := []error{}

	for _, param := range reorderExpParams(expcfg.Parameters) {
		if err := ValidateParameter(param.ParamObj, param.Attribute, param.Param); err != nil {
			errs = append(errs, err)
			continue
		}

		applied := 0
		switch param.ParamObj {
		case "Host":
			for _, host := range ef.Hosts {
				if matches(param.Attribute, host.Name, hostAttributes(host)) {
					errs = append(errs, setHostParam(host, param.Param, param.Value))
					applied += 1
				}
			}
		case "NIC":
			for _, nic := range ef.NICs {
				if matches(param.Attribute, nic.Name, []string{nic.Model}) {
					errs = append(errs, setNICParam(nic, param.Param, param.Value))
					applied += 1
				}
			}
		case "Network":
			for _, net := range ef.Networks {
				if matches(param.Attribute, net.Name, []string{net.NetType}) {
					errs = append(errs, setNetworkParam(net, param.Param, param.Value))
					applied += 1
				}
			}
		}

		log.WithFields(log.Fields{
			"expcfg":    expcfg.Name,
			"paramObj":  param.ParamObj,
			"attribute": param.Attribute,
			"param":     param.Param,
			"value":     param.Value,
			"objects":   applied,
		}).Debug("experiment parameter applied")
	}

	return ReportErrs(errs)
}

func paramInt(param, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: value %q is not an integer", param, value)
	}
	return v, nil
}

func setHostParam(host *HostFrame, param, value string) error {
	switch param {
	case "cpuFreq":
		host.CPUFreq = value
		return nil
	case "sysClock":
		host.SysClock = value
		return nil
	case "extraArgs":
		// whitespace separated, as on a command line
		host.ExtraArgs = strings.Fields(value)
		return nil
	case "variant":
		host.Variant = value
		return nil
	}

	if host.Node == nil {
		return fmt.Errorf("host %s has no node configuration for parameter %s", host.Name, param)
	}
	node := host.Node

	var err error
	switch param {
	case "cores":
		node.Cores, err = paramInt(param, value)
	case "threads":
		node.Threads, err = paramInt(param, value)
	case "memory":
		node.Memory, err = paramInt(param, value)
	case "mtu":
		node.MTU, err = paramInt(param, value)
	case "diskImage":
		node.DiskImage = value
	case "kcmdAppend":
		node.KcmdAppend = value
	case "nockp":
		node.NoCheckpoint, err = strconv.ParseBool(value)
	}
	return err
}

func setNICParam(nic *NICFrame, param, value string) error {
	var err error
	switch param {
	case "ethLatency":
		nic.EthLatency, err = paramInt(param, value)
	case "syncMode":
		nic.SyncMode, err = paramInt(param, value)
	case "logFile":
		nic.LogFile = value
	}
	return err
}

func setNetworkParam(net *NetworkFrame, param, value string) error {
	var err error
	switch param {
	case "ethLatency":
		net.EthLatency, err = paramInt(param, value)
	case "syncMode":
		net.SyncMode, err = paramInt(param, value)
	case "syncPeriod":
		net.SyncPeriod, err = paramInt(param, value)
	case "opt":
		net.Opt = value
	}
	return err
}

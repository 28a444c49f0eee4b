package simbricks

// app-timesync.go holds the clock synchronization workloads (NTP via chrony,
// PTP via linuxptp) together with the helper scripts that sample the clocks

import (
	"fmt"
	"strings"
)

// ptp4lSed rewrites the linuxptp intervals (and optionally the clock class) in place
func ptp4lSed(withClockClass bool) string {
	exprs := []string{}
	if withClockClass {
		// lower clock class means higher priority, making this host the grand master
		exprs = append(exprs, `-e "s/clockClass\t*[0-9-]*/clockClass\t128/g" `)
	}
	exprs = append(exprs,
		`-e "s/logAnnounceInterval\t*[0-9-]*/logAnnounceInterval\t-2/g" `,
		`-e "s/logSyncInterval\t*[0-9-]*/logSyncInterval\t-5/g" `,
		`-e "s/logMinDelayReqInterval\t*[0-9-]*/logMinDelayReqInterval\t-5/g" `,
		`-e "s/logMinPdelayReqInterval\t*[0-9-]*/logMinPdelayReqInterval\t-5/g" `,
		`-e "s/operLogSyncInterval[\t ]*[0-9-]*/operLogSyncInterval\t-5/g" `,
		`-e "s/operLogPdelayReqInterval[\t ]*[0-9-]*/operLogPdelayReqInterval\t-5/g" `,
	)
	// the expressions hold \t escapes meant for sed, turn them into literal tabs
	return strings.ReplaceAll("sed -i "+strings.Join(exprs, "")+"/etc/linuxptp/ptp4l.conf", `\t`, "\t")
}

// echoTo renders each line as an echo appending to file
func echoTo(file string, lines ...string) []string {
	out := make([]string, len(lines))
	for idx, line := range lines {
		out[idx] = fmt.Sprintf(`echo "%s" >> %s`, line, file)
	}
	return out
}

// queryLoop writes an executable script into file that runs cmds once a minute for an hour
func queryLoop(file, indent string, cmds ...string) []string {
	body := []string{"for i in {0..60}", "do"}
	for _, cmd := range cmds {
		body = append(body, indent+cmd)
	}
	body = append(body, indent+"sleep 60", "done")

	return append(echoTo(file, body...), "chmod +x "+file)
}

// shellBlock joins lines into one multi-line command entry of the run script
func shellBlock(lines ...string) string {
	return "\n" + strings.Join(lines, "\n") + "\n"
}

var waitOnQuery = []string{"pid=$!", "wait $pid"}

// NTPServer serves time with chrony from the local clock
type NTPServer struct {
	BaseApp
}

func (NTPServer) PrepPreCp() []string {
	lines := echoTo("/etc/chrony.conf",
		"driftfile /var/lib/chrony/drift",
		"local stratum 1",
		"allow 192.168.64.0/24",
		"ratelimit interval -2")
	lines = append(lines, queryLoop("query.sh", "    ", "date +%s%N", "m5 dumpstats", "chronyc -n tracking")...)
	return []string{shellBlock(lines...)}
}

func (NTPServer) RunCmds(node *NodeConfig) []string {
	return []string{shellBlock(
		"chronyd -4 -d -d -f /etc/chrony.conf &",
		"./query.sh &",
		"sleep infinity")}
}

// NTPClient synchronizes against an NTPServer with chrony
type NTPClient struct {
	BaseApp
	ServerIP string
}

// NewNTPClient is a constructor; an empty serverIP selects the default
func NewNTPClient(serverIP string) *NTPClient {
	if len(serverIP) == 0 {
		serverIP = "10.0.0.1"
	}
	return &NTPClient{ServerIP: serverIP}
}

func (nc *NTPClient) SetServer(ip string) { nc.ServerIP = ip }

func (nc *NTPClient) PrepPreCp() []string {
	lines := echoTo("/etc/chrony.conf",
		"driftfile /var/lib/chrony/drift",
		fmt.Sprintf("server %s iburst ", nc.ServerIP))
	lines = append(lines, "")
	lines = append(lines, queryLoop("query.sh", "    ", "date +%s%N", "m5 dumpstats", "chronyc -n tracking")...)
	return []string{shellBlock(lines...)}
}

func (nc *NTPClient) RunCmds(node *NodeConfig) []string {
	lines := []string{"chronyd -4 -d -d -f /etc/chrony.conf &", "./query.sh &"}
	return []string{shellBlock(append(lines, waitOnQuery...)...)}
}

// chronyServerConf is the chrony.conf of a stratum 1 server
func chronyServerConf(nicTimestamping bool) string {
	cfg := "bindcmdaddress 127.0.0.1\n" +
		"allow 10.0.0.0/8\n" +
		"driftfile /tmp/chrony-drift\n" +
		"local stratum 1\n"
	if nicTimestamping {
		cfg += "hwtimestamp * rxfilter ptp\n"
		cfg += "ptpport 319\n"
	}
	return cfg
}

// PTPServer is the PTP grand master, sampling its clock periodically
type PTPServer struct {
	BaseApp
}

func (PTPServer) PrepPreCp() []string {
	return []string{
		ptp4lSed(true),
		"cat /etc/linuxptp/ptp4l.conf",
		shellBlock(queryLoop("sys-query.sh", "    ", "date +%s%N", "m5 dumpstats")...),
	}
}

func (PTPServer) ConfigFiles() map[string]GuestFile {
	return map[string]GuestFile{"chrony.conf": StrFile(chronyServerConf(false))}
}

func (PTPServer) RunCmds(node *NodeConfig) []string {
	return []string{
		// start the phc from the system time so it has a sane starting point
		"phc_ctl /dev/ptp0 set &",
		"ptp4l -m -q -f /etc/linuxptp/ptp4l.conf -i eth0 &",
		shellBlock(append([]string{"./sys-query.sh &"}, waitOnQuery...)...),
	}
}

// ChronyServer serves time with chrony, optionally with NIC hardware timestamps
type ChronyServer struct {
	BaseApp
	LogLevel        int
	NICTimestamping bool
}

func (cs *ChronyServer) PrepPreCp() []string {
	return []string{
		shellBlock(queryLoop("sys-query.sh", "  ", "date +%s%N", "m5 dumpstats")...),
		shellBlock(queryLoop("chrony-query.sh", "  ", "chronyc -n tracking")...),
	}
}

func (cs *ChronyServer) ConfigFiles() map[string]GuestFile {
	return map[string]GuestFile{"chrony.conf": StrFile(chronyServerConf(cs.NICTimestamping))}
}

func (cs *ChronyServer) tune(at *AppTuning) error {
	if at.ChronyLogLevel != nil {
		cs.LogLevel = *at.ChronyLogLevel
	}
	cs.NICTimestamping = cs.NICTimestamping || at.NICTimestamping
	return nil
}

func (cs *ChronyServer) RunCmds(node *NodeConfig) []string {
	return []string{
		fmt.Sprintf("chronyd -d -d -x -f chrony.conf -L %d &", cs.LogLevel),
		shellBlock(append([]string{"./chrony-query.sh &", "./sys-query.sh &"}, waitOnQuery...)...),
	}
}

// ChronyClient tracks an NTP server, or the local PHC when PTP is enabled
type ChronyClient struct {
	BaseApp
	ChronyLogLevel  int
	NTPServer       string
	NICTimestamping bool
	PTP             bool
}

// NewChronyClient is a constructor with the default NTP server address
func NewChronyClient() *ChronyClient {
	return &ChronyClient{NTPServer: "10.0.0.1"}
}

func (cc *ChronyClient) SetServer(ip string) { cc.NTPServer = ip }

func (cc *ChronyClient) tune(at *AppTuning) error {
	if at.ChronyLogLevel != nil {
		cc.ChronyLogLevel = *at.ChronyLogLevel
	}
	cc.PTP = cc.PTP || at.PTP
	cc.NICTimestamping = cc.NICTimestamping || at.NICTimestamping
	return nil
}

func (cc *ChronyClient) PrepPreCp() []string {
	cmds := []string{}
	if cc.PTP {
		cmds = append(cmds, ptp4lSed(false), "cat /etc/linuxptp/ptp4l.conf")
	}
	return append(cmds,
		shellBlock(queryLoop("sys-query.sh", "  ", "date +%s%N", "m5 dumpstats")...),
		shellBlock(queryLoop("chrony-query.sh", "  ", "chronyc -n tracking")...),
	)
}

func (cc *ChronyClient) ConfigFiles() map[string]GuestFile {
	var cfg string
	if cc.PTP {
		cfg = "bindcmdaddress 127.0.0.1\n" +
			"refclock PHC /dev/ptp0 poll -2 dpoll -3\n" +
			"driftfile /tmp/chrony-drift\n" +
			"makestep 0.01 3\n"
	} else {
		ptpport := ""
		if cc.NICTimestamping {
			ptpport = "port 319"
		}
		cfg = "bindcmdaddress 127.0.0.1\n" +
			fmt.Sprintf("server %s iburst minpoll -6 maxpoll -1 xleave %s\n", cc.NTPServer, ptpport) +
			"driftfile /tmp/chrony-drift\n" +
			"makestep 0.01 3\n"
		if cc.NICTimestamping {
			cfg += "hwtimestamp * rxfilter ptp\n"
			cfg += "ptpport 319\n"
		}
	}
	return map[string]GuestFile{"chrony.conf": StrFile(cfg)}
}

func (cc *ChronyClient) RunCmds(node *NodeConfig) []string {
	cmds := []string{}
	if cc.PTP {
		cmds = append(cmds, "ptp4l -m -q -f /etc/linuxptp/ptp4l.conf -i eth0 &")
	}
	cmds = append(cmds, fmt.Sprintf("chronyd -d -d -f chrony.conf -L %d &", cc.ChronyLogLevel))

	return append(cmds,
		shellBlock(append([]string{"./chrony-query.sh &", "./sys-query.sh &"}, waitOnQuery...)...))
}

package minerd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Reply codes follow the numbering cgminer's API uses for the same messages.
const (
	codePoolSwitched   = 27
	codeInvalidCommand = 14
	codeMissingParam   = 15
	codeInvalidID      = 16
	codeNoSuchOption   = 17
	codeRestart        = 18
	codeBye            = 19
	codeVersion        = 22
	codeSummary        = 11
	codeDevs           = 9
	codePools          = 7
	codeConfig         = 33
	codeSaved          = 44
	codePoolEnabled    = 47
	codePoolDisabled   = 48
	codePoolAlreadyOn  = 49
	codePoolAlreadyOff = 50
	codeLastPool       = 51
	codeSetConfig      = 52
	codePoolAdded      = 55
	codeNotify         = 60
	codePoolRemoved    = 68
	codeActivePool     = 69
	codeDevDetails     = 69
	codeStats          = 70
	codePriorities     = 73
	codeCoin           = 78
	codeUSBStats       = 87
	codeASCEnabled     = 104
	codeASCDisabled    = 105
	codeASCAlreadyOn   = 106
	codeASCAlreadyOff  = 107
	codeASCSet         = 120
	codeASCSetFailed   = 121
	codeLCD            = 125
)

const (
	simulatorVersion = "4.11.1"
	apiVersion       = "3.7"
	description      = "cgminer " + simulatorVersion
	blockHash        = "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"

	minFrequency = 100
	maxFrequency = 1200
)

// Pool is one simulated upstream pool.
type Pool struct {
	URL           string
	User          string
	Pass          string
	Enabled       bool
	Priority      int
	Accepted      int64
	Rejected      int64
	Stale         int64
	LastShareTime int64
}

// Device is one simulated ASC device.
type Device struct {
	Name           string
	Enabled        bool
	Frequency      int
	Chips          int
	Temperature    float64
	FanSpeed       int
	Accepted       int64
	Rejected       int64
	HardwareErrors int64
}

// hashrate returns MH/s for the device at its current frequency.
func (d Device) hashrate() float64 {
	if !d.Enabled {
		return 0
	}
	return float64(d.Frequency) * float64(d.Chips) * 0.114
}

// SimulatorOption customizes a Simulator.
type SimulatorOption func(*Simulator)

// WithClock injects the time source.
func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithQuitHook runs fn asynchronously after a quit command is answered.
func WithQuitHook(fn func()) SimulatorOption {
	return func(s *Simulator) {
		s.onQuit = fn
	}
}

// WithPools replaces the initial pool list.
func WithPools(pools ...Pool) SimulatorOption {
	return func(s *Simulator) {
		s.pools = append([]Pool(nil), pools...)
	}
}

// WithDevices replaces the initial device list.
func WithDevices(devices ...Device) SimulatorOption {
	return func(s *Simulator) {
		s.devices = append([]Device(nil), devices...)
	}
}

// Simulator answers the cgminer command vocabulary from in-memory state.
// It is safe for concurrent use.
type Simulator struct {
	mu       sync.Mutex
	now      func() time.Time
	started  time.Time
	pools    []Pool
	devices  []Device
	settings map[string]int
	saved    string
	onQuit   func()
}

// NewSimulator builds a simulator with two devices and one pool.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		now: time.Now,
		pools: []Pool{{
			URL:      "stratum+tcp://pool.example.com:3333",
			User:     "worker.1",
			Pass:     "x",
			Enabled:  true,
			Priority: 0,
		}},
		devices: []Device{
			{Name: "GSF", Enabled: true, Frequency: 550, Chips: 200, Temperature: 52.5, FanSpeed: 3600},
			{Name: "GSF", Enabled: true, Frequency: 550, Chips: 200, Temperature: 54.0, FanSpeed: 3650},
		},
		settings: map[string]int{"queue": 1, "scantime": 60, "expiry": 120},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	return s
}

// Saved returns the filename passed to the most recent save command.
func (s *Simulator) Saved() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Pools returns a copy of the current pool list.
func (s *Simulator) Pools() []Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pool(nil), s.pools...)
}

// Devices returns a copy of the current device list.
func (s *Simulator) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Device(nil), s.devices...)
}

// Handle implements Handler.
func (s *Simulator) Handle(_ context.Context, req Request) any {
	name, param := splitCommand(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	switch name {
	case "summary":
		return s.ok(now, codeSummary, "Summary", "SUMMARY", []map[string]any{s.summaryRecord(now)})
	case "devs":
		return s.ok(now, codeDevs, fmt.Sprintf("%d ASC(s)", len(s.devices)), "DEVS", s.deviceRecords())
	case "pools":
		return s.ok(now, codePools, fmt.Sprintf("%d Pool(s)", len(s.pools)), "POOLS", s.poolRecords())
	case "config":
		return s.ok(now, codeConfig, "CGMiner config", "CONFIG", []map[string]any{s.configRecord()})
	case "coin":
		return s.ok(now, codeCoin, "CGMiner coin", "COIN", []map[string]any{{
			"Hash Method":        "sha256",
			"Current Block Time": float64(s.started.Unix()),
			"Current Block Hash": blockHash,
			"LP":                 true,
			"Network Difficulty": 8.3e13,
		}})
	case "usbstats":
		return s.ok(now, codeUSBStats, "USB Statistics", "USBSTATS", s.usbRecords())
	case "devdetails":
		return s.ok(now, codeDevDetails, "Device Details", "DEVDETAILS", s.detailRecords())
	case "stats":
		return s.ok(now, codeStats, "CGMiner stats", "STATS", s.statsRecords(now))
	case "version":
		return s.ok(now, codeVersion, "CGMiner versions", "VERSION", []map[string]any{{
			"CGMiner": simulatorVersion,
			"API":     apiVersion,
		}})
	case "notify":
		return s.ok(now, codeNotify, "Notify", "NOTIFY", s.notifyRecords(now))
	case "lcd":
		return s.ok(now, codeLCD, "LCD", "LCD", []map[string]any{s.lcdRecord(now)})
	case "restart":
		s.started = now
		for i := range s.devices {
			s.devices[i].Accepted, s.devices[i].Rejected, s.devices[i].HardwareErrors = 0, 0, 0
		}
		return s.ok(now, codeRestart, "Restart", "", nil)
	case "quit":
		if s.onQuit != nil {
			go s.onQuit()
		}
		return s.ok(now, codeBye, "BYE", "", nil)
	case "save":
		filename := strings.TrimSpace(param)
		if filename == "" {
			filename = "cgminer.conf"
		}
		s.saved = filename
		return s.ok(now, codeSaved, fmt.Sprintf("Configuration saved to file '%s'", filename), "", nil)
	case "addpool":
		return s.addPool(now, param)
	case "removepool":
		return s.removePool(now, param)
	case "enablepool":
		return s.enablePool(now, param)
	case "disablepool":
		return s.disablePool(now, param)
	case "switchpool":
		return s.switchPool(now, param)
	case "poolpriority":
		return s.poolPriority(now, param)
	case "ascenable":
		return s.setDeviceEnabled(now, param, true)
	case "ascdisable":
		return s.setDeviceEnabled(now, param, false)
	case "ascset":
		return s.ascSet(now, param)
	case "setconfig":
		return s.setConfig(now, param)
	default:
		return s.fail(now, codeInvalidCommand, "Invalid command")
	}
}

func splitCommand(req Request) (string, string) {
	if req.Parameter != "" {
		return strings.TrimSpace(req.Command), req.Parameter
	}
	name, param, _ := strings.Cut(req.Command, "|")
	return strings.TrimSpace(name), param
}

func (s *Simulator) ok(now time.Time, code int, msg, section string, records []map[string]any) Response {
	return s.reply(now, StatusSuccess, code, msg, section, records)
}

func (s *Simulator) info(now time.Time, code int, msg string) Response {
	return s.reply(now, StatusInfo, code, msg, "", nil)
}

func (s *Simulator) fail(now time.Time, code int, msg string) Response {
	return ErrorResponse(now, description, code, msg)
}

func (s *Simulator) reply(now time.Time, status string, code int, msg, section string, records []map[string]any) Response {
	return newResponse(Status{
		Status:      status,
		When:        now.Unix(),
		Code:        code,
		Msg:         msg,
		Description: description,
	}, section, records)
}

func (s *Simulator) summaryRecord(now time.Time) map[string]any {
	elapsed := int64(now.Sub(s.started).Seconds())
	var mhs float64
	var accepted, rejected, hw int64
	for _, d := range s.devices {
		mhs += d.hashrate()
		accepted += d.Accepted
		rejected += d.Rejected
		hw += d.HardwareErrors
	}
	return map[string]any{
		"Elapsed":             elapsed,
		"MHS av":              mhs,
		"MHS 5s":              mhs,
		"MHS 1m":              mhs,
		"MHS 5m":              mhs,
		"MHS 15m":             mhs,
		"Found Blocks":        0,
		"Getworks":            accepted + rejected,
		"Accepted":            accepted,
		"Rejected":            rejected,
		"Hardware Errors":     hw,
		"Utility":             0.0,
		"Discarded":           0,
		"Stale":               0,
		"Get Failures":        0,
		"Local Work":          accepted + rejected,
		"Remote Failures":     0,
		"Network Blocks":      1,
		"Total MH":            mhs * float64(elapsed),
		"Work Utility":        0.0,
		"Difficulty Accepted": float64(accepted) * 4096,
		"Difficulty Rejected": float64(rejected) * 4096,
		"Difficulty Stale":    0.0,
		"Best Share":          0,
	}
}

func (s *Simulator) deviceRecords() []map[string]any {
	records := make([]map[string]any, 0, len(s.devices))
	for i, d := range s.devices {
		records = append(records, map[string]any{
			"ASC":             i,
			"Name":            d.Name,
			"ID":              i,
			"Enabled":         yesNo(d.Enabled),
			"Status":          "Alive",
			"Temperature":     d.Temperature,
			"MHS av":          d.hashrate(),
			"MHS 5s":          d.hashrate(),
			"Accepted":        d.Accepted,
			"Rejected":        d.Rejected,
			"Hardware Errors": d.HardwareErrors,
			"Frequency":       d.Frequency,
			"Chips":           d.Chips,
			"Fan Speed":       d.FanSpeed,
		})
	}
	return records
}

func (s *Simulator) poolRecords() []map[string]any {
	records := make([]map[string]any, 0, len(s.pools))
	for i, p := range s.pools {
		status := "Alive"
		if !p.Enabled {
			status = "Disabled"
		}
		records = append(records, map[string]any{
			"POOL":            i,
			"URL":             p.URL,
			"Status":          status,
			"Priority":        p.Priority,
			"User":            p.User,
			"Accepted":        p.Accepted,
			"Rejected":        p.Rejected,
			"Stale":           p.Stale,
			"Last Share Time": p.LastShareTime,
		})
	}
	return records
}

func (s *Simulator) configRecord() map[string]any {
	return map[string]any{
		"ASC Count":    len(s.devices),
		"PGA Count":    0,
		"Pool Count":   len(s.pools),
		"Strategy":     "Failover",
		"Log Interval": 5,
		"Device Code":  "GSF ",
		"OS":           "Linux",
		"Hotplug":      5,
		"Queue":        s.settings["queue"],
		"ScanTime":     s.settings["scantime"],
		"Expiry":       s.settings["expiry"],
	}
}

func (s *Simulator) usbRecords() []map[string]any {
	records := make([]map[string]any, 0, len(s.devices))
	for i, d := range s.devices {
		records = append(records, map[string]any{
			"Name":          d.Name,
			"ID":            i,
			"Stat":          "USB",
			"Seq":           0,
			"Modes":         "Bulk",
			"Count":         d.Accepted + d.Rejected,
			"Total Delay":   0.0,
			"Min Delay":     0.0,
			"Max Delay":     0.0,
			"Timeout Count": 0,
			"Error Count":   0,
		})
	}
	return records
}

func (s *Simulator) detailRecords() []map[string]any {
	records := make([]map[string]any, 0, len(s.devices))
	for i, d := range s.devices {
		records = append(records, map[string]any{
			"DEVDETAILS":  i,
			"Name":        d.Name,
			"ID":          i,
			"Driver":      "gekko",
			"Kernel":      "",
			"Model":       "GekkoScience " + d.Name,
			"Device Path": fmt.Sprintf("1:%d", i+2),
		})
	}
	return records
}

func (s *Simulator) statsRecords(now time.Time) []map[string]any {
	elapsed := int64(now.Sub(s.started).Seconds())
	records := make([]map[string]any, 0, len(s.devices))
	for i, d := range s.devices {
		records = append(records, map[string]any{
			"STATS":       i,
			"ID":          fmt.Sprintf("%s%d", d.Name, i),
			"Elapsed":     elapsed,
			"Serial":      fmt.Sprintf("SIM%05d", i),
			"Frequency":   d.Frequency,
			"FreqSel":     d.Frequency,
			"Chips":       d.Chips,
			"Temperature": d.Temperature,
			"FanSpeed":    d.FanSpeed,
			"GHGHs":       d.hashrate() / 1000,
			"Accepted":    d.Accepted,
			"Rejected":    d.Rejected,
		})
	}
	return records
}

func (s *Simulator) notifyRecords(now time.Time) []map[string]any {
	records := make([]map[string]any, 0, len(s.devices))
	for i, d := range s.devices {
		records = append(records, map[string]any{
			"NOTIFY":              i,
			"Name":                d.Name,
			"ID":                  i,
			"Last Well":           now.Unix(),
			"Last Not Well":       0,
			"Reason Not Well":     "None",
			"*Thread Fail Init":   0,
			"*Thread Zero Hash":   0,
			"*Thread Fail Queue":  0,
			"*Dev Sick Idle 60s":  0,
			"*Dev Dead Idle 600s": 0,
			"*Dev Nostart":        0,
			"*Dev Over Heat":      0,
			"*Dev Thermal Cutoff": 0,
			"*Dev Comms Error":    0,
			"*Dev Throttle":       0,
		})
	}
	return records
}

func (s *Simulator) lcdRecord(now time.Time) map[string]any {
	var mhs, temp float64
	for _, d := range s.devices {
		mhs += d.hashrate()
		if d.Temperature > temp {
			temp = d.Temperature
		}
	}
	record := map[string]any{
		"Elapsed":               int64(now.Sub(s.started).Seconds()),
		"GHS av":                mhs / 1000,
		"GHS 5m":                mhs / 1000,
		"GHS 5s":                mhs / 1000,
		"Temperature":           temp,
		"Last Share Difficulty": 4096.0,
		"Last Share Time":       0,
		"Best Share":            0,
		"Last Valid Work":       now.Unix(),
		"Found Blocks":          0,
		"Current Pool":          "",
		"User":                  "",
	}
	if current, ok := s.currentPool(); ok {
		record["Current Pool"] = s.pools[current].URL
		record["User"] = s.pools[current].User
	}
	return record
}

// currentPool returns the enabled pool with the best (lowest) priority.
func (s *Simulator) currentPool() (int, bool) {
	best := -1
	for i, p := range s.pools {
		if !p.Enabled {
			continue
		}
		if best < 0 || p.Priority < s.pools[best].Priority {
			best = i
		}
	}
	return best, best >= 0
}

func (s *Simulator) addPool(now time.Time, param string) Response {
	parts := strings.Split(param, ",")
	if len(parts) != 3 || strings.TrimSpace(parts[0]) == "" {
		return s.fail(now, codeMissingParam, "Missing pool details")
	}
	s.pools = append(s.pools, Pool{
		URL:      strings.TrimSpace(parts[0]),
		User:     strings.TrimSpace(parts[1]),
		Pass:     strings.TrimSpace(parts[2]),
		Enabled:  true,
		Priority: len(s.pools),
	})
	id := len(s.pools) - 1
	return s.ok(now, codePoolAdded, fmt.Sprintf("Added pool %d: '%s'", id, s.pools[id].URL), "", nil)
}

func (s *Simulator) removePool(now time.Time, param string) Response {
	id, resp, ok := s.poolIndex(now, param)
	if !ok {
		return resp
	}
	if len(s.pools) == 1 {
		return s.fail(now, codeLastPool, "Cannot remove last pool")
	}
	if current, found := s.currentPool(); found && current == id {
		return s.fail(now, codeActivePool, fmt.Sprintf("Cannot remove active pool %d:'%s'", id, s.pools[id].URL))
	}
	url := s.pools[id].URL
	s.pools = append(s.pools[:id], s.pools[id+1:]...)
	s.compactPriorities()
	return s.ok(now, codePoolRemoved, fmt.Sprintf("Removed pool %d:'%s'", id, url), "", nil)
}

func (s *Simulator) enablePool(now time.Time, param string) Response {
	id, resp, ok := s.poolIndex(now, param)
	if !ok {
		return resp
	}
	if s.pools[id].Enabled {
		return s.info(now, codePoolAlreadyOn, fmt.Sprintf("Pool %d:'%s' already enabled", id, s.pools[id].URL))
	}
	s.pools[id].Enabled = true
	return s.ok(now, codePoolEnabled, fmt.Sprintf("Enabling pool %d:'%s'", id, s.pools[id].URL), "", nil)
}

func (s *Simulator) disablePool(now time.Time, param string) Response {
	id, resp, ok := s.poolIndex(now, param)
	if !ok {
		return resp
	}
	if !s.pools[id].Enabled {
		return s.info(now, codePoolAlreadyOff, fmt.Sprintf("Pool %d:'%s' already disabled", id, s.pools[id].URL))
	}
	enabled := 0
	for _, p := range s.pools {
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 1 {
		return s.fail(now, codeLastPool, fmt.Sprintf("Cannot disable last active pool %d:'%s'", id, s.pools[id].URL))
	}
	s.pools[id].Enabled = false
	return s.ok(now, codePoolDisabled, fmt.Sprintf("Disabling pool %d:'%s'", id, s.pools[id].URL), "", nil)
}

func (s *Simulator) switchPool(now time.Time, param string) Response {
	id, resp, ok := s.poolIndex(now, param)
	if !ok {
		return resp
	}
	order := []int{id}
	for _, i := range s.priorityOrder() {
		if i != id {
			order = append(order, i)
		}
	}
	s.applyOrder(order)
	s.pools[id].Enabled = true
	return s.ok(now, codePoolSwitched, fmt.Sprintf("Switching to pool %d:'%s'", id, s.pools[id].URL), "", nil)
}

func (s *Simulator) poolPriority(now time.Time, param string) Response {
	if strings.TrimSpace(param) == "" {
		return s.fail(now, codeMissingParam, "Missing pool id parameter")
	}
	seen := make(map[int]bool)
	order := make([]int, 0, len(s.pools))
	for _, raw := range strings.Split(param, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || id < 0 || id >= len(s.pools) {
			return s.fail(now, codeInvalidID, fmt.Sprintf("Invalid pool id %s - range is 0 - %d", strings.TrimSpace(raw), len(s.pools)-1))
		}
		if seen[id] {
			return s.fail(now, codeInvalidID, fmt.Sprintf("Duplicate pool id %d", id))
		}
		seen[id] = true
		order = append(order, id)
	}
	for _, i := range s.priorityOrder() {
		if !seen[i] {
			order = append(order, i)
		}
	}
	s.applyOrder(order)
	return s.ok(now, codePriorities, "Changed pool priorities", "", nil)
}

func (s *Simulator) setDeviceEnabled(now time.Time, param string, enable bool) Response {
	id, resp, ok := s.deviceIndex(now, param)
	if !ok {
		return resp
	}
	switch {
	case enable && s.devices[id].Enabled:
		return s.info(now, codeASCAlreadyOn, fmt.Sprintf("ASC %d already enabled", id))
	case !enable && !s.devices[id].Enabled:
		return s.info(now, codeASCAlreadyOff, fmt.Sprintf("ASC %d already disabled", id))
	}
	s.devices[id].Enabled = enable
	if enable {
		return s.ok(now, codeASCEnabled, fmt.Sprintf("ASC %d sent enable message", id), "", nil)
	}
	return s.ok(now, codeASCDisabled, fmt.Sprintf("ASC %d set disable flag", id), "", nil)
}

func (s *Simulator) ascSet(now time.Time, param string) Response {
	parts := strings.SplitN(param, ",", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return s.fail(now, codeMissingParam, "Missing device id, option parameter")
	}
	id, resp, ok := s.deviceIndex(now, parts[0])
	if !ok {
		return resp
	}

	option := strings.ToLower(strings.TrimSpace(parts[1]))
	switch option {
	case "help":
		return s.info(now, codeASCSet, fmt.Sprintf("ASC %d set help: freq=%d-%d", id, minFrequency, maxFrequency))
	case "freq":
		if len(parts) < 3 {
			return s.fail(now, codeASCSetFailed, fmt.Sprintf("ASC %d set failed: freq requires a value", id))
		}
		freq, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || freq < minFrequency || freq > maxFrequency {
			return s.fail(now, codeASCSetFailed, fmt.Sprintf("ASC %d set failed: freq must be %d-%d", id, minFrequency, maxFrequency))
		}
		s.devices[id].Frequency = freq
		return s.ok(now, codeASCSet, fmt.Sprintf("ASC %d set OK", id), "", nil)
	default:
		return s.fail(now, codeASCSetFailed, fmt.Sprintf("ASC %d set failed: unknown option '%s'", id, option))
	}
}

func (s *Simulator) setConfig(now time.Time, param string) Response {
	name, rawValue, found := strings.Cut(param, ",")
	name = strings.ToLower(strings.TrimSpace(name))
	if !found || name == "" {
		return s.fail(now, codeMissingParam, "Missing config parameters 'name,N'")
	}
	if _, ok := s.settings[name]; !ok {
		return s.fail(now, codeNoSuchOption, fmt.Sprintf("Unknown config '%s'", name))
	}
	value, err := strconv.Atoi(strings.TrimSpace(rawValue))
	if err != nil || value < 0 {
		return s.fail(now, codeNoSuchOption, fmt.Sprintf("Invalid value for '%s'", name))
	}
	s.settings[name] = value
	return s.ok(now, codeSetConfig, fmt.Sprintf("Set config '%s' to %d", name, value), "", nil)
}

func (s *Simulator) poolIndex(now time.Time, param string) (int, Response, bool) {
	return index(param, len(s.pools), func(msg string, code int) Response {
		return s.fail(now, code, strings.ReplaceAll(msg, "%KIND%", "pool"))
	})
}

func (s *Simulator) deviceIndex(now time.Time, param string) (int, Response, bool) {
	return index(param, len(s.devices), func(msg string, code int) Response {
		return s.fail(now, code, strings.ReplaceAll(msg, "%KIND%", "ASC"))
	})
}

func index(param string, n int, fail func(string, int) Response) (int, Response, bool) {
	raw := strings.TrimSpace(param)
	if raw == "" {
		return 0, fail("Missing %KIND% id parameter", codeMissingParam), false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 || id >= n {
		return 0, fail(fmt.Sprintf("Invalid %%KIND%% id %s - range is 0 - %d", raw, n-1), codeInvalidID), false
	}
	return id, nil, true
}

// priorityOrder returns pool indexes sorted by priority.
func (s *Simulator) priorityOrder() []int {
	order := make([]int, len(s.pools))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.pools[order[a]].Priority < s.pools[order[b]].Priority
	})
	return order
}

func (s *Simulator) applyOrder(order []int) {
	for priority, i := range order {
		s.pools[i].Priority = priority
	}
}

func (s *Simulator) compactPriorities() {
	s.applyOrder(s.priorityOrder())
}

func yesNo(v bool) string {
	if v {
		return "Y"
	}
	return "N"
}

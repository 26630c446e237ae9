package minerd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/cgproxy/internal/cgminer"
)

func fixedClock() func() time.Time {
	at := time.Unix(1_700_000_000, 0)
	return func() time.Time { return at }
}

func newTestSimulator(opts ...SimulatorOption) *Simulator {
	return NewSimulator(append([]SimulatorOption{WithClock(fixedClock())}, opts...)...)
}

func twoPools() SimulatorOption {
	return WithPools(
		Pool{URL: "stratum+tcp://a.example:3333", User: "a", Pass: "x", Enabled: true, Priority: 0},
		Pool{URL: "stratum+tcp://b.example:3333", User: "b", Pass: "x", Enabled: true, Priority: 1},
	)
}

func handle(s *Simulator, command string) Response {
	return s.Handle(context.Background(), Request{Command: command}).(Response)
}

func status(t *testing.T, resp Response) Status {
	t.Helper()
	statuses, ok := resp["STATUS"].([]Status)
	require.True(t, ok)
	require.Len(t, statuses, 1)
	return statuses[0]
}

func TestSimulatorReadCommands(t *testing.T) {
	cases := []struct {
		command string
		section string
		code    int
		records int
	}{
		{command: "summary", section: "SUMMARY", code: codeSummary, records: 1},
		{command: "devs", section: "DEVS", code: codeDevs, records: 2},
		{command: "pools", section: "POOLS", code: codePools, records: 1},
		{command: "config", section: "CONFIG", code: codeConfig, records: 1},
		{command: "coin", section: "COIN", code: codeCoin, records: 1},
		{command: "usbstats", section: "USBSTATS", code: codeUSBStats, records: 2},
		{command: "devdetails", section: "DEVDETAILS", code: codeDevDetails, records: 2},
		{command: "stats", section: "STATS", code: codeStats, records: 2},
		{command: "version", section: "VERSION", code: codeVersion, records: 1},
		{command: "notify", section: "NOTIFY", code: codeNotify, records: 2},
		{command: "lcd", section: "LCD", code: codeLCD, records: 1},
	}

	s := newTestSimulator()
	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			resp := handle(s, tc.command)
			st := status(t, resp)
			require.Equal(t, StatusSuccess, st.Status)
			require.Equal(t, tc.code, st.Code)
			require.Equal(t, int64(1_700_000_000), st.When)

			records, ok := resp[tc.section].([]map[string]any)
			require.True(t, ok)
			require.Len(t, records, tc.records)
		})
	}
}

func TestSimulatorInvalidCommand(t *testing.T) {
	st := status(t, handle(newTestSimulator(), "frobnicate"))
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, codeInvalidCommand, st.Code)
	require.Equal(t, "Invalid command", st.Msg)
}

func TestSimulatorParameterField(t *testing.T) {
	s := newTestSimulator(twoPools())

	resp := s.Handle(context.Background(), Request{Command: "switchpool", Parameter: "1"}).(Response)
	require.Equal(t, codePoolSwitched, status(t, resp).Code)
	require.Equal(t, 0, s.Pools()[1].Priority)
}

func TestSimulatorAddAndRemovePool(t *testing.T) {
	s := newTestSimulator()

	st := status(t, handle(s, "addpool|stratum+tcp://c.example:3333,c,x"))
	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, codePoolAdded, st.Code)
	pools := s.Pools()
	require.Len(t, pools, 2)
	require.Equal(t, "c", pools[1].User)
	require.Equal(t, 1, pools[1].Priority)

	st = status(t, handle(s, "addpool|missing-fields"))
	require.Equal(t, StatusError, st.Status)

	st = status(t, handle(s, "removepool|0"))
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, codeActivePool, st.Code)

	st = status(t, handle(s, "removepool|1"))
	require.Equal(t, codePoolRemoved, st.Code)
	require.Len(t, s.Pools(), 1)

	st = status(t, handle(s, "removepool|0"))
	require.Equal(t, codeLastPool, st.Code)
}

func TestSimulatorEnableDisablePool(t *testing.T) {
	s := newTestSimulator(twoPools())

	st := status(t, handle(s, "enablepool|0"))
	require.Equal(t, StatusInfo, st.Status)
	require.Equal(t, codePoolAlreadyOn, st.Code)

	st = status(t, handle(s, "disablepool|0"))
	require.Equal(t, codePoolDisabled, st.Code)
	require.False(t, s.Pools()[0].Enabled)

	st = status(t, handle(s, "disablepool|0"))
	require.Equal(t, codePoolAlreadyOff, st.Code)

	st = status(t, handle(s, "disablepool|1"))
	require.Equal(t, StatusError, st.Status)
	require.Equal(t, codeLastPool, st.Code)

	st = status(t, handle(s, "enablepool|0"))
	require.Equal(t, codePoolEnabled, st.Code)

	st = status(t, handle(s, "enablepool|9"))
	require.Equal(t, codeInvalidID, st.Code)
	require.Contains(t, st.Msg, "Invalid pool id 9")

	st = status(t, handle(s, "enablepool"))
	require.Equal(t, codeMissingParam, st.Code)
}

func TestSimulatorPoolPriority(t *testing.T) {
	s := newTestSimulator(WithPools(
		Pool{URL: "a", Enabled: true, Priority: 0},
		Pool{URL: "b", Enabled: true, Priority: 1},
		Pool{URL: "c", Enabled: true, Priority: 2},
	))

	st := status(t, handle(s, "poolpriority|2,0"))
	require.Equal(t, codePriorities, st.Code)

	pools := s.Pools()
	require.Equal(t, 1, pools[0].Priority)
	require.Equal(t, 2, pools[1].Priority)
	require.Equal(t, 0, pools[2].Priority)

	lcd := handle(s, "lcd")["LCD"].([]map[string]any)
	require.Equal(t, "c", lcd[0]["Current Pool"])

	require.Equal(t, codeInvalidID, status(t, handle(s, "poolpriority|0,0")).Code)
	require.Equal(t, codeInvalidID, status(t, handle(s, "poolpriority|7")).Code)
	require.Equal(t, codeMissingParam, status(t, handle(s, "poolpriority|")).Code)
}

func TestSimulatorDevices(t *testing.T) {
	s := newTestSimulator()

	require.Equal(t, codeASCAlreadyOn, status(t, handle(s, "ascenable|0")).Code)
	require.Equal(t, codeASCDisabled, status(t, handle(s, "ascdisable|0")).Code)
	require.False(t, s.Devices()[0].Enabled)
	require.Equal(t, codeASCAlreadyOff, status(t, handle(s, "ascdisable|0")).Code)
	require.Equal(t, codeASCEnabled, status(t, handle(s, "ascenable|0")).Code)
	require.Equal(t, codeInvalidID, status(t, handle(s, "ascenable|5")).Code)

	devs := handle(s, "devs")["DEVS"].([]map[string]any)
	require.Equal(t, "Y", devs[0]["Enabled"])
}

func TestSimulatorASCSet(t *testing.T) {
	s := newTestSimulator()

	st := status(t, handle(s, "ascset|1,freq,600"))
	require.Equal(t, StatusSuccess, st.Status)
	require.Equal(t, 600, s.Devices()[1].Frequency)

	st = status(t, handle(s, "ascset|1,freq,5000"))
	require.Equal(t, codeASCSetFailed, st.Code)
	require.Equal(t, 600, s.Devices()[1].Frequency)

	st = status(t, handle(s, "ascset|1,freq"))
	require.Equal(t, codeASCSetFailed, st.Code)

	st = status(t, handle(s, "ascset|0,help"))
	require.Equal(t, StatusInfo, st.Status)

	st = status(t, handle(s, "ascset|0,voltage,9"))
	require.Contains(t, st.Msg, "unknown option 'voltage'")

	st = status(t, handle(s, "ascset|0"))
	require.Equal(t, codeMissingParam, st.Code)
}

func TestSimulatorSetConfigAndSave(t *testing.T) {
	s := newTestSimulator()

	require.Equal(t, codeSetConfig, status(t, handle(s, "setconfig|queue,4")).Code)
	cfg := handle(s, "config")["CONFIG"].([]map[string]any)
	require.Equal(t, 4, cfg[0]["Queue"])

	require.Equal(t, codeNoSuchOption, status(t, handle(s, "setconfig|turbo,1")).Code)
	require.Equal(t, codeNoSuchOption, status(t, handle(s, "setconfig|queue,-1")).Code)
	require.Equal(t, codeMissingParam, status(t, handle(s, "setconfig|queue")).Code)

	require.Equal(t, codeSaved, status(t, handle(s, "save")).Code)
	require.Equal(t, "cgminer.conf", s.Saved())
	require.Equal(t, codeSaved, status(t, handle(s, "save|/tmp/miner.conf")).Code)
	require.Equal(t, "/tmp/miner.conf", s.Saved())
}

func TestSimulatorRestartResetsElapsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewSimulator(WithClock(func() time.Time { return now }))

	now = now.Add(90 * time.Second)
	summary := handle(s, "summary")["SUMMARY"].([]map[string]any)
	require.Equal(t, int64(90), summary[0]["Elapsed"])

	require.Equal(t, codeRestart, status(t, handle(s, "restart")).Code)
	summary = handle(s, "summary")["SUMMARY"].([]map[string]any)
	require.Equal(t, int64(0), summary[0]["Elapsed"])
}

func TestSimulatorQuitRunsHook(t *testing.T) {
	quit := make(chan struct{})
	s := newTestSimulator(WithQuitHook(func() { close(quit) }))

	st := status(t, handle(s, "quit"))
	require.Equal(t, "BYE", st.Msg)

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit hook did not run")
	}
}

func TestSimulatorOverWire(t *testing.T) {
	s := NewSimulator()
	host, port := serveLoopback(t, s)

	value, err := cgminer.SendCommand(context.Background(), host, port, "pools")
	require.NoError(t, err)

	reply := value.(map[string]any)
	statuses := reply["STATUS"].([]any)
	require.Equal(t, "S", statuses[0].(map[string]any)["STATUS"])
	pools := reply["POOLS"].([]any)
	require.Len(t, pools, 1)
	require.Equal(t, "stratum+tcp://pool.example.com:3333", pools[0].(map[string]any)["URL"])

	value, err = cgminer.SendCommand(context.Background(), host, port, "ascset|0,freq,450")
	require.NoError(t, err)
	require.NotNil(t, value)
	require.Equal(t, 450, s.Devices()[0].Frequency)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/rbright/cgproxy/internal/cgminer"
	"github.com/rbright/cgproxy/internal/minerd"
)

type fakeMiner struct {
	mu       sync.Mutex
	commands []string
	replies  map[string]any
	err      error
}

func (f *fakeMiner) SendCommand(_ context.Context, command string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if f.err != nil {
		return nil, f.err
	}
	return f.replies[cgminer.Verb(command)], nil
}

func (f *fakeMiner) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func do(t *testing.T, router *gin.Engine, method, path, payload string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if payload == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(miner Commander) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(miner, nil)
}

func TestHealth(t *testing.T) {
	miner := &fakeMiner{}
	rec := do(t, newTestRouter(miner), http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Empty(t, miner.sent())
}

func TestCommandPassthrough(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{"summary": map[string]any{"ok": true}}}
	router := newTestRouter(miner)

	rec := do(t, router, http.MethodPost, "/api/command", `{"command":"summary"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"response":{"ok":true}}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/command", `{"command":"ascset","parameter":"0,freq,550"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"response":null}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/command", `{"command":"pools","parameter":""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"summary", "ascset|0,freq,550", "pools"}, miner.sent())
}

func TestCommandValidation(t *testing.T) {
	miner := &fakeMiner{}
	router := newTestRouter(miner)

	for _, payload := range []string{"", `{}`, `{"command":""}`, `{"command":null}`} {
		rec := do(t, router, http.MethodPost, "/api/command", payload)
		require.Equal(t, http.StatusBadRequest, rec.Code, payload)
		require.JSONEq(t, `{"error":"command required"}`, rec.Body.String())
	}

	rec := do(t, router, http.MethodPost, "/api/command", `{"command":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, miner.sent())
}

func TestMinerErrorMapsTo500(t *testing.T) {
	miner := &fakeMiner{err: cgminer.ErrCommandTimeout}
	router := newTestRouter(miner)

	for _, path := range []string{"/api/stats", "/api/devices", "/api/pools", "/api/version", "/api/notify"} {
		rec := do(t, router, http.MethodGet, path, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		require.JSONEq(t, `{"error":"`+cgminer.ErrCommandTimeout.Error()+`"}`, rec.Body.String())
	}

	rec := do(t, router, http.MethodPost, "/api/control/restart", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatsMapping(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{"summary": map[string]any{
		"SUMMARY": []any{map[string]any{
			"Elapsed":    float64(120),
			"MHS av":     float64(250000.5),
			"Accepted":   float64(0),
			"Best Share": float64(1024),
		}},
	}}}

	rec := do(t, newTestRouter(miner), http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode(t, rec.Body.String())
	require.Len(t, stats, 24)
	require.Equal(t, float64(120), stats["elapsed"])
	require.Equal(t, 250000.5, stats["mhsAv"])
	require.Equal(t, float64(0), stats["accepted"])
	require.Equal(t, float64(0), stats["difficultyStale"])
	require.Equal(t, float64(1024), stats["bestShare"])
}

func TestStatsWithoutSummaryIs500(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{"summary": map[string]any{"STATUS": []any{}}}}

	rec := do(t, newTestRouter(miner), http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Invalid response from CGMiner"}`, rec.Body.String())
}

func TestDevicesAndRawStatsVerbatim(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{
		"devs":  map[string]any{"DEVS": []any{map[string]any{"ASC": float64(0), "MHS av": float64(12.5)}}},
		"stats": map[string]any{"STATUS": []any{}},
	}}
	router := newTestRouter(miner)

	rec := do(t, router, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"ASC":0,"MHS av":12.5}]`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/stats/raw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestPoolsMappingDefaults(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{"pools": map[string]any{
		"POOLS": []any{map[string]any{"URL": "stratum+tcp://a:3333", "Priority": float64(0)}},
	}}}

	rec := do(t, newTestRouter(miner), http.MethodGet, "/api/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{
		"url":"stratum+tcp://a:3333","status":"Unknown","priority":0,"user":"",
		"accepted":0,"rejected":0,"frequency":0,"stale":0,"lastShareTime":0
	}]`, rec.Body.String())
}

func TestConfigAndCoinDefaultWhenAbsent(t *testing.T) {
	miner := &fakeMiner{}
	router := newTestRouter(miner)

	rec := do(t, router, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ascCount":0,"pgaCount":0,"poolCount":0,"strategy":"","logInterval":0,"deviceCode":"","os":"","hotplug":0}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/coin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"hashMethod":"","currentBlockTime":0,"currentBlockHash":"","lp":false,"networkDifficulty":0}`, rec.Body.String())
}

func TestVersionOmitsMissingFields(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{"version": map[string]any{
		"VERSION": []any{map[string]any{"CGMiner": "4.11.1", "API": "3.7"}, map[string]any{"API": "3.1"}},
	}}}

	rec := do(t, newTestRouter(miner), http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"version":[{"cgminer":"4.11.1","api":"3.7"},{"api":"3.1"}]}`, rec.Body.String())
}

func TestNotifyAndLCDCamelCase(t *testing.T) {
	miner := &fakeMiner{replies: map[string]any{
		"notify": map[string]any{"NOTIFY": []any{map[string]any{"*Dev Over Heat": float64(0), "Last Well": float64(5)}}},
		"lcd":    map[string]any{"LCD": []any{map[string]any{"GHS av": float64(1.5), "Current Pool": "x"}}},
	}}
	router := newTestRouter(miner)

	rec := do(t, router, http.MethodGet, "/api/notify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"notify":[{"devOverHeat":0,"lastWell":5}]}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/lcd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"lcd":[{"gHSAv":1.5,"currentPool":"x"}]}`, rec.Body.String())
}

func TestControlCommands(t *testing.T) {
	cases := []struct {
		path    string
		payload string
		command string
	}{
		{path: "/api/control/restart", command: "restart"},
		{path: "/api/control/quit", command: "quit"},
		{path: "/api/control/save", command: "save"},
		{path: "/api/control/save", payload: `{"filename":"/etc/cgminer.conf"}`, command: "save|/etc/cgminer.conf"},
		{path: "/api/pools/add", payload: `{"url":"stratum+tcp://p:3333","user":"w","pass":"x"}`, command: "addpool|stratum+tcp://p:3333,w,x"},
		{path: "/api/pools/remove", payload: `{"poolId":0}`, command: "removepool|0"},
		{path: "/api/pools/enable", payload: `{"poolId":"2"}`, command: "enablepool|2"},
		{path: "/api/pools/disable", payload: `{"poolId":1}`, command: "disablepool|1"},
		{path: "/api/pools/switch", payload: `{"poolId":null}`, command: "switchpool|null"},
		{path: "/api/pools/priority", payload: `{"priorities":[2,0,1]}`, command: "poolpriority|2,0,1"},
		{path: "/api/pools/priority", payload: `{"priorities":[]}`, command: "poolpriority|"},
		{path: "/api/devices/enable", payload: `{"deviceId":0}`, command: "ascenable|0"},
		{path: "/api/devices/disable", payload: `{"deviceId":1}`, command: "ascdisable|1"},
		{path: "/api/devices/set", payload: `{"deviceId":0,"option":"freq","value":550}`, command: "ascset|0,freq,550"},
		{path: "/api/devices/set", payload: `{"deviceId":0,"option":"help"}`, command: "ascset|0,help"},
		{path: "/api/devices/frequency", payload: `{"deviceId":1,"frequency":612.5}`, command: "ascset|1,freq,612.5"},
		{path: "/api/config/set", payload: `{"name":"queue","value":0}`, command: "setconfig|queue,0"},
	}

	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			miner := &fakeMiner{}
			rec := do(t, newTestRouter(miner), http.MethodPost, tc.path, tc.payload)
			require.Equal(t, http.StatusOK, rec.Code)
			require.JSONEq(t, `{"success":true,"response":null}`, rec.Body.String())
			require.Equal(t, []string{tc.command}, miner.sent())
		})
	}
}

func TestControlValidation(t *testing.T) {
	cases := []struct {
		path    string
		payload string
		message string
	}{
		{path: "/api/pools/add", payload: `{"url":"u","user":"w"}`, message: "url, user, and pass are required"},
		{path: "/api/pools/add", payload: `{"url":"u","user":"w","pass":""}`, message: "url, user, and pass are required"},
		{path: "/api/pools/remove", payload: `{}`, message: "poolId is required"},
		{path: "/api/pools/enable", payload: ``, message: "poolId is required"},
		{path: "/api/pools/priority", payload: `{"priorities":"0,1"}`, message: "priorities must be an array"},
		{path: "/api/devices/enable", payload: `{}`, message: "deviceId is required"},
		{path: "/api/devices/set", payload: `{"deviceId":0}`, message: "deviceId and option are required"},
		{path: "/api/devices/set", payload: `{"option":"freq"}`, message: "deviceId and option are required"},
		{path: "/api/devices/frequency", payload: `{"deviceId":0,"frequency":0}`, message: "deviceId and frequency are required"},
		{path: "/api/config/set", payload: `{"name":"queue"}`, message: "name and value are required"},
	}

	for _, tc := range cases {
		t.Run(tc.path+" "+tc.payload, func(t *testing.T) {
			miner := &fakeMiner{}
			rec := do(t, newTestRouter(miner), http.MethodPost, tc.path, tc.payload)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"`+tc.message+`"}`, rec.Body.String())
			require.Empty(t, miner.sent())
		})
	}
}

func TestCORSAndMetrics(t *testing.T) {
	router := newTestRouter(&fakeMiner{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cgproxy_http_requests_total")
}

func TestRoutesAgainstSimulatedMiner(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sim := minerd.NewSimulator()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- minerd.Serve(ctx, listener, sim) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	_, portText, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	client := cgminer.NewClient(cgminer.Config{Host: "127.0.0.1", Port: port, CommandTimeout: time.Second})
	router := newTestRouter(client)

	rec := do(t, router, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotZero(t, decode(t, rec.Body.String())["mhsAv"])

	rec = do(t, router, http.MethodPost, "/api/devices/frequency", `{"deviceId":1,"frequency":700}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 700, sim.Devices()[1].Frequency)

	rec = do(t, router, http.MethodGet, "/api/pools", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pools []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pools))
	require.Len(t, pools, 1)
	require.Equal(t, "Alive", pools[0]["status"])
}

func TestRefusedMinerIs500(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portText, _ := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, listener.Close())
	port, _ := strconv.Atoi(portText)

	client := cgminer.NewClient(cgminer.Config{Host: "127.0.0.1", Port: port, ConnectTimeout: time.Second})
	rec := do(t, newTestRouter(client), http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var connErr *cgminer.ConnectionError
	_, sendErr := client.SendCommand(context.Background(), "devs")
	require.True(t, errors.As(sendErr, &connErr))
	require.Contains(t, rec.Body.String(), "cgminer: connect")
}

// Package doctor runs runtime readiness diagnostics for config, the miner API,
// and the proxy's listen addresses.
package doctor

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rbright/cgproxy/internal/config"
)

// Miner is the subset of the miner client the checks exercise.
type Miner interface {
	Connect(ctx context.Context) (net.Conn, error)
	SendCommand(ctx context.Context, command string) (any, error)
}

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, miner, and listener checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, miner Miner) Report {
	checks := []Check{checkConfig(cfg)}

	connect := checkConnect(ctx, cfg.Config.Miner, miner)
	checks = append(checks, connect)
	if connect.Pass {
		checks = append(checks, checkVersion(ctx, miner))
	}

	checks = append(checks, checkListen("http.listen", cfg.Config.HTTP.ListenAddr()))
	if addr := strings.TrimSpace(cfg.Config.Health.GRPCAddr); addr != "" {
		checks = append(checks, checkListen("health.grpc_addr", addr))
	}

	return Report{Checks: checks}
}

// checkConfig reports where configuration came from.
func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("no file at %q, using defaults", cfg.Path)
	}
	if n := len(cfg.Warnings); n > 0 {
		message = fmt.Sprintf("%s (%d warning(s))", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkConnect opens and immediately closes one API connection.
func checkConnect(ctx context.Context, cfg config.MinerConfig, miner Miner) Check {
	conn, err := miner.Connect(ctx)
	if err != nil {
		return Check{Name: "miner.connect", Pass: false, Message: err.Error()}
	}
	_ = conn.Close()
	return Check{Name: "miner.connect", Pass: true, Message: fmt.Sprintf("connected to %s", cfg.Addr())}
}

// checkVersion runs a full version round trip and reports the daemon's build.
func checkVersion(ctx context.Context, miner Miner) Check {
	data, err := miner.SendCommand(ctx, "version")
	if err != nil {
		return Check{Name: "miner.version", Pass: false, Message: err.Error()}
	}

	reply, _ := data.(map[string]any)
	if status := firstOf(reply, "STATUS"); status != nil && status["STATUS"] == "E" {
		return Check{Name: "miner.version", Pass: false, Message: fmt.Sprintf("daemon error: %v", status["Msg"])}
	}
	version := firstOf(reply, "VERSION")
	if version == nil {
		return Check{Name: "miner.version", Pass: false, Message: "reply has no VERSION section"}
	}
	return Check{
		Name:    "miner.version",
		Pass:    true,
		Message: fmt.Sprintf("cgminer %v (API %v)", version["CGMiner"], version["API"]),
	}
}

// checkListen verifies addr can be bound right now.
func checkListen(name, addr string) Check {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot listen on %s: %v", addr, err)}
	}
	_ = listener.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is available", addr)}
}

func firstOf(reply map[string]any, section string) map[string]any {
	list, _ := reply[section].([]any)
	if len(list) == 0 {
		return nil
	}
	rec, _ := list[0].(map[string]any)
	return rec
}

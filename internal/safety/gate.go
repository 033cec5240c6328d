package safety

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of a policy check.
type Verdict struct {
	Allowed              bool
	Reason               string
	RequiresConfirmation bool
}

// Patterns that are never allowed in sandboxed code: process spawning,
// filesystem deletion outside the sandbox, environment and credential
// access, dynamic code evaluation.
var denyList = []string{
	"os.system", "subprocess", "shutil.rmtree",
	"os.remove", "os.unlink", "os.rmdir",
	"open('/etc", "open('/proc", "open('/sys",
	"os.environ", "__import__('os').system",
	"eval(", "exec(compile(",
}

// Patterns that are allowed but flagged for confirmation: outbound
// network mutation.
var cautionList = []string{
	"requests.post", "requests.put", "requests.delete",
	"smtplib", "socket.connect",
}

// Private and loopback ranges a sandboxed task must never reach.
var privateRanges = []string{
	"localhost", "127.0.0.1", "169.254", "10.", "192.168.",
}

// Gate performs static policy checks on code-bearing steps before
// dispatch. Deterministic substring scan, no model call, so it runs on
// every attempt at zero cost.
type Gate struct {
	deny    []string
	caution []string
}

func NewGate() *Gate {
	return &Gate{deny: denyList, caution: cautionList}
}

// CheckCode scans code against the deny and caution lists. A deny match
// blocks the step outright with zero retries; a caution match allows the
// step but marks it for downstream confirmation.
func (g *Gate) CheckCode(code string) Verdict {
	for _, pattern := range g.deny {
		if strings.Contains(code, pattern) {
			return Verdict{
				Allowed: false,
				Reason:  fmt.Sprintf("Blocked pattern detected: '%s'", pattern),
			}
		}
	}
	for _, pattern := range g.caution {
		if strings.Contains(code, pattern) {
			return Verdict{
				Allowed:              true,
				Reason:               fmt.Sprintf("Sensitive operation detected: '%s'", pattern),
				RequiresConfirmation: true,
			}
		}
	}
	return Verdict{Allowed: true}
}

// CheckTargets validates requested outbound network targets, rejecting
// private and loopback destinations.
func (g *Gate) CheckTargets(domains []string) Verdict {
	var suspicious []string
	for _, d := range domains {
		for _, r := range privateRanges {
			if strings.Contains(d, r) {
				suspicious = append(suspicious, d)
				break
			}
		}
	}
	if len(suspicious) > 0 {
		return Verdict{
			Allowed: false,
			Reason:  fmt.Sprintf("Internal network access not allowed: %s", strings.Join(suspicious, ", ")),
		}
	}
	return Verdict{Allowed: true}
}

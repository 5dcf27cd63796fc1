package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"transmute/internal/catalog"
)

// Requirement defines an external tool transmute shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to Command to read its version.
	VersionArgs []string
	// Methods are the conversion methods that need the tool.
	Methods []catalog.Method
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string           `json:"name"`
	Command     string           `json:"command"`
	Description string           `json:"description"`
	Optional    bool             `json:"optional"`
	Available   bool             `json:"available"`
	Version     string           `json:"version,omitempty"`
	Detail      string           `json:"detail,omitempty"`
	Methods     []catalog.Method `json:"methods,omitempty"`
}

var commandContext = exec.CommandContext

const versionTimeout = 5 * time.Second

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
			Methods:     req.Methods,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		if len(req.VersionArgs) > 0 {
			status.Version = firstLine(ctx, resolved, req.VersionArgs)
		}
		results = append(results, status)
	}
	return results
}

// firstLine runs binary and returns the first non-empty output line, or ""
// when the command fails.
func firstLine(ctx context.Context, binary string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := commandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}

// UnavailableMethods lists methods whose required tool is missing, in the
// order the statuses name them.
func UnavailableMethods(statuses []Status) []catalog.Method {
	var out []catalog.Method
	seen := make(map[catalog.Method]bool)
	for _, s := range statuses {
		if s.Available {
			continue
		}
		for _, m := range s.Methods {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

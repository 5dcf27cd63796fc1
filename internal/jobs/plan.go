package jobs

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/logging"
	"transmute/internal/optimize"
	"transmute/internal/route"
	"transmute/internal/services"
)

// Request asks for one file to be converted. From and Domain are optional:
// the source format is detected from the file and the domain inferred from
// the format pair.
type Request struct {
	Input     string           `json:"input"`
	From      catalog.Format   `json:"from,omitempty"`
	To        catalog.Format   `json:"to"`
	Domain    catalog.Domain   `json:"domain,omitempty"`
	Options   optimize.Options `json:"options"`
	OutputDir string           `json:"output_dir,omitempty"`
}

// Unsupported explains why no route exists.
type Unsupported struct {
	Domain    catalog.Domain   `json:"domain"`
	From      catalog.Format   `json:"from"`
	To        catalog.Format   `json:"to"`
	MaxHops   int              `json:"max_hops"`
	Reachable []catalog.Format `json:"reachable"`
}

// Message is a one-line human summary.
func (u Unsupported) Message() string {
	msg := fmt.Sprintf("no %s route from %s to %s within %d hop(s)", u.Domain, u.From, u.To, u.MaxHops)
	if len(u.Reachable) == 0 {
		return msg
	}
	names := make([]string, len(u.Reachable))
	for i, f := range u.Reachable {
		names[i] = string(f)
	}
	return msg + "; reachable: " + strings.Join(names, ", ")
}

// Plan is the outcome of planning a request. Exactly one of Route (with
// Options) or Unsupported is meaningful.
type Plan struct {
	Input           codec.Descriptor         `json:"input"`
	Domain          catalog.Domain           `json:"domain"`
	Route           route.Route              `json:"route"`
	Options         optimize.Resolved        `json:"options"`
	Characteristics optimize.Characteristics `json:"characteristics"`
	Unsupported     *Unsupported             `json:"unsupported,omitempty"`
}

// Supported reports whether a route was found.
func (p Plan) Supported() bool { return p.Unsupported == nil }

// Submission is the result of Submit. JobID is empty when the plan is
// unsupported.
type Submission struct {
	JobID string `json:"job_id,omitempty"`
	Plan  Plan   `json:"plan"`
}

// Plan validates req, resolves a route, probes the input and refines the
// options for the first hop. Invalid requests return a validation error;
// a missing route is reported through Plan.Unsupported.
func (m *Manager) Plan(ctx context.Context, req Request) (Plan, error) {
	invalid := func(msg string, err error) error {
		return services.Wrap(services.ErrValidation, "jobs", "plan", msg, err)
	}
	path := strings.TrimSpace(req.Input)
	if path == "" {
		return Plan{}, invalid("input path required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Plan{}, invalid("input unavailable", err)
	}
	if info.IsDir() {
		return Plan{}, invalid(path+" is a directory", nil)
	}
	to := catalog.ParseFormat(string(req.To))
	if to == "" {
		return Plan{}, invalid("target format required", nil)
	}
	from := catalog.ParseFormat(string(req.From))
	if from == "" {
		if from, err = m.detector.Format(path); err != nil {
			return Plan{}, err
		}
	}
	domain := req.Domain
	if domain == "" {
		var ok bool
		if domain, ok = m.resolver.InferDomain(from, to); !ok {
			return Plan{}, invalid(fmt.Sprintf("no domain knows both %s and %s", from, to), nil)
		}
	}
	if err := m.resolver.Validate(domain, from, to); err != nil {
		return Plan{}, err
	}

	input := codec.Descriptor{Path: path, Format: from, Size: info.Size()}
	rt, found := m.resolver.FindRoute(domain, from, to)
	if !found {
		reachable := m.resolver.Reachable(domain, from)
		slices.Sort(reachable)
		return Plan{
			Input:  input,
			Domain: domain,
			Unsupported: &Unsupported{
				Domain:    domain,
				From:      from,
				To:        to,
				MaxHops:   m.resolver.MaxHops(),
				Reachable: reachable,
			},
		}, nil
	}

	ch := m.characteristics(ctx, domain, input)
	plan := Plan{Input: input, Domain: domain, Route: rt, Characteristics: ch}
	if rt.IsTrivial() {
		plan.Options = optimize.Resolved{Domain: domain, Kind: catalog.KindOf(domain, to), Target: to}
		return plan, nil
	}
	resolved, err := m.optimizer.Optimize(rt.Hops[0], req.Options, ch)
	if err != nil {
		return Plan{}, err
	}
	plan.Options = resolved
	return plan, nil
}

// characteristics probes media inputs. Probe failures only cost the
// optimizer its heuristics.
func (m *Manager) characteristics(ctx context.Context, domain catalog.Domain, input codec.Descriptor) optimize.Characteristics {
	ch := optimize.Characteristics{SizeBytes: input.Size}
	if m.probe == nil {
		return ch
	}
	switch catalog.KindOf(domain, input.Format) {
	case catalog.KindVideo, catalog.KindAudio, catalog.KindImage:
	default:
		return ch
	}
	probed, err := m.probe.Analyze(ctx, input.Path)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "input probe failed; using default heuristics", "probe_failed",
			logging.Error(err),
			logging.String("input", input.Path),
			logging.String(logging.FieldErrorHint, "verify ffprobe is installed"),
			logging.String(logging.FieldImpact, "options are derived from presets only"),
		)
		return ch
	}
	if probed.SizeBytes == 0 {
		probed.SizeBytes = input.Size
	}
	return probed
}

// Submit plans req and starts a job when a route exists.
func (m *Manager) Submit(ctx context.Context, req Request) (Submission, error) {
	plan, err := m.Plan(ctx, req)
	if err != nil {
		return Submission{}, err
	}
	if !plan.Supported() {
		return Submission{Plan: plan}, nil
	}
	id, err := m.Start(plan.Input, plan.Route, plan.Options, ToDir(req.OutputDir))
	if err != nil {
		return Submission{Plan: plan}, err
	}
	return Submission{JobID: id, Plan: plan}, nil
}

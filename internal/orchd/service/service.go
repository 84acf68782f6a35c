// Package service wires every other orchd package together into the
// daemon's single coordination loop: one scheduler tick admits tasks
// onto free model/repo slots, each admitted task drives an agent epoch,
// and a task's progress through verify/review/ready/submit is advanced
// a state at a time as results come back. Nothing below this package
// calls out to a subprocess or the store directly except through the
// packages it wires; service owns the sequencing, not the mechanics.
package service

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/othala-dev/orchd/internal/orchd/agent"
	"github.com/othala-dev/orchd/internal/orchd/config"
	"github.com/othala-dev/orchd/internal/orchd/domain"
	"github.com/othala-dev/orchd/internal/orchd/eventbus"
	"github.com/othala-dev/orchd/internal/orchd/eventlog"
	"github.com/othala-dev/orchd/internal/orchd/gitdriver"
	"github.com/othala-dev/orchd/internal/orchd/graphite"
	"github.com/othala-dev/orchd/internal/orchd/lifecyclegate"
	"github.com/othala-dev/orchd/internal/orchd/orchlog"
	"github.com/othala-dev/orchd/internal/orchd/reviewgate"
	"github.com/othala-dev/orchd/internal/orchd/scheduler"
	"github.com/othala-dev/orchd/internal/orchd/stackpipeline"
	"github.com/othala-dev/orchd/internal/orchd/store"
	"github.com/othala-dev/orchd/internal/orchd/tasktimeout"
	"github.com/othala-dev/orchd/internal/orchd/verify"
)

// RepoRuntime bundles everything the service needs to act on one
// configured repository: its discovered git handle, worktree manager,
// Graphite client, verify runner, and the set of agent adapters enabled
// for it.
type RepoRuntime struct {
	Config    config.RepoConfig
	Repo      gitdriver.RepoHandle
	Git       gitdriver.CLI
	Worktrees gitdriver.WorktreeManager
	Graphite  *graphite.Client
	Verify    verify.Runner
	Adapters  map[domain.ModelKind]agent.Adapter

	// mu serializes mutating Graphite invocations against this repo;
	// the client itself is not safe for concurrent submit/restack.
	mu sync.Mutex
}

// Config wires the service's dependencies: the durable store and event
// log it persists to, the org and per-repo configuration it schedules
// against, and (optionally) a tracer for per-tick/per-epoch spans.
type Config struct {
	Store    *store.Store
	EventLog *eventlog.JsonlEventLog
	Org      config.OrgConfig
	Repos    []config.RepoConfig
	Tracer   trace.Tracer
}

// Service is the daemon's single long-lived coordinator.
type Service struct {
	store    *store.Store
	eventLog *eventlog.JsonlEventLog
	bus      *eventbus.Broker[domain.Event]
	tracer   trace.Tracer

	org config.OrgConfig

	scheduler     scheduler.Scheduler
	reviewCfg     reviewgate.Config
	submitPolicy  lifecyclegate.SubmitPolicy
	enabledModels []domain.ModelKind

	timeouts *tasktimeout.Tracker
	epochs   agent.EpochRunner

	mu        sync.Mutex
	repos     map[domain.RepoId]*RepoRuntime
	pipelines map[domain.TaskId]*stackpipeline.State
	running   map[domain.TaskId]domain.ModelKind
}

// New validates cfg and discovers every configured repository, failing
// fast if any repo path isn't a git work tree.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("service: store must not be nil")
	}
	if cfg.EventLog == nil {
		return nil, fmt.Errorf("service: event log must not be nil")
	}
	if len(cfg.Repos) == 0 {
		return nil, fmt.Errorf("service: at least one repo must be configured")
	}

	tracer := cfg.Tracer
	if tracer == nil {
		provider, err := NewTracerProvider(DefaultTracingConfig())
		if err != nil {
			return nil, fmt.Errorf("service: building default tracer: %w", err)
		}
		tracer = provider.Tracer()
	}

	perModelLimit := map[domain.ModelKind]int{
		domain.ModelClaude: cfg.Org.Concurrency.Claude,
		domain.ModelCodex:  cfg.Org.Concurrency.Codex,
		domain.ModelGemini: cfg.Org.Concurrency.Gemini,
	}

	svc := &Service{
		store:    cfg.Store,
		eventLog: cfg.EventLog,
		bus:      eventbus.NewBroker[domain.Event](),
		tracer:   tracer,

		org: cfg.Org,

		scheduler: scheduler.New(scheduler.Config{
			PerRepoLimit:  cfg.Org.Concurrency.PerRepo,
			PerModelLimit: perModelLimit,
		}),
		reviewCfg: reviewgate.Config{
			EnabledModels: cfg.Org.Models.Enabled,
			Policy:        cfg.Org.Models.Policy,
			MinApprovals:  cfg.Org.Models.MinApprovals,
		},
		submitPolicy: lifecyclegate.SubmitPolicy{
			OrgDefault: cfg.Org.Graphite.SubmitModeDefault,
			AutoSubmit: cfg.Org.Graphite.AutoSubmit,
		},
		enabledModels: cfg.Org.Models.Enabled,

		timeouts: tasktimeout.New(tasktimeout.DefaultConfig()),
		epochs:   agent.NewEpochRunner(),

		repos:     map[domain.RepoId]*RepoRuntime{},
		pipelines: map[domain.TaskId]*stackpipeline.State{},
		running:   map[domain.TaskId]domain.ModelKind{},
	}

	for _, repoCfg := range cfg.Repos {
		runtime, err := newRepoRuntime(repoCfg, cfg.Org)
		if err != nil {
			return nil, fmt.Errorf("service: setting up repo %s: %w", repoCfg.RepoID, err)
		}
		svc.repos[repoCfg.RepoID] = runtime
	}

	if err := cfg.EventLog.EnsureLayout(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	return svc, nil
}

func newRepoRuntime(repoCfg config.RepoConfig, org config.OrgConfig) (*RepoRuntime, error) {
	gitCLI := gitdriver.DefaultCLI()
	repo, err := gitdriver.DiscoverRepo(repoCfg.RepoPath, gitCLI)
	if err != nil {
		return nil, fmt.Errorf("discovering git repo: %w", err)
	}

	adapters := map[domain.ModelKind]agent.Adapter{}
	for _, model := range org.Models.Enabled {
		adapter, err := agent.DefaultAdapterFor(model)
		if err != nil {
			return nil, fmt.Errorf("building adapter for %s: %w", model, err)
		}
		adapters[model] = adapter
	}

	return &RepoRuntime{
		Config:    repoCfg,
		Repo:      repo,
		Git:       gitCLI,
		Worktrees: gitdriver.NewWorktreeManager(gitCLI, gitdriver.DefaultWorktreeRoot),
		Graphite:  graphite.NewClient(repo.Root),
		Verify:    verify.NewRunner(),
		Adapters:  adapters,
	}, nil
}

// Subscribe returns a channel of every event the service publishes, for
// a status endpoint or CLI tail.
func (s *Service) Subscribe(ctx context.Context) <-chan eventbus.Event[domain.Event] {
	return s.bus.Subscribe(ctx)
}

// Close releases resources the service owns. It does not close the
// store or event log, which outlive the service's caller.
func (s *Service) Close() error {
	s.bus.Close()
	return nil
}

func (s *Service) repoRuntime(repoID domain.RepoId) (*RepoRuntime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runtime, ok := s.repos[repoID]
	if !ok {
		return nil, fmt.Errorf("service: unknown repo %s", repoID)
	}
	return runtime, nil
}

// recordEvent persists event to the store and the JSONL log, then fans
// it out to subscribers. Persistence failures are logged, not returned:
// a dropped audit write must never abort the state transition it
// describes.
func (s *Service) recordEvent(event domain.Event) {
	if err := s.store.AppendEvent(event); err != nil {
		orchlog.ErrorErr(orchlog.CatStore, "failed to persist event", err, "event_id", event.ID, "task_id", event.TaskID)
	}
	if err := s.eventLog.AppendBoth(event); err != nil {
		orchlog.ErrorErr(orchlog.CatStore, "failed to append event log", err, "event_id", event.ID, "task_id", event.TaskID)
	}
	s.bus.Publish(string(event.Kind.Kind), event)
}

// persistTask upserts task and logs (without failing the caller) if the
// write itself fails; the in-memory Task the caller holds stays
// authoritative for the remainder of this tick either way.
func (s *Service) persistTask(task *domain.Task) {
	if err := s.store.UpsertTask(task); err != nil {
		orchlog.ErrorErr(orchlog.CatStore, "failed to persist task", err, "task_id", task.ID)
	}
}

// transition is the sole caller of domain.Transition. Every successful
// transition records a TaskStateChanged{from,to} event so a listener
// replaying the event log can reconstruct the state walk on its own; a
// caller-supplied kind records additional domain-specific detail about
// why the transition happened, as a second, separate event.
func (s *Service) transition(task *domain.Task, to domain.TaskState, kind domain.EventKind) {
	from := task.State
	if err := domain.Transition(task, to); err != nil {
		orchlog.ErrorErr(orchlog.CatService, "rejected state transition", err, "task_id", task.ID, "from", from, "to", to)
		return
	}
	s.recordEvent(domain.NewEvent(task.ID, task.RepoID, domain.EventKind{Kind: domain.EventTaskStateChanged, From: from, To: to}))
	if kind.Kind != "" {
		s.recordEvent(domain.NewEvent(task.ID, task.RepoID, kind))
	}
	s.persistTask(task)
}

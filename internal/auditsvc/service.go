// Package auditsvc runs a gather pass against a page and audits the
// resulting snapshot.
package auditsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/audit/audits"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/gather"
	"github.com/adityalohuni/formaudit/internal/report"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Observer receives gather timings and audit outcomes.
type Observer interface {
	gather.Observer
	ObserveResults(results []audit.Result)
}

type Options struct {
	Gatherers []gather.Gatherer
	Registry  *audit.Registry
	Store     *artifact.Store
	Observer  Observer
	Logger    *zap.Logger
	// Timeout bounds one gather pass. Zero leaves it to the caller's context.
	Timeout time.Duration
}

type Service struct {
	gatherers []gather.Gatherer
	registry  *audit.Registry
	store     *artifact.Store
	observer  Observer
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	latest *report.Report
	now    func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		gatherers: opts.Gatherers,
		registry:  opts.Registry,
		store:     opts.Store,
		observer:  opts.Observer,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
		now:       time.Now,
	}
	if s.gatherers == nil {
		s.gatherers = gather.Default()
	}
	if s.registry == nil {
		s.registry = audits.Default()
	}
	if s.store == nil {
		s.store = artifact.NewStore(0)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("auditsvc")
	return s
}

// Audits lists the registered audit descriptors.
func (s *Service) Audits() []audit.Meta {
	return s.registry.List()
}

// Gather extracts every artifact from the page currently loaded behind ch
// and stores the snapshot. Channel failures are returned unchanged.
func (s *Service) Gather(ctx context.Context, ch browser.Channel, url string) (artifact.Snapshot, error) {
	return s.gather(ctx, ch, url, s.gatherers)
}

func (s *Service) gather(ctx context.Context, ch browser.Channel, url string, gatherers []gather.Gatherer) (artifact.Snapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	runner := gather.Runner{Gatherers: gatherers, Logger: s.logger}
	if s.observer != nil {
		runner.Observer = s.observer
	}
	start := s.now()
	arts, err := runner.Run(ctx, gather.PassContext{Channel: ch, URL: url})
	if err != nil {
		s.logger.Warn("gather failed", zap.String("url", url), zap.Error(err))
		return artifact.Snapshot{}, err
	}
	snap := artifact.Snapshot{URL: url, GatheredAt: start, Artifacts: arts}
	snap.ID = s.store.Put(snap)
	s.logger.Info("snapshot gathered",
		zap.String("snapshot", snap.ID),
		zap.String("url", url),
		zap.Int("form_fields", len(arts.FormFields)),
		zap.Int("meta_elements", len(arts.MetaElements)),
		zap.Duration("took", s.now().Sub(start)))
	return snap, nil
}

// Audit evaluates the selected audits, or all of them, against a stored
// snapshot. An empty snapshotID means the latest one.
func (s *Service) Audit(snapshotID string, ids ...string) (report.Report, error) {
	snap, err := s.Snapshot(snapshotID)
	if err != nil {
		return report.Report{}, err
	}
	return s.audit(snap, ids)
}

func (s *Service) audit(snap artifact.Snapshot, ids []string) (report.Report, error) {
	results, err := s.registry.Run(snap.Artifacts, ids...)
	if err != nil {
		return report.Report{}, err
	}
	if s.observer != nil {
		s.observer.ObserveResults(results)
	}
	rep := report.Report{
		SnapshotID: snap.ID,
		URL:        snap.URL,
		GatheredAt: snap.GatheredAt,
		AuditedAt:  s.now(),
		Results:    results,
	}
	s.mu.Lock()
	s.latest = &rep
	s.mu.Unlock()
	return rep, nil
}

// Run gathers only the artifacts the selected audits need, then audits.
func (s *Service) Run(ctx context.Context, ch browser.Channel, url string, ids ...string) (report.Report, error) {
	required, err := s.registry.RequiredArtifacts(ids...)
	if err != nil {
		return report.Report{}, err
	}
	snap, err := s.gather(ctx, ch, url, s.gatherersFor(required))
	if err != nil {
		return report.Report{}, err
	}
	return s.audit(snap, ids)
}

func (s *Service) gatherersFor(names []artifact.Name) []gather.Gatherer {
	want := make(map[artifact.Name]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []gather.Gatherer
	for _, g := range s.gatherers {
		if want[g.Name()] {
			out = append(out, g)
		}
	}
	return out
}

// Snapshot returns a stored snapshot; an empty id means the latest.
func (s *Service) Snapshot(id string) (artifact.Snapshot, error) {
	var (
		snap artifact.Snapshot
		ok   bool
	)
	if id == "" {
		snap, ok = s.store.Latest()
	} else {
		snap, ok = s.store.Get(id)
	}
	if !ok {
		if id == "" {
			return artifact.Snapshot{}, fmt.Errorf("%w: nothing gathered yet", ErrSnapshotNotFound)
		}
		return artifact.Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return snap, nil
}

func (s *Service) Snapshots() []artifact.Snapshot {
	return s.store.List()
}

// LatestReport returns the most recent audit report.
func (s *Service) LatestReport() (report.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return report.Report{}, false
	}
	return *s.latest, true
}

// Package matching provides the application-level orchestrator that runs the
// BOM-to-mesh matcher over every scope of a product hierarchy.
package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/BOMMesh/internal/config"
	domainMatch "github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/internal/intelligence/bomtext"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// Service defines the matching application operations.
type Service interface {
	Run(ctx context.Context, req *RunRequest) (*domainMatch.Report, error)
	GetRun(ctx context.Context, runID string) (*domainMatch.Report, error)
	ListRuns(ctx context.Context, limit int) ([]domainMatch.RunSummary, error)
}

// ComponentPlan describes one sub-assembly. SourceID defaults to the
// configured pattern applied to AssemblyOrder. Parts, when present, are used
// instead of loading ModelFile.
type ComponentPlan struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	AssemblyOrder int                    `json:"assembly_order"`
	SourceID      string                 `json:"source_id,omitempty"`
	ModelFile     string                 `json:"model_file,omitempty"`
	Parts         []domainMatch.MeshNode `json:"parts,omitempty"`
}

// ProductPlan describes the top-level assembly.
type ProductPlan struct {
	Name      string                 `json:"name"`
	SourceID  string                 `json:"source_id,omitempty"`
	ModelFile string                 `json:"model_file,omitempty"`
	Parts     []domainMatch.MeshNode `json:"parts,omitempty"`
}

// RunRequest is the input of one hierarchical run.
type RunRequest struct {
	BOM             []domainMatch.BOMRecord `json:"bom"`
	Components      []ComponentPlan         `json:"components"`
	Product         *ProductPlan            `json:"product,omitempty"`
	DisableFallback bool                    `json:"disable_fallback,omitempty"`
}

// Validate rejects plans that name no scope, repeat a component id, or
// leave a component without a provenance tag.
func (r *RunRequest) Validate() error {
	if r == nil {
		return errors.New(errors.ErrCodeInvalidPlan, "request is nil")
	}
	if len(r.Components) == 0 && r.Product == nil {
		return errors.New(errors.ErrCodeInvalidPlan, "plan names no component and no product")
	}
	seen := make(map[string]struct{}, len(r.Components))
	for i, c := range r.Components {
		if strings.TrimSpace(c.ID) == "" {
			return errors.Newf(errors.ErrCodeInvalidPlan, "component %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return errors.Newf(errors.ErrCodeInvalidPlan, "component id %q appears twice", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.AssemblyOrder < 0 {
			return errors.Newf(errors.ErrCodeInvalidPlan, "component %q has a negative assembly order", c.ID)
		}
		if strings.TrimSpace(c.SourceID) == "" && c.AssemblyOrder == 0 {
			return errors.Newf(errors.ErrCodeInvalidPlan, "component %q needs a source_id or a positive assembly_order", c.ID)
		}
	}
	return nil
}

// Metrics is the subset of the metrics layer the service reports to.
type Metrics interface {
	ObserveScope(res domainMatch.ScopeResult, elapsed time.Duration)
	RunStarted() func(err error)
	IncSinkError(sink string)
}

// Dependencies are the collaborators of the service. Only Meshes is
// required; every sink may be nil.
type Dependencies struct {
	Meshes     domainMatch.MeshSource
	Fallback   domainMatch.FallbackMatcher
	Repository domainMatch.MappingRepository
	Reports    domainMatch.ReportStore
	Events     domainMatch.EventPublisher
	Metrics    Metrics
	Text       domainMatch.TextAnalyzer
	Logger     logging.Logger
}

type serviceImpl struct {
	cfg         config.MatchingConfig
	partitioner domainMatch.Partitioner
	text        domainMatch.TextAnalyzer
	matcher     *domainMatch.Matcher
	deps        Dependencies
	logger      logging.Logger
	now         func() time.Time
}

// NewService creates the matching application service.
func NewService(cfg config.MatchingConfig, deps Dependencies) (Service, error) {
	if deps.Meshes == nil {
		return nil, errors.New(errors.ErrCodeInternal, "matching service requires a mesh source")
	}
	if deps.Text == nil {
		deps.Text = bomtext.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if cfg.MaxParallelScopes < 1 {
		cfg.MaxParallelScopes = 1
	}
	return &serviceImpl{
		cfg: cfg,
		partitioner: domainMatch.Partitioner{
			ProductSourceID:        cfg.ProductSourceID,
			ProductSourceMatch:     domainMatch.SourceMatchMode(cfg.ProductSourceMatch),
			SubAssemblyMarker:      cfg.EffectiveSubAssemblyMarker(),
			ComponentSourcePattern: cfg.ComponentSourcePattern,
		},
		text:    deps.Text,
		matcher: domainMatch.NewMatcher(deps.Text),
		deps:    deps,
		logger:  deps.Logger.Named("matching"),
		now:     time.Now,
	}, nil
}

// scopeJob is everything one scope needs; jobs share no mutable state.
type scopeJob struct {
	scope   domainMatch.Scope
	records []domainMatch.BOMRecord
	nodes   []domainMatch.MeshNode
	notes   []string
}

// Run partitions the BOM, matches every scope and hands the report to the
// configured sinks. It fails only on an invalid plan or when ctx is done
// before any scope starts.
func (s *serviceImpl) Run(ctx context.Context, req *RunRequest) (report *domainMatch.Report, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.deps.Metrics != nil {
		done := s.deps.Metrics.RunStarted()
		defer func() { done(err) }()
	}

	report = &domainMatch.Report{RunID: uuid.New(), StartedAt: s.now().UTC()}
	log := s.logger.With(logging.RunID(report.RunID.String()))

	records := s.validRecords(req.BOM, log)
	jobs := s.plan(req, records, log)

	log.Info("matching run started",
		logging.Int("bom_rows", len(records)),
		logging.Int("scopes", len(jobs)),
		logging.Bool("fallback", s.deps.Fallback != nil && !req.DisableFallback))

	results := make([]domainMatch.ScopeResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelScopes)
	for i := range jobs {
		i := i
		g.Go(func() error {
			results[i] = s.runScope(gctx, jobs[i], req.DisableFallback, log)
			return nil
		})
	}
	_ = g.Wait()

	n := len(req.Components)
	report.Components = results[:n]
	if req.Product != nil {
		report.Product = &results[n]
	}
	report.FinishedAt = s.now().UTC()
	report.Summarize()

	log.Info("matching run finished",
		logging.Int("scopes", report.Summary.Scopes),
		logging.Int("skipped", report.Summary.SkippedScopes),
		logging.Int("matched_bom", report.Summary.MatchedBOM),
		logging.Int("total_bom", report.Summary.TotalBOM),
		logging.Float64("matching_rate", report.Summary.MatchingRate),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	s.publish(ctx, report, log)
	return report, nil
}

func (s *serviceImpl) validRecords(bom []domainMatch.BOMRecord, log logging.Logger) []domainMatch.BOMRecord {
	out := make([]domainMatch.BOMRecord, 0, len(bom))
	for i, r := range bom {
		if err := r.Validate(); err != nil {
			log.Warn("skipping malformed BOM row", logging.Int("row", i), logging.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out
}

// plan builds one job per component in request order, then the product.
func (s *serviceImpl) plan(req *RunRequest, records []domainMatch.BOMRecord, log logging.Logger) []scopeJob {
	jobs := make([]scopeJob, 0, len(req.Components)+1)
	for _, c := range req.Components {
		src := c.SourceID
		if src == "" && c.AssemblyOrder > 0 {
			src = s.partitioner.ComponentSourceID(c.AssemblyOrder)
		}
		jobs = append(jobs, scopeJob{
			scope: domainMatch.Scope{
				Kind:      domainMatch.ScopeComponent,
				ID:        c.ID,
				Name:      c.Name,
				SourceID:  src,
				ModelFile: c.ModelFile,
			},
			records: s.partitioner.Component(records, src),
			nodes:   c.Parts,
		})
	}

	if p := req.Product; p != nil {
		part := s.partitioner
		if p.SourceID != "" {
			part.ProductSourceID = p.SourceID
		}
		job := scopeJob{
			scope: domainMatch.Scope{
				Kind:      domainMatch.ScopeProduct,
				ID:        "product",
				Name:      p.Name,
				SourceID:  part.ProductSourceID,
				ModelFile: p.ModelFile,
			},
			records: part.Product(records),
			nodes:   p.Parts,
		}
		if n := part.Excluded(records); n > 0 {
			log.Info("sub-assembly rows excluded from product scope",
				logging.Int("excluded", n), logging.String("marker", part.SubAssemblyMarker))
			job.notes = append(job.notes, fmt.Sprintf("%d sub-assembly rows excluded", n))
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (s *serviceImpl) runScope(ctx context.Context, job scopeJob, noFallback bool, log logging.Logger) domainMatch.ScopeResult {
	start := s.now()
	scope := job.scope
	log = log.With(logging.Scope(string(scope.Kind), scope.ID))

	res := s.matchScope(ctx, job, noFallback, log)
	res.Notes = append(job.notes, res.Notes...)

	if res.Skipped {
		log.Warn("scope skipped", logging.Strings("notes", res.Notes))
	} else {
		log.Info("scope matched",
			logging.Int("bom_rows", res.TotalBOM),
			logging.Int("mesh_parts", res.TotalMeshParts),
			logging.Int("code_matched", res.CodeMatchedCount),
			logging.Int("spec_matched", res.SpecMatchedCount),
			logging.Int("ai_matched", res.AIMatchedCount),
			logging.Int("high_confidence", res.HighConfidenceProposals),
			logging.Float64("matching_rate", res.MatchingRate))
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveScope(res, s.now().Sub(start))
	}
	return res
}

func (s *serviceImpl) matchScope(ctx context.Context, job scopeJob, noFallback bool, log logging.Logger) domainMatch.ScopeResult {
	scope := job.scope
	if err := ctx.Err(); err != nil {
		return domainMatch.NewSkippedResult(scope, len(job.records), 0, "run cancelled before scope started")
	}

	parts, malformed, note := s.loadParts(ctx, job, log)
	if note != "" {
		return domainMatch.NewSkippedResult(scope, len(job.records), 0, note)
	}
	var notes []string
	if malformed > 0 {
		log.Warn("skipping malformed mesh parts", logging.Int("malformed", malformed))
		notes = append(notes, fmt.Sprintf("skipped %d malformed mesh part(s)", malformed))
	}
	if len(parts) == 0 {
		return domainMatch.NewSkippedResult(scope, len(job.records), 0,
			append(notes, "assembly contains no mesh parts")...)
	}
	if len(job.records) == 0 {
		return domainMatch.NewSkippedResult(scope, 0, len(parts),
			fmt.Sprintf("no BOM rows with source %q", scope.SourceID))
	}

	idx := domainMatch.NewIndex(job.records, s.text)
	det := s.matcher.Match(idx, parts)
	log.Debug("deterministic pass done",
		logging.Int("codes_indexed", idx.CodeCount()),
		logging.Int("specs_indexed", idx.SpecCount()),
		logging.Int("matched_parts", det.MatchedCount()),
		logging.Int("residual_parts", len(det.UnmatchedParts)))

	for _, sh := range idx.SharedSpecs(det.Matches) {
		log.Warn("spec shared by several BOM codes, first indexed row wins",
			logging.String("spec", sh.Spec),
			logging.String("bound_code", sh.BoundCode),
			logging.Int("codes", len(sh.Codes)))
		notes = append(notes, fmt.Sprintf("spec %s shared by %s; bound to %s",
			sh.Spec, strings.Join(sh.Codes, ", "), sh.BoundCode))
	}

	var proposals []domainMatch.AIMatch
	if s.deps.Fallback != nil && !noFallback && len(det.UnmatchedParts) > 0 && len(det.UnmatchedBOM) > 0 {
		out, err := s.deps.Fallback.Propose(ctx, domainMatch.ProposalRequest{
			Scope: scope,
			Parts: det.Residual(),
			BOM:   det.UnmatchedBOM,
		})
		if err != nil {
			log.Warn("fallback matcher failed, keeping deterministic result", logging.Err(err))
			notes = append(notes, "fallback unavailable: "+err.Error())
		} else {
			proposals = out
		}
	}

	merged := domainMatch.Merge(det.Matches, proposals)
	if merged.Dropped > 0 {
		log.Debug("candidates dropped by merge", logging.Int("dropped", merged.Dropped))
	}
	res := domainMatch.NewScopeResult(scope, idx, parts, det, merged)
	res.Notes = notes
	return res
}

// loadParts returns the scope's valid parts and how many malformed ones were
// dropped, or a skip note when no parts can be obtained.
func (s *serviceImpl) loadParts(ctx context.Context, job scopeJob, log logging.Logger) ([]domainMatch.MeshPart, int, string) {
	if job.nodes != nil {
		nodes, dropped := domainMatch.ValidNodes(job.nodes)
		return domainMatch.NewMeshParts(nodes), dropped, ""
	}
	if job.scope.ModelFile == "" {
		return nil, 0, "no model file in plan"
	}
	loaded, err := s.deps.Meshes.Load(ctx, job.scope.ModelFile)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeModelFileNotFound) {
			return nil, 0, fmt.Sprintf("model file not found: %s", job.scope.ModelFile)
		}
		if errors.IsCode(err, errors.ErrCodeInvalidPlan) {
			log.Warn("model file rejected", logging.String("model_file", job.scope.ModelFile), logging.Err(err))
			return nil, 0, fmt.Sprintf("model file rejected: %s", job.scope.ModelFile)
		}
		log.Error("loading model file failed", logging.String("model_file", job.scope.ModelFile), logging.Err(err))
		return nil, 0, fmt.Sprintf("model file unreadable: %v", err)
	}

	parts := loaded[:0:0]
	for _, p := range loaded {
		if err := p.Validate(); err != nil {
			log.Debug("dropping mesh part", logging.Err(err))
			continue
		}
		parts = append(parts, p)
	}
	return parts, len(loaded) - len(parts), ""
}

// publish hands the report to every configured sink. Failures are logged
// and counted, never returned.
func (s *serviceImpl) publish(ctx context.Context, report *domainMatch.Report, log logging.Logger) {
	var uri string
	if s.deps.Reports != nil {
		u, err := s.deps.Reports.Put(ctx, report)
		if err != nil {
			s.sinkFailed("report_store", err, log)
		} else {
			uri = u
		}
	}
	if s.deps.Repository != nil {
		if err := s.deps.Repository.Save(ctx, report); err != nil {
			s.sinkFailed("repository", err, log)
		}
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(ctx, domainMatch.NewMatchingCompletedEvent(report, uri)); err != nil {
			s.sinkFailed("events", err, log)
		}
	}
}

func (s *serviceImpl) sinkFailed(sink string, err error, log logging.Logger) {
	log.Error("report sink failed", logging.String("sink", sink), logging.Err(err))
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncSinkError(sink)
	}
}

// GetRun loads a stored report.
func (s *serviceImpl) GetRun(ctx context.Context, runID string) (*domainMatch.Report, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, errors.InvalidParam("run id must be a UUID").WithCause(err)
	}
	if s.deps.Repository == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run storage is not configured")
	}
	return s.deps.Repository.FindByRunID(ctx, id)
}

// ListRuns returns the most recent stored runs, newest first.
func (s *serviceImpl) ListRuns(ctx context.Context, limit int) ([]domainMatch.RunSummary, error) {
	if s.deps.Repository == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "run storage is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.deps.Repository.ListRecent(ctx, limit)
}

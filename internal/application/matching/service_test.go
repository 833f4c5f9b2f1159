package matching

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/internal/config"
	domainMatch "github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/internal/testutil"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type MockMeshSource struct{ mock.Mock }

func (m *MockMeshSource) Load(ctx context.Context, modelFile string) ([]domainMatch.MeshPart, error) {
	args := m.Called(ctx, modelFile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainMatch.MeshPart), args.Error(1)
}

type MockFallback struct{ mock.Mock }

func (m *MockFallback) Propose(ctx context.Context, req domainMatch.ProposalRequest) ([]domainMatch.AIMatch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainMatch.AIMatch), args.Error(1)
}

type MockRepository struct{ mock.Mock }

func (m *MockRepository) Save(ctx context.Context, report *domainMatch.Report) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockRepository) FindByRunID(ctx context.Context, runID uuid.UUID) (*domainMatch.Report, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainMatch.Report), args.Error(1)
}

func (m *MockRepository) ListRecent(ctx context.Context, limit int) ([]domainMatch.RunSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainMatch.RunSummary), args.Error(1)
}

type MockReportStore struct{ mock.Mock }

func (m *MockReportStore) Put(ctx context.Context, report *domainMatch.Report) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, event *domainMatch.MatchingCompletedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type fakeMetrics struct {
	mu         sync.Mutex
	scopes     []domainMatch.ScopeResult
	runs       int
	runErrs    int
	sinkErrors map[string]int
}

func (f *fakeMetrics) ObserveScope(res domainMatch.ScopeResult, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, res)
}

func (f *fakeMetrics) RunStarted() func(err error) {
	return func(err error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.runs++
		if err != nil {
			f.runErrs++
		}
	}
}

func (f *fakeMetrics) IncSinkError(sink string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinkErrors == nil {
		f.sinkErrors = map[string]int{}
	}
	f.sinkErrors[sink]++
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	componentSource = "组件图1.pdf"
	productSource   = "产品总图.pdf"
)

func testMatchingConfig() config.MatchingConfig {
	return config.Default().Matching
}

func newTestService(t *testing.T, deps Dependencies) *serviceImpl {
	t.Helper()
	if deps.Meshes == nil {
		deps.Meshes = new(MockMeshSource)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	svc, err := NewService(testMatchingConfig(), deps)
	require.NoError(t, err)
	return svc.(*serviceImpl)
}

func sampleBOM() []domainMatch.BOMRecord {
	return []domainMatch.BOMRecord{
		{Code: "01.09.2549", Name: "后座组件", Quantity: 1, SourceScope: componentSource},
		{Code: "01.02.0003", Name: "支架", Quantity: 2, SourceScope: componentSource},
		{Code: "02.03.0088", ProductCode: "M16*80", Name: "六角螺栓", Quantity: 8, SourceScope: productSource},
		{Code: "01.09.2549", Name: "后座组件", Quantity: 1, SourceScope: productSource},
	}
}

func componentPlan() ComponentPlan {
	return ComponentPlan{
		ID:            "C1",
		Name:          "后座组件",
		AssemblyOrder: 1,
		Parts: []domainMatch.MeshNode{
			{NodeID: "n0", Name: "01.09.2549-后座组件"},
			{NodeID: "n1", Name: "bracket_left"},
		},
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestNewService_RequiresMeshSource(t *testing.T) {
	_, err := NewService(testMatchingConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestRun_InvalidPlan(t *testing.T) {
	svc := newTestService(t, Dependencies{})

	tests := []struct {
		name string
		req  *RunRequest
	}{
		{"nil", nil},
		{"no scopes", &RunRequest{BOM: sampleBOM()}},
		{"empty id", &RunRequest{Components: []ComponentPlan{{Name: "x"}}}},
		{"duplicate id", &RunRequest{Components: []ComponentPlan{{ID: "A", AssemblyOrder: 1}, {ID: "A", AssemblyOrder: 2}}}},
		{"negative order", &RunRequest{Components: []ComponentPlan{{ID: "A", AssemblyOrder: -1}}}},
		{"no provenance", &RunRequest{BOM: []domainMatch.BOMRecord{{Code: "09.09.0001", Name: "stray"}},
			Components: []ComponentPlan{{ID: "A", Parts: []domainMatch.MeshNode{{Name: "09.09.0001"}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidPlan))
		})
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	metrics := &fakeMetrics{}
	svc := newTestService(t, Dependencies{Metrics: metrics})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{componentPlan()}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, metrics.runs)
}

func TestRun_ComponentAndProduct(t *testing.T) {
	meshes := new(MockMeshSource)
	meshes.On("Load", mock.Anything, "product.glb").Return(
		domainMatch.NewMeshParts([]domainMatch.MeshNode{{NodeID: "p0", Name: "M16×80 六角螺栓"}}), nil)
	metrics := &fakeMetrics{}
	logger := testutil.NewMockLogger()

	svc := newTestService(t, Dependencies{Meshes: meshes, Metrics: metrics, Logger: logger})
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM:        sampleBOM(),
		Components: []ComponentPlan{componentPlan()},
		Product:    &ProductPlan{Name: "SPV1830", ModelFile: "product.glb"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, report.RunID)
	require.Len(t, report.Components, 1)
	c := report.Components[0]
	assert.Equal(t, componentSource, c.Scope.SourceID)
	assert.Equal(t, domainMatch.MatchMapping{"01.09.2549": {"mesh_001"}}, c.Mapping)
	assert.Equal(t, 2, c.TotalBOM)
	assert.Equal(t, 1, c.CodeMatchedCount)
	assert.InDelta(t, 0.5, c.MatchingRate, 1e-9)

	require.NotNil(t, report.Product)
	p := *report.Product
	assert.Equal(t, domainMatch.MatchMapping{"02.03.0088": {"mesh_001"}}, p.Mapping)
	assert.Equal(t, 1, p.TotalBOM, "sub-assembly row must be excluded")
	assert.Equal(t, 1, p.SpecMatchedCount)
	assert.Contains(t, p.Notes, "1 sub-assembly rows excluded")

	assert.Equal(t, 2, report.Summary.Scopes)
	assert.Equal(t, 3, report.Summary.TotalBOM)
	assert.Equal(t, 2, report.Summary.MatchedBOM)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	assert.Len(t, metrics.scopes, 2)
	assert.Equal(t, 1, metrics.runs)
	assert.Zero(t, metrics.runErrs)
	assert.True(t, logger.HasMessage("info", "matching run finished"))
	meshes.AssertExpectations(t)
}

func TestRun_SkipsMalformedMeshParts(t *testing.T) {
	logger := testutil.NewMockLogger()
	svc := newTestService(t, Dependencies{Logger: logger})

	plan := componentPlan()
	plan.Parts = []domainMatch.MeshNode{{NodeID: "n0", Name: "01.09.2549-后座组件"}, {}, {}}
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{plan}})
	require.NoError(t, err)

	require.Len(t, report.Components, 1)
	c := report.Components[0]
	assert.False(t, c.Skipped)
	assert.Equal(t, 1, c.TotalMeshParts)
	assert.Len(t, c.Details, 1)
	assert.Equal(t, domainMatch.MatchMapping{"01.09.2549": {"mesh_001"}}, c.Mapping)
	assert.Contains(t, c.Notes, "skipped 2 malformed mesh part(s)")
	assert.True(t, logger.HasMessage("warn", "skipping malformed mesh parts"))
}

func TestRun_DropsInvalidPartsFromMeshSource(t *testing.T) {
	meshes := new(MockMeshSource)
	meshes.On("Load", mock.Anything, "c1.glb").Return([]domainMatch.MeshPart{
		{NodeID: "n0", RawName: "01.09.2549-后座组件", MeshID: "mesh_001"},
		{MeshID: "mesh_002"},
		{NodeID: "n2", RawName: "bracket"},
	}, nil)
	svc := newTestService(t, Dependencies{Meshes: meshes})

	plan := componentPlan()
	plan.Parts = nil
	plan.ModelFile = "c1.glb"
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{plan}})
	require.NoError(t, err)

	c := report.Components[0]
	assert.Equal(t, 1, c.TotalMeshParts)
	assert.Contains(t, c.Notes, "skipped 2 malformed mesh part(s)")
}

func TestRun_AllPartsMalformedSkipsScope(t *testing.T) {
	svc := newTestService(t, Dependencies{})

	plan := componentPlan()
	plan.Parts = []domainMatch.MeshNode{{}, {NodeID: "  "}}
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{plan}})
	require.NoError(t, err)

	c := report.Components[0]
	assert.True(t, c.Skipped)
	assert.Equal(t, []string{"skipped 2 malformed mesh part(s)", "assembly contains no mesh parts"}, c.Notes)
}

func TestRun_RejectedModelFileSkipsScope(t *testing.T) {
	meshes := new(MockMeshSource)
	meshes.On("Load", mock.Anything, "../etc/parts.json").Return(nil,
		errors.New(errors.ErrCodeInvalidPlan, "outside the model root"))
	logger := testutil.NewMockLogger()
	svc := newTestService(t, Dependencies{Meshes: meshes, Logger: logger})

	plan := componentPlan()
	plan.Parts = nil
	plan.ModelFile = "../etc/parts.json"
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{plan}})
	require.NoError(t, err)

	c := report.Components[0]
	assert.True(t, c.Skipped)
	assert.Equal(t, []string{"model file rejected: ../etc/parts.json"}, c.Notes)
	assert.True(t, logger.HasMessage("warn", "model file rejected"))
}

func TestRun_SkippedScopesStayInReport(t *testing.T) {
	meshes := new(MockMeshSource)
	meshes.On("Load", mock.Anything, "missing.glb").Return(nil,
		errors.New(errors.ErrCodeModelFileNotFound, "no such file"))
	meshes.On("Load", mock.Anything, "broken.glb").Return(nil,
		errors.New(errors.ErrCodeModelFileInvalid, "bad magic"))
	meshes.On("Load", mock.Anything, "empty.glb").Return([]domainMatch.MeshPart{}, nil)

	svc := newTestService(t, Dependencies{Meshes: meshes})
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM: sampleBOM(),
		Components: []ComponentPlan{
			{ID: "missing", AssemblyOrder: 1, ModelFile: "missing.glb"},
			{ID: "broken", AssemblyOrder: 1, ModelFile: "broken.glb"},
			{ID: "empty", AssemblyOrder: 1, ModelFile: "empty.glb"},
			{ID: "nofile", AssemblyOrder: 1},
			{ID: "norows", AssemblyOrder: 7, Parts: []domainMatch.MeshNode{{Name: "x"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Components, 5)

	for _, c := range report.Components {
		assert.True(t, c.Skipped, c.Scope.ID)
		assert.NotEmpty(t, c.Notes, c.Scope.ID)
		assert.Empty(t, c.Mapping, c.Scope.ID)
	}
	missing, _ := report.Component("missing")
	assert.Contains(t, missing.Notes[0], "not found")
	broken, _ := report.Component("broken")
	assert.Contains(t, broken.Notes[0], "unreadable")
	norows, _ := report.Component("norows")
	assert.Equal(t, "组件图7.pdf", norows.Scope.SourceID)
	assert.Equal(t, 1, norows.TotalMeshParts)

	assert.Equal(t, 5, report.Summary.SkippedScopes)
	assert.Zero(t, report.Summary.MatchingRate)
}

func TestRun_FallbackFillsResidual(t *testing.T) {
	fb := new(MockFallback)
	fb.On("Propose", mock.Anything, mock.MatchedBy(func(req domainMatch.ProposalRequest) bool {
		return req.Scope.ID == "C1" &&
			len(req.Parts) == 1 && req.Parts[0].MeshID == "mesh_002" &&
			len(req.BOM) == 1 && req.BOM[0].Code == "01.02.0003"
	})).Return([]domainMatch.AIMatch{
		{MeshID: "mesh_002", Code: "01.02.0003", Confidence: 0.9, Rationale: "bracket"},
	}, nil).Once()

	svc := newTestService(t, Dependencies{Fallback: fb})
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM:        sampleBOM(),
		Components: []ComponentPlan{componentPlan()},
	})
	require.NoError(t, err)

	c := report.Components[0]
	assert.Equal(t, []string{"mesh_002"}, c.Mapping["01.02.0003"])
	assert.Equal(t, 1, c.AIMatchedCount)
	assert.Equal(t, 1, c.DeterministicMatchedCount)
	assert.Equal(t, 1, c.HighConfidenceProposals)
	assert.InDelta(t, 1.0, c.MatchingRate, 1e-9)
	assert.Equal(t, "bracket", c.Details[1].Rationale)
	fb.AssertExpectations(t)
}

func TestRun_FallbackErrorKeepsDeterministicResult(t *testing.T) {
	fb := new(MockFallback)
	fb.On("Propose", mock.Anything, mock.Anything).Return(nil,
		errors.New(errors.ErrCodeFallbackUnavailable, "upstream down"))

	svc := newTestService(t, Dependencies{Fallback: fb})
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM:        sampleBOM(),
		Components: []ComponentPlan{componentPlan()},
	})
	require.NoError(t, err)

	c := report.Components[0]
	assert.False(t, c.Skipped)
	assert.Equal(t, domainMatch.MatchMapping{"01.09.2549": {"mesh_001"}}, c.Mapping)
	require.Len(t, c.Notes, 1)
	assert.Contains(t, c.Notes[0], "fallback unavailable")
}

func TestRun_DisableFallback(t *testing.T) {
	fb := new(MockFallback)
	svc := newTestService(t, Dependencies{Fallback: fb})

	_, err := svc.Run(context.Background(), &RunRequest{
		BOM:             sampleBOM(),
		Components:      []ComponentPlan{componentPlan()},
		DisableFallback: true,
	})
	require.NoError(t, err)
	fb.AssertNotCalled(t, "Propose", mock.Anything, mock.Anything)
}

func TestRun_FallbackNotCalledWithoutResidual(t *testing.T) {
	fb := new(MockFallback)
	svc := newTestService(t, Dependencies{Fallback: fb})

	plan := componentPlan()
	plan.Parts = plan.Parts[:1]
	_, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{plan}})
	require.NoError(t, err)
	fb.AssertNotCalled(t, "Propose", mock.Anything, mock.Anything)
}

func TestRun_MalformedRowsSkipped(t *testing.T) {
	logger := testutil.NewMockLogger()
	svc := newTestService(t, Dependencies{Logger: logger})

	bom := append(sampleBOM(),
		domainMatch.BOMRecord{Code: "01.09.9999", Quantity: -1, SourceScope: componentSource},
		domainMatch.BOMRecord{SourceScope: componentSource},
	)
	report, err := svc.Run(context.Background(), &RunRequest{BOM: bom, Components: []ComponentPlan{componentPlan()}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Components[0].TotalBOM)
	assert.Equal(t, 2, logger.CountLevel("warn"))
}

func TestRun_SinksReceiveReport(t *testing.T) {
	store := new(MockReportStore)
	repo := new(MockRepository)
	pub := new(MockPublisher)
	store.On("Put", mock.Anything, mock.Anything).Return("s3://bommesh-reports/run.json", nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e *domainMatch.MatchingCompletedEvent) bool {
		return e.ReportURI == "s3://bommesh-reports/run.json" &&
			assert.ObjectsAreEqual([]string{"component:C1"}, e.ScopeIDs)
	})).Return(nil)

	svc := newTestService(t, Dependencies{Reports: store, Repository: repo, Events: pub})
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{componentPlan()}})
	require.NoError(t, err)

	repo.AssertCalled(t, "Save", mock.Anything, report)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRun_SinkErrorsDoNotFailRun(t *testing.T) {
	store := new(MockReportStore)
	repo := new(MockRepository)
	pub := new(MockPublisher)
	store.On("Put", mock.Anything, mock.Anything).Return("", errors.New(errors.ErrCodeStorageError, "bucket gone"))
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New(errors.ErrCodeDatabaseError, "down"))
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e *domainMatch.MatchingCompletedEvent) bool {
		return e.ReportURI == ""
	})).Return(errors.New(errors.ErrCodeMessageQueueError, "no broker"))
	metrics := &fakeMetrics{}

	svc := newTestService(t, Dependencies{Reports: store, Repository: repo, Events: pub, Metrics: metrics})
	report, err := svc.Run(context.Background(), &RunRequest{BOM: sampleBOM(), Components: []ComponentPlan{componentPlan()}})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, map[string]int{"report_store": 1, "repository": 1, "events": 1}, metrics.sinkErrors)
	assert.Zero(t, metrics.runErrs)
}

func TestRun_ManyComponentsKeepPlanOrder(t *testing.T) {
	var plans []ComponentPlan
	var bom []domainMatch.BOMRecord
	for i := 1; i <= 12; i++ {
		src := fmt.Sprintf("组件图%d.pdf", i)
		plans = append(plans, ComponentPlan{
			ID:       uuid.NewString(),
			SourceID: src,
			Parts:    []domainMatch.MeshNode{{Name: "01.09.2549"}},
		})
		bom = append(bom, domainMatch.BOMRecord{Code: "01.09.2549", Name: "x", SourceScope: src})
	}

	svc := newTestService(t, Dependencies{})
	report, err := svc.Run(context.Background(), &RunRequest{BOM: bom, Components: plans})
	require.NoError(t, err)
	require.Len(t, report.Components, len(plans))
	for i, c := range report.Components {
		assert.Equal(t, plans[i].ID, c.Scope.ID)
		assert.Equal(t, []string{"mesh_001"}, c.Mapping["01.09.2549"])
	}
}

func TestRun_ProductPrefixMode(t *testing.T) {
	cfg := testMatchingConfig()
	cfg.ProductSourceMatch = "prefix"
	svc, err := NewService(cfg, Dependencies{Meshes: new(MockMeshSource), Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	bom := []domainMatch.BOMRecord{
		{Code: "02.03.0088", Name: "M16*80 螺栓", SourceScope: "产品总图-2.pdf"},
		{Code: "02.03.0099", Name: "M8*20 螺栓", SourceScope: productSource},
	}
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM: bom,
		Product: &ProductPlan{Parts: []domainMatch.MeshNode{
			{Name: "bolt M16*80"}, {Name: "bolt M8*20"},
		}},
	})
	require.NoError(t, err)
	require.NotNil(t, report.Product)
	assert.Equal(t, 2, report.Product.TotalBOM)
	assert.Equal(t, 2, report.Product.MatchedBOMCount)
}

func TestRun_NotesSharedSpec(t *testing.T) {
	svc, err := NewService(testMatchingConfig(), Dependencies{Meshes: new(MockMeshSource), Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	bom := []domainMatch.BOMRecord{
		{Code: "02.03.0088", ProductCode: "M16×80", Name: "六角螺栓", SourceScope: productSource},
		{Code: "02.03.0090", ProductCode: "M16*80", Name: "内六角螺栓", SourceScope: productSource},
	}
	report, err := svc.Run(context.Background(), &RunRequest{
		BOM:     bom,
		Product: &ProductPlan{Parts: []domainMatch.MeshNode{{Name: "M16*80"}}},
	})
	require.NoError(t, err)
	require.NotNil(t, report.Product)
	assert.Equal(t, domainMatch.MatchMapping{"02.03.0088": {"mesh_001"}}, report.Product.Mapping)
	assert.Contains(t, report.Product.Notes, "spec M16×80 shared by 02.03.0088, 02.03.0090; bound to 02.03.0088")
}

// ---------------------------------------------------------------------------
// Stored runs
// ---------------------------------------------------------------------------

func TestGetRun(t *testing.T) {
	repo := new(MockRepository)
	id := uuid.New()
	stored := &domainMatch.Report{RunID: id}
	repo.On("FindByRunID", mock.Anything, id).Return(stored, nil)

	svc := newTestService(t, Dependencies{Repository: repo})

	got, err := svc.GetRun(context.Background(), id.String())
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = svc.GetRun(context.Background(), "not-a-uuid")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestGetRun_NoRepository(t *testing.T) {
	svc := newTestService(t, Dependencies{})
	_, err := svc.GetRun(context.Background(), uuid.NewString())
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))

	_, err = svc.ListRuns(context.Background(), 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestListRuns_ClampsLimit(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListRecent", mock.Anything, 20).Return([]domainMatch.RunSummary{}, nil).Once()
	repo.On("ListRecent", mock.Anything, 100).Return([]domainMatch.RunSummary{}, nil).Once()

	svc := newTestService(t, Dependencies{Repository: repo})
	_, err := svc.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	_, err = svc.ListRuns(context.Background(), 5000)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRun_SubAssemblyMarkerOffKeepsProductRows(t *testing.T) {
	cfg := testMatchingConfig()
	cfg.SubAssemblyMarker = config.SubAssemblyMarkerOff
	svc, err := NewService(cfg, Dependencies{Meshes: new(MockMeshSource), Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), &RunRequest{
		BOM: sampleBOM(),
		Product: &ProductPlan{Name: "SPV1830", Parts: []domainMatch.MeshNode{
			{NodeID: "p0", Name: "01.09.2549-后座组件"},
		}},
	})
	require.NoError(t, err)

	require.NotNil(t, report.Product)
	p := *report.Product
	assert.Equal(t, 2, p.TotalBOM)
	assert.Equal(t, domainMatch.MatchMapping{"01.09.2549": {"mesh_001"}}, p.Mapping)
	assert.Empty(t, p.Notes)
}

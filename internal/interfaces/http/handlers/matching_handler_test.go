package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	appmatching "github.com/turtacn/BOMMesh/internal/application/matching"
	"github.com/turtacn/BOMMesh/internal/domain/matching"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
)

func init() { gin.SetMode(gin.TestMode) }

type MockMatchingService struct {
	mock.Mock
}

func (m *MockMatchingService) Run(ctx context.Context, req *appmatching.RunRequest) (*matching.Report, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*matching.Report), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMatchingService) GetRun(ctx context.Context, runID string) (*matching.Report, error) {
	args := m.Called(ctx, runID)
	if r := args.Get(0); r != nil {
		return r.(*matching.Report), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMatchingService) ListRuns(ctx context.Context, limit int) ([]matching.RunSummary, error) {
	args := m.Called(ctx, limit)
	if r := args.Get(0); r != nil {
		return r.([]matching.RunSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

type MatchingHandlerTestSuite struct {
	suite.Suite
	svc    *MockMatchingService
	router *gin.Engine
}

func (s *MatchingHandlerTestSuite) SetupTest() {
	s.svc = new(MockMatchingService)
	h := NewMatchingHandler(s.svc, nil)
	s.router = gin.New()
	s.router.POST("/runs", h.Run)
	s.router.GET("/runs", h.List)
	s.router.GET("/runs/:id", h.Get)
}

func (s *MatchingHandlerTestSuite) TearDownTest() {
	s.svc.AssertExpectations(s.T())
}

func (s *MatchingHandlerTestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *MatchingHandlerTestSuite) decodeError(w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

const runBody = `{
  "bom": [{"code":"01.09.2549","name":"后座组件","quantity":1,"source_scope":"组件图1.pdf"}],
  "components": [{"id":"C1","name":"后座","assembly_order":1,"parts":[{"node_id":"n1","name":"01.09.2549-后座组件"}]}]
}`

func (s *MatchingHandlerTestSuite) TestRun_Created() {
	report := &matching.Report{RunID: uuid.New()}
	s.svc.On("Run", mock.Anything, mock.MatchedBy(func(r *appmatching.RunRequest) bool {
		return len(r.BOM) == 1 && r.BOM[0].Code == "01.09.2549" &&
			len(r.Components) == 1 && r.Components[0].Parts[0].Name == "01.09.2549-后座组件"
	})).Return(report, nil)

	w := s.do(http.MethodPost, "/runs", runBody)

	s.Equal(http.StatusCreated, w.Code)
	var got matching.Report
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &got))
	s.Equal(report.RunID, got.RunID)
}

func (s *MatchingHandlerTestSuite) TestRun_MalformedBody() {
	w := s.do(http.MethodPost, "/runs", `{"bom":`)

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(string(pkgerrors.ErrCodeBadRequest), s.decodeError(w).Code)
	s.svc.AssertNotCalled(s.T(), "Run", mock.Anything, mock.Anything)
}

func (s *MatchingHandlerTestSuite) TestRun_InvalidPlan() {
	s.svc.On("Run", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeInvalidPlan, "plan names no component and no product"))

	w := s.do(http.MethodPost, "/runs", `{"bom":[]}`)

	s.Equal(pkgerrors.HTTPStatusForCode(pkgerrors.ErrCodeInvalidPlan), w.Code)
	resp := s.decodeError(w)
	s.Equal(string(pkgerrors.ErrCodeInvalidPlan), resp.Code)
	s.Equal("plan names no component and no product", resp.Message)
}

func (s *MatchingHandlerTestSuite) TestRun_InternalErrorIsMasked() {
	s.svc.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("pq: password=secret"))

	w := s.do(http.MethodPost, "/runs", runBody)

	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "secret")
}

func (s *MatchingHandlerTestSuite) TestGet() {
	id := uuid.New()
	s.svc.On("GetRun", mock.Anything, id.String()).Return(&matching.Report{RunID: id}, nil)

	w := s.do(http.MethodGet, "/runs/"+id.String(), "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), id.String())
}

func (s *MatchingHandlerTestSuite) TestGet_NotFound() {
	s.svc.On("GetRun", mock.Anything, "x").
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeRunNotFound, "matching run not found"))

	w := s.do(http.MethodGet, "/runs/x", "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(string(pkgerrors.ErrCodeRunNotFound), s.decodeError(w).Code)
}

func (s *MatchingHandlerTestSuite) TestGet_RepositoryUnavailable() {
	s.svc.On("GetRun", mock.Anything, "x").
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeServiceUnavailable, "run storage is not configured"))

	w := s.do(http.MethodGet, "/runs/x", "")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("run storage is not configured", s.decodeError(w).Message)
}

func (s *MatchingHandlerTestSuite) TestList() {
	runs := []matching.RunSummary{{RunID: uuid.New()}, {RunID: uuid.New()}}
	s.svc.On("ListRuns", mock.Anything, 5).Return(runs, nil)

	w := s.do(http.MethodGet, "/runs?limit=5", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var resp RunListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(2, resp.Count)
	s.Equal(runs[1].RunID, resp.Runs[1].RunID)
}

func (s *MatchingHandlerTestSuite) TestList_DefaultLimit() {
	s.svc.On("ListRuns", mock.Anything, 0).Return([]matching.RunSummary{}, nil)
	w := s.do(http.MethodGet, "/runs", "")
	s.Equal(http.StatusOK, w.Code)
}

func (s *MatchingHandlerTestSuite) TestList_BadLimit() {
	for _, q := range []string{"abc", "-1"} {
		w := s.do(http.MethodGet, "/runs?limit="+q, "")
		s.Equal(http.StatusBadRequest, w.Code, q)
	}
}

func TestMatchingHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(MatchingHandlerTestSuite))
}

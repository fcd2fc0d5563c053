/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package opsserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/scheduler"
	"github.com/acronis/go-admission/testutil"
)

type statusesFunc func() []scheduler.Status

func (f statusesFunc) Statuses() []scheduler.Status {
	return f()
}

var testStatuses = statusesFunc(func() []scheduler.Status {
	return []scheduler.Status{
		{Client: "Murli", Tier: "low", QuotaPerWindow: 10, WindowAdmitted: 3, Queued: 0},
		{Client: "Sam", Tier: "high", QuotaPerWindow: 50, WindowAdmitted: 0, Queued: 7},
	}
})

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

// RouterTestSuite is a test suite for the operations router.
type RouterTestSuite struct {
	suite.Suite
	Pprof bool

	registry *prometheus.Registry
	metrics  *scheduler.PrometheusMetrics
	router   http.Handler
}

func TestRouter(t *testing.T) {
	suite.Run(t, &RouterTestSuite{Pprof: false})
}

func TestRouterWithPprof(t *testing.T) {
	suite.Run(t, &RouterTestSuite{Pprof: true})
}

func (s *RouterTestSuite) SetupTest() {
	s.registry = prometheus.NewPedanticRegistry()
	s.metrics = scheduler.NewPrometheusMetrics()
	s.registry.MustRegister(s.metrics.AdmittedTotal, s.metrics.QueueDepth)
	s.router = NewRouter(&Config{Pprof: s.Pprof}, testStatuses, logtest.NewLogger(), Opts{Gatherer: s.registry})
}

func (s *RouterTestSuite) TestMetrics() {
	s.metrics.ForClient("Murli").AddAdmitted(3)
	s.metrics.ForClient("Sam").SetQueueDepth(7)

	resp := doGet(s.T(), s.router, PathMetrics)
	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().Contains(resp.Body.String(), `admission_admitted_requests_total{client="Murli"} 3`)
	s.Require().Contains(resp.Body.String(), `admission_queue_depth{client="Sam"} 7`)
}

func (s *RouterTestSuite) TestHealthz() {
	resp := doGet(s.T(), s.router, PathHealthz)
	s.Require().Equal(http.StatusOK, resp.Code)
}

func (s *RouterTestSuite) TestStatus() {
	resp := doGet(s.T(), s.router, PathStatus)
	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().Equal("application/json", resp.Header().Get("Content-Type"))
	s.Require().Contains(resp.Body.String(), `"windowAdmitted":3`)

	var got []scheduler.Status
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &got))
	s.Require().Equal(testStatuses(), got)

	postResp := httptest.NewRecorder()
	s.router.ServeHTTP(postResp, httptest.NewRequest(http.MethodPost, PathStatus, nil))
	s.Require().Equal(http.StatusMethodNotAllowed, postResp.Code)
}

func (s *RouterTestSuite) TestPprof() {
	resp := doGet(s.T(), s.router, PathDebug+"/pprof/")
	if s.Pprof {
		s.Require().Equal(http.StatusOK, resp.Code)
		return
	}
	s.Require().Equal(http.StatusNotFound, resp.Code)
}

func TestServer_StartStop(t *testing.T) {
	logOutput := &bytes.Buffer{}
	srv := New(&Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, testStatuses,
		logtest.NewLoggerWithOpts(logtest.LoggerOpts{Output: logOutput}))

	fatalErr := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		srv.Start(fatalErr)
	}()
	<-started
	time.Sleep(time.Millisecond * 50)

	require.NoError(t, srv.Stop(true))
	testutil.RequireNoErrorInChannel(t, fatalErr)
	require.Contains(t, logOutput.String(), "stopping operations HTTP server...")
	require.Contains(t, logOutput.String(), `"address":"127.0.0.1:0"`)
}

func TestServer_StartFailure(t *testing.T) {
	srv := New(&Config{Address: "127.0.0.1:-1"}, testStatuses, logtest.NewRecorder())
	fatalErr := make(chan error, 1)
	srv.Start(fatalErr)
	require.Error(t, <-fatalErr)
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv := New(&Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second}, testStatuses, logtest.NewRecorder())

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop(true) }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second * 3):
		require.FailNow(t, "Stop() blocks when the server was never started")
	}

	fatalErr := make(chan error, 1)
	srv.Start(fatalErr) // Returns immediately after Stop.
	testutil.RequireNoErrorInChannel(t, fatalErr)
}

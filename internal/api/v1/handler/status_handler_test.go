package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
)

type fakeGovernor struct {
	snapshot *domain.Snapshot
}

func (g *fakeGovernor) Snapshot() *domain.Snapshot { return g.snapshot }

type fakePolicy struct {
	config profiledomain.PolicyConfig
}

func (p *fakePolicy) Snapshot() profiledomain.PolicyConfig { return p.config }

func newTestRouter(governor SnapshotProvider, policy PolicyProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewStatusHandler(governor, policy).SetupRoutes(router)
	return router
}

func TestGetStatus(t *testing.T) {
	snapshot := &domain.Snapshot{
		State:          domain.GovernorState{CurrentIndex: 3},
		TargetIndex:    3,
		Profile:        profiledomain.ProfileBalanced,
		AvgUtilization: 42.5,
		CurrentFreqKHz: 431000,
		SampleOK:       true,
		Tick:           120,
	}
	router := newTestRouter(&fakeGovernor{snapshot: snapshot}, &fakePolicy{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "balanced", body["profile"])
	assert.InDelta(t, 42.5, body["avg_utilization"], 0.001)
	assert.InDelta(t, 431000, body["current_freq_khz"], 0.001)
	assert.Equal(t, true, body["sample_ok"])
}

func TestGetStatusBeforeFirstTick(t *testing.T) {
	router := newTestRouter(&fakeGovernor{}, &fakePolicy{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestGetPolicy(t *testing.T) {
	config := profiledomain.Preset(profiledomain.ProfilePowersave, 8)
	router := newTestRouter(&fakeGovernor{}, &fakePolicy{config: config})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/v1/policy", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var got profiledomain.PolicyConfig
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Equal(t, config, got, "policy serializes and round-trips unchanged")
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-analytics/internal/aggregator"
	"compliance-analytics/internal/auth"
	"compliance-analytics/internal/http/middleware"
	"compliance-analytics/internal/model"
	"compliance-analytics/internal/service"
)

const testSecret = "test-secret"

type fakeAnalytics struct {
	err error

	principal model.Principal
	sel       model.DateSelection
	vendorSel *model.DateSelection
	filter    model.EntityFilter
	internal  bool
	vendorIDs []string
	sensorReq service.SensorCheckRequest
	sensorLoc int64
}

func (f *fakeAnalytics) LocationMetrics(_ context.Context, principal model.Principal, sel model.DateSelection, filter model.EntityFilter, internal bool) (*model.DatedResponse[*aggregator.Hierarchy], error) {
	f.principal, f.sel, f.filter, f.internal = principal, sel, filter, internal
	if f.err != nil {
		return nil, f.err
	}
	resp := model.NewDatedResponse[*aggregator.Hierarchy](sel)
	for _, date := range sel.Dates() {
		resp.Put(date, aggregator.NewHierarchy())
	}
	return resp, nil
}

func (f *fakeAnalytics) ScanDetails(_ context.Context, principal model.Principal, sel model.DateSelection, internal bool) (*model.DatedResponse[[]service.ScanDetail], error) {
	f.principal, f.sel, f.internal = principal, sel, internal
	resp := model.NewDatedResponse[[]service.ScanDetail](sel)
	for _, date := range sel.Dates() {
		resp.Put(date, []service.ScanDetail{})
	}
	return resp, f.err
}

func (f *fakeAnalytics) DeviceStatuses(_ context.Context, principal model.Principal, internal bool) ([]service.DeviceStatusView, error) {
	f.principal, f.internal = principal, internal
	return []service.DeviceStatusView{}, f.err
}

func (f *fakeAnalytics) VendorMetrics(_ context.Context, principal model.Principal, sel *model.DateSelection, vendorIDs []string) ([]service.VendorLocationMetrics, error) {
	f.principal, f.vendorSel, f.vendorIDs = principal, sel, vendorIDs
	return []service.VendorLocationMetrics{}, f.err
}

func (f *fakeAnalytics) SensorCheck(_ context.Context, principal model.Principal, req service.SensorCheckRequest) ([]aggregator.CheckReading, error) {
	f.principal, f.sensorReq = principal, req
	return []aggregator.CheckReading{}, f.err
}

func (f *fakeAnalytics) SensorMetrics(_ context.Context, principal model.Principal, locationID int64) (aggregator.SensorMetrics, error) {
	f.principal, f.sensorLoc = principal, locationID
	return aggregator.SensorMetrics{}, f.err
}

func newTestRouter(t *testing.T, fake *fakeAnalytics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewHandler(fake, 7, zerolog.Nop())
	handler.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return NewRouter(handler, middleware.Auth(auth.NewParser(testSecret)), "test", nil, zerolog.Nop())
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func get(t *testing.T, r *gin.Engine, target, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzIsPublic(t *testing.T) {
	rec := get(t, newTestRouter(t, &fakeAnalytics{}), "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	r := newTestRouter(t, &fakeAnalytics{})

	rec := get(t, r, "/api/device_status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, r, "/api/device_status", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(t, r, "/api/device_status", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLocationMetrics_SingleDateReturnsBareStructure(t *testing.T) {
	fake := &fakeAnalytics{}
	userID := uuid.New()
	r := newTestRouter(t, fake)

	rec := get(t, r, "/api/location_metrics?date=2024-01-05&location_id=3&internal=true", bearer(t, userID, model.RoleService))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, userID, fake.principal.UserID)
	assert.True(t, fake.principal.IsService())
	assert.True(t, fake.sel.Single)
	require.NotNil(t, fake.filter.LocationID)
	assert.Equal(t, int64(3), *fake.filter.LocationID)
	assert.Nil(t, fake.filter.DepartmentID)
	assert.True(t, fake.internal)

	assert.JSONEq(t, `{"locations":[]}`, string(decode(t, rec)["data"]))
}

func TestLocationMetrics_RangeIsKeyedByDate(t *testing.T) {
	r := newTestRouter(t, &fakeAnalytics{})

	rec := get(t, r, "/api/location_metrics?start_date=2024-01-01&end_date=2024-01-02", bearer(t, uuid.New(), "viewer"))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{"2024-01-01":{"locations":[]},"2024-01-02":{"locations":[]}}`, string(decode(t, rec)["data"]))
}

func TestLocationMetrics_BadRequests(t *testing.T) {
	r := newTestRouter(t, &fakeAnalytics{})
	token := bearer(t, uuid.New(), "viewer")

	cases := map[string]string{
		"missing date": "/api/location_metrics",
		"bad format":   "/api/location_metrics?date=01/05/2024",
		"future":       "/api/location_metrics?date=2024-01-11",
		"inverted":     "/api/location_metrics?start_date=2024-01-05&end_date=2024-01-01",
		"too long":     "/api/location_metrics?start_date=2024-01-01&end_date=2024-01-09",
		"bad location": "/api/location_metrics?date=2024-01-05&location_id=abc",
		"bad dept":     "/api/location_metrics?date=2024-01-05&department_id=x",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := get(t, r, target, token)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec), "error")
		})
	}
}

func TestServiceErrorsMapToStatusCodes(t *testing.T) {
	token := bearer(t, uuid.New(), "viewer")
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrPermissionDenied, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := get(t, newTestRouter(t, &fakeAnalytics{err: tc.err}), "/api/location_metrics?date=2024-01-05", token)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestVendorMetrics_DatesAreOptional(t *testing.T) {
	fake := &fakeAnalytics{}
	r := newTestRouter(t, fake)
	token := bearer(t, uuid.New(), "vendor")

	rec := get(t, r, "/api/vendor_metrics?location_ids=a1,%20b2,", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, fake.vendorSel)
	assert.Equal(t, []string{"a1", "b2"}, fake.vendorIDs)

	rec = get(t, r, "/api/vendor_metrics?date=2024-01-03", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.vendorSel)
	assert.Equal(t, "2024-01-03", model.DateKey(fake.vendorSel.Start))
}

func TestScanDetailsAndDeviceStatus(t *testing.T) {
	fake := &fakeAnalytics{}
	r := newTestRouter(t, fake)
	token := bearer(t, uuid.New(), "viewer")

	rec := get(t, r, "/api/scan_details?date=2024-01-05", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decode(t, rec)["data"]))
	assert.False(t, fake.internal)

	rec = get(t, r, "/api/device_status?internal=1", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.internal)
}

func TestSensorCheck_ParsesRequest(t *testing.T) {
	fake := &fakeAnalytics{}
	r := newTestRouter(t, fake)
	token := bearer(t, uuid.New(), "reporter")

	rec := get(t, r, "/api/sensor_check?location_id=4&department_ids=7,8&start=2024-01-05T08:00:00&end=2024-01-05T10:00:00&check_id=2", token)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(4), fake.sensorReq.LocationID)
	assert.Equal(t, []int64{7, 8}, fake.sensorReq.DepartmentIDs)
	assert.Equal(t, time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC), fake.sensorReq.Start)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), fake.sensorReq.End)
	assert.Equal(t, 2, fake.sensorReq.CheckID)

	for _, target := range []string{
		"/api/sensor_check?start=2024-01-05T08:00:00&end=2024-01-05T10:00:00",
		"/api/sensor_check?location_id=4&start=08:00&end=2024-01-05T10:00:00",
		"/api/sensor_check?location_id=4&department_ids=x&start=2024-01-05T08:00:00&end=2024-01-05T10:00:00",
		"/api/sensor_check?location_id=4&start=2024-01-05T08:00:00&end=2024-01-05T10:00:00&check_id=first",
	} {
		rec := get(t, r, target, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSensorMetrics_RequiresLocation(t *testing.T) {
	fake := &fakeAnalytics{}
	r := newTestRouter(t, fake)
	token := bearer(t, uuid.New(), "technician")

	rec := get(t, r, "/api/sensor_metrics?location_id=9", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(9), fake.sensorLoc)
	assert.JSONEq(t, `{}`, string(decode(t, rec)["data"]))

	for _, target := range []string{"/api/sensor_metrics", "/api/sensor_metrics?location_id=kitchen"} {
		rec := get(t, r, target, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	rec = get(t, newTestRouter(t, &fakeAnalytics{err: service.ErrPermissionDenied}), "/api/sensor_metrics?location_id=9", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMustPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := middleware.MustPrincipal(c)
	assert.False(t, ok)

	want := model.Principal{UserID: uuid.New(), Role: "viewer"}
	middleware.SetPrincipal(c, want)
	got, ok := middleware.MustPrincipal(c)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

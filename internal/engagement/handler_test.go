package engagement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neuro-ai/internal/changefeed"
)

type engagementAPI struct {
	srv       *httptest.Server
	repo      *memRepo
	dashboard *Dashboard
}

func newEngagementAPI(t *testing.T) *engagementAPI {
	t.Helper()
	repo := newMemRepo()
	feed := changefeed.NewLocal()
	logger := zap.NewNop()

	dashboard := NewDashboard(repo, feed, slowOptions(), logger)
	require.NoError(t, dashboard.Start(context.Background()))

	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(NewPresence(repo, feed, logger), NewFeedbackService(repo, feed, logger), dashboard, logger))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		dashboard.Stop()
		feed.Close()
	})
	return &engagementAPI{srv: srv, repo: repo, dashboard: dashboard}
}

func postJSON(t *testing.T, url string, body interface{}, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHandler_HeartbeatIssuesCookieAndCounts(t *testing.T) {
	api := newEngagementAPI(t)

	resp := postJSON(t, api.srv.URL+"/visitors/heartbeat", PresenceRequest{IP: "203.0.113.7"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "203.0.113.7-"+cookie.Value, body["visitor_id"])

	assert.Eventually(t, func() bool { return api.dashboard.Counter.Count() == 1 }, time.Second, 5*time.Millisecond)

	online, err := http.Get(api.srv.URL + "/visitors/online")
	require.NoError(t, err)
	defer online.Body.Close()
	var count map[string]int
	require.NoError(t, json.NewDecoder(online.Body).Decode(&count))
	assert.Equal(t, 1, count["online_visitors"])

	leave := postJSON(t, api.srv.URL+"/visitors/leave", PresenceRequest{IP: "203.0.113.7"}, cookie)
	leave.Body.Close()
	v, _ := api.repo.visitor("203.0.113.7-" + cookie.Value)
	assert.False(t, v.IsOnline)
}

func TestHandler_Feedback(t *testing.T) {
	api := newEngagementAPI(t)

	resp := postJSON(t, api.srv.URL+"/feedback/", FeedbackRequest{FeedbackType: TrueResult})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, api.srv.URL+"/feedback/", FeedbackRequest{FeedbackType: "meh"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Eventually(t, func() bool { return api.dashboard.Analytics.Analytics().Total == 1 }, time.Second, 5*time.Millisecond)

	got, err := http.Get(api.srv.URL + "/feedback/analytics")
	require.NoError(t, err)
	defer got.Body.Close()
	var a Analytics
	require.NoError(t, json.NewDecoder(got.Body).Decode(&a))
	assert.Equal(t, 1, a.Total)
	assert.Equal(t, 100, a.Slices[0].Percent)
}

func TestHandler_DetailedFeedbackAndTestimonials(t *testing.T) {
	api := newEngagementAPI(t)

	resp := postJSON(t, api.srv.URL+"/feedback/detailed", DetailedFeedback{Name: "ana"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = postJSON(t, api.srv.URL+"/feedback/detailed", DetailedFeedback{Name: "ana", Designation: "Caregiver", StarRating: 5, Comment: "Clear."})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Eventually(t, func() bool { return len(api.dashboard.Testimonials.List()) == 1 }, time.Second, 5*time.Millisecond)

	got, err := http.Get(api.srv.URL + "/testimonials")
	require.NoError(t, err)
	defer got.Body.Close()
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(got.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0]["initial"])
	assert.Equal(t, "ana", list[0]["name"])

	export, err := http.Get(api.srv.URL + "/feedback/export.xlsx")
	require.NoError(t, err)
	export.Body.Close()
	assert.Equal(t, http.StatusOK, export.StatusCode)
}

func TestHandler_StreamSendsSnapshots(t *testing.T) {
	api := newEngagementAPI(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+"/engagement/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &snap))
	assert.NotNil(t, snap.Analytics.Slices)
}

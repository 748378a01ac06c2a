package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examattendance/internal/attendance"
	"examattendance/internal/auth"
	"examattendance/internal/export"
	"examattendance/internal/session"
	"examattendance/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testServer struct {
	router *gin.Engine
	repo   *attendance.Repository
}

func newTestServer(t *testing.T, backend store.Backend) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	repo := attendance.OpenRepository(ctx, backend, store.JSON{}, "", nil)
	svc := attendance.NewService(repo, export.XLSX{})
	manager := session.NewManager(func() *attendance.Workflow {
		return attendance.NewWorkflow(repo, attendance.WorkflowConfig{
			SubmitDelay:   10 * time.Millisecond,
			MessageTTL:    time.Minute,
			MaxImageBytes: 1 << 20,
			Location:      time.UTC,
		})
	})
	tokens := auth.TokenConfig{Issuer: "attendance", SigningKey: "secret", TTL: time.Hour}

	r := gin.New()
	New(svc, repo, auth.NewGate("8520", 0), backend, nil).
		Register(r, auth.SessionCookie(manager, tokens), auth.RequireAdmin())
	return &testServer{router: r, repo: repo}
}

// client replays the session cookie like a browser would.
type client struct {
	t      *testing.T
	srv    *testServer
	cookie *http.Cookie
}

func (s *testServer) client(t *testing.T) *client { return &client{t: t, srv: s} }

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	w := httptest.NewRecorder()
	cl.srv.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			cl.cookie = c
		}
	}
	return w
}

func (cl *client) json(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(cl.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req)
}

func (cl *client) upload(path string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "sheet.png")
	require.NoError(cl.t, err)
	_, err = fw.Write(data)
	require.NoError(cl.t, err)
	require.NoError(cl.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return cl.do(req)
}

type snapshotBody struct {
	State        string             `json:"state"`
	Draft        attendance.Draft   `json:"draft"`
	Absent       int                `json:"absentStudents"`
	Confirmation *attendance.Record `json:"confirmation"`
	Message      string             `json:"message"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (cl *client) draft() snapshotBody {
	w := cl.json(http.MethodGet, "/v1/draft", nil)
	require.Equal(cl.t, http.StatusOK, w.Code)
	return decode[snapshotBody](cl.t, w)
}

func (cl *client) login(passcode string) *httptest.ResponseRecorder {
	return cl.json(http.MethodPost, "/v1/session/login", gin.H{"passcode": passcode})
}

var ahmedDraft = gin.H{
	"observerName":      "Ahmed",
	"academicYear":      "الثانيه",
	"committeeNumber":   "12",
	"committeeLocation": "Hall B",
	"courseName":        "Math",
	"totalStudents":     30,
	"presentStudents":   25,
}

func TestSubmitConfirmStoresRecord(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	w := cl.json(http.MethodPut, "/v1/draft", ahmedDraft)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decode[snapshotBody](t, w).Absent)

	w = cl.json(http.MethodPost, "/v1/draft/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[snapshotBody](t, w)
	assert.Equal(t, "reviewing", snap.State)
	require.NotNil(t, snap.Confirmation)
	assert.Equal(t, 5, snap.Confirmation.AbsentStudents)
	assert.Zero(t, srv.repo.Len(), "nothing stored before confirmation")

	w = cl.json(http.MethodPost, "/v1/draft/confirm", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "submitting", decode[snapshotBody](t, w).State)

	w = cl.json(http.MethodPost, "/v1/draft/edit", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "busy while submitting")

	require.Eventually(t, func() bool { return cl.draft().State == "editing" }, 2*time.Second, 5*time.Millisecond)
	snap = cl.draft()
	assert.Equal(t, "شكراً Ahmed، تم إرسال الغياب بنجاح!", snap.Message)
	assert.Equal(t, attendance.Draft{}, snap.Draft)

	records := srv.repo.All()
	require.Len(t, records, 1)
	assert.Equal(t, "Ahmed", records[0].ObserverName)
	assert.Equal(t, 30, records[0].TotalStudents)
	assert.Equal(t, 25, records[0].PresentStudents)
	assert.Equal(t, 5, records[0].AbsentStudents)
}

func TestSubmitRejectsPresentAboveTotal(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	require.Equal(t, http.StatusOK, cl.json(http.MethodPut, "/v1/draft", gin.H{
		"observerName": "Sara", "totalStudents": 10, "presentStudents": 12,
	}).Code)

	w := cl.json(http.MethodPost, "/v1/draft/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, MsgPresentExceedsTotal, decode[gin.H](t, w)["error"])

	snap := cl.draft()
	assert.Equal(t, "editing", snap.State)
	assert.Equal(t, "Sara", snap.Draft.ObserverName)
	assert.Zero(t, snap.Absent)
	assert.Zero(t, srv.repo.Len())
}

func TestUpdateDraftRejectsNegativeCounts(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	w := cl.json(http.MethodPut, "/v1/draft", gin.H{"totalStudents": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditReturnsToDraftIntact(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	cl.json(http.MethodPut, "/v1/draft", ahmedDraft)
	require.Equal(t, http.StatusOK, cl.json(http.MethodPost, "/v1/draft/submit", nil).Code)

	w := cl.json(http.MethodPost, "/v1/draft/edit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[snapshotBody](t, w)
	assert.Equal(t, "editing", snap.State)
	assert.Nil(t, snap.Confirmation)
	assert.Equal(t, "Hall B", snap.Draft.CommitteeLocation)
	assert.Zero(t, srv.repo.Len())

	w = cl.json(http.MethodPost, "/v1/draft/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminLoginGatesRecords(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	w := cl.json(http.MethodPut, "/v1/session/view", gin.H{"view": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.ScreenLogin, decode[gin.H](t, w)["screen"])

	assert.Equal(t, http.StatusUnauthorized, cl.json(http.MethodGet, "/v1/records", nil).Code)

	w = cl.login("1234")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgWrongPasscode, decode[gin.H](t, w)["error"])
	assert.Equal(t, http.StatusUnauthorized, cl.json(http.MethodGet, "/v1/records", nil).Code)

	w = cl.login("8520")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.ScreenDashboard, decode[gin.H](t, w)["screen"])
	assert.Equal(t, http.StatusOK, cl.json(http.MethodGet, "/v1/records", nil).Code)

	w = cl.json(http.MethodPost, "/v1/session/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[gin.H](t, w)
	assert.Equal(t, "observer", body["view"])
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, http.StatusUnauthorized, cl.json(http.MethodGet, "/v1/records", nil).Code)
}

func TestSetViewRejectsUnknownView(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.json(http.MethodPut, "/v1/session/view", gin.H{"view": "admin"}).Code)

	w := cl.json(http.MethodPut, "/v1/session/view", gin.H{"view": "proctor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = cl.json(http.MethodPut, "/v1/session/view", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = cl.json(http.MethodGet, "/v1/session", nil)
	assert.Equal(t, "admin", decode[gin.H](t, w)["view"], "view unchanged by rejected requests")
}

func seed(t *testing.T, srv *testServer) {
	t.Helper()
	ctx := context.Background()
	srv.repo.Append(ctx, attendance.Record{ID: "2026-10-14T08:00:00.000Z", ObserverName: "Ahmed", CommitteeNumber: "12", CommitteeLocation: "Hall B", TotalStudents: 30, PresentStudents: 25, AbsentStudents: 5})
	srv.repo.Append(ctx, attendance.Record{ID: "2026-10-15T08:00:00.000Z", ObserverName: "Sara", CommitteeNumber: "7", CommitteeLocation: "Hall A", TotalStudents: 20, PresentStudents: 20, AttendanceSheetImage: "data:image/png;base64,iVBORw0KGgo="})
}

func TestListRecordsFiltersTableNotStats(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	seed(t, srv)
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.login("8520").Code)

	w := cl.json(http.MethodGet, "/v1/records?committee_location=hall%20b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[attendance.Dashboard](t, w)
	assert.Equal(t, attendance.Stats{TotalRecords: 2, TotalStudents: 50, TotalPresent: 45, AttendanceRate: "90.0%"}, dash.Stats)
	require.Len(t, dash.Records, 1)
	assert.Equal(t, "Ahmed", dash.Records[0].ObserverName)

	w = cl.json(http.MethodGet, "/v1/records", nil)
	dash = decode[attendance.Dashboard](t, w)
	require.Len(t, dash.Records, 2)
	assert.Equal(t, "Sara", dash.Records[0].ObserverName, "most recent first")

	w = cl.json(http.MethodGet, "/v1/records?date=2026-10-14", nil)
	dash = decode[attendance.Dashboard](t, w)
	require.Len(t, dash.Records, 1)
	assert.Equal(t, "Ahmed", dash.Records[0].ObserverName)
}

func TestExportRecordsAttachment(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	seed(t, srv)
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.login("8520").Code)

	w := cl.json(http.MethodGet, "/v1/records/export?observer_name=sara", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, export.FileName, params["filename"])
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestRecordImage(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	seed(t, srv)
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.login("8520").Code)

	w := cl.json(http.MethodGet, "/v1/records/image?id=2026-10-15T08:00:00.000Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), w.Body.Bytes())

	assert.Equal(t, "default-src 'none'; sandbox", w.Header().Get("Content-Security-Policy"))
	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "inline", disposition)
	assert.Equal(t, "attendance-sheet.png", params["filename"])

	w = cl.json(http.MethodGet, "/v1/records/image?id=2026-10-14T08:00:00.000Z", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = cl.json(http.MethodGet, "/v1/records/image?id=2026-10-15T08:00:00.000Z&index=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordImageSameMillisecond(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	ctx := context.Background()
	const id = "2026-10-15T08:00:00.000Z"
	srv.repo.Append(ctx, attendance.Record{ID: id, AttendanceSheetImage: "data:image/png;base64,AAE="})
	srv.repo.Append(ctx, attendance.Record{ID: id, AttendanceSheetImage: "data:image/png;base64,AgM="})
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.login("8520").Code)

	w := cl.json(http.MethodGet, "/v1/records/image?id="+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{0, 1}, w.Body.Bytes())

	w = cl.json(http.MethodGet, "/v1/records/image?id="+id+"&index=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{2, 3}, w.Body.Bytes())
}

const scriptedSVG = `<svg xmlns="http://www.w3.org/2000/svg"><script>fetch('/v1/records/export')</script></svg>`

func TestSVGAttachmentRejected(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	w := cl.upload("/v1/draft/image", []byte(scriptedSVG))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, cl.draft().Draft.AttendanceSheetImage)
}

func TestStoredSVGServedSandboxed(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	srv.repo.Append(context.Background(), attendance.Record{
		ID:                   "2026-10-15T08:00:00.000Z",
		AttendanceSheetImage: "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(scriptedSVG)),
	})
	cl := srv.client(t)
	require.Equal(t, http.StatusOK, cl.login("8520").Code)

	w := cl.json(http.MethodGet, "/v1/records/image?id=2026-10-15T08:00:00.000Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "default-src 'none'; sandbox", w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	disposition, _, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "inline", disposition)
}

func TestAttachAndClearImage(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	cl := srv.client(t)

	w := cl.upload("/v1/draft/image", pngHeader)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[snapshotBody](t, w).Draft.AttendanceSheetImage, "data:image/png;base64,")

	// Editing fields keeps the attachment.
	cl.json(http.MethodPut, "/v1/draft", ahmedDraft)
	assert.NotEmpty(t, cl.draft().Draft.AttendanceSheetImage)

	w = cl.json(http.MethodDelete, "/v1/draft/image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[snapshotBody](t, w).Draft.AttendanceSheetImage)

	w = cl.upload("/v1/draft/image", []byte("plain text, not a picture"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionsAreIndependent(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	a, b := srv.client(t), srv.client(t)

	a.json(http.MethodPut, "/v1/draft", ahmedDraft)
	require.Equal(t, http.StatusOK, a.login("8520").Code)

	assert.Empty(t, b.draft().Draft.ObserverName)
	assert.Equal(t, http.StatusUnauthorized, b.json(http.MethodGet, "/v1/records", nil).Code)
}

type failingSet struct{ *store.Memory }

func (failingSet) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestHealthzReportsDegradedStore(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	w := srv.client(t).json(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode[gin.H](t, w), "store_degraded")

	srv = newTestServer(t, failingSet{store.NewMemory()})
	srv.repo.Append(context.Background(), attendance.Record{ID: "1"})
	assert.Equal(t, 1, srv.repo.Len(), "record kept in memory")

	w = srv.client(t).json(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[gin.H](t, w)
	assert.Equal(t, true, body["store_degraded"])
	assert.Equal(t, true, body["store"])
}

func TestAcademicYears(t *testing.T) {
	srv := newTestServer(t, store.NewMemory())
	w := srv.client(t).json(http.MethodGet, "/v1/academic-years", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]string](t, w)["academicYears"], 5)
}

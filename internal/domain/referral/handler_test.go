package referral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referral/intake/internal/platform/auth"
	"github.com/referral/intake/internal/platform/render"
	"github.com/referral/intake/pkg/pagination"
)

type testServer struct {
	e      *echo.Echo
	hooks  *webhookServers
	drafts *DraftStore
	repo   ReceiptRepository
}

func newTestServer(t *testing.T, r DocumentRenderer) *testServer {
	t.Helper()
	hooks := newWebhookServers(t)
	svc, repo := newTestSubmitter(r, hooks.client())
	drafts := NewDraftStore()

	pages, err := NewPageRenderer()
	require.NoError(t, err)

	e := echo.New()
	e.Renderer = pages
	h := NewHandler(svc, drafts, repo, "site-key")
	h.RegisterRoutes(e.Group(""), e.Group("/api/v1"), e.Group("/api/v1/admin", auth.DevAuthMiddleware()))

	return &testServer{e: e, hooks: hooks, drafts: drafts, repo: repo}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req)
}

type multipartFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string][]string, files []multipartFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		part.Write(f.data)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func validFormFields() map[string][]string {
	return map[string][]string{
		formPatientName:     {"Jane Doe"},
		formPhone:           {"7045551234"},
		formEmail:           {"jane@example.com"},
		formRefDoctor:       {"Dr. Smith"},
		formRefOffice:       {"Smile Dental"},
		formCallPatient:     {"on"},
		formReason:          {"Gum Grafting", "Dental Implants"},
		formTooth:           {"17", "F", "A", "1"},
		formRadiographsSent: {"on"},
		formRadiographDate:  {"2024-02-28"},
	}
}

func decodeSubmit(t *testing.T, rec *httptest.ResponseRecorder) submitResponse {
	t.Helper()
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSubmitReferral_Multipart(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	body, ct := multipartBody(t, validFormFields(), []multipartFile{
		{field: formPickerFiles, name: "xray.png", contentType: "image/png", data: []byte("png")},
		{field: formDroppedFiles, name: "notes.txt", data: []byte("plain notes")},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/referrals", body)
	req.Header.Set(echo.HeaderContentType, ct)

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeSubmit(t, rec)
	assert.Equal(t, "https://x/doc.pdf", resp.State.GeneratedPDFURL)
	assert.Equal(t, "", resp.State.GeneralError)
	require.Len(t, resp.State.AttachedFiles, 2)
	assert.Equal(t, "xray.png", resp.State.AttachedFiles[0].Name)
	assert.Equal(t, "notes.txt", resp.State.AttachedFiles[1].Name)
	assert.Contains(t, resp.State.AttachedFiles[1].ContentType, "text/plain")

	var record SubmissionRecord
	require.NoError(t, json.Unmarshal(s.hooks.lastRecord, &record))
	assert.Equal(t, "Dental Implants, Gum Grafting", record.ReasonForReferral)
	assert.Equal(t, "1 17", record.TeethOrAreaToBeTreated.Numbers)
	assert.Equal(t, "Yes", record.Patient.CallPatientForAppointment)
	assert.Equal(t, "28-02-2024", record.Options.RadiographsSent.DateTaken)
}

func TestSubmitReferral_InvalidReturns422(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	fields := validFormFields()
	fields[formPhone] = []string{"abc"}
	body, ct := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/referrals", body)
	req.Header.Set(echo.HeaderContentType, ct)

	rec := s.do(req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeSubmit(t, rec)
	assert.Contains(t, resp.State.Errors, FieldPhone)
	assert.Equal(t, MsgCheckRequired, resp.State.GeneralError)
	assert.Equal(t, int32(0), s.hooks.docCalls.Load())
}

func TestSubmitReferral_UploadFailureReturns502(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	s.hooks.docStatus = http.StatusInternalServerError
	body, ct := multipartBody(t, validFormFields(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/referrals", body)
	req.Header.Set(echo.HeaderContentType, ct)

	rec := s.do(req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, MsgUploadFailed, decodeSubmit(t, rec).State.GeneralError)
}

func TestSubmitReferral_HTMLResponse(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	fields := validFormFields()
	fields[formPatientName] = []string{""}
	body, ct := multipartBody(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/referrals", body)
	req.Header.Set(echo.HeaderContentType, ct)
	req.Header.Set(echo.HeaderAccept, "text/html,application/xhtml+xml")

	rec := s.do(req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Patient name is required")
	assert.Contains(t, rec.Body.String(), MsgCheckRequired)
	assert.Contains(t, rec.Body.String(), `value="7045551234"`)
}

func TestFormPage(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	for _, want := range []string{
		LabelHighlight,
		TitleTeeth,
		"Dr. Christopher Ricker, DMD, MS",
		"Exposure of Impacted Tooth",
		`name="tooth" value="32"`,
		`data-sitekey="site-key"`,
		`action="/api/v1/referrals"`,
	} {
		assert.Contains(t, page, want)
	}
}

func TestDraftFlow(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})

	in := validInput()
	in.Phone = ""
	rec := s.doJSON(http.MethodPost, "/api/v1/referral-drafts", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	var draft draftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	base := "/api/v1/referral-drafts/" + draft.ID.String()

	rec = s.doJSON(http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeSubmit(t, rec).State.Errors, FieldPhone)

	in.Phone = "7045551234"
	rec = s.doJSON(http.MethodPut, base, in)
	require.Equal(t, http.StatusOK, rec.Code)

	body, ct := multipartBody(t, nil, []multipartFile{
		{field: formPickerFiles, name: "a.png", contentType: "image/png", data: []byte("a")},
		{field: formPickerFiles, name: "b.png", contentType: "image/png", data: []byte("b")},
	})
	req := httptest.NewRequest(http.MethodPost, base+"/attachments", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodDelete, base+"/attachments/0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	require.Len(t, draft.State.AttachedFiles, 1)
	assert.Equal(t, "b.png", draft.State.AttachedFiles[0].Name)

	rec = s.do(httptest.NewRequest(http.MethodDelete, base+"/attachments/7", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeSubmit(t, rec)
	assert.Equal(t, "https://x/doc.pdf", resp.State.GeneratedPDFURL)
	assert.Empty(t, resp.State.Errors)

	rec = s.do(httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	assert.Equal(t, PhaseDone, draft.State.Phase)

	rec = s.do(httptest.NewRequest(http.MethodDelete, base, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(httptest.NewRequest(http.MethodGet, base, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftRoutes_BadRequests(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/referral-drafts/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/referral-drafts/"+NewForm(FormInput{}, submittedAt).ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f := s.drafts.Create(FormInput{}, submittedAt)
	base := "/api/v1/referral-drafts/" + f.ID.String()

	rec = s.do(httptest.NewRequest(http.MethodDelete, base+"/attachments/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPost, base+"/attachments", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, base, strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, s.do(req).Code)
}

func TestDraftRoutes_ConflictWhileSubmitting(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	f := s.drafts.Create(validInput(), submittedAt)
	_, _, err := f.begin()
	require.NoError(t, err)
	base := "/api/v1/referral-drafts/" + f.ID.String()

	assert.Equal(t, http.StatusConflict, s.doJSON(http.MethodPut, base, validInput()).Code)
	assert.Equal(t, http.StatusConflict, s.doJSON(http.MethodPost, base+"/submit", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(httptest.NewRequest(http.MethodDelete, base, nil)).Code)
	assert.Equal(t, http.StatusConflict, s.do(httptest.NewRequest(http.MethodGet, base+"/preview.pdf", nil)).Code)
}

func TestPreviewDraft(t *testing.T) {
	r := render.New(render.NewTextRasterizer(1), render.Options{Title: LabelHighlight}, zerolog.Nop())
	s := newTestServer(t, r)
	f := s.drafts.Create(validInput(), submittedAt)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/referral-drafts/"+f.ID.String()+"/preview.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "doctor-form.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.NotEmpty(t, rec.Header().Get("X-Page-Count"))
	assert.Equal(t, int32(0), s.hooks.docCalls.Load())
}

func TestAdminSubmissions(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{})
	ctx := context.Background()
	ok := &Receipt{FormID: NewForm(FormInput{}, submittedAt).ID, Status: ReceiptSucceeded, CreatedAt: submittedAt}
	require.NoError(t, s.repo.Create(ctx, ok))
	require.NoError(t, s.repo.Create(ctx, &Receipt{Status: ReceiptInvalid, CreatedAt: submittedAt}))
	require.NoError(t, s.repo.Create(ctx, &Receipt{Status: ReceiptFailed, CreatedAt: submittedAt}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data       []Receipt `json:"data"`
		Total      int       `json:"total"`
		HasMore    bool      `json:"has_more"`
		NextOffset *int      `json:"next_offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 2, *page.NextOffset)
	assert.Equal(t, ReceiptFailed, page.Data[0].Status)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions?status=succeeded", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	assert.Equal(t, 1, filtered.Total)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions/"+ok.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ok.FormID, got.FormID)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions/"+ok.FormID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSubmissions_RequiresAdminRole(t *testing.T) {
	hooks := newWebhookServers(t)
	svc, repo := newTestSubmitter(&fakeRenderer{}, hooks.client())
	e := echo.New()
	viewer := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{"viewer"})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
	NewHandler(svc, NewDraftStore(), repo, "").RegisterRoutes(e.Group(""), e.Group("/api/v1"), e.Group("/api/v1/admin", viewer))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/submissions", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChecked(t *testing.T) {
	for v, want := range map[string]bool{"": false, "off": false, "false": false, "0": false, "on": true, "true": true, "yes": true} {
		assert.Equal(t, want, checked(v), "checked(%q)", v)
	}
}

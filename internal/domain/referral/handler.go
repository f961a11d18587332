package referral

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referral/intake/internal/platform/auth"
	"github.com/referral/intake/internal/platform/webhook"
	"github.com/referral/intake/pkg/pagination"
)

// Multipart field names posted by the form page.
const (
	formPatientName         = "patientName"
	formPhone               = "phone"
	formEmail               = "email"
	formCallPatient         = "callPatient"
	formRefDoctor           = "ref-doctor"
	formRefOffice           = "ref-office"
	formDoctor              = "doctor"
	formReason              = "reason"
	formTooth               = "tooth"
	formComments            = "comments"
	formCallBeforeTreatment = "callBeforeTreatment"
	formRadiographsSent     = "radiographsSent"
	formRadiographDate      = "radiographDate"
	formCaptcha             = "g-recaptcha-response"
	formPickerFiles         = "files"
	formDroppedFiles        = "attachments"
)

type Handler struct {
	svc      *Submitter
	drafts   *DraftStore
	receipts ReceiptRepository
	siteKey  string
}

func NewHandler(svc *Submitter, drafts *DraftStore, receipts ReceiptRepository, siteKey string) *Handler {
	return &Handler{svc: svc, drafts: drafts, receipts: receipts, siteKey: siteKey}
}

func (h *Handler) RegisterRoutes(site, api, admin *echo.Group) {
	site.GET("/", h.FormPage)

	api.POST("/referrals", h.SubmitReferral)

	drafts := api.Group("/referral-drafts")
	drafts.POST("", h.CreateDraft)
	drafts.GET("/:id", h.GetDraft)
	drafts.PUT("/:id", h.UpdateDraft)
	drafts.DELETE("/:id", h.DeleteDraft)
	drafts.POST("/:id/attachments", h.AddAttachments)
	drafts.DELETE("/:id/attachments/:index", h.RemoveAttachment)
	drafts.GET("/:id/preview.pdf", h.PreviewDraft)
	drafts.POST("/:id/submit", h.SubmitDraft)

	readGroup := admin.Group("", auth.RequireRole("admin"))
	readGroup.GET("/submissions", h.ListSubmissions)
	readGroup.GET("/submissions/:id", h.GetSubmission)
}

type draftResponse struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Input     FormInput `json:"input"`
	State     FormState `json:"state"`
}

func newDraftResponse(f *Form) draftResponse {
	return draftResponse{ID: f.ID, CreatedAt: f.CreatedAt, Input: f.Input(), State: f.State()}
}

// -- Page --

func (h *Handler) FormPage(c echo.Context) error {
	return c.Render(http.StatusOK, pageTemplate, h.pageData(FormInput{}, FormState{Errors: map[string]string{}}))
}

// -- One-shot submission --

func (h *Handler) SubmitReferral(c echo.Context) error {
	in, err := bindMultipartInput(c)
	if err != nil {
		return err
	}
	files, err := readUploadedFiles(c)
	if err != nil {
		return err
	}

	f := NewForm(in, h.svc.now())
	if err := f.AddAttachments(h.svc.now(), files...); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	state, err := h.svc.Submit(c.Request().Context(), f, c.RealIP())
	if wantsHTML(c) {
		return c.Render(submitStatus(err), pageTemplate, h.pageData(f.Input(), state))
	}
	return h.respondSubmit(c, f, state, err)
}

// -- Drafts --

func (h *Handler) CreateDraft(c echo.Context) error {
	var in FormInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f := h.drafts.Create(in, h.svc.now())
	return c.JSON(http.StatusCreated, newDraftResponse(f))
}

func (h *Handler) GetDraft(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDraftResponse(f))
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	var in FormInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := f.SetInput(in, h.svc.now()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, newDraftResponse(f))
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	switch err := h.drafts.Delete(id); {
	case errors.Is(err, ErrDraftNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSubmissionInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddAttachments(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	files, err := readUploadedFiles(c)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files in request")
	}
	if err := f.AddAttachments(h.svc.now(), files...); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, newDraftResponse(f))
}

func (h *Handler) RemoveAttachment(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	switch err := f.RemoveAttachment(idx, h.svc.now()); {
	case errors.Is(err, ErrAttachmentIndex):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSubmissionInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, newDraftResponse(f))
}

func (h *Handler) PreviewDraft(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Preview(c.Request().Context(), f)
	if errors.Is(err, ErrSubmissionInFlight) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render preview")
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", webhook.PDFFileName))
	c.Response().Header().Set("X-Page-Count", strconv.Itoa(doc.Pages))
	return c.Blob(http.StatusOK, "application/pdf", doc.Data)
}

func (h *Handler) SubmitDraft(c echo.Context) error {
	f, err := h.draft(c)
	if err != nil {
		return err
	}
	state, err := h.svc.Submit(c.Request().Context(), f, c.RealIP())
	return h.respondSubmit(c, f, state, err)
}

// -- Admin --

func (h *Handler) ListSubmissions(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", ReceiptSucceeded, ReceiptInvalid, ReceiptFailed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.receipts.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.receipts.GetByID(c.Request().Context(), id)
	if errors.Is(err, ErrReceiptNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// -- helpers --

type submitResponse struct {
	ID    uuid.UUID `json:"id"`
	State FormState `json:"state"`
}

func (h *Handler) respondSubmit(c echo.Context, f *Form, state FormState, err error) error {
	return c.JSON(submitStatus(err), submitResponse{ID: f.ID, State: state})
}

func submitStatus(err error) int {
	var verr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) draft(c echo.Context) (*Form, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.drafts.Get(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return f, nil
}

func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

func bindMultipartInput(c echo.Context) (FormInput, error) {
	values, err := c.FormParams()
	if err != nil {
		return FormInput{}, uploadError(err)
	}
	return FormInput{
		PatientName:               values.Get(formPatientName),
		Phone:                     values.Get(formPhone),
		Email:                     values.Get(formEmail),
		CallPatientForAppointment: checked(values.Get(formCallPatient)),
		ReferringDoctor:           values.Get(formRefDoctor),
		ReferringOffice:           values.Get(formRefOffice),
		Doctors:                   values[formDoctor],
		Reasons:                   values[formReason],
		Teeth:                     values[formTooth],
		Comments:                  values.Get(formComments),
		CallBeforeTreatment:       checked(values.Get(formCallBeforeTreatment)),
		RadiographsSent:           checked(values.Get(formRadiographsSent)),
		RadiographDate:            values.Get(formRadiographDate),
		CaptchaToken:              values.Get(formCaptcha),
	}, nil
}

// checked interprets an HTML checkbox value.
func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

// readUploadedFiles collects picker and drag-and-drop files, picker files
// first, each group in upload order.
func readUploadedFiles(c echo.Context) ([]AttachedFile, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, uploadError(err)
	}
	var out []AttachedFile
	for _, field := range []string{formPickerFiles, formDroppedFiles} {
		for _, fh := range form.File[field] {
			f, err := readFile(fh)
			if err != nil {
				return nil, uploadError(err)
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) (AttachedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return AttachedFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return AttachedFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return AttachedFile{Name: fh.Filename, ContentType: ct, Size: len(data), Data: data}, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload too large")
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

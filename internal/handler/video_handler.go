package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/level-portal-api/internal/dto"
	"github.com/noah-isme/level-portal-api/internal/models"
	appErrors "github.com/noah-isme/level-portal-api/pkg/errors"
	"github.com/noah-isme/level-portal-api/pkg/response"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

type videoService interface {
	MaxUploadBytes() int64
	Upload(ctx context.Context, in dto.UploadVideoInput) (*models.VideoAsset, error)
	RegisterExternalLink(ctx context.Context, req dto.ExternalLinkRequest) (*models.VideoAsset, error)
	ListByLevel(ctx context.Context, level int) ([]models.VideoAsset, error)
	ListAll(ctx context.Context) ([]models.VideoAsset, error)
	LookupBySheet(ctx context.Context, level, sheet int) (*models.VideoNeighbourhood, error)
	Sync(ctx context.Context) (*dto.SyncResult, error)
	Delete(ctx context.Context, id string) error
	OpenMedia(token string) (*os.File, error)
}

// VideoHandler exposes the video catalog.
type VideoHandler struct {
	service videoService
}

// NewVideoHandler constructs the handler.
func NewVideoHandler(svc videoService) *VideoHandler {
	return &VideoHandler{service: svc}
}

// Upload godoc
// @Summary Upload video
// @Description Stores the file as L{level}_{start}_{end}.mp4 and registers it
// @Tags Videos
// @Accept multipart/form-data
// @Produce json
// @Param video formData file true "Video file"
// @Param level formData int true "Level"
// @Param sheetStart formData int true "First sheet"
// @Param sheetEnd formData int true "Last sheet"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /videos/upload [post]
func (h *VideoHandler) Upload(c *gin.Context) {
	limit := h.service.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	var form dto.VideoRangeForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, uploadError(err, "level, sheetStart and sheetEnd are required"))
		return
	}

	header, err := c.FormFile("video")
	if err != nil {
		response.Error(c, uploadError(err, "video file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read upload"))
		return
	}
	defer file.Close()

	video, err := h.service.Upload(c.Request.Context(), dto.UploadVideoInput{
		VideoRangeForm: form,
		ContentType:    header.Header.Get("Content-Type"),
		Size:           header.Size,
		Body:           file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, video, "video uploaded")
}

func uploadError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status, "video exceeds the upload size limit")
	}
	return invalidPayload(err, message)
}

// GoogleDrive godoc
// @Summary Register external video
// @Tags Videos
// @Accept json
// @Produce json
// @Param payload body dto.ExternalLinkRequest true "External link"
// @Success 201 {object} response.Envelope
// @Router /videos/google-drive [post]
func (h *VideoHandler) GoogleDrive(c *gin.Context) {
	var req dto.ExternalLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid video link payload"))
		return
	}
	video, err := h.service.RegisterExternalLink(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, video, "video link registered")
}

// Sync godoc
// @Summary Sync catalog with storage
// @Description Registers stored objects whose names follow L{level}_{start}_{end}.mp4
// @Tags Videos
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /videos/sync [post]
func (h *VideoHandler) Sync(c *gin.Context) {
	result, err := h.service.Sync(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// All godoc
// @Summary Full catalog
// @Tags Videos
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /videos/all [get]
func (h *VideoHandler) All(c *gin.Context) {
	videos, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, videos, nil)
}

// ByLevel godoc
// @Summary Videos of a level
// @Tags Videos
// @Produce json
// @Param level path int true "Level"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /videos/level/{level} [get]
func (h *VideoHandler) ByLevel(c *gin.Context) {
	level, err := intParam(c, "level")
	if err != nil {
		response.Error(c, err)
		return
	}
	videos, err := h.service.ListByLevel(c.Request.Context(), level)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, videos, nil)
}

// BySheet godoc
// @Summary Video covering a sheet
// @Description Returns the covering video plus its neighbours within the level
// @Tags Videos
// @Produce json
// @Param level path int true "Level"
// @Param sheet path int true "Sheet number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/level/{level}/sheet/{sheet} [get]
func (h *VideoHandler) BySheet(c *gin.Context) {
	level, err := intParam(c, "level")
	if err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := intParam(c, "sheet")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.LookupBySheet(c.Request.Context(), level, sheet)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete video
// @Tags Videos
// @Param id path string true "Video ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /videos/{id} [delete]
func (h *VideoHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "video deleted", nil)
}

// Media streams a locally stored video addressed by a signed token.
func (h *VideoHandler) Media(c *gin.Context) {
	file, err := h.service.OpenMedia(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read video file"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, path.Base(info.Name()), info.ModTime(), file)
}

package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"container_telemetry/internal/models"
	"container_telemetry/internal/service"
	"container_telemetry/internal/telemetry"

	"github.com/gin-gonic/gin"
)

const (
	maxFramesPerRequest = 500
	maxFramesBodyBytes  = 1 << 20
)

// FramesRequest is the JSON form of POST /api/v1/telemetry/frames.
type FramesRequest struct {
	Lines []string `json:"lines" example:"85,25.50,15.20,1,2,0.15"`
}

// TelemetryState is the combined view served by /telemetry/state and /ws.
type TelemetryState struct {
	Snapshot models.DeviceSnapshot             `json:"snapshot"`
	Channels map[string]telemetry.ChannelState `json:"channels"`
	Stats    telemetry.Statistics              `json:"stats"`
}

// readFrames accepts JSON {"lines":[...]} or a plain body with one frame per line.
func readFrames(c *gin.Context) ([]string, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req FramesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		return req.Lines, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFramesBodyBytes))
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(body), "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// @Summary      Ingest frames
// @Description  Feeds raw device frames through the ingestion pipeline in order.
// @Tags         telemetry
// @Accept       json,plain
// @Produce      json
// @Param        body  body   FramesRequest  true  "Frames"
// @Success      200   {object}  map[string]interface{}  "count, results"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/telemetry/frames [post]
// @Security     BearerAuth
func (h *Handler) postFrames(c *gin.Context) {
	if h.simulatorRunning(c) {
		return
	}
	lines, err := readFrames(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no frames in body"})
		return
	}
	if len(lines) > maxFramesPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many frames in one request"})
		return
	}

	ctx := c.Request.Context()
	results := make([]telemetry.IngestResult, 0, len(lines))
	for _, line := range lines {
		res, err := h.services.Telemetry.Ingest(ctx, line)
		if err != nil {
			if errors.Is(err, service.ErrEmptyLine) {
				continue
			}
			h.logAndJSONError(c, http.StatusInternalServerError, "failed to ingest frame", "frame_ingest_failed", err)
			return
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) telemetryState(c *gin.Context) (TelemetryState, error) {
	snap, err := h.services.Monitoring.GetSnapshot(c.Request.Context())
	if err != nil {
		return TelemetryState{}, err
	}
	return TelemetryState{
		Snapshot: snap,
		Channels: h.services.Telemetry.Channels(),
		Stats:    h.services.Telemetry.Statistics(),
	}, nil
}

// @Summary      Get telemetry state
// @Description  Last-known values (with stale fields), hysteresis state per channel and session counters.
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  TelemetryState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/telemetry/state [get]
// @Security     BearerAuth
func (h *Handler) getTelemetryState(c *gin.Context) {
	st, err := h.telemetryState(c)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "telemetry_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Get session statistics
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  telemetry.Statistics
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/telemetry/stats [get]
// @Security     BearerAuth
func (h *Handler) getTelemetryStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Telemetry.Statistics())
}

// @Summary      Reset session
// @Description  Clears counters, hysteresis latches, rate-limit history and carried values.
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/telemetry/reset [post]
// @Security     BearerAuth
func (h *Handler) resetTelemetry(c *gin.Context) {
	if err := h.services.Telemetry.Reset(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to reset session", "telemetry_reset_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusReset})
}

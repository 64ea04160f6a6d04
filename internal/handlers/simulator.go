package handlers

import (
	"errors"
	"net/http"

	"container_telemetry/internal/simulator"

	"github.com/gin-gonic/gin"
)

// ScenarioRequest selects a simulator scenario.
type ScenarioRequest struct {
	// One of normal, battery_drain, heating_cycle, cooling_cycle, bag_cycle, shake_cycle, sensor_error_injection
	Scenario string `json:"scenario" binding:"required" example:"heating_cycle"`
}

// CommandRequest carries a single actuator command character.
type CommandRequest struct {
	// H/h heat on/off, C/c cool on/off, L/l light on/off
	Command string `json:"command" binding:"required" example:"H"`
}

// @Summary      Get simulator state
// @Tags         simulator
// @Produce      json
// @Success      200  {object}  simulator.State
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/simulator/state [get]
// @Security     BearerAuth
func (h *Handler) getSimulatorState(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Simulator.State())
}

// @Summary      Set scenario
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Param        body  body   ScenarioRequest  true  "Scenario"
// @Success      200   {object}  simulator.State
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/simulator/scenario [post]
// @Security     BearerAuth
func (h *Handler) setScenario(c *gin.Context) {
	var req ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	st, err := h.services.Simulator.SetScenario(req.Scenario)
	if err != nil {
		if errors.Is(err, simulator.ErrUnknownScenario) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to set scenario", "simulator_set_scenario_failed", err, "scenario", req.Scenario)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Send actuator command
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Param        body  body   CommandRequest  true  "Command"
// @Success      200   {object}  simulator.State
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/simulator/command [post]
// @Security     BearerAuth
func (h *Handler) sendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	st, err := h.services.Simulator.HandleCommand(req.Command)
	if err != nil {
		if errors.Is(err, simulator.ErrUnknownCommand) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to apply command", "simulator_command_failed", err, "command", req.Command)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Advance simulator one step
// @Description  Generates one frame and ingests it; useful when the background loop is disabled.
// @Tags         simulator
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "frame, result"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/simulator/step [post]
// @Security     BearerAuth
func (h *Handler) stepSimulator(c *gin.Context) {
	if h.simulatorRunning(c) {
		return
	}
	frame, res, err := h.services.Simulator.Step(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to step simulator", "simulator_step_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame": frame, "result": res})
}

// simulatorRunning answers 409 when the background simulator is feeding the
// session; a second producer would interleave frames with it.
func (h *Handler) simulatorRunning(c *gin.Context) bool {
	if h.services.Simulator == nil || !h.services.Simulator.Running() {
		return false
	}
	c.JSON(http.StatusConflict, gin.H{"error": "simulator is running; manual frames are disabled"})
	return true
}

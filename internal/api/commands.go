package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/udon-flasher/udon-core/internal/flash"
)

// flashRequest is the request body for POST /flash.
type flashRequest struct {
	AP       string `json:"ap"`
	BL       string `json:"bl"`
	CP       string `json:"cp"`
	CSC      string `json:"csc"`
	NoReboot bool   `json:"no_reboot"`
}

// runResponse is returned when a command is accepted.
type runResponse struct {
	Run flash.Run `json:"run"`
}

// handleStatus returns the supervisor status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleFlash starts a flash run with the selected images.
func (s *Server) handleFlash(w http.ResponseWriter, r *http.Request) {
	var req flashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	run, err := s.ctrl.StartFlash(flash.Request{
		AP:       req.AP,
		BL:       req.BL,
		CP:       req.CP,
		CSC:      req.CSC,
		NoReboot: req.NoReboot,
	})
	s.writeRunResult(w, flash.OpFlash, run, err)
}

// handleReboot reboots the device out of download mode.
func (s *Server) handleReboot(w http.ResponseWriter, _ *http.Request) {
	run, err := s.ctrl.RebootDevice()
	s.writeRunResult(w, flash.OpReboot, run, err)
}

// handleRedownload reboots the device back into download mode.
func (s *Server) handleRedownload(w http.ResponseWriter, _ *http.Request) {
	run, err := s.ctrl.RebootToDownloadMode()
	s.writeRunResult(w, flash.OpRedownload, run, err)
}

// writeRunResult maps a supervisor answer to an HTTP response.
func (s *Server) writeRunResult(w http.ResponseWriter, op flash.Operation, run flash.Run, err error) {
	if err == nil {
		s.logger.Info("command accepted", "operation", op, "run_id", run.ID)
		writeJSON(w, http.StatusAccepted, runResponse{Run: run})
		return
	}
	if writeRejection(w, err) {
		return
	}
	s.logger.Error("command failed", "operation", op, "error", err)
	writeInternalError(w, "failed to start command")
}

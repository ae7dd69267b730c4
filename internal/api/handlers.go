package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ddpager/pager-bridge/internal/alert"
	"github.com/ddpager/pager-bridge/internal/bridge"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
	DeviceID      string `json:"device_id"`
}

// testAlertRequest is the optional JSON body of POST /test-alert.
type testAlertRequest struct {
	DeviceID string `json:"device_id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Service  string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		MQTTConnected: s.transport.IsConnected(),
		DeviceID:      s.deviceID,
	})
}

// handleWebhook publishes to the configured default device.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	s.publishWebhook(w, r, s.deviceID)
}

func (s *Server) handleDeviceWebhook(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		writeJSON(w, http.StatusOK, bridge.Result{Status: bridge.StatusError, Detail: err.Error()})
		return
	}
	s.publishWebhook(w, r, deviceID)
}

func (s *Server) publishWebhook(w http.ResponseWriter, r *http.Request, deviceID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, bridge.Result{
			Status:   bridge.StatusError,
			DeviceID: deviceID,
			Detail:   readError(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, s.bridge.PublishAlert(r.Context(), deviceID, body))
}

// handleTestAlert accepts an optional JSON body naming the device and
// field overrides. The query parameter device_id is honoured when the
// body does not name one.
func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	var req testAlertRequest

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, bridge.Result{Status: bridge.StatusError, Detail: readError(err)})
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusOK, bridge.Result{
				Status: bridge.StatusError,
				Detail: fmt.Sprintf("invalid test alert request: %v", err),
			})
			return
		}
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = r.URL.Query().Get("device_id")
	}
	if deviceID == "" {
		deviceID = s.deviceID
	}

	res := s.bridge.SendTestAlert(r.Context(), deviceID, alert.Overrides{
		Title:    req.Title,
		Severity: req.Severity,
		Service:  req.Service,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleRegister reads form fields device_id, api_key, app_key and region.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, bridge.Result{Status: bridge.StatusError, Detail: readError(err)})
		return
	}

	res := s.bridge.RegisterDevice(r.Context(), bridge.Registration{
		DeviceID: r.PostFormValue("device_id"),
		APIKey:   r.PostFormValue("api_key"),
		AppKey:   r.PostFormValue("app_key"),
		Region:   r.PostFormValue("region"),
	})
	writeJSON(w, registrationStatus(res), res)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	st, err := s.bridge.DeviceStatus(r.Context(), deviceID)
	switch {
	case bridge.IsInvalidDevice(err):
		writeBadRequest(w, err.Error())
		return
	case err != nil:
		s.logger.Error("device status lookup failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "device lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// registrationStatus maps a registration result to an HTTP status.
// Credentials the upstream refuses with a 4xx are the caller's problem;
// anything else upstream is a gateway failure.
func registrationStatus(res bridge.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Kind {
	case bridge.KindInput:
		return http.StatusBadRequest
	case bridge.KindUpstream:
		if res.UpstreamStatus >= 400 && res.UpstreamStatus < 500 {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// deviceParam returns the unescaped {device_id} path segment.
func deviceParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "device_id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid device id %q", raw)
	}
	return id, nil
}

func readError(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return fmt.Sprintf("reading request: %v", err)
}

package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/ddpager/pager-bridge/internal/credential"
)

//go:embed templates/setup.html
var templateFS embed.FS

var setupTemplate = template.Must(template.ParseFS(templateFS, "templates/setup.html"))

// setupPage is the data rendered into templates/setup.html.
type setupPage struct {
	DeviceID   string
	Connected  bool
	Registered bool
	Regions    []string
	Version    string
}

// regions offered by the registration form, default first.
var regions = []string{
	credential.DefaultRegion,
	"us3.datadoghq.com",
	"us5.datadoghq.com",
	"datadoghq.eu",
	"ap1.datadoghq.com",
}

// handleSetup renders the setup page for ?device_id= or the default device.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	page := setupPage{
		DeviceID:  r.URL.Query().Get("device_id"),
		Connected: s.transport.IsConnected(),
		Regions:   regions,
		Version:   s.version,
	}
	if page.DeviceID == "" {
		page.DeviceID = s.deviceID
	}

	if st, err := s.bridge.DeviceStatus(r.Context(), page.DeviceID); err == nil {
		page.Registered = st.Registered
	} else {
		s.logger.Debug("setup page device status unavailable", "device_id", page.DeviceID, "error", err)
	}

	var buf bytes.Buffer
	if err := setupTemplate.Execute(&buf, page); err != nil {
		s.logger.Error("rendering setup page failed", "error", err)
		writeInternalError(w, "rendering setup page failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(buf.Bytes())
}

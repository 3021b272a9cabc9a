package sim

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"pbterm/devapi"
	"pbterm/log"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("sim: write response: %v", err)
	}
}

func (d *Device) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, d.Settings())
}

func (d *Device) postSettings(w http.ResponseWriter, r *http.Request) {
	var s devapi.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid settings: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
	log.Infof("sim: settings saved (%s, ssid %q)", s.UART.Summary(), s.ActiveNetwork().SSID)

	writeJSON(w, map[string]bool{"success": true})
}

func (d *Device) getIdentify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, devapi.IdentifyState{Identify: d.Identifying()})
}

func (d *Device) setIdentify(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.identify = on
		d.mu.Unlock()
		writeJSON(w, devapi.IdentifyState{Identify: on})
	}
}

func (d *Device) toggle(flag *bool, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on := mux.Vars(r)["state"] == "enable"
		d.mu.Lock()
		*flag = on
		d.mu.Unlock()
		log.Infof("sim: %s=%t", name, on)
		writeJSON(w, map[string]bool{name: on})
	}
}

func (d *Device) Settings() devapi.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

func (d *Device) Identifying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identify
}

// Translation reports the uart_to_crlf and crlf_to_uart flags.
func (d *Device) Translation() (uartToCRLF, crlfToUART bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uartToCRLF, d.crlfToUART
}

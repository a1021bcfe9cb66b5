package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/TheFuji/mpp-solar-v0.9.01/internal/storage"
)

// readingsHandler serves the newest stored reading of a command, or the
// last n of them with ?history=n.
func (p *Poller) readingsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := r.PathValue("command")
		device := p.config.Device.Name
		w.Header().Set("Content-Type", "application/json")

		if h := r.URL.Query().Get("history"); h != "" {
			n, err := strconv.Atoi(h)
			if err != nil || n <= 0 {
				http.Error(w, "history must be a positive integer", http.StatusBadRequest)
				return
			}
			items, err := p.storage.History(r.Context(), device, command, n)
			if err != nil {
				p.log.Errorf("read history %s: %v", command, err)
				http.Error(w, "storage error", http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(items)
			return
		}

		data, err := p.storage.Latest(r.Context(), device, command)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "no reading for "+command, http.StatusNotFound)
		case err != nil:
			p.log.Errorf("read latest %s: %v", command, err)
			http.Error(w, "storage error", http.StatusInternalServerError)
		default:
			w.Write(data)
		}
	})
}

// Copyright (C) 2024 The async-file-server Authors.
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"encoding/json"
	"expvar"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/klegy/asyncfileserver/internal/state"
)

// healthReport is what /healthz returns: host resource pressure is useful
// context when deciding whether a stall was local resource exhaustion
// rather than a peer going silent.
type healthReport struct {
	Listening bool    `json:"listening"`
	Idle      bool    `json:"idle"`
	CPUPct    float64 `json:"cpu_percent"`
	MemPct    float64 `json:"mem_percent"`
	DiskPct   float64 `json:"disk_percent"`
}

// NewHandler wires /metrics, /healthz and /debug/vars onto an
// httprouter.Router (SPEC_FULL §5).
func NewHandler(flags *state.Flags, transferFolder string) http.Handler {
	r := httprouter.New()
	r.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	r.HandlerFunc(http.MethodGet, "/debug/vars", expvar.Handler().ServeHTTP)
	r.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeHealth(w, flags, transferFolder)
	})
	return r
}

func writeHealth(w http.ResponseWriter, flags *state.Flags, transferFolder string) {
	report := healthReport{
		Listening: flags.Listening(),
		Idle:      flags.Idle(),
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		report.CPUPct = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.MemPct = vm.UsedPercent
	}
	if transferFolder != "" {
		if du, err := disk.Usage(transferFolder); err == nil {
			report.DiskPct = du.UsedPercent
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

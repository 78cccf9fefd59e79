package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/phase-dimmer/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Phase Dimmer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.bar { background: #eee; height: 14px; width: 100%; }
.bar span { display: block; background: #f90; height: 14px; }
.ready { color: green; font-weight: bold; }
.waiting { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Phase Dimmer</h1>

<table>
<tr><th>Power</th><td>{{pct .Percent}}% <div class="bar"><span style="width: {{pct .Percent}}%"></span></div></td></tr>
<tr><th>Level (ticks)</th><td>{{.Level}}</td></tr>
<tr><th>Phase state</th><td>{{stateOrUnknown .PhaseState}}</td></tr>
<tr><th>Remote override</th><td>{{if .OverrideActive}}active{{else}}-{{end}}</td></tr>
<tr><th>Calibration</th><td>
{{- if .Calibrated -}}
<span class="ready">READY</span>{{if .Calibration.Fallback}} (fallback){{end}}
 min={{.Calibration.MinDelay}} max={{.Calibration.MaxDelay}} avg={{.Calibration.AvgHalfCycle}}
{{- else -}}
<span class="waiting">CALIBRATING</span>
{{- end -}}
</td></tr>
</table>

<table>
<tr><th>Edges accepted</th><td>{{.Counts.EdgesAccepted}}</td></tr>
<tr><th>Edges rejected</th><td>{{.Counts.EdgesRejected}}</td></tr>
<tr><th>Triggers</th><td>{{.Counts.Triggers}}</td></tr>
<tr><th>Safety timeouts</th><td>{{.Counts.SafetyTimeouts}}</td></tr>
<tr><th>Recoveries</th><td>{{.Counts.Recoveries}}</td></tr>
</table>

<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}<span class="connected">connected</span>{{else}}<span class="disconnected">disconnected</span>{{end}} ({{.Config.Broker}})</td></tr>
<tr><th>Tick quantum</th><td>{{.Config.TickMicros}} µs</td></tr>
<tr><th>Control poll</th><td>{{.Config.PollMs}} ms</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, snap); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}

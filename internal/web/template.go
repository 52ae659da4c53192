package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/Velotales/antbridge/internal/status"
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
	"hr": func(v *uint8) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d bpm", *v)
	},
	"speed": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f km/h", *v)
	},
	"cadence": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d rpm", int(*v))
	},
	"power": func(v *uint16) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d W", *v)
	},
	"seen": func(unix float64) string {
		if unix == 0 {
			return "never"
		}
		return time.Unix(int64(unix), 0).UTC().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>ANT Bridge</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.online { color: green; font-weight: bold; }
.offline { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>ANT Bridge</h1>

<h2>Users</h2>
<table>
<tr><th>Name</th><th>HR</th><th>Speed</th><th>Cadence</th><th>Power</th><th>Status</th></tr>
{{range .Users}}<tr>
<td>{{.Name}}</td>
<td>{{hr .HeartRate}}</td>
<td>{{speed .Speed}}</td>
<td>{{cadence .Cadence}}</td>
<td>{{power .Power}}</td>
<td class="{{if .Online}}online{{else}}offline{{end}}">{{if .Online}}online{{else}}offline{{end}}</td>
</tr>{{else}}<tr><td colspan="6">no users configured</td></tr>{{end}}
</table>

<h2>Devices</h2>
<table>
<tr><th>ID</th><th>Profile</th><th>Label</th><th>Last Seen (UTC)</th></tr>
{{range .Devices}}<tr>
<td>{{.DeviceID}}</td>
<td>{{.Profile}}</td>
<td>{{.Label}}</td>
<td>{{seen .LastSeen}}</td>
</tr>{{else}}<tr><td colspan="4">no devices seen yet</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Base topic</th><td>{{.Config.BaseTopic}}</td></tr>
</table>

<h2>Pipeline</h2>
<table>
<tr><th>Packets</th><td>{{.Counts.Packets}}</td></tr>
<tr><th>Decoded</th><td>{{.Counts.Decoded}}</td></tr>
<tr><th>Published</th><td>{{.Counts.Published}}</td></tr>
<tr><th>Saved</th><td>{{.Counts.Saved}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Stale after</th><td>{{.Config.StaleSecs}}s</td></tr>
{{if .Config.SaveFile}}<tr><th>Save file</th><td>{{.Config.SaveFile}}</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

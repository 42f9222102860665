package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/garage-door/internal/status"
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
	"stateClass": func(s string) string {
		switch s {
		case "CLOSED":
			return "closed"
		case "OPEN", "OPENING", "CLOSING":
			return "open"
		case "STOPPED":
			return "stopped"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Config.Name}}{{.Config.Name}}{{else}}Garage Door{{end}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.closed { color: green; font-weight: bold; }
.open { color: orange; font-weight: bold; }
.stopped { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{if .Config.Name}}{{.Config.Name}}{{else}}Garage Door{{end}}</h1>

<h2>Door</h2>
<table>
<tr><th>Current</th><td id="door-current" class="{{stateClass .Door.Current}}">{{.Door.Current}}</td></tr>
<tr><th>Target</th><td id="door-target">{{.Door.Target}}</td></tr>
<tr><th>Obstruction</th><td>{{if .Door.Obstruction}}detected{{else}}none{{end}}</td></tr>
<tr><th>Source</th><td>{{.Door.Source}}</td></tr>
{{if .Door.ChangedAt}}<tr><th>Changed</th><td>{{.Door.ChangedAt}}</td></tr>{{end}}
{{if .Door.OpenSeconds}}<tr><th>Open for</th><td>{{.Door.OpenSeconds}}s</td></tr>{{end}}
{{if .Door.LastAlert}}<tr><th>Last alert</th><td>{{.Door.LastAlert}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Activity</h2>
<table>
<tr><th>Opened</th><td>{{.Counts.Opened}}</td></tr>
<tr><th>Closed</th><td>{{.Counts.Closed}}</td></tr>
<tr><th>Obstructions</th><td>{{.Counts.Obstructions}}</td></tr>
<tr><th>Alerts</th><td>{{.Counts.Alerts}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sensors</th><td>{{.Config.Sensors}}</td></tr>
<tr><th>Press</th><td>{{.Config.PressMs}}ms</td></tr>
<tr><th>Move</th><td>{{.Config.MoveMs}}ms</td></tr>
<tr><th>Relay</th><td>{{.Config.Relay}}</td></tr>
<tr><th>Interrupt policy</th><td>{{.Config.Policy}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Door   status.DoorJSON
	Uptime time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, pageData{
		Snapshot: snap,
		Door:     status.DoorView(snap),
		Uptime:   snap.Uptime(),
	})
}

package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/nullpointer/gpio-sensor/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ready { color: green; font-weight: bold; }
.failed { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GPIO Sensor</h1>

<h2>Control file</h2>
<table>
<tr><th>Path</th><td><a href="/proc/{{.Name}}">/proc/{{.Name}}</a></td></tr>
<tr><th>Selector</th><td id="selector">{{printf "%q" .Selector}}</td></tr>
<tr><th>Delivery</th><td>{{.Config.Delivery}}</td></tr>
<tr><th>Capacity</th><td>{{.Config.Capacity}}</td></tr>
{{with .LastRead}}<tr><th>Last read</th><td>{{.Message}} ({{.Delivered}} bytes delivered)</td></tr>{{end}}
</table>

<h2>Pins ({{.PinsReady}}/{{len .Pins}} ready)</h2>
<table>
{{range .Pins}}<tr><th>{{.Label}} (pin {{.Pin}})</th><td class="{{if .Ready}}ready{{else}}failed{{end}}">{{if .Ready}}ready{{else}}{{.Stage}}: {{.Error}}{{end}}</td></tr>
{{end}}</table>

<h2>Counts</h2>
<table>
<tr><th>Reads</th><td>{{.Counts.Reads}}</td></tr>
<tr><th>Writes</th><td>{{.Counts.Writes}}</td></tr>
<tr><th>No space</th><td>{{.Counts.NoSpace}}</td></tr>
<tr><th>Faults</th><td>{{.Counts.Faults}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}{{if .Config.Chip}} ({{.Config.Chip}}){{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}}){{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, name string) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Name   string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Name:     name,
	}
	return indexTmpl.Execute(w, data)
}

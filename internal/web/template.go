package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/presence-beacon/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"lower":  strings.ToLower,
}).Parse(indexHTML))

var uptimeUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// formatUptime renders d as "3d 4h 5m 6s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	var parts []string
	for _, u := range uptimeUnits {
		n := d / u.size
		d -= n * u.size
		if n > 0 || len(parts) > 0 || u.size == time.Second {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		}
	}
	return strings.Join(parts, " ")
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>{{.Config.DeviceName}} presence beacon</title>
<style>
body { font-family: monospace; max-width: 42em; margin: 2em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; border-bottom: 2px solid #444; }
h2 { font-size: 1.05em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 10px 3px 0; border-bottom: 1px dotted #bbb; }
.present { color: #1a7f37; font-weight: bold; }
.absent { color: #888; }
.fault { color: #c62828; }
.up { color: #1a7f37; }
.down { color: #c62828; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}} presence beacon</h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>UUID</th><th>Raw</th><th>Presence</th><th>Faults</th><th>Dropped</th></tr>
{{range .Channels}}<tr><td>{{.Name}}</td><td>{{.UUID}}</td><td{{if .Fault}} class="fault"{{end}}>{{.Raw}}</td><td class="{{lower .Presence}}">{{.Presence}}</td><td>{{.Faults}}</td><td>{{.PublishFailures}}</td></tr>
{{end}}</table>

<h2>Bluetooth</h2>
<table>
<tr><th>Session</th><td class="{{if .Ready}}up{{else}}down{{end}}">{{.Session}}</td></tr>
<tr><th>Advertising restarts</th><td>{{.Restarts}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}} ({{.Config.Adapter}})</td></tr>
<tr><th>Interval</th><td>{{if .Config.AdvIntervalMs}}{{.Config.AdvIntervalMs}}ms{{else}}controller default{{end}}</td></tr>
</table>

{{if .Config.Broker}}<h2>MQTT</h2>
<table>
<tr><th>Mirror</th><td class="{{if .MQTTConnected}}up{{else}}down{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Channels []status.ChannelJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Channels: status.Channels(snap),
	}
	indexTmpl.Execute(w, data)
}

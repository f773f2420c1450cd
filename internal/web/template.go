package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/valve-mixer/internal/status"
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
	"share": func(duration, period uint32) string {
		if period == 0 || duration == 0 {
			return "-"
		}
		return fmt.Sprintf("%.1f%%", float64(duration)*100/float64(period))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Valve Mixer</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stopped { color: #888; }
.active { background: #e6ffe6; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Valve Mixer</h1>

<h2>Scheduler</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Running}}running{{else}}stopped{{end}}">{{if .Running}}RUNNING{{else}}STOPPED{{end}}</td></tr>
<tr><th>Period</th><td id="period">{{.Period}}</td></tr>
<tr><th>Current</th><td id="current">{{if .Current}}{{.Current}}{{else}}-{{end}}</td></tr>
</table>

<h2>Channels</h2>
<table id="channels">
<tr><th>Channel</th><th>Solenoid</th><th>Volume</th><th>Pulse</th><th>Share</th></tr>
{{range .Channels}}<tr class="{{if eq .Name $.Current}}active{{else if eq .Duration 0}}idle{{end}}"><td>{{.Name}}</td><td>{{.Solenoid}} ({{.Group}}:{{printf "0x%02x" .Mask}})</td><td>{{.Volume}}</td><td>{{.Duration}}</td><td>{{share .Duration $.Period}}</td></tr>
{{end}}</table>

<h2>Commands</h2>
<table>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
<tr><th>OK</th><td>{{.Counts.OK}}</td></tr>
<tr><th>Errors</th><td>{{.Counts.Errors}}</td></tr>
<tr><th>Overflows</th><td>{{.Counts.Overflows}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
{{with .LastCommand}}<tr><th>Last</th><td>{{.Frame}} &rarr; {{if .OK}}ok{{else}}error{{end}}{{if .Error}} ({{.Error}}){{end}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Serial</th><td>{{.Config.Port}} @ {{.Config.Baud}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Tick</th><td>{{.Config.TickUs}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var state = document.getElementById("state");
  var period = document.getElementById("period");
  var current = document.getElementById("current");
  setInterval(function() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      var s = j.status;
      state.textContent = s.running ? "RUNNING" : "STOPPED";
      state.className = s.running ? "running" : "stopped";
      period.textContent = s.period;
      current.textContent = s.current || "-";
    }).catch(function() {});
  }, 1000);
})();
</script>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render status page: %v", err)
	}
}

package web

import (
	"encoding/json"
	"html/template"

	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
)

type statusPage struct {
	Lights   []hue.CachedLight
	Sensors  []hue.CachedSensor
	Activity []*ledger.Entry
}

type pairFailure struct {
	Address string
	Err     string
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.MarshalIndent(v, "", "   ")
		if err != nil {
			return err.Error()
		}
		return string(b)
	},
}

var statusTemplate = template.Must(template.New("status").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><head><title>Philips Hue</title></head><body>
<h1>Lights</h1>
<div id="bulbs"><ul>
{{range .Lights}}<li><b>{{.Light.Name}}</b> Last value: <pre>{{json .Light.State}}</pre></li>
{{else}}<li>No bulbs found!</li>
{{end}}</ul></div>
{{if .Sensors}}<h1>Sensors</h1>
<div id="sensors"><ul>
{{range .Sensors}}<li><b>{{.Sensor.Name}}</b> ({{.Sensor.Type}}) Last value: <pre>{{json .Sensor.State}}</pre></li>
{{end}}</ul></div>
{{end}}{{if .Activity}}<h2>Recent commands</h2>
<table id="activity">
<tr><th>Time</th><th>Channel</th><th>Outcome</th><th>Details</th></tr>
{{range .Activity}}<tr><td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td><td>{{.ChannelID}}</td><td>{{.EventType}}</td><td><code>{{json .Payload}}</code></td></tr>
{{end}}</table>
{{end}}</body></html>
`))

var pairTemplate = template.Must(template.New("pair").Parse(`<!DOCTYPE html>
<html><head><title>Philips Hue setup</title></head><body>
<h1>Connect a Hue bridge</h1>
<p>Press the link button on the bridge, then submit within 30 seconds.
Leave the address blank to search the local network.</p>
<form method="post" action="ui">
<label for="address">Bridge address</label>
<input type="text" id="address" name="address" placeholder="192.168.1.2">
<button type="submit">Pair</button>
</form>
</body></html>
`))

var pairFailedTemplate = template.Must(template.New("pairFailed").Parse(
	`Failed to find hue bridge at {{.Address}}: <b>{{.Err}}</b>`))

var pairedTemplate = template.Must(template.New("paired").Parse(
	`<p>Paired with Hue bridge at <b>{{.}}</b>.</p>`))

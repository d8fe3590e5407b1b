package cli

import (
	"strings"
	"text/template"
	"time"

	"github.com/iudanet/famsync/internal/models"
)

var templateFuncs = template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"mark": func(s models.TaskStatus) string {
		switch s {
		case models.TaskStatusDone:
			return "[x]"
		case models.TaskStatusInProgress:
			return "[~]"
		}
		return "[ ]"
	},
	"join": strings.Join,
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(text))
}

var taskListTemplate = mustTemplate("tasks", `
=== Tasks ===
{{ if not . }}
No tasks yet. Use 'famsync task add' to create one.
{{ else }}
{{ range . -}}
{{ mark .Value.Status }} {{ .Value.Title }}
    ID: {{ .ID }}
{{- if .Value.Assignee }}  Assignee: {{ .Value.Assignee }}{{ end }}
{{- if .Value.Points }}  Points: {{ .Value.Points }}{{ end }}
{{- if .Value.Due }}  Due: {{ date .Value.Due }}{{ end }}
{{- if .Pending }}  (not synced){{ end }}
{{ end -}}
{{ end -}}
`)

var eventListTemplate = mustTemplate("events", `
=== Events ===
{{ if not . }}
No events yet. Use 'famsync event add' to create one.
{{ else }}
{{ range . -}}
{{ date .Value.Start }}{{ if .Value.End }} - {{ date .Value.End }}{{ end }}  {{ .Value.Title }}
    ID: {{ .ID }}
{{- if .Value.Location }}  Location: {{ .Value.Location }}{{ end }}
{{- if .Value.Members }}  Members: {{ join .Value.Members ", " }}{{ end }}
{{- if .Pending }}  (not synced){{ end }}
{{ end -}}
{{ end -}}
`)

var pointsTemplate = mustTemplate("points", `
=== Points ===
{{ if not .Entries }}
No points awarded yet.
{{ else }}
{{ range .Entries -}}
{{ printf "%+5d" .Value.Amount }}  {{ .Value.Member }}{{ if .Value.Reason }}  {{ .Value.Reason }}{{ end }}{{ if .Pending }}  (not synced){{ end }}
{{ end }}
Balance:
{{ range .Balances -}}
  {{ .Member }}: {{ .Total }}
{{ end -}}
{{ end -}}
`)

var badgeListTemplate = mustTemplate("badges", `
=== Badges ===
{{ if not . }}
No badges granted yet.
{{ else }}
{{ range . -}}
{{ if .Value.Icon }}{{ .Value.Icon }} {{ end }}{{ .Value.Name }}  {{ .Value.Member }}{{ if .Pending }}  (not synced){{ end }}
{{ end -}}
{{ end -}}
`)

var statusTemplate = mustTemplate("status", `
=== Device Status ===

Device:        {{ .DeviceID }}
{{- if .Credentials }}
Family:        {{ .Credentials.FamilyID }}
Member:        {{ .Credentials.Member }}
Server:        {{ .Credentials.ServerURL }} ({{ if .Reachable }}reachable{{ else }}unreachable{{ end }})
{{- if not .Credentials.ExpiresAt.IsZero }}
Token expires: {{ .Credentials.ExpiresAt.Local.Format "2006-01-02 15:04" }}
{{- end }}
{{- else }}
Status:        not enrolled, run 'famsync enroll --token TOKEN'
{{- end }}
Last sync:     {{ if .Cursor.LastSyncedAt.IsZero }}never{{ else }}{{ .Cursor.LastSyncedAt.Local.Format "2006-01-02 15:04:05" }}{{ end }}
Pending:       {{ .Pending }} mutation(s)
Dead letters:  {{ .DeadLetters }}
`)

var syncTemplate = mustTemplate("sync", `
=== Synchronization ===

Sent:          {{ .Sent }}
Applied:       {{ .Applied }}
Conflicts:     {{ .Conflicts }}
Pulled:        {{ .Pulled }}
{{- if .Rebased }}
Rebased:       {{ .Rebased }}
{{- end }}
{{- if .Retrying }}
Retrying:      {{ .Retrying }}
{{- end }}
{{- if .DeadLettered }}
Dead-lettered: {{ .DeadLettered }}  (see 'famsync deadletter list')
{{- end }}
`)

var deadLetterTemplate = mustTemplate("deadletters", `
=== Dead Letters ===
{{ if not . }}
No rejected mutations.
{{ else }}
{{ range . -}}
#{{ .Mutation.Seq }}  {{ .Mutation.Operation }} {{ .Mutation.EntityType }} {{ .Mutation.EntityID }}
    Code: {{ .Code }}  Reason: {{ .Reason }}
    Rejected at: {{ .DeadAt.Local.Format "2006-01-02 15:04:05" }}
{{ end -}}
{{ end -}}
`)

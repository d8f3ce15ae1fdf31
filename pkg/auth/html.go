package auth

import (
	"html/template"
	"strings"
)

// Fallback pages rendered when no frontend URL is configured to receive the
// OAuth callback redirect.

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>Calendar Linked</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
  <h1>&#9989; Google Calendar linked</h1>
  <p>Your calendar is now connected for user <strong>{{.UserID}}</strong>.</p>
  <p>You can close this window.</p>
</body>
</html>`))

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Calendar Link Failed</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
  <h1>&#10060; Calendar link failed</h1>
  <p>{{.Detail}}</p>
  <p>Close this window and try again.</p>
</body>
</html>`))

// SuccessPageHTML renders the fallback success page.
func SuccessPageHTML(userID string) string {
	return renderPage(successPage, struct{ UserID string }{userID})
}

// ErrorPageHTML renders the fallback error page. detail is escaped.
func ErrorPageHTML(detail string) string {
	return renderPage(errorPage, struct{ Detail string }{detail})
}

func renderPage(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "<html><body>OAuth flow finished.</body></html>"
	}
	return b.String()
}

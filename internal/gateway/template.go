package gateway

import "html/template"

// redirectTemplate renders the HTML document a browser is handed when a
// record's message is itself a URI. text/html clients that send
// Accept: text/html get this page instead of raw JSON.
var redirectTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0; url={{.}}">
<title>Redirecting</title>
</head>
<body>
<p>Redirecting to <a href="{{.}}">{{.}}</a></p>
</body>
</html>
`))

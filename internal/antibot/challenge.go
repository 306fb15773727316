package antibot

import (
	"fmt"
	"html"
)

// ChallengeHTML is the interstitial served to browsers: it reloads the
// original URL after a beat, by which time the challenge cookie is set.
func ChallengeHTML(redirectURL string) string {
	safe := html.EscapeString(redirectURL)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta http-equiv="refresh" content="1;url=%s">
<title>One moment</title>
</head>
<body>
<p>Checking your browser, redirecting shortly.</p>
</body>
</html>
`, safe)
}

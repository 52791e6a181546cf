package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieExportGuide prints how to export a logged-in browser session
// as a cookies.txt that `igpull auth import` accepts
func WriteCookieExportGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"EXPORTING INSTAGRAM COOKIES",
		rule,
		"",
		"Highlights and the authenticated feed need a logged-in session.",
		"igpull reads it from a Netscape format cookies.txt file.",
		"",
		"1. Log in at https://www.instagram.com in your browser.",
		"   A secondary account is strongly recommended.",
		"",
		"2. Install a cookies.txt exporter extension, for example",
		"   \"Get cookies.txt LOCALLY\" (Chrome) or \"cookies.txt\" (Firefox).",
		"",
		"3. With an instagram.com tab open, export the cookies for the",
		"   current site. The file must contain a sessionid line:",
		"",
		"   .instagram.com\tTRUE\t/\tTRUE\t1767225600\tsessionid\t1234%3Aabcd...",
		"",
		"4. Import it once:",
		"",
		"   igpull auth import cookies.txt --account main",
		"",
		"   then download with --account main, or pass --cookies FILE.",
		"",
		"These cookies give full access to the account. Never share them;",
		"igpull keeps them in the system keychain or an encrypted file.",
		rule,
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide writes step-by-step instructions for copying
// the session cookies out of a logged-in browser
func ShowCookieExtractionGuide(w io.Writer) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "📚 COOKIE EXTRACTION GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Signed requests need the cookies of a logged-in web session.")
	fmt.Fprintln(w, "Follow these steps to copy them from your browser:")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🌐 STEP 1: Log in")
	fmt.Fprintln(w, "   - Go to https://www.xiaohongshu.com/explore")
	fmt.Fprintln(w, "   - Log in (QR code or phone number)")
	fmt.Fprintln(w, "   - Open any user profile and make sure notes load")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔧 STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🍪 STEP 3: Find the cookies")
	fmt.Fprintln(w, "   1. Open the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Fprintln(w, "   2. Expand 'Cookies' and select 'https://www.xiaohongshu.com'")
	fmt.Fprintln(w, "   3. Copy the values below")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔑 STEP 4: Copy these values:")
	fmt.Fprintln(w, "   ┌─────────────┬──────────────────────────────────────────────┐")
	fmt.Fprintln(w, "   │ Cookie Name │ What it looks like                           │")
	fmt.Fprintln(w, "   ├─────────────┼──────────────────────────────────────────────┤")
	fmt.Fprintln(w, "   │ a1          │ 40+ hex characters, feeds the signature      │")
	fmt.Fprintln(w, "   │ web_session │ 0400... long hex string, the login session   │")
	fmt.Fprintln(w, "   │ webId       │ 32 hex characters (optional)                 │")
	fmt.Fprintln(w, "   └─────────────┴──────────────────────────────────────────────┘")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💡 TIPS:")
	fmt.Fprintln(w, "   • Copy the ENTIRE value, without quotes or semicolons")
	fmt.Fprintln(w, "   • web_session expires; log in again when requests return code 461")
	fmt.Fprintln(w, "   • Use a secondary account for crawling")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "⚠️  SECURITY WARNING:")
	fmt.Fprintln(w, "   • These cookies give full access to the account")
	fmt.Fprintln(w, "   • NEVER share them with anyone")
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
}

// ShowQuickExtractGuide writes a condensed version for experienced users
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "\n🍪 Quick Guide: F12 → Application → Cookies → https://www.xiaohongshu.com")
	fmt.Fprintln(w, "   Need: a1, web_session and optionally webId")
	fmt.Fprintln(w, "   Type 'help' for detailed instructions")
}

package workflow

import "regexp"

type signature struct {
	name string
	re   *regexp.Regexp
}

var loginURLRe = regexp.MustCompile(`(?i)/(login|takelogin|signin|sign_in|auth/login)(\.php)?([/?#]|$)`)

var maintenanceSignatures = []signature{
	{"maintenance title", regexp.MustCompile(`(?i)<title>[^<]*(maintenance|维护|維護)[^<]*</title>`)},
	{"maintenance notice", regexp.MustCompile(`(?i)(site|tracker) is (currently )?(down|offline) for maintenance`)},
	{"under maintenance", regexp.MustCompile(`(?i)under maintenance`)},
	{"维护中", regexp.MustCompile(`(系统|系統|站点|站點|网站|網站)(维护|維護)中`)},
}

var antiBotSignatures = []signature{
	{"Cloudflare", regexp.MustCompile(`(?s)security by.*Cloudflare</a>`)},
	{"Cloudflare challenge", regexp.MustCompile(`(?i)<title>Just a moment\.\.\.</title>|cf-browser-verification|challenge-platform`)},
	{"Cloudflare block", regexp.MustCompile(`Attention Required! \| Cloudflare`)},
	{"DDoS-Guard", regexp.MustCompile(`(?i)<title>DDoS-Guard</title>`)},
}

var transientSignatures = []signature{
	{"DDoS protection by Cloudflare", regexp.MustCompile(`DDoS protection by .*Cloudflare`)},
	{"Server load too high", regexp.MustCompile(`(?i)server load too high|服务器负载过高`)},
	{"Connection timed out", regexp.MustCompile(`(?i)connection timed out`)},
	{"Bad gateway", regexp.MustCompile(`(?i)the web server reported a bad gateway error|502 bad gateway`)},
	{"Web server is down", regexp.MustCompile(`(?i)web server is down`)},
	{"Incorrect CSRF token", regexp.MustCompile(`(?i)(incorrect|invalid) csrf token`)},
}

func firstMatch(sigs []signature, content string) (string, bool) {
	for _, s := range sigs {
		if s.re.MatchString(content) {
			return s.name, true
		}
	}
	return "", false
}

package adapter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/checkin/internal/detail"
	"github.com/loykin/checkin/internal/task"
	"github.com/loykin/checkin/internal/transport"
	"github.com/loykin/checkin/internal/util"
	"github.com/loykin/checkin/internal/workflow"
)

// NexusPHPKey is the registry key of the NexusPHP family adapter.
const NexusPHPKey = "nexusphp"

// NexusPHP check-in variants.
const (
	VariantAttendance = "attendance"
	VariantVisit      = "visit"
)

const (
	nexusMessagesURL = "/messages.php?action=viewmailbox&box=1&unread=yes"
	nexusDetailsURL  = "/userdetails.php?id=%s"
)

var (
	nexusAttendanceSuccess = []workflow.Pattern{
		workflow.Re(`这是您的第.*?次签到，已连续签到.*?天，本次签到获得.*?魔力值。|這是您的第.*次簽到，已連續簽到.*?天，本次簽到獲得.*?魔力值。`),
		workflow.Re(`[签簽]到已得\d+`),
		workflow.Re(`您今天已经签到过了，请勿重复刷新。|您今天已經簽到過了，請勿重複刷新。`),
	}
	nexusVisitSuccess = []workflow.Pattern{workflow.Re(`[欢歡]迎回[来來家]`)}
	nexusLoginForm    = regexp.MustCompile(`(?i)<form[^>]*action="?[^">]*takelogin\.php`)
	nexusUserID       = regexp.MustCompile(`userdetails\.php\?id=(\d+)`)
	nexusUnreadRow    = regexp.MustCompile(`(?is)<img[^>]*alt="Unread[^"]*"[^>]*>.*?</td>\s*<td[^>]*>.*?<a[^>]*href="([^"]+)"[^>]*>(.*?)</a>`)
	nexusMessageBody  = regexp.MustCompile(`(?is)<td[^>]*colspan="?2"?[^>]*>(.*?)</td>`)
)

// nexusDetails is the user-detail table shared by the family.
var nexusDetails = map[string]detail.RawField{
	"uploaded":    {Regex: `(上[传傳]量|Uploaded).*?([\d,.]+ ?[ZEPTGMK]?i?B)`, Group: 2},
	"downloaded":  {Regex: `(下[载載]量|Downloaded).*?([\d,.]+ ?[ZEPTGMK]?i?B)`, Group: 2},
	"share_ratio": {Regex: `(分享率|Ratio).*?(---|∞|Inf\.|无限|無限|[\d,.]+)`, Group: 2, Infinite: true},
	"points":      {Regex: `(魔力|Bonus|Bônus).*?([\d,.]+)`, Group: 2},
	"join_date":   {Regex: `(加入日期|注册日期|Join.date|Data de Entrada).*?(\d{4}-\d{2}-\d{2})`, Group: 2},
	"seeding":     {Regex: `(当前活动|當前活動|Torrents Ativos).*?(\d+)`, Group: 2},
	"leeching":    {Regex: `(当前活动|當前活動|Torrents Ativos).*?\d+\D+(\d+)`, Group: 2},
}

// NexusPHPConfig is the config of the NexusPHP adapter.
type NexusPHPConfig struct {
	Variant string `mapstructure:"variant"`
	// HR adds the hit-and-run counter to the detail table.
	HR       bool                       `mapstructure:"hr"`
	Username string                     `mapstructure:"username"`
	Password string                     `mapstructure:"password"`
	Details  map[string]detail.RawField `mapstructure:"details"`
	// IgnoreTitle drops messages whose title matches.
	IgnoreTitle string `mapstructure:"ignore_title"`
}

// NexusPHP covers the attendance.php / visit family of sites.
type NexusPHP struct {
	cfg         NexusPHPConfig
	details     detail.Spec
	ignoreTitle *regexp.Regexp
}

// NewNexusPHP is the Factory of the NexusPHP adapter.
func NewNexusPHP(spec map[string]any) (Adapter, error) {
	var cfg NexusPHPConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &cfg, WeaklyTypedInput: true})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(spec); err != nil {
		return nil, fmt.Errorf("nexusphp: %w", err)
	}
	switch cfg.Variant {
	case "":
		cfg.Variant = VariantAttendance
	case VariantAttendance, VariantVisit:
	default:
		return nil, fmt.Errorf("nexusphp: unknown variant %q", cfg.Variant)
	}

	raw := make(map[string]detail.RawField, len(nexusDetails)+1)
	for k, v := range nexusDetails {
		raw[k] = v
	}
	if cfg.HR {
		raw["hr"] = detail.RawField{Regex: `H&R.*?(\d+)`, Group: 1}
	}
	for k, v := range cfg.Details {
		raw[k] = v
	}
	n := &NexusPHP{cfg: cfg}
	if n.details, err = detail.Compile(raw); err != nil {
		return nil, fmt.Errorf("nexusphp: %w", err)
	}
	if cfg.IgnoreTitle != "" {
		if n.ignoreTitle, err = regexp.Compile(cfg.IgnoreTitle); err != nil {
			return nil, fmt.Errorf("nexusphp: ignore_title: %w", err)
		}
	}
	return n, nil
}

func (n *NexusPHP) Schema() Schema {
	return Schema{
		"variant":      "attendance|visit",
		"hr":           "bool",
		"username":     "string",
		"password":     "string",
		"details":      "map",
		"ignore_title": "string",
	}
}

// CredentialSteps logs in with username and password when configured.
func (n *NexusPHP) CredentialSteps(*task.Task) []workflow.Step {
	if n.cfg.Username == "" || n.cfg.Password == "" {
		return nil
	}
	return []workflow.Step{{
		Name:         "login",
		URL:          "/takelogin.php",
		ResponseURLs: []string{"/", "/index.php"},
		Handler: workflow.Post(workflow.Values(map[string]string{
			"username": n.cfg.Username,
			"password": n.cfg.Password,
		})),
		Auth: nexusLoginForm,
	}}
}

func (n *NexusPHP) Workflow(*task.Task) ([]workflow.Step, error) {
	switch n.cfg.Variant {
	case VariantVisit:
		return []workflow.Step{{
			Name:        "visit",
			URL:         "/",
			Success:     nexusVisitSuccess,
			Auth:        nexusLoginForm,
			BaseContent: true,
		}}, nil
	default:
		return []workflow.Step{{
			Name:        "attendance",
			URL:         "/attendance.php",
			Success:     nexusAttendanceSuccess,
			Auth:        nexusLoginForm,
			BaseContent: true,
		}}, nil
	}
}

// FetchMessages reads every unread inbox message.
func (n *NexusPHP) FetchMessages(ctx context.Context, t *task.Task, tr transport.Transport) (string, error) {
	box, err := fetchPage(ctx, t, tr, nexusMessagesURL)
	if err != nil {
		return "", fmt.Errorf("read message box: %w", err)
	}
	boxURL, _ := workflow.Resolve(t.BaseURL, nexusMessagesURL)

	var sb strings.Builder
	failed := 0
	for _, m := range nexusUnreadRow.FindAllStringSubmatch(box, -1) {
		title := util.StripMarkup(m[2])
		link, err := workflow.Resolve(boxURL, html.UnescapeString(m[1]))
		if err != nil {
			continue
		}
		if n.ignoreTitle != nil && n.ignoreTitle.MatchString(title) {
			t.Logger().Info("ignoring message", "title", title)
			continue
		}
		body := "message body unavailable"
		if page, err := fetchPage(ctx, t, tr, link); err != nil {
			failed++
		} else if b := nexusMessageBody.FindStringSubmatch(page); b != nil {
			body = util.StripMarkup(b[1])
		} else {
			body = "message body not found"
			failed++
		}
		fmt.Fprintf(&sb, "\nTitle: %s\nLink: %s\n%s", title, link, body)
	}
	if failed > 0 {
		return sb.String(), fmt.Errorf("%d message(s) could not be read", failed)
	}
	return sb.String(), nil
}

// FetchDetails reads the user detail page linked from the snapshot.
func (n *NexusPHP) FetchDetails(ctx context.Context, t *task.Task, tr transport.Transport) (map[string]string, error) {
	if t.Snapshot == "" {
		return nil, errors.New("no snapshot to locate the user id")
	}
	m := nexusUserID.FindStringSubmatch(t.Snapshot)
	if m == nil {
		return nil, errors.New("user id not found")
	}
	page, err := fetchPage(ctx, t, tr, fmt.Sprintf(nexusDetailsURL, url.QueryEscape(m[1])))
	if err != nil {
		return nil, fmt.Errorf("read user details: %w", err)
	}
	return detail.Extract(util.StripMarkup(page), n.details)
}

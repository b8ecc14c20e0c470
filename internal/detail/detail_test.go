package detail

import (
	"regexp"
	"strings"
	"testing"
)

const profile = `<td>上传量</td><td>1,234.5 GB</td>
<td>分享率</td><td><font>---</font></td>
<td>魔力值</td><td>12,345.6</td>`

func TestExtract(t *testing.T) {
	spec := Spec{
		"uploaded":    {Regex: regexp.MustCompile(`(?s)(上[传傳]量|Uploaded).+?([\d,.]+ ?[ZEPTGMK]?i?B)`), Group: 2},
		"share_ratio": {Regex: regexp.MustCompile(`(?s)(分享率|Ratio).*?(---|∞|Inf\.|无限|[\d,.]+)`), Group: 2, Handle: Infinite},
		"points":      {Regex: regexp.MustCompile(`(?s)(魔力|Bonus).*?([\d,.]+)`), Group: 2},
	}

	got, err := Extract(profile, spec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := map[string]string{"uploaded": "1234.5 GB", "share_ratio": "inf", "points": "12345.6"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestExtract_MissingFields(t *testing.T) {
	spec := Spec{
		"points": {Regex: regexp.MustCompile(`魔力值</td><td>([\d,.]+)`), Group: 1},
		"hr":     {Regex: regexp.MustCompile(`H&R.*?(\d+)`), Group: 1},
		"bad":    {Regex: regexp.MustCompile(`魔力`), Group: 3},
	}
	got, err := Extract(profile, spec)
	if err == nil || !strings.Contains(err.Error(), "bad, hr") {
		t.Fatalf("expected missing fields error, got %v", err)
	}
	if got["points"] != "12345.6" {
		t.Fatalf("partial result lost: %v", got)
	}
}

func TestCompile(t *testing.T) {
	spec, err := Compile(map[string]RawField{
		"ratio": {Regex: `Ratio.*?([\d.]+|---)`, Group: 1, Infinite: true},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := Extract("Ratio:\n ---", spec)
	if err != nil || got["ratio"] != "inf" {
		t.Fatalf("got %v %v", got, err)
	}

	if _, err := Compile(map[string]RawField{"x": {Regex: "("}}); err == nil {
		t.Fatal("expected compile error")
	}
}

package travel

import (
	"regexp"
	"strings"
)

// Session state keys under which the traveler profile persists across turns.
// Values already present are never re-asked.
const (
	StateDestination = "traveler.destination"
	StatePartySize   = "traveler.party_size"
	StateStyle       = "traveler.style"
)

// Profile is the traveler information the assistant must collect before it
// produces a plan. Empty fields are unknown.
type Profile struct {
	Destination string
	PartySize   string
	Style       string
}

// Complete reports whether enough is known to plan without clarifying.
func (p Profile) Complete() bool {
	return p.Destination != "" && p.PartySize != "" && p.Style != ""
}

// Merge overlays non-empty fields from o onto p.
func (p Profile) Merge(o Profile) Profile {
	if o.Destination != "" {
		p.Destination = o.Destination
	}
	if o.PartySize != "" {
		p.PartySize = o.PartySize
	}
	if o.Style != "" {
		p.Style = o.Style
	}
	return p
}

// StateDelta returns the non-empty fields as a session state mutation.
func (p Profile) StateDelta() map[string]any {
	delta := map[string]any{}
	if p.Destination != "" {
		delta[StateDestination] = p.Destination
	}
	if p.PartySize != "" {
		delta[StatePartySize] = p.PartySize
	}
	if p.Style != "" {
		delta[StateStyle] = p.Style
	}
	return delta
}

// ProfileFromState rebuilds a Profile from session state lookups.
func ProfileFromState(get func(string) (any, bool)) Profile {
	var p Profile
	if v, ok := get(StateDestination); ok {
		p.Destination, _ = v.(string)
	}
	if v, ok := get(StatePartySize); ok {
		p.PartySize, _ = v.(string)
	}
	if v, ok := get(StateStyle); ok {
		p.Style, _ = v.(string)
	}
	return p
}

var (
	destinationZhRe = regexp.MustCompile(`(?:我想去|我要去|想去|计划去|打算去)([\p{Han}]+?)(?:玩|旅游|旅行|逛逛|走走)?(?:[，。！？,.!?\s]|$)`)
	destinationEnRe = regexp.MustCompile(`(?i)(?:trip to|travel to|going to|visit(?:ing)?)\s+([A-Za-z][A-Za-z ]*?)(?:[,.!?]|$)`)
	partyCountRe    = regexp.MustCompile(`([0-9一二两三四五六七八九十]+)\s*(?:个人|人|位)`)
	partyCountEnRe  = regexp.MustCompile(`(?i)([0-9]+)\s+(?:people|persons|adults|travel(?:l)?ers)`)
)

var partyKeywords = map[string]string{
	"家庭": "family", "亲子": "family", "老人": "family", "小孩": "family", "孩子": "family",
	"情侣": "couple", "两口子": "couple",
	"朋友": "friends", "闺蜜": "friends", "同事": "friends",
	"一个人": "solo", "独自": "solo", "自己": "solo",
	"family": "family", "kids": "family", "couple": "couple",
	"friends": "friends", "solo": "solo", "alone": "solo",
}

var styleKeywords = map[string]string{
	"度假": "relaxed", "轻松": "relaxed", "悠闲": "relaxed", "休闲": "relaxed",
	"特种兵": "intensive", "打卡": "intensive", "暴走": "intensive", "景点": "intensive",
	"relaxed": "relaxed", "chill": "relaxed", "leisure": "relaxed",
	"sightseeing": "intensive", "packed": "intensive", "intensive": "intensive",
}

// ExtractProfile pulls traveler facts out of one utterance. Detection is
// keyword based and intentionally conservative: anything not clearly stated
// stays unknown, which routes the turn into a clarifying question instead of
// a guessed plan.
func ExtractProfile(text string) Profile {
	var p Profile

	if m := destinationZhRe.FindStringSubmatch(text); m != nil {
		p.Destination = m[1]
	} else if m := destinationEnRe.FindStringSubmatch(text); m != nil {
		p.Destination = strings.TrimSpace(m[1])
	}

	lower := strings.ToLower(text)
	for kw, label := range partyKeywords {
		if strings.Contains(lower, kw) {
			p.PartySize = label
			break
		}
	}
	if p.PartySize == "" {
		if m := partyCountRe.FindStringSubmatch(text); m != nil {
			p.PartySize = m[1]
		} else if m := partyCountEnRe.FindStringSubmatch(lower); m != nil {
			p.PartySize = m[1]
		}
	}

	for kw, label := range styleKeywords {
		if strings.Contains(lower, kw) {
			p.Style = label
			break
		}
	}

	return p
}

// ClarifyingQuestion is the deterministic reply for destination-only turns.
// The assistant asks before planning rather than proceeding on guesses.
func ClarifyingQuestion(destination string) string {
	var b strings.Builder
	b.WriteString("好的，" + destination + "是个很棒的目的地！在为您定制方案之前，我想先了解两件事：\n\n")
	b.WriteString("1. 请问大概几位出行？是有老人小孩的家庭游，还是情侣/朋友出游？\n")
	b.WriteString("2. 您偏好轻松的度假风，还是想要打卡景点的特种兵式旅游？")
	return b.String()
}

// Preflight decides whether a turn must short-circuit into a clarifying
// question before any model or tool invocation. It fires when a destination
// is known but party size or style is still missing.
func Preflight(p Profile) (string, bool) {
	if p.Destination != "" && !p.Complete() {
		return ClarifyingQuestion(p.Destination), true
	}
	return "", false
}

// Recommendation dimensions every plan must cover.
const (
	DimensionClothing  = "clothing"
	DimensionFood      = "food"
	DimensionLodging   = "lodging/activity"
	DimensionTransport = "transportation"
)

var dimensionMarkers = map[string][]string{
	DimensionClothing:  {"衣", "穿搭", "穿衣", "clothing", "wear", "dress"},
	DimensionFood:      {"食", "美食", "餐", "food", "eat", "restaurant"},
	DimensionLodging:   {"住", "玩", "行程", "景点", "lodging", "stay", "activity", "itinerary"},
	DimensionTransport: {"交通", "出行", "transport", "transit", "getting around"},
}

// transportHeadRe recognizes a section headed by a bare 行 regardless of the
// surrounding punctuation: "行：", "行: ", "🚗 行-", "行（打车）". The separator
// requirement keeps 行程 (itinerary) from counting as transportation.
var transportHeadRe = regexp.MustCompile(`(?m)^[^\p{Han}\n]*行\s*[：:（(\-]`)

// MissingDimensions checks a plan answer against the four required
// recommendation dimensions and returns the ones not covered, in a stable
// order. An empty result means the answer is policy complete.
func MissingDimensions(answer string) []string {
	lower := strings.ToLower(answer)
	var missing []string
	for _, dim := range []string{DimensionClothing, DimensionFood, DimensionLodging, DimensionTransport} {
		found := false
		for _, marker := range dimensionMarkers[dim] {
			if strings.Contains(lower, marker) {
				found = true
				break
			}
		}
		if dim == DimensionTransport && !found {
			found = transportHeadRe.MatchString(answer)
		}
		if !found {
			missing = append(missing, dim)
		}
	}
	return missing
}

package activity

import (
	"encoding/json"
	"strings"
)

// Sport is normalized once at the boundary where external data enters the
// core. Remote payloads historically carried either a bare string or an
// object with name/emoji fields.
type Sport struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji,omitempty"`
}

var sportEmojis = map[string]string{
	"course":    "🏃",
	"marche":    "🚶",
	"randonnee": "🥾",
	"trail":     "⛰️",
	"velo":      "🚴",
	"vtt":       "🚵",
	"natation":  "🏊",
	"kayak":     "🛶",
	"surf":      "🏄",
	"escalade":  "🧗",
}

// NormalizeSport builds a Sport from whatever shape the payload used.
func NormalizeSport(raw json.RawMessage) Sport {
	if len(raw) == 0 {
		return Sport{}
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return sportFromName(name)
	}

	var obj Sport
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		if obj.Emoji == "" {
			return sportFromName(obj.Name)
		}
		return obj
	}
	return Sport{}
}

func sportFromName(name string) Sport {
	s := Sport{Name: name}
	if emoji, ok := sportEmojis[strings.ToLower(strings.TrimSpace(name))]; ok {
		s.Emoji = emoji
	}
	return s
}

// UnmarshalJSON accepts both the string and object encodings.
func (s *Sport) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = sportFromName(name)
		return nil
	}

	type plain Sport
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = Sport(obj)
	if s.Emoji == "" && s.Name != "" {
		*s = sportFromName(s.Name)
	}
	return nil
}

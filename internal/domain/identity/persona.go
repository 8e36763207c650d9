package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Voice holds the text-to-speech parameters attached to a persona.
type Voice struct {
	Pitch int `json:"pitch"`
	Speed int `json:"speed"`
	ID    int `json:"voice_id"`
}

// Profile is display flavour derived alongside the persona. It carries no security meaning.
type Profile struct {
	Job         string `json:"job"`
	Age         int    `json:"age"`
	City        string `json:"city"`
	Department  string `json:"department"`
	Orientation string `json:"orientation"`
}

// Persona is the display identity derived from a cookie. It is never stored.
type Persona struct {
	cookie string

	ShortID       string  `json:"short_id"`
	DisplayName   string  `json:"display_name"`
	AvatarID      int     `json:"avatar_id"`
	AvatarName    string  `json:"avatar_name"`
	AvatarVariant int     `json:"avatar_variant"`
	Adjective     string  `json:"adjective"`
	Color         string  `json:"color"`
	Voice         Voice   `json:"voice"`
	Profile       Profile `json:"profile"`
	IsPrivileged  bool    `json:"is_privileged"`
}

// Cookie returns the raw cookie the persona was derived from.
func (p Persona) Cookie() string {
	return p.cookie
}

// AvatarImage returns the zero padded avatar image stem, e.g. "025".
func (p Persona) AvatarImage() string {
	return fmt.Sprintf("%03d", p.AvatarID)
}

// CSSColor returns the colour with a leading hash for use in stylesheets.
func (p Persona) CSSColor() string {
	return "#" + p.Color
}

// Settings configures an Engine.
type Settings struct {
	Salt              string
	PrivilegedCookies []string
}

// Engine derives personas with a fixed salt and privileged cookie list.
type Engine struct {
	salt       string
	privileged map[string]struct{}
}

// NewEngine validates the settings and builds an Engine.
func NewEngine(settings Settings) (*Engine, error) {
	if settings.Salt == "" {
		return nil, eris.New("identity salt is required")
	}

	privileged := make(map[string]struct{}, len(settings.PrivilegedCookies))
	for _, cookie := range settings.PrivilegedCookies {
		trimmed := strings.TrimSpace(cookie)
		if trimmed == "" {
			continue
		}
		privileged[trimmed] = struct{}{}
	}

	return &Engine{salt: settings.Salt, privileged: privileged}, nil
}

// Derive computes the persona for a cookie, flagging privileged cookies.
func (e *Engine) Derive(cookie string) Persona {
	persona := Derive(cookie, e.salt)
	_, persona.IsPrivileged = e.privileged[cookie]
	return persona
}

// ShortID returns only the public identifier for a cookie.
func (e *Engine) ShortID(cookie string) string {
	return shortID(digest(cookie, e.salt))
}

// Derive computes the persona for cookie under salt. The byte to field mapping
// is part of every user's visible identity and must not change.
func Derive(cookie, salt string) Persona {
	d := digest(cookie, salt)

	avatarID := (int(d[2])|int(d[3])<<8)%len(tables.avatars) + 1
	variant := (int(d[5])|int(d[6])<<13)%len(tables.adjectives) + 1
	avatarName := tables.avatars[avatarID-1]
	adjective := tables.adjectives[variant%len(tables.adjectives)]

	return Persona{
		cookie:        cookie,
		ShortID:       shortID(d),
		DisplayName:   avatarName + " " + adjective,
		AvatarID:      avatarID,
		AvatarName:    avatarName,
		AvatarVariant: variant,
		Adjective:     adjective,
		Color:         hsvColor(float64(d[4])/255, 0.8, 0.9),
		Voice: Voice{
			Pitch: int(d[0]) % 100,
			Speed: int(d[5])%80 + 90,
			ID:    int(d[1]),
		},
		Profile: deriveProfile(d),
	}
}

func deriveProfile(d [md5.Size]byte) Profile {
	city := tables.cities[int((uint64(d[6])*uint64(d[4])<<17)%uint64(len(tables.cities)))]

	return Profile{
		Job:         tables.jobs[(int(d[4])|int(d[2])<<7)%len(tables.jobs)],
		Age:         (int(d[3])|int(d[5])<<6)%62 + 18,
		City:        city.Name,
		Department:  city.Department,
		Orientation: tables.orientations[(int(d[2])|int(d[3])<<4)%len(tables.orientations)],
	}
}

func digest(cookie, salt string) [md5.Size]byte {
	return md5.Sum([]byte(cookie + salt))
}

func shortID(d [md5.Size]byte) string {
	encoded := hex.EncodeToString(d[:])
	return encoded[len(encoded)-16:]
}

// hsvColor mirrors the colorsys conversion, truncating each channel to a byte.
// The explicit float64 conversions keep the compiler from fusing multiply-adds.
func hsvColor(h, s, v float64) string {
	i := int(h * 6.0)
	f := float64(h*6.0) - float64(i)
	p := float64(v * float64(1.0-s))
	q := float64(v * float64(1.0-float64(s*f)))
	t := float64(v * float64(1.0-float64(s*float64(1.0-f))))

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return hex.EncodeToString([]byte{channel(r), channel(g), channel(b)})
}

func channel(c float64) byte {
	return byte(int(float64(255 * c)))
}

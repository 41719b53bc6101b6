package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// Key identifies a reaction emoji. Custom emojis carry their snowflake and
// name, standard emojis carry only the unicode text.
type Key struct {
	ID   snowflake.ID
	Name string
}

// Custom builds the key of a guild-hosted emoji.
func Custom(name string, id snowflake.ID) Key {
	return Key{ID: id, Name: name}
}

// Standard builds the key of a unicode emoji.
func Standard(emoji string) Key {
	return Key{Name: emoji}
}

// FromPartial derives the key of a live reaction. ok is false for reactions
// without any usable identity.
func FromPartial(e discord.PartialEmoji) (Key, bool) {
	name := ""
	if e.Name != nil {
		name = *e.Name
	}
	if e.ID != nil && *e.ID != 0 {
		return Custom(name, *e.ID), true
	}
	if name == "" {
		return Key{}, false
	}
	return Standard(name), true
}

func (k Key) IsCustom() bool { return k.ID != 0 }

func (k Key) IsZero() bool { return k.ID == 0 && k.Name == "" }

// String returns the persisted form: "name:id" or the raw emoji.
func (k Key) String() string {
	if k.IsCustom() {
		return k.Name + ":" + k.ID.String()
	}
	return k.Name
}

// AssetID is the file stem used by the emoji cache.
func (k Key) AssetID() string {
	if k.IsCustom() {
		return k.ID.String()
	}
	return CodePoints(k.Name)
}

// ParseKey is the inverse of String.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("empty reaction key")
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		if id, err := strconv.ParseUint(s[i+1:], 10, 64); err == nil && id != 0 {
			return Custom(s[:i], snowflake.ID(id)), nil
		}
	}
	return Standard(s), nil
}

func (k Key) MarshalText() ([]byte, error) {
	if k.IsZero() {
		return nil, fmt.Errorf("cannot marshal empty reaction key")
	}
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// CodePoints renders a unicode emoji the way the twemoji asset mirror names
// its files: lower-case hex code points joined by "-". U+FE0F is dropped
// unless the sequence contains a zero width joiner.
func CodePoints(emoji string) string {
	keepVS := strings.ContainsRune(emoji, '\u200d')
	parts := make([]string, 0, len(emoji))
	for _, r := range emoji {
		if r == '\ufe0f' && !keepVS {
			continue
		}
		parts = append(parts, strconv.FormatInt(int64(r), 16))
	}
	return strings.Join(parts, "-")
}

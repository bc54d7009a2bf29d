package generation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

var lowerRune = rapid.RuneFrom([]rune("abcdefghijklmnopqrstuvwxyz"))

func label() *rapid.Generator[string] {
	return rapid.StringOfN(lowerRune, 1, 8, -1)
}

func hostname() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		labels := rapid.SliceOfN(label(), 1, 3).Draw(t, "labels")
		return strings.Join(append(labels, "com"), ".")
	})
}

func date() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("%04d-%02d-%02d",
			rapid.IntRange(1970, 2100).Draw(t, "year"),
			rapid.IntRange(1, 12).Draw(t, "month"),
			rapid.IntRange(1, 28).Draw(t, "day"),
		)
	})
}

func clock() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("%02d:%02d:%02dZ",
			rapid.IntRange(0, 23).Draw(t, "hour"),
			rapid.IntRange(0, 59).Draw(t, "minute"),
			rapid.IntRange(0, 59).Draw(t, "second"),
		)
	})
}

var formatStrategies = map[string]func() *rapid.Generator[string]{
	"date": date,
	"time": clock,
	"date-time": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			return date().Draw(t, "date") + "T" + clock().Draw(t, "time")
		})
	},
	"email": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			return label().Draw(t, "user") + "@" + hostname().Draw(t, "domain")
		})
	},
	"hostname": hostname,
	"ipv4": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			octets := rapid.SliceOfN(rapid.IntRange(0, 255), 4, 4).Draw(t, "octets")
			return fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
		})
	},
	"ipv6": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			groups := rapid.SliceOfN(rapid.IntRange(0, 0xffff), 8, 8).Draw(t, "groups")
			parts := make([]string, len(groups))
			for i, g := range groups {
				parts[i] = fmt.Sprintf("%x", g)
			}
			return strings.Join(parts, ":")
		})
	},
	"uuid": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			raw := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "bytes")
			id, err := uuid.FromBytes(raw)
			if err != nil {
				t.Fatalf("uuid: %v", err)
			}
			return id.String()
		})
	},
	"uri": func() *rapid.Generator[string] {
		return rapid.Custom(func(t *rapid.T) string {
			return "https://" + hostname().Draw(t, "host") + "/" + label().Draw(t, "path")
		})
	},
}

func init() {
	formatStrategies["url"] = formatStrategies["uri"]
	formatStrategies["uri-reference"] = formatStrategies["uri"]
	formatStrategies["idn-hostname"] = hostname
	formatStrategies["idn-email"] = formatStrategies["email"]
}

// FormatStrategy returns a generator of strings in the named format.
func FormatStrategy(format string) (*rapid.Generator[string], bool) {
	build, ok := formatStrategies[format]
	if !ok {
		return nil, false
	}
	return build(), true
}

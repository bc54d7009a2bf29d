package generation

import (
	"strconv"
	"strings"

	"github.com/pyneda/kensa/pkg/schema"
)

// Context carries the state of one coverage walk: which parameter location
// the values are for, which modes are requested and the path inside the
// schema being visited. Contexts are values; At returns a new one.
type Context struct {
	Location string
	Modes    Modes
	Drawer   Drawer
	path     []string
}

func NewContext(location string, modes Modes, drawer Drawer) *Context {
	if len(modes) == 0 {
		modes = AllModes()
	}
	if drawer == nil {
		drawer = NewRapidDrawer(0)
	}
	return &Context{Location: location, Modes: modes, Drawer: drawer}
}

func (c *Context) derive(modes Modes, path []string) *Context {
	return &Context{Location: c.Location, Modes: modes, Drawer: c.Drawer, path: path}
}

// At descends into key.
func (c *Context) At(key string) *Context {
	path := make([]string, len(c.path), len(c.path)+1)
	copy(path, c.path)
	return c.derive(c.Modes, append(path, key))
}

func (c *Context) AtIndex(idx int) *Context {
	return c.At(strconv.Itoa(idx))
}

// CurrentPath renders the schema path as "/a/b".
func (c *Context) CurrentPath() string {
	return "/" + strings.Join(c.path, "/")
}

func (c *Context) WithPositive() *Context {
	return c.derive(Modes{Positive}, c.path)
}

func (c *Context) WithNegative() *Context {
	return c.derive(Modes{Negative}, c.path)
}

func (c *Context) IsPositive() bool {
	return c.Modes.Has(Positive)
}

func (c *Context) IsNegative() bool {
	return c.Modes.Has(Negative)
}

// IsValidForLocation rejects strings that can not be sent in a header or a cookie.
func (c *Context) IsValidForLocation(value any) bool {
	if c.Location != "header" && c.Location != "cookie" {
		return true
	}
	s, ok := value.(string)
	if !ok {
		return true
	}
	return schema.IsLatin1(s) && !schema.HasInvalidHeaderChars(s)
}

func (c *Context) draw(node any) (any, error) {
	return c.Drawer.Draw(node)
}

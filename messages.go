package signin

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Message codes. They are stable so callers and tests can match on them
// instead of on the text.
const (
	MsgAuthenticated        = "M001"
	MsgUserNotFound         = "M003"
	MsgAuthenticationError  = "M009"
	MsgServiceUnavailable   = "M010"
	MsgInvalidCredentials   = "M021"
	MsgAccountSuspended     = "M022"
	MsgTwoFactorCodeSent    = "M030"
	MsgTwoFactorCodeInvalid = "M031"
	MsgTwoFactorExpired     = "M032"
	MsgTwoFactorExceeded    = "M033"
)

//go:embed messages.json
var defaultMessages []byte

// Message is a catalog entry
type Message struct {
	Message string `json:"message"`
}

// Catalog is a read only MessageCatalog
type Catalog struct {
	messages map[string]Message
}

var _ MessageCatalog = (*Catalog)(nil)

// NewCatalog builds a catalog from code to text pairs
func NewCatalog(messages map[string]string) *Catalog {
	c := &Catalog{messages: make(map[string]Message, len(messages))}
	for code, text := range messages {
		c.messages[code] = Message{Message: text}
	}
	return c
}

// LoadCatalog decodes a catalog in the {"M001": {"message": "..."}} format
func LoadCatalog(r io.Reader) (*Catalog, error) {
	messages := map[string]Message{}
	if err := json.NewDecoder(r).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode message catalog: %w", err)
	}
	return &Catalog{messages: messages}, nil
}

// LoadCatalogFile reads a catalog file and layers it over the default catalog,
// codes missing from the file keep their default text.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open message catalog: %w", err)
	}
	defer f.Close()

	override, err := LoadCatalog(f)
	if err != nil {
		return nil, err
	}

	base := DefaultCatalog()
	merged := make(map[string]Message, len(base.messages)+len(override.messages))
	for code, msg := range base.messages {
		merged[code] = msg
	}
	for code, msg := range override.messages {
		merged[code] = msg
	}

	return &Catalog{messages: merged}, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog, parsed once
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c := &Catalog{messages: map[string]Message{}}
		if err := json.Unmarshal(defaultMessages, &c.messages); err != nil {
			panic(fmt.Sprintf("embedded message catalog is invalid: %s", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup returns the text for code, or the code itself when it is unknown
func (c *Catalog) Lookup(code string) string {
	if c == nil {
		return code
	}
	if msg, ok := c.messages[code]; ok && msg.Message != "" {
		return msg.Message
	}
	return code
}

// Codes lists the codes known to the catalog
func (c *Catalog) Codes() []string {
	if c == nil {
		return nil
	}
	codes := make([]string, 0, len(c.messages))
	for code := range c.messages {
		codes = append(codes, code)
	}
	return codes
}

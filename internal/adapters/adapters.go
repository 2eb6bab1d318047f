// Package adapters holds the static registry of destination chat sites.
// Every destination-specific detail — hostnames, composer selectors, send
// control selectors, URL prompt parameters — is data in this one table.
// Nothing outside this package branches on a destination id.
package adapters

import (
	"net/url"
	"strings"
)

// DefaultID is the destination used when settings resolve to nothing valid.
const DefaultID = "chatgpt"

// Adapter describes how to reach one destination chat site and how to drive
// its message composer. Selector lists are ordered most-specific first; the
// first match wins.
type Adapter struct {
	ID          string
	DisplayName string

	// Hostnames this adapter claims. A page host matches on equality or as
	// a subdomain (suffix match on "." + hostname).
	Hostnames []string

	// ChatURL is the page opened for a new conversation.
	ChatURL string

	// ComposerSelectors locate the message input, tried in order.
	ComposerSelectors []string

	// SendSelectors locate the send control, tried in order.
	SendSelectors []string

	// URLPromptParam, when non-empty, names a query parameter the site
	// itself understands for pre-filling a prompt.
	URLPromptParam string
}

// Match reports whether host belongs to this adapter's site.
func (a *Adapter) Match(host string) bool {
	host = strings.ToLower(host)
	for _, h := range a.Hostnames {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// BuildURL returns the destination URL for a new send, embedding payload as
// a query parameter when the adapter declares one. With an empty payload or
// no declared parameter it returns the plain chat URL.
func (a *Adapter) BuildURL(payload string) string {
	if a.URLPromptParam == "" || payload == "" {
		return a.ChatURL
	}
	u, err := url.Parse(a.ChatURL)
	if err != nil {
		return a.ChatURL
	}
	q := u.Query()
	q.Set(a.URLPromptParam, payload)
	u.RawQuery = q.Encode()
	return u.String()
}

// registry is ordered: ByHostname resolves ambiguity by table order.
var registry = []*Adapter{
	{
		ID:          "chatgpt",
		DisplayName: "ChatGPT",
		Hostnames:   []string{"chatgpt.com", "chat.openai.com"},
		ChatURL:     "https://chatgpt.com/",
		ComposerSelectors: []string{
			"div#prompt-textarea[contenteditable='true']",
			"#prompt-textarea",
			"textarea[data-testid='prompt-textarea']",
			"main form div[contenteditable='true']",
		},
		SendSelectors: []string{
			"button[data-testid='send-button']",
			"button[aria-label='Send prompt']",
			"form button[type='submit']",
		},
	},
	{
		ID:          "claude",
		DisplayName: "Claude",
		Hostnames:   []string{"claude.ai"},
		ChatURL:     "https://claude.ai/new",
		ComposerSelectors: []string{
			"div[aria-label='Write your prompt to Claude']",
			"div.ProseMirror[contenteditable='true']",
			"div[contenteditable='true']",
		},
		SendSelectors: []string{
			"button[aria-label='Send message']",
			"button[aria-label='Send Message']",
			"fieldset button[type='button']:not([disabled])",
		},
	},
	{
		ID:          "gemini",
		DisplayName: "Gemini",
		Hostnames:   []string{"gemini.google.com"},
		ChatURL:     "https://gemini.google.com/app",
		ComposerSelectors: []string{
			"div.ql-editor[contenteditable='true']",
			"rich-textarea div[contenteditable='true']",
			"div[contenteditable='true']",
		},
		SendSelectors: []string{
			"button[aria-label='Send message']",
			"button.send-button",
			"button[mattooltip='Submit']",
		},
	},
	{
		ID:          "deepseek",
		DisplayName: "DeepSeek",
		Hostnames:   []string{"chat.deepseek.com"},
		ChatURL:     "https://chat.deepseek.com/",
		ComposerSelectors: []string{
			"textarea#chat-input",
			"textarea[placeholder]",
			"textarea",
		},
		SendSelectors: []string{
			"div[role='button'][aria-disabled='false']",
			"button[type='submit']",
		},
	},
	{
		ID:          "kimi",
		DisplayName: "Kimi",
		Hostnames:   []string{"kimi.com", "kimi.moonshot.cn"},
		ChatURL:     "https://www.kimi.com/",
		ComposerSelectors: []string{
			"div.chat-input-editor[contenteditable='true']",
			"div[data-lexical-editor='true']",
			"div[contenteditable='true']",
		},
		SendSelectors: []string{
			"div.send-button",
			"button[aria-label='发送']",
			"button[type='submit']",
		},
	},
	{
		ID:          "doubao",
		DisplayName: "豆包",
		Hostnames:   []string{"doubao.com"},
		ChatURL:     "https://www.doubao.com/chat/",
		ComposerSelectors: []string{
			"textarea[data-testid='chat_input_input']",
			"textarea.semi-input-textarea",
			"textarea",
		},
		SendSelectors: []string{
			"button#flow-end-msg-send",
			"button[data-testid='chat_input_send_button']",
			"button[type='submit']",
		},
	},
	{
		ID:          "yuanbao",
		DisplayName: "腾讯元宝",
		Hostnames:   []string{"yuanbao.tencent.com"},
		ChatURL:     "https://yuanbao.tencent.com/chat",
		ComposerSelectors: []string{
			"div.ql-editor[contenteditable='true']",
			"div[contenteditable='true']",
		},
		SendSelectors: []string{
			"a[class*='send-btn']",
			"button[class*='send']",
		},
	},
	{
		ID:          "tongyi",
		DisplayName: "通义千问",
		Hostnames:   []string{"tongyi.aliyun.com", "tongyi.com"},
		ChatURL:     "https://www.tongyi.com/",
		ComposerSelectors: []string{
			"textarea[class*='chatInput']",
			"textarea[placeholder]",
			"textarea",
		},
		SendSelectors: []string{
			"div[class*='operateBtn']",
			"button[type='submit']",
		},
	},
	{
		ID:          "perplexity",
		DisplayName: "Perplexity",
		Hostnames:   []string{"perplexity.ai"},
		ChatURL:     "https://www.perplexity.ai/search",
		ComposerSelectors: []string{
			"textarea[placeholder='Ask anything...']",
			"textarea[autofocus]",
			"div[contenteditable='true']",
		},
		SendSelectors: []string{
			"button[aria-label='Submit']",
			"button[type='submit']",
		},
		URLPromptParam: "q",
	},
	{
		ID:          "grok",
		DisplayName: "Grok",
		Hostnames:   []string{"grok.com"},
		ChatURL:     "https://grok.com/",
		ComposerSelectors: []string{
			"textarea[aria-label='Ask Grok anything']",
			"form textarea",
			"textarea",
		},
		SendSelectors: []string{
			"button[aria-label='Submit']",
			"form button[type='submit']",
		},
	},
}

// ByID looks up an adapter by destination id.
func ByID(id string) (*Adapter, bool) {
	for _, a := range registry {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// ByHostname resolves the adapter responsible for a page host, if any.
// Table order wins when more than one adapter could claim the host.
func ByHostname(host string) (*Adapter, bool) {
	for _, a := range registry {
		if a.Match(host) {
			return a, true
		}
	}
	return nil, false
}

// All returns the registry in table order. The returned slice must not be
// mutated.
func All() []*Adapter {
	return registry
}

// Default returns the fallback destination adapter.
func Default() *Adapter {
	a, _ := ByID(DefaultID)
	return a
}
